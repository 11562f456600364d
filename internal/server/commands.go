package server

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/dreamware/podcache/internal/resp"
	"github.com/dreamware/podcache/internal/tiered"
)

var commandNames = []string{
	"ping", "set", "get", "del", "unlink", "incr",
	"exists", "dbsize", "flushall", "command", "client", "quit",
}

// dispatch executes one already-decoded command against the cache and
// writes its reply. It returns true if the connection should be closed
// after this command (QUIT).
func (s *Server) dispatch(enc *resp.Encoder, args [][]byte) bool {
	name := strings.ToUpper(string(args[0]))

	switch name {
	case "PING":
		s.cmdPing(enc, args)
	case "SET":
		s.cmdSet(enc, args)
	case "GET":
		s.cmdGet(enc, args)
	case "DEL", "UNLINK":
		s.cmdDel(enc, args)
	case "EXISTS":
		s.cmdExists(enc, args)
	case "INCR":
		s.cmdIncr(enc, args)
	case "DBSIZE":
		s.cmdDBSize(enc, args)
	case "FLUSHALL":
		s.cmdFlushAll(enc, args)
	case "COMMAND":
		_ = enc.BulkStringArray(commandNames)
	case "CLIENT":
		_ = enc.SimpleString("OK")
	case "QUIT":
		_ = enc.SimpleString("OK")
		return true
	default:
		_ = enc.Error("ERR unknown command '" + name + "'")
	}
	return false
}

func wrongArgs(enc *resp.Encoder, name string) {
	_ = enc.Error("ERR wrong number of arguments for '" + name + "' command")
}

func writeCacheError(enc *resp.Encoder, err error) {
	switch {
	case errors.Is(err, tiered.ErrTooLarge):
		_ = enc.Error("ERR value too large for cache")
	case errors.Is(err, tiered.ErrSpillFailed):
		_ = enc.Error("ERR cache spill failed")
	default:
		_ = enc.Error("ERR " + err.Error())
	}
}

func (s *Server) cmdPing(enc *resp.Encoder, args [][]byte) {
	switch len(args) {
	case 1:
		_ = enc.SimpleString("PONG")
	case 2:
		_ = enc.BulkString(args[1])
	default:
		wrongArgs(enc, "ping")
	}
}

func (s *Server) cmdSet(enc *resp.Encoder, args [][]byte) {
	if len(args) != 3 {
		wrongArgs(enc, "set")
		return
	}
	if err := s.cache.Put(args[1], args[2]); err != nil {
		writeCacheError(enc, err)
		return
	}
	_ = enc.SimpleString("OK")
}

func (s *Server) cmdGet(enc *resp.Encoder, args [][]byte) {
	if len(args) != 2 {
		wrongArgs(enc, "get")
		return
	}
	value, ok, err := s.cache.Get(args[1])
	if err != nil {
		writeCacheError(enc, err)
		return
	}
	if !ok {
		_ = enc.NullBulkString()
		return
	}
	_ = enc.BulkString(value)
}

func (s *Server) cmdDel(enc *resp.Encoder, args [][]byte) {
	if len(args) < 2 {
		wrongArgs(enc, "del")
		return
	}
	var count int64
	for _, key := range args[1:] {
		removed, err := s.cache.Evict(key)
		if err != nil {
			writeCacheError(enc, err)
			return
		}
		if removed {
			count++
		}
	}
	_ = enc.Integer(count)
}

func (s *Server) cmdExists(enc *resp.Encoder, args [][]byte) {
	if len(args) < 2 {
		wrongArgs(enc, "exists")
		return
	}
	var count int64
	for _, key := range args[1:] {
		ok, err := s.cache.Exists(key)
		if err != nil {
			writeCacheError(enc, err)
			return
		}
		if ok {
			count++
		}
	}
	_ = enc.Integer(count)
}

func (s *Server) cmdIncr(enc *resp.Encoder, args [][]byte) {
	if len(args) != 2 {
		wrongArgs(enc, "incr")
		return
	}

	key := args[1]
	current, ok, err := s.cache.Get(key)
	if err != nil {
		writeCacheError(enc, err)
		return
	}

	var n int64
	if ok {
		n, err = strconv.ParseInt(string(current), 10, 64)
		if err != nil {
			_ = enc.Error("ERR value is not an integer or out of range")
			return
		}
	}
	if n == math.MaxInt64 {
		_ = enc.Error("ERR value is not an integer or out of range")
		return
	}
	n++

	next := []byte(strconv.FormatInt(n, 10))
	if err := s.cache.Put(key, next); err != nil {
		writeCacheError(enc, err)
		return
	}
	_ = enc.Integer(n)
}

func (s *Server) cmdDBSize(enc *resp.Encoder, args [][]byte) {
	if len(args) != 1 {
		wrongArgs(enc, "dbsize")
		return
	}
	_ = enc.Integer(int64(s.cache.Size()))
}

func (s *Server) cmdFlushAll(enc *resp.Encoder, args [][]byte) {
	if len(args) != 1 {
		wrongArgs(enc, "flushall")
		return
	}
	if err := s.cache.FlushAll(); err != nil {
		writeCacheError(enc, err)
		return
	}
	_ = enc.SimpleString("OK")
}
