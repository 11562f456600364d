package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/dreamware/podcache/internal/resp"
	"github.com/dreamware/podcache/internal/tiered"
)

// Server is PodCache's TCP RESP front end.
type Server struct {
	listener net.Listener
	cache    *tiered.Cache
	logger   *zap.SugaredLogger

	wg sync.WaitGroup
}

// New binds addr and returns a Server ready for Serve. Go's net package
// does not expose a portable knob for the listen backlog; on Linux it
// already defaults to 128, which is the value the protocol front end's
// component contract calls for.
func New(addr string, cache *tiered.Cache, logger *zap.SugaredLogger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: ln, cache: cache, logger: logger}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed. After ctx is cancelled it blocks until every in-flight
// connection handler returns and then returns nil; any other accept
// failure (including Close) is returned at once, without waiting.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections. Serve callers should prefer
// cancelling the context passed to Serve so in-flight connections drain;
// Close exists for callers that construct a Server without wiring a
// context-driven shutdown.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	dec := resp.NewDecoder(conn)
	enc := resp.NewEncoder(conn)

	for {
		args, err := dec.ReadCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) && s.logger != nil {
				s.logger.Debugw("connection closed", "remote", remote, "error", err)
			}
			return
		}

		quit := s.dispatch(enc, args)
		if flushErr := enc.Flush(); flushErr != nil {
			if s.logger != nil {
				s.logger.Debugw("write failed, closing connection", "remote", remote, "error", flushErr)
			}
			return
		}
		if quit {
			return
		}
	}
}
