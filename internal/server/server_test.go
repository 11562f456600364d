package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/dreamware/podcache/internal/diskstore"
	"github.com/dreamware/podcache/internal/tiered"
)

func newTestServer(t *testing.T, partitionCount int, partitionCapacity int64) (*Server, func()) {
	t.Helper()
	disk, err := diskstore.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("diskstore.New: %v", err)
	}
	cache, err := tiered.New(partitionCount, partitionCapacity, disk, nil)
	if err != nil {
		t.Fatalf("tiered.New: %v", err)
	}
	srv, err := New("127.0.0.1:0", cache, nil)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()

	cleanup := func() {
		cancel()
		<-done
		_ = disk.Destroy()
	}
	return srv, cleanup
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(args ...string) {
	c.t.Helper()
	req := fmt.Sprintf("*%d\r\n", len(args))
	for _, a := range args {
		req += fmt.Sprintf("$%d\r\n%s\r\n", len(a), a)
	}
	if _, err := c.conn.Write([]byte(req)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) readLine() string {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("readLine: %v", err)
	}
	return line[:len(line)-2] // strip \r\n
}

func (c *testClient) expectSimple(want string) {
	c.t.Helper()
	line := c.readLine()
	if line != "+"+want {
		c.t.Fatalf("expected simple string %q, got %q", want, line)
	}
}

func (c *testClient) expectInteger(want int64) {
	c.t.Helper()
	line := c.readLine()
	if line != fmt.Sprintf(":%d", want) {
		c.t.Fatalf("expected integer %d, got %q", want, line)
	}
}

func (c *testClient) expectBulk(want string) {
	c.t.Helper()
	header := c.readLine()
	if header != fmt.Sprintf("$%d", len(want)) {
		c.t.Fatalf("expected bulk header for %q, got %q", want, header)
	}
	body := c.readLine()
	if body != want {
		c.t.Fatalf("expected bulk body %q, got %q", want, body)
	}
}

func (c *testClient) expectNullBulk() {
	c.t.Helper()
	line := c.readLine()
	if line != "$-1" {
		c.t.Fatalf("expected null bulk, got %q", line)
	}
}

func (c *testClient) expectError() {
	c.t.Helper()
	line := c.readLine()
	if len(line) == 0 || line[0] != '-' {
		c.t.Fatalf("expected error reply, got %q", line)
	}
}

// S1: basic SET/GET round trip.
func TestScenarioBasicSetGet(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	c.send("SET", "foo", "bar")
	c.expectSimple("OK")

	c.send("GET", "foo")
	c.expectBulk("bar")

	c.send("GET", "missing")
	c.expectNullBulk()
}

// S2: a full partition spills its LRU victim to disk, and the victim is
// still retrievable afterward.
func TestScenarioSpillToDisk(t *testing.T) {
	srv, cleanup := newTestServer(t, 1, 2)
	defer cleanup()

	c := dial(t, srv)
	c.send("SET", "a", "1")
	c.expectSimple("OK")
	c.send("SET", "b", "1")
	c.expectSimple("OK")

	c.send("GET", "a")
	c.expectBulk("1")
}

// S3: a disk hit is promoted back to memory; EXISTS still finds it.
func TestScenarioPromoteOnDiskHit(t *testing.T) {
	srv, cleanup := newTestServer(t, 1, 2)
	defer cleanup()

	c := dial(t, srv)
	c.send("SET", "a", "1")
	c.expectSimple("OK")
	c.send("SET", "b", "1")
	c.expectSimple("OK")

	c.send("GET", "a")
	c.expectBulk("1")

	c.send("EXISTS", "a")
	c.expectInteger(1)
}

// S4: INCR on an absent key starts at 0, then increments.
func TestScenarioIncr(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	c.send("INCR", "counter")
	c.expectInteger(1)
	c.send("INCR", "counter")
	c.expectInteger(2)
}

func TestScenarioIncrOnNonIntegerFails(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	c.send("SET", "k", "not-a-number")
	c.expectSimple("OK")
	c.send("INCR", "k")
	c.expectError()
}

func TestScenarioIncrOnMaxInt64Overflows(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	c.send("SET", "k", "9223372036854775807")
	c.expectSimple("OK")
	c.send("INCR", "k")
	c.expectError()

	// the stored value must be untouched by the rejected increment.
	c.send("GET", "k")
	c.expectBulk("9223372036854775807")
}

// S5: pipelined PINGs, sent back to back without waiting for replies,
// must each get their own reply in order.
func TestScenarioPipelinedPing(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	req := "*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"
	if _, err := c.conn.Write([]byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i := 0; i < 3; i++ {
		c.expectSimple("PONG")
	}
}

// S6: keys that route to different partitions don't interfere.
func TestScenarioPartitionedIsolation(t *testing.T) {
	srv, cleanup := newTestServer(t, 8, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for i, k := range keys {
		c.send("SET", k, fmt.Sprintf("v%d", i))
		c.expectSimple("OK")
	}
	for i, k := range keys {
		c.send("GET", k)
		c.expectBulk(fmt.Sprintf("v%d", i))
	}
}

// S7: EXISTS and DBSIZE supplemental commands.
func TestScenarioExistsAndDBSize(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	c.send("DBSIZE")
	c.expectInteger(0)

	c.send("SET", "a", "1")
	c.expectSimple("OK")
	c.send("SET", "b", "2")
	c.expectSimple("OK")

	c.send("DBSIZE")
	c.expectInteger(2)

	c.send("EXISTS", "a", "b", "missing")
	c.expectInteger(2)
}

// S8: FLUSHALL clears both tiers.
func TestScenarioFlushAll(t *testing.T) {
	srv, cleanup := newTestServer(t, 1, 2)
	defer cleanup()

	c := dial(t, srv)
	c.send("SET", "a", "1")
	c.expectSimple("OK")
	c.send("SET", "b", "1")
	c.expectSimple("OK")

	c.send("FLUSHALL")
	c.expectSimple("OK")

	c.send("DBSIZE")
	c.expectInteger(0)
	c.send("GET", "a")
	c.expectNullBulk()
}

func TestDelReturnsRemovedCount(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	c.send("SET", "a", "1")
	c.expectSimple("OK")

	c.send("DEL", "a", "nope")
	c.expectInteger(1)
}

func TestQuitClosesConnection(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	c.send("QUIT")
	c.expectSimple("OK")

	_ = c.conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if n, err := c.conn.Read(buf); n != 0 || err == nil {
		t.Fatalf("expected connection to be closed after QUIT, got n=%d err=%v", n, err)
	}
}

func TestUnknownCommandReturnsError(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	c.send("FROBNICATE", "x")
	c.expectError()
}

func TestWrongArgCountReturnsError(t *testing.T) {
	srv, cleanup := newTestServer(t, 4, 1<<16)
	defer cleanup()

	c := dial(t, srv)
	c.send("SET", "onlyonearg")
	c.expectError()
}
