package testutil

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakeIRCServer is a loopback chat server that records every line a client sends and
// lets the test push server lines back. It serves one client connection at a time; a new
// connection replaces the previous one.
type FakeIRCServer struct {
	ln net.Listener

	mu    sync.Mutex
	conn  net.Conn
	lines []string
	conns int

	wg sync.WaitGroup
}

// NewFakeIRCServer listens on 127.0.0.1 with a random port. The server is closed on test
// cleanup.
func NewFakeIRCServer(t testing.TB) *FakeIRCServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &FakeIRCServer{ln: ln}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *FakeIRCServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.conn = conn
		s.conns++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.readLoop(conn)
	}
}

func (s *FakeIRCServer) readLoop(conn net.Conn) {
	defer s.wg.Done()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		s.mu.Lock()
		s.lines = append(s.lines, line)
		s.mu.Unlock()
	}
}

// Addr returns host:port of the listener.
func (s *FakeIRCServer) Addr() string { return s.ln.Addr().String() }

// Host returns the listener host.
func (s *FakeIRCServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listener port.
func (s *FakeIRCServer) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	p, _ := strconv.Atoi(port)
	return p
}

// Connections returns how many clients have connected so far.
func (s *FakeIRCServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Lines returns a copy of every line received, without terminators.
func (s *FakeIRCServer) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Count returns how many received lines equal line.
func (s *FakeIRCServer) Count(line string) int {
	n := 0
	for _, l := range s.Lines() {
		if l == line {
			n++
		}
	}
	return n
}

// WaitForLine blocks until line has been received or fails the test after timeout.
func (s *FakeIRCServer) WaitForLine(t testing.TB, line string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Count(line) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("line %q not received within %s; got %q", line, timeout, s.Lines())
}

// Push writes line plus CRLF to the connected client.
func (s *FakeIRCServer) Push(t testing.TB, line string) {
	t.Helper()
	s.PushRaw(t, line+"\r\n")
}

// PushRaw writes data unchanged, which allows splitting a line across writes.
func (s *FakeIRCServer) PushRaw(t testing.TB, data string) {
	t.Helper()
	conn := s.waitConn(t, time.Second)
	if _, err := conn.Write([]byte(data)); err != nil {
		t.Fatalf("push: %v", err)
	}
}

// DropConnection closes the active client connection from the server side.
func (s *FakeIRCServer) DropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *FakeIRCServer) waitConn(t testing.TB, timeout time.Duration) net.Conn {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no client connected within %s", timeout)
	return nil
}

// Close stops the listener and closes the active connection.
func (s *FakeIRCServer) Close() {
	_ = s.ln.Close()
	s.DropConnection()
	s.wg.Wait()
}
