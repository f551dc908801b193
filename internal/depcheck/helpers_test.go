package depcheck

import (
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// silentServer accepts connections and never answers. closed receives one
// value per client connection once the client side has gone away.
type silentServer struct {
	ln       net.Listener
	accepted atomic.Int32
	closed   chan struct{}
}

func newSilentServer(t *testing.T) *silentServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &silentServer{ln: ln, closed: make(chan struct{}, 64)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			s.accepted.Add(1)
			go func() {
				defer c.Close()
				_, _ = io.Copy(io.Discard, c)
				s.closed <- struct{}{}
			}()
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *silentServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *silentServer) waitClosed(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(d):
		t.Fatalf("client connection still open after %s", d)
	}
}

// refusedPort returns a loopback port with nothing listening on it.
func refusedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}
