//go:build unix

package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestSelectReadyReportsOnlyWrittenConnections(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	const n = 4
	clients := make([]*net.TCPConn, n)
	servers := make([]*net.TCPConn, n)
	for i := 0; i < n; i++ {
		c, err := Dial(context.Background(), ln.Addr().String())
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		clients[i] = c.(*net.TCPConn)
		s, err := Accept(ln)
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
		servers[i] = s.(*net.TCPConn)
	}
	defer func() {
		for i := range clients {
			clients[i].Close()
			servers[i].Close()
		}
	}()

	// Only the last connection (the one most likely to expose a wrong,
	// first-fd-only maxfd computation) gets written to.
	written := n - 1
	if _, err := clients[written].Write([]byte{1}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ready, err := SelectReady(servers, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("SelectReady: %v", err)
	}
	if len(ready) != 1 || ready[0] != written {
		t.Fatalf("SelectReady = %v, want [%d]", ready, written)
	}
}

func TestSelectReadyTimesOutWithNothingReady(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	c, err := Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	s, err := Accept(ln)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer s.Close()

	ready, err := SelectReady([]*net.TCPConn{s.(*net.TCPConn)}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("SelectReady: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("SelectReady = %v, want empty", ready)
	}
}
