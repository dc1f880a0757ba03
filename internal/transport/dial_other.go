//go:build !unix

package transport

import (
	"context"
	"net"
)

// Dial connects to a control-socket peer. On non-Unix platforms the raw
// setsockopt path in dial_unix.go is unavailable; TCP_NODELAY is still
// applied via the standard net.TCPConn API once the connection exists.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// Listen opens a control-socket listener. SO_REUSEADDR is not configured on
// non-Unix platforms; see dial_unix.go.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

// Accept wraps Listener.Accept and applies TCP_NODELAY to the accepted
// connection.
func Accept(ln net.Listener) (net.Conn, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}
