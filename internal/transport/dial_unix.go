//go:build unix

package transport

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// controlNoDelay sets TCP_NODELAY on a freshly-dialed or freshly-accepted
// socket via a raw setsockopt, mirroring the original control-plane's use
// of setsockopt(fd, IPPROTO_TCP, TCP_NODELAY, ...) rather than relying on
// net.TCPConn.SetNoDelay so the option is applied before the first byte
// ever leaves the socket.
func controlNoDelay(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// controlReuseAddr sets SO_REUSEADDR on a listening socket before bind.
func controlReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Dial connects to a control-socket peer with TCP_NODELAY set pre-connect.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Control: controlNoDelay}
	return d.DialContext(ctx, "tcp", addr)
}

// Listen opens a control-socket listener with SO_REUSEADDR and TCP_NODELAY
// (applied per-accept in Accept) set the way the original listener did.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: controlReuseAddr}
	return lc.Listen(ctx, "tcp", addr)
}

// Accept wraps Listener.Accept and applies TCP_NODELAY to the accepted
// connection, since SO_REUSEADDR on the listening socket does not propagate
// to accepted sockets.
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
