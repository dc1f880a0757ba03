// Package transport implements the control channel's blocking,
// length-prefixed send/receive primitives and the listen/dial helpers that
// configure TCP_NODELAY and SO_REUSEADDR the way the original socket code
// did with raw setsockopt calls.
package transport

import (
	"fmt"
	"io"
	"net"

	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/rcerr"
)

// SendPacket writes a CommandPacket and, if Param4 > 0, the trailing payload
// in a single logical send. Short writes are impossible on a net.Conn
// (Write is all-or-error for stream sockets), but the helper still checks
// the returned count defensively, mirroring the original's send-in-a-loop.
// A payload whose length differs from Param4 is rejected before anything is
// written.
func SendPacket(conn net.Conn, p protocol.CommandPacket, payload []byte) error {
	if p.Param4 > 0 && len(payload) != int(p.Param4) {
		return fmt.Errorf("transport: payload is %d bytes but Param4 announces %d", len(payload), p.Param4)
	}
	if err := writeFull(conn, p.Marshal()); err != nil {
		return err
	}
	if p.Param4 > 0 {
		if err := writeFull(conn, payload); err != nil {
			return err
		}
	}
	return nil
}

// RecvPacket blocks until a full CommandPacket header has arrived.
func RecvPacket(conn net.Conn) (protocol.CommandPacket, error) {
	buf := make([]byte, protocol.PacketSize)
	if err := readFull(conn, buf); err != nil {
		return protocol.CommandPacket{}, err
	}
	return protocol.Unmarshal(buf)
}

// RecvPayload reads exactly n bytes of inline CreateThread payload.
func RecvPayload(conn net.Conn, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if err := readFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// DrainPayload discards n bytes from the wire without retaining them, used
// to resynchronize the stream after an oversize CreateThread payload (see
// SPEC_FULL.md §9): the announced length is still honored even though the
// body is rejected.
func DrainPayload(conn net.Conn, n uint32) error {
	_, err := io.CopyN(io.Discard, conn, int64(n))
	if err != nil {
		return rcerr.ErrShortRead
	}
	return nil
}

func readFull(conn net.Conn, buf []byte) error {
	_, err := io.ReadFull(conn, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return rcerr.ErrShortRead
		}
		return err
	}
	return nil
}

func writeFull(conn net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Write(buf[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return rcerr.ErrShortWrite
		}
		total += n
	}
	return nil
}
