// Package spawn implements the master-side Remote Thread Spawner: sending
// CreateThread, with or without an inline payload, to a chosen slave
// (SPEC_FULL.md §4.5).
package spawn

import (
	"fmt"
	"net"

	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/rcerr"
	"github.com/dogee-rc/cluster/internal/transport"
)

// CreateThread sends a bare CreateThread packet to conn: the remote's user
// thread entry will be invoked with (param, param2, param3). There is no
// acknowledgement; errors surface only as send errors.
func CreateThread(conn net.Conn, param, param2 uint32, param3 uint64) error {
	return transport.SendPacket(conn, protocol.CommandPacket{
		Cmd:    protocol.CreateThread,
		Param:  param,
		Param2: param2,
		Param3: param3,
	}, nil)
}

// CreateThreadWithPayload sends a CreateThread packet carrying an inline
// payload of up to protocol.MaxInlinePayload bytes, delivered to the
// remote's object-form thread entry as (param, param2, param3, payload).
func CreateThreadWithPayload(conn net.Conn, param, param2 uint32, param3 uint64, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("spawn: CreateThreadWithPayload requires a non-empty payload; use CreateThread")
	}
	if len(payload) > protocol.MaxInlinePayload {
		return rcerr.ErrPayloadTooLarge
	}
	return transport.SendPacket(conn, protocol.CommandPacket{
		Cmd:    protocol.CreateThread,
		Param:  param,
		Param2: param2,
		Param3: param3,
		Param4: uint32(len(payload)),
	}, payload)
}
