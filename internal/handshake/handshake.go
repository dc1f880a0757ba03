// Package handshake implements the master/slave address-table exchange run
// once per fresh control connection: magic-number frames, the MasterInfo
// envelope, and the peer/storage address records that follow it.
package handshake

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/dogee-rc/cluster/internal/rcerr"
)

const (
	MagicSlave  uint32 = 0x33950F0E
	MagicMaster uint32 = 0x12335EDF

	// maxHostLen is the wire cap on an address record's host string,
	// including the NUL terminator (SPEC_FULL.md §4.3).
	maxHostLen = 255
)

// SlaveInfo is the frame a slave sends immediately after connecting.
type SlaveInfo struct {
	Magic uint32
}

// MasterInfo is the master's reply, carrying the cluster shape and the
// restart checkpoint counter the slave should observe.
type MasterInfo struct {
	Magic         uint32
	NumMemServer  uint32
	NumNodes      uint32
	NodeID        uint32
	LocalPort     int32
	BackendType   uint32
	CacheType     uint32
	Checkpoint    int32
}

// PeerAddress is one (host, port) record in the address table that follows
// MasterInfo: num_nodes-1 peer records, then num_mem_server storage records.
type PeerAddress struct {
	Host string
	Port uint32
}

// WriteSlaveInfo sends the slave's opening frame.
func WriteSlaveInfo(conn net.Conn) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], MagicSlave)
	return writeAll(conn, buf[:])
}

// ReadSlaveInfo is the master-side read of the opening frame; a magic
// mismatch or short read aborts the handshake.
func ReadSlaveInfo(conn net.Conn) (SlaveInfo, error) {
	var buf [4]byte
	if err := readAll(conn, buf[:]); err != nil {
		return SlaveInfo{}, err
	}
	magic := binary.LittleEndian.Uint32(buf[:])
	if magic != MagicSlave {
		return SlaveInfo{}, rcerr.ErrBadMagic
	}
	return SlaveInfo{Magic: magic}, nil
}

// WriteMasterInfo sends the master's reply frame.
func WriteMasterInfo(conn net.Conn, mi MasterInfo) error {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], mi.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], mi.NumMemServer)
	binary.LittleEndian.PutUint32(buf[8:12], mi.NumNodes)
	binary.LittleEndian.PutUint32(buf[12:16], mi.NodeID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(mi.LocalPort))
	binary.LittleEndian.PutUint32(buf[20:24], mi.BackendType)
	binary.LittleEndian.PutUint32(buf[24:28], mi.CacheType)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(mi.Checkpoint))
	return writeAll(conn, buf)
}

// ReadMasterInfo is the slave-side read of the master's reply frame.
func ReadMasterInfo(conn net.Conn) (MasterInfo, error) {
	buf := make([]byte, 32)
	if err := readAll(conn, buf); err != nil {
		return MasterInfo{}, err
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != MagicMaster {
		return MasterInfo{}, rcerr.ErrBadMagic
	}
	return MasterInfo{
		Magic:        magic,
		NumMemServer: binary.LittleEndian.Uint32(buf[4:8]),
		NumNodes:     binary.LittleEndian.Uint32(buf[8:12]),
		NodeID:       binary.LittleEndian.Uint32(buf[12:16]),
		LocalPort:    int32(binary.LittleEndian.Uint32(buf[16:20])),
		BackendType:  binary.LittleEndian.Uint32(buf[20:24]),
		CacheType:    binary.LittleEndian.Uint32(buf[24:28]),
		Checkpoint:   int32(binary.LittleEndian.Uint32(buf[28:32])),
	}, nil
}

// WriteAddressRecord sends one {len, host[len], port} record. Hosts longer
// than 254 bytes are truncated to a 254-byte prefix plus NUL, per
// SPEC_FULL.md §4.3 (len itself is capped at 255 including the terminator).
func WriteAddressRecord(conn net.Conn, host string, port uint32) error {
	h := []byte(host)
	if len(h) > maxHostLen-1 {
		h = h[:maxHostLen-1]
	}
	h = append(h, 0)

	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(h)))
	if err := writeAll(conn, lenBuf); err != nil {
		return err
	}
	if err := writeAll(conn, h); err != nil {
		return err
	}
	portBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(portBuf, port)
	return writeAll(conn, portBuf)
}

// ReadAddressRecord reads one {len, host[len], port} record.
func ReadAddressRecord(conn net.Conn) (PeerAddress, error) {
	lenBuf := make([]byte, 4)
	if err := readAll(conn, lenBuf); err != nil {
		return PeerAddress{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	if n == 0 {
		return PeerAddress{}, fmt.Errorf("handshake: address record length %d out of range", n)
	}
	if n > maxHostLen {
		return PeerAddress{}, fmt.Errorf("%w: record length %d exceeds %d", rcerr.ErrHostTooLong, n, maxHostLen)
	}
	hostBuf := make([]byte, n)
	if err := readAll(conn, hostBuf); err != nil {
		return PeerAddress{}, err
	}
	// Strip the NUL terminator (and anything after it, defensively).
	host := hostBuf
	for i, b := range hostBuf {
		if b == 0 {
			host = hostBuf[:i]
			break
		}
	}
	portBuf := make([]byte, 4)
	if err := readAll(conn, portBuf); err != nil {
		return PeerAddress{}, err
	}
	return PeerAddress{Host: string(host), Port: binary.LittleEndian.Uint32(portBuf)}, nil
}

// PeerHostFromConn infers the master's own address from the accepting
// socket's remote address, as seen from the slave side, paired by the
// caller with MasterInfo.LocalPort to build the index-0 table entry.
func PeerHostFromConn(conn net.Conn) (string, error) {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return "", fmt.Errorf("handshake: remote address is not a TCP address: %v", conn.RemoteAddr())
	}
	return addr.IP.String(), nil
}

func readAll(conn net.Conn, buf []byte) error {
	if _, err := io.ReadFull(conn, buf); err != nil {
		return rcerr.ErrShortRead
	}
	return nil
}

func writeAll(conn net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Write(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}
