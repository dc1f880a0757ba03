package handshake

import (
	"net"
	"strings"
	"testing"

	"github.com/dogee-rc/cluster/internal/rcerr"
)

func TestSlaveInfoRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		if err := WriteSlaveInfo(client); err != nil {
			t.Errorf("WriteSlaveInfo: %v", err)
		}
	}()

	si, err := ReadSlaveInfo(server)
	if err != nil {
		t.Fatalf("ReadSlaveInfo: %v", err)
	}
	if si.Magic != MagicSlave {
		t.Fatalf("Magic = %#x, want %#x", si.Magic, MagicSlave)
	}
}

func TestReadSlaveInfoBadMagic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go client.Write([]byte{0, 0, 0, 0})

	if _, err := ReadSlaveInfo(server); err != rcerr.ErrBadMagic {
		t.Fatalf("ReadSlaveInfo err = %v, want %v", err, rcerr.ErrBadMagic)
	}
}

func TestMasterInfoRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	want := MasterInfo{
		Magic:        MagicMaster,
		NumMemServer: 3,
		NumNodes:     4,
		NodeID:       2,
		LocalPort:    9000,
		BackendType:  1,
		CacheType:    2,
		Checkpoint:   -1,
	}

	go func() {
		if err := WriteMasterInfo(client, want); err != nil {
			t.Errorf("WriteMasterInfo: %v", err)
		}
	}()

	got, err := ReadMasterInfo(server)
	if err != nil {
		t.Fatalf("ReadMasterInfo: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestAddressRecordRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		if err := WriteAddressRecord(client, "10.0.0.5", 7000); err != nil {
			t.Errorf("WriteAddressRecord: %v", err)
		}
	}()

	rec, err := ReadAddressRecord(server)
	if err != nil {
		t.Fatalf("ReadAddressRecord: %v", err)
	}
	if rec.Host != "10.0.0.5" || rec.Port != 7000 {
		t.Fatalf("got %+v, want {10.0.0.5 7000}", rec)
	}
}

func TestAddressRecordTruncatesLongHost(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	longHost := strings.Repeat("a", 500)

	go func() {
		if err := WriteAddressRecord(client, longHost, 1); err != nil {
			t.Errorf("WriteAddressRecord: %v", err)
		}
	}()

	rec, err := ReadAddressRecord(server)
	if err != nil {
		t.Fatalf("ReadAddressRecord: %v", err)
	}
	if len(rec.Host) != maxHostLen-1 {
		t.Fatalf("truncated host length = %d, want %d", len(rec.Host), maxHostLen-1)
	}
}
