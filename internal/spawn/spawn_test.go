package spawn

import (
	"net"
	"testing"

	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/transport"
)

func TestCreateThreadNoPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		if err := CreateThread(client, 1, 2, 3); err != nil {
			t.Errorf("CreateThread: %v", err)
		}
	}()

	pkt, err := transport.RecvPacket(server)
	if err != nil {
		t.Fatalf("RecvPacket: %v", err)
	}
	want := protocol.CommandPacket{Cmd: protocol.CreateThread, Param: 1, Param2: 2, Param3: 3}
	if pkt != want {
		t.Fatalf("got %+v, want %+v", pkt, want)
	}
}

func TestCreateThreadWithPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("seed state")

	go func() {
		if err := CreateThreadWithPayload(client, 1, 2, 3, payload); err != nil {
			t.Errorf("CreateThreadWithPayload: %v", err)
		}
	}()

	pkt, err := transport.RecvPacket(server)
	if err != nil {
		t.Fatalf("RecvPacket: %v", err)
	}
	if pkt.Param4 != uint32(len(payload)) {
		t.Fatalf("Param4 = %d, want %d", pkt.Param4, len(payload))
	}
	body, err := transport.RecvPayload(server, pkt.Param4)
	if err != nil {
		t.Fatalf("RecvPayload: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("payload = %q, want %q", body, payload)
	}
}

func TestCreateThreadWithPayloadRejectsOversize(t *testing.T) {
	conn, _ := net.Pipe()
	defer conn.Close()

	big := make([]byte, protocol.MaxInlinePayload+1)
	if err := CreateThreadWithPayload(conn, 0, 0, 0, big); err == nil {
		t.Fatal("expected error for oversize payload, got nil")
	}
}

func TestCreateThreadWithPayloadRejectsEmpty(t *testing.T) {
	conn, _ := net.Pipe()
	defer conn.Close()

	if err := CreateThreadWithPayload(conn, 0, 0, 0, nil); err == nil {
		t.Fatal("expected error for empty payload, got nil")
	}
}
