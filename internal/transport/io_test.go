package transport

import (
	"net"
	"testing"

	"github.com/dogee-rc/cluster/internal/protocol"
)

func TestSendRecvPacketNoPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	want := protocol.CommandPacket{Cmd: protocol.EnterBarrier, Param: 3, Param3: 77}

	go func() {
		if err := SendPacket(client, want, nil); err != nil {
			t.Errorf("SendPacket: %v", err)
		}
	}()

	got, err := RecvPacket(server)
	if err != nil {
		t.Fatalf("RecvPacket: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSendRecvPacketWithPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("hello thread")
	want := protocol.CommandPacket{Cmd: protocol.CreateThread, Param4: uint32(len(payload))}

	go func() {
		if err := SendPacket(client, want, payload); err != nil {
			t.Errorf("SendPacket: %v", err)
		}
	}()

	got, err := RecvPacket(server)
	if err != nil {
		t.Fatalf("RecvPacket: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	body, err := RecvPayload(server, got.Param4)
	if err != nil {
		t.Fatalf("RecvPayload: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("payload = %q, want %q", body, payload)
	}
}

func TestSendPacketPayloadLengthMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	pkt := protocol.CommandPacket{Cmd: protocol.CreateThread, Param4: 10}
	if err := SendPacket(client, pkt, []byte("short")); err == nil {
		t.Fatal("expected error on payload length mismatch, got nil")
	}
}

func TestDrainPayloadResynchronizesStream(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	dropped := []byte("this payload gets rejected and drained")
	next := protocol.CommandPacket{Cmd: protocol.Alive}

	go func() {
		client.Write(dropped)
		if err := SendPacket(client, next, nil); err != nil {
			t.Errorf("SendPacket: %v", err)
		}
	}()

	if err := DrainPayload(server, uint32(len(dropped))); err != nil {
		t.Fatalf("DrainPayload: %v", err)
	}
	got, err := RecvPacket(server)
	if err != nil {
		t.Fatalf("RecvPacket after drain: %v", err)
	}
	if got != next {
		t.Fatalf("got %+v, want %+v", got, next)
	}
}
