package listener

import (
	"net"
	"testing"
	"time"

	"github.com/dogee-rc/cluster/internal/external"
	"github.com/dogee-rc/cluster/internal/liveness"
	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/syncmgr"
	"github.com/dogee-rc/cluster/internal/transport"
)

type recordingWaker struct {
	woken chan [2]uint32
}

func (w *recordingWaker) WakeThread(node, thread uint32) {
	w.woken <- [2]uint32{node, thread}
}

type recordingTrigger struct {
	triggered chan error
}

func (r *recordingTrigger) TriggerRestart(reason error) {
	select {
	case r.triggered <- reason:
	default:
	}
}

func TestListenerDispatchesSyncCommand(t *testing.T) {
	waker := &recordingWaker{woken: make(chan [2]uint32, 1)}
	mgr := syncmgr.New(external.NewMemStore(), waker)
	live := liveness.New(2, time.Now())
	trig := &recordingTrigger{triggered: make(chan error, 1)}

	l := New(mgr, live, trig)

	client, server := net.Pipe()
	defer client.Close()
	l.Serve(1, server)

	// EnterSemaphore against an uninitialized key (initial 0) should not
	// trip immediately; set up with SetEvent instead, which always wakes
	// the matching WaitForEvent waiter once signaled.
	if err := transport.SendPacket(client, protocol.CommandPacket{Cmd: protocol.SetEvent, Param3: 42}, nil); err != nil {
		t.Fatalf("SendPacket SetEvent: %v", err)
	}
	if err := transport.SendPacket(client, protocol.CommandPacket{Cmd: protocol.WaitForEvent, Param: 7, Param3: 42}, nil); err != nil {
		t.Fatalf("SendPacket WaitForEvent: %v", err)
	}

	select {
	case got := <-waker.woken:
		if got != [2]uint32{1, 7} {
			t.Fatalf("woken = %v, want [1 7]", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wake")
	}

	if d := live.SilentSince(1, time.Now()); d > time.Second {
		t.Fatalf("liveness not touched by dispatched packets: silent for %v", d)
	}
}

func TestListenerTriggersRestartOnConnError(t *testing.T) {
	waker := &recordingWaker{woken: make(chan [2]uint32, 1)}
	mgr := syncmgr.New(external.NewMemStore(), waker)
	live := liveness.New(2, time.Now())
	trig := &recordingTrigger{triggered: make(chan error, 1)}

	l := New(mgr, live, trig)

	client, server := net.Pipe()
	l.Serve(1, server)
	client.Close() // forces a read error on the listener side

	select {
	case <-trig.triggered:
	case <-time.After(time.Second):
		t.Fatal("TriggerRestart was not called after connection closed")
	}
}
