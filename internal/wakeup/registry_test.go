package wakeup

import (
	"errors"
	"testing"
	"time"

	"github.com/dogee-rc/cluster/internal/rcerr"
)

func TestWaitWakesOnSetLocal(t *testing.T) {
	r := New()
	gen := r.PrepareForCurrentThread(1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.SetLocal(1)
	}()

	ok, err := r.WaitCurrent(1, gen, time.Second)
	if err != nil {
		t.Fatalf("WaitCurrent: %v", err)
	}
	if !ok {
		t.Fatal("WaitCurrent returned false, want true")
	}
}

func TestWaitTimesOutAndRetires(t *testing.T) {
	r := New()
	gen := r.PrepareForCurrentThread(1)

	ok, err := r.WaitCurrent(1, gen, 10*time.Millisecond)
	if !errors.Is(err, rcerr.ErrTimeout) {
		t.Fatalf("WaitCurrent: got err %v, want %v", err, rcerr.ErrTimeout)
	}
	if ok {
		t.Fatal("WaitCurrent returned true, want false on timeout")
	}

	r.mu.RLock()
	_, stillPresent := r.events[1]
	r.mu.RUnlock()
	if stillPresent {
		t.Fatal("timed-out wait was not retired from the registry")
	}
}

func TestRetiredGenerationDoesNotBlockNextWait(t *testing.T) {
	r := New()
	staleGen := r.PrepareForCurrentThread(1)

	// Simulate the first wait timing out and retiring.
	if ok, err := r.WaitCurrent(1, staleGen, time.Millisecond); ok || !errors.Is(err, rcerr.ErrTimeout) {
		t.Fatalf("expected first wait to time out, got ok=%v err=%v", ok, err)
	}

	// Thread moves on to a second, unrelated wait.
	secondGen := r.PrepareForCurrentThread(1)

	// SetLocal carries no generation of its own, so it fires whatever event
	// is current: here the second wait's. The retired first generation must
	// not keep that second wait from observing it.
	r.SetLocal(1)

	ok, err := r.WaitCurrent(1, secondGen, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitCurrent: %v", err)
	}
	if !ok {
		t.Fatal("second wait did not observe the wake meant for it")
	}
}

func TestDeleteCurrentThreadRemovesEntry(t *testing.T) {
	r := New()
	r.PrepareForCurrentThread(5)
	r.DeleteCurrentThread(5)

	r.mu.RLock()
	_, ok := r.events[5]
	r.mu.RUnlock()
	if ok {
		t.Fatal("DeleteCurrentThread did not remove the entry")
	}
}

func TestSetLocalOnUnknownThreadIsNoop(t *testing.T) {
	r := New()
	r.SetLocal(999) // must not panic
}
