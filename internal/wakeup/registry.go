// Package wakeup implements the per-thread wakeup event registry: one
// binary, explicitly-reset event per local thread id, indexed under a
// reader/writer lock (SPEC_FULL.md §4.2).
package wakeup

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dogee-rc/cluster/internal/rcerr"
)

// event is one thread's wakeup signal, tagged with the generation minted by
// the PrepareForCurrentThread call that created it. WaitCurrent checks the
// tag; SetLocal takes no generation and fires whatever event is registered.
type event struct {
	ch         chan struct{}
	generation uuid.UUID
}

// Registry is the process-wide thread_id -> event mapping. Sets and waits
// take the reader lock (they are frequent and don't conflict with each
// other at the map level); create/delete/retire take the writer lock.
type Registry struct {
	mu     sync.RWMutex
	events map[uint32]*event
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{events: make(map[uint32]*event)}
}

// PrepareForCurrentThread installs a fresh, reset event for threadID and
// returns the generation token the caller must present to WaitCurrent.
func (r *Registry) PrepareForCurrentThread(threadID uint32) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen := uuid.New()
	r.events[threadID] = &event{ch: make(chan struct{}, 1), generation: gen}
	return gen
}

// DeleteCurrentThread removes and destroys threadID's event entirely, for
// use at thread exit (not merely after one wait).
func (r *Registry) DeleteCurrentThread(threadID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, threadID)
}

// SetLocal signals threadID's current event. A signal for an unknown thread
// id, including one whose last wait timed out and retired its event and
// which has not prepared a new one, is a logged no-op rather than an error.
// The signal carries no generation, so once the thread has prepared its
// next wait, a late signal meant for an earlier wait fires that next wait.
func (r *Registry) SetLocal(threadID uint32) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[threadID]
	if !ok {
		log.Printf("wakeup: set for unknown thread %d ignored", threadID)
		return
	}
	select {
	case ev.ch <- struct{}{}:
	default:
		// already signaled and not yet consumed
	}
}

// WaitCurrent blocks on threadID's event, tagged with the generation
// returned from the matching PrepareForCurrentThread, until signaled or
// timeout elapses. The reader lock is held only to look up the event, not
// while blocking. On timeout it retires the generation by removing the
// event, so a late SetLocal that arrives before the thread's next
// PrepareForCurrentThread is dropped; one that arrives after it fires the
// new event.
func (r *Registry) WaitCurrent(threadID uint32, generation uuid.UUID, timeout time.Duration) (bool, error) {
	r.mu.RLock()
	ev, ok := r.events[threadID]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if ev.generation != generation {
		// already superseded by a later PrepareForCurrentThread
		return false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ev.ch:
		return true, nil
	case <-timer.C:
		r.retire(threadID, generation)
		return false, rcerr.ErrTimeout
	}
}

// retire drops threadID's event only if it's still the one tagged with
// generation, so a concurrent PrepareForCurrentThread for the next wait
// isn't clobbered by a timeout racing against it.
func (r *Registry) retire(threadID uint32, generation uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.events[threadID]; ok && ev.generation == generation {
		delete(r.events, threadID)
	}
}
