// Package syncmgr implements the master-resident registry of named sync
// primitives -- barriers, counting semaphores, and auto/manual-reset
// events -- and their per-primitive wait sets (SPEC_FULL.md §4.6).
package syncmgr

import (
	"fmt"
	"sync"

	"github.com/dogee-rc/cluster/internal/external"
	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/rcerr"
)

// Waker delivers a wake to a suspended (node, thread) pair. The master's
// implementation checks whether node is the master itself (local wakeup
// registry) or a slave (send WakeSync over that node's control socket);
// see rc.MasterContext.WakeThread for the concrete wiring.
type Waker interface {
	WakeThread(node, thread uint32)
}

// Manager is the coarse-grained-locked registry: one mutex guards every
// operation, including the outbound wake calls, so that a waiter is always
// either woken or enqueued before the next message on the same primitive
// is processed (SPEC_FULL.md §5, invariant I3).
type Manager struct {
	mu    sync.Mutex
	store external.Store
	waker Waker
	prims map[uint64]primitive
}

// New returns an empty Sync Manager backed by store for lazy
// materialization and waker for delivering wakes.
func New(store external.Store, waker Waker) *Manager {
	return &Manager{store: store, waker: waker, prims: make(map[uint64]primitive)}
}

// Destroy releases every materialized primitive, at cluster shutdown.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prims = make(map[uint64]primitive)
}

func (m *Manager) wake(w waiter) {
	m.waker.WakeThread(w.node, w.thread)
}

// EnterBarrier handles RcCmdEnterBarrier. It materializes the barrier if
// absent (reading threshold from store slot 0), increments count, and
// either trips the barrier (waking every waiter plus the caller and
// resetting count) or enqueues the caller.
func (m *Manager) EnterBarrier(okey uint64, srcNode, srcThread uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.barrierFor(okey)
	b.count++
	if b.count >= b.threshold {
		b.count = 0
		woken := b.waitlist
		b.waitlist = nil
		m.wake(waiter{srcNode, srcThread})
		for _, w := range woken {
			m.wake(w)
		}
		return
	}
	b.waitlist = append(b.waitlist, waiter{srcNode, srcThread})
}

// EnterSemaphore handles RcCmdEnterSemaphore: decrement value; wake the
// caller if the result is still >= 0, otherwise enqueue it.
func (m *Manager) EnterSemaphore(okey uint64, srcNode, srcThread uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.semaphoreFor(okey)
	s.value--
	if s.value >= 0 {
		m.wake(waiter{srcNode, srcThread})
		return
	}
	s.waitqueue = append(s.waitqueue, waiter{srcNode, srcThread})
}

// LeaveSemaphore handles RcCmdLeaveSemaphore: increment value, and if it's
// non-negative and the queue is non-empty, wake exactly the head of the
// queue -- never more than one waiter per call, which is what gives a
// semaphore with initial=1 mutex semantics.
func (m *Manager) LeaveSemaphore(okey uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.semaphoreFor(okey)
	s.value++
	if s.value >= 0 && len(s.waitqueue) > 0 {
		head := s.waitqueue[0]
		s.waitqueue = s.waitqueue[1:]
		m.wake(head)
	}
}

// WaitForEvent handles RcCmdWaitForEvent: if signaled, wake the caller
// immediately (clearing signaled first if auto-reset); otherwise enqueue.
func (m *Manager) WaitForEvent(okey uint64, srcNode, srcThread uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.eventFor(okey)
	if e.signaled {
		if e.autoReset {
			e.signaled = false
		}
		m.wake(waiter{srcNode, srcThread})
		return
	}
	e.waitqueue = append(e.waitqueue, waiter{srcNode, srcThread})
}

// SetEvent handles RcCmdSetEvent. Auto-reset: wake exactly one FIFO waiter
// if any are queued (leaving signaled false), else leave signaled true for
// the next arrival. Manual-reset: wake every queued waiter and leave
// signaled true so later arrivals return immediately until Reset.
func (m *Manager) SetEvent(okey uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.eventFor(okey)
	e.signaled = true
	if e.autoReset {
		if len(e.waitqueue) == 0 {
			return
		}
		head := e.waitqueue[0]
		e.waitqueue = e.waitqueue[1:]
		e.signaled = false
		m.wake(head)
		return
	}
	woken := e.waitqueue
	e.waitqueue = nil
	for _, w := range woken {
		m.wake(w)
	}
}

// ResetEvent handles RcCmdResetEvent: clear signaled, wake nobody.
func (m *Manager) ResetEvent(okey uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.eventFor(okey)
	e.signaled = false
}

// Dispatch routes one sync command packet from srcNode into the matching
// operation above. It is the single logic shared by the Master Listener's
// per-connection receive loop and the master's own local sync calls (which
// never cross the network), so both paths agree by construction. Alive
// and every other command are out of scope here; callers handle Alive via
// the liveness table directly and log-and-skip anything else.
func (m *Manager) Dispatch(srcNode uint32, pkt protocol.CommandPacket) error {
	switch pkt.Cmd {
	case protocol.EnterBarrier:
		m.EnterBarrier(pkt.Param3, srcNode, pkt.Param)
	case protocol.EnterSemaphore:
		m.EnterSemaphore(pkt.Param3, srcNode, pkt.Param)
	case protocol.LeaveSemaphore:
		m.LeaveSemaphore(pkt.Param3)
	case protocol.WaitForEvent:
		m.WaitForEvent(pkt.Param3, srcNode, pkt.Param)
	case protocol.SetEvent:
		m.SetEvent(pkt.Param3)
	case protocol.ResetEvent:
		m.ResetEvent(pkt.Param3)
	default:
		return fmt.Errorf("%w: %s", rcerr.ErrUnknownCommand, pkt.Cmd)
	}
	return nil
}

// barrierFor lazily materializes the barrier at okey, panicking (as a
// programmer error, not a runtime condition) only if a different kind was
// already materialized there -- a protocol/client bug, not a cluster
// fault. Neither the master listener nor the master's local sync path
// recovers the panic.
func (m *Manager) barrierFor(okey uint64) *barrier {
	if p, ok := m.prims[okey]; ok {
		b, ok := p.(*barrier)
		if !ok {
			panic(fmt.Sprintf("syncmgr: key %d already materialized as %s, not barrier", okey, p.kind()))
		}
		return b
	}
	threshold := int32(m.store.Get(okey, 0))
	b := &barrier{threshold: threshold}
	m.prims[okey] = b
	return b
}

func (m *Manager) semaphoreFor(okey uint64) *semaphore {
	if p, ok := m.prims[okey]; ok {
		s, ok := p.(*semaphore)
		if !ok {
			panic(fmt.Sprintf("syncmgr: key %d already materialized as %s, not semaphore", okey, p.kind()))
		}
		return s
	}
	initial := int32(m.store.Get(okey, 0))
	s := &semaphore{initial: initial, value: initial}
	m.prims[okey] = s
	return s
}

func (m *Manager) eventFor(okey uint64) *event {
	if p, ok := m.prims[okey]; ok {
		e, ok := p.(*event)
		if !ok {
			panic(fmt.Sprintf("syncmgr: key %d already materialized as %s, not event", okey, p.kind()))
		}
		return e
	}
	e := &event{
		autoReset: m.store.Get(okey, 0) != 0,
		signaled:  m.store.Get(okey, 2) != 0,
	}
	m.prims[okey] = e
	return e
}
