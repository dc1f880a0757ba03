package rc

import (
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/rcerr"
	"github.com/dogee-rc/cluster/internal/wakeup"
)

// SyncSite is the shared machinery behind every blocking sync call,
// whether it's issued by the master's own threads (applied locally) or by
// a slave's threads (sent over the wire to the master). Factoring it out
// once means MasterContext and SlaveContext agree on suspension semantics
// by construction (SPEC_FULL.md §5).
type SyncSite struct {
	wake         *wakeup.Registry
	nextThreadID atomic.Uint32
	send         func(protocol.CommandPacket) error
}

func newSyncSite(send func(protocol.CommandPacket) error) *SyncSite {
	return &SyncSite{wake: wakeup.New(), send: send}
}

// NewThreadID allocates the next process-local thread id. It is exported
// so CreateThread handlers on both sides can mint an id for a freshly
// spawned thread before it makes its first sync call.
func (s *SyncSite) NewThreadID() uint32 {
	return s.nextThreadID.Add(1)
}

// EnterBarrier blocks the calling thread until the barrier at okey trips,
// or timeout elapses. Returns false on timeout without error (the only
// user-visible signal, per SPEC_FULL.md §7).
func (s *SyncSite) EnterBarrier(okey uint64, threadID uint32, timeout time.Duration) bool {
	return s.suspend(protocol.EnterBarrier, okey, threadID, timeout)
}

// EnterSemaphore blocks the calling thread until it acquires the
// semaphore at okey, or timeout elapses.
func (s *SyncSite) EnterSemaphore(okey uint64, threadID uint32, timeout time.Duration) bool {
	return s.suspend(protocol.EnterSemaphore, okey, threadID, timeout)
}

// WaitForEvent blocks the calling thread until the event at okey is
// signaled, or timeout elapses.
func (s *SyncSite) WaitForEvent(okey uint64, threadID uint32, timeout time.Duration) bool {
	return s.suspend(protocol.WaitForEvent, okey, threadID, timeout)
}

// suspend is the common body of every blocking sync call: reset the
// caller's wakeup event, send or locally apply the request, then block on
// the event with the caller-supplied timeout (SPEC_FULL.md §5).
func (s *SyncSite) suspend(cmd protocol.Command, okey uint64, threadID uint32, timeout time.Duration) bool {
	gen := s.wake.PrepareForCurrentThread(threadID)
	err := s.send(protocol.CommandPacket{Cmd: cmd, Param: threadID, Param3: okey})
	if err != nil {
		log.Printf("rc: sync site: sending %s failed: %v", cmd, err)
		s.wake.DeleteCurrentThread(threadID)
		return false
	}
	ok, err := s.wake.WaitCurrent(threadID, gen, timeout)
	if err != nil && !errors.Is(err, rcerr.ErrTimeout) {
		log.Printf("rc: sync site: waiting on %s failed: %v", cmd, err)
	}
	return ok
}

// LeaveSemaphore releases one unit of the semaphore at okey. It does not
// block and has no return-value contract beyond the send error.
func (s *SyncSite) LeaveSemaphore(okey uint64) error {
	return s.send(protocol.CommandPacket{Cmd: protocol.LeaveSemaphore, Param3: okey})
}

// SetEvent signals the event at okey.
func (s *SyncSite) SetEvent(okey uint64) error {
	return s.send(protocol.CommandPacket{Cmd: protocol.SetEvent, Param3: okey})
}

// ResetEvent clears the event at okey without waking anybody.
func (s *SyncSite) ResetEvent(okey uint64) error {
	return s.send(protocol.CommandPacket{Cmd: protocol.ResetEvent, Param3: okey})
}
