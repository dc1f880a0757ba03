package external

import "sync/atomic"

// Checkpoint is the checkpoint persistence layer's consumed surface: init,
// delete, restart-from-snapshot, and a read-only current counter. A
// counter >= 0 means this process is itself a restart and should replay
// from that snapshot rather than bootstrap fresh.
type Checkpoint interface {
	InitCheckpoint() error
	DeleteCheckpoint() error
	DoRestart(counter int32) error
	MasterCheckCheckPoint() int32
}

// NoCheckpoint is a no-op Checkpoint for clusters that run without
// checkpointing enabled; MasterCheckCheckPoint always reports "no pending
// restart" (-1). Whether the failure detector runs is decided by
// ClusterConfig.CheckpointingEnabled, not by the Checkpoint supplied.
type NoCheckpoint struct{}

func (NoCheckpoint) InitCheckpoint() error           { return nil }
func (NoCheckpoint) DeleteCheckpoint() error         { return nil }
func (NoCheckpoint) DoRestart(int32) error           { return nil }
func (NoCheckpoint) MasterCheckCheckPoint() int32     { return -1 }

// MemCheckpoint is an in-memory Checkpoint with a mutable current counter;
// cmd/rcmaster uses it when -checkpoint is set.
type MemCheckpoint struct {
	counter atomic.Int32
}

// NewMemCheckpoint returns a Checkpoint whose counter starts at -1 (no
// pending restart).
func NewMemCheckpoint() *MemCheckpoint {
	c := &MemCheckpoint{}
	c.counter.Store(-1)
	return c
}

func (c *MemCheckpoint) InitCheckpoint() error   { return nil }
func (c *MemCheckpoint) DeleteCheckpoint() error { return nil }
func (c *MemCheckpoint) DoRestart(counter int32) error {
	c.counter.Store(counter)
	return nil
}
func (c *MemCheckpoint) MasterCheckCheckPoint() int32 { return c.counter.Load() }

// SetCounter is a test-only helper to simulate a pending restart.
func (c *MemCheckpoint) SetCounter(v int32) { c.counter.Store(v) }
