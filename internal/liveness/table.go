// Package liveness tracks the last time each slave was heard from, backing
// the failure detector's 5-second silence threshold (SPEC_FULL.md §3, §4.8).
package liveness

import (
	"sync"
	"time"
)

// Table is last_seen[node_id], initialized to the master's start time for
// every slave and updated on every received packet (not just Alive
// replies -- any traffic counts as liveness).
type Table struct {
	mu       sync.Mutex
	lastSeen map[uint32]time.Time
}

// New initializes last_seen for node ids 1..n-1 to start.
func New(n int, start time.Time) *Table {
	t := &Table{lastSeen: make(map[uint32]time.Time, n)}
	for i := 1; i < n; i++ {
		t.lastSeen[uint32(i)] = start
	}
	return t
}

// Touch records that nodeID was just heard from.
func (t *Table) Touch(nodeID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[nodeID] = time.Now()
}

// SilentSince reports how long it's been since nodeID was last heard from.
func (t *Table) SilentSince(nodeID uint32, now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastSeen[nodeID]
	if !ok {
		return 0
	}
	return now.Sub(last)
}

// SilentNodes returns every node id whose last_seen is older than
// threshold as of now, in ascending node-id order.
func (t *Table) SilentNodes(threshold time.Duration, now time.Time) []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var silent []uint32
	for id, last := range t.lastSeen {
		if now.Sub(last) > threshold {
			silent = append(silent, id)
		}
	}
	sortUint32(silent)
	return silent
}

func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
