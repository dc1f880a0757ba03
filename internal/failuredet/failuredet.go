// Package failuredet implements the Failure Detector & Restart Coordinator:
// a periodic alive probe, silence-based exclusion, and the coordinated
// whole-cluster restart they trigger (SPEC_FULL.md §4.8).
package failuredet

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/dogee-rc/cluster/internal/external"
	"github.com/dogee-rc/cluster/internal/liveness"
	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/rcerr"
	"github.com/dogee-rc/cluster/internal/transport"

	"github.com/google/uuid"
)

const (
	// ProbeInterval is how often the detector wakes to probe and check
	// silence.
	ProbeInterval = 2 * time.Second
	// SilenceThreshold is how long a slave may go unheard-from before it's
	// added to the exclusion list.
	SilenceThreshold = 5 * time.Second
	// drainDelay gives slaves time to exit after Restart before the
	// process relaunch happens.
	drainDelay = 2 * time.Second
)

// Peer is one slave's connection and address, as known to the detector.
type Peer struct {
	NodeID uint32
	Conn   net.Conn
	Host   string
	Port   int
}

// Detector owns the periodic probe loop and the restart lock. It implements
// listener.RestartTrigger so the Master Listener can route connection
// failures through the same coordinated-restart path as silence detection.
type Detector struct {
	peers      []Peer
	live       *liveness.Table
	checkpoint external.Checkpoint
	restarter  external.ProcessRestarter
	closing    *atomic.Bool

	restartLock atomic.Int32
}

// New returns a Detector over peers, backed by live for silence
// measurement. checkpoint is consulted to decide whether the detector's
// restart reaction is enabled at all (SPEC_FULL.md §4.9: the detector is
// only launched when checkpointing is enabled).
func New(peers []Peer, live *liveness.Table, checkpoint external.Checkpoint, restarter external.ProcessRestarter, closing *atomic.Bool) *Detector {
	return &Detector{peers: peers, live: live, checkpoint: checkpoint, restarter: restarter, closing: closing}
}

// Run blocks, probing every ProbeInterval until ctx is done.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Detector) tick() {
	now := time.Now()
	var silent []external.Exclusion
	for _, p := range d.peers {
		if d.live.SilentSince(p.NodeID, now) > SilenceThreshold {
			silent = append(silent, external.Exclusion{Host: p.Host, Port: p.Port})
		}
	}

	for _, p := range d.peers {
		if err := transport.SendPacket(p.Conn, protocol.CommandPacket{Cmd: protocol.Alive}, nil); err != nil {
			log.Printf("failuredet: alive probe to node %d failed: %v", p.NodeID, err)
		}
	}

	if len(silent) > 0 && !d.closing.Load() {
		reason := fmt.Errorf("%w: %d node(s) silent past %s", rcerr.ErrNodeSilent, len(silent), SilenceThreshold)
		log.Printf("failuredet: %v, triggering restart", reason)
		d.RestartCluster(silent)
	}
}

// TriggerRestart implements listener.RestartTrigger. It restarts the
// cluster with no pre-known exclusions beyond whatever send failures occur
// while broadcasting Restart, but only when checkpointing is enabled and
// the cluster isn't already shutting down (SPEC_FULL.md §4.7, §7).
func (d *Detector) TriggerRestart(reason error) {
	if d.closing.Load() {
		return
	}
	if d.checkpoint == nil {
		log.Printf("failuredet: listener error %v observed with checkpointing disabled; not restarting", reason)
		return
	}
	log.Printf("failuredet: listener error triggered restart: %v", reason)
	d.RestartCluster(nil)
}

// RestartCluster is the single entry point for a coordinated whole-cluster
// restart. Only the first concurrent caller proceeds; the restart lock is
// never released, since a successful restart replaces the process
// (SPEC_FULL.md §9).
func (d *Detector) RestartCluster(excludes []external.Exclusion) {
	if !d.restartLock.CompareAndSwap(0, 1) {
		log.Printf("failuredet: %v, ignoring", rcerr.ErrRestartInProgress)
		return
	}

	generation := uuid.NewString()
	log.Printf("failuredet: restart generation %s: broadcasting Restart to %d peer(s)", generation, len(d.peers))

	for _, p := range d.peers {
		if err := transport.SendPacket(p.Conn, protocol.CommandPacket{Cmd: protocol.Restart}, nil); err != nil {
			log.Printf("failuredet: restart generation %s: send to node %d failed, excluding %s:%d: %v",
				generation, p.NodeID, p.Host, p.Port, err)
			excludes = append(excludes, external.Exclusion{Host: p.Host, Port: p.Port})
		}
	}

	time.Sleep(drainDelay)

	if err := d.restarter.RestartCurrentProcess(excludes); err != nil {
		log.Printf("failuredet: restart generation %s: relaunch failed: %v", generation, err)
	}
}
