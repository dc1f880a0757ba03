// Package rc is the cluster control plane's public API: RcMaster/RcSlave
// bootstrap, the blocking sync primitive calls (EnterBarrier,
// EnterSemaphore, WaitForEvent, and their non-blocking counterparts), and
// the remote thread spawner (SPEC_FULL.md §4.9, §2).
package rc

import "time"

// PeerAddr is one (host, port) control-socket address.
type PeerAddr struct {
	Host string
	Port int
}

// ClusterConfig describes the cluster shape a master bootstraps: node 0 is
// always the master itself, Peers[i] (i >= 1) is slave i's control address.
type ClusterConfig struct {
	// Peers holds every node's control address, including index 0 (the
	// master); RcMaster dials Peers[1:] and uses Peers[0] only to answer
	// MasterInfo.LocalPort queries when a slave builds its own table.
	Peers []PeerAddr

	// BackendType and CacheType are opaque selectors forwarded to slaves
	// in MasterInfo, interpreted by the external storage collaborator.
	BackendType uint32
	CacheType   uint32

	// CheckpointingEnabled gates the failure detector: it only runs, and
	// only reacts to silence/listener errors, when true (SPEC_FULL.md
	// §4.9).
	CheckpointingEnabled bool

	// NumMemServer storage backend records to relay during the handshake.
	MemServers []PeerAddr
}

// DefaultDialTimeout bounds how long RcMaster waits to connect to each
// slave during bootstrap; the handshake that follows is not bounded by it.
const DefaultDialTimeout = 10 * time.Second
