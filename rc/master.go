package rc

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/dogee-rc/cluster/internal/external"
	"github.com/dogee-rc/cluster/internal/failuredet"
	"github.com/dogee-rc/cluster/internal/handshake"
	"github.com/dogee-rc/cluster/internal/liveness"
	"github.com/dogee-rc/cluster/internal/listener"
	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/rcerr"
	"github.com/dogee-rc/cluster/internal/spawn"
	"github.com/dogee-rc/cluster/internal/syncmgr"
	"github.com/dogee-rc/cluster/internal/transport"
)

// MasterContext is the process-wide handle a master program holds: the
// slave connection table, the Sync Manager, the liveness table, the
// listener and failure detector, and the external collaborators. There
// are no package-level singletons; everything hangs off this struct
// (SPEC_FULL.md §9).
type MasterContext struct {
	*SyncSite

	cfg   ClusterConfig
	conns map[uint32]net.Conn

	mgr      *syncmgr.Manager
	live     *liveness.Table
	lsnr     *listener.Listener
	detector *failuredet.Detector

	store       external.Store
	checkpoint  external.Checkpoint
	storage     external.Storage
	dataSockets external.DataSockets
	pool        external.ThreadPool
	restarter   external.ProcessRestarter

	closing atomic.Bool
}

// RcMaster bootstraps the master side of the cluster: for each slave it
// dials, runs the handshake, brings up storage and the Sync Manager,
// launches the Master Listener, and -- iff checkpointing is enabled --
// the failure detector. Once bootstrap completes, if the checkpoint module
// reports a pending restart (counter >= 0), this process is itself a
// restart and replays from that snapshot via checkpoint.DoRestart before
// returning (SPEC_FULL.md §4.9); restarter.RestartCurrentProcess is a
// distinct collaborator, used only by the failure detector's
// exclusion-based relaunch.
func RcMaster(
	ctx context.Context,
	cfg ClusterConfig,
	store external.Store,
	checkpoint external.Checkpoint,
	storage external.Storage,
	dataSockets external.DataSockets,
	pool external.ThreadPool,
	restarter external.ProcessRestarter,
) (*MasterContext, error) {
	m := &MasterContext{
		cfg:         cfg,
		conns:       make(map[uint32]net.Conn, len(cfg.Peers)-1),
		store:       store,
		checkpoint:  checkpoint,
		storage:     storage,
		dataSockets: dataSockets,
		pool:        pool,
		restarter:   restarter,
	}
	m.SyncSite = newSyncSite(m.applyLocal)

	if err := checkpoint.InitCheckpoint(); err != nil {
		return nil, fmt.Errorf("rc: master: checkpoint init failed: %w", err)
	}

	for i := 1; i < len(cfg.Peers); i++ {
		nodeID := uint32(i)
		peer := cfg.Peers[i]
		conn, err := m.handshakeWithSlave(ctx, nodeID, peer)
		if err != nil {
			m.closeAll()
			return nil, fmt.Errorf("rc: master: handshake with node %d (%s:%d) failed: %w", nodeID, peer.Host, peer.Port, err)
		}
		m.conns[nodeID] = conn
	}

	if err := storage.InitStorage(cfg.BackendType, cfg.CacheType); err != nil {
		m.closeAll()
		return nil, fmt.Errorf("rc: master: storage init failed: %w: %v", rcerr.ErrStorageInit, err)
	}

	m.mgr = syncmgr.New(store, m)
	m.live = liveness.New(len(cfg.Peers), time.Now())

	var peers []failuredet.Peer
	for i := 1; i < len(cfg.Peers); i++ {
		nodeID := uint32(i)
		peers = append(peers, failuredet.Peer{
			NodeID: nodeID,
			Conn:   m.conns[nodeID],
			Host:   cfg.Peers[i].Host,
			Port:   cfg.Peers[i].Port,
		})
	}
	m.detector = failuredet.New(peers, m.live, checkpointOrNil(cfg, checkpoint), restarter, &m.closing)
	m.lsnr = listener.New(m.mgr, m.live, m.detector)

	for i := 1; i < len(cfg.Peers); i++ {
		nodeID := uint32(i)
		m.lsnr.Serve(nodeID, m.conns[nodeID])
	}

	if cfg.CheckpointingEnabled {
		go m.detector.Run(ctx)
	}

	hosts, ports := peerSlices(cfg.Peers)
	if err := dataSockets.InitDataConnections(hosts, ports, 0); err != nil {
		m.closeAll()
		return nil, fmt.Errorf("rc: master: data socket init failed: %w", err)
	}
	if err := dataSockets.WaitReady(); err != nil {
		m.closeAll()
		return nil, fmt.Errorf("rc: master: data socket readiness failed: %w: %v", rcerr.ErrDataSocketTimeout, err)
	}

	if counter := checkpoint.MasterCheckCheckPoint(); counter >= 0 {
		log.Printf("rc: master: replaying from checkpoint %d", counter)
		if err := checkpoint.DoRestart(counter); err != nil {
			m.closeAll()
			return nil, fmt.Errorf("rc: master: checkpoint restart failed: %w", err)
		}
	}

	log.Printf("rc: master: cluster of %d node(s) bootstrapped", len(cfg.Peers))
	return m, nil
}

// checkpointOrNil suppresses the failure detector's restart reaction when
// checkpointing is disabled, regardless of which Checkpoint implementation
// was supplied.
func checkpointOrNil(cfg ClusterConfig, checkpoint external.Checkpoint) external.Checkpoint {
	if !cfg.CheckpointingEnabled {
		return nil
	}
	return checkpoint
}

func (m *MasterContext) handshakeWithSlave(ctx context.Context, nodeID uint32, peer PeerAddr) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()
	conn, err := transport.Dial(dialCtx, fmt.Sprintf("%s:%d", peer.Host, peer.Port))
	if err != nil {
		return nil, err
	}

	if _, err := handshake.ReadSlaveInfo(conn); err != nil {
		conn.Close()
		return nil, err
	}

	mi := handshake.MasterInfo{
		Magic:        handshake.MagicMaster,
		NumMemServer: uint32(len(m.cfg.MemServers)),
		NumNodes:     uint32(len(m.cfg.Peers)),
		NodeID:       nodeID,
		LocalPort:    int32(m.cfg.Peers[0].Port),
		BackendType:  m.cfg.BackendType,
		CacheType:    m.cfg.CacheType,
		Checkpoint:   m.checkpoint.MasterCheckCheckPoint(),
	}
	if err := handshake.WriteMasterInfo(conn, mi); err != nil {
		conn.Close()
		return nil, err
	}

	for i := 1; i < len(m.cfg.Peers); i++ {
		if err := handshake.WriteAddressRecord(conn, m.cfg.Peers[i].Host, uint32(m.cfg.Peers[i].Port)); err != nil {
			conn.Close()
			return nil, err
		}
	}
	for _, ms := range m.cfg.MemServers {
		if err := handshake.WriteAddressRecord(conn, ms.Host, uint32(ms.Port)); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

// WakeThread implements syncmgr.Waker: node 0 is the master itself
// (local wakeup registry), any other node gets a WakeSync packet on its
// control socket.
func (m *MasterContext) WakeThread(node, thread uint32) {
	if node == 0 {
		m.wake.SetLocal(thread)
		return
	}
	conn, ok := m.conns[node]
	if !ok {
		log.Printf("rc: master: wake for unknown node %d ignored", node)
		return
	}
	if err := transport.SendPacket(conn, protocol.CommandPacket{Cmd: protocol.WakeSync, Param: thread}, nil); err != nil {
		log.Printf("rc: master: WakeSync to node %d failed: %v", node, err)
	}
}

// applyLocal is the master's own SyncSite.send: its own threads' sync
// calls never leave the process.
func (m *MasterContext) applyLocal(pkt protocol.CommandPacket) error {
	return m.mgr.Dispatch(0, pkt)
}

// CreateThread spawns a remote thread on node with no inline payload.
func (m *MasterContext) CreateThread(node uint32, param, param2 uint32, param3 uint64) error {
	conn, ok := m.conns[node]
	if !ok {
		return fmt.Errorf("rc: master: CreateThread: unknown node %d", node)
	}
	return spawn.CreateThread(conn, param, param2, param3)
}

// CreateThreadWithPayload spawns a remote thread on node carrying an
// inline payload of up to protocol.MaxInlinePayload bytes.
func (m *MasterContext) CreateThreadWithPayload(node uint32, param, param2 uint32, param3 uint64, payload []byte) error {
	conn, ok := m.conns[node]
	if !ok {
		return fmt.Errorf("rc: master: CreateThreadWithPayload: unknown node %d", node)
	}
	return spawn.CreateThreadWithPayload(conn, param, param2, param3, payload)
}

// Shutdown gracefully tears the cluster down: disables the failure
// detector's restart reaction, sends Close to every slave, deletes the
// checkpoint, destroys the Sync Manager, and closes storage/data sockets
// (SPEC_FULL.md §4.9).
func (m *MasterContext) Shutdown() {
	m.closing.Store(true)
	for nodeID, conn := range m.conns {
		if err := transport.SendPacket(conn, protocol.CommandPacket{Cmd: protocol.Close}, nil); err != nil {
			log.Printf("rc: master: Close to node %d failed: %v", nodeID, err)
		}
	}
	if err := m.checkpoint.DeleteCheckpoint(); err != nil {
		log.Printf("rc: master: DeleteCheckpoint failed: %v", err)
	}
	if m.mgr != nil {
		m.mgr.Destroy()
	}
	if err := m.dataSockets.Close(); err != nil {
		log.Printf("rc: master: data socket close failed: %v", err)
	}
	if err := m.storage.CloseStorage(); err != nil {
		log.Printf("rc: master: storage close failed: %v", err)
	}
	m.pool.Shutdown()
	m.closeAll()
}

func (m *MasterContext) closeAll() {
	for _, conn := range m.conns {
		conn.Close()
	}
}

func peerSlices(peers []PeerAddr) ([]string, []int) {
	hosts := make([]string, len(peers))
	ports := make([]int, len(peers))
	for i, p := range peers {
		hosts[i] = p.Host
		ports[i] = p.Port
	}
	return hosts, ports
}
