package rc

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/dogee-rc/cluster/internal/external"
	"github.com/dogee-rc/cluster/internal/handshake"
	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/rcerr"
	"github.com/dogee-rc/cluster/internal/transport"
)

// SlaveContext is a slave process's handle: its one control connection to
// the master, the address table the handshake delivered, and the external
// collaborators the slave loop drives thread creation through
// (SPEC_FULL.md §9).
type SlaveContext struct {
	*SyncSite

	nodeID     uint32
	masterConn net.Conn
	peers      []handshake.PeerAddress

	checkpoint external.Checkpoint

	storage     external.Storage
	dataSockets external.DataSockets
	pool        external.ThreadPool
	restarter   external.ProcessRestarter

	threadEntry       external.ThreadEntry
	objectThreadEntry external.ObjectThreadEntry

	done chan struct{}
	wg   sync.WaitGroup
}

// RcSlave listens on listenAddr, accepts the master's single control
// connection, runs the handshake, brings up storage and the data-socket
// mesh, and launches the slave loop. threadEntry/objectThreadEntry are the
// user-visible callbacks CreateThread ultimately invokes.
func RcSlave(
	ctx context.Context,
	listenAddr string,
	threadEntry external.ThreadEntry,
	objectThreadEntry external.ObjectThreadEntry,
	checkpoint external.Checkpoint,
	storage external.Storage,
	dataSockets external.DataSockets,
	pool external.ThreadPool,
	restarter external.ProcessRestarter,
) (*SlaveContext, error) {
	ln, err := transport.Listen(ctx, listenAddr)
	if err != nil {
		return nil, fmt.Errorf("rc: slave: listen on %s failed: %w", listenAddr, err)
	}
	defer ln.Close()

	conn, err := transport.Accept(ln)
	if err != nil {
		return nil, fmt.Errorf("rc: slave: accept failed: %w", err)
	}

	if err := handshake.WriteSlaveInfo(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rc: slave: handshake send failed: %w", err)
	}
	mi, err := handshake.ReadMasterInfo(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rc: slave: handshake recv failed: %w", err)
	}

	masterHost, err := handshake.PeerHostFromConn(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rc: slave: inferring master address failed: %w", err)
	}
	peers := make([]handshake.PeerAddress, mi.NumNodes)
	peers[0] = handshake.PeerAddress{Host: masterHost, Port: uint32(mi.LocalPort)}
	for i := uint32(1); i < mi.NumNodes; i++ {
		rec, err := handshake.ReadAddressRecord(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("rc: slave: reading peer record %d failed: %w", i, err)
		}
		peers[i] = handshake.PeerAddress{Host: rec.Host, Port: rec.Port}
	}
	memServers := make([]handshake.PeerAddress, mi.NumMemServer)
	for i := uint32(0); i < mi.NumMemServer; i++ {
		rec, err := handshake.ReadAddressRecord(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("rc: slave: reading storage record %d failed: %w", i, err)
		}
		memServers[i] = handshake.PeerAddress{Host: rec.Host, Port: rec.Port}
	}

	if err := checkpoint.InitCheckpoint(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rc: slave: checkpoint init failed: %w", err)
	}

	if err := storage.InitStorage(mi.BackendType, mi.CacheType); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rc: slave: storage init failed: %w: %v", rcerr.ErrStorageInit, err)
	}

	hosts := make([]string, len(peers))
	ports := make([]int, len(peers))
	for i, p := range peers {
		hosts[i] = p.Host
		ports[i] = int(p.Port)
	}
	if err := dataSockets.InitDataConnections(hosts, ports, mi.NodeID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rc: slave: data socket init failed: %w", err)
	}
	if err := dataSockets.WaitReady(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rc: slave: data socket readiness failed: %w: %v", rcerr.ErrDataSocketTimeout, err)
	}

	if mi.Checkpoint >= 0 {
		log.Printf("rc: slave: node %d replaying from checkpoint %d", mi.NodeID, mi.Checkpoint)
		if err := checkpoint.DoRestart(mi.Checkpoint); err != nil {
			conn.Close()
			return nil, fmt.Errorf("rc: slave: checkpoint restart failed: %w", err)
		}
	}

	s := &SlaveContext{
		nodeID:            mi.NodeID,
		masterConn:        conn,
		peers:             peers,
		checkpoint:        checkpoint,
		storage:           storage,
		dataSockets:       dataSockets,
		pool:              pool,
		restarter:         restarter,
		threadEntry:       threadEntry,
		objectThreadEntry: objectThreadEntry,
		done:              make(chan struct{}),
	}
	s.SyncSite = newSyncSite(s.sendToMaster)

	s.wg.Add(1)
	go s.loop()

	log.Printf("rc: slave: node %d bootstrapped, master at %s:%d", mi.NodeID, peers[0].Host, peers[0].Port)
	return s, nil
}

// NodeID is this slave's cluster-assigned node id.
func (s *SlaveContext) NodeID() uint32 { return s.nodeID }

// Peers returns the full address table the handshake delivered, index 0
// being the master.
func (s *SlaveContext) Peers() []handshake.PeerAddress { return s.peers }

func (s *SlaveContext) sendToMaster(pkt protocol.CommandPacket) error {
	return transport.SendPacket(s.masterConn, pkt, nil)
}

// Wait blocks until the slave loop has exited (Close received, or a fatal
// transport error).
func (s *SlaveContext) Wait() {
	s.wg.Wait()
}

// Close tears down the slave's storage and data sockets; the slave loop
// itself exits on receiving a Close command or hitting a fatal transport
// error, not via this method.
func (s *SlaveContext) Close() {
	if err := s.dataSockets.Close(); err != nil {
		log.Printf("rc: slave: data socket close failed: %v", err)
	}
	if err := s.storage.CloseStorage(); err != nil {
		log.Printf("rc: slave: storage close failed: %v", err)
	}
	s.pool.Shutdown()
}

// loop is the single receive goroutine on the master control socket
// (SPEC_FULL.md §4.4). A transport error here is fatal to the slave.
func (s *SlaveContext) loop() {
	defer s.wg.Done()
	defer close(s.done)
	for {
		pkt, err := transport.RecvPacket(s.masterConn)
		if err != nil {
			log.Printf("rc: slave: control socket error, exiting loop: %v", err)
			return
		}
		if !s.dispatch(pkt) {
			return
		}
	}
}

// dispatch handles one command packet; it returns false when the loop
// should exit (Close, or an unrecoverable transport error while draining
// an oversize payload).
func (s *SlaveContext) dispatch(pkt protocol.CommandPacket) bool {
	switch pkt.Cmd {
	case protocol.Close:
		log.Printf("rc: slave: received Close")
		return false

	case protocol.CreateThread:
		return s.handleCreateThread(pkt)

	case protocol.WakeSync:
		s.wake.SetLocal(pkt.Param)

	case protocol.Alive:
		if err := transport.SendPacket(s.masterConn, pkt, nil); err != nil {
			log.Printf("rc: slave: echoing Alive failed: %v", err)
			return false
		}

	case protocol.Restart:
		log.Printf("rc: slave: received Restart, relaunching")
		if err := s.restarter.RestartCurrentProcess(nil); err != nil {
			log.Printf("rc: slave: restart relaunch failed: %v", err)
		}
		return false

	default:
		log.Printf("rc: slave: unhandled command %s, skipping", pkt.Cmd)
	}
	return true
}

func (s *SlaveContext) handleCreateThread(pkt protocol.CommandPacket) bool {
	if pkt.Param4 == 0 {
		entry := s.threadEntry
		param, param2, param3 := pkt.Param, pkt.Param2, pkt.Param3
		s.pool.Submit(func() { entry(param, param2, param3) })
		return true
	}

	if pkt.Param4 > protocol.MaxInlinePayload {
		log.Printf("rc: slave: CreateThread payload %d exceeds %d, draining and dropping", pkt.Param4, protocol.MaxInlinePayload)
		if err := transport.DrainPayload(s.masterConn, pkt.Param4); err != nil {
			log.Printf("rc: slave: draining oversize payload failed, closing: %v", err)
			return false
		}
		return true
	}

	buf, err := transport.RecvPayload(s.masterConn, pkt.Param4)
	if err != nil {
		log.Printf("rc: slave: reading CreateThread payload failed: %v", err)
		return false
	}
	entry := s.objectThreadEntry
	param, param2, param3 := pkt.Param, pkt.Param2, pkt.Param3
	s.pool.Submit(func() { entry(param, param2, param3, buf) })
	return true
}
