// Package listener implements the Master Listener: one receive goroutine
// per slave control socket, dispatching sync commands into the Sync
// Manager and liveness probes into the liveness table (SPEC_FULL.md §4.7).
//
// The source multiplexes every slave socket with a single select(2) loop;
// this is replaced with the idiomatic Go equivalent -- one goroutine per
// connection -- which preserves the same dispatch contract (including
// per-connection FIFO ordering) without the portability questions a manual
// maxfd computation raises (SPEC_FULL.md §9). The raw select(2) path is
// still implemented and tested directly in internal/transport for parity
// with the spec's literal wording.
package listener

import (
	"errors"
	"log"
	"net"
	"sync"

	"github.com/dogee-rc/cluster/internal/liveness"
	"github.com/dogee-rc/cluster/internal/protocol"
	"github.com/dogee-rc/cluster/internal/rcerr"
	"github.com/dogee-rc/cluster/internal/syncmgr"
	"github.com/dogee-rc/cluster/internal/transport"
)

// RestartTrigger is invoked when a slave connection fails; the caller
// decides whether checkpointing is enabled and the cluster isn't already
// closing before actually restarting (SPEC_FULL.md §4.7, §7).
type RestartTrigger interface {
	TriggerRestart(reason error)
}

// Listener owns one receive goroutine per slave control socket.
type Listener struct {
	mgr     *syncmgr.Manager
	live    *liveness.Table
	restart RestartTrigger

	wg sync.WaitGroup
}

// New returns a Listener that will dispatch into mgr, record liveness into
// live, and ask restart to decide on connection failure.
func New(mgr *syncmgr.Manager, live *liveness.Table, restart RestartTrigger) *Listener {
	return &Listener{mgr: mgr, live: live, restart: restart}
}

// Serve launches the receive goroutine for one slave's control connection.
// nodeID identifies the slave for liveness bookkeeping and as the "src
// node" on every sync command it sends.
func (l *Listener) Serve(nodeID uint32, conn net.Conn) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.serveLoop(nodeID, conn)
	}()
}

// Wait blocks until every launched receive goroutine has returned.
func (l *Listener) Wait() {
	l.wg.Wait()
}

func (l *Listener) serveLoop(nodeID uint32, conn net.Conn) {
	for {
		pkt, err := transport.RecvPacket(conn)
		if err != nil {
			if err == rcerr.ErrShortRead || err == rcerr.ErrConnClosed {
				log.Printf("listener: node %d control socket closed: %v", nodeID, err)
			} else {
				log.Printf("listener: node %d recv error: %v", nodeID, err)
			}
			l.restart.TriggerRestart(err)
			return
		}
		l.live.Touch(nodeID)
		l.dispatch(nodeID, pkt)
	}
}

func (l *Listener) dispatch(nodeID uint32, pkt protocol.CommandPacket) {
	if pkt.Cmd == protocol.Alive {
		// liveness already touched above; the probe reply carries no
		// further state to act on.
		return
	}
	if err := l.mgr.Dispatch(nodeID, pkt); err != nil {
		if errors.Is(err, rcerr.ErrUnknownCommand) {
			log.Printf("listener: node %d sent unexpected command %s; ignoring", nodeID, pkt.Cmd)
		} else {
			log.Printf("listener: node %d dispatch error: %v", nodeID, err)
		}
	}
}
