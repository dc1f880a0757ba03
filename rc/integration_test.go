package rc

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/dogee-rc/cluster/internal/external"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestTwoNodeBarrierTripsAcrossTheWire(t *testing.T) {
	masterPort := freePort(t)
	slavePort := freePort(t)

	store := external.NewMemStore()
	const barrierKey = uint64(100)
	store.Set(barrierKey, 0, 2) // threshold 2: one master thread, one slave thread

	cfg := ClusterConfig{
		Peers: []PeerAddr{
			{Host: "127.0.0.1", Port: masterPort},
			{Host: "127.0.0.1", Port: slavePort},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slaveReady := make(chan *SlaveContext, 1)
	slaveErr := make(chan error, 1)
	go func() {
		s, err := RcSlave(ctx, "127.0.0.1:"+strconv.Itoa(slavePort), nil, nil, external.NoCheckpoint{}, external.NoStorage{}, external.NoDataSockets{}, external.GoThreadPool{}, &external.NoopRestarter{})
		if err != nil {
			slaveErr <- err
			return
		}
		slaveReady <- s
	}()

	// Give the slave's listener a moment to bind before the master dials.
	time.Sleep(50 * time.Millisecond)

	master, err := RcMaster(ctx, cfg, store, external.NoCheckpoint{}, external.NoStorage{}, external.NoDataSockets{}, external.GoThreadPool{}, &external.NoopRestarter{})
	if err != nil {
		t.Fatalf("RcMaster: %v", err)
	}
	defer master.Shutdown()

	var slave *SlaveContext
	select {
	case slave = <-slaveReady:
	case err := <-slaveErr:
		t.Fatalf("RcSlave: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RcSlave to bootstrap")
	}
	defer slave.Close()

	masterDone := make(chan bool, 1)
	slaveDone := make(chan bool, 1)

	go func() {
		tid := master.NewThreadID()
		masterDone <- master.EnterBarrier(barrierKey, tid, 2*time.Second)
	}()
	go func() {
		tid := slave.NewThreadID()
		slaveDone <- slave.EnterBarrier(barrierKey, tid, 2*time.Second)
	}()

	timeout := time.After(3 * time.Second)
	gotMaster, gotSlave := false, false
	for !gotMaster || !gotSlave {
		select {
		case ok := <-masterDone:
			if !ok {
				t.Fatal("master's EnterBarrier timed out instead of tripping")
			}
			gotMaster = true
		case ok := <-slaveDone:
			if !ok {
				t.Fatal("slave's EnterBarrier timed out instead of tripping")
			}
			gotSlave = true
		case <-timeout:
			t.Fatal("barrier never tripped across master and slave")
		}
	}
}
