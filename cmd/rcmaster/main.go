// Command rcmaster boots the master side of a control-plane cluster: it
// dials every configured slave, runs the handshake, and then serves sync
// requests and remote thread creation until it receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dogee-rc/cluster/internal/external"
	"github.com/dogee-rc/cluster/rc"
)

type peerList []rc.PeerAddr

func (p *peerList) String() string { return fmt.Sprintf("%v", *p) }

func (p *peerList) Set(value string) error {
	host, portStr, err := splitHostPort(value)
	if err != nil {
		return err
	}
	*p = append(*p, rc.PeerAddr{Host: host, Port: portStr})
	return nil
}

func splitHostPort(value string) (string, int, error) {
	idx := strings.LastIndex(value, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("expected host:port, got %q", value)
	}
	port, err := strconv.Atoi(value[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", value, err)
	}
	return value[:idx], port, nil
}

func main() {
	var (
		peers      peerList
		self       string
		checkpoint bool
		backend    uint
		cache      uint
	)
	var excludes stringList
	flag.Var(&peers, "peer", "slave control address host:port; repeat once per slave, in node-id order starting at 1")
	flag.StringVar(&self, "self", "", "this master's own advertised control address host:port (becomes node 0)")
	flag.BoolVar(&checkpoint, "checkpoint", false, "enable checkpoint-driven failure detection and restart")
	flag.UintVar(&backend, "backend", 0, "storage backend selector forwarded to slaves")
	flag.UintVar(&cache, "cache", 0, "cache selector forwarded to slaves")
	flag.Var(&excludes, "exclude", "host:port of a peer excluded from this generation (informational; set by the restart facility)")
	flag.Parse()

	if self == "" {
		log.Fatal("rcmaster: -self is required")
	}
	selfHost, selfPort, err := splitHostPort(self)
	if err != nil {
		log.Fatalf("rcmaster: %v", err)
	}
	if len(excludes) > 0 {
		log.Printf("rcmaster: starting new generation excluding: %s", strings.Join(excludes, ", "))
	}

	cfg := rc.ClusterConfig{
		Peers:                append([]rc.PeerAddr{{Host: selfHost, Port: selfPort}}, peers...),
		BackendType:          uint32(backend),
		CacheType:            uint32(cache),
		CheckpointingEnabled: checkpoint,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := external.NewMemStore()
	var ckpt external.Checkpoint = external.NoCheckpoint{}
	if checkpoint {
		ckpt = external.NewMemCheckpoint()
	}

	master, err := rc.RcMaster(ctx, cfg, store, ckpt, external.NoStorage{}, external.NoDataSockets{}, external.GoThreadPool{}, external.OSProcessRestarter{})
	if err != nil {
		log.Fatalf("rcmaster: bootstrap failed: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("rcmaster: shutting down")
	master.Shutdown()
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
