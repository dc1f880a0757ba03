// Command rcslave boots the slave side of a control-plane cluster: it
// listens for the master's single control connection, runs the handshake,
// and then services sync requests and remote thread creation until the
// master sends Close or the control socket errors out.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dogee-rc/cluster/internal/external"
	"github.com/dogee-rc/cluster/rc"
)

func main() {
	var listenAddr string
	flag.StringVar(&listenAddr, "listen", "", "this slave's control address to listen on, host:port")
	flag.Parse()

	if listenAddr == "" {
		log.Fatal("rcslave: -listen is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	threadEntry := func(param, param2 uint32, param3 uint64) {
		log.Printf("rcslave: thread entry fired: param=%d param2=%d param3=%d", param, param2, param3)
	}
	objectThreadEntry := func(param, param2 uint32, param3 uint64, buf []byte) {
		log.Printf("rcslave: object thread entry fired: param=%d param2=%d param3=%d payload=%dB", param, param2, param3, len(buf))
	}

	slave, err := rc.RcSlave(ctx, listenAddr, threadEntry, objectThreadEntry, external.NoCheckpoint{}, external.NoStorage{}, external.NoDataSockets{}, external.GoThreadPool{}, external.OSProcessRestarter{})
	if err != nil {
		log.Fatalf("rcslave: bootstrap failed: %v", err)
	}
	log.Printf("rcslave: node %d ready", slave.NodeID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		slave.Wait()
		close(done)
	}()

	select {
	case <-sigCh:
		log.Println("rcslave: signal received, closing")
		slave.Close()
	case <-done:
		log.Println("rcslave: control loop exited")
		slave.Close()
	}
}
