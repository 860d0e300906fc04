package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/server"
	"github.com/corvino/jamq/internal/session"
	"github.com/corvino/jamq/internal/transport"
)

// logPlayer reports playback changes to the log; a headless host has no
// player of its own.
type logPlayer struct{}

func (logPlayer) OnNowPlayingChanged(e protocol.QueueEntry) {
	log.Printf("player: now playing %s (requested by %s)", e.TrackURI, e.DisplayName)
}
func (logPlayer) OnPlayPauseRequested() { log.Println("player: play/pause") }
func (logPlayer) OnSkipRequested()      { log.Println("player: skip") }

func main() {
	port := flag.Int("port", 8080, "listen port")
	title := flag.String("title", "jamq", "queue title")
	owner := flag.String("owner", "host", "owner display name")
	fair := flag.Bool("fair", true, "fair play ordering")
	p2p := flag.Bool("p2p", false, "also accept libp2p peers and announce over mDNS")
	p2pPort := flag.Int("p2p-port", 0, "libp2p TCP port (0 picks one)")
	closeTimeout := flag.Duration("close-timeout", session.DefaultCloseTimeout, "how long to wait for peers to disconnect on shutdown")
	flag.Parse()

	logger := log.Default()
	h := session.NewHost(nil, session.HostConfig{
		Title:        *title,
		OwnerName:    *owner,
		FairPlay:     *fair,
		CloseTimeout: *closeTimeout,
		Player:       logPlayer{},
		Logger:       logger,
	})

	ws := transport.NewWSHost(h, logger)
	var hostPort transport.Port = ws
	if *p2p {
		node, err := transport.NewP2PNode(h, transport.P2PConfig{
			ListenAddrs: []string{fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", *p2pPort)},
			Discovery:   true,
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("start p2p: %v", err)
		}
		defer node.Shutdown()
		for _, a := range node.Addrs() {
			log.Printf("p2p listening on %s", a)
		}
		hostPort = transport.NewMux(ws, node)
	}
	h.SetPort(hostPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := h.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("host: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%d", *port)
	srv := server.New(h, ws, addr, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("jamq-server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	select {
	case <-stop:
		log.Println("shutting down...")
		h.Stop()
		select {
		case <-h.Done():
		case <-time.After(*closeTimeout + time.Second):
		}
	case <-h.Done():
		log.Println("session closed")
	}
	ws.Shutdown()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
	log.Println("server stopped")
}
