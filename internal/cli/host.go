package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/server"
	"github.com/corvino/jamq/internal/session"
	"github.com/corvino/jamq/internal/transport"
	"github.com/spf13/cobra"
)

type hostOptions struct {
	port         int
	title        string
	fair         bool
	noP2P        bool
	p2pPort      int
	closeTimeout time.Duration
	noColor      bool
}

func newHostCmd() *cobra.Command {
	var opts hostOptions

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a shared queue that people nearby can join",
		Long: `Starts a queue session on this machine. Friends run "jamq join <url>"
(or "jamq join --p2p" on the same network) and add tracks; you see the queue
as it changes. Press Ctrl+C to end the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(opts)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 8080, "HTTP/websocket port")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "queue title (default: <name>'s queue)")
	cmd.Flags().BoolVar(&opts.fair, "fair", true, "fair play: interleave requests so nobody floods the queue")
	cmd.Flags().BoolVar(&opts.noP2P, "no-p2p", false, "accept websocket peers only (no libp2p, no mDNS announce)")
	cmd.Flags().IntVar(&opts.p2pPort, "p2p-port", 0, "libp2p TCP port (0 picks one)")
	cmd.Flags().DurationVar(&opts.closeTimeout, "close-timeout", session.DefaultCloseTimeout, "how long to wait for peers to disconnect on exit")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	return cmd
}

// logPlayer stands in for a music player: it reports playback changes.
type logPlayer struct{}

func (logPlayer) OnNowPlayingChanged(e protocol.QueueEntry) {
	fmt.Printf("▶ now playing %s (requested by %s)\n", e.TrackURI, e.DisplayName)
}
func (logPlayer) OnPlayPauseRequested() { fmt.Println("⏯ play/pause") }
func (logPlayer) OnSkipRequested()      { fmt.Println("⏭ skip") }

func runHost(opts hostOptions) error {
	owner := flagName
	if owner == "" {
		owner = "host"
	}
	if opts.title == "" {
		opts.title = owner + "'s queue"
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)

	h := session.NewHost(nil, session.HostConfig{
		Title:        opts.title,
		OwnerName:    owner,
		OwnerUserID:  flagUser,
		FairPlay:     opts.fair,
		CloseTimeout: opts.closeTimeout,
		Player:       logPlayer{},
		Logger:       logger,
	})

	ws := transport.NewWSHost(h, logger)
	port := transport.Port(ws)
	var node *transport.P2PNode
	if !opts.noP2P {
		var err error
		node, err = transport.NewP2PNode(h, transport.P2PConfig{
			ListenAddrs: []string{fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", opts.p2pPort)},
			Discovery:   true,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("start p2p: %w", err)
		}
		defer node.Shutdown()
		port = transport.NewMux(ws, node)
	}
	h.SetPort(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- h.Run(ctx) }()

	addr := fmt.Sprintf(":%d", opts.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := server.New(h, ws, addr, logger)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Printf("host: http server: %v", err)
		}
	}()

	printHostBanner(opts, node)
	go printHostEvents(h, !opts.noColor)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
		fmt.Println("\nEnding the session...")
		h.Stop()
		select {
		case <-h.Done():
		case <-time.After(opts.closeTimeout + time.Second):
		}
	case <-h.Done():
	}
	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("host: %v", err)
	}
	ws.Shutdown()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)
	fmt.Println("Stopped.")
	return nil
}

func printHostBanner(opts hostOptions, node *transport.P2PNode) {
	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Printf("  %s is open!\n", opts.title)
	fmt.Println()
	fmt.Printf("  Friends on your network run:  jamq join http://<this-machine>:%d\n", opts.port)
	if node != nil {
		fmt.Println("  or, with no URL at all:       jamq join --p2p")
		for _, a := range node.Addrs() {
			fmt.Printf("  p2p address:  %s\n", a)
		}
	}
	fmt.Println()
	fair := "on"
	if !opts.fair {
		fair = "off"
	}
	fmt.Printf("  Fair play: %s\n", fair)
	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Printf("HTTP API:  http://localhost:%d/api/queue\n", opts.port)
	fmt.Println("Press Ctrl+C to end the session.")
	fmt.Println()
}

func printHostEvents(h *session.Host, color bool) {
	queue, stopQ := h.ObserveQueue(32)
	defer stopQ()
	conns, stopC := h.ObserveConnections(32)
	defer stopC()
	for {
		select {
		case u, ok := <-queue:
			if !ok {
				return
			}
			fmt.Println(formatQueue(u, false, color))
		case ev, ok := <-conns:
			if !ok {
				return
			}
			switch ev.Type {
			case session.EventConnected:
				fmt.Printf("+ %s joined\n", ev.EndpointID)
			case session.EventDisconnected:
				who := ev.DisplayName
				if who == "" {
					who = ev.EndpointID
				}
				fmt.Printf("- %s left\n", who)
			case session.EventTransferFailed:
				fmt.Printf("! could not reach %s: %v\n", ev.EndpointID, ev.Err)
			}
		}
	}
}
