package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corvino/jamq/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "mcp-serve",
		Short:  "Start the MCP stdio server for agent integration",
		Long:   `Joins the session and runs a Model Context Protocol (MCP) server over stdio. An agent connects to this as a subprocess to use the queue tools (request_track, get_queue, get_session).`,
		Hidden: true, // Not typically called by users directly
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := joinOptionsFromFlags()
			if opts.name == "" {
				return fmt.Errorf("name is required (use --name or .jamq config)")
			}

			m, err := joinSession(context.Background(), opts)
			if err != nil {
				return fmt.Errorf("could not join: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				// Stop serving once the host session is gone.
				select {
				case <-m.client.Done():
					stop()
				case <-ctx.Done():
				}
			}()

			err = mcp.Serve(ctx, m.client, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				err = nil
			}

			leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.leave(leaveCtx)
			return err
		},
	}
	return cmd
}
