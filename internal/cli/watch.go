package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/corvino/jamq/internal/session"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the shared queue live",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := joinOptionsFromFlags()
			if opts.name == "" {
				opts.name = "watcher"
			}

			fmt.Fprintln(os.Stderr, "connecting ...")
			m, err := joinSession(context.Background(), opts)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			c := m.client
			fmt.Fprintf(os.Stderr, "watching %s\n", formatSession(c.SessionInfo()))
			fmt.Println(formatQueue(c.Projection(), false, !noColor))

			updates, stopUpdates := c.ObserveQueueProjection(32)
			defer stopUpdates()
			notices, stopNotices := c.ObserveNotices(32)
			defer stopNotices()

			// Handle Ctrl+C.
			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)

			for {
				select {
				case u, ok := <-updates:
					if !ok {
						updates = nil
						continue
					}
					fmt.Println(formatQueue(u, false, !noColor))
				case n, ok := <-notices:
					if !ok {
						notices = nil
						continue
					}
					fmt.Println(formatNotice(n))
					if n.Type == session.NoticeHostLeaving {
						m.leave(context.Background())
						return nil
					}
				case <-c.Done():
					m.close()
					return nil
				case <-interrupt:
					fmt.Fprintln(os.Stderr, "\ndisconnecting...")
					m.leave(context.Background())
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output (useful for piping/logging)")

	return cmd
}
