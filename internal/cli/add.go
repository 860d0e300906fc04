package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/corvino/jamq/internal/protocol"
	"github.com/spf13/cobra"
)

const admitTimeout = 10 * time.Second

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <track-uri>...",
		Short: "Request one or more tracks and exit",
		Example: `  jamq add spotify:track:4uLU6hMCjMI75M1A2tKUQC
  jamq add --p2p spotify:track:a spotify:track:b`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(args)
		},
	}
}

func runAdd(uris []string) error {
	m, err := joinSession(context.Background(), joinOptionsFromFlags())
	if err != nil {
		return fmt.Errorf("could not join: %w", err)
	}
	defer m.leave(context.Background())

	c := m.client
	updates, stop := c.ObserveQueueProjection(32)
	defer stop()

	after := c.Projection().MaxSeq()
	for _, uri := range uris {
		if err := c.RequestTrack(context.Background(), uri); err != nil {
			return fmt.Errorf("request %s: %w", uri, err)
		}
	}

	deadline := time.After(admitTimeout)
	proj := c.Projection()
	for {
		positions, ok := admitted(proj, m.user, uris, after)
		if ok {
			for i, uri := range uris {
				fmt.Printf("queued %s at position %d\n", uri, positions[i])
			}
			return nil
		}
		select {
		case u, open := <-updates:
			if !open {
				return fmt.Errorf("host ended the session")
			}
			proj = u
		case <-deadline:
			return fmt.Errorf("timed out waiting for the host to queue the tracks")
		}
	}
}

// admitted finds each uri requested by user among the entries newer than
// after. Positions count from the currently playing entry.
func admitted(u protocol.QueueUpdate, user string, uris []string, after int64) ([]int, bool) {
	taken := make(map[int]bool)
	positions := make([]int, len(uris))
	for i, uri := range uris {
		j, ok := u.FindRequest(user, uri, after, taken)
		if !ok {
			return nil, false
		}
		taken[j] = true
		positions[i] = j - u.NowPlaying
	}
	return positions, true
}
