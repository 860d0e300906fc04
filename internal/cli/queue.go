package cli

import (
	"fmt"

	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/synopsis"
	"github.com/spf13/cobra"
)

func newQueueCmd() *cobra.Command {
	var (
		all     bool
		uris    bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Print the host's queue over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			qv, err := getQueue(flagServer)
			if err != nil {
				return err
			}
			u := protocol.QueueUpdate{NowPlaying: qv.NowPlaying, Entries: qv.Entries}
			if uris {
				fmt.Println(synopsis.URIs(u))
				return nil
			}
			fmt.Println(formatQueue(u, all, !noColor))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include tracks that already played")
	cmd.Flags().BoolVar(&uris, "uris", false, "print only track URIs, one per line")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}
