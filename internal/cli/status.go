package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the host's health and who is connected",
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := getHealth(flagServer)
			if err != nil {
				return fmt.Errorf("host unreachable: %w", err)
			}
			fmt.Printf("Status:     %s\n", health.Status)
			fmt.Printf("Uptime:     %s\n", health.Uptime)
			fmt.Printf("Session:    %s\n", health.State)
			fmt.Printf("Queued:     %d\n", health.Queued)

			sv, err := getSession(flagServer)
			if err != nil {
				return err
			}
			fair := "off"
			if sv.FairPlay {
				fair = "on"
			}
			fmt.Printf("Title:      %s\n", sv.Title)
			fmt.Printf("Owner:      %s\n", sv.Owner)
			fmt.Printf("Fair play:  %s\n", fair)

			list, err := getEndpoints(flagServer)
			if err != nil {
				return err
			}
			fmt.Printf("Endpoints:  %d\n", len(list.Endpoints))
			for _, ep := range list.Endpoints {
				name := ep.DisplayName
				if name == "" {
					name = "(no requests yet)"
				}
				fmt.Printf("  %-36s  %-20s  %-12s  last transfer: %s\n", ep.ID, name, ep.State, ep.LastTransfer)
			}
			return nil
		},
	}
}
