package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer string
	flagName   string
	flagUser   string
	flagPeer   string
	flagP2P    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jamq",
		Short: "jamq - a shared music queue for everyone in the room",
	}

	// Resolve defaults: flags > env vars > .jamq config > hardcoded defaults.
	defaultServer := "http://localhost:8080"
	defaultName := ""
	defaultUser := ""
	defaultPeer := ""

	if cfg := loadConfig(); cfg != nil {
		if cfg.Server != "" {
			defaultServer = cfg.Server
		}
		if cfg.Name != "" {
			defaultName = cfg.Name
		}
		if cfg.UserID != "" {
			defaultUser = cfg.UserID
		}
		defaultPeer = cfg.Peer
	}

	root.PersistentFlags().StringVarP(&flagServer, "server", "s", envOrDefault("JAMQ_SERVER", defaultServer), "host URL")
	root.PersistentFlags().StringVarP(&flagName, "name", "n", envOrDefault("JAMQ_NAME", defaultName), "your display name")
	root.PersistentFlags().StringVarP(&flagUser, "user", "u", envOrDefault("JAMQ_USER", defaultUser), "your user id")
	root.PersistentFlags().StringVar(&flagPeer, "peer", envOrDefault("JAMQ_PEER", defaultPeer), "host multiaddr for p2p (implies --p2p)")
	root.PersistentFlags().BoolVar(&flagP2P, "p2p", false, "join over libp2p instead of websocket (mDNS discovery unless --peer is set)")

	root.AddCommand(
		newHostCmd(),
		newJoinCmd(),
		newAddCmd(),
		newWatchCmd(),
		newQueueCmd(),
		newStatusCmd(),
		newMCPServeCmd(),
	)

	return root
}

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
