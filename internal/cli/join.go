package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/session"
	"github.com/corvino/jamq/internal/synopsis"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Config is the .jamq project config written by "join".
type Config struct {
	Server string `json:"server"`
	Name   string `json:"name"`
	UserID string `json:"user_id"`
	Peer   string `json:"peer,omitempty"`
}

const configFileName = ".jamq"

func newJoinCmd() *cobra.Command {
	var (
		noColor bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "join [url]",
		Short: "Join a friend's queue and request tracks",
		Long: `Connects to a jamq host, remembers it in a .jamq file in the current
directory, and opens an interactive prompt. Type a track URI to request it.

  /queue   show the whole queue including what already played
  /quit    leave the session

When the host ends the session you can keep the final playlist.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverURL := ""
			if len(args) == 1 {
				serverURL = args[0]
			}
			return runJoin(serverURL, !noColor, verbose)
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log transport and session events to stderr")
	return cmd
}

func runJoin(serverURL string, color, verbose bool) error {
	lines := readLines(os.Stdin)
	opts := joinOptionsFromFlags()
	opts.verbose = verbose
	if serverURL != "" {
		opts.server = strings.TrimRight(serverURL, "/")
	}

	if opts.name == "" {
		fmt.Print("Your name (e.g. alice): ")
		opts.name = strings.TrimSpace(<-lines)
	}
	if opts.name == "" {
		return fmt.Errorf("name is required")
	}
	if opts.user == "" {
		opts.user = uuid.New().String()
	}

	cfg := Config{Server: opts.server, Name: opts.name, UserID: opts.user, Peer: opts.peer}
	if err := writeConfig(configFileName, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not write %s: %v\n", configFileName, err)
	}

	if opts.p2p {
		fmt.Println("Looking for a host over p2p ...")
	} else {
		fmt.Printf("Connecting to %s ...\n", opts.server)
	}
	m, err := joinSession(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("could not join: %w\n\nPossible issues:\n  - The host hasn't started yet\n  - The URL is wrong\n  - You are not on the same network as the host", err)
	}
	c := m.client

	fmt.Println()
	fmt.Printf("Joined %s\n", formatSession(c.SessionInfo()))
	fmt.Println(formatQueue(c.Projection(), false, color))
	fmt.Println()
	fmt.Println("Type a track URI to request it, /queue to see everything, /quit to leave.")

	return joinLoop(m, lines, color)
}

func joinLoop(m *membership, lines <-chan string, color bool) error {
	c := m.client
	updates, stopUpdates := c.ObserveQueueProjection(32)
	defer stopUpdates()
	notices, stopNotices := c.ObserveNotices(32)
	defer stopNotices()

	done := c.Done()
	var final *protocol.QueueUpdate

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				m.leave(context.Background())
				return nil
			}
			line = strings.TrimSpace(line)
			if final != nil {
				// Answer to the keep-playlist prompt.
				m.leave(context.Background())
				if strings.HasPrefix(strings.ToLower(line), "y") {
					fmt.Println(synopsis.Build(c.SessionInfo(), *final, time.Now()))
				}
				return nil
			}
			switch line {
			case "":
			case "/quit":
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				m.leave(ctx)
				cancel()
				fmt.Println("Left the session.")
				return nil
			case "/queue":
				fmt.Println(formatQueue(c.Projection(), true, color))
			default:
				if err := c.RequestTrack(context.Background(), line); err != nil {
					fmt.Printf("! %v\n", err)
				}
			}
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			fmt.Println(formatQueue(u, false, color))
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			fmt.Println(formatNotice(n))
			if n.Type == session.NoticeHostLeaving {
				p := n.Projection
				final = &p
				fmt.Print("Keep the playlist? [y/N] ")
			}
		case <-done:
			done = nil
			if final == nil {
				m.close()
				fmt.Println("Disconnected.")
				return nil
			}
		}
	}
}

// readLines feeds stdin lines to a channel, closed at EOF.
func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

func writeConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// loadConfig reads a .jamq config from the current directory
// or any parent directory.
func loadConfig() *Config {
	dir, err := os.Getwd()
	if err != nil {
		return nil
	}
	return findConfig(dir)
}

func findConfig(dir string) *Config {
	for {
		path := filepath.Join(dir, configFileName)
		data, err := os.ReadFile(path)
		if err == nil {
			var cfg Config
			if json.Unmarshal(data, &cfg) == nil {
				return &cfg
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil
}
