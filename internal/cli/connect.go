package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/session"
	"github.com/corvino/jamq/internal/transport"
	"github.com/google/uuid"
)

const (
	joinTimeout = 15 * time.Second
	// firstQueueWait bounds how long joinSession waits for the QueueUpdate
	// that follows the session info.
	firstQueueWait = 2 * time.Second
)

// joinOptions says how to reach a host.
type joinOptions struct {
	server  string
	peer    string
	p2p     bool
	name    string
	user    string
	verbose bool
}

func joinOptionsFromFlags() joinOptions {
	return joinOptions{
		server: flagServer,
		peer:   flagPeer,
		p2p:    flagP2P || flagPeer != "",
		name:   flagName,
		user:   flagUser,
	}
}

// membership is a running client session plus its transport.
type membership struct {
	client *session.Client
	node   *transport.P2PNode
	user   string
}

func newLogger(verbose bool) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

// joinSession connects to a host and waits for its session info and first
// queue snapshot.
func joinSession(ctx context.Context, opts joinOptions) (*membership, error) {
	logger := newLogger(opts.verbose)
	if opts.user == "" {
		opts.user = uuid.New().String()
	}
	if opts.name == "" {
		opts.name = "guest"
	}

	c := session.NewClient(nil, session.ClientConfig{
		UserID:      opts.user,
		DisplayName: opts.name,
		Logger:      logger,
	})
	infos, stopInfos := c.ObserveSessionInfo(1)
	defer stopInfos()
	queue, stopQueue := c.ObserveQueueProjection(1)
	defer stopQueue()

	dialCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	m := &membership{client: c, user: opts.user}
	if opts.p2p {
		node, err := transport.NewP2PNode(c, transport.P2PConfig{
			Discovery: opts.peer == "",
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		c.SetPort(node)
		if opts.peer != "" {
			_, err = node.Dial(dialCtx, opts.peer)
		} else {
			_, err = node.DialDiscovered(dialCtx)
		}
		if err != nil {
			node.Shutdown()
			return nil, fmt.Errorf("p2p join: %w", err)
		}
		m.node = node
	} else {
		conn, err := transport.DialWS(dialCtx, opts.server, c, transport.DialConfig{Logger: logger})
		if err != nil {
			return nil, err
		}
		c.SetPort(conn)
	}

	go c.Run(context.Background())

	select {
	case <-infos:
		select {
		case <-queue:
		case <-time.After(firstQueueWait):
		}
		return m, nil
	case <-c.Done():
		m.close()
		return nil, fmt.Errorf("host closed the connection before the session started")
	case <-dialCtx.Done():
		m.leave(context.Background())
		return nil, fmt.Errorf("timed out waiting for the host's session info")
	}
}

// leave disconnects and returns the last projection.
func (m *membership) leave(ctx context.Context) protocol.QueueUpdate {
	proj, _ := m.client.Leave(ctx)
	m.close()
	return proj
}

func (m *membership) close() {
	if m.node != nil {
		m.node.Shutdown()
	}
}
