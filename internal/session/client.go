package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/corvino/jamq/internal/endpoint"
	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/transport"
)

var ErrNotJoined = errors.New("not joined to a session")

// DefaultLeaveTimeout bounds how long a leaving client waits for the
// transport to drop the host connection.
const DefaultLeaveTimeout = 3 * time.Second

// ClientState is the client session lifecycle.
type ClientState int

const (
	ClientConnecting ClientState = iota
	ClientJoined
	ClientLeaving
	ClientLeft
)

func (s ClientState) String() string {
	switch s {
	case ClientConnecting:
		return "connecting"
	case ClientJoined:
		return "joined"
	case ClientLeaving:
		return "leaving"
	case ClientLeft:
		return "left"
	default:
		return "unknown"
	}
}

// NoticeType classifies a client Notice.
type NoticeType string

const (
	NoticeTrackAdded   NoticeType = "track_added"
	NoticeHostLeaving  NoticeType = "host_leaving"
	NoticeDisconnected NoticeType = "disconnected"
)

// Notice is a one-shot event for the UI. HostLeaving carries the last
// projection so the user can choose to keep the playlist.
type Notice struct {
	Type       NoticeType
	Track      protocol.NewTrackAdded
	Projection protocol.QueueUpdate
}

// ClientConfig holds client session settings.
type ClientConfig struct {
	UserID       string
	DisplayName  string
	LeaveTimeout time.Duration
	InboxSize    int
	Logger       *log.Logger
}

// Client mirrors one host's queue. Like Host, all state is owned by the
// goroutine running Run.
type Client struct {
	cfg  ClientConfig
	port transport.Port
	log  *log.Logger

	inbox chan any
	done  chan struct{}
	once  sync.Once

	// Owned by the Run goroutine.
	state      ClientState
	hostID     string
	info       protocol.InitiateClient
	projection protocol.QueueUpdate
	pending    []protocol.Message
	leaveTimer *time.Timer

	mu   sync.RWMutex
	snap clientSnapshot

	projFeed   Feed[protocol.QueueUpdate]
	infoFeed   Feed[protocol.InitiateClient]
	noticeFeed Feed[Notice]
}

type clientSnapshot struct {
	state      ClientState
	info       protocol.InitiateClient
	projection protocol.QueueUpdate
}

// Client events.
type (
	evRequest struct {
		uri   string
		reply chan error
	}
	evLeave struct {
		reply chan protocol.QueueUpdate
	}
	evLeaveTimeout struct{}
)

func NewClient(port transport.Port, cfg ClientConfig) *Client {
	if cfg.LeaveTimeout <= 0 {
		cfg.LeaveTimeout = DefaultLeaveTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Client{
		cfg:   cfg,
		port:  port,
		log:   cfg.Logger,
		inbox: make(chan any, cfg.InboxSize),
		done:  make(chan struct{}),
	}
}

// SetPort binds the transport before Run.
func (c *Client) SetPort(p transport.Port) {
	c.port = p
}

// Run processes events until the client has Left or ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	defer c.finish()
	for {
		select {
		case <-ctx.Done():
			c.leave()
			return ctx.Err()
		case ev := <-c.inbox:
			c.handle(ev)
			if c.state == ClientLeft {
				return nil
			}
		}
	}
}

func (c *Client) finish() {
	c.once.Do(func() {
		if c.leaveTimer != nil {
			c.leaveTimer.Stop()
		}
		close(c.done)
		c.projFeed.close()
		c.infoFeed.close()
		c.noticeFeed.close()
	})
}

func (c *Client) post(ev any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- ev:
		return true
	case <-c.done:
		return false
	}
}

// Transport callbacks.

func (c *Client) OnConnecting(id string)   {}
func (c *Client) OnConnected(id string)    { c.post(evConnected{id: id}) }
func (c *Client) OnDisconnected(id string) { c.post(evDisconnected{id: id}) }
func (c *Client) OnPayloadReceived(id string, payload []byte) {
	c.post(evPayload{id: id, data: payload})
}
func (c *Client) OnTransferStatusChanged(id string, status endpoint.TransferStatus) {
	if status == endpoint.Failure {
		c.log.Printf("client: delivery to %s failed", id)
	}
}

// RequestTrack asks the host to queue uri. It returns once the request is
// handed to the transport; inclusion shows up in a later QueueUpdate.
func (c *Client) RequestTrack(ctx context.Context, uri string) error {
	reply := make(chan error, 1)
	if !c.post(evRequest{uri: uri, reply: reply}) {
		return ErrNotJoined
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrNotJoined
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave disconnects from the host and returns the final projection, which
// the caller may keep as a playlist.
func (c *Client) Leave(ctx context.Context) (protocol.QueueUpdate, error) {
	reply := make(chan protocol.QueueUpdate, 1)
	if !c.post(evLeave{reply: reply}) {
		return c.Projection(), nil
	}
	select {
	case p := <-reply:
		return p, nil
	case <-c.done:
		return c.Projection(), nil
	case <-ctx.Done():
		return c.Projection(), ctx.Err()
	}
}

// Done is closed once the client has Left.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.state
}

// UserID is the user this client requests tracks as.
func (c *Client) UserID() string { return c.cfg.UserID }

// SessionInfo returns what InitiateClient told us; zero until Joined.
func (c *Client) SessionInfo() protocol.InitiateClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.info
}

// Projection returns the local read-only copy of the host's queue.
func (c *Client) Projection() protocol.QueueUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.projection
}

func (c *Client) ObserveQueueProjection(buf int) (<-chan protocol.QueueUpdate, func()) {
	return c.projFeed.Subscribe(buf)
}

func (c *Client) ObserveSessionInfo(buf int) (<-chan protocol.InitiateClient, func()) {
	return c.infoFeed.Subscribe(buf)
}

func (c *Client) ObserveNotices(buf int) (<-chan Notice, func()) {
	return c.noticeFeed.Subscribe(buf)
}

func (c *Client) publish() {
	c.mu.Lock()
	c.snap = clientSnapshot{state: c.state, info: c.info, projection: c.projection}
	c.mu.Unlock()
}

func (c *Client) setState(s ClientState) {
	c.state = s
	c.publish()
}

func (c *Client) handle(ev any) {
	if c.state == ClientLeft {
		if r, ok := ev.(evRequest); ok {
			r.reply <- ErrNotJoined
		}
		return
	}
	switch e := ev.(type) {
	case evConnected:
		if c.hostID == "" {
			c.hostID = e.id
			c.log.Printf("client: connected to host %s", e.id)
		}
	case evDisconnected:
		if e.id != c.hostID {
			return
		}
		if c.leaveTimer != nil {
			c.leaveTimer.Stop()
		}
		if c.state != ClientLeaving {
			c.noticeFeed.publish(Notice{Type: NoticeDisconnected, Projection: c.projection})
		}
		c.log.Printf("client: host %s disconnected", e.id)
		c.setState(ClientLeft)
	case evPayload:
		c.onPayload(e.id, e.data)
	case evRequest:
		e.reply <- c.request(e.uri)
	case evLeave:
		c.leave()
		e.reply <- c.projection
	case evLeaveTimeout:
		if c.state == ClientLeaving {
			c.log.Printf("client: leave timeout, dropping host connection")
			c.leave()
		}
	default:
		c.log.Printf("client: unknown event %T", ev)
	}
}

func (c *Client) onPayload(id string, data []byte) {
	if c.hostID == "" {
		c.hostID = id
	}
	if id != c.hostID {
		c.log.Printf("client: dropped frame from non-host endpoint %s", id)
		return
	}
	if c.state == ClientLeaving {
		c.log.Printf("client: dropped frame while leaving")
		return
	}
	msg := protocol.Decode(data)
	switch m := msg.(type) {
	case protocol.InitiateClient:
		if c.state != ClientConnecting {
			c.log.Printf("client: ignored repeated session init")
			return
		}
		c.info = m
		c.setState(ClientJoined)
		c.infoFeed.publish(m)
		c.log.Printf("client: joined %q owned by %s (session %s)", m.QueueTitle, m.OwnerName, m.SessionID)
		pending := c.pending
		c.pending = nil
		for _, p := range pending {
			c.apply(p)
		}
	case protocol.QueueUpdate, protocol.NewTrackAdded:
		if c.state == ClientConnecting {
			c.pending = append(c.pending, m)
			return
		}
		c.apply(m)
	case protocol.HostDisconnecting:
		c.setState(ClientLeaving)
		c.noticeFeed.publish(Notice{Type: NoticeHostLeaving, Projection: c.projection})
		c.log.Printf("client: host is ending the session")
		c.leaveTimer = time.AfterFunc(c.cfg.LeaveTimeout, func() {
			c.post(evLeaveTimeout{})
		})
	case protocol.Invalid:
		c.log.Printf("client: dropped malformed frame: %q", truncate(m.Raw, 80))
	default:
		c.log.Printf("client: dropped unexpected %s", msg.Kind())
	}
}

func (c *Client) apply(m protocol.Message) {
	switch v := m.(type) {
	case protocol.QueueUpdate:
		c.projection = v
		c.publish()
		c.projFeed.publish(v)
	case protocol.NewTrackAdded:
		c.noticeFeed.publish(Notice{Type: NoticeTrackAdded, Track: v})
	}
}

func (c *Client) request(uri string) error {
	if c.state != ClientJoined {
		return ErrNotJoined
	}
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("%w: empty track", ErrInvalidRequest)
	}
	frame := protocol.Encode(protocol.SongRequest{
		TrackURI:             uri,
		RequesterUserID:      c.cfg.UserID,
		RequesterDisplayName: c.cfg.DisplayName,
	})
	if err := c.port.Send(c.hostID, frame); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	return nil
}

func (c *Client) leave() {
	if c.state == ClientLeft {
		return
	}
	if c.leaveTimer != nil {
		c.leaveTimer.Stop()
	}
	if c.hostID != "" && c.port != nil {
		if err := c.port.Close(c.hostID); err != nil {
			c.log.Printf("client: close host connection: %v", err)
		}
	}
	c.setState(ClientLeft)
}
