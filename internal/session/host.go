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
	"github.com/corvino/jamq/internal/fairplay"
	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/transport"
	"github.com/google/uuid"
)

var (
	ErrClosed         = errors.New("session closed")
	ErrInvalidRequest = errors.New("invalid song request")
	ErrQueueFull      = errors.New("queue full")
)

// DefaultCloseTimeout bounds how long a stopping host waits for its peers
// to disconnect.
const DefaultCloseTimeout = 3 * time.Second

// HostState is the host session lifecycle.
type HostState int

const (
	HostIdle HostState = iota
	HostActive
	HostClosing
	HostClosed
)

func (s HostState) String() string {
	switch s {
	case HostIdle:
		return "idle"
	case HostActive:
		return "active"
	case HostClosing:
		return "closing"
	case HostClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Player is the playback collaborator the host drives.
type Player interface {
	OnNowPlayingChanged(entry protocol.QueueEntry)
	OnPlayPauseRequested()
	OnSkipRequested()
}

type nopPlayer struct{}

func (nopPlayer) OnNowPlayingChanged(protocol.QueueEntry) {}
func (nopPlayer) OnPlayPauseRequested()                   {}
func (nopPlayer) OnSkipRequested()                        {}

// ConnectionEventType classifies a ConnectionEvent.
type ConnectionEventType string

const (
	EventConnected      ConnectionEventType = "connected"
	EventDisconnected   ConnectionEventType = "disconnected"
	EventTransferFailed ConnectionEventType = "transfer_failed"
)

// ConnectionEvent is published on the host's connection feed.
type ConnectionEvent struct {
	Type        ConnectionEventType
	EndpointID  string
	DisplayName string
	Err         error
}

// HostConfig holds host session settings.
type HostConfig struct {
	Title        string
	OwnerName    string
	OwnerUserID  string // requester identity for host-local Enqueue
	FairPlay     bool
	CloseTimeout time.Duration
	InboxSize    int
	Player       Player
	Logger       *log.Logger
}

// Host owns the canonical queue of one session. All state changes happen
// on the goroutine running Run; every exported method only posts an event.
type Host struct {
	cfg      HostConfig
	port     transport.Port
	log      *log.Logger
	player   Player
	registry *endpoint.Registry

	inbox chan any
	done  chan struct{}
	once  sync.Once

	// Owned by the Run goroutine.
	state      HostState
	info       protocol.InitiateClient
	queue      fairplay.Queue
	seq        int64
	closeTimer *time.Timer

	mu   sync.RWMutex
	snap hostSnapshot

	queueFeed Feed[protocol.QueueUpdate]
	connFeed  Feed[ConnectionEvent]
}

type hostSnapshot struct {
	state HostState
	info  protocol.InitiateClient
	queue fairplay.Queue
}

// Host events.
type (
	evConnecting   struct{ id string }
	evConnected    struct{ id string }
	evDisconnected struct{ id string }
	evPayload      struct {
		id   string
		data []byte
	}
	evTransfer struct {
		id     string
		status endpoint.TransferStatus
	}
	evEnqueue struct {
		req   protocol.SongRequest
		reply chan error
	}
	evSkip         struct{}
	evFinished     struct{}
	evPlayPause    struct{}
	evStop         struct{}
	evCloseTimeout struct{}
)

// NewHost creates a host in the Idle state. port may be set later with
// SetPort, before Run.
func NewHost(port transport.Port, cfg HostConfig) *Host {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Player == nil {
		cfg.Player = nopPlayer{}
	}
	if cfg.OwnerUserID == "" {
		cfg.OwnerUserID = "host"
	}
	return &Host{
		cfg:      cfg,
		port:     port,
		log:      cfg.Logger,
		player:   cfg.Player,
		registry: endpoint.NewRegistry(),
		inbox:    make(chan any, cfg.InboxSize),
		done:     make(chan struct{}),
	}
}

// SetPort binds the transport. Transports that need the host as their
// Handler are built after the host, so the port is attached afterwards.
func (h *Host) SetPort(p transport.Port) {
	h.port = p
}

// Run starts the session and processes events until the host is Closed or
// ctx is canceled.
func (h *Host) Run(ctx context.Context) error {
	h.start()
	defer h.finish()
	for {
		select {
		case <-ctx.Done():
			if h.state == HostActive {
				h.stop()
			}
			h.forceClosed("context canceled")
			return ctx.Err()
		case ev := <-h.inbox:
			h.handle(ev)
			if h.state == HostClosed {
				return nil
			}
		}
	}
}

func (h *Host) start() {
	if h.state != HostIdle {
		return
	}
	h.info = protocol.InitiateClient{
		SessionID:  uuid.New().String(),
		QueueTitle: h.cfg.Title,
		OwnerName:  h.cfg.OwnerName,
		FairPlay:   h.cfg.FairPlay,
	}
	h.queue = fairplay.Queue{}
	h.setState(HostActive)
	h.log.Printf("host: session %s started (title=%q fair_play=%v)", h.info.SessionID, h.info.QueueTitle, h.info.FairPlay)
}

func (h *Host) finish() {
	h.once.Do(func() {
		if h.closeTimer != nil {
			h.closeTimer.Stop()
		}
		close(h.done)
		h.queueFeed.close()
		h.connFeed.close()
	})
}

func (h *Host) post(ev any) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.inbox <- ev:
		return true
	case <-h.done:
		return false
	}
}

// Transport callbacks.

func (h *Host) OnConnecting(id string)   { h.post(evConnecting{id: id}) }
func (h *Host) OnConnected(id string)    { h.post(evConnected{id: id}) }
func (h *Host) OnDisconnected(id string) { h.post(evDisconnected{id: id}) }
func (h *Host) OnPayloadReceived(id string, payload []byte) {
	h.post(evPayload{id: id, data: payload})
}
func (h *Host) OnTransferStatusChanged(id string, status endpoint.TransferStatus) {
	h.post(evTransfer{id: id, status: status})
}

// Enqueue schedules a track requested by the host user. It waits for the
// session loop to accept or reject the request.
func (h *Host) Enqueue(ctx context.Context, trackURI, userID, displayName string) error {
	if userID == "" {
		userID = h.cfg.OwnerUserID
	}
	if displayName == "" {
		displayName = h.cfg.OwnerName
	}
	reply := make(chan error, 1)
	if !h.post(evEnqueue{req: protocol.SongRequest{
		TrackURI:             trackURI,
		RequesterUserID:      userID,
		RequesterDisplayName: displayName,
	}, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Skip asks the player to skip and moves playback to the next entry.
func (h *Host) Skip() { h.post(evSkip{}) }

// TrackFinished is called by the player when the current track ends.
func (h *Host) TrackFinished() { h.post(evFinished{}) }

// PlayPause forwards a play/pause toggle to the player.
func (h *Host) PlayPause() { h.post(evPlayPause{}) }

// Stop ends the session. Peers get a best-effort HostDisconnecting; the
// host is Closed once they are gone or CloseTimeout elapses.
func (h *Host) Stop() { h.post(evStop{}) }

// Done is closed once the host reaches Closed.
func (h *Host) Done() <-chan struct{} { return h.done }

func (h *Host) State() HostState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap.state
}

// Info returns the session identity sent to clients.
func (h *Host) Info() protocol.InitiateClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap.info
}

// Queue returns the last published queue.
func (h *Host) Queue() fairplay.Queue {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap.queue
}

// Endpoints lists the endpoints currently tracked.
func (h *Host) Endpoints() []endpoint.Record {
	return h.registry.All()
}

// ObserveQueue streams every queue broadcast.
func (h *Host) ObserveQueue(buf int) (<-chan protocol.QueueUpdate, func()) {
	return h.queueFeed.Subscribe(buf)
}

// ObserveConnections streams connection events.
func (h *Host) ObserveConnections(buf int) (<-chan ConnectionEvent, func()) {
	return h.connFeed.Subscribe(buf)
}

func (h *Host) setState(s HostState) {
	h.state = s
	h.publish()
}

func (h *Host) publish() {
	h.mu.Lock()
	h.snap = hostSnapshot{state: h.state, info: h.info, queue: h.queue}
	h.mu.Unlock()
}

func (h *Host) handle(ev any) {
	if h.state == HostClosed {
		h.log.Printf("host: dropped %T after close", ev)
		return
	}
	switch e := ev.(type) {
	case evConnecting:
		h.onConnecting(e.id)
	case evConnected:
		h.onConnected(e.id)
	case evDisconnected:
		h.onDisconnected(e.id)
	case evTransfer:
		h.onTransfer(e.id, e.status)
	case evPayload:
		h.onPayload(e.id, e.data)
	case evEnqueue:
		e.reply <- h.admit("", e.req)
	case evSkip:
		if h.requireActive("skip") {
			h.player.OnSkipRequested()
			h.advance()
		}
	case evFinished:
		if h.requireActive("track finished") {
			h.advance()
		}
	case evPlayPause:
		if h.requireActive("play/pause") {
			h.player.OnPlayPauseRequested()
		}
	case evStop:
		h.stop()
	case evCloseTimeout:
		if h.state == HostClosing {
			h.forceClosed("close timeout")
		}
	default:
		h.log.Printf("host: unknown event %T", ev)
	}
}

func (h *Host) requireActive(what string) bool {
	if h.state != HostActive {
		h.log.Printf("host: %s ignored in state %s", what, h.state)
		return false
	}
	return true
}

func (h *Host) onConnecting(id string) {
	if h.state != HostActive {
		h.log.Printf("host: refusing %s while %s", id, h.state)
		_ = h.port.Close(id)
		return
	}
	if rec, ok := h.registry.Get(id); ok && rec.State == endpoint.Connected {
		return
	}
	h.registry.Upsert(id, "", endpoint.Connecting)
}

func (h *Host) onConnected(id string) {
	if h.state != HostActive {
		h.log.Printf("host: refusing %s while %s", id, h.state)
		_ = h.port.Close(id)
		return
	}
	rec := h.registry.Upsert(id, "", endpoint.Connected)
	h.log.Printf("host: endpoint %s connected", id)
	h.send(id, protocol.Encode(h.info))
	h.send(id, protocol.Encode(h.wireUpdate()))
	h.connFeed.publish(ConnectionEvent{Type: EventConnected, EndpointID: id, DisplayName: rec.DisplayName})
}

func (h *Host) onDisconnected(id string) {
	rec, ok := h.registry.Get(id)
	if !ok {
		return
	}
	h.registry.Remove(id)
	h.log.Printf("host: endpoint %s disconnected", id)
	h.connFeed.publish(ConnectionEvent{Type: EventDisconnected, EndpointID: id, DisplayName: rec.DisplayName})
	if h.state == HostClosing && h.registry.Len() == 0 {
		h.closed()
	}
}

func (h *Host) onTransfer(id string, status endpoint.TransferStatus) {
	if !h.registry.SetTransferStatus(id, status) {
		return
	}
	if status == endpoint.Failure {
		rec, _ := h.registry.Get(id)
		h.connFeed.publish(ConnectionEvent{Type: EventTransferFailed, EndpointID: id, DisplayName: rec.DisplayName})
	}
}

func (h *Host) onPayload(id string, data []byte) {
	if h.state != HostActive {
		h.log.Printf("host: dropped frame from %s while %s", id, h.state)
		return
	}
	switch m := protocol.Decode(data).(type) {
	case protocol.SongRequest:
		if err := h.admit(id, m); err != nil {
			h.log.Printf("host: dropped request from %s: %v", id, err)
		}
	case protocol.Invalid:
		h.log.Printf("host: dropped malformed frame from %s: %q", id, truncate(m.Raw, 80))
	default:
		h.log.Printf("host: dropped unexpected %s from %s", m.Kind(), id)
	}
}

// admit validates and schedules a request. from is the requesting
// endpoint, empty for host-local requests.
func (h *Host) admit(from string, req protocol.SongRequest) error {
	if h.state != HostActive {
		return ErrClosed
	}
	if strings.TrimSpace(req.TrackURI) == "" ||
		strings.TrimSpace(req.RequesterUserID) == "" ||
		strings.TrimSpace(req.RequesterDisplayName) == "" {
		return fmt.Errorf("%w: track, user and name are required", ErrInvalidRequest)
	}
	if from != "" {
		if rec, ok := h.registry.Get(from); ok && rec.DisplayName == "" {
			h.registry.SetDisplayName(from, req.RequesterDisplayName)
		}
	}

	entry := protocol.QueueEntry{
		TrackURI:    req.TrackURI,
		UserID:      req.RequesterUserID,
		DisplayName: req.RequesterDisplayName,
		Seq:         h.seq + 1,
	}
	next, pos := fairplay.Schedule(h.queue, entry, h.info.FairPlay)
	// Peers must be able to receive every upcoming entry in one frame.
	if _, ok := protocol.FitQueueUpdate(next.Entries, next.NowPlaying, transport.MaxFrameSize); !ok {
		return fmt.Errorf("%w: %d tracks waiting", ErrQueueFull, len(h.queue.Entries)-h.queue.NowPlaying)
	}

	h.seq = entry.Seq
	wasPlaying := h.queue.Playing()
	h.queue = next
	h.publish()
	h.log.Printf("host: queued %s for %s at %d", entry.TrackURI, entry.DisplayName, pos)

	if !wasPlaying {
		h.player.OnNowPlayingChanged(entry)
	}
	h.broadcastQueue()
	added := protocol.Encode(protocol.NewTrackAdded{
		TrackURI:             entry.TrackURI,
		RequesterDisplayName: entry.DisplayName,
	})
	for _, id := range h.registry.Connected() {
		if id != from {
			h.send(id, added)
		}
	}
	return nil
}

func (h *Host) advance() {
	var playing bool
	h.queue, playing = fairplay.Advance(h.queue)
	h.publish()
	if playing {
		cur, _ := h.queue.Current()
		h.player.OnNowPlayingChanged(cur)
	}
	h.broadcastQueue()
}

func (h *Host) queueUpdate() protocol.QueueUpdate {
	entries := make([]protocol.QueueEntry, len(h.queue.Entries))
	copy(entries, h.queue.Entries)
	if len(entries) == 0 {
		entries = nil
	}
	return protocol.QueueUpdate{Entries: entries, NowPlaying: h.queue.NowPlaying}
}

// wireUpdate is the snapshot peers receive: everything upcoming plus as
// much history as fits in one frame.
func (h *Host) wireUpdate() protocol.QueueUpdate {
	u, ok := protocol.FitQueueUpdate(h.queue.Entries, h.queue.NowPlaying, transport.MaxFrameSize)
	if !ok {
		// admit keeps the upcoming part within a frame, so this is not reached.
		h.log.Printf("host: queue of %d does not fit a frame", len(h.queue.Entries))
	}
	return u
}

func (h *Host) broadcastQueue() {
	frame := protocol.Encode(h.wireUpdate())
	for _, id := range h.registry.Connected() {
		h.send(id, frame)
	}
	h.queueFeed.publish(h.queueUpdate())
}

// send hands one frame to the transport. Failures stay local to the
// endpoint.
func (h *Host) send(id string, frame []byte) {
	if err := h.port.Send(id, frame); err != nil {
		h.log.Printf("host: send to %s failed: %v", id, err)
		h.registry.SetTransferStatus(id, endpoint.Failure)
		rec, _ := h.registry.Get(id)
		h.connFeed.publish(ConnectionEvent{Type: EventTransferFailed, EndpointID: id, DisplayName: rec.DisplayName, Err: err})
		return
	}
	h.registry.SetTransferStatus(id, endpoint.InProgress)
}

func (h *Host) stop() {
	switch h.state {
	case HostIdle:
		h.closed()
		return
	case HostActive:
	default:
		return
	}
	h.setState(HostClosing)
	bye := protocol.Encode(protocol.HostDisconnecting{})
	ids := make([]string, 0, h.registry.Len())
	for _, rec := range h.registry.All() {
		ids = append(ids, rec.ID)
	}
	for _, id := range ids {
		h.registry.Upsert(id, "", endpoint.Disconnecting)
		h.send(id, bye)
		if err := h.port.Close(id); err != nil {
			h.log.Printf("host: close %s: %v", id, err)
		}
	}
	h.log.Printf("host: closing session %s (%d endpoints)", h.info.SessionID, len(ids))
	if len(ids) == 0 {
		h.closed()
		return
	}
	h.closeTimer = time.AfterFunc(h.cfg.CloseTimeout, func() {
		h.post(evCloseTimeout{})
	})
}

func (h *Host) forceClosed(reason string) {
	if h.state == HostClosed {
		return
	}
	for _, rec := range h.registry.All() {
		h.registry.Remove(rec.ID)
	}
	h.log.Printf("host: %s, forcing closed", reason)
	h.closed()
}

func (h *Host) closed() {
	if h.closeTimer != nil {
		h.closeTimer.Stop()
	}
	h.setState(HostClosed)
	h.log.Printf("host: session %s closed", h.info.SessionID)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
