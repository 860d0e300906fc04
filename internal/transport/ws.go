package transport

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HostEndpoint is the endpoint ID a dialing client uses for its host.
const HostEndpoint = "host"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsFrames struct {
	conn *websocket.Conn
}

func newWSFrames(conn *websocket.Conn) *wsFrames {
	conn.SetReadLimit(MaxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &wsFrames{conn: conn}
}

func (f *wsFrames) readFrame() ([]byte, error) {
	for {
		mt, data, err := f.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil, fmt.Errorf("ws read: %w", err)
			}
			return nil, err
		}
		if mt == websocket.TextMessage {
			return data, nil
		}
	}
}

func (f *wsFrames) writeFrame(frame []byte) error {
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return f.conn.WriteMessage(websocket.TextMessage, frame)
}

func (f *wsFrames) keepalive() error {
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return f.conn.WriteMessage(websocket.PingMessage, nil)
}

func (f *wsFrames) shutdown() error {
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := f.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	f.conn.Close()
	return err
}

func (f *wsFrames) abort() error {
	return f.conn.Close()
}

// WSHost accepts client WebSocket connections. Each connection becomes an
// endpoint with a fresh ID.
type WSHost struct {
	peerSet
	handler Handler
	log     *log.Logger
}

func NewWSHost(h Handler, logger *log.Logger) *WSHost {
	if logger == nil {
		logger = log.Default()
	}
	return &WSHost{handler: h, log: logger}
}

// ServeHTTP upgrades the request and registers the new endpoint.
func (t *WSHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Printf("ws: upgrade error: %v", err)
		return
	}
	id := uuid.New().String()
	t.handler.OnConnecting(id)
	l := newLink(id, newWSFrames(conn), t.handler, t.log, t.remove)
	if err := t.add(l); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "host shutting down"))
		conn.Close()
		t.handler.OnDisconnected(id)
		return
	}
	t.log.Printf("ws: endpoint %s connected from %s", id, r.RemoteAddr)
	t.handler.OnConnected(id)
	l.run()
}

// Shutdown closes every connection and refuses new ones.
func (t *WSHost) Shutdown() {
	t.closeAll()
}

// DialConfig controls how DialWS retries.
type DialConfig struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *log.Logger
}

func (c *DialConfig) defaults() {
	if c.Attempts <= 0 {
		c.Attempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

// WSConn is a client's connection to one host. The host is always
// HostEndpoint.
type WSConn struct {
	peerSet
}

// DialWS connects to a host's /ws endpoint, retrying with exponential
// backoff. h sees the host as HostEndpoint.
func DialWS(ctx context.Context, serverURL string, h Handler, cfg DialConfig) (*WSConn, error) {
	cfg.defaults()
	wsURL, err := BuildWSURL(serverURL)
	if err != nil {
		return nil, err
	}

	backoff := cfg.InitialBackoff
	var conn *websocket.Conn
	for attempt := 1; ; attempt++ {
		h.OnConnecting(HostEndpoint)
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err == nil {
			break
		}
		if attempt >= cfg.Attempts {
			return nil, fmt.Errorf("dial %s: %w", wsURL, err)
		}
		cfg.Logger.Printf("ws: dial %s failed (%v), retrying in %s", wsURL, err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	c := &WSConn{}
	l := newLink(HostEndpoint, newWSFrames(conn), h, cfg.Logger, c.remove)
	c.add(l)
	cfg.Logger.Printf("ws: connected to %s", wsURL)
	h.OnConnected(HostEndpoint)
	l.run()
	return c, nil
}

// BuildWSURL turns a host's base URL into its WebSocket URL.
func BuildWSURL(serverURL string) (string, error) {
	if !strings.Contains(serverURL, "://") {
		serverURL = "http://" + serverURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if p := strings.TrimSuffix(u.Path, "/"); !strings.HasSuffix(p, "/ws") {
		u.Path = p + "/ws"
	}
	return u.String(), nil
}
