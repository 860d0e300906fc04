package transport

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/corvino/jamq/internal/endpoint"
)

// MaxFrameSize is the largest frame a peer accepts. Senders must keep
// every frame within it.
const MaxFrameSize = 64 * 1024

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 256
)

// frameConn is one framed, bidirectional connection.
type frameConn interface {
	readFrame() ([]byte, error)
	writeFrame(frame []byte) error
	keepalive() error
	// shutdown ends the connection after everything written so far.
	shutdown() error
	abort() error
}

// link pumps frames between a frameConn and a Handler. All writes go
// through writeLoop.
type link struct {
	id      string
	conn    frameConn
	handler Handler
	log     *log.Logger

	send      chan []byte
	closing   chan struct{}
	closeOnce sync.Once
	// onExit reports whether the link was still the registered one for
	// its ID; only then is the handler told about the disconnect.
	onExit func(l *link) bool
}

func newLink(id string, conn frameConn, h Handler, logger *log.Logger, onExit func(*link) bool) *link {
	return &link{
		id:      id,
		conn:    conn,
		handler: h,
		log:     logger,
		send:    make(chan []byte, sendBufSize),
		closing: make(chan struct{}),
		onExit:  onExit,
	}
}

func (l *link) queue(frame []byte) error {
	select {
	case <-l.closing:
		return ErrClosed
	default:
	}
	select {
	case l.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (l *link) requestClose() {
	l.closeOnce.Do(func() { close(l.closing) })
}

func (l *link) readLoop() {
	defer func() {
		l.requestClose()
		l.conn.abort()
		if l.onExit != nil && !l.onExit(l) {
			return
		}
		l.handler.OnDisconnected(l.id)
	}()
	for {
		data, err := l.conn.readFrame()
		if err != nil {
			return
		}
		l.handler.OnPayloadReceived(l.id, data)
	}
}

func (l *link) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame := <-l.send:
			if !l.write(frame) {
				return
			}
		case <-l.closing:
			for {
				select {
				case frame := <-l.send:
					if !l.write(frame) {
						return
					}
				default:
					if err := l.conn.shutdown(); err != nil {
						l.log.Printf("close %s: %v", l.id, err)
					}
					return
				}
			}
		case <-ticker.C:
			if err := l.conn.keepalive(); err != nil {
				l.conn.abort()
				return
			}
		}
	}
}

func (l *link) write(frame []byte) bool {
	if err := l.conn.writeFrame(frame); err != nil {
		l.log.Printf("write to %s: %v", l.id, err)
		l.handler.OnTransferStatusChanged(l.id, endpoint.Failure)
		l.conn.abort()
		return false
	}
	l.handler.OnTransferStatusChanged(l.id, endpoint.Success)
	return true
}

// run starts the pumps. It returns immediately.
func (l *link) run() {
	go l.writeLoop()
	go l.readLoop()
}

// peerSet is the endpoint table shared by the transports. Its Send and
// Close make the embedding type a Port.
type peerSet struct {
	mu    sync.RWMutex
	links map[string]*link
	shut  bool
}

// add registers l. An ID that already has a live link is refused.
func (p *peerSet) add(l *link) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shut {
		return ErrClosed
	}
	if _, ok := p.links[l.id]; ok {
		return ErrDuplicateEndpoint
	}
	if p.links == nil {
		p.links = make(map[string]*link)
	}
	p.links[l.id] = l
	return nil
}

// remove drops l if it is still the link registered under its ID.
func (p *peerSet) remove(l *link) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.links[l.id]; !ok || cur != l {
		return false
	}
	delete(p.links, l.id)
	return true
}

func (p *peerSet) get(id string) (*link, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l, ok := p.links[id]
	return l, ok
}

// Send queues frame for endpointID.
func (p *peerSet) Send(endpointID string, frame []byte) error {
	l, ok := p.get(endpointID)
	if !ok {
		return ErrUnknownEndpoint
	}
	return l.queue(frame)
}

// Close drains endpointID's queued frames and then closes it.
func (p *peerSet) Close(endpointID string) error {
	l, ok := p.get(endpointID)
	if !ok {
		return ErrUnknownEndpoint
	}
	l.requestClose()
	return nil
}

// Endpoints lists the connected endpoint IDs.
func (p *peerSet) Endpoints() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.links))
	for id := range p.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// closeAll closes every link and refuses new ones.
func (p *peerSet) closeAll() {
	p.mu.Lock()
	p.shut = true
	links := make([]*link, 0, len(p.links))
	for _, l := range p.links {
		links = append(links, l)
	}
	p.mu.Unlock()
	for _, l := range links {
		l.requestClose()
	}
}
