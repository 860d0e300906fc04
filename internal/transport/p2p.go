package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
)

const (
	// QueueProtoID is the stream protocol carrying session frames.
	QueueProtoID = "/jamq/queue/1.0.0"
	// MdnsTag is the service name hosts are discovered under on the LAN.
	MdnsTag = "jamq-mdns"

	connectTimeout = 10 * time.Second
)

func init() {
	// Dial failures and backoff errors otherwise go to stderr.
	logging.SetLogLevel("swarm2", "error")
	logging.SetLogLevel("mdns", "error")
}

type streamFrames struct {
	s  network.Stream
	sc *bufio.Scanner
}

// Frames are newline delimited; the wire codec escapes raw newlines.
func newStreamFrames(s network.Stream) *streamFrames {
	sc := bufio.NewScanner(s)
	// Room for a full-size frame plus its newline.
	sc.Buffer(make([]byte, 4096), MaxFrameSize+1)
	return &streamFrames{s: s, sc: sc}
}

func (f *streamFrames) readFrame() ([]byte, error) {
	for f.sc.Scan() {
		line := f.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := f.sc.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("stream closed")
}

func (f *streamFrames) writeFrame(frame []byte) error {
	f.s.SetWriteDeadline(time.Now().Add(writeWait))
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := f.s.Write(buf)
	return err
}

// Streams ride on libp2p connections that keep themselves alive.
func (f *streamFrames) keepalive() error { return nil }

func (f *streamFrames) shutdown() error { return f.s.Close() }

func (f *streamFrames) abort() error { return f.s.Reset() }

// P2PConfig configures a P2PNode.
type P2PConfig struct {
	// ListenAddrs are multiaddrs to listen on; default all interfaces on a
	// random TCP port.
	ListenAddrs []string
	// Discovery enables mDNS on the local network.
	Discovery bool
	Logger    *log.Logger
}

// P2PNode carries session frames over libp2p streams. Endpoint IDs are
// peer IDs.
type P2PNode struct {
	peerSet
	host    host.Host
	handler Handler
	log     *log.Logger
	md      mdns.Service
	found   chan peer.AddrInfo
}

func NewP2PNode(h Handler, cfg P2PConfig) (*P2PNode, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if len(cfg.ListenAddrs) == 0 {
		cfg.ListenAddrs = []string{"/ip4/0.0.0.0/tcp/0"}
	}
	lh, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddrs...))
	if err != nil {
		return nil, fmt.Errorf("libp2p: %w", err)
	}
	n := &P2PNode{
		host:    lh,
		handler: h,
		log:     cfg.Logger,
		found:   make(chan peer.AddrInfo, 16),
	}
	lh.SetStreamHandler(protocol.ID(QueueProtoID), n.accept)

	if cfg.Discovery {
		n.md = mdns.NewMdnsService(lh, MdnsTag, n)
		if err := n.md.Start(); err != nil {
			_ = lh.Close()
			return nil, fmt.Errorf("mdns: %w", err)
		}
	}
	n.log.Printf("p2p: node %s listening on %v", lh.ID(), lh.Addrs())
	return n, nil
}

// ID is this node's peer ID.
func (n *P2PNode) ID() string { return n.host.ID().String() }

// Addrs returns dialable multiaddrs including the /p2p/ component.
func (n *P2PNode) Addrs() []string {
	info := peer.AddrInfo{ID: n.host.ID(), Addrs: n.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// HandlePeerFound is the mDNS callback.
func (n *P2PNode) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.host.ID() {
		return
	}
	select {
	case n.found <- pi:
	default:
	}
}

func (n *P2PNode) accept(s network.Stream) {
	id := s.Conn().RemotePeer().String()
	if _, ok := n.get(id); ok {
		// One queue stream per peer; the live one stays.
		n.log.Printf("p2p: refusing second stream from %s", id)
		_ = s.Reset()
		return
	}
	n.handler.OnConnecting(id)
	l := newLink(id, newStreamFrames(s), n.handler, n.log, n.remove)
	if err := n.add(l); err != nil {
		_ = s.Reset()
		if errors.Is(err, ErrClosed) {
			n.handler.OnDisconnected(id)
		}
		return
	}
	n.log.Printf("p2p: endpoint %s connected", id)
	n.handler.OnConnected(id)
	l.run()
}

// Dial opens a queue stream to the peer at addr, a multiaddr ending in
// /p2p/<peer id>. It returns the endpoint ID.
func (n *P2PNode) Dial(ctx context.Context, addr string) (string, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return "", fmt.Errorf("parse multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return "", fmt.Errorf("peer address: %w", err)
	}
	return n.open(ctx, *info)
}

// DialDiscovered waits for mDNS to find a peer serving the queue protocol
// and connects to the first one that accepts.
func (n *P2PNode) DialDiscovered(ctx context.Context) (string, error) {
	if n.md == nil {
		return "", errors.New("p2p: discovery disabled")
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case pi := <-n.found:
			id, err := n.open(ctx, pi)
			if err == nil {
				return id, nil
			}
			n.log.Printf("p2p: skipping %s: %v", pi.ID, err)
		}
	}
}

func (n *P2PNode) open(ctx context.Context, info peer.AddrInfo) (string, error) {
	id := info.ID.String()
	if _, ok := n.get(id); ok {
		return id, nil
	}
	n.handler.OnConnecting(id)
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := n.host.Connect(cctx, info); err != nil {
		n.handler.OnDisconnected(id)
		return "", fmt.Errorf("connect %s: %w", id, err)
	}
	s, err := n.host.NewStream(cctx, info.ID, protocol.ID(QueueProtoID))
	if err != nil {
		n.handler.OnDisconnected(id)
		return "", fmt.Errorf("open stream to %s: %w", id, err)
	}
	// An empty line forces protocol negotiation so the remote handler
	// runs before we have anything to say.
	if _, err := s.Write([]byte("\n")); err != nil {
		_ = s.Reset()
		n.handler.OnDisconnected(id)
		return "", fmt.Errorf("open stream to %s: %w", id, err)
	}
	l := newLink(id, newStreamFrames(s), n.handler, n.log, n.remove)
	if err := n.add(l); err != nil {
		_ = s.Reset()
		if errors.Is(err, ErrDuplicateEndpoint) {
			return id, nil
		}
		n.handler.OnDisconnected(id)
		return "", err
	}
	n.handler.OnConnected(id)
	l.run()
	return id, nil
}

// Shutdown closes all streams, stops discovery and the libp2p host.
func (n *P2PNode) Shutdown() error {
	n.closeAll()
	if n.md != nil {
		_ = n.md.Close()
	}
	return n.host.Close()
}
