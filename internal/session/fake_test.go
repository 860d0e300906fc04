package session

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/transport"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakePort records frames per endpoint.
type fakePort struct {
	mu     sync.Mutex
	frames map[string][]protocol.Message
	closed map[string]int
	fail   map[string]bool
}

func newFakePort() *fakePort {
	return &fakePort{
		frames: make(map[string][]protocol.Message),
		closed: make(map[string]int),
		fail:   make(map[string]bool),
	}
}

func (p *fakePort) Send(id string, frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[id] {
		return transport.ErrSendBufferFull
	}
	p.frames[id] = append(p.frames[id], protocol.Decode(frame))
	return nil
}

func (p *fakePort) Close(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed[id]++
	return nil
}

func (p *fakePort) sent(id string) []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Message, len(p.frames[id]))
	copy(out, p.frames[id])
	return out
}

func (p *fakePort) kinds(id string) []protocol.Kind {
	var out []protocol.Kind
	for _, m := range p.sent(id) {
		out = append(out, m.Kind())
	}
	return out
}

func (p *fakePort) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = make(map[string][]protocol.Message)
}

func (p *fakePort) closeCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed[id]
}

// recordingPlayer captures player notifications.
type recordingPlayer struct {
	mu         sync.Mutex
	nowPlaying []protocol.QueueEntry
	skips      int
	toggles    int
}

func (p *recordingPlayer) OnNowPlayingChanged(e protocol.QueueEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowPlaying = append(p.nowPlaying, e)
}

func (p *recordingPlayer) OnPlayPauseRequested() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toggles++
}

func (p *recordingPlayer) OnSkipRequested() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skips++
}

func (p *recordingPlayer) playing() []protocol.QueueEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.QueueEntry, len(p.nowPlaying))
	copy(out, p.nowPlaying)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func reqFrame(uri, user, name string) []byte {
	return protocol.Encode(protocol.SongRequest{TrackURI: uri, RequesterUserID: user, RequesterDisplayName: name})
}
