package transport

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corvino/jamq/internal/endpoint"
)

type event struct {
	kind    string
	id      string
	payload string
	status  endpoint.TransferStatus
}

// recorder is a Handler that queues every callback.
type recorder struct {
	events chan event
}

func newRecorder() *recorder { return &recorder{events: make(chan event, 1024)} }

func (r *recorder) OnConnecting(id string)   { r.events <- event{kind: "connecting", id: id} }
func (r *recorder) OnConnected(id string)    { r.events <- event{kind: "connected", id: id} }
func (r *recorder) OnDisconnected(id string) { r.events <- event{kind: "disconnected", id: id} }
func (r *recorder) OnPayloadReceived(id string, p []byte) {
	r.events <- event{kind: "payload", id: id, payload: string(p)}
}
func (r *recorder) OnTransferStatusChanged(id string, s endpoint.TransferStatus) {
	r.events <- event{kind: "transfer", id: id, status: s}
}

// next returns the next event of the given kind, skipping others.
func (r *recorder) next(t *testing.T, kind string) event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if ev.kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestWebSocketRoundTrip(t *testing.T) {
	hostRec := newRecorder()
	wsHost := NewWSHost(hostRec, quiet())
	srv := httptest.NewServer(wsHost)
	defer srv.Close()
	defer wsHost.Shutdown()

	clientRec := newRecorder()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := DialWS(ctx, srv.URL, clientRec, DialConfig{Logger: quiet()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if ev := clientRec.next(t, "connected"); ev.id != HostEndpoint {
		t.Fatalf("client sees host as %q", ev.id)
	}
	id := hostRec.next(t, "connected").id
	if got := wsHost.Endpoints(); len(got) != 1 || got[0] != id {
		t.Fatalf("endpoints got=%v", got)
	}

	if err := wsHost.Send(id, []byte("INIT|s|t|o|1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ev := clientRec.next(t, "payload"); ev.payload != "INIT|s|t|o|1" || ev.id != HostEndpoint {
		t.Fatalf("client payload got=%+v", ev)
	}
	if ev := hostRec.next(t, "transfer"); ev.id != id || ev.status != endpoint.Success {
		t.Fatalf("host transfer got=%+v", ev)
	}

	if err := conn.Send(HostEndpoint, []byte("REQ|a|u1|Ann")); err != nil {
		t.Fatalf("client send: %v", err)
	}
	if ev := hostRec.next(t, "payload"); ev.payload != "REQ|a|u1|Ann" || ev.id != id {
		t.Fatalf("host payload got=%+v", ev)
	}

	if err := wsHost.Send("nobody", []byte("x")); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("unknown endpoint err=%v", err)
	}

	// Frames queued before Close are delivered before the connection ends.
	wsHost.Send(id, []byte("QUPD|0|"))
	wsHost.Send(id, []byte("HOSTBYE"))
	if err := wsHost.Close(id); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := wsHost.Send(id, []byte("late")); !errors.Is(err, ErrClosed) && !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("send after close err=%v", err)
	}
	if ev := clientRec.next(t, "payload"); ev.payload != "QUPD|0|" {
		t.Fatalf("got=%q", ev.payload)
	}
	if ev := clientRec.next(t, "payload"); ev.payload != "HOSTBYE" {
		t.Fatalf("got=%q", ev.payload)
	}
	clientRec.next(t, "disconnected")
	if ev := hostRec.next(t, "disconnected"); ev.id != id {
		t.Fatalf("host disconnect got=%+v", ev)
	}
	if got := wsHost.Endpoints(); len(got) != 0 {
		t.Fatalf("endpoint not removed: %v", got)
	}
}

func TestWebSocketShutdownRefusesNew(t *testing.T) {
	hostRec := newRecorder()
	wsHost := NewWSHost(hostRec, quiet())
	srv := httptest.NewServer(wsHost)
	defer srv.Close()
	wsHost.Shutdown()

	clientRec := newRecorder()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := DialWS(ctx, srv.URL, clientRec, DialConfig{Logger: quiet()}); err != nil {
		t.Fatalf("dial: %v", err)
	}
	clientRec.next(t, "disconnected")
	hostRec.next(t, "disconnected")
	if got := wsHost.Endpoints(); len(got) != 0 {
		t.Fatalf("endpoints got=%v", got)
	}
}

func TestDialWSGivesUp(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	rec := newRecorder()
	_, err := DialWS(context.Background(), url, rec, DialConfig{
		Attempts:       2,
		InitialBackoff: 5 * time.Millisecond,
		Logger:         quiet(),
	})
	if err == nil {
		t.Fatalf("dial to closed server succeeded")
	}
	rec.next(t, "connecting")
	rec.next(t, "connecting")
}

func TestBuildWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":     "ws://localhost:8080/ws",
		"https://jam.example.com/":  "wss://jam.example.com/ws",
		"localhost:9000":            "ws://localhost:9000/ws",
		"http://10.0.0.2:8080/ws":   "ws://10.0.0.2:8080/ws",
		"http://10.0.0.2/party/":    "ws://10.0.0.2/party/ws",
		"ws://already.example:1/ws": "ws://already.example:1/ws",
	}
	for in, want := range cases {
		got, err := BuildWSURL(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Errorf("BuildWSURL(%q) got=%q want=%q", in, got, want)
		}
	}
}

// nopConn never completes a write.
type nopConn struct{}

func (nopConn) readFrame() ([]byte, error) { return nil, io.EOF }
func (nopConn) writeFrame([]byte) error    { return nil }
func (nopConn) keepalive() error           { return nil }
func (nopConn) shutdown() error            { return nil }
func (nopConn) abort() error               { return nil }

func TestLinkQueueLimits(t *testing.T) {
	l := newLink("ep", nopConn{}, newRecorder(), quiet(), nil)
	for i := 0; i < sendBufSize; i++ {
		if err := l.queue([]byte("x")); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if err := l.queue([]byte("x")); !errors.Is(err, ErrSendBufferFull) {
		t.Fatalf("overflow err=%v want ErrSendBufferFull", err)
	}
	l.requestClose()
	l.requestClose()
	if err := l.queue([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed err=%v want ErrClosed", err)
	}
}

type listPort struct {
	failFor string
	sent    []string
}

func (p *listPort) Send(id string, _ []byte) error {
	if id == p.failFor {
		return ErrSendBufferFull
	}
	p.sent = append(p.sent, id)
	return nil
}

func (p *listPort) Close(string) error { return nil }

func TestSendAll(t *testing.T) {
	p := &listPort{failFor: "b"}
	failed := SendAll(p, []string{"a", "b", "c"}, []byte("x"))
	if len(failed) != 1 || !errors.Is(failed["b"], ErrSendBufferFull) {
		t.Fatalf("failed got=%v", failed)
	}
	if len(p.sent) != 2 || p.sent[0] != "a" || p.sent[1] != "c" {
		t.Fatalf("sent got=%v", p.sent)
	}
	if SendAll(p, []string{"a"}, nil) != nil {
		t.Fatalf("no failures should return nil")
	}
}

type onePort struct {
	id     string
	sent   int
	closed int
}

func (p *onePort) Send(id string, _ []byte) error {
	if id != p.id {
		return ErrUnknownEndpoint
	}
	p.sent++
	return nil
}

func (p *onePort) Close(id string) error {
	if id != p.id {
		return ErrUnknownEndpoint
	}
	p.closed++
	return nil
}

func TestMuxRoutesByEndpoint(t *testing.T) {
	ws, p2p := &onePort{id: "ws-1"}, &onePort{id: "peer-1"}
	m := NewMux(ws, p2p)
	if err := m.Send("peer-1", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := m.Send("ws-1", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := m.Close("peer-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ws.sent != 1 || p2p.sent != 1 || p2p.closed != 1 || ws.closed != 0 {
		t.Fatalf("ws=%+v p2p=%+v", ws, p2p)
	}
	if err := m.Send("nobody", nil); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("unknown err=%v", err)
	}
	if err := m.Close("nobody"); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("unknown close err=%v", err)
	}
}

func TestPeerSetRefusesDuplicateID(t *testing.T) {
	var p peerSet
	rec := newRecorder()
	live := newLink("ep", nopConn{}, rec, quiet(), p.remove)
	if err := p.add(live); err != nil {
		t.Fatalf("add: %v", err)
	}
	dup := newLink("ep", nopConn{}, rec, quiet(), p.remove)
	if err := p.add(dup); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Fatalf("second add err=%v want ErrDuplicateEndpoint", err)
	}

	// The refused link ending must not unregister or disconnect the live one.
	dup.readLoop()
	if got := p.Endpoints(); len(got) != 1 || got[0] != "ep" {
		t.Fatalf("endpoints got=%v", got)
	}
	select {
	case ev := <-rec.events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
	if err := p.Send("ep", []byte("x")); err != nil {
		t.Fatalf("send to live link: %v", err)
	}

	live.readLoop()
	if ev := rec.next(t, "disconnected"); ev.id != "ep" {
		t.Fatalf("disconnect got=%+v", ev)
	}
	if got := p.Endpoints(); len(got) != 0 {
		t.Fatalf("live link not removed: %v", got)
	}
	if err := p.add(newLink("ep", nopConn{}, rec, quiet(), p.remove)); err != nil {
		t.Fatalf("re-add after removal: %v", err)
	}
}
