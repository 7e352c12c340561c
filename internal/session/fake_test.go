package session_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/omochice/relaychat/internal/session"
	"github.com/omochice/relaychat/internal/transport"
	"github.com/omochice/relaychat/pkg/protocol"
)

// fakeConn records what the session writes and how it releases the
// connection.
type fakeConn struct {
	mu          sync.Mutex
	ready       bool
	sent        [][]byte
	closed      bool
	closeCode   int
	closeReason string
	aborted     bool
	sendErr     error
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return transport.ErrNotOpen
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	c.ready = false
	return nil
}

func (c *fakeConn) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	c.ready = false
	return nil
}

func (c *fakeConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeConn) setReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// envelopes decodes everything sent so far.
func (c *fakeConn) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(c.sent))
	for _, data := range c.sent {
		var env protocol.Envelope
		if err := env.Decode(data); err != nil {
			t.Fatalf("session sent an undecodable envelope %q: %v", data, err)
		}
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) countType(t *testing.T, mt protocol.MessageType) int {
	t.Helper()
	n := 0
	for _, env := range c.envelopes(t) {
		if env.Type == mt {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu       sync.Mutex
	openErr  error
	urls     []string
	conns    []*fakeConn
	handlers []transport.Handler
}

func (d *fakeDialer) Open(url string, h transport.Handler) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.openErr != nil {
		return nil, d.openErr
	}
	c := &fakeConn{}
	d.conns = append(d.conns, c)
	d.handlers = append(d.handlers, h)
	return c, nil
}

func (d *fakeDialer) opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) last(t *testing.T) (*fakeConn, transport.Handler) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		t.Fatal("no connection was opened")
	}
	return d.conns[len(d.conns)-1], d.handlers[len(d.handlers)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *recorder) HandleEvent(ev session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []session.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Event(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) ofKind(k session.EventKind) []session.Event {
	var out []session.Event
	for _, ev := range r.all() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) states() []session.State {
	var out []session.State
	for _, ev := range r.ofKind(session.EventState) {
		out = append(out, ev.State)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
