package relay_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/omochice/relaychat/internal/relay"
	"github.com/omochice/relaychat/pkg/protocol"
)

// mockConn is a mock implementation of relay.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	writtenMu  sync.Mutex
	written    [][]byte
	closed     bool
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

// push queues an envelope for the hub to read.
func (m *mockConn) push(t *testing.T, mt protocol.MessageType, payload any) {
	t.Helper()
	v, err := protocol.NewPayload(payload)
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	env := protocol.Envelope{Type: mt, Echo: "e-" + string(mt), Payload: v}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m.readCh <- data
}

// drain decodes everything queued for client without blocking.
func drain(t *testing.T, c *relay.Client) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case data := <-c.Outgoing:
			var env protocol.Envelope
			if err := env.Decode(data); err != nil {
				t.Fatalf("hub queued an undecodable envelope %q: %v", data, err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func types(envs []protocol.Envelope) []protocol.MessageType {
	out := make([]protocol.MessageType, len(envs))
	for i, env := range envs {
		out[i] = env.Type
	}
	return out
}
