package relay_test

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omochice/relaychat/internal/relay"
	"github.com/omochice/relaychat/pkg/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHub(opts ...relay.HubOption) *relay.Hub {
	return relay.NewHub(append([]relay.HubOption{relay.WithLogger(quietLogger())}, opts...)...)
}

func authPayload(token, nickname string) map[string]any {
	return map[string]any{"token": token, "user_id": "id-" + nickname, "nickname": nickname}
}

// run feeds the queued input to the hub and waits for HandleClient to
// return.
func run(hub *relay.Hub, c *relay.Client, m *mockConn) {
	close(m.readCh)
	hub.HandleClient(context.Background(), c)
}

func TestHub_Register(t *testing.T) {
	hub := newHub()
	client := relay.NewClient(newMockConn("127.0.0.1:1234"))

	hub.Register(client)

	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
	if client.ID == "" {
		t.Error("client has no id")
	}
}

func TestHub_Register_MultipleClients(t *testing.T) {
	hub := newHub()

	for i := 0; i < 3; i++ {
		hub.Register(relay.NewClient(newMockConn("127.0.0.1:1234")))
	}

	if got := hub.ClientCount(); got != 3 {
		t.Errorf("ClientCount() = %d, want 3", got)
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := newHub()
	client := relay.NewClient(newMockConn("127.0.0.1:1234"))
	hub.Register(client)

	hub.Unregister(client)

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestHub_CloseAll(t *testing.T) {
	hub := newHub()
	a, b := newMockConn("a"), newMockConn("b")
	hub.Register(relay.NewClient(a))
	hub.Register(relay.NewClient(b))

	hub.CloseAll()

	if !a.closed || !b.closed {
		t.Errorf("closed = %v, %v", a.closed, b.closed)
	}
}

func TestHub_AuthAccepted(t *testing.T) {
	hub := newHub(relay.WithToken("secret"))
	m := newMockConn("a")
	c := relay.NewClient(m)
	m.push(t, protocol.TypeAuth, authPayload("secret", "alice"))

	run(hub, c, m)

	envs := drain(t, c)
	want := []protocol.MessageType{protocol.TypeConnected, protocol.TypeAuthResponse}
	if got := types(envs); !slices.Equal(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	if got := protocol.StringField(envs[0].Payload, "clientId"); got != c.ID {
		t.Errorf("clientId = %q, want %q", got, c.ID)
	}
	if got := protocol.StringField(envs[1].Payload, "status"); got != "ok" {
		t.Errorf("status = %q", got)
	}
	if envs[1].Echo != "e-auth" {
		t.Errorf("echo = %q, want request echo", envs[1].Echo)
	}
}

func TestHub_AnyTokenWithoutConfiguredToken(t *testing.T) {
	hub := newHub()
	m := newMockConn("a")
	c := relay.NewClient(m)
	m.push(t, protocol.TypeAuth, authPayload("whatever", "alice"))

	run(hub, c, m)

	envs := drain(t, c)
	if len(envs) != 2 || protocol.StringField(envs[1].Payload, "status") != "ok" {
		t.Fatalf("envelopes = %v", types(envs))
	}
}

func TestHub_AuthRejectedEndsClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := newHub(relay.WithToken("secret"), relay.WithRegisterer(reg))
	m := newMockConn("a")
	c := relay.NewClient(m)
	m.push(t, protocol.TypeAuth, authPayload("wrong", "mallory"))
	m.push(t, protocol.TypeHeartbeat, map[string]any{})

	// readCh stays open: HandleClient must return on its own.
	hub.HandleClient(context.Background(), c)

	envs := drain(t, c)
	if len(envs) != 1 || envs[0].Type != protocol.TypeAuthResponse {
		t.Fatalf("envelopes = %v, want a single auth_response", types(envs))
	}
	if got := protocol.StringField(envs[0].Payload, "status"); got != "error" {
		t.Errorf("status = %q, want error", got)
	}
	if got := protocol.StringField(envs[0].Payload, "message"); got == "" {
		t.Error("rejection carries no message")
	}
	if got := gaugeOrCounter(t, reg, "relaychat_relay_auth_failures_total"); got != 1 {
		t.Errorf("auth failures = %v, want 1", got)
	}
}

func TestHub_Heartbeat(t *testing.T) {
	hub := newHub()
	m := newMockConn("a")
	c := relay.NewClient(m)
	m.push(t, protocol.TypeHeartbeat, map[string]any{})

	run(hub, c, m)

	envs := drain(t, c)
	if len(envs) != 1 || envs[0].Type != protocol.TypeHeartbeatResponse || envs[0].Echo != "e-heartbeat" {
		t.Fatalf("envelopes = %+v", envs)
	}
}

func TestHub_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input func(t *testing.T, m *mockConn)
		want  string
	}{
		{
			name:  "message before auth",
			input: func(t *testing.T, m *mockConn) { m.push(t, protocol.TypeMessage, map[string]any{"message": "hi"}) },
			want:  "not authenticated",
		},
		{
			name:  "unsupported type",
			input: func(t *testing.T, m *mockConn) { m.push(t, "group_upload", nil) },
			want:  "unsupported message type: group_upload",
		},
		{
			name:  "malformed",
			input: func(_ *testing.T, m *mockConn) { m.readCh <- []byte("{") },
			want:  "malformed envelope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newHub()
			m := newMockConn("a")
			c := relay.NewClient(m)
			tt.input(t, m)

			run(hub, c, m)

			envs := drain(t, c)
			if len(envs) != 1 || envs[0].Type != protocol.TypeError {
				t.Fatalf("envelopes = %v", types(envs))
			}
			if got := protocol.StringField(envs[0].Payload, "message"); got != tt.want {
				t.Errorf("message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHub_RelaysToOtherClients(t *testing.T) {
	hub := newHub()

	bobConn := newMockConn("b")
	bob := relay.NewClient(bobConn)
	hub.Register(bob)
	bobConn.push(t, protocol.TypeAuth, authPayload("", "bob"))
	run(hub, bob, bobConn)
	drain(t, bob)

	idle := relay.NewClient(newMockConn("c"))
	hub.Register(idle)

	aliceConn := newMockConn("a")
	alice := relay.NewClient(aliceConn)
	hub.Register(alice)
	aliceConn.push(t, protocol.TypeAuth, authPayload("", "alice"))
	aliceConn.push(t, protocol.TypeMessage, map[string]any{"message_type": "private", "message": "hello bob"})
	run(hub, alice, aliceConn)

	own := drain(t, alice)
	wantOwn := []protocol.MessageType{protocol.TypeConnected, protocol.TypeAuthResponse, protocol.TypeMessageReceipt}
	if got := types(own); !slices.Equal(got, wantOwn) {
		t.Fatalf("alice got %v, want %v", got, wantOwn)
	}

	got := drain(t, bob)
	if len(got) != 1 || got[0].Type != protocol.TypeMessage {
		t.Fatalf("bob got %v, want one message", types(got))
	}
	p := got[0].Payload
	checks := map[string]string{
		"nickname":     protocol.StringField(p, "sender", "nickname"),
		"user_id":      protocol.StringField(p, "user_id"),
		"message":      protocol.StringField(p, "message"),
		"message_type": protocol.StringField(p, "message_type"),
	}
	want := map[string]string{"nickname": "alice", "user_id": "id-alice", "message": "hello bob", "message_type": "private"}
	for k, v := range want {
		if checks[k] != v {
			t.Errorf("%s = %q, want %q", k, checks[k], v)
		}
	}
	if id := protocol.StringField(p, "message_id"); id == "" || id != protocol.StringField(own[2].Payload, "message_id") {
		t.Errorf("message_id = %q does not match receipt", id)
	}

	if envs := drain(t, idle); len(envs) != 0 {
		t.Errorf("unauthenticated client got %v", types(envs))
	}
}

func TestHub_ClientGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := newHub(relay.WithRegisterer(reg))
	a := relay.NewClient(newMockConn("a"))
	hub.Register(a)
	hub.Register(relay.NewClient(newMockConn("b")))
	hub.Unregister(a)

	if got := gaugeOrCounter(t, reg, "relaychat_relay_clients"); got != 1 {
		t.Errorf("clients gauge = %v, want 1", got)
	}
}

func gaugeOrCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
