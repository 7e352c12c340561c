package relay

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/relaychat/pkg/protocol"
)

const outgoingBuffer = 32

// Client represents one connected client.
type Client struct {
	ID       string
	Conn     Conn
	Outgoing chan []byte

	// guarded by Hub.mu
	authed   bool
	userID   string
	nickname string
}

// NewClient wraps conn with a fresh client id.
func NewClient(conn Conn) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Conn:     conn,
		Outgoing: make(chan []byte, outgoingBuffer),
	}
}

// Hub tracks connected clients and routes envelopes between them.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	token   string
	logger  *slog.Logger
	metrics *metrics
}

// HubOption configures a Hub.
type HubOption func(*hubOptions)

type hubOptions struct {
	token  string
	logger *slog.Logger
	reg    prometheus.Registerer
}

// WithToken requires clients to authenticate with token. Without it any
// token is accepted.
func WithToken(token string) HubOption {
	return func(o *hubOptions) { o.token = token }
}

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) HubOption {
	return func(o *hubOptions) { o.logger = logger }
}

// WithRegisterer registers the relay metrics with reg.
func WithRegisterer(reg prometheus.Registerer) HubOption {
	return func(o *hubOptions) { o.reg = reg }
}

// NewHub creates a Hub.
func NewHub(opts ...HubOption) *Hub {
	o := hubOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Hub{
		clients: make(map[*Client]bool),
		token:   o.token,
		logger:  o.logger,
		metrics: newMetrics(o.reg),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.metrics.clients.Set(float64(len(h.clients)))
}

// Unregister removes a client from the hub. After it returns the hub no
// longer writes to client.Outgoing.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	h.metrics.clients.Set(float64(len(h.clients)))
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes the connection of every registered client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.Conn.Close()
	}
}

// HandleClient reads envelopes from client until the connection fails or
// authentication is rejected. Replies are queued on client.Outgoing.
func (h *Hub) HandleClient(ctx context.Context, client *Client) {
	log := h.logger.With("client_id", client.ID, "remote", client.Conn.RemoteAddr())
	log.Info("client connected")
	defer log.Info("client disconnected")

	for {
		data, err := client.Conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				log.Debug("read ended", "error", err)
			}
			return
		}
		if !h.handle(client, data) {
			return
		}
	}
}

// handle processes one inbound message and reports whether the client
// stays connected.
func (h *Hub) handle(c *Client, data []byte) bool {
	var env protocol.Envelope
	if err := env.Decode(data); err != nil {
		h.reply(c, "", protocol.TypeError, errorPayload("malformed envelope"))
		return true
	}
	h.metrics.received.WithLabelValues(typeLabel(env.Type)).Inc()

	switch env.Type {
	case protocol.TypeAuth:
		return h.auth(c, env)
	case protocol.TypeHeartbeat:
		h.reply(c, env.Echo, protocol.TypeHeartbeatResponse, protocol.HeartbeatPayload())
	case protocol.TypeMessage:
		h.relay(c, env)
	default:
		h.reply(c, env.Echo, protocol.TypeError, errorPayload("unsupported message type: "+env.Type.String()))
	}
	return true
}

func (h *Hub) auth(c *Client, env protocol.Envelope) bool {
	if h.isAuthed(c) {
		h.reply(c, env.Echo, protocol.TypeError, errorPayload("already authenticated"))
		return true
	}

	token := protocol.StringField(env.Payload, "token")
	if h.token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
		h.metrics.authFailures.Inc()
		h.logger.Warn("authentication failed", "client_id", c.ID, "remote", c.Conn.RemoteAddr())
		h.reply(c, env.Echo, protocol.TypeAuthResponse, object(map[string]*structpb.Value{
			"status":  structpb.NewStringValue("error"),
			"message": structpb.NewStringValue("invalid token"),
		}))
		return false
	}

	h.mu.Lock()
	c.authed = true
	c.userID = protocol.StringField(env.Payload, "user_id")
	c.nickname = protocol.StringField(env.Payload, "nickname")
	h.mu.Unlock()

	h.logger.Info("client authenticated", "client_id", c.ID, "user_id", c.userID)
	h.reply(c, env.Echo, protocol.TypeConnected, object(map[string]*structpb.Value{
		"clientId": structpb.NewStringValue(c.ID),
	}))
	h.reply(c, env.Echo, protocol.TypeAuthResponse, object(map[string]*structpb.Value{
		"status": structpb.NewStringValue("ok"),
	}))
	return true
}

func (h *Hub) relay(c *Client, env protocol.Envelope) {
	if !h.isAuthed(c) {
		h.reply(c, env.Echo, protocol.TypeError, errorPayload("not authenticated"))
		return
	}
	msg := protocol.Field(env.Payload, "message")
	if msg == nil {
		h.reply(c, env.Echo, protocol.TypeError, errorPayload("message has no content"))
		return
	}

	h.mu.RLock()
	userID, nickname := c.userID, c.nickname
	h.mu.RUnlock()

	messageID := uuid.NewString()
	h.reply(c, env.Echo, protocol.TypeMessageReceipt, object(map[string]*structpb.Value{
		"message_id": structpb.NewStringValue(messageID),
	}))

	out := protocol.Envelope{
		Type: protocol.TypeMessage,
		Echo: env.Echo,
		Payload: object(map[string]*structpb.Value{
			"message_id":   structpb.NewStringValue(messageID),
			"message_type": structpb.NewStringValue(protocol.StringField(env.Payload, "message_type")),
			"user_id":      structpb.NewStringValue(userID),
			"sender": object(map[string]*structpb.Value{
				"nickname": structpb.NewStringValue(nickname),
			}),
			"message": msg,
		}),
	}
	data, err := out.Encode()
	if err != nil {
		h.logger.Warn("failed to encode relayed message", "error", err)
		return
	}
	h.broadcast(c, data)
}

// broadcast queues data for every authenticated client except from.
func (h *Hub) broadcast(from *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c == from || !c.authed {
			continue
		}
		if h.enqueue(c, data) {
			h.metrics.relayed.Inc()
		}
	}
}

func (h *Hub) reply(c *Client, echo string, t protocol.MessageType, payload *structpb.Value) {
	env := protocol.Envelope{Type: t, Echo: echo, Payload: payload}
	data, err := env.Encode()
	if err != nil {
		h.logger.Warn("failed to encode reply", "type", t, "error", err)
		return
	}
	h.enqueue(c, data)
}

// enqueue never blocks; a full queue drops the envelope.
func (h *Hub) enqueue(c *Client, data []byte) bool {
	select {
	case c.Outgoing <- data:
		return true
	default:
		h.metrics.dropped.Inc()
		h.logger.Warn("client queue full, dropping envelope", "client_id", c.ID)
		return false
	}
}

func (h *Hub) isAuthed(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.authed
}

func object(fields map[string]*structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func errorPayload(msg string) *structpb.Value {
	return object(map[string]*structpb.Value{"message": structpb.NewStringValue(msg)})
}
