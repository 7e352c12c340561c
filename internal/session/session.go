// Package session implements the client side of a relay chat connection:
// the connect and authenticate handshake, keep-alive heartbeats, and
// dispatch of inbound envelopes to an event sink.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/relaychat/internal/config"
	"github.com/omochice/relaychat/internal/heartbeat"
	"github.com/omochice/relaychat/internal/segment"
	"github.com/omochice/relaychat/internal/transport"
	"github.com/omochice/relaychat/pkg/protocol"
)

// CloseReason is sent with the normal close frame on Disconnect.
const CloseReason = "Client initiated disconnect"

// DefaultSender labels inbound messages that name no sender.
const DefaultSender = "Bot"

// Session owns at most one connection attempt at a time. Every entry point,
// transport callback and heartbeat tick runs under one lock, so events are
// handled one at a time in delivery order.
type Session struct {
	dialer   transport.Dialer
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	reg      prometheus.Registerer
	metrics  *metrics

	mu   sync.Mutex
	conn *connection
}

// connection is the state of one attempt. It is discarded on disconnect;
// callbacks that still reference it afterwards are ignored.
type connection struct {
	cfg       config.Session
	state     State
	clientID  string
	transport transport.Conn
	heartbeat *heartbeat.Scheduler
}

// Option configures a Session.
type Option func(*Session)

// WithSink sets the event receiver. Without one, events are dropped.
func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithHeartbeatInterval overrides heartbeat.DefaultInterval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// WithRegisterer registers the session metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Session) { s.reg = reg }
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a disconnected Session that opens transports with dialer.
func New(dialer transport.Dialer, opts ...Option) *Session {
	s := &Session{
		dialer:   dialer,
		logger:   slog.Default(),
		interval: heartbeat.DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.reg)
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return Disconnected
	}
	return s.conn.state
}

// ClientID returns the id assigned by the server, or "" when none has been
// received for the current attempt.
func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.clientID
}

// Connect starts a new attempt with cfg. It returns once the transport has
// been created; the handshake completes in the background and is reported
// through the sink.
func (s *Session) Connect(cfg config.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.fail(ErrAlreadyActive)
	}
	cfg = cfg.Trimmed()
	if err := cfg.Validate(); err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrConfig, err))
	}

	c := &connection{cfg: cfg, heartbeat: heartbeat.New()}
	s.conn = c
	s.system("Connecting to %s...", cfg.WSURL)
	s.setState(c, Connecting, "")

	t, err := s.dialer.Open(cfg.WSURL, &handler{s: s, c: c})
	if err != nil {
		err = s.fail(fmt.Errorf("%w: %w", ErrTransportCreate, err))
		s.shutdown(c, false, StatusError)
		return err
	}
	c.transport = t
	s.logger.Info("connecting", "url", cfg.WSURL)
	return nil
}

// SendChat sends text as a private chat message and echoes it to the sink
// as a message of our own. Text that is empty after trimming is ignored.
func (s *Session) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conn
	if c == nil || c.state != Connected {
		return s.fail(fmt.Errorf("%w: %w", ErrSend, ErrNotConnected))
	}
	if err := s.send(c, protocol.TypeMessage, protocol.ChatPayload(text)); err != nil {
		return err
	}
	s.emit(Event{
		Kind:     EventMessage,
		Sender:   c.cfg.Nickname,
		Self:     true,
		Segments: []segment.Segment{segment.Text{Content: text}},
	})
	return nil
}

// Disconnect ends the current attempt. An open transport gets a normal
// close frame; otherwise it is released without one. Disconnect does
// nothing when already disconnected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conn
	if c == nil {
		return
	}
	s.logger.Info("disconnecting", "state", c.state)
	s.system("Disconnecting...")
	s.shutdown(c, true, StatusDisconnected)
}

// handler binds transport callbacks to one attempt.
type handler struct {
	s *Session
	c *connection
}

func (h *handler) HandleOpen() {
	if !h.s.enter(h.c) {
		return
	}
	defer h.s.mu.Unlock()
	h.s.onOpen(h.c)
}

func (h *handler) HandleMessage(data []byte) {
	if !h.s.enter(h.c) {
		return
	}
	defer h.s.mu.Unlock()
	h.s.onMessage(h.c, data)
}

func (h *handler) HandleError(err error) {
	if !h.s.enter(h.c) {
		return
	}
	defer h.s.mu.Unlock()
	h.s.logger.Warn("transport error", "url", h.c.cfg.WSURL, "error", err)
	h.s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
	h.s.shutdown(h.c, false, StatusError)
}

func (h *handler) HandleClose(code int, reason string) {
	if !h.s.enter(h.c) {
		return
	}
	defer h.s.mu.Unlock()
	h.s.logger.Info("transport closed", "code", code, "reason", reason)
	h.s.emit(Event{Kind: EventClosed, Code: code, Reason: reason})
	h.s.shutdown(h.c, false, StatusDisconnected)
}

// enter takes the lock and reports whether c is still the current attempt.
// On false the lock is not held.
func (s *Session) enter(c *connection) bool {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return false
	}
	return true
}

func (s *Session) onOpen(c *connection) {
	s.logger.Info("transport open", "url", c.cfg.WSURL)
	s.system("WebSocket connection open, authenticating...")
	s.setState(c, Authenticating, "")
	s.send(c, protocol.TypeAuth, protocol.AuthPayload(c.cfg.Token, c.cfg.UserID, c.cfg.Nickname))

	// Started before the auth outcome is known.
	s.system("Starting heartbeat (every %s)...", s.interval)
	c.heartbeat.Start(func() { s.tick(c) }, s.interval)
}

func (s *Session) tick(c *connection) {
	if !s.enter(c) {
		return
	}
	defer s.mu.Unlock()
	if err := s.send(c, protocol.TypeHeartbeat, protocol.HeartbeatPayload()); err == nil {
		s.metrics.heartbeats.Inc()
	}
}

func (s *Session) onMessage(c *connection, data []byte) {
	var env protocol.Envelope
	if err := env.Decode(data); err != nil {
		s.metrics.decodeErrors.Inc()
		s.logger.Warn("dropping inbound message", "error", err)
		s.fail(err)
		return
	}
	s.metrics.received.WithLabelValues(typeLabel(env.Type)).Inc()
	s.logger.Debug("envelope received", "type", env.Type, "echo", env.Echo)
	s.dispatch(c, env)
}

func (s *Session) dispatch(c *connection, env protocol.Envelope) {
	p := env.Payload

	switch env.Type {
	case protocol.TypeConnected:
		c.clientID = protocol.StringField(p, "clientId")
		s.logger.Info("server confirmed connection", "client_id", c.clientID)
		s.emit(Event{Kind: EventConnected, ClientID: c.clientID})

	case protocol.TypeAuthResponse:
		if protocol.StringField(p, "status") == "ok" {
			if c.state != Authenticating {
				s.logger.Debug("ignoring repeated auth_response", "state", c.state)
				return
			}
			s.system("Authentication succeeded!")
			s.setState(c, Connected, "")
			return
		}
		msg := protocol.StringField(p, "message")
		if msg == "" {
			msg = "unknown error"
		}
		s.logger.Warn("authentication rejected", "reason", msg)
		s.fail(fmt.Errorf("%w: %s", ErrAuthRejected, msg))
		s.shutdown(c, false, StatusAuthFailed)

	case protocol.TypeMessage:
		s.emit(Event{
			Kind:     EventMessage,
			Sender:   senderLabel(p),
			Segments: segment.Normalize(protocol.Field(p, "message")),
		})

	case protocol.TypeMessageReceipt, protocol.TypeHeartbeatResponse:
		// acknowledgments carry nothing to report

	case protocol.TypeAPIResponse:
		s.emit(Event{Kind: EventAPIResponse, Echo: env.Echo, Payload: p})

	case protocol.TypeError:
		msg := protocol.StringField(p, "message")
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = "unknown error"
		}
		s.fail(fmt.Errorf("%w: %s", ErrServer, msg))

	case protocol.TypeNotice:
		noticeType := protocol.StringField(p, "notice_type")
		if noticeType == "recall_attempt" {
			s.emit(Event{
				Kind:       EventRecall,
				NoticeType: noticeType,
				MessageID:  protocol.StringField(p, "message_id"),
				Payload:    p,
			})
			return
		}
		s.emit(Event{Kind: EventNotice, NoticeType: noticeType, Payload: p})

	default:
		s.logger.Warn("unknown envelope type", "type", env.Type)
		s.emit(Event{Kind: EventUnknownType, Type: env.Type, Payload: p})
	}
}

func senderLabel(p *structpb.Value) string {
	if nick := protocol.StringField(p, "sender", "nickname"); nick != "" {
		return nick
	}
	if id := protocol.StringField(p, "user_id"); id != "" {
		return id
	}
	return DefaultSender
}

// send writes one envelope on the attempt's transport. Failures are
// reported to the sink and returned.
func (s *Session) send(c *connection, t protocol.MessageType, payload *structpb.Value) error {
	if c.transport == nil || !c.transport.Ready() {
		return s.fail(fmt.Errorf("%w: %s: %w", ErrSend, t, ErrNotConnected))
	}
	env := protocol.NewEnvelope(t, payload)
	data, err := env.Encode()
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrSend, err))
	}
	if err := c.transport.Send(data); err != nil {
		return s.fail(fmt.Errorf("%w: %s: %w", ErrSend, t, err))
	}
	s.metrics.sent.WithLabelValues(typeLabel(t)).Inc()
	s.logger.Debug("envelope sent", "type", t, "echo", env.Echo)
	return nil
}

// shutdown ends attempt c and returns the session to Disconnected with
// status. A graceful shutdown passes through Closing and sends a normal
// close frame when the transport is open.
func (s *Session) shutdown(c *connection, graceful bool, status string) {
	if c.heartbeat.Running() {
		s.system("Stopping heartbeat.")
		c.heartbeat.Stop()
	}
	if graceful {
		s.setState(c, Closing, "")
	}
	if t := c.transport; t != nil {
		var err error
		if graceful && t.Ready() {
			err = t.Close(transport.CloseNormal, CloseReason)
		} else {
			err = t.Abort()
		}
		if err != nil {
			s.logger.Debug("releasing transport", "error", err)
		}
	}
	c.transport = nil
	c.clientID = ""
	s.conn = nil
	s.setState(c, Disconnected, status)
}

func (s *Session) setState(c *connection, st State, status string) {
	c.state = st
	if status == "" {
		status = st.String()
	}
	s.metrics.transitions.WithLabelValues(st.String()).Inc()
	s.logger.Debug("state changed", "state", st, "status", status)
	s.emit(Event{Kind: EventState, State: st, Status: status})
}

func (s *Session) system(format string, args ...any) {
	s.emit(Event{Kind: EventSystem, Text: fmt.Sprintf(format, args...)})
}

// fail reports err to the sink and returns it.
func (s *Session) fail(err error) error {
	s.emit(Event{Kind: EventError, Err: err})
	return err
}

func (s *Session) emit(ev Event) {
	if s.sink == nil {
		return
	}
	ev.Time = s.now()
	s.sink.HandleEvent(ev)
}
