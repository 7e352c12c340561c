package relay

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omochice/relaychat/internal/transport/ws"
)

const writeTimeout = 10 * time.Second

// Server accepts WebSocket clients at /ws and hands them to a Hub. It also
// serves /metrics and /healthz.
type Server struct {
	address  string
	listener net.Listener
	hub      *Hub
	router   chi.Router
	server   *http.Server
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewServer creates a server for hub listening on address. When gatherer is
// non-nil its metrics are exposed at /metrics.
func NewServer(address string, hub *Hub, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		address: address,
		hub:     hub,
		logger:  hub.logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r
	s.server = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("relay listening", "addr", listener.Addr().String())
	return nil
}

// Serve accepts connections on the socket bound by Listen. It returns
// http.ErrServerClosed after Stop.
func (s *Server) Serve() error {
	return s.server.Serve(s.listener)
}

// Start listens and serves.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop shuts down the HTTP server, closes every client connection and waits
// for client goroutines to exit.
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.hub.CloseAll()
	s.wg.Wait()
	return err
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r)
	if err != nil {
		s.logger.Warn("failed to accept WebSocket connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn)
	s.hub.Register(client)

	s.wg.Add(2)
	go s.handleClient(client)
	go s.writeLoop(client)
}

func (s *Server) handleClient(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.hub.Unregister(client)
		close(client.Outgoing)
	}()
	s.hub.HandleClient(context.Background(), client)
}

// writeLoop drains the client queue and closes the connection once the
// queue is closed or a write fails.
func (s *Server) writeLoop(client *Client) {
	defer s.wg.Done()
	defer client.Conn.Close()
	for data := range client.Outgoing {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := client.Conn.Write(ctx, data)
		cancel()
		if err != nil {
			s.logger.Debug("failed to write to client", "client_id", client.ID, "error", err)
			return
		}
	}
}
