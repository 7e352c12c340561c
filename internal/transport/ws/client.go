package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/relaychat/internal/transport"
)

const (
	// DefaultDialTimeout bounds the TCP connect and WebSocket handshake.
	DefaultDialTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	closeTimeout = time.Second
)

// Dialer opens client connections. The zero value is usable.
type Dialer struct {
	Timeout      time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Open implements transport.Dialer. It rejects URLs that are not ws:// or
// wss:// and otherwise returns a connection that dials in the background.
func (d *Dialer) Open(rawURL string, h transport.Handler) (transport.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid url %q: scheme must be ws or wss", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", rawURL)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		url:          rawURL,
		handler:      h,
		logger:       logger,
		cancel:       cancel,
		writeTimeout: writeTimeout,
	}
	go c.run(ctx, ws.Dialer{Timeout: timeout})
	return c, nil
}

type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateClosed
)

// Conn is a client WebSocket connection. mu guards the state and is never
// held across I/O. Frame writes are serialized by wmu and bounded by a write
// deadline.
type Conn struct {
	url          string
	handler      transport.Handler
	logger       *slog.Logger
	cancel       context.CancelFunc
	writeTimeout time.Duration

	mu    sync.Mutex
	conn  net.Conn
	state connState

	wmu sync.Mutex
}

var _ transport.Conn = (*Conn)(nil)

// Send implements transport.Conn. A failed write releases the socket so the
// read side reports the loss through the handler.
func (c *Conn) Send(data []byte) error {
	conn := c.openConn()
	if conn == nil {
		return transport.ErrNotOpen
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.write(conn, c.writeTimeout, func() error {
		return wsutil.WriteClientText(conn, data)
	}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close(code int, reason string) error {
	return c.shutdown(true, code, reason)
}

// Abort implements transport.Conn.
func (c *Conn) Abort() error {
	return c.shutdown(false, 0, "")
}

// Ready implements transport.Conn.
func (c *Conn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

func (c *Conn) openConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOpen {
		return nil
	}
	return c.conn
}

func (c *Conn) write(conn net.Conn, timeout time.Duration, fn func() error) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return fn()
}

// shutdown does not wait behind a write in flight: when one holds wmu the
// close frame is skipped and closing the socket fails that write.
func (c *Conn) shutdown(frame bool, code int, reason string) error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	wasOpen := c.state == stateOpen
	c.state = stateClosed
	c.cancel()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	var err error
	if frame && wasOpen && c.wmu.TryLock() {
		body := ws.NewCloseFrameBody(ws.StatusCode(code), reason)
		err = c.write(conn, closeTimeout, func() error {
			return wsutil.WriteClientMessage(conn, ws.OpClose, body)
		})
		c.wmu.Unlock()
	}
	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Conn) run(ctx context.Context, dialer ws.Dialer) {
	conn, br, _, err := dialer.Dial(ctx, c.url)
	if err != nil {
		if c.claimClose() {
			return
		}
		c.handler.HandleError(fmt.Errorf("failed to connect to %s: %w", c.url, err))
		return
	}

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = stateOpen
	c.mu.Unlock()

	var src io.Reader = conn
	if br != nil {
		// The server may have sent frames right behind the handshake.
		src = br
	}

	if c.closedLocally() {
		return
	}
	c.logger.Debug("websocket open", "url", c.url)
	c.handler.HandleOpen()
	c.readLoop(src)
}

func (c *Conn) readLoop(src io.Reader) {
	for {
		data, err := readMessage(src, ws.StateClientSide, c.writeRaw)
		if err != nil {
			c.finish(err)
			return
		}
		if c.closedLocally() {
			return
		}
		c.handler.HandleMessage(data)
	}
}

func (c *Conn) writeRaw(p []byte) error {
	conn := c.openConn()
	if conn == nil {
		return transport.ErrNotOpen
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.write(conn, c.writeTimeout, func() error {
		_, err := conn.Write(p)
		return err
	})
}

// finish reports the end of the read side unless the local side closed the
// connection first.
func (c *Conn) finish(err error) {
	if c.claimClose() {
		return
	}

	var closed wsutil.ClosedError
	switch {
	case errors.As(err, &closed):
		c.logger.Debug("websocket closed by peer", "url", c.url, "code", int(closed.Code), "reason", closed.Reason)
		c.handler.HandleClose(int(closed.Code), closed.Reason)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.logger.Debug("websocket dropped", "url", c.url)
		c.handler.HandleClose(transport.CloseAbnormal, "")
	default:
		c.logger.Debug("websocket read failed", "url", c.url, "error", err)
		c.handler.HandleError(err)
	}
}

func (c *Conn) closedLocally() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

// claimClose moves the connection to closed and releases the socket. It
// reports whether the local side had already closed it.
func (c *Conn) claimClose() (local bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	local = c.state == stateClosed
	c.state = stateClosed
	if c.conn != nil {
		c.conn.Close()
	}
	return local
}
