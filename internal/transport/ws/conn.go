package ws

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ServerConn is the server side of an upgraded WebSocket connection.
type ServerConn struct {
	conn       net.Conn
	src        io.Reader
	remoteAddr string

	mu     sync.Mutex
	closed bool
}

// Accept upgrades an HTTP request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request) (*ServerConn, error) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	var src io.Reader = conn
	if rw != nil && rw.Reader != nil {
		src = rw.Reader
	}
	return &ServerConn{conn: conn, src: src, remoteAddr: r.RemoteAddr}, nil
}

// Read reads one text or binary message. A deadline on ctx becomes the read
// deadline of the socket.
func (c *ServerConn) Read(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	return readMessage(c.src, ws.StateServerSide, c.writeRaw)
}

// Write sends one text message.
func (c *ServerConn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return net.ErrClosed
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return wsutil.WriteServerText(c.conn, data)
}

// Close sends a normal closure frame and releases the connection.
func (c *ServerConn) Close() error {
	return c.CloseWith(int(ws.StatusNormalClosure), "")
}

// CloseWith sends a close frame with the given code and reason and releases
// the connection. Closing twice is a no-op.
func (c *ServerConn) CloseWith(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusCode(code), reason))
	return c.conn.Close()
}

// RemoteAddr returns the peer address for logging.
func (c *ServerConn) RemoteAddr() string {
	return c.remoteAddr
}

func (c *ServerConn) writeRaw(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	_, err := c.conn.Write(p)
	return err
}
