// Package transport defines the full-duplex text connection driven by a
// chat session. Implementations live in subpackages.
package transport

import "errors"

// Close codes surfaced to handlers.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// ErrNotOpen is returned by Send when the connection is not open.
var ErrNotOpen = errors.New("connection is not open")

// Handler receives the events of one connection. Calls are made sequentially
// from a single goroutine: at most one HandleOpen, then any number of
// HandleMessage, then exactly one of HandleError or HandleClose. Once the local
// side has closed the connection no further call is started, though one that
// was already being delivered may still run.
type Handler interface {
	HandleOpen()
	HandleMessage(data []byte)
	HandleError(err error)
	HandleClose(code int, reason string)
}

// Conn is the outbound side of a connection.
type Conn interface {
	// Send writes one text message.
	Send(data []byte) error

	// Close sends a close frame with code and reason when the connection is
	// open, then releases it.
	Close(code int, reason string) error

	// Abort releases the connection without a close frame.
	Abort() error

	// Ready reports whether the connection is open for sending.
	Ready() bool
}

// Dialer creates connections. Open validates the target and returns
// immediately; the connection is established in the background and
// reported through h.
type Dialer interface {
	Open(url string, h Handler) (Conn, error)
}
