// Package relay is a minimal chat relay speaking the envelope protocol. It
// authenticates clients, answers heartbeats and fans chat messages out to
// every other authenticated client.
package relay

import "context"

// Conn abstracts the server side of one client connection.
type Conn interface {
	// Read reads a single text message.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text message.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
