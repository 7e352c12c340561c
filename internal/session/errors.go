package session

import "errors"

var (
	// ErrConfig wraps config.ErrMissingField when connection settings are
	// incomplete.
	ErrConfig = errors.New("incomplete connection settings")

	// ErrAlreadyActive is returned by Connect while a session is open.
	ErrAlreadyActive = errors.New("session already active")

	// ErrTransportCreate is returned when the transport rejects the target.
	ErrTransportCreate = errors.New("failed to create transport")

	// ErrTransport reports a transport failure that ended the session.
	ErrTransport = errors.New("transport error")

	// ErrAuthRejected reports a non-ok auth_response.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrSend reports an outbound envelope that could not be written.
	ErrSend = errors.New("send failed")

	// ErrNotConnected is wrapped by ErrSend when there is no open transport
	// or the session has not authenticated.
	ErrNotConnected = errors.New("not connected")

	// ErrServer carries the text of an inbound error envelope.
	ErrServer = errors.New("server error")
)
