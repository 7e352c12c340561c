package session

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/relaychat/internal/segment"
	"github.com/omochice/relaychat/pkg/protocol"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventState reports a state transition. State and Status are set.
	EventState EventKind = iota
	// EventSystem is an informational lifecycle line in Text.
	EventSystem
	// EventError reports a failure in Err.
	EventError
	// EventConnected reports the server-assigned ClientID, which may be
	// empty.
	EventConnected
	// EventMessage carries a chat message. Self marks the local echo of a
	// sent message.
	EventMessage
	// EventAPIResponse carries Echo and Payload of an api_response.
	EventAPIResponse
	// EventRecall reports a recall_attempt notice for MessageID.
	EventRecall
	// EventNotice carries any other notice with its NoticeType and Payload.
	EventNotice
	// EventUnknownType reports an envelope Type with no handler.
	EventUnknownType
	// EventClosed reports the close Code and Reason given by the peer.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventSystem:
		return "system"
	case EventError:
		return "error"
	case EventConnected:
		return "connected"
	case EventMessage:
		return "message"
	case EventAPIResponse:
		return "api_response"
	case EventRecall:
		return "recall"
	case EventNotice:
		return "notice"
	case EventUnknownType:
		return "unknown_type"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one notification delivered to a Sink. Only the fields named by
// Kind are set.
type Event struct {
	Kind EventKind
	Time time.Time

	State  State
	Status string

	Text string
	Err  error

	ClientID string

	Sender   string
	Self     bool
	Segments []segment.Segment

	Echo       string
	Payload    *structpb.Value
	NoticeType string
	MessageID  string

	Type protocol.MessageType

	Code   int
	Reason string
}

// Sink receives session events. HandleEvent is called with the session lock
// held, one event at a time and in order; it must not call back into the
// Session.
type Sink interface {
	HandleEvent(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) HandleEvent(ev Event) {
	f(ev)
}
