package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/omochice/relaychat/internal/session"
	"github.com/omochice/relaychat/pkg/protocol"
)

// TimeLayout is the HH:MM stamp that prefixes every line.
const TimeLayout = "15:04"

// Printer is a session.Sink that writes one entry per event to out.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// New creates a Printer writing to out.
func New(out io.Writer) *Printer {
	return &Printer{out: out}
}

// HandleEvent implements session.Sink.
func (p *Printer) HandleEvent(ev session.Event) {
	lines := Format(ev)
	if len(lines) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, strings.Join(lines, "\n"))
}

// Format renders ev as one or more stamped lines. Peer-supplied fields are
// stripped of control characters.
func Format(ev session.Event) []string {
	stamp := "[" + ev.Time.Format(TimeLayout) + "] "

	var head string
	var body []string
	switch ev.Kind {
	case session.EventState:
		head = "* Status: " + ev.Status
	case session.EventSystem:
		head = "* " + ev.Text
	case session.EventError:
		head = "! Error: " + ev.Err.Error()
	case session.EventConnected:
		id := ev.ClientID
		if id == "" {
			id = "N/A"
		}
		head = "* Server confirmed connection. Client ID: " + id
	case session.EventMessage:
		sender := ev.Sender
		if ev.Self {
			sender += " (you)"
		}
		lines := Render(ev.Segments)
		if len(lines) == 0 {
			lines = []string{""}
		}
		head = sender + ": " + lines[0]
		body = lines[1:]
	case session.EventAPIResponse:
		head = fmt.Sprintf("* API response (echo: %s): %s", ev.Echo, protocol.Format(ev.Payload))
	case session.EventRecall:
		head = fmt.Sprintf("* Message %s was recalled", ev.MessageID)
	case session.EventNotice:
		head = fmt.Sprintf("* Notice (%s): %s", ev.NoticeType, protocol.Format(ev.Payload))
	case session.EventUnknownType:
		head = fmt.Sprintf("? Unknown message type: %s", ev.Type)
	case session.EventClosed:
		reason := ev.Reason
		if reason == "" {
			reason = "no reason given"
		}
		head = fmt.Sprintf("* Connection closed (code %d): %s", ev.Code, reason)
	default:
		return nil
	}

	out := []string{stamp + sanitize(head)}
	indent := strings.Repeat(" ", len(stamp))
	for _, line := range body {
		out = append(out, indent+sanitize(line))
	}
	return out
}
