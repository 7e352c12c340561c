package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/omochice/relaychat/internal/config"
	"github.com/omochice/relaychat/internal/session"
)

var errQuit = errors.New("quit")

const helpText = "Commands: /connect, /disconnect, /status, /help, /quit. Anything else is sent as a message."

// chatSession is the part of *session.Session the prompt drives.
type chatSession interface {
	Connect(cfg config.Session) error
	Disconnect()
	SendChat(text string) error
	State() session.State
	ClientID() string
}

type repl struct {
	sess    chatSession
	cfg     config.Session
	printer session.Sink
}

// handle runs one input line and reports whether the client should exit.
// Failures are already reported through the session sink.
func (r *repl) handle(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		r.sess.SendChat(line)
		return false
	}

	switch cmd, _, _ := strings.Cut(line, " "); cmd {
	case "/quit", "/exit":
		return true
	case "/connect":
		r.sess.Connect(r.cfg)
	case "/disconnect":
		r.sess.Disconnect()
	case "/status":
		id := r.sess.ClientID()
		if id == "" {
			id = "N/A"
		}
		r.notice(fmt.Sprintf("State: %s, client id: %s", r.sess.State(), id))
	case "/help":
		r.notice(helpText)
	default:
		r.notice("Unknown command " + cmd + ". " + helpText)
	}
	return false
}

func (r *repl) notice(text string) {
	r.printer.HandleEvent(session.Event{Kind: session.EventSystem, Time: time.Now(), Text: text})
}

// scanLines delivers input lines until EOF. The reader cannot be
// interrupted, so the goroutine outlives the prompt on shutdown.
func scanLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
