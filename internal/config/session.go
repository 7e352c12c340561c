package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingField is matched by every MissingFieldError.
var ErrMissingField = errors.New("missing required setting")

// MissingFieldError names the first empty required connection setting.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required setting %q", e.Field)
}

// Is reports whether target is ErrMissingField.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// Session is the immutable connection record a chat session is opened with.
// All four fields are required.
type Session struct {
	WSURL    string
	Token    string
	UserID   string
	Nickname string
}

// Trimmed returns a copy with surrounding whitespace removed from every
// field.
func (s Session) Trimmed() Session {
	return Session{
		WSURL:    strings.TrimSpace(s.WSURL),
		Token:    strings.TrimSpace(s.Token),
		UserID:   strings.TrimSpace(s.UserID),
		Nickname: strings.TrimSpace(s.Nickname),
	}
}

// Validate returns a *MissingFieldError for the first empty field.
func (s Session) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"ws_url", s.WSURL},
		{"token", s.Token},
		{"user_id", s.UserID},
		{"nickname", s.Nickname},
	}
	for _, f := range fields {
		if f.value == "" {
			return &MissingFieldError{Field: f.name}
		}
	}
	return nil
}
