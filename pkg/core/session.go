package core

import (
	"log/slog"
	"time"
)

// Session binds a backend to the layout and defaults used by the domain
// objects. One Session is created per store and shared by every object it
// hands out; it is read-only after construction.
type Session struct {
	Backend  Backend
	Layout   Layout
	Username string
	Logger   *slog.Logger
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (s *Session) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}
