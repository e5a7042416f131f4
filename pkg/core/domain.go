package core

import (
	"fmt"
	"time"
)

// EventType represents the type of change in a backend.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a change observed under a backend path.
type Event struct {
	Type      EventType
	Path      string
	Timestamp int64 // Unix timestamp
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Type, e.Path)
}

// DatetimeFormat is the fixed layout used to store timestamps.
const DatetimeFormat = "2006-01-02T15:04:05"

// FormatDatetime renders t in DatetimeFormat.
func FormatDatetime(t time.Time) string {
	return t.Format(DatetimeFormat)
}

// ParseDatetime parses a DatetimeFormat timestamp.
func ParseDatetime(s string) (time.Time, error) {
	return time.Parse(DatetimeFormat, s)
}
