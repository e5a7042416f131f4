package core

import (
	"context"
	"fmt"
	"time"
)

// Message is a timestamped note attached to an action or entity.
type Message struct {
	s    *Session
	path string
	id   string
}

func (m *Message) ID() string { return m.id }

// Contents returns the whole message document.
func (m *Message) Contents(ctx context.Context) (map[string]any, error) {
	v, err := m.s.Backend.Get(ctx, m.path, false)
	if err != nil {
		return nil, err
	}
	doc, _ := v.(map[string]any)
	return doc, nil
}

func (m *Message) field(ctx context.Context, name string) (string, error) {
	v, err := m.s.Backend.Get(ctx, Join(m.path, name), false)
	if err != nil || v == nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Field: name, Expected: "string", Got: v}
	}
	return s, nil
}

func (m *Message) Text(ctx context.Context) (string, error) { return m.field(ctx, "text") }

func (m *Message) User(ctx context.Context) (string, error) { return m.field(ctx, "user") }

// Datetime returns the message timestamp, or the zero time when unset.
func (m *Message) Datetime(ctx context.Context) (time.Time, error) {
	s, err := m.field(ctx, "datetime")
	if err != nil || s == "" {
		return time.Time{}, err
	}
	return ParseDatetime(s)
}

func (m *Message) SetText(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("message %s: %w: text is required", m.id, ErrInvalid)
	}
	return m.s.Backend.Set(ctx, Join(m.path, "text"), text)
}

func (m *Message) SetUser(ctx context.Context, user string) error {
	return m.s.Backend.Set(ctx, Join(m.path, "user"), user)
}

func (m *Message) SetDatetime(ctx context.Context, t time.Time) error {
	return m.s.Backend.Set(ctx, Join(m.path, "datetime"), FormatDatetime(t))
}
