package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/expipe/pkg/codec"
)

// Manager is a read-mostly view over one collection of a backend subtree.
// It never caches: every call goes back to the backend.
type Manager[T any] struct {
	s      *Session
	kind   string
	parent string
	path   string
	open   func(id string) T
	// member overrides the existence check for collections whose listing
	// may contain foreign keys.
	member func(ctx context.Context, id string) (bool, error)
	remove func(ctx context.Context, id string) error
}

// Path returns the backend path of the collection.
func (m *Manager[T]) Path() string { return m.path }

// Keys returns the identifiers in the collection, sorted.
func (m *Manager[T]) Keys(ctx context.Context) ([]string, error) {
	v, err := m.s.Backend.Get(ctx, m.path, true)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", m.kind, err)
	}
	children, _ := v.(map[string]any)
	keys := make([]string, 0, len(children))
	for k := range children {
		if k == codec.ForceDictKey {
			continue
		}
		if m.member != nil {
			ok, err := m.member(ctx, k)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of members.
func (m *Manager[T]) Len(ctx context.Context) (int, error) {
	keys, err := m.Keys(ctx)
	return len(keys), err
}

// Contains reports whether id is a member of the collection.
func (m *Manager[T]) Contains(ctx context.Context, id string) (bool, error) {
	if ValidateID(id) != nil {
		return false, nil
	}
	if m.member != nil {
		return m.member(ctx, id)
	}
	return m.s.Backend.Exists(ctx, Join(m.path, id))
}

// Get returns the member id, or an error wrapping ErrNotFound.
func (m *Manager[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ok, err := m.Contains(ctx, id)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, notFound(m.kind, id, m.parent)
	}
	return m.open(id), nil
}

// Values returns every member.
func (m *Manager[T]) Values(ctx context.Context) ([]T, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(keys))
	for i, k := range keys {
		out[i] = m.open(k)
	}
	return out, nil
}

// Items returns every member keyed by identifier.
func (m *Manager[T]) Items(ctx context.Context) (map[string]T, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(keys))
	for _, k := range keys {
		out[k] = m.open(k)
	}
	return out, nil
}

// Delete removes the member id, cascading to whatever it owns.
func (m *Manager[T]) Delete(ctx context.Context, id string) error {
	if m.remove == nil {
		return fmt.Errorf("delete %s: %w", m.kind, ErrUnsupported)
	}
	return m.remove(ctx, id)
}
