package core

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Backend is the contract every storage adapter implements.
//
// Paths are slash-delimited and relative to the backend root. Values passed
// to Set, Push and Update are encoded with the backend's codec; values
// returned by Get are decoded with it.
type Backend interface {
	// Exists reports whether anything is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
	// Get returns the decoded value at path, or nil if nothing is stored.
	// With shallow set, maps are returned with their keys only (each mapped
	// to true) and values are not fetched.
	Get(ctx context.Context, path string, shallow bool) (any, error)
	// Set overwrites the value at path.
	Set(ctx context.Context, path string, value any) error
	// Push stores value under a backend-generated child key of path and
	// returns the key. Backends that cannot generate keys return ErrUnsupported.
	Push(ctx context.Context, path string, value any) (string, error)
	// Update merges the top-level keys of value into the map at path.
	Update(ctx context.Context, path string, value map[string]any) error
	// Delete removes path and everything beneath it.
	Delete(ctx context.Context, path string) error
}

// Watchable is implemented by backends that can report changes.
type Watchable interface {
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}

// Join builds a backend path from segments, skipping empty ones.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// Split returns the segments of a backend path.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// ValidateID checks that id can be used as a single path segment on every
// backend.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier must be a non-empty string", ErrInvalid)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: identifier %q is reserved", ErrInvalid, id)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: identifier %q has surrounding whitespace", ErrInvalid, id)
	}
	for _, r := range id {
		if strings.ContainsRune(`/\#$[]`, r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: identifier %q contains %q", ErrInvalid, id, r)
		}
	}
	return nil
}
