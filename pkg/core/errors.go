package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrNotFound is returned when an identifier is absent from its collection.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by Create* when the identifier is already taken.
	ErrExists = errors.New("already exists")
	// ErrInvalid marks validation failures (bad identifiers, bad contents,
	// templates without identifier).
	ErrInvalid = errors.New("invalid value")
	// ErrUnsupported is returned by backends lacking an optional capability.
	ErrUnsupported = errors.New("operation not supported by backend")
	// ErrNotEmpty is returned when deleting a project that still has children
	// without asking for a recursive delete.
	ErrNotEmpty = errors.New("not empty")
	// ErrReadOnly is returned for writes against a read-only backend.
	ErrReadOnly = errors.New("backend is in read-only mode")
)

// TypeError reports a value of the wrong type passed to a setter.
type TypeError struct {
	Field    string
	Expected string
	Got      any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %T", e.Field, e.Expected, e.Got)
}

// Is makes TypeError match ErrInvalid.
func (e *TypeError) Is(target error) bool { return target == ErrInvalid }

// BackendError is a failure reported by a storage backend: a non-success
// status, a malformed response or an error field in the response body.
type BackendError struct {
	Op      string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend %s %q", e.Op, e.Path)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the request may succeed.
func (e *BackendError) Temporary() bool {
	return e.Status == 0 && e.Err != nil || e.Status == 429 || e.Status >= 500
}

func notFound(kind, id, parent string) error {
	if parent == "" {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("%s %q in %s: %w", kind, id, parent, ErrNotFound)
}

func exists(kind, id, parent string) error {
	if parent == "" {
		return fmt.Errorf("%s %q: %w", kind, id, ErrExists)
	}
	return fmt.Errorf("%s %q in %s: %w", kind, id, parent, ErrExists)
}
