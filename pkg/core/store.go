package core

import (
	"context"
	"errors"
	"fmt"
)

// SchemaVersion is written into every project attribute document.
const SchemaVersion = 1

// Store is the entry point of the domain model: it hands out projects
// stored in one backend.
type Store struct {
	s *Session
}

// NewStore creates a Store over the given session.
func NewStore(s Session) *Store {
	if s.Layout == nil {
		s.Layout = FileLayout{}
	}
	return &Store{s: &s}
}

// Session returns the session shared by the objects of this store.
func (st *Store) Session() *Session { return st.s }

// Backend returns the underlying backend.
func (st *Store) Backend() Backend { return st.s.Backend }

// Projects lists the projects present in the backend.
func (st *Store) Projects() *Manager[*Project] {
	return &Manager[*Project]{
		s:    st.s,
		kind: "project",
		path: st.s.Layout.Projects(),
		open: st.open,
		member: func(ctx context.Context, id string) (bool, error) {
			return st.s.Backend.Exists(ctx, st.s.Layout.ProjectAttributes(id))
		},
		remove: func(ctx context.Context, id string) error {
			return st.DeleteProject(ctx, id, true)
		},
	}
}

func (st *Store) open(id string) *Project {
	return newProject(st.s, id)
}

// GetProject returns an existing project.
func (st *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	return st.Projects().Get(ctx, id)
}

// RequireProject returns the project id, creating it when absent.
func (st *Store) RequireProject(ctx context.Context, id string) (*Project, error) {
	p, err := st.GetProject(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return st.CreateProject(ctx, id)
}

// CreateProject registers a new project. It fails with ErrExists when the
// project is already registered.
func (st *Store) CreateProject(ctx context.Context, id string) (*Project, error) {
	if err := ValidateID(id); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	if id == ReservedProjectID {
		return nil, fmt.Errorf("create project: %w: identifier %q is reserved", ErrInvalid, id)
	}
	ok, err := st.Projects().Contains(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, exists("project", id, "")
	}
	attrs := map[string]any{
		"schema_version": SchemaVersion,
		AttrRegistered:   FormatDatetime(st.s.now()),
	}
	if err := st.s.Backend.Set(ctx, st.s.Layout.ProjectAttributes(id), attrs); err != nil {
		return nil, fmt.Errorf("create project %q: %w", id, err)
	}
	st.s.logger().Info("project created", "project", id)
	return st.open(id), nil
}

// DeleteProject removes a project. Unless removeAll is set, a project that
// still owns actions, entities, modules or templates is left untouched and
// ErrNotEmpty is returned.
func (st *Store) DeleteProject(ctx context.Context, id string, removeAll bool) error {
	p, err := st.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if !removeAll {
		n, err := p.children(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("project %q has %d children: %w", id, n, ErrNotEmpty)
		}
	}
	if err := p.deleteChildren(ctx); err != nil {
		return err
	}
	for _, root := range st.s.Layout.ProjectRoots(id) {
		if err := st.s.Backend.Delete(ctx, root); err != nil {
			return fmt.Errorf("delete project %q: %w", id, err)
		}
	}
	st.s.logger().Info("project deleted", "project", id)
	return nil
}

// Watch streams change events matching pattern. The backend must
// implement Watchable.
func (st *Store) Watch(ctx context.Context, pattern string) (<-chan Event, error) {
	w, ok := st.s.Backend.(Watchable)
	if !ok {
		return nil, fmt.Errorf("watch: %w", ErrUnsupported)
	}
	return w.Watch(ctx, pattern)
}
