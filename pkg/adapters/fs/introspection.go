package fs

import (
	"github.com/aretw0/introspection"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path          string `json:"path"`
	Versioned     bool   `json:"versioned"`
	WatcherActive bool   `json:"watcher_active"`
	Writes        int    `json:"writes"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RepositoryState{
		Path:          r.Path,
		Versioned:     r.git != nil,
		WatcherActive: r.watcherActive,
		Writes:        r.writes,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "filesystem"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
