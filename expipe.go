package expipe

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/expipe/internal/platform"
	"github.com/aretw0/expipe/pkg/core"
	"github.com/aretw0/expipe/pkg/typed"
)

// --- Types ---

// Handle is an open store and the connections behind it.
type Handle = platform.Handle

// Settings is the settings file format.
type Settings = platform.Settings

// RemoteSettings configure the remote document tree.
type RemoteSettings = platform.RemoteSettings

// Model is a typed view of one module.
type Model[T any] = typed.Model[T]

// TypedRepository maps the modules of one owner onto T values.
type TypedRepository[T any] = typed.Repository[T]

// --- Configuration ---

// Option configures Open.
type Option = platform.Option

// Adapter names.
const (
	AdapterFS     = platform.AdapterFS
	AdapterMemory = platform.AdapterMemory
	AdapterRemote = platform.AdapterRemote
	AdapterRedis  = platform.AdapterRedis
)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option { return platform.WithLogger(logger) }

// WithBackend injects a ready backend.
func WithBackend(b core.Backend) Option { return platform.WithBackend(b) }

// WithAdapter selects the storage adapter by name.
func WithAdapter(name string) Option { return platform.WithAdapter(name) }

// WithLayout overrides the path layout.
func WithLayout(l core.Layout) Option { return platform.WithLayout(l) }

// WithUsername sets the default author of messages.
func WithUsername(name string) Option { return platform.WithUsername(name) }

// WithMetrics instruments the backend on reg.
func WithMetrics(reg prometheus.Registerer) Option { return platform.WithMetrics(reg) }

// WithVersioning records filesystem writes as git commits.
func WithVersioning(enabled bool) Option { return platform.WithVersioning(enabled) }

// WithMustExist requires the data directory to exist.
func WithMustExist(must bool) Option { return platform.WithMustExist(must) }

// WithReadOnly rejects every write.
func WithReadOnly(enabled bool) Option { return platform.WithReadOnly(enabled) }

// WithWatcherErrorHandler receives asynchronous watcher errors.
func WithWatcherErrorHandler(fn func(error)) Option {
	return platform.WithWatcherErrorHandler(fn)
}

// WithRemote configures the remote adapter.
func WithRemote(s RemoteSettings) Option { return platform.WithRemote(s) }

// WithRedisPrefix sets the redis key namespace.
func WithRedisPrefix(prefix string) Option { return platform.WithRedisPrefix(prefix) }

// WithSettings applies a settings file.
func WithSettings(s Settings) Option { return platform.WithSettings(s) }

// --- Factory ---

// Open returns a store over the backend selected by opts. See
// platform.Open for the meaning of uri.
func Open(ctx context.Context, uri string, opts ...Option) (*Handle, error) {
	return platform.Open(ctx, uri, opts...)
}

// Discover finds the data directory enclosing startDir, loads the user
// settings and the directory's expipe.yaml, and opens the store there.
// Options given here take precedence over the files.
func Discover(ctx context.Context, startDir string, opts ...Option) (*Handle, error) {
	root, err := platform.FindRoot(startDir)
	if err != nil {
		return nil, err
	}
	s, err := LoadSettings(root)
	if err != nil {
		return nil, err
	}
	uri := root
	if s.DataPath != "" {
		uri = s.DataPath
	}
	return Open(ctx, uri, append([]Option{platform.WithSettings(s)}, opts...)...)
}

// LoadSettings reads the user settings file and, when root is not empty,
// root/expipe.yaml on top of it.
func LoadSettings(root string) (Settings, error) {
	var files []string
	if user, err := platform.UserSettingsFile(); err == nil {
		files = append(files, user)
	}
	if root != "" {
		files = append(files, filepath.Join(root, platform.RootMarker))
	}
	return platform.LoadSettings(files...)
}

// FindRoot walks up from startDir to the nearest expipe.yaml.
func FindRoot(startDir string) (string, error) { return platform.FindRoot(startDir) }

// --- Typed Factories ---

// NewTypedRepository wraps the modules of owner.
func NewTypedRepository[T any](owner core.ModuleOwner) *typed.Repository[T] {
	return typed.NewRepository[T](owner)
}
