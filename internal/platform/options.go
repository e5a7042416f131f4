package platform

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/expipe/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterFS     = "fs"
	AdapterMemory = "memory"
	AdapterRemote = "remote"
	AdapterRedis  = "redis"
)

// options holds the internal configuration for opening a store.
type options struct {
	backend    core.Backend
	logger     *slog.Logger
	adapter    string
	layout     core.Layout
	username   string
	registerer prometheus.Registerer
	config     map[string]any
}

// Option defines a functional option for configuring a store.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter: AdapterFS,
		config:  make(map[string]any),
	}
}

// WithLogger sets the logger shared by the store and its backend.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBackend injects a ready backend. The adapter and its settings are
// then ignored.
func WithBackend(b core.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithAdapter selects the storage adapter by name. Defaults to "fs".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithLayout overrides the path layout. The filesystem adapter defaults to
// core.FileLayout, every other adapter to core.TreeLayout.
func WithLayout(l core.Layout) Option {
	return func(o *options) {
		o.layout = l
	}
}

// WithUsername sets the default author of messages.
func WithUsername(name string) Option {
	return func(o *options) {
		o.username = name
	}
}

// WithMetrics instruments the backend with Prometheus collectors
// registered on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithVersioning records every filesystem write as a git commit.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.config["versioned"] = enabled
	}
}

// WithMustExist requires the data directory to exist already.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithReadOnly rejects every write with core.ErrReadOnly.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithWatcherErrorHandler registers a callback for asynchronous watcher
// failures, which are otherwise only logged.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["watcher_error_handler"] = fn
	}
}

// WithRemote configures the remote adapter credentials and limits.
func WithRemote(s RemoteSettings) Option {
	return func(o *options) {
		o.config["remote"] = s
	}
}

// WithRedisPrefix sets the key namespace of the redis adapter.
func WithRedisPrefix(prefix string) Option {
	return func(o *options) {
		o.config["redis_prefix"] = prefix
	}
}

// WithSettings applies a loaded settings file. Options given after it
// take precedence.
func WithSettings(s Settings) Option {
	return func(o *options) {
		if s.Backend != "" {
			o.adapter = normalizeAdapter(s.Backend)
		}
		if s.Username != "" {
			o.username = s.Username
		}
		o.config["versioned"] = s.Versioned
		o.config["read_only"] = s.ReadOnly
		o.config["remote"] = s.Remote
		if s.Redis.Prefix != "" {
			o.config["redis_prefix"] = s.Redis.Prefix
		}
	}
}

func normalizeAdapter(name string) string {
	if name == "filesystem" {
		return AdapterFS
	}
	return name
}
