package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aretw0/expipe/pkg/adapters/fs"
	"github.com/aretw0/expipe/pkg/adapters/metrics"
	"github.com/aretw0/expipe/pkg/adapters/remote"
	"github.com/aretw0/expipe/pkg/adapters/redisstore"
	"github.com/aretw0/expipe/pkg/adapters/tree"
	"github.com/aretw0/expipe/pkg/core"
)

// DefaultRedisPrefix namespaces redis keys when no prefix is configured.
const DefaultRedisPrefix = "expipe"

// Handle is an open store together with the resources behind it.
type Handle struct {
	Store   *core.Store
	closers []io.Closer
}

// Close releases the backend connections.
func (h *Handle) Close() error {
	var errs []error
	for _, c := range h.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Open builds the backend selected by the options and returns a store
// over it. The uri is adapter-specific: a directory for "fs", the
// database URL for "remote", a redis:// URL for "redis". It is ignored by
// "memory".
func Open(ctx context.Context, uri string, opts ...Option) (*Handle, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	h := &Handle{}
	backend, layout, err := o.build(ctx, uri, h)
	if err != nil {
		return nil, err
	}
	if o.layout != nil {
		layout = o.layout
	}
	if o.registerer != nil {
		backend = metrics.Wrap(backend, "", metrics.NewCollectors(o.registerer))
	}

	h.Store = core.NewStore(core.Session{
		Backend:  backend,
		Layout:   layout,
		Username: o.username,
		Logger:   o.logger,
	})
	o.logger.Debug("store opened", "adapter", o.adapter, "uri", uri)
	return h, nil
}

func (o *options) build(ctx context.Context, uri string, h *Handle) (core.Backend, core.Layout, error) {
	if o.backend != nil {
		return o.backend, core.FileLayout{}, nil
	}
	readOnly, _ := o.config["read_only"].(bool)
	treeOpts := []tree.Option{tree.WithLogger(o.logger), tree.WithReadOnly(readOnly)}

	switch normalizeAdapter(o.adapter) {
	case AdapterFS:
		b, err := o.openFS(ctx, uri, readOnly, treeOpts)
		return b, core.FileLayout{}, err
	case AdapterMemory:
		return tree.NewMemoryBackend(treeOpts...), core.TreeLayout{}, nil
	case AdapterRemote:
		b, err := o.openRemote(uri, readOnly)
		return b, core.TreeLayout{}, err
	case AdapterRedis:
		b, c, err := o.openRedis(ctx, uri, treeOpts)
		if err != nil {
			return nil, nil, err
		}
		h.closers = append(h.closers, c)
		return b, core.TreeLayout{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}

func (o *options) openFS(ctx context.Context, path string, readOnly bool, treeOpts []tree.Option) (core.Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("fs adapter: %w: data path is required", core.ErrInvalid)
	}
	versioned, _ := o.config["versioned"].(bool)
	mustExist, _ := o.config["must_exist"].(bool)
	onErr, _ := o.config["watcher_error_handler"].(func(error))
	cfg := fs.Config{
		Path: path,
		// A read-only store never creates its directory.
		MustExist:    mustExist || readOnly,
		Logger:       o.logger,
		Versioned:    versioned && !readOnly,
		Author:       o.username,
		ErrorHandler: onErr,
	}
	return fs.Open(ctx, cfg, treeOpts...)
}

func (o *options) openRemote(uri string, readOnly bool) (core.Backend, error) {
	s, _ := o.config["remote"].(RemoteSettings)
	if uri == "" {
		uri = s.URL
	}
	return remote.New(remote.Config{
		DatabaseURL: uri,
		Credentials: remote.Credentials{
			APIKey:   s.APIKey,
			Email:    s.Email,
			Password: s.Password,
		},
		Timeout:    time.Duration(s.TimeoutSeconds) * time.Second,
		MaxRetries: uint64(s.MaxRetries),
		ReadOnly:   readOnly,
		Logger:     o.logger,
	})
}

func (o *options) openRedis(ctx context.Context, uri string, treeOpts []tree.Option) (core.Backend, io.Closer, error) {
	ropts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("redis adapter: %w", err)
	}
	prefix, _ := o.config["redis_prefix"].(string)
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	b, c, err := redisstore.Open(ctx, ropts, prefix, o.logger, treeOpts...)
	if err != nil {
		return nil, nil, err
	}
	return b, c, nil
}
