// Package metrics decorates a core.Backend with Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/introspection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aretw0/expipe/pkg/core"
)

// Namespace prefixes every metric name.
const Namespace = "expipe"

// Result label values.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Collectors are the metrics shared by every instrumented backend on a
// registerer.
type Collectors struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewCollectors registers the backend metrics on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "backend",
			Name:      "operations_total",
			Help:      "Backend operations by backend, operation and result.",
		}, []string{"backend", "op", "result"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "backend",
			Name:      "operation_duration_seconds",
			Help:      "Backend operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"backend", "op"}),
	}
}

// Backend wraps another backend and records every call.
type Backend struct {
	next core.Backend
	name string
	c    *Collectors
}

// Wrap instruments next. name labels the series; when empty the wrapped
// backend's component type is used.
func Wrap(next core.Backend, name string, c *Collectors) *Backend {
	if name == "" {
		name = fmt.Sprintf("%T", next)
		if comp, ok := next.(introspection.Component); ok {
			name = comp.ComponentType()
		}
	}
	return &Backend{next: next, name: name, c: c}
}

// Unwrap returns the instrumented backend.
func (b *Backend) Unwrap() core.Backend { return b.next }

func (b *Backend) observe(op string, start time.Time, err error) {
	result := ResultOK
	switch {
	case errors.Is(err, core.ErrNotFound):
		result = ResultNotFound
	case err != nil:
		result = ResultError
	}
	b.c.Operations.WithLabelValues(b.name, op, result).Inc()
	b.c.Duration.WithLabelValues(b.name, op).Observe(time.Since(start).Seconds())
}

// Exists implements core.Backend.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	ok, err := b.next.Exists(ctx, path)
	b.observe("exists", start, err)
	return ok, err
}

// Get implements core.Backend. A nil result counts as not_found.
func (b *Backend) Get(ctx context.Context, path string, shallow bool) (any, error) {
	start := time.Now()
	v, err := b.next.Get(ctx, path, shallow)
	if err == nil && v == nil {
		b.observe("get", start, core.ErrNotFound)
	} else {
		b.observe("get", start, err)
	}
	return v, err
}

// Set implements core.Backend.
func (b *Backend) Set(ctx context.Context, path string, value any) error {
	start := time.Now()
	err := b.next.Set(ctx, path, value)
	b.observe("set", start, err)
	return err
}

// Push implements core.Backend.
func (b *Backend) Push(ctx context.Context, path string, value any) (string, error) {
	start := time.Now()
	id, err := b.next.Push(ctx, path, value)
	b.observe("push", start, err)
	return id, err
}

// Update implements core.Backend.
func (b *Backend) Update(ctx context.Context, path string, values map[string]any) error {
	start := time.Now()
	err := b.next.Update(ctx, path, values)
	b.observe("update", start, err)
	return err
}

// Delete implements core.Backend.
func (b *Backend) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := b.next.Delete(ctx, path)
	b.observe("delete", start, err)
	return err
}

// Watch forwards to the wrapped backend so instrumentation does not hide
// change notification.
func (b *Backend) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	w, ok := b.next.(core.Watchable)
	if !ok {
		return nil, fmt.Errorf("watch: %w", core.ErrUnsupported)
	}
	start := time.Now()
	ch, err := w.Watch(ctx, pattern)
	b.observe("watch", start, err)
	return ch, err
}

// State implements introspection.Introspectable by reporting the wrapped
// backend's state.
func (b *Backend) State() any {
	if in, ok := b.next.(introspection.Introspectable); ok {
		return in.State()
	}
	return nil
}

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string { return b.name }

var (
	_ core.Backend                 = (*Backend)(nil)
	_ core.Watchable               = (*Backend)(nil)
	_ introspection.Introspectable = (*Backend)(nil)
)
