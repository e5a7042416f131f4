package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/expipe/pkg/adapters/fs"
	"github.com/aretw0/expipe/pkg/adapters/metrics"
	"github.com/aretw0/expipe/pkg/adapters/tree"
	"github.com/aretw0/expipe/pkg/core"
)

func TestBackend_CountsOperations(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := metrics.NewCollectors(reg)
	b := metrics.Wrap(tree.NewMemoryBackend(), "", c)
	assert.Equal(t, "memory", b.ComponentType())

	require.NoError(t, b.Set(ctx, "p/a", map[string]any{"x": 1}))
	require.NoError(t, b.Set(ctx, "p/b", map[string]any{"x": 2}))
	_, err := b.Get(ctx, "p/a", false)
	require.NoError(t, err)
	_, err = b.Get(ctx, "p/missing", false)
	require.NoError(t, err)

	ro := metrics.Wrap(tree.NewMemoryBackend(tree.WithReadOnly(true)), "ro", c)
	assert.ErrorIs(t, ro.Delete(ctx, "p"), core.ErrReadOnly)

	ops := c.Operations
	assert.Equal(t, 2.0, testutil.ToFloat64(ops.WithLabelValues("memory", "set", metrics.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("memory", "get", metrics.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("memory", "get", metrics.ResultNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("ro", "delete", metrics.ResultError)))

	n, err := testutil.GatherAndCount(reg, "expipe_backend_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBackend_ForwardsWatch(t *testing.T) {
	c := metrics.NewCollectors(prometheus.NewRegistry())

	_, err := metrics.Wrap(tree.NewMemoryBackend(), "mem", c).Watch(context.Background(), "**")
	assert.ErrorIs(t, err, core.ErrUnsupported)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend, err := fs.Open(ctx, fs.Config{Path: t.TempDir()})
	require.NoError(t, err)
	b := metrics.Wrap(backend, "", c)
	assert.Equal(t, "filesystem", b.ComponentType())

	events, err := b.Watch(ctx, "**")
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.IsType(t, fs.RepositoryState{}, b.State().(tree.BackendState).Detail)
}
