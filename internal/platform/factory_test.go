package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/expipe/pkg/adapters/tree"
	"github.com/aretw0/expipe/pkg/core"
)

func TestOpen_Filesystem(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")

	h, err := Open(ctx, dir, WithUsername("ana"))
	require.NoError(t, err)
	defer h.Close()

	p, err := h.Store.CreateProject(ctx, "neuro")
	require.NoError(t, err)
	a, err := p.CreateAction(ctx, "s1")
	require.NoError(t, err)
	m, err := a.CreateMessage(ctx, "hello")
	require.NoError(t, err)
	user, err := m.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana", user)
	assert.FileExists(t, filepath.Join(dir, "neuro", "project.yaml"))

	st := h.Store.State().(core.StoreState)
	assert.Equal(t, "filesystem", st.BackendType)
	assert.Equal(t, "core.FileLayout", st.Layout)
}

func TestOpen_ReadOnly(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, filepath.Join(t.TempDir(), "absent"), WithReadOnly(true))
	assert.Error(t, err, "a read-only store does not create its directory")

	dir := t.TempDir()
	h, err := Open(ctx, dir, WithReadOnly(true))
	require.NoError(t, err)
	_, err = h.Store.CreateProject(ctx, "neuro")
	assert.ErrorIs(t, err, core.ErrReadOnly)
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	h, err := Open(ctx, "", WithAdapter(AdapterMemory))
	require.NoError(t, err)

	_, err = h.Store.CreateProject(ctx, "neuro")
	require.NoError(t, err)
	ok, err := h.Store.Backend().Exists(ctx, "projects/neuro")
	require.NoError(t, err)
	assert.True(t, ok, "memory stores use the tree layout")
}

func TestOpen_Redis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	h, err := Open(ctx, "redis://"+mr.Addr(), WithAdapter(AdapterRedis), WithRedisPrefix("lab"))
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Store.CreateProject(ctx, "neuro")
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())

	_, err = Open(ctx, "://bad", WithAdapter(AdapterRedis))
	assert.Error(t, err)
}

func TestOpen_Remote(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("null"))
	}))
	defer srv.Close()

	h, err := Open(ctx, "", WithSettings(Settings{
		Backend: "remote",
		Remote:  RemoteSettings{URL: srv.URL},
	}))
	require.NoError(t, err)

	n, err := h.Store.Projects().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.EqualValues(t, 1, hits.Load())
}

func TestOpen_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	h, err := Open(ctx, "", WithAdapter(AdapterMemory), WithMetrics(reg))
	require.NoError(t, err)
	_, err = h.Store.CreateProject(ctx, "neuro")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "expipe_backend_operations_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestOpen_InjectedBackend(t *testing.T) {
	ctx := context.Background()
	b := tree.NewMemoryBackend()

	h, err := Open(ctx, "", WithBackend(b), WithLayout(core.TreeLayout{}))
	require.NoError(t, err)
	assert.Same(t, b, h.Store.Backend())
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "", WithAdapter("sqlite"))
	assert.ErrorContains(t, err, "unknown adapter")

	_, err = Open(ctx, "")
	assert.True(t, errors.Is(err, core.ErrInvalid))

	_, err = Open(ctx, "", WithAdapter(AdapterRemote))
	assert.ErrorIs(t, err, core.ErrInvalid)
}
