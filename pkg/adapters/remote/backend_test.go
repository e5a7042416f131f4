package remote_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/expipe/pkg/adapters/remote"
	"github.com/aretw0/expipe/pkg/codec"
	"github.com/aretw0/expipe/pkg/core"
)

// fakeTree serves a JSON document tree the way the hosted database does.
type fakeTree struct {
	mu      sync.Mutex
	root    map[string]any
	seq     int
	token   string
	hits    map[string]int
	failFor int
	status  int
	body    string
}

func newFakeTree() *fakeTree {
	return &fakeTree{root: map[string]any{}, hits: map[string]int{}}
}

func (f *fakeTree) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeTree) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[r.Method]++

	if f.failFor > 0 {
		f.failFor--
		http.Error(w, `{"error":"unavailable"}`, f.status)
		return
	}
	if f.body != "" {
		w.WriteHeader(f.status)
		fmt.Fprint(w, f.body)
		return
	}
	if f.token != "" && r.URL.Query().Get("auth") != f.token {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Permission denied"}`)
		return
	}

	segs := core.Split(strings.TrimSuffix(r.URL.Path, ".json"))
	silent := r.URL.Query().Get("print") == "silent"
	var payload any
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodDelete {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	var out any
	switch r.Method {
	case http.MethodGet:
		out = f.lookup(segs)
		if m, ok := out.(map[string]any); ok && r.URL.Query().Get("shallow") == "true" {
			keys := map[string]any{}
			for k := range m {
				keys[k] = true
			}
			out = keys
		}
	case http.MethodPut:
		f.put(segs, payload)
		out = payload
	case http.MethodPost:
		f.seq++
		id := fmt.Sprintf("-N%05d", f.seq)
		f.put(append(segs, id), payload)
		out = map[string]any{"name": id}
	case http.MethodPatch:
		for k, v := range payload.(map[string]any) {
			f.put(append(append([]string(nil), segs...), k), v)
		}
		out = payload
	case http.MethodDelete:
		f.put(segs, nil)
	}
	if silent {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (f *fakeTree) lookup(segs []string) any {
	var cur any = f.root
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[s]
	}
	return cur
}

func (f *fakeTree) put(segs []string, v any) {
	if len(segs) == 0 {
		if m, ok := v.(map[string]any); ok {
			f.root = m
		} else {
			f.root = map[string]any{}
		}
		return
	}
	cur := f.root
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s].(map[string]any)
		if !ok {
			if v == nil {
				return
			}
			next = map[string]any{}
			cur[s] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if v == nil {
		delete(cur, last)
		return
	}
	cur[last] = v
}

func newBackend(t *testing.T, srv *httptest.Server, mut ...func(*remote.Config)) *remote.Backend {
	t.Helper()
	cfg := remote.Config{
		DatabaseURL:   srv.URL,
		HTTPClient:    srv.Client(),
		RetryInterval: time.Millisecond,
		Timeout:       5 * time.Second,
	}
	for _, m := range mut {
		m(&cfg)
	}
	b, err := remote.New(cfg)
	require.NoError(t, err)
	return b
}

func TestBackend_Roundtrip(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(newFakeTree())
	defer srv.Close()
	b := newBackend(t, srv)

	q := codec.Q(2.5, "mV").WithUncertainty(0.1)
	require.NoError(t, b.Set(ctx, "proj/modules/amp", map[string]any{
		"gain":   q,
		"stages": map[string]any{"1": "in", "2": "out"},
		"label":  "amp",
	}))

	v, err := b.Get(ctx, "proj/modules/amp", false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"gain":   q,
		"stages": map[string]any{"1": "in", "2": "out"},
		"label":  "amp",
	}, v)

	keys, err := b.Get(ctx, "proj/modules", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"amp": true}, keys)

	ok, err := b.Exists(ctx, "proj/modules/amp/label")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Delete(ctx, "proj/modules/amp"))
	ok, err = b.Exists(ctx, "proj/modules/amp")
	require.NoError(t, err)
	assert.False(t, ok)

	v, err = b.Get(ctx, "proj/missing", false)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBackend_ShallowDropsMarker(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(newFakeTree())
	defer srv.Close()
	b := newBackend(t, srv)

	require.NoError(t, b.Set(ctx, "counts", map[string]any{"1": 1, "2": 2}))
	keys, err := b.Get(ctx, "counts", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1": true, "2": true}, keys)
}

func TestBackend_PushAndUpdate(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(newFakeTree())
	defer srv.Close()
	b := newBackend(t, srv)

	id, err := b.Push(ctx, "msgs", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "-N00001", id)

	v, err := b.Get(ctx, core.Join("msgs", id, "text"), false)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	require.NoError(t, b.Update(ctx, core.Join("msgs", id), map[string]any{"user": "ana", "text": nil}))
	v, err = b.Get(ctx, core.Join("msgs", id), false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": "ana"}, v)
}

func TestBackend_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("Status Is Not Retried", func(t *testing.T) {
		f := newFakeTree()
		f.status, f.body = http.StatusBadRequest, `{"error":"Invalid path"}`
		srv := httptest.NewServer(f)
		defer srv.Close()
		b := newBackend(t, srv)

		_, err := b.Get(ctx, "x", false)
		var be *core.BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, http.StatusBadRequest, be.Status)
		assert.Equal(t, "Invalid path", be.Message)
		assert.Equal(t, 1, f.count(http.MethodGet))
	})

	t.Run("Error Field On Success", func(t *testing.T) {
		f := newFakeTree()
		f.status, f.body = http.StatusOK, `{"error":"Permission denied"}`
		srv := httptest.NewServer(f)
		defer srv.Close()
		b := newBackend(t, srv)

		err := b.Set(ctx, "x", 1)
		var be *core.BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "Permission denied", be.Message)
	})

	t.Run("Documents May Hold An Error Key", func(t *testing.T) {
		srv := httptest.NewServer(newFakeTree())
		defer srv.Close()
		b := newBackend(t, srv)

		require.NoError(t, b.Set(ctx, "log", map[string]any{"error": "overflow"}))
		v, err := b.Get(ctx, "log", false)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"error": "overflow"}, v)
	})

	t.Run("Retries Temporary Failures", func(t *testing.T) {
		f := newFakeTree()
		f.failFor, f.status = 2, http.StatusServiceUnavailable
		srv := httptest.NewServer(f)
		defer srv.Close()
		b := newBackend(t, srv)

		require.NoError(t, b.Set(ctx, "x", 1))
		assert.Equal(t, 3, f.count(http.MethodPut))
	})

	t.Run("Gives Up After Max Retries", func(t *testing.T) {
		f := newFakeTree()
		f.failFor, f.status = 100, http.StatusTooManyRequests
		srv := httptest.NewServer(f)
		defer srv.Close()
		b := newBackend(t, srv, func(c *remote.Config) { c.MaxRetries = 2 })

		err := b.Set(ctx, "x", 1)
		var be *core.BackendError
		require.ErrorAs(t, err, &be)
		assert.True(t, be.Temporary())
		assert.Equal(t, 3, f.count(http.MethodPut))
		assert.EqualValues(t, 1, b.State().(remote.BackendState).Failures)
	})

	t.Run("NaN Is Rejected", func(t *testing.T) {
		srv := httptest.NewServer(newFakeTree())
		defer srv.Close()
		b := newBackend(t, srv)
		assert.ErrorIs(t, b.Set(ctx, "x", math.NaN()), core.ErrInvalid)
	})
}

func TestBackend_ReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFakeTree()
	srv := httptest.NewServer(f)
	defer srv.Close()
	b := newBackend(t, srv, func(c *remote.Config) { c.ReadOnly = true })

	assert.ErrorIs(t, b.Set(ctx, "x", 1), core.ErrReadOnly)
	assert.ErrorIs(t, b.Update(ctx, "x", map[string]any{"a": 1}), core.ErrReadOnly)
	assert.ErrorIs(t, b.Delete(ctx, "x"), core.ErrReadOnly)
	_, err := b.Push(ctx, "x", 1)
	assert.ErrorIs(t, err, core.ErrReadOnly)
	assert.Zero(t, f.count(http.MethodPut))
}

func TestNew_Validation(t *testing.T) {
	_, err := remote.New(remote.Config{})
	assert.ErrorIs(t, err, core.ErrInvalid)
	_, err = remote.New(remote.Config{DatabaseURL: "not a url"})
	assert.ErrorIs(t, err, core.ErrInvalid)
}

func TestBackend_SharedReadSurvivesCancelledCaller(t *testing.T) {
	var hits atomic.Int32
	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		arrived <- struct{}{}
		<-release
		fmt.Fprint(w, `{"gain": 2}`)
	}))
	defer srv.Close()
	defer close(release)
	b := newBackend(t, srv)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := b.Get(first, "neuro/modules/amp", false)
		firstErr <- err
	}()
	<-arrived

	second := make(chan any, 1)
	go func() {
		v, err := b.Get(context.Background(), "neuro/modules/amp", false)
		if err != nil {
			second <- err
			return
		}
		second <- v
	}()
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	release <- struct{}{}
	select {
	case v := <-second:
		assert.Equal(t, map[string]any{"gain": 2}, v)
	case <-time.After(2 * time.Second):
		t.Fatal("shared read did not complete")
	}
	assert.Equal(t, int32(1), hits.Load())
}
