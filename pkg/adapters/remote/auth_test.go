package remote_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/expipe/pkg/adapters/remote"
)

// fakeAuth issues tokens for one account.
type fakeAuth struct {
	mu        sync.Mutex
	expiresIn string
	signIns   int
	refreshes int
}

func (a *fakeAuth) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["email"] != "ana@lab.org" || req["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"INVALID_PASSWORD"}}`)
			return
		}
		a.mu.Lock()
		a.signIns++
		a.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"idToken": "id-0", "refreshToken": "refresh-0", "expiresIn": a.expiresIn,
		})
	})
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		a.mu.Lock()
		a.refreshes++
		n := a.refreshes
		a.mu.Unlock()
		if req["grant_type"] != "refresh_token" || req["refresh_token"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id_token": fmt.Sprintf("id-%d", n), "refresh_token": req["refresh_token"], "expires_in": a.expiresIn,
		})
	})
	return mux
}

func authConfig(srv *httptest.Server, password string) remote.Credentials {
	return remote.Credentials{
		APIKey:     "k",
		Email:      "ana@lab.org",
		Password:   password,
		SignInURL:  srv.URL + "/signin",
		RefreshURL: srv.URL + "/refresh",
	}
}

func TestTokenSource_Caches(t *testing.T) {
	a := &fakeAuth{expiresIn: "3600"}
	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	ts := remote.NewTokenSource(authConfig(srv, "secret"), srv.Client(), remote.DefaultTimeout)
	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "id-0", tok.AccessToken)
	}
	assert.Equal(t, 1, a.signIns)
	assert.Zero(t, a.refreshes)
}

func TestTokenSource_RefreshesNearExpiry(t *testing.T) {
	// Lifetimes under the expiry margin are stale as soon as they arrive.
	a := &fakeAuth{expiresIn: "30"}
	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	ts := remote.NewTokenSource(authConfig(srv, "secret"), srv.Client(), remote.DefaultTimeout)
	first, err := ts.Token()
	require.NoError(t, err)
	second, err := ts.Token()
	require.NoError(t, err)

	assert.Equal(t, "id-0", first.AccessToken)
	assert.Equal(t, "id-1", second.AccessToken)
	assert.Equal(t, 1, a.signIns)
	assert.Equal(t, 1, a.refreshes)
}

func TestTokenSource_BadPassword(t *testing.T) {
	a := &fakeAuth{expiresIn: "3600"}
	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	ts := remote.NewTokenSource(authConfig(srv, "wrong"), srv.Client(), remote.DefaultTimeout)
	_, err := ts.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_PASSWORD")
}

func TestBackend_Authenticated(t *testing.T) {
	ctx := context.Background()
	a := &fakeAuth{expiresIn: "3600"}
	authSrv := httptest.NewServer(a.handler())
	defer authSrv.Close()

	tree := newFakeTree()
	tree.token = "id-0"
	srv := httptest.NewServer(tree)
	defer srv.Close()

	b := newBackend(t, srv, func(c *remote.Config) { c.Credentials = authConfig(authSrv, "secret") })
	require.NoError(t, b.Set(ctx, "p/x", "y"))
	v, err := b.Get(ctx, "p/x", false)
	require.NoError(t, err)
	assert.Equal(t, "y", v)
	assert.Equal(t, 1, a.signIns)
	assert.True(t, b.State().(remote.BackendState).Authenticated)

	anon := newBackend(t, srv)
	_, err = anon.Get(ctx, "p/x", false)
	assert.Error(t, err)
}
