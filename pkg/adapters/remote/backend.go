// Package remote implements core.Backend against a hosted JSON document
// tree that is addressed by URL: every path maps to <db>/<path>.json and
// the HTTP verb selects the operation.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/aretw0/expipe/pkg/codec"
	"github.com/aretw0/expipe/pkg/core"
)

// Defaults applied by New.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
)

// maxBody caps how much of a response is read.
const maxBody = 64 << 20

// Config configures a remote backend.
type Config struct {
	// DatabaseURL is the root of the document tree, e.g.
	// https://example.firebaseio.com.
	DatabaseURL string
	Credentials Credentials
	// Timeout bounds every single request, retries excluded.
	Timeout time.Duration
	// MaxRetries bounds retries of temporary failures. Zero means
	// DefaultMaxRetries.
	MaxRetries uint64
	// RetryInterval is the first backoff delay. Optional.
	RetryInterval time.Duration
	ReadOnly   bool
	Logger     *slog.Logger
	Codec      *codec.Codec
	// HTTPClient is used for data and token requests. Optional.
	HTTPClient *http.Client
	// TokenSource overrides the password grant. Optional.
	TokenSource oauth2.TokenSource
}

// Backend talks to the document tree over HTTP.
type Backend struct {
	base     *url.URL
	client   *http.Client
	tokens   oauth2.TokenSource
	codec    *codec.Codec
	logger   *slog.Logger
	timeout  time.Duration
	retries  uint64
	interval time.Duration
	readOnly bool

	reads singleflight.Group

	requests atomic.Int64
	failures atomic.Int64
}

// New validates cfg and returns a backend. No request is made until the
// first operation.
func New(cfg Config) (*Backend, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("remote: %w: database url is required", core.ErrInvalid)
	}
	base, err := url.Parse(strings.TrimRight(cfg.DatabaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote: %w: bad database url %q", core.ErrInvalid, cfg.DatabaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	b := &Backend{
		base:     base,
		client:   cfg.HTTPClient,
		tokens:   cfg.TokenSource,
		codec:    cfg.Codec,
		logger:   cfg.Logger,
		timeout:  cfg.Timeout,
		retries:  cfg.MaxRetries,
		interval: cfg.RetryInterval,
		readOnly: cfg.ReadOnly,
	}
	if b.tokens == nil && cfg.Credentials.Email != "" {
		b.tokens = NewTokenSource(cfg.Credentials, cfg.HTTPClient, cfg.Timeout)
	}
	return b, nil
}

var _ core.Backend = (*Backend)(nil)

func (b *Backend) url(path string, query url.Values) string {
	u := *b.base
	u.Path = b.base.Path + "/" + core.Join(path) + ".json"
	u.RawQuery = query.Encode()
	return u.String()
}

// do performs one logical request, retrying temporary failures.
func (b *Backend) do(ctx context.Context, op, method, path string, query url.Values, payload any) (any, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("%s %q: %w", op, path, err)
		}
	}

	var out any
	attempt := func() error {
		res, err := b.once(ctx, op, method, path, query, body)
		if err != nil {
			var be *core.BackendError
			if errors.As(err, &be) && be.Temporary() {
				return err
			}
			return backoff.Permanent(err)
		}
		out = res
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	if b.interval > 0 {
		exp.InitialInterval = b.interval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, b.retries), ctx)
	notify := func(err error, wait time.Duration) {
		b.logger.Warn("remote request failed, retrying", "op", op, "path", path, "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		b.failures.Add(1)
		return nil, err
	}
	return out, nil
}

func (b *Backend) once(ctx context.Context, op, method, path string, query url.Values, body []byte) (any, error) {
	b.requests.Add(1)
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if b.tokens != nil {
		tok, err := b.tokens.Token()
		if err != nil {
			return nil, err
		}
		q.Set("auth", tok.AccessToken)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.url(path, q), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &core.BackendError{Op: op, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, &core.BackendError{Op: op, Path: path, Status: resp.StatusCode, Err: err}
	}
	var doc any
	if len(bytes.TrimSpace(data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			if resp.StatusCode >= 300 {
				return nil, &core.BackendError{Op: op, Path: path, Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
			}
			return nil, &core.BackendError{Op: op, Path: path, Status: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}

	msg, hasErr := bodyError(doc)
	// A successful GET returns a stored document, which may itself hold an
	// error key, so only its status is checked.
	switch {
	case resp.StatusCode >= 300:
		return nil, &core.BackendError{Op: op, Path: path, Status: resp.StatusCode, Message: msg}
	case hasErr && method != http.MethodGet:
		// Writes are silent on success; anything carrying an error field
		// is a rejection.
		return nil, &core.BackendError{Op: op, Path: path, Status: resp.StatusCode, Message: msg}
	}
	return doc, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

// bodyError extracts the error or errors field of a response.
func bodyError(doc any) (string, bool) {
	m, ok := doc.(map[string]any)
	if !ok {
		return "", false
	}
	for _, key := range []string{"error", "errors"} {
		v, ok := m[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			return t, true
		case map[string]any:
			if s, ok := t["message"].(string); ok {
				return s, true
			}
		}
		data, _ := json.Marshal(v)
		return string(data), true
	}
	return "", false
}

// Exists implements core.Backend.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	v, err := b.get(ctx, path, true)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// Get implements core.Backend. Concurrent identical reads share one request.
func (b *Backend) Get(ctx context.Context, path string, shallow bool) (any, error) {
	raw, err := b.get(ctx, path, shallow)
	if err != nil || raw == nil {
		return nil, err
	}
	if shallow {
		if m, ok := raw.(map[string]any); ok {
			delete(m, codec.ForceDictKey)
			return m, nil
		}
	}
	return b.codec.Decode(raw), nil
}

func (b *Backend) get(ctx context.Context, path string, shallow bool) (any, error) {
	key := fmt.Sprintf("%s?shallow=%t", core.Join(path), shallow)
	// The shared request outlives any single caller; each caller stops
	// waiting on its own context.
	shared := context.WithoutCancel(ctx)
	ch := b.reads.DoChan(key, func() (any, error) {
		var q url.Values
		if shallow {
			q = url.Values{"shallow": {"true"}}
		}
		return b.do(shared, "get", http.MethodGet, path, q, nil)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			// Callers may mutate the result.
			return cloneJSON(res.Val), nil
		}
		return res.Val, nil
	}
}

func silent() url.Values { return url.Values{"print": {"silent"}} }

// Set implements core.Backend.
func (b *Backend) Set(ctx context.Context, path string, value any) error {
	if err := b.writable("set", path); err != nil {
		return err
	}
	enc, err := b.encode("set", path, value)
	if err != nil {
		return err
	}
	if enc == nil {
		return b.Delete(ctx, path)
	}
	b.logger.Debug("remote write", "op", "set", "path", path)
	_, err = b.do(ctx, "set", http.MethodPut, path, silent(), enc)
	return err
}

// Push implements core.Backend.
func (b *Backend) Push(ctx context.Context, path string, value any) (string, error) {
	if err := b.writable("push", path); err != nil {
		return "", err
	}
	enc, err := b.encode("push", path, value)
	if err != nil {
		return "", err
	}
	b.logger.Debug("remote write", "op", "push", "path", path)
	res, err := b.do(ctx, "push", http.MethodPost, path, nil, enc)
	if err != nil {
		return "", err
	}
	m, _ := res.(map[string]any)
	name, _ := m["name"].(string)
	if name == "" {
		return "", &core.BackendError{Op: "push", Path: path, Message: "response carries no name"}
	}
	return name, nil
}

// Update implements core.Backend. A nil value deletes its key.
func (b *Backend) Update(ctx context.Context, path string, values map[string]any) error {
	if err := b.writable("update", path); err != nil {
		return err
	}
	enc := make(map[string]any, len(values))
	for k, v := range values {
		e, err := b.encode("update", core.Join(path, k), v)
		if err != nil {
			return err
		}
		enc[k] = e
	}
	b.logger.Debug("remote write", "op", "update", "path", path)
	_, err := b.do(ctx, "update", http.MethodPatch, path, silent(), enc)
	return err
}

// Delete implements core.Backend.
func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := b.writable("delete", path); err != nil {
		return err
	}
	b.logger.Debug("remote write", "op", "delete", "path", path)
	_, err := b.do(ctx, "delete", http.MethodDelete, path, silent(), nil)
	return err
}

// encode runs the codec and rejects values JSON cannot carry.
func (b *Backend) encode(op, path string, value any) (any, error) {
	enc, err := b.codec.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", op, path, err)
	}
	if err := checkFinite(enc); err != nil {
		return nil, fmt.Errorf("%s %q: %w", op, path, err)
	}
	return enc, nil
}

func checkFinite(v any) error {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: %v cannot be stored as JSON", core.ErrInvalid, t)
		}
	case float32:
		return checkFinite(float64(t))
	case map[string]any:
		for _, e := range t {
			if err := checkFinite(e); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := checkFinite(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) writable(op, path string) error {
	if b.readOnly {
		return fmt.Errorf("%s %q: %w", op, path, core.ErrReadOnly)
	}
	return nil
}

func cloneJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneJSON(e)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = cloneJSON(e)
		}
		return l
	}
	return v
}

// BackendState is the introspection snapshot of a remote backend.
type BackendState struct {
	URL           string `json:"url"`
	Authenticated bool   `json:"authenticated"`
	ReadOnly      bool   `json:"read_only"`
	Requests      int64  `json:"requests"`
	Failures      int64  `json:"failures"`
}

// State implements introspection.Introspectable.
func (b *Backend) State() any {
	return BackendState{
		URL:           b.base.String(),
		Authenticated: b.tokens != nil,
		ReadOnly:      b.readOnly,
		Requests:      b.requests.Load(),
		Failures:      b.failures.Load(),
	}
}

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string { return "remote" }

var _ introspection.Introspectable = (*Backend)(nil)
var _ introspection.Component = (*Backend)(nil)
