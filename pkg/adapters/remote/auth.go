package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/aretw0/expipe/pkg/core"
)

// Default token endpoints. The API key is appended as ?key=.
const (
	DefaultSignInURL  = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithPassword"
	DefaultRefreshURL = "https://securetoken.googleapis.com/v1/token"
)

// ExpiryMargin is how long before expiry a cached token is replaced.
const ExpiryMargin = 60 * time.Second

// Credentials configure the password/refresh-token exchange.
type Credentials struct {
	APIKey     string
	Email      string
	Password   string
	SignInURL  string
	RefreshURL string
}

// passwordSource signs in with a password once and refreshes afterwards.
type passwordSource struct {
	creds   Credentials
	client  *http.Client
	timeout time.Duration

	mu      sync.Mutex
	refresh string
}

// NewTokenSource returns a cached oauth2.TokenSource for creds. Tokens are
// reused until ExpiryMargin before they expire.
func NewTokenSource(creds Credentials, client *http.Client, timeout time.Duration) oauth2.TokenSource {
	if creds.SignInURL == "" {
		creds.SignInURL = DefaultSignInURL
	}
	if creds.RefreshURL == "" {
		creds.RefreshURL = DefaultRefreshURL
	}
	src := &passwordSource{creds: creds, client: client, timeout: timeout}
	return oauth2.ReuseTokenSourceWithExpiry(nil, src, ExpiryMargin)
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

// Token implements oauth2.TokenSource.
func (s *passwordSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var idToken, refresh, expiresIn string
	if s.refresh != "" {
		var resp refreshResponse
		err := s.post(ctx, s.creds.RefreshURL, map[string]any{
			"grant_type":    "refresh_token",
			"refresh_token": s.refresh,
		}, &resp)
		if err != nil {
			return nil, err
		}
		idToken, refresh, expiresIn = resp.IDToken, resp.RefreshToken, resp.ExpiresIn
	} else {
		var resp signInResponse
		err := s.post(ctx, s.creds.SignInURL, map[string]any{
			"email":             s.creds.Email,
			"password":          s.creds.Password,
			"returnSecureToken": true,
		}, &resp)
		if err != nil {
			return nil, err
		}
		idToken, refresh, expiresIn = resp.IDToken, resp.RefreshToken, resp.ExpiresIn
	}
	if idToken == "" {
		return nil, &core.BackendError{Op: "auth", Message: "response carries no token"}
	}
	secs, err := strconv.Atoi(expiresIn)
	if err != nil {
		return nil, &core.BackendError{Op: "auth", Message: "bad expiresIn " + strconv.Quote(expiresIn)}
	}
	if refresh != "" {
		s.refresh = refresh
	}
	return &oauth2.Token{
		AccessToken:  idToken,
		RefreshToken: s.refresh,
		Expiry:       time.Now().Add(time.Duration(secs) * time.Second),
	}, nil
}

func (s *passwordSource) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := endpoint
	if s.creds.APIKey != "" {
		url += "?key=" + s.creds.APIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return &core.BackendError{Op: "auth", Path: endpoint, Err: err}
	}
	defer resp.Body.Close()

	var raw map[string]any
	data, err := readBody(resp)
	if err != nil {
		return &core.BackendError{Op: "auth", Path: endpoint, Status: resp.StatusCode, Err: err}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return &core.BackendError{Op: "auth", Path: endpoint, Status: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}
	if msg, ok := bodyError(raw); ok || resp.StatusCode >= 300 {
		return &core.BackendError{Op: "auth", Path: endpoint, Status: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}
