// Package api is the authenticated client for the cloud API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"wirevpn/internal/client/logger"
	"wirevpn/pkg/protocol"
)

// Fixed auth endpoints.
const (
	LoginPath   = "/api/auth/login"
	RefreshPath = "/api/auth/refresh"
)

const maxResponseSize = 4 << 20

// EntryResolver supplies the API base URL.
type EntryResolver interface {
	ResolveEntry(ctx context.Context) string
}

// TokenStore persists the token pair across runs.
type TokenStore interface {
	Save(accessToken, refreshToken string) error
	Load() (accessToken, refreshToken string, err error)
	Clear() error
}

// Session sends API requests with the current bearer token. A 401 on a
// request that carried a token triggers one refresh and one retry.
type Session struct {
	resolver EntryResolver
	http     *http.Client
	tokens   TokenStore

	mu           sync.RWMutex
	accessToken  string
	refreshToken string

	sharedRefresh bool
	refreshGroup  singleflight.Group
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets the client used for every call.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.http = c }
}

// WithTokenStore persists tokens whenever they change.
func WithTokenStore(ts TokenStore) Option {
	return func(s *Session) { s.tokens = ts }
}

// WithSharedRefresh makes concurrent 401s share one refresh call.
func WithSharedRefresh() Option {
	return func(s *Session) { s.sharedRefresh = true }
}

// NewSession creates a session without tokens.
func NewSession(resolver EntryResolver, opts ...Option) *Session {
	s := &Session{
		resolver: resolver,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAuthToken replaces the access token in memory.
func (s *Session) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
}

// SetRefreshToken replaces the refresh token in memory.
func (s *Session) SetRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshToken = token
}

// Tokens returns the current token pair.
func (s *Session) Tokens() (accessToken, refreshToken string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.refreshToken
}

func (s *Session) currentAccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// install sets both tokens and persists them. Persistence failures are logged
// only; the in-memory session stays valid.
func (s *Session) install(pair protocol.TokenPair) {
	s.mu.Lock()
	s.accessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		s.refreshToken = pair.RefreshToken
	}
	access, refresh := s.accessToken, s.refreshToken
	s.mu.Unlock()

	if s.tokens != nil {
		if err := s.tokens.Save(access, refresh); err != nil {
			logger.Warn("Failed to persist tokens: %v", err)
		}
	}
}

// Restore loads persisted tokens into memory. It reports whether a session was found.
func (s *Session) Restore() (bool, error) {
	if s.tokens == nil {
		return false, nil
	}
	access, refresh, err := s.tokens.Load()
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.accessToken, s.refreshToken = access, refresh
	s.mu.Unlock()
	return access != "" || refresh != "", nil
}

// Login posts credentials and installs the returned tokens.
func (s *Session) Login(ctx context.Context, credentials interface{}) error {
	pair, err := Do[protocol.TokenPair](ctx, s, http.MethodPost, LoginPath, credentials)
	if err != nil {
		return err
	}
	if pair.AccessToken == "" {
		return fmt.Errorf("login response carried no access token")
	}
	s.install(pair)
	return nil
}

// Logout drops the tokens from memory and storage.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.accessToken, s.refreshToken = "", ""
	s.mu.Unlock()

	if s.tokens != nil {
		return s.tokens.Clear()
	}
	return nil
}

// result is one HTTP exchange.
type result struct {
	statusCode int
	status     string
	envelope   *protocol.Envelope
	decodeErr  error
}

func (r *result) ok() bool {
	return r.statusCode >= 200 && r.statusCode <= 299
}

func (r *result) err() *HTTPError {
	e := &HTTPError{StatusCode: r.statusCode, Status: r.status}
	if r.envelope != nil {
		e.Code = r.envelope.Code
		e.Message = r.envelope.Message
	}
	return e
}

// send performs one call against the freshly resolved entry.
func (s *Session) send(ctx context.Context, method, path string, body []byte, token string) (*result, error) {
	url := strings.TrimRight(s.resolver.ResolveEntry(ctx), "/") + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &result{statusCode: resp.StatusCode, status: resp.Status}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		res.envelope = &protocol.Envelope{}
		return res, nil
	}
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		res.decodeErr = err
		return res, nil
	}
	res.envelope = &env
	return res, nil
}

// Request sends one API call and decodes the envelope data into out when the
// envelope code is zero. A 401 on a call that carried a token is answered by
// a single refresh and a single retry.
func (s *Session) Request(ctx context.Context, method, path string, body, out interface{}) (*protocol.Envelope, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		payload = b
	}

	token := s.currentAccessToken()
	res, err := s.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}

	if res.statusCode == http.StatusUnauthorized && token != "" {
		if err := s.refresh(ctx, token); err != nil {
			return nil, err
		}
		res, err = s.send(ctx, method, path, payload, s.currentAccessToken())
		if err != nil {
			return nil, err
		}
		if res.statusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, res.err())
		}
	}

	if !res.ok() {
		return nil, res.err()
	}
	if res.decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", res.decodeErr)
	}

	if out != nil && res.envelope.OK() {
		if err := res.envelope.Decode(out); err != nil {
			return res.envelope, fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return res.envelope, nil
}

// refresh exchanges the refresh token for a new pair. stale is the access
// token the failed request carried; it is sent along with the refresh.
func (s *Session) refresh(ctx context.Context, stale string) error {
	if !s.sharedRefresh {
		return s.doRefresh(ctx, stale)
	}

	// Another request already refreshed
	if s.currentAccessToken() != stale {
		return nil
	}
	_, err, _ := s.refreshGroup.Do("refresh", func() (interface{}, error) {
		if s.currentAccessToken() != stale {
			return nil, nil
		}
		return nil, s.doRefresh(ctx, stale)
	})
	return err
}

func (s *Session) doRefresh(ctx context.Context, stale string) error {
	s.mu.RLock()
	refreshToken := s.refreshToken
	s.mu.RUnlock()

	if refreshToken == "" {
		return fmt.Errorf("%w: no refresh token", ErrSessionExpired)
	}

	body, err := json.Marshal(protocol.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return err
	}

	res, err := s.send(ctx, http.MethodPost, RefreshPath, body, stale)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	if !res.ok() {
		return fmt.Errorf("%w: %w", ErrSessionExpired, res.err())
	}
	if res.decodeErr != nil || !res.envelope.OK() {
		return fmt.Errorf("%w: malformed refresh response", ErrSessionExpired)
	}

	var pair protocol.TokenPair
	if err := res.envelope.Decode(&pair); err != nil || pair.AccessToken == "" {
		return fmt.Errorf("%w: refresh response carried no access token", ErrSessionExpired)
	}

	s.install(pair)
	logger.Debug("Access token refreshed")
	return nil
}

// Do is Request with a typed result. A non-zero envelope code is an error.
func Do[T any](ctx context.Context, s *Session, method, path string, body interface{}) (T, error) {
	var out T
	env, err := s.Request(ctx, method, path, body, &out)
	if err != nil {
		return out, err
	}
	if !env.OK() {
		return out, &HTTPError{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Code:       env.Code,
			Message:    env.Message,
		}
	}
	return out, nil
}
