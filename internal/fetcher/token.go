package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	tokenPath = "/v1/security/oauth2/token"
	// DefaultTokenMargin is how long before upstream expiry a token stops being reused.
	DefaultTokenMargin = 60 * time.Second
)

// TokenState is the cached client-credentials token. ExpiresAt is the upstream expiry.
type TokenState struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Usable reports whether the token can still be handed out at now, keeping margin
// in reserve for requests already in flight.
func (s TokenState) Usable(now time.Time, margin time.Duration) bool {
	return s.AccessToken != "" && now.Add(margin).Before(s.ExpiresAt)
}

// TokenOptions parameterise the token manager.
type TokenOptions struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Margin       time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
	Observer     Observer
	Now          func() time.Time
}

// TokenManager owns the access token and its expiry. Concurrent callers that find
// no usable token share a single upstream request.
type TokenManager struct {
	endpoint     string
	clientID     string
	clientSecret string
	margin       time.Duration
	client       *http.Client
	observer     Observer
	now          func() time.Time
	logger       zerolog.Logger

	mu     sync.RWMutex
	state  TokenState
	flight singleflight.Group
}

// NewTokenManager constructs a token manager.
func NewTokenManager(opts TokenOptions, logger zerolog.Logger) *TokenManager {
	margin := opts.Margin
	if margin < DefaultTokenMargin {
		margin = DefaultTokenMargin
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &TokenManager{
		endpoint:     strings.TrimRight(opts.BaseURL, "/") + tokenPath,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		margin:       margin,
		client:       client,
		observer:     observer,
		now:          now,
		logger:       logger.With().Str("component", "token_manager").Logger(),
	}
}

// Token returns a usable access token, requesting a new one when needed.
// A caller whose ctx ends stops waiting; the shared request keeps running for
// the remaining callers.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan("token", func() (any, error) {
		if token, ok := m.cached(); ok {
			return token, nil
		}
		return m.refresh(detached)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// State returns a copy of the cached token state.
func (m *TokenManager) State() TokenState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *TokenManager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.Usable(m.now(), m.margin) {
		return m.state.AccessToken, true
	}
	return "", false
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	token, expiresAt, err := m.requestToken(ctx)
	m.observer.ObserveTokenRefresh(err)
	if err != nil {
		m.logger.Error().Err(err).Msg("access token request failed")
		return "", err
	}

	m.mu.Lock()
	m.state = TokenState{AccessToken: token, ExpiresAt: expiresAt}
	m.mu.Unlock()

	m.logger.Info().Time("expires_at", expiresAt).Msg("access token issued")
	return token, nil
}

func (m *TokenManager) requestToken(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, &AuthError{Err: fmt.Errorf("create token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	issuedAt := m.now()
	resp, err := m.client.Do(req)
	if err != nil {
		return "", time.Time{}, &AuthError{Err: fmt.Errorf("send token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, &AuthError{Status: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, &AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", time.Time{}, &AuthError{Status: resp.StatusCode, Body: string(body), Err: fmt.Errorf("decode token response: %w", err)}
	}
	if payload.AccessToken == "" || payload.ExpiresIn <= 0 {
		return "", time.Time{}, &AuthError{Status: resp.StatusCode, Body: string(body), Err: errors.New("token response missing access_token or expires_in")}
	}

	lifetime := time.Duration(payload.ExpiresIn) * time.Second
	if lifetime <= m.margin {
		m.logger.Warn().Dur("lifetime", lifetime).Dur("margin", m.margin).Msg("token lifetime shorter than renewal margin")
	}

	return payload.AccessToken, issuedAt.Add(lifetime), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Observer receives request telemetry. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveRequest(endpoint string, status int, elapsed time.Duration)
	ObserveTokenRefresh(err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, int, time.Duration) {}
func (nopObserver) ObserveTokenRefresh(error)                 {}

var _ TokenSource = (*TokenManager)(nil)
