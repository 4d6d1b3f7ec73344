package auth

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

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/apperr"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/metrics"
)

const (
	// Used when the token endpoint omits expires_in.
	defaultExpiresIn = 3600 * time.Second
	// Subtracted from the lifetime to absorb clock skew and request latency.
	expirySafetyMargin = 60 * time.Second

	maxErrorBody = 4 << 10
	refreshKey   = "token"
)

type Config struct {
	ClientID     string
	ClientSecret string
	PartnerKey   string
	UserLoginID  string
	AuthURL      string
}

type accessToken struct {
	value  string
	expiry time.Time
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// TokenCache hands out WMS bearer tokens and refreshes them through the
// client-credentials grant. At most one refresh is in flight at a time.
type TokenCache struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu      sync.RWMutex
	current *accessToken
	group   singleflight.Group

	timeNow func() time.Time
}

func NewTokenCache(cfg Config, httpClient *http.Client, logger *zap.Logger) *TokenCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCache{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		timeNow:    time.Now,
	}
}

// Token returns a cached token while it is valid and otherwise performs a
// refresh shared by every concurrent caller.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		metrics.TokenCacheHitsTotal.Inc()
		return token, nil
	}

	if err := c.checkCredentials(); err != nil {
		return "", err
	}

	// The refresh outlives a single caller's cancellation because other
	// callers may be waiting on it; the HTTP client timeout still bounds it.
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		return c.refresh(refreshCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token so the next call refreshes.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil || !c.timeNow().Before(c.current.expiry) {
		return "", false
	}
	return c.current.value, true
}

func (c *TokenCache) checkCredentials() error {
	var missing []string
	if c.cfg.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.cfg.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if c.cfg.PartnerKey == "" {
		missing = append(missing, "partner key")
	}
	if len(missing) > 0 {
		return &apperr.CredentialsError{Missing: missing}
	}
	return nil
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"tpl":           {c.cfg.PartnerKey},
		"user_login_id": {c.cfg.UserLoginID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := c.timeNow()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		return "", &apperr.UpstreamAuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		return "", &apperr.UpstreamAuthError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.TokenRefreshesTotal.WithLabelValues("rejected").Inc()
		c.logger.Warn("token endpoint rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return "", &apperr.UpstreamAuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("malformed").Inc()
		return "", &apperr.UpstreamAuthError{StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	if tr.AccessToken == "" {
		metrics.TokenRefreshesTotal.WithLabelValues("malformed").Inc()
		return "", &apperr.UpstreamAuthError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        errors.New("response has no access_token"),
		}
	}

	lifetime, err := parseExpiresIn(tr.ExpiresIn)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("malformed").Inc()
		return "", &apperr.UpstreamAuthError{StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}

	token := &accessToken{
		value:  tr.AccessToken,
		expiry: start.Add(lifetime - expirySafetyMargin),
	}

	c.mu.Lock()
	c.current = token
	c.mu.Unlock()

	metrics.TokenRefreshesTotal.WithLabelValues("ok").Inc()
	c.logger.Info("refreshed WMS access token", zap.Time("expires_at", token.expiry))

	return token.value, nil
}

func parseExpiresIn(n json.Number) (time.Duration, error) {
	if n == "" {
		return defaultExpiresIn, nil
	}
	secs, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid expires_in %q: %w", n.String(), err)
	}
	if secs <= 0 {
		return defaultExpiresIn, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}
