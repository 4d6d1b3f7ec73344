package wms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/apperr"
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/metrics"
)

const (
	ModePath  = "path"
	ModeQuery = "query"

	maxBodySize  = 10 << 20
	maxErrorBody = 4 << 10
)

type Config struct {
	BaseURL        string
	AddressingMode string
	MaxRetries     int
	RetryDelay     time.Duration
}

// Client looks up orders in the WMS REST API.
type Client struct {
	baseURL    string
	mode       string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.AddressingMode == "" {
		cfg.AddressingMode = ModePath
	}
	if cfg.AddressingMode != ModePath && cfg.AddressingMode != ModeQuery {
		return nil, fmt.Errorf("unknown addressing mode %q", cfg.AddressingMode)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		mode:       cfg.AddressingMode,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// FetchOrder loads a single order with full item detail. In query mode a
// result set without an order carrying exactly this ReferenceNum is
// reported as NotFoundError.
func (c *Client) FetchOrder(ctx context.Context, token, reference string) (*Order, error) {
	body, status, err := c.get(ctx, c.orderURL(reference), token)
	if err != nil {
		return nil, err
	}

	if c.mode == ModePath {
		var order Order
		if err := json.Unmarshal(body, &order); err != nil {
			return nil, &apperr.UpstreamFetchError{StatusCode: status, Body: truncate(body), Err: err}
		}
		return &order, nil
	}

	var coll orderCollection
	if err := json.Unmarshal(body, &coll); err != nil {
		return nil, &apperr.UpstreamFetchError{StatusCode: status, Body: truncate(body), Err: err}
	}
	// Only an exact ReferenceNum match is ours; the filter may be ignored
	// or matched loosely upstream.
	orders := coll.orders()
	for i := range orders {
		if string(orders[i].ReferenceNum) == reference {
			return &orders[i], nil
		}
	}
	return nil, &apperr.NotFoundError{Resource: "order", ID: reference}
}

func (c *Client) orderURL(reference string) string {
	if c.mode == ModeQuery {
		q := url.Values{
			"referenceNum": {reference},
			"detail":       {"All"},
			"itemdetail":   {"All"},
		}
		return c.baseURL + "/orders?" + q.Encode()
	}
	return c.baseURL + "/orders/" + url.PathEscape(reference) + "?detail=All&itemdetail=All"
}

// get performs an idempotent GET. Transport errors and 5xx answers are
// retried up to maxRetries times with a linearly growing delay.
func (c *Client) get(ctx context.Context, target, token string) ([]byte, int, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying order lookup",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			if err := sleepCtx(ctx, c.retryDelay*time.Duration(attempt)); err != nil {
				return nil, 0, err
			}
		}

		body, status, err := c.do(ctx, target, token)
		if err == nil {
			return body, status, nil
		}
		lastErr = err

		if !retryable(ctx, err) {
			break
		}
	}
	return nil, 0, lastErr
}

func (c *Client) do(ctx context.Context, target, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create order request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(c.mode, "error").Inc()
		return nil, 0, &apperr.UpstreamFetchError{Err: err}
	}
	defer resp.Body.Close()

	metrics.UpstreamRequestsTotal.WithLabelValues(c.mode, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, &apperr.UpstreamFetchError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &apperr.UpstreamFetchError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	return body, resp.StatusCode, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var fetchErr *apperr.UpstreamFetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	return fetchErr.StatusCode == 0 || fetchErr.StatusCode >= 500
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
