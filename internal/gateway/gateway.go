// Package gateway provides the HTTP client venue adapters use to call
// upstream market APIs. Every call runs under a bounded timeout, retries
// only retryable statuses with doubling backoff, and passes through a
// FIFO concurrency limiter so a burst of calls cannot pile onto a venue.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

const (
	defaultTimeout     = 7 * time.Second
	defaultMaxRetries  = 2
	defaultBackoff     = 500 * time.Millisecond
	defaultConcurrency = 10
)

// Client calls one venue's REST endpoints.
type Client struct {
	venue      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
	concurrency  int
	sem          *semaphore.Weighted
	limiter      domain.RateLimiter
	headers      map[string]string
	signer       func(*http.Request) error
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a gateway client for one venue.
func NewClient(venue, baseURL string, opts ...Option) *Client {
	c := &Client{
		venue:        venue,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{},
		logger:       slog.Default(),
		timeout:      defaultTimeout,
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultBackoff,
		concurrency:  defaultConcurrency,
		headers:      make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.sem = semaphore.NewWeighted(int64(c.concurrency))
	c.logger = c.logger.With(
		slog.String("component", "gateway"),
		slog.String("venue", venue),
	)
	return c
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetries sets the retry count and initial backoff.
func WithRetries(max int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithConcurrency bounds the number of in-flight calls.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithHeader adds a header to every request, typically a credential.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimiter attaches a shared request budget consulted before every
// attempt, keyed by venue name.
func WithRateLimiter(rl domain.RateLimiter) Option {
	return func(c *Client) {
		c.limiter = rl
	}
}

// WithRequestSigner sets a hook that signs each request before it is
// sent, for venues that authenticate with per-request signatures.
func WithRequestSigner(sign func(*http.Request) error) Option {
	return func(c *Client) {
		c.signer = sign
	}
}

// Venue returns the venue name this client calls.
func (c *Client) Venue() string {
	return c.venue
}

// Get performs a GET request with retries and decodes the JSON response
// into result. Excess concurrent calls wait for a free slot in FIFO
// order.
func (c *Client) Get(ctx context.Context, path string, query url.Values, result any) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	body, err := c.doWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnparseable, err)
	}
	return nil
}

// doWithRetry performs a request, retrying retryable upstream statuses
// with doubling backoff. Timeouts and non-retryable statuses surface
// immediately.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("path", path),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, err := c.doRequest(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var upErr *domain.UpstreamError
		if !errors.As(err, &upErr) || !upErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs a single attempt under the per-request timeout.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.venue); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.signer != nil {
		if err := c.signer(req); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s: no response within %s: %w", c.venue, c.timeout, domain.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &domain.UpstreamError{
			Venue:      c.venue,
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return body, nil
}
