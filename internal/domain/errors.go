package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrNoData          = errors.New("no data available")
	ErrConfigMissing   = errors.New("configuration missing")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrUnparseable     = errors.New("unparseable upstream payload")
	ErrRateLimited     = errors.New("rate limited")
	ErrLockHeld        = errors.New("lock already held")
)

// UpstreamError is an HTTP-level failure from a venue endpoint. 429 and 5xx
// responses are retryable; every other status fails immediately.
type UpstreamError struct {
	Venue      string
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("%s: upstream status %d: %s", e.Venue, e.StatusCode, truncate(e.Body, 200))
	}
	return fmt.Sprintf("%s: upstream status %d", e.Venue, e.StatusCode)
}

// IsRetryable reports whether the request may be retried.
func (e *UpstreamError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
