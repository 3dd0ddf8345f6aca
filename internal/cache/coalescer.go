// Package cache provides the in-process snapshot cache: TTL freshness,
// single-flight request coalescing, and bounded stale serving when a
// refresh fails.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

const (
	defaultTTL         = 30 * time.Second
	defaultStaleWindow = 60 * time.Second
)

// FetchFunc produces a fresh snapshot for a cache key.
type FetchFunc func(ctx context.Context) (*domain.Snapshot, error)

type entry struct {
	snap      *domain.Snapshot
	fetchedAt time.Time
}

// Coalescer is a keyed snapshot cache. Reads within the TTL return the
// cached value, concurrent reads of an expired key share one in-flight
// fetch, and a failed refresh falls back to the prior value for as long
// as the stale window allows.
type Coalescer struct {
	ttl         time.Duration
	staleWindow time.Duration
	logger      *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

// New creates a Coalescer. Non-positive durations fall back to the
// defaults (30s TTL, 60s stale window).
func New(ttl, staleWindow time.Duration, logger *slog.Logger) *Coalescer {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if staleWindow <= 0 {
		staleWindow = defaultStaleWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coalescer{
		ttl:         ttl,
		staleWindow: staleWindow,
		logger:      logger.With(slog.String("component", "snapshot_cache")),
		entries:     make(map[string]entry),
	}
}

// TTL returns the freshness window.
func (c *Coalescer) TTL() time.Duration { return c.ttl }

// StaleWindow returns how long past the TTL a value may still be
// served when a refresh fails.
func (c *Coalescer) StaleWindow() time.Duration { return c.staleWindow }

// Get returns the snapshot for key, fetching when the cached value is
// missing or expired. All concurrent callers of an expired key share a
// single fetch. When the fetch fails and a prior value is still within
// the stale window past its TTL, that value is served flagged stale
// with a machine-readable reason; with no usable value the failure
// propagates, wrapping ErrNoData when nothing was ever cached.
func (c *Coalescer) Get(ctx context.Context, key string, fetch FetchFunc) (*domain.Snapshot, error) {
	if e, ok := c.lookup(key); ok && time.Since(e.fetchedAt) < c.ttl {
		return e.snap, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check freshness: an earlier flight may have refreshed the
		// key while this caller was waiting to join.
		if e, ok := c.lookup(key); ok && time.Since(e.fetchedAt) < c.ttl {
			return e.snap, nil
		}

		snap, err := fetch(ctx)
		if err == nil {
			c.Set(key, snap)
			return snap, nil
		}

		e, ok := c.lookup(key)
		if !ok {
			return nil, fmt.Errorf("%w: %v", domain.ErrNoData, err)
		}
		if time.Since(e.fetchedAt) >= c.ttl+c.staleWindow {
			return nil, fmt.Errorf("stale window exceeded: %w", err)
		}

		reason := reasonFor(err)
		c.logger.Warn("serving stale snapshot",
			slog.String("key", key),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		cp := *e.snap
		cp.Stale = true
		cp.StaleReason = reason
		return &cp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Snapshot), nil
}

// Set stores a snapshot under key, restarting its TTL.
func (c *Coalescer) Set(key string, snap *domain.Snapshot) {
	c.mu.Lock()
	c.entries[key] = entry{snap: snap, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Peek returns the cached snapshot and its fetch time without
// triggering a fetch, regardless of freshness.
func (c *Coalescer) Peek(key string) (*domain.Snapshot, time.Time, bool) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, time.Time{}, false
	}
	return e.snap, e.fetchedAt, true
}

// Invalidate drops the cached value for key. A fetch already in flight
// is detached so the next Get starts a fresh one.
func (c *Coalescer) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.group.Forget(key)
}

func (c *Coalescer) lookup(key string) (entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	return e, ok
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "refresh_timeout"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	default:
		return "refresh_failed"
	}
}
