package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache with JSON-serialized
// snapshots under plain string keys. It is the L2 cache shared across
// instances: cold processes warm-start from it and the aggregator falls
// back to it when every venue fails.
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

// Set stores a snapshot under key with the given TTL.
func (sc *SnapshotCache) Set(ctx context.Context, key string, snap *domain.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", key, err)
	}
	if err := sc.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", key, err)
	}
	return nil
}

// Get returns the snapshot stored under key, or domain.ErrNotFound when
// the key is missing or expired.
func (sc *SnapshotCache) Get(ctx context.Context, key string) (*domain.Snapshot, error) {
	data, err := sc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get snapshot %s: %w", key, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redis: unmarshal snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// Invalidate removes the snapshot stored under key.
func (sc *SnapshotCache) Invalidate(ctx context.Context, key string) error {
	if err := sc.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
