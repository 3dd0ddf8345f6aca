package domain

import (
	"context"
	"time"
)

// SnapshotCache is second-level storage for the latest aggregate snapshot,
// shared across process instances. A cold instance reads it to serve warm data
// before its first local fetch completes.
type SnapshotCache interface {
	Set(ctx context.Context, key string, snap *Snapshot, ttl time.Duration) error
	Get(ctx context.Context, key string) (*Snapshot, error)
	Invalidate(ctx context.Context, key string) error
}

// RateLimiter provides distributed rate limiting for upstream venue budgets.
// Allow answers immediately; Wait blocks until the limiter's default budget
// admits the request.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking, used to elect a single refresh
// leader across instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is a single durable entry read back from a stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams feeding the WebSocket hub
// and any other subscribed consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error)
}
