package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists the latest normalized market state, one row per
// venue+id. Updates overwrite; no history accumulates.
type MarketStore interface {
	UpsertBatch(ctx context.Context, markets []NormalizedMarket) error
	GetByID(ctx context.Context, venue, id string) (NormalizedMarket, error)
	List(ctx context.Context, opts ListOpts) ([]NormalizedMarket, error)
	Count(ctx context.Context) (int64, error)
}

// EdgeStore persists the latest computed edge per market.
type EdgeStore interface {
	UpsertBatch(ctx context.Context, edges []MarketEdge) error
	ListTop(ctx context.Context, limit int) ([]MarketEdge, error)
	Count(ctx context.Context) (int64, error)
}
