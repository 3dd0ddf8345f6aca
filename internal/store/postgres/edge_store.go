package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// EdgeStore implements domain.EdgeStore using PostgreSQL. One row per
// venue+market, overwritten each refresh cycle.
type EdgeStore struct {
	pool *pgxpool.Pool
}

// NewEdgeStore creates an EdgeStore backed by the given pool.
func NewEdgeStore(pool *pgxpool.Pool) *EdgeStore {
	return &EdgeStore{pool: pool}
}

const upsertEdgeQuery = `
	INSERT INTO edges (
		venue, market_id, title, yes_token, yes_price,
		no_token, no_price, price_sum, edge, volume, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10, $11
	)
	ON CONFLICT (venue, market_id) DO UPDATE SET
		title      = EXCLUDED.title,
		yes_token  = EXCLUDED.yes_token,
		yes_price  = EXCLUDED.yes_price,
		no_token   = EXCLUDED.no_token,
		no_price   = EXCLUDED.no_price,
		price_sum  = EXCLUDED.price_sum,
		edge       = EXCLUDED.edge,
		volume     = EXCLUDED.volume,
		updated_at = EXCLUDED.updated_at`

// UpsertBatch inserts or updates edges in a single batch round trip.
func (s *EdgeStore) UpsertBatch(ctx context.Context, edges []domain.MarketEdge) error {
	if len(edges) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range edges {
		batch.Queue(upsertEdgeQuery,
			e.Venue, e.MarketID, e.Title, e.Yes.TokenRef, e.Yes.Price,
			e.No.TokenRef, e.No.Price, e.Sum, e.Edge, e.Volume, e.UpdatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range edges {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert edge batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListTop returns the largest stored edges, descending.
func (s *EdgeStore) ListTop(ctx context.Context, limit int) ([]domain.MarketEdge, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT venue, market_id, title, yes_token, yes_price,
			no_token, no_price, price_sum, edge, volume, updated_at
		FROM edges
		ORDER BY edge DESC, volume DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list top edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.MarketEdge
	for rows.Next() {
		var e domain.MarketEdge
		if err := rows.Scan(
			&e.Venue, &e.MarketID, &e.Title, &e.Yes.TokenRef, &e.Yes.Price,
			&e.No.TokenRef, &e.No.Price, &e.Sum, &e.Edge, &e.Volume, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list top edges rows: %w", err)
	}
	return edges, nil
}

// Count returns the number of stored edges.
func (s *EdgeStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM edges").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count edges: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.EdgeStore = (*EdgeStore)(nil)
