package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. Rows are
// keyed by (venue, id) and hold only the latest state.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const upsertMarketQuery = `
	INSERT INTO markets (
		venue, id, title, token_ref_1, token_ref_2,
		yes_price, no_price, volume, category, description,
		url, tags, expires_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14
	)
	ON CONFLICT (venue, id) DO UPDATE SET
		title       = EXCLUDED.title,
		token_ref_1 = EXCLUDED.token_ref_1,
		token_ref_2 = EXCLUDED.token_ref_2,
		yes_price   = EXCLUDED.yes_price,
		no_price    = EXCLUDED.no_price,
		volume      = EXCLUDED.volume,
		category    = EXCLUDED.category,
		description = EXCLUDED.description,
		url         = EXCLUDED.url,
		tags        = EXCLUDED.tags,
		expires_at  = EXCLUDED.expires_at,
		updated_at  = EXCLUDED.updated_at`

// UpsertBatch inserts or updates markets in a single batch round trip.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.NormalizedMarket) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(upsertMarketQuery,
			m.Venue, m.ID, m.Title, m.TokenRefs[0], m.TokenRefs[1],
			m.YesPrice, m.NoPrice, m.Volume, m.Category, m.Description,
			m.URL, m.Tags, m.ExpiresAt, m.UpdatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

const marketCols = `venue, id, title, token_ref_1, token_ref_2,
	yes_price, no_price, volume, category, description,
	url, tags, expires_at, updated_at`

func scanMarket(row pgx.Row) (domain.NormalizedMarket, error) {
	var m domain.NormalizedMarket
	err := row.Scan(
		&m.Venue, &m.ID, &m.Title, &m.TokenRefs[0], &m.TokenRefs[1],
		&m.YesPrice, &m.NoPrice, &m.Volume, &m.Category, &m.Description,
		&m.URL, &m.Tags, &m.ExpiresAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.NormalizedMarket{}, err
	}
	return m, nil
}

// GetByID retrieves one market by venue and id.
func (s *MarketStore) GetByID(ctx context.Context, venue, id string) (domain.NormalizedMarket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE venue = $1 AND id = $2`, venue, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NormalizedMarket{}, domain.ErrNotFound
		}
		return domain.NormalizedMarket{}, fmt.Errorf("postgres: get market %s/%s: %w", venue, id, err)
	}
	return m, nil
}

// List returns markets ordered by updated_at descending, with optional
// time filtering and pagination.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.NormalizedMarket, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	args := []any{}
	argIdx := 1
	conds := []string{}

	if opts.Since != nil {
		conds = append(conds, fmt.Sprintf("updated_at >= $%d", argIdx))
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		conds = append(conds, fmt.Sprintf("updated_at <= $%d", argIdx))
		args = append(args, *opts.Until)
		argIdx++
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY updated_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.NormalizedMarket
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the number of stored markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
