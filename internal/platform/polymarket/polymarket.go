// Package polymarket adapts the Polymarket Gamma API to the common
// market schema. Gamma responses are loosely typed, with several fields
// double-encoded as JSON strings, so every field is probed rather than
// decoded into a fixed struct.
package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
	"github.com/aarontekluuu/pm.ag-sub000/internal/gateway"
	"github.com/aarontekluuu/pm.ag-sub000/internal/normalize"
	"github.com/aarontekluuu/pm.ag-sub000/internal/price"
)

// VenueName identifies this adapter's markets across the aggregate.
const VenueName = "polymarket"

const defaultPageSize = 100

// Adapter reads markets from the Polymarket Gamma API.
type Adapter struct {
	client *gateway.Client
	logger *slog.Logger
}

// New creates a Polymarket adapter on top of a gateway client.
func New(client *gateway.Client, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client: client,
		logger: logger.With(slog.String("component", "polymarket_adapter")),
	}
}

// Name returns the venue identifier.
func (a *Adapter) Name() string { return VenueName }

// FetchMarkets lists open markets up to limit, following offset
// pagination. Records that cannot be normalized are counted and skipped,
// never fatal.
func (a *Adapter) FetchMarkets(ctx context.Context, limit int) (domain.FetchResult, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	pageSize := limit
	if pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}

	var res domain.FetchResult
	fetchedAt := time.Now().UTC()
	for offset := 0; len(res.Markets) < limit; offset += pageSize {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("offset", strconv.Itoa(offset))
		query.Set("active", "true")
		query.Set("closed", "false")

		var page []map[string]any
		if err := a.client.Get(ctx, "/markets", query, &page); err != nil {
			return domain.FetchResult{}, fmt.Errorf("polymarket: list markets: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			if len(res.Markets) >= limit {
				break
			}
			a.collect(rec, fetchedAt, &res)
		}
		if len(page) < pageSize {
			break
		}
	}

	if res.Skipped > 0 {
		a.logger.Debug("skipped unparseable records", slog.Int("count", res.Skipped))
	}
	return res, nil
}

// FetchQuote returns the latest price for one market by id.
func (a *Adapter) FetchQuote(ctx context.Context, id string) (domain.MarketQuote, error) {
	var rec map[string]any
	if err := a.client.Get(ctx, "/markets/"+url.PathEscape(id), nil, &rec); err != nil {
		return domain.MarketQuote{}, fmt.Errorf("polymarket: get market %s: %w", id, err)
	}

	m, ok := a.normalizeMarket(rec, time.Now().UTC())
	if !ok {
		return domain.MarketQuote{}, fmt.Errorf("polymarket: market %s: %w", id, domain.ErrUnparseable)
	}

	sourceID, _ := normalize.String(rec, "conditionId", "condition_id", "slug")
	return domain.MarketQuote{
		Venue:       VenueName,
		ID:          m.ID,
		Title:       m.Title,
		Price:       m.YesPrice,
		URL:         m.URL,
		SourceID:    sourceID,
		Category:    m.Category,
		Tags:        m.Tags,
		Description: m.Description,
		ExpiresAt:   m.ExpiresAt,
	}, nil
}

// collect normalizes one Gamma record into the result, counting records
// it cannot use.
func (a *Adapter) collect(rec map[string]any, fetchedAt time.Time, res *domain.FetchResult) {
	if closed, ok := normalize.Bool(rec, "closed"); ok && closed {
		return
	}

	m, ok := a.normalizeMarket(rec, fetchedAt)
	if !ok {
		res.Skipped++
		return
	}
	res.Markets = append(res.Markets, m)

	if m.TokenRefs[0] != "" && m.YesPrice != nil {
		res.Quotes = append(res.Quotes, domain.PriceQuote{
			TokenRef:  m.TokenRefs[0],
			Price:     *m.YesPrice,
			UpdatedAt: m.UpdatedAt,
		})
	}
	if m.TokenRefs[1] != "" && m.NoPrice != nil {
		res.Quotes = append(res.Quotes, domain.PriceQuote{
			TokenRef:  m.TokenRefs[1],
			Price:     *m.NoPrice,
			UpdatedAt: m.UpdatedAt,
		})
	}
}

func (a *Adapter) normalizeMarket(rec map[string]any, fetchedAt time.Time) (domain.NormalizedMarket, bool) {
	id, ok := normalize.String(rec, "id", "conditionId", "condition_id")
	if !ok {
		return domain.NormalizedMarket{}, false
	}
	title, ok := normalize.String(rec, "question", "title")
	if !ok {
		return domain.NormalizedMarket{}, false
	}

	m := domain.NormalizedMarket{
		Venue:     VenueName,
		ID:        id,
		Title:     title,
		UpdatedAt: fetchedAt,
	}

	if prices, ok := normalize.StringSlice(rec, "outcomePrices", "outcome_prices"); ok && len(prices) >= 2 {
		m.YesPrice = price.ParseOptional(prices[0])
		m.NoPrice = price.ParseOptional(prices[1])
	}
	if m.YesPrice == nil {
		if v, ok := normalize.Value(rec, "lastTradePrice", "last_trade_price", "bestBid"); ok {
			m.YesPrice = price.ParseOptional(v)
		}
	}
	if tokens, ok := normalize.StringSlice(rec, "clobTokenIds", "clob_token_ids"); ok && len(tokens) >= 2 {
		m.TokenRefs = [2]string{tokens[0], tokens[1]}
	}
	if vol, ok := normalize.Number(rec, "volumeNum", "volume", "volume24hr"); ok {
		m.Volume = vol
	}
	if ts, ok := normalize.Time(rec, "updatedAt", "updated_at"); ok {
		m.UpdatedAt = ts
	}
	if ts, ok := normalize.Time(rec, "endDate", "endDateIso", "end_date_iso"); ok {
		m.ExpiresAt = &ts
	}
	m.Category, _ = normalize.String(rec, "category")
	m.Description, _ = normalize.String(rec, "description")
	m.Tags, _ = normalize.StringSlice(rec, "tags")
	if slug, ok := normalize.String(rec, "slug"); ok {
		m.URL = "https://polymarket.com/market/" + slug
	}
	return m, true
}
