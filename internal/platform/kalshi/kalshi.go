// Package kalshi adapts the Kalshi trade API to the common market
// schema. Kalshi quotes prices in whole cents, which are mapped to
// probabilities here so downstream code only ever sees [0,1].
package kalshi

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
)

// VenueName identifies this adapter's markets across the aggregate.
const VenueName = "kalshi"

const defaultPageSize = 100

// Adapter reads markets from the Kalshi trade API.
type Adapter struct {
	client *gateway.Client
	logger *slog.Logger
}

// New creates a Kalshi adapter on top of a gateway client.
func New(client *gateway.Client, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client: client,
		logger: logger.With(slog.String("component", "kalshi_adapter")),
	}
}

// Name returns the venue identifier.
func (a *Adapter) Name() string { return VenueName }

type marketsResponse struct {
	Markets []map[string]any `json:"markets"`
	Cursor  string           `json:"cursor"`
}

// FetchMarkets lists open markets up to limit, following cursor
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
	cursor := ""
	for len(res.Markets) < limit {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("status", "open")
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page marketsResponse
		if err := a.client.Get(ctx, "/markets", query, &page); err != nil {
			return domain.FetchResult{}, fmt.Errorf("kalshi: list markets: %w", err)
		}
		if len(page.Markets) == 0 {
			break
		}
		for _, rec := range page.Markets {
			if len(res.Markets) >= limit {
				break
			}
			a.collect(rec, fetchedAt, &res)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	if res.Skipped > 0 {
		a.logger.Debug("skipped unparseable records", slog.Int("count", res.Skipped))
	}
	return res, nil
}

// FetchQuote returns the latest price for one market by ticker.
func (a *Adapter) FetchQuote(ctx context.Context, ticker string) (domain.MarketQuote, error) {
	var resp struct {
		Market map[string]any `json:"market"`
	}
	if err := a.client.Get(ctx, "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return domain.MarketQuote{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	m, ok := a.normalizeMarket(resp.Market, time.Now().UTC())
	if !ok {
		return domain.MarketQuote{}, fmt.Errorf("kalshi: market %s: %w", ticker, domain.ErrUnparseable)
	}

	sourceID, _ := normalize.String(resp.Market, "event_ticker", "series_ticker")
	return domain.MarketQuote{
		Venue:       VenueName,
		ID:          m.ID,
		Title:       m.Title,
		Price:       m.YesPrice,
		URL:         m.URL,
		SourceID:    sourceID,
		Category:    m.Category,
		Description: m.Description,
		ExpiresAt:   m.ExpiresAt,
	}, nil
}

// collect normalizes one market record into the result, counting records
// it cannot use.
func (a *Adapter) collect(rec map[string]any, fetchedAt time.Time, res *domain.FetchResult) {
	if status, ok := normalize.String(rec, "status"); ok && status != "open" && status != "active" {
		return
	}

	m, ok := a.normalizeMarket(rec, fetchedAt)
	if !ok {
		res.Skipped++
		return
	}
	res.Markets = append(res.Markets, m)

	if m.YesPrice != nil {
		res.Quotes = append(res.Quotes, domain.PriceQuote{
			TokenRef:  m.TokenRefs[0],
			Price:     *m.YesPrice,
			UpdatedAt: m.UpdatedAt,
		})
	}
	if m.NoPrice != nil {
		res.Quotes = append(res.Quotes, domain.PriceQuote{
			TokenRef:  m.TokenRefs[1],
			Price:     *m.NoPrice,
			UpdatedAt: m.UpdatedAt,
		})
	}
}

func (a *Adapter) normalizeMarket(rec map[string]any, fetchedAt time.Time) (domain.NormalizedMarket, bool) {
	ticker, ok := normalize.String(rec, "ticker", "market_ticker")
	if !ok {
		return domain.NormalizedMarket{}, false
	}
	title, ok := normalize.String(rec, "title", "question")
	if !ok {
		return domain.NormalizedMarket{}, false
	}

	m := domain.NormalizedMarket{
		Venue:     VenueName,
		ID:        ticker,
		Title:     title,
		TokenRefs: [2]string{ticker + ":yes", ticker + ":no"},
		UpdatedAt: fetchedAt,
		URL:       "https://kalshi.com/markets/" + ticker,
	}

	m.YesPrice = centsToProbability(rec, "yes_ask", "last_price", "yes_bid")
	m.NoPrice = centsToProbability(rec, "no_ask", "no_bid")
	if vol, ok := normalize.Number(rec, "volume", "volume_24h"); ok {
		m.Volume = vol
	}
	if ts, ok := normalize.Time(rec, "close_time", "expiration_time"); ok {
		m.ExpiresAt = &ts
	}
	m.Category, _ = normalize.String(rec, "category")
	m.Description, _ = normalize.String(rec, "subtitle")
	return m, true
}

// centsToProbability probes the given fields for a price in cents and
// maps the first usable one into [0,1]. Zero is an empty book side, not
// a free contract, so it reads as absent.
func centsToProbability(rec map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		c, ok := normalize.Number(rec, k)
		if !ok || c <= 0 || c > 100 {
			continue
		}
		p := c / 100
		return &p
	}
	return nil
}
