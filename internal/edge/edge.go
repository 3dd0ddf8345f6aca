// Package edge computes the buy-both-sides mispricing margin for markets
// whose YES and NO outcomes are both priced.
package edge

import (
	"math"
	"sort"
	"time"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// Compute resolves both outcome prices for each market and returns the
// edges sorted by volume descending. A market missing either side is
// skipped entirely; a missing price is never treated as zero. Per-token
// quotes take precedence over the prices captured with the listing, so
// each side carries its own observation time.
func Compute(markets []domain.NormalizedMarket, prices map[string]domain.PriceQuote) []domain.MarketEdge {
	edges := make([]domain.MarketEdge, 0, len(markets))
	for _, m := range markets {
		e, ok := compute(m, prices)
		if !ok {
			continue
		}
		edges = append(edges, e)
	}
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].Volume > edges[j].Volume
	})
	return edges
}

func compute(m domain.NormalizedMarket, prices map[string]domain.PriceQuote) (domain.MarketEdge, bool) {
	yes, yesAt, ok := resolve(m.TokenRefs[0], m.YesPrice, m.UpdatedAt, prices)
	if !ok {
		return domain.MarketEdge{}, false
	}
	no, noAt, ok := resolve(m.TokenRefs[1], m.NoPrice, m.UpdatedAt, prices)
	if !ok {
		return domain.MarketEdge{}, false
	}

	sum := yes + no
	updatedAt := yesAt
	if noAt.After(updatedAt) {
		updatedAt = noAt
	}

	return domain.MarketEdge{
		MarketID:  m.ID,
		Title:     m.Title,
		Venue:     m.Venue,
		Yes:       domain.EdgeSide{TokenRef: m.TokenRefs[0], Price: yes},
		No:        domain.EdgeSide{TokenRef: m.TokenRefs[1], Price: no},
		Sum:       round6(sum),
		Edge:      round6(math.Max(0, 1-sum)),
		Volume:    m.Volume,
		UpdatedAt: updatedAt,
	}, true
}

// resolve returns one outcome side's price, preferring the per-token quote
// over the price embedded in the market listing.
func resolve(tokenRef string, fallback *float64, fallbackAt time.Time, prices map[string]domain.PriceQuote) (float64, time.Time, bool) {
	if tokenRef != "" {
		if q, ok := prices[tokenRef]; ok {
			return q.Price, q.UpdatedAt, true
		}
	}
	if fallback == nil {
		return 0, time.Time{}, false
	}
	return *fallback, fallbackAt, true
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
