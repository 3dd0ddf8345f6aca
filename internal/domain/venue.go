package domain

import "context"

// FetchResult is one venue's contribution to a fetch cycle. Skipped
// counts records the adapter could not normalize; it is diagnostic only
// and never fails the fetch.
type FetchResult struct {
	Markets []NormalizedMarket
	Quotes  []PriceQuote
	Skipped int
}

// Venue adapts one upstream market API to the common schema. Adapters
// skip records they cannot parse rather than failing the whole fetch.
type Venue interface {
	Name() string
	FetchMarkets(ctx context.Context, limit int) (FetchResult, error)
	FetchQuote(ctx context.Context, id string) (MarketQuote, error)
}
