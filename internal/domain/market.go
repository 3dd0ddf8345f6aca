package domain

import "time"

// OutcomeSide identifies one side of a binary market.
type OutcomeSide string

const (
	OutcomeYes OutcomeSide = "yes"
	OutcomeNo  OutcomeSide = "no"
)

// MarketQuote is a single-price quote for one market as returned by a venue's
// latest-price endpoint. Price is nil when the venue returned no usable value.
type MarketQuote struct {
	Venue       string
	ID          string
	Title       string
	Price       *float64 // in [0,1] once present
	URL         string
	SourceID    string
	Category    string
	Tags        []string
	Description string
	ExpiresAt   *time.Time
}

// NormalizedMarket is the common market schema produced by the per-venue
// adapters. Price fields, once present, are in [0,1].
type NormalizedMarket struct {
	Venue       string
	ID          string
	Title       string
	TokenRefs   [2]string // yes, no outcome token references
	YesPrice    *float64
	NoPrice     *float64
	Volume      float64
	UpdatedAt   time.Time
	ExpiresAt   *time.Time
	Category    string
	Tags        []string
	Description string
	URL         string
}

// Priced reports whether both outcome sides carry a price.
func (m NormalizedMarket) Priced() bool {
	return m.YesPrice != nil && m.NoPrice != nil
}

// PriceQuote is one outcome token's latest price with its observation time.
// The edge calculator resolves each market's sides through a tokenRef lookup
// of these rather than trusting the market struct, so per-side freshness is
// preserved.
type PriceQuote struct {
	TokenRef  string
	Price     float64
	UpdatedAt time.Time
}
