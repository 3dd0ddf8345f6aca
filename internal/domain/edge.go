package domain

import "time"

// EdgeSide is one priced outcome side of a market edge.
type EdgeSide struct {
	TokenRef string
	Price    float64
}

// MarketEdge is the per-market mispricing signal: the YES+NO price sum and
// the riskless margin from buying both sides. Edge is never negative; markets
// with a missing side are excluded from edge computation entirely rather than
// zero-filled.
type MarketEdge struct {
	MarketID  string
	Title     string
	Venue     string
	Yes       EdgeSide
	No        EdgeSide
	Sum       float64
	Edge      float64 // max(0, 1-Sum), rounded to 6 decimals
	Volume    float64
	UpdatedAt time.Time // max of the two side price timestamps
}
