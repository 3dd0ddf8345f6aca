package domain

// MarketMatch pairs two markets from distinct venues believed to quote the
// same real-world event.
type MarketMatch struct {
	A          NormalizedMarket
	B          NormalizedMarket
	Similarity float64 // in [0,1]
	GroupKey   string  // normalized title of A, used for event clustering
}

// EventCluster merges pairwise matches that share a grouping key. A cluster
// only surfaces when its members span at least two distinct venues.
type EventCluster struct {
	Key           string
	Members       []NormalizedMarket
	VenueCount    int
	MaxSimilarity float64
}
