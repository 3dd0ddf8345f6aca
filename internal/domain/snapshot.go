package domain

import "time"

// VenueReport carries per-venue diagnostics for one aggregation cycle.
type VenueReport struct {
	Venue   string
	Markets int
	Skipped int    // records the adapter dropped as unparseable
	Error   string // empty when the venue contributed cleanly
}

// Snapshot is the full aggregate served to consumers: everything recomputed
// in one fetch cycle plus the serving metadata (staleness). Snapshots are
// immutable once built; the coalescing cache hands the same value to all
// concurrent readers.
type Snapshot struct {
	ID          string // cycle id
	UpdatedAt   time.Time
	Stale       bool
	StaleReason string // machine-readable, e.g. "upstream_failed", empty when fresh
	Markets     []NormalizedMarket
	Edges       []MarketEdge
	Matches     []MarketMatch
	Clusters    []EventCluster
	Venues      []VenueReport
}

// VenueError returns the recorded error string for a venue, if any.
func (s *Snapshot) VenueError(venue string) string {
	for _, v := range s.Venues {
		if v.Venue == venue {
			return v.Error
		}
	}
	return ""
}
