// Package match pairs markets listed on different venues that appear to
// describe the same event, and merges those pairs into event clusters.
package match

import (
	"sort"
	"strings"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
	"github.com/aarontekluuu/pm.ag-sub000/internal/similarity"
)

type profiled struct {
	market  domain.NormalizedMarket
	profile similarity.Profile
}

// AcrossVenues scores every cross-venue market pair and returns the pairs
// whose similarity reaches minSimilarity, sorted by similarity descending
// with ties kept in discovery order. Markets from the same venue are never
// paired with each other, and a (venue, id) pair is compared at most once
// even when the input contains duplicates.
//
// The scan is quadratic in venues and markets, which is fine at the scale
// of tens of venues with tens of markets each.
func AcrossVenues(markets []domain.NormalizedMarket, minSimilarity float64, w similarity.Weights) []domain.MarketMatch {
	byVenue := make(map[string][]profiled)
	var venues []string
	for _, m := range markets {
		if _, ok := byVenue[m.Venue]; !ok {
			venues = append(venues, m.Venue)
		}
		byVenue[m.Venue] = append(byVenue[m.Venue], profiled{market: m, profile: similarity.NewProfile(m)})
	}
	sort.Strings(venues)

	seen := make(map[string]bool)
	var matches []domain.MarketMatch
	for i := 0; i < len(venues); i++ {
		for j := i + 1; j < len(venues); j++ {
			for _, a := range byVenue[venues[i]] {
				for _, b := range byVenue[venues[j]] {
					key := pairKey(a.market, b.market)
					if seen[key] {
						continue
					}
					seen[key] = true

					score := similarity.ScoreProfiles(a.profile, b.profile, w)
					if score < minSimilarity {
						continue
					}
					matches = append(matches, domain.MarketMatch{
						A:          a.market,
						B:          b.market,
						Similarity: score,
						GroupKey:   groupKey(a.profile, b.profile),
					})
				}
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// FindBest returns the single best cross-venue candidate for the target
// market, or false when no candidate from another venue reaches
// minSimilarity. Ties keep the earliest candidate.
func FindBest(target domain.NormalizedMarket, candidates []domain.NormalizedMarket, minSimilarity float64, w similarity.Weights) (domain.MarketMatch, bool) {
	tp := similarity.NewProfile(target)

	var best domain.MarketMatch
	found := false
	for _, c := range candidates {
		if c.Venue == target.Venue {
			continue
		}
		cp := similarity.NewProfile(c)
		score := similarity.ScoreProfiles(tp, cp, w)
		if score < minSimilarity {
			continue
		}
		if !found || score > best.Similarity {
			best = domain.MarketMatch{A: target, B: c, Similarity: score, GroupKey: groupKey(tp, cp)}
			found = true
		}
	}
	return best, found
}

// GroupEvents merges matches that share a grouping key into clusters,
// de-duplicating repeated (venue, id) members. A cluster is only surfaced
// when its members span at least two venues, so every cluster is a
// confirmed cross-venue correspondence. Clusters are sorted by member
// count descending, then by best pairwise similarity.
func GroupEvents(matches []domain.MarketMatch) []domain.EventCluster {
	clusters := make(map[string]*domain.EventCluster)
	members := make(map[string]map[string]bool)
	var order []string

	for _, m := range matches {
		c, ok := clusters[m.GroupKey]
		if !ok {
			c = &domain.EventCluster{Key: m.GroupKey}
			clusters[m.GroupKey] = c
			members[m.GroupKey] = make(map[string]bool)
			order = append(order, m.GroupKey)
		}
		for _, mk := range [2]domain.NormalizedMarket{m.A, m.B} {
			id := mk.Venue + ":" + mk.ID
			if members[m.GroupKey][id] {
				continue
			}
			members[m.GroupKey][id] = true
			c.Members = append(c.Members, mk)
		}
		if m.Similarity > c.MaxSimilarity {
			c.MaxSimilarity = m.Similarity
		}
	}

	var out []domain.EventCluster
	for _, key := range order {
		c := clusters[key]
		venues := make(map[string]bool)
		for _, m := range c.Members {
			venues[m.Venue] = true
		}
		c.VenueCount = len(venues)
		if c.VenueCount < 2 {
			continue
		}
		out = append(out, *c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Members) != len(out[j].Members) {
			return len(out[i].Members) > len(out[j].Members)
		}
		return out[i].MaxSimilarity > out[j].MaxSimilarity
	})
	return out
}

// pairKey builds a canonical identifier for an unordered market pair.
func pairKey(a, b domain.NormalizedMarket) string {
	parts := []string{a.Venue + ":" + a.ID, b.Venue + ":" + b.ID}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// groupKey picks the lexicographically smaller normalized title, which
// makes the key independent of pair order.
func groupKey(a, b similarity.Profile) string {
	if a.Norm < b.Norm {
		return a.Norm
	}
	return b.Norm
}
