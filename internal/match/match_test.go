package match

import (
	"testing"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
	"github.com/aarontekluuu/pm.ag-sub000/internal/similarity"
)

func nm(venue, id, title string) domain.NormalizedMarket {
	return domain.NormalizedMarket{Venue: venue, ID: id, Title: title}
}

func TestAcrossVenues(t *testing.T) {
	btcPoly := nm("polymarket", "0xbtc", "Will BTC exceed $100K by Dec 2025?")
	btcKalshi := nm("kalshi", "BTC-100K", "BTC above 100k end of 2025")
	trumpPoly := nm("polymarket", "0xtrump", "Trump wins the 2028 election")
	trumpKalshi := nm("kalshi", "PRES-2028", "Will Trump win the 2028 election?")

	markets := []domain.NormalizedMarket{btcPoly, btcKalshi, trumpPoly, trumpKalshi}

	t.Run("pairs equivalent markets across venues", func(t *testing.T) {
		matches := AcrossVenues(markets, 0.7, similarity.DefaultWeights)
		if len(matches) != 2 {
			t.Fatalf("AcrossVenues() returned %d matches, want 2", len(matches))
		}
		for _, m := range matches {
			if m.A.Venue == m.B.Venue {
				t.Errorf("match pairs two %s markets", m.A.Venue)
			}
			if m.Similarity < 0.7 {
				t.Errorf("match similarity %v below threshold 0.7", m.Similarity)
			}
		}
	})

	t.Run("sorted by similarity descending", func(t *testing.T) {
		matches := AcrossVenues(markets, 0.0, similarity.DefaultWeights)
		for i := 1; i < len(matches); i++ {
			if matches[i].Similarity > matches[i-1].Similarity {
				t.Fatalf("matches out of order: %v after %v", matches[i].Similarity, matches[i-1].Similarity)
			}
		}
	})

	t.Run("threshold filters everything", func(t *testing.T) {
		if matches := AcrossVenues(markets, 0.95, similarity.DefaultWeights); len(matches) != 0 {
			t.Errorf("AcrossVenues() returned %d matches above 0.95, want 0", len(matches))
		}
	})

	t.Run("never pairs markets from one venue", func(t *testing.T) {
		sameVenue := []domain.NormalizedMarket{
			nm("polymarket", "a", "Fed cuts rates in March"),
			nm("polymarket", "b", "Fed cuts rates in March"),
			nm("kalshi", "c", "Completely unrelated question here"),
		}
		if matches := AcrossVenues(sameVenue, 0.7, similarity.DefaultWeights); len(matches) != 0 {
			t.Errorf("AcrossVenues() returned %d matches, want 0", len(matches))
		}
	})

	t.Run("duplicate entries compared once", func(t *testing.T) {
		withDup := []domain.NormalizedMarket{btcPoly, btcPoly, btcKalshi}
		matches := AcrossVenues(withDup, 0.7, similarity.DefaultWeights)
		if len(matches) != 1 {
			t.Errorf("AcrossVenues() returned %d matches for duplicated input, want 1", len(matches))
		}
	})

	t.Run("single venue yields nothing", func(t *testing.T) {
		if matches := AcrossVenues([]domain.NormalizedMarket{btcPoly, trumpPoly}, 0.0, similarity.DefaultWeights); len(matches) != 0 {
			t.Errorf("AcrossVenues() returned %d matches for one venue, want 0", len(matches))
		}
	})
}

func TestFindBest(t *testing.T) {
	target := nm("polymarket", "0xbtc", "Will BTC exceed $100K by Dec 2025?")
	candidates := []domain.NormalizedMarket{
		nm("polymarket", "0xbtc2", "Will BTC exceed $100K by Dec 2025?"),
		nm("kalshi", "BTC-100K", "BTC above 100k end of 2025"),
		nm("kalshi", "PRES-2028", "Will Trump win the 2028 election?"),
	}

	t.Run("returns the best cross-venue candidate", func(t *testing.T) {
		best, ok := FindBest(target, candidates, 0.7, similarity.DefaultWeights)
		if !ok {
			t.Fatal("FindBest() found no match, want one")
		}
		if best.B.ID != "BTC-100K" {
			t.Errorf("FindBest() picked %s, want BTC-100K", best.B.ID)
		}
		if best.Similarity <= 0.7 {
			t.Errorf("FindBest() similarity = %v, want > 0.7", best.Similarity)
		}
	})

	t.Run("ignores same-venue candidates", func(t *testing.T) {
		sameVenue := []domain.NormalizedMarket{nm("polymarket", "0xbtc2", "Will BTC exceed $100K by Dec 2025?")}
		if _, ok := FindBest(target, sameVenue, 0.0, similarity.DefaultWeights); ok {
			t.Error("FindBest() matched a same-venue market")
		}
	})

	t.Run("nothing above threshold", func(t *testing.T) {
		unrelated := []domain.NormalizedMarket{nm("kalshi", "PRES-2028", "Will Trump win the 2028 election?")}
		if _, ok := FindBest(target, unrelated, 0.7, similarity.DefaultWeights); ok {
			t.Error("FindBest() matched below the threshold")
		}
	})
}

func TestGroupEvents(t *testing.T) {
	btcPoly := nm("polymarket", "0xbtc", "Will BTC exceed $100K by Dec 2025?")
	btcKalshi := nm("kalshi", "BTC-100K", "BTC above 100k end of 2025")
	btcManifold := nm("manifold", "btc-100k", "BTC above $100,000 in 2025")
	fedPoly := nm("polymarket", "0xfed", "Fed cuts rates in March")
	fedKalshi := nm("kalshi", "FED-CUT", "Fed cuts rates in March")

	matches := []domain.MarketMatch{
		{A: btcPoly, B: btcKalshi, Similarity: 0.90, GroupKey: "btc above 100k"},
		{A: btcPoly, B: btcManifold, Similarity: 0.80, GroupKey: "btc above 100k"},
		{A: fedPoly, B: fedKalshi, Similarity: 0.95, GroupKey: "fed cuts rates march"},
	}

	clusters := GroupEvents(matches)
	if len(clusters) != 2 {
		t.Fatalf("GroupEvents() returned %d clusters, want 2", len(clusters))
	}

	t.Run("larger clusters sort first", func(t *testing.T) {
		if len(clusters[0].Members) != 3 || clusters[0].Key != "btc above 100k" {
			t.Errorf("first cluster = %q with %d members, want btc cluster with 3", clusters[0].Key, len(clusters[0].Members))
		}
	})

	t.Run("members deduplicated by venue and id", func(t *testing.T) {
		seen := make(map[string]int)
		for _, m := range clusters[0].Members {
			seen[m.Venue+":"+m.ID]++
		}
		for id, n := range seen {
			if n != 1 {
				t.Errorf("member %s appears %d times", id, n)
			}
		}
		if clusters[0].VenueCount != 3 {
			t.Errorf("VenueCount = %d, want 3", clusters[0].VenueCount)
		}
	})

	t.Run("max similarity tracked per cluster", func(t *testing.T) {
		if clusters[0].MaxSimilarity != 0.90 {
			t.Errorf("MaxSimilarity = %v, want 0.90", clusters[0].MaxSimilarity)
		}
		if clusters[1].MaxSimilarity != 0.95 {
			t.Errorf("MaxSimilarity = %v, want 0.95", clusters[1].MaxSimilarity)
		}
	})

	t.Run("single-venue groups are dropped", func(t *testing.T) {
		sameVenue := []domain.MarketMatch{
			{A: nm("polymarket", "x", "A"), B: nm("polymarket", "y", "A"), Similarity: 1.0, GroupKey: "a"},
		}
		if got := GroupEvents(sameVenue); len(got) != 0 {
			t.Errorf("GroupEvents() surfaced %d single-venue clusters, want 0", len(got))
		}
	})

	t.Run("tie on member count falls back to similarity", func(t *testing.T) {
		tied := []domain.MarketMatch{
			{A: fedPoly, B: fedKalshi, Similarity: 0.75, GroupKey: "fed cuts rates march"},
			{A: btcPoly, B: btcKalshi, Similarity: 0.90, GroupKey: "btc above 100k"},
		}
		got := GroupEvents(tied)
		if len(got) != 2 {
			t.Fatalf("GroupEvents() returned %d clusters, want 2", len(got))
		}
		if got[0].Key != "btc above 100k" {
			t.Errorf("first cluster = %q, want the higher-similarity one", got[0].Key)
		}
	})
}
