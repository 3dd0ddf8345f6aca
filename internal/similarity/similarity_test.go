package similarity

import (
	"math"
	"testing"
	"time"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name            string
		in              string
		removeStopwords bool
		want            string
	}{
		{
			name: "lowercases and strips punctuation",
			in:   "Will BTC exceed $100K by Dec 2025?",
			want: "will btc exceed 100k by dec 2025",
		},
		{
			name: "collapses whitespace",
			in:   "BTC   above\t100k",
			want: "btc above 100k",
		},
		{
			name:            "drops stopwords and short tokens",
			in:              "Will BTC exceed $100K by Dec 2025?",
			removeStopwords: true,
			want:            "btc above 100k dec 2025",
		},
		{
			name:            "canonicalizes comparator synonyms",
			in:              "ETH over $5000 end of 2025",
			removeStopwords: true,
			want:            "eth above 5000 end 2025",
		},
		{
			name:            "stopwords only",
			in:              "The A An",
			removeStopwords: true,
			want:            "",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTitle(tt.in, tt.removeStopwords)
			if got != tt.want {
				t.Errorf("NormalizeTitle(%q, %v) = %q, want %q", tt.in, tt.removeStopwords, got, tt.want)
			}
		})
	}
}

func TestNormalizeTitleIdempotent(t *testing.T) {
	titles := []string{
		"Will BTC exceed $100K by Dec 2025?",
		"BTC above 100k end of 2025",
		"Fed cuts rates in March??",
		"   spaced    out   title   ",
		"",
	}
	for _, title := range titles {
		for _, removeStopwords := range []bool{false, true} {
			once := NormalizeTitle(title, removeStopwords)
			twice := NormalizeTitle(once, removeStopwords)
			if once != twice {
				t.Errorf("NormalizeTitle(%q, %v) not idempotent: %q then %q", title, removeStopwords, once, twice)
			}
		}
	}
}

func TestTitleSimilarity(t *testing.T) {
	t.Run("identical titles score 1", func(t *testing.T) {
		s := "Will BTC exceed $100K by Dec 2025?"
		if got := TitleSimilarity(s, s); got != 1.0 {
			t.Errorf("TitleSimilarity(s, s) = %v, want 1.0", got)
		}
	})

	t.Run("known edit distance", func(t *testing.T) {
		// levenshtein(kitten, sitting) = 3 over a longest length of 7.
		want := 1.0 - 3.0/7.0
		if got := TitleSimilarity("kitten", "sitting"); math.Abs(got-want) > 1e-9 {
			t.Errorf("TitleSimilarity(kitten, sitting) = %v, want %v", got, want)
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		a, b := "Will BTC exceed $100K by Dec 2025?", "BTC above 100k end of 2025"
		if ab, ba := TitleSimilarity(a, b), TitleSimilarity(b, a); ab != ba {
			t.Errorf("TitleSimilarity not symmetric: %v vs %v", ab, ba)
		}
	})

	t.Run("disjoint strings score 0", func(t *testing.T) {
		if got := TitleSimilarity("aaaa", "zzzz"); got != 0 {
			t.Errorf("TitleSimilarity(aaaa, zzzz) = %v, want 0", got)
		}
	})

	t.Run("one side normalizes to empty", func(t *testing.T) {
		if got := TitleSimilarity("the", "rain"); got != 0 {
			t.Errorf("TitleSimilarity(the, rain) = %v, want 0", got)
		}
	})
}

func TestKeywordOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical sets", "BTC above 100k", "btc above 100k!", 1.0},
		{"disjoint sets", "Trump wins election", "rain tomorrow London", 0.0},
		{"partial overlap", "Will BTC exceed $100K by Dec 2025?", "BTC above 100k end of 2025", 4.0 / 6.0},
		{"empty input", "", "BTC above 100k", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeywordOverlap(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("KeywordOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestExpirationSimilarity(t *testing.T) {
	base := time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)
	ts := func(d time.Duration) *time.Time {
		v := base.Add(d)
		return &v
	}

	tests := []struct {
		name string
		a, b *time.Time
		want *float64
	}{
		{"missing left", nil, ts(0), nil},
		{"missing right", ts(0), nil, nil},
		{"same instant", ts(0), ts(0), ptr(1.0)},
		{"twelve hours apart", ts(0), ts(12 * time.Hour), ptr(1.0)},
		{"one day apart", ts(0), ts(24 * time.Hour), ptr(1.0)},
		{"thirty days apart", ts(0), ts(30 * 24 * time.Hour), ptr(30.0 / 59.0)},
		{"sixty days apart", ts(0), ts(60 * 24 * time.Hour), ptr(0.0)},
		{"ninety days apart", ts(0), ts(90 * 24 * time.Hour), ptr(0.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpirationSimilarity(tt.a, tt.b)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ExpirationSimilarity() = %v, want %v", got, tt.want)
			}
			if got != nil && math.Abs(*got-*tt.want) > 1e-9 {
				t.Errorf("ExpirationSimilarity() = %v, want %v", *got, *tt.want)
			}
		})
	}
}

func TestScore(t *testing.T) {
	btcPolymarket := domain.NormalizedMarket{
		Venue: "polymarket",
		ID:    "0xbtc",
		Title: "Will BTC exceed $100K by Dec 2025?",
	}
	btcKalshi := domain.NormalizedMarket{
		Venue: "kalshi",
		ID:    "BTC-100K",
		Title: "BTC above 100k end of 2025",
	}

	t.Run("cross-venue btc pair clears 0.7", func(t *testing.T) {
		got := Score(btcPolymarket, btcKalshi, DefaultWeights)
		if got <= 0.7 {
			t.Errorf("Score() = %v, want > 0.7", got)
		}
	})

	t.Run("near expirations raise the score", func(t *testing.T) {
		a, b := btcPolymarket, btcKalshi
		expA := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
		expB := expA.Add(6 * time.Hour)
		a.ExpiresAt, b.ExpiresAt = &expA, &expB

		without := Score(btcPolymarket, btcKalshi, DefaultWeights)
		with := Score(a, b, DefaultWeights)
		if with <= 0.7 {
			t.Errorf("Score() with expirations = %v, want > 0.7", with)
		}
		if with <= without {
			t.Errorf("Score() with near expirations = %v, want above %v", with, without)
		}
	})

	t.Run("distant expirations lower the score", func(t *testing.T) {
		a, b := btcPolymarket, btcKalshi
		expA := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
		expB := expA.Add(90 * 24 * time.Hour)
		a.ExpiresAt, b.ExpiresAt = &expA, &expB

		without := Score(btcPolymarket, btcKalshi, DefaultWeights)
		if got := Score(a, b, DefaultWeights); got >= without {
			t.Errorf("Score() with distant expirations = %v, want below %v", got, without)
		}
	})

	t.Run("identical titles score 1", func(t *testing.T) {
		a := domain.NormalizedMarket{Venue: "polymarket", ID: "1", Title: "Fed cuts rates in March"}
		b := domain.NormalizedMarket{Venue: "kalshi", ID: "2", Title: "Fed cuts rates in March"}
		if got := Score(a, b, DefaultWeights); math.Abs(got-1.0) > 1e-9 {
			t.Errorf("Score() = %v, want 1.0", got)
		}
	})

	t.Run("unrelated titles score low", func(t *testing.T) {
		a := domain.NormalizedMarket{Venue: "polymarket", ID: "1", Title: "Will BTC exceed $100K by Dec 2025?"}
		b := domain.NormalizedMarket{Venue: "kalshi", ID: "2", Title: "Trump wins the 2028 election"}
		if got := Score(a, b, DefaultWeights); got >= 0.5 {
			t.Errorf("Score() = %v, want < 0.5", got)
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		if ab, ba := Score(btcPolymarket, btcKalshi, DefaultWeights), Score(btcKalshi, btcPolymarket, DefaultWeights); ab != ba {
			t.Errorf("Score not symmetric: %v vs %v", ab, ba)
		}
	})
}

func ptr(f float64) *float64 { return &f }
