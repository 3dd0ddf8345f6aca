// Package similarity scores how likely two markets listed on different
// venues describe the same real-world event. The score combines keyword
// overlap, title edit distance, and expiration proximity.
package similarity

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// Weights controls how the component scores are combined. When either
// market lacks an expiration timestamp the Expiration weight is folded
// into Keyword, so the total weight stays constant.
type Weights struct {
	Keyword    float64
	Title      float64
	Expiration float64
}

// DefaultWeights reflects the relative reliability of each signal:
// keyword overlap is the most paraphrase-robust, raw edit distance is
// noisier, and expiration only disambiguates when both venues expose one.
var DefaultWeights = Weights{Keyword: 0.6, Title: 0.3, Expiration: 0.1}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "in": true, "to": true, "for": true, "is": true,
	"on": true, "at": true, "by": true, "be": true, "it": true,
	"will": true, "vs": true, "with": true, "this": true, "that": true,
}

// Comparator words venues phrase interchangeably, mapped to a single
// canonical form so "BTC exceeds $100K" and "BTC above 100k" compare as
// the same claim. The canonical forms are not keys, so renormalizing an
// already-normalized title is a no-op.
var synonyms = map[string]string{
	"exceed":  "above",
	"exceeds": "above",
	"over":    "above",
	"greater": "above",
	"higher":  "above",
	"under":   "below",
	"beneath": "below",
	"less":    "below",
	"lower":   "below",
}

// NormalizeTitle lowercases a title, replaces every non-alphanumeric rune
// with a space, and collapses runs of whitespace. With removeStopwords it
// also canonicalizes comparator synonyms and drops stop words and tokens
// shorter than three characters. The result is stable under repeated
// application.
func NormalizeTitle(title string, removeStopwords bool) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	words := strings.Fields(b.String())
	if removeStopwords {
		kept := words[:0]
		for _, word := range words {
			if canon, ok := synonyms[word]; ok {
				word = canon
			}
			if len(word) < 3 || stopWords[word] {
				continue
			}
			kept = append(kept, word)
		}
		words = kept
	}
	return strings.Join(words, " ")
}

// Keywords returns the stopword-filtered token set of a title.
func Keywords(title string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(NormalizeTitle(title, true)) {
		tokens[word] = true
	}
	return tokens
}

// TitleSimilarity measures the edit-distance similarity of two titles in
// [0,1]. Titles that are equal after normalization short-circuit to 1.0.
func TitleSimilarity(a, b string) float64 {
	return normalizedSimilarity(NormalizeTitle(a, true), NormalizeTitle(b, true))
}

func normalizedSimilarity(na, nb string) float64 {
	if na == nb {
		return 1.0
	}
	longest := len([]rune(na))
	if n := len([]rune(nb)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	return 1.0 - float64(levenshtein(na, nb))/float64(longest)
}

// KeywordOverlap is the Jaccard index of the two titles' keyword sets.
func KeywordOverlap(a, b string) float64 {
	return jaccard(Keywords(a), Keywords(b))
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if b[tok] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// ExpirationSimilarity compares two expiration timestamps. It returns nil
// when either side lacks one, 1.0 when they fall within a day of each
// other, 0.0 when they are sixty or more days apart, and interpolates
// linearly in between.
func ExpirationSimilarity(a, b *time.Time) *float64 {
	if a == nil || b == nil || a.IsZero() || b.IsZero() {
		return nil
	}
	days := math.Abs(a.Sub(*b).Hours()) / 24
	var sim float64
	switch {
	case days <= 1:
		sim = 1.0
	case days >= 60:
		sim = 0.0
	default:
		sim = (60 - days) / 59
	}
	return &sim
}

// Profile carries the precomputed comparison forms for one market, so a
// pairwise matching pass does not re-normalize the same title for every
// candidate pair.
type Profile struct {
	Norm      string
	Tokens    map[string]bool
	ExpiresAt *time.Time
}

// NewProfile builds the comparison profile for a market.
func NewProfile(m domain.NormalizedMarket) Profile {
	norm := NormalizeTitle(m.Title, true)
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(norm) {
		tokens[word] = true
	}
	return Profile{Norm: norm, Tokens: tokens, ExpiresAt: m.ExpiresAt}
}

// Score computes the combined similarity of two markets in [0,1].
func Score(a, b domain.NormalizedMarket, w Weights) float64 {
	return ScoreProfiles(NewProfile(a), NewProfile(b), w)
}

// ScoreProfiles combines keyword overlap, title similarity, and
// expiration proximity under the given weights.
func ScoreProfiles(a, b Profile, w Weights) float64 {
	kw := jaccard(a.Tokens, b.Tokens)
	title := normalizedSimilarity(a.Norm, b.Norm)

	score := title * w.Title
	if exp := ExpirationSimilarity(a.ExpiresAt, b.ExpiresAt); exp != nil {
		score += kw*w.Keyword + *exp*w.Expiration
	} else {
		score += kw * (w.Keyword + w.Expiration)
	}
	return clamp01(score)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// levenshtein returns the edit distance between two strings, computed
// over runes with the two-row dynamic programming formulation.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			d := prev[j-1]
			if ra[i-1] != rb[j-1] {
				d++
			}
			if x := prev[j] + 1; x < d {
				d = x
			}
			if x := curr[j-1] + 1; x < d {
				d = x
			}
			curr[j] = d
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
