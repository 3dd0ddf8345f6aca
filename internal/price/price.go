// Package price converts heterogeneous raw price representations from venue
// payloads into bounded [0,1] probabilities. Venues disagree on encoding:
// some send probabilities ("0.42"), some percentages (42 or "42%"), some
// nothing at all. Parsing is total: bad input yields 0, never an error.
package price

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Parse converts a raw value (string, number, or nil) into a probability in
// [0,1]. Trailing "%" is stripped and the value divided by 100; bare numbers
// in (1,100] are treated as percentages and divided by 100; unparseable,
// negative, NaN, or out-of-range input yields 0.
func Parse(v any) float64 {
	if p := ParseOptional(v); p != nil {
		return *p
	}
	return 0
}

// ParseOptional is Parse but distinguishes "no usable price" (nil) from a
// genuinely quoted zero. Adapters use it to preserve the priced/unpriced
// distinction that the edge calculator depends on.
func ParseOptional(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return normalize(t)
	case float32:
		return normalize(float64(t))
	case int:
		return normalize(float64(t))
	case int64:
		return normalize(float64(t))
	case json.Number:
		return parseString(t.String())
	case string:
		return parseString(t)
	case *float64:
		if t == nil {
			return nil
		}
		return normalize(*t)
	default:
		return nil
	}
}

// parseString handles string-encoded prices, including the "X%" form.
func parseString(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if strings.HasSuffix(s, "%") {
		raw := strings.TrimSpace(strings.TrimSuffix(s, "%"))
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		f /= 100
		if f < 0 || f > 1 {
			return nil
		}
		return &f
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return normalize(f)
}

// normalize maps a bare number onto [0,1]: values already in range pass
// through, values in (1,100] are percentages, everything else is unusable.
func normalize(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil
	}
	if f > 100 {
		return nil
	}
	if f > 1 {
		f /= 100
	}
	return &f
}
