// Package normalize extracts typed fields from the loosely shaped JSON
// objects venues return. Every helper probes an ordered list of field
// name variants and reports absence instead of failing, which lets the
// adapters skip malformed records and keep going.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value returns the first non-nil value found under the given keys.
func Value(rec map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first usable string field. Numeric values are
// formatted so that numeric ids stay addressable.
func String(rec map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if t := strings.TrimSpace(s); t != "" {
				return t, true
			}
		case json.Number:
			return s.String(), true
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64), true
		}
	}
	return "", false
}

// Number returns the first field that parses as a finite float.
func Number(rec map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		var f float64
		var err error
		switch n := v.(type) {
		case float64:
			f = n
		case json.Number:
			f, err = n.Float64()
		case string:
			f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
		default:
			continue
		}
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// Bool returns the first field that reads as a boolean.
func Bool(rec map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return parsed, true
			}
		}
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time returns the first field that parses as a timestamp, in UTC.
// String values try RFC3339 and a few laxer layouts before falling back
// to a unix epoch reading; numeric values are unix seconds, or unix
// milliseconds past 1e12.
func Time(rec map[string]any, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			for _, layout := range timeLayouts {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts.UTC(), true
				}
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				if ts, ok := fromUnix(n); ok {
					return ts, true
				}
			}
		case float64:
			if ts, ok := fromUnix(int64(t)); ok {
				return ts, true
			}
		case json.Number:
			if n, err := t.Int64(); err == nil {
				if ts, ok := fromUnix(n); ok {
					return ts, true
				}
			}
		}
	}
	return time.Time{}, false
}

// fromUnix reads an epoch value. Unix seconds stay below 1e12 until the
// year 33658, so anything at or above that is taken as milliseconds.
func fromUnix(n int64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n >= 1e12 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

// StringSlice returns the first field holding a non-empty list of
// strings. Lists that venues double-encode as JSON strings are decoded.
func StringSlice(rec map[string]any, keys ...string) ([]string, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if out, ok := toStringSlice(v); ok {
			return out, true
		}
	}
	return nil, false
}

func toStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, len(s) > 0
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, len(out) > 0
	case string:
		t := strings.TrimSpace(s)
		if !strings.HasPrefix(t, "[") {
			return nil, false
		}
		var arr []any
		if err := json.Unmarshal([]byte(t), &arr); err != nil {
			return nil, false
		}
		return toStringSlice(arr)
	}
	return nil, false
}

// Slice returns the first field holding a non-empty JSON array.
func Slice(rec map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok {
			if arr, ok := v.([]any); ok && len(arr) > 0 {
				return arr, true
			}
		}
	}
	return nil, false
}
