package normalize

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestString(t *testing.T) {
	tests := []struct {
		name   string
		rec    map[string]any
		keys   []string
		want   string
		wantOK bool
	}{
		{"first variant wins", map[string]any{"question": "BTC?", "title": "ignored"}, []string{"question", "title"}, "BTC?", true},
		{"falls through to later variant", map[string]any{"title": "BTC?"}, []string{"question", "title"}, "BTC?", true},
		{"skips empty strings", map[string]any{"question": "   ", "title": "BTC?"}, []string{"question", "title"}, "BTC?", true},
		{"formats numeric ids", map[string]any{"id": float64(12345)}, []string{"id"}, "12345", true},
		{"json number id", map[string]any{"id": json.Number("987")}, []string{"id"}, "987", true},
		{"absent", map[string]any{}, []string{"question"}, "", false},
		{"null", map[string]any{"question": nil}, []string{"question"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := String(tt.rec, tt.keys...)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("String() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name   string
		rec    map[string]any
		keys   []string
		want   float64
		wantOK bool
	}{
		{"float field", map[string]any{"volume": 1234.5}, []string{"volume"}, 1234.5, true},
		{"numeric string", map[string]any{"volume": "1234.5"}, []string{"volume"}, 1234.5, true},
		{"json number", map[string]any{"volume": json.Number("7")}, []string{"volume"}, 7, true},
		{"probes variants", map[string]any{"volume24hr": 42.0}, []string{"volume", "volume24hr"}, 42, true},
		{"rejects garbage string", map[string]any{"volume": "lots"}, []string{"volume"}, 0, false},
		{"rejects NaN string", map[string]any{"volume": "NaN"}, []string{"volume"}, 0, false},
		{"absent", map[string]any{}, []string{"volume"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Number(tt.rec, tt.keys...)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Number() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBool(t *testing.T) {
	tests := []struct {
		name   string
		rec    map[string]any
		want   bool
		wantOK bool
	}{
		{"true flag", map[string]any{"active": true}, true, true},
		{"false flag", map[string]any{"active": false}, false, true},
		{"string flag", map[string]any{"active": "true"}, true, true},
		{"absent", map[string]any{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Bool(tt.rec, "active")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Bool() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTime(t *testing.T) {
	want := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		rec    map[string]any
		want   time.Time
		wantOK bool
	}{
		{"rfc3339", map[string]any{"end_date_iso": "2025-12-31T23:00:00Z"}, want, true},
		{"rfc3339 with offset", map[string]any{"end_date_iso": "2025-12-31T18:00:00-05:00"}, want, true},
		{"space separated", map[string]any{"end_date_iso": "2025-12-31 23:00:00"}, want, true},
		{"date only", map[string]any{"end_date_iso": "2025-12-31"}, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"unix seconds", map[string]any{"close_time": float64(want.Unix())}, want, true},
		{"unix milliseconds", map[string]any{"close_time": float64(want.UnixMilli())}, want, true},
		{"unix seconds string", map[string]any{"close_time": "1767222000"}, time.Unix(1767222000, 0).UTC(), true},
		{"zero epoch is absent", map[string]any{"close_time": float64(0)}, time.Time{}, false},
		{"garbage", map[string]any{"end_date_iso": "tomorrow"}, time.Time{}, false},
		{"absent", map[string]any{}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Time(tt.rec, "end_date_iso", "close_time")
			if ok != tt.wantOK {
				t.Fatalf("Time() ok = %v, want %v", ok, tt.wantOK)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Time() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStringSlice(t *testing.T) {
	tests := []struct {
		name   string
		rec    map[string]any
		want   []string
		wantOK bool
	}{
		{"plain array", map[string]any{"outcomes": []any{"Yes", "No"}}, []string{"Yes", "No"}, true},
		{"double-encoded array", map[string]any{"outcomes": `["0.45", "0.55"]`}, []string{"0.45", "0.55"}, true},
		{"mixed types rejected", map[string]any{"outcomes": []any{"Yes", 1.0}}, nil, false},
		{"plain string rejected", map[string]any{"outcomes": "Yes"}, nil, false},
		{"empty array is absent", map[string]any{"outcomes": []any{}}, nil, false},
		{"absent", map[string]any{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StringSlice(tt.rec, "outcomes")
			if ok != tt.wantOK {
				t.Fatalf("StringSlice() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("StringSlice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	rec := map[string]any{"tokens": []any{map[string]any{"outcome": "Yes"}}}
	got, ok := Slice(rec, "tokens")
	if !ok || len(got) != 1 {
		t.Fatalf("Slice() = (%v, %v), want one element", got, ok)
	}
	if _, ok := Slice(map[string]any{}, "tokens"); ok {
		t.Error("Slice() found a value in an empty record")
	}
}
