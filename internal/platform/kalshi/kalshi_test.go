package kalshi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
	"github.com/aarontekluuu/pm.ag-sub000/internal/gateway"
)

func TestFetchMarkets(t *testing.T) {
	var mu sync.Mutex
	var cursors []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if status := r.URL.Query().Get("status"); status != "open" {
			t.Errorf("status query = %q, want open", status)
		}
		cursor := r.URL.Query().Get("cursor")
		mu.Lock()
		cursors = append(cursors, cursor)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if cursor == "" {
			fmt.Fprint(w, `{
				"markets": [
					{
						"ticker": "BTC-100K",
						"title": "Will BTC exceed $100K by Dec 2025?",
						"status": "open",
						"yes_ask": 46,
						"no_ask": 50,
						"volume": 12000,
						"close_time": "2025-12-31T23:00:00Z",
						"category": "Crypto",
						"subtitle": "Settles on the CF BTC reference rate"
					},
					{
						"ticker": "OLD-MARKET",
						"title": "Long settled market",
						"status": "settled",
						"yes_ask": 99
					},
					{
						"ticker": "NO-TITLE",
						"status": "open",
						"yes_ask": 12
					}
				],
				"cursor": "page-two"
			}`)
			return
		}
		fmt.Fprint(w, `{
			"markets": [
				{
					"ticker": "FED-CUT",
					"title": "Fed cuts rates in March?",
					"status": "open",
					"last_price": 37
				}
			],
			"cursor": ""
		}`)
	}))
	defer srv.Close()

	adapter := New(gateway.NewClient(VenueName, srv.URL), nil)
	res, err := adapter.FetchMarkets(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}

	if len(res.Markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(res.Markets))
	}
	m := res.Markets[0]
	if m.Venue != VenueName || m.ID != "BTC-100K" {
		t.Errorf("unexpected identity %s/%s", m.Venue, m.ID)
	}
	if m.Title != "Will BTC exceed $100K by Dec 2025?" {
		t.Errorf("unexpected title %q", m.Title)
	}
	if m.TokenRefs != [2]string{"BTC-100K:yes", "BTC-100K:no"} {
		t.Errorf("token refs = %v", m.TokenRefs)
	}
	if m.YesPrice == nil || *m.YesPrice != 0.46 {
		t.Errorf("yes price = %v, want 0.46", m.YesPrice)
	}
	if m.NoPrice == nil || *m.NoPrice != 0.50 {
		t.Errorf("no price = %v, want 0.50", m.NoPrice)
	}
	if m.Volume != 12000 {
		t.Errorf("volume = %v, want 12000", m.Volume)
	}
	wantExp := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	if m.ExpiresAt == nil || !m.ExpiresAt.Equal(wantExp) {
		t.Errorf("expires at = %v, want %v", m.ExpiresAt, wantExp)
	}
	if m.Category != "Crypto" {
		t.Errorf("category = %q", m.Category)
	}
	if m.Description != "Settles on the CF BTC reference rate" {
		t.Errorf("description = %q", m.Description)
	}
	if m.URL != "https://kalshi.com/markets/BTC-100K" {
		t.Errorf("unexpected url %q", m.URL)
	}

	second := res.Markets[1]
	if second.ID != "FED-CUT" {
		t.Errorf("second market = %s, want FED-CUT", second.ID)
	}
	if second.YesPrice == nil || *second.YesPrice != 0.37 {
		t.Errorf("second yes price = %v, want 0.37", second.YesPrice)
	}
	if second.NoPrice != nil {
		t.Errorf("second no price = %v, want nil", second.NoPrice)
	}

	// The settled record is filtered, only the titleless one is a skip.
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}

	if len(res.Quotes) != 3 {
		t.Fatalf("expected 3 quotes, got %d", len(res.Quotes))
	}
	if res.Quotes[0].TokenRef != "BTC-100K:yes" || res.Quotes[0].Price != 0.46 {
		t.Errorf("unexpected quote %+v", res.Quotes[0])
	}
	if res.Quotes[1].TokenRef != "BTC-100K:no" || res.Quotes[1].Price != 0.50 {
		t.Errorf("unexpected quote %+v", res.Quotes[1])
	}
	if res.Quotes[2].TokenRef != "FED-CUT:yes" || res.Quotes[2].Price != 0.37 {
		t.Errorf("unexpected quote %+v", res.Quotes[2])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(cursors) != 2 {
		t.Fatalf("expected 2 page requests, got %d", len(cursors))
	}
	if cursors[0] != "" || cursors[1] != "page-two" {
		t.Errorf("unexpected cursors %v", cursors)
	}
}

func TestFetchMarketsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"markets": [
				{"ticker": "A", "title": "First market?", "yes_ask": 40},
				{"ticker": "B", "title": "Second market?", "yes_ask": 41},
				{"ticker": "C", "title": "Third market?", "yes_ask": 42}
			],
			"cursor": "more"
		}`)
	}))
	defer srv.Close()

	adapter := New(gateway.NewClient(VenueName, srv.URL), nil)
	res, err := adapter.FetchMarkets(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	if len(res.Markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(res.Markets))
	}
	if res.Markets[0].ID != "A" || res.Markets[1].ID != "B" {
		t.Errorf("unexpected markets %s, %s", res.Markets[0].ID, res.Markets[1].ID)
	}
}

func TestFetchMarketsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := gateway.NewClient(VenueName, srv.URL, gateway.WithRetries(0, time.Millisecond))
	adapter := New(client, nil)

	_, err := adapter.FetchMarkets(context.Background(), 10)
	if err == nil {
		t.Fatal("expected error")
	}
	var upErr *domain.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", upErr.StatusCode)
	}
}

func TestFetchQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/BTC-100K":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{
				"market": {
					"ticker": "BTC-100K",
					"title": "Will BTC exceed $100K by Dec 2025?",
					"event_ticker": "BTC-PRICE",
					"yes_ask": 47,
					"no_ask": 54
				}
			}`)
		case "/markets/BROKEN":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"market": {"status": "open"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter := New(gateway.NewClient(VenueName, srv.URL), nil)

	t.Run("priced market", func(t *testing.T) {
		quote, err := adapter.FetchQuote(context.Background(), "BTC-100K")
		if err != nil {
			t.Fatalf("FetchQuote: %v", err)
		}
		if quote.Venue != VenueName || quote.ID != "BTC-100K" {
			t.Errorf("unexpected identity %s/%s", quote.Venue, quote.ID)
		}
		if quote.Price == nil || *quote.Price != 0.47 {
			t.Errorf("price = %v, want 0.47", quote.Price)
		}
		if quote.SourceID != "BTC-PRICE" {
			t.Errorf("source id = %q, want BTC-PRICE", quote.SourceID)
		}
		if quote.URL != "https://kalshi.com/markets/BTC-100K" {
			t.Errorf("unexpected url %q", quote.URL)
		}
	})

	t.Run("tickerless record", func(t *testing.T) {
		_, err := adapter.FetchQuote(context.Background(), "BROKEN")
		if !errors.Is(err, domain.ErrUnparseable) {
			t.Fatalf("expected ErrUnparseable, got %v", err)
		}
	})
}

func TestCentsToProbability(t *testing.T) {
	tests := []struct {
		name string
		rec  map[string]any
		keys []string
		want *float64
	}{
		{
			name: "first key wins",
			rec:  map[string]any{"yes_ask": float64(46), "last_price": float64(99)},
			keys: []string{"yes_ask", "last_price"},
			want: ptr(0.46),
		},
		{
			name: "zero reads as absent",
			rec:  map[string]any{"yes_ask": float64(0), "last_price": float64(37)},
			keys: []string{"yes_ask", "last_price"},
			want: ptr(0.37),
		},
		{
			name: "out of range falls through",
			rec:  map[string]any{"yes_ask": float64(150), "last_price": float64(37)},
			keys: []string{"yes_ask", "last_price"},
			want: ptr(0.37),
		},
		{
			name: "string cents",
			rec:  map[string]any{"yes_ask": "46"},
			keys: []string{"yes_ask"},
			want: ptr(0.46),
		},
		{
			name: "one cent",
			rec:  map[string]any{"yes_ask": float64(1)},
			keys: []string{"yes_ask"},
			want: ptr(0.01),
		},
		{
			name: "full dollar",
			rec:  map[string]any{"yes_ask": float64(100)},
			keys: []string{"yes_ask"},
			want: ptr(1.0),
		},
		{
			name: "nothing usable",
			rec:  map[string]any{"status": "open"},
			keys: []string{"yes_ask", "last_price"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := centsToProbability(tt.rec, tt.keys...)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("got %v, want %v", *got, *tt.want)
			}
		})
	}
}

func ptr(f float64) *float64 { return &f }
