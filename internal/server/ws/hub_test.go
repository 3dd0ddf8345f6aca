package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
	"github.com/gorilla/websocket"
)

// fakeBus hands out one controllable channel per subscribed bus channel.
type fakeBus struct {
	channels map[string]chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{channels: map[string]chan []byte{
		"snapshot_updates": make(chan []byte),
	}}
}

func (f *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (f *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch, ok := f.channels[channel]
	if !ok {
		ch = make(chan []byte)
		f.channels[channel] = ch
	}
	return ch, nil
}

func (f *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestHubDeliversStatusAndUpdates(t *testing.T) {
	bus := newFakeBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger, Config{
		Mode:      "serve",
		Venues:    []string{"polymarket", "kalshi"},
		StartedAt: time.Now().Add(-time.Minute),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// First frame is the status envelope pushed on connect.
	var status envelope
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status frame: %v", err)
	}
	if status.Type != "status" {
		t.Fatalf("first frame type = %q, want status", status.Type)
	}
	var payload map[string]any
	if err := json.Unmarshal(status.Payload, &payload); err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	if payload["mode"] != "serve" {
		t.Errorf("status mode = %v, want serve", payload["mode"])
	}
	if up, ok := payload["uptime_seconds"].(float64); !ok || up < 59 {
		t.Errorf("uptime_seconds = %v, want >= 59", payload["uptime_seconds"])
	}

	// A bus message comes through wrapped in an envelope.
	update := []byte(`{"snapshot_id":"cycle-9","markets":42}`)
	select {
	case bus.channels["snapshot_updates"] <- update:
	case <-time.After(2 * time.Second):
		t.Fatal("hub never subscribed to snapshot_updates")
	}

	var frame envelope
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read update frame: %v", err)
	}
	if frame.Type != "snapshot_updates" {
		t.Errorf("frame type = %q, want snapshot_updates", frame.Type)
	}
	if !strings.Contains(string(frame.Payload), "cycle-9") {
		t.Errorf("payload = %s, want the published update", frame.Payload)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	bus := newFakeBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger, Config{Mode: "serve"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var status envelope
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status frame: %v", err)
	}

	msg := subscribeMsg{Action: "unsubscribe", Channels: []string{"snapshot_updates"}}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("send unsubscribe: %v", err)
	}

	// Give the read pump a moment to apply the subscription change.
	time.Sleep(100 * time.Millisecond)

	select {
	case bus.channels["snapshot_updates"] <- []byte(`{"snapshot_id":"cycle-1"}`):
	case <-time.After(2 * time.Second):
		t.Fatal("hub never subscribed to snapshot_updates")
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var frame envelope
	if err := conn.ReadJSON(&frame); err == nil {
		t.Fatalf("got frame %q after unsubscribe", frame.Type)
	}
}
