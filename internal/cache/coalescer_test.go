package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

func snapshotFetcher(fetches *int32, delay time.Duration) FetchFunc {
	return func(ctx context.Context) (*domain.Snapshot, error) {
		n := atomic.AddInt32(fetches, 1)
		if delay > 0 {
			time.Sleep(delay)
		}
		return &domain.Snapshot{ID: fmt.Sprintf("cycle-%d", n), UpdatedAt: time.Now()}, nil
	}
}

func TestGetCoalescesConcurrentReads(t *testing.T) {
	c := New(time.Hour, time.Hour, nil)

	var fetches int32
	fetch := snapshotFetcher(&fetches, 50*time.Millisecond)

	const readers = 8
	results := make([]*domain.Snapshot, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := c.Get(context.Background(), "markets", fetch)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = snap
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
	for i, snap := range results {
		if snap == nil || snap.ID != "cycle-1" {
			t.Errorf("reader %d got %+v, want cycle-1", i, snap)
		}
	}
}

func TestGetServesFreshWithinTTL(t *testing.T) {
	c := New(time.Hour, time.Hour, nil)

	var fetches int32
	fetch := snapshotFetcher(&fetches, 0)

	first, err := c.Get(context.Background(), "markets", fetch)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := c.Get(context.Background(), "markets", fetch)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetches != 1 {
		t.Errorf("expected 1 fetch, got %d", fetches)
	}
	if first != second {
		t.Error("expected the same cached snapshot")
	}
	if second.Stale {
		t.Error("fresh snapshot flagged stale")
	}
}

func TestGetRefetchesAfterTTL(t *testing.T) {
	c := New(20*time.Millisecond, time.Hour, nil)

	var fetches int32
	fetch := snapshotFetcher(&fetches, 0)

	if _, err := c.Get(context.Background(), "markets", fetch); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	snap, err := c.Get(context.Background(), "markets", fetch)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetches != 2 {
		t.Errorf("expected 2 fetches, got %d", fetches)
	}
	if snap.ID != "cycle-2" {
		t.Errorf("got %s, want cycle-2", snap.ID)
	}
}

func TestGetServesStaleOnFailure(t *testing.T) {
	c := New(20*time.Millisecond, time.Hour, nil)

	var fetches int32
	good := snapshotFetcher(&fetches, 0)
	upstreamErr := errors.New("venue down")
	bad := func(ctx context.Context) (*domain.Snapshot, error) {
		return nil, upstreamErr
	}

	if _, err := c.Get(context.Background(), "markets", good); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	snap, err := c.Get(context.Background(), "markets", bad)
	if err != nil {
		t.Fatalf("expected stale value, got error %v", err)
	}
	if snap.ID != "cycle-1" {
		t.Errorf("got %s, want prior cycle-1", snap.ID)
	}
	if !snap.Stale {
		t.Error("expected stale flag")
	}
	if snap.StaleReason != "refresh_failed" {
		t.Errorf("reason = %q, want refresh_failed", snap.StaleReason)
	}

	// The cached entry itself keeps its fresh flags so a later
	// successful refresh is unaffected.
	cached, _, ok := c.Peek("markets")
	if !ok || cached.Stale {
		t.Error("stale flag leaked into the cached entry")
	}

	recovered, err := c.Get(context.Background(), "markets", good)
	if err != nil {
		t.Fatalf("Get after recovery: %v", err)
	}
	if recovered.Stale || recovered.ID != "cycle-2" {
		t.Errorf("got %+v, want fresh cycle-2", recovered)
	}
}

func TestGetStaleReasonFromTimeout(t *testing.T) {
	c := New(10*time.Millisecond, time.Hour, nil)

	var fetches int32
	if _, err := c.Get(context.Background(), "markets", snapshotFetcher(&fetches, 0)); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	timeoutFetch := func(ctx context.Context) (*domain.Snapshot, error) {
		return nil, fmt.Errorf("polymarket: no response within 7s: %w", domain.ErrUpstreamTimeout)
	}
	snap, err := c.Get(context.Background(), "markets", timeoutFetch)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.StaleReason != "refresh_timeout" {
		t.Errorf("reason = %q, want refresh_timeout", snap.StaleReason)
	}
}

func TestGetColdFailure(t *testing.T) {
	c := New(time.Hour, time.Hour, nil)

	bad := func(ctx context.Context) (*domain.Snapshot, error) {
		return nil, errors.New("venue down")
	}
	_, err := c.Get(context.Background(), "markets", bad)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestGetBeyondStaleWindow(t *testing.T) {
	c := New(10*time.Millisecond, 10*time.Millisecond, nil)

	var fetches int32
	if _, err := c.Get(context.Background(), "markets", snapshotFetcher(&fetches, 0)); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	upstreamErr := errors.New("venue down")
	bad := func(ctx context.Context) (*domain.Snapshot, error) {
		return nil, upstreamErr
	}
	_, err := c.Get(context.Background(), "markets", bad)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, upstreamErr) {
		t.Errorf("expected the fetch error, got %v", err)
	}
	if errors.Is(err, domain.ErrNoData) {
		t.Errorf("a previously cached key should not report ErrNoData, got %v", err)
	}
}

func TestSetPeekInvalidate(t *testing.T) {
	c := New(time.Hour, time.Hour, nil)

	seeded := &domain.Snapshot{ID: "warm-start"}
	c.Set("markets", seeded)

	snap, fetchedAt, ok := c.Peek("markets")
	if !ok || snap != seeded {
		t.Fatal("expected the seeded snapshot")
	}
	if time.Since(fetchedAt) > time.Minute {
		t.Errorf("unexpected fetch time %v", fetchedAt)
	}

	var fetches int32
	got, err := c.Get(context.Background(), "markets", snapshotFetcher(&fetches, 0))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != seeded || fetches != 0 {
		t.Errorf("expected seeded value without a fetch, got %s after %d fetches", got.ID, fetches)
	}

	c.Invalidate("markets")
	if _, _, ok := c.Peek("markets"); ok {
		t.Error("expected empty cache after Invalidate")
	}
	if _, err := c.Get(context.Background(), "markets", snapshotFetcher(&fetches, 0)); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetches != 1 {
		t.Errorf("expected a fetch after Invalidate, got %d", fetches)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	c := New(time.Hour, time.Hour, nil)

	var a, b int32
	if _, err := c.Get(context.Background(), "markets:50", snapshotFetcher(&a, 0)); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(context.Background(), "markets:100", snapshotFetcher(&b, 0)); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != 1 || b != 1 {
		t.Errorf("expected one fetch per key, got %d and %d", a, b)
	}
}
