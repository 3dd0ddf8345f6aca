// Package service hosts the aggregation core: venue fan-out, snapshot
// assembly, and the cached serving contract consumers call.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aarontekluuu/pm.ag-sub000/internal/cache"
	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
	"github.com/aarontekluuu/pm.ag-sub000/internal/edge"
	"github.com/aarontekluuu/pm.ag-sub000/internal/match"
	"github.com/aarontekluuu/pm.ag-sub000/internal/similarity"
)

// SharedSnapshotKey is where the latest snapshot lives in the shared
// (Redis) cache, when one is wired.
const SharedSnapshotKey = "pmag:snapshot:latest"

// Config tunes the aggregation core.
type Config struct {
	MinSimilarity float64
	Weights       similarity.Weights
	DefaultLimit  int
	MaxLimit      int
}

func (c Config) withDefaults() Config {
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.7
	}
	if c.Weights == (similarity.Weights{}) {
		c.Weights = similarity.DefaultWeights
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 100
	}
	if c.MaxLimit < c.DefaultLimit {
		c.MaxLimit = c.DefaultLimit
	}
	return c
}

// Aggregator fans quote fetches out across venues and assembles the
// aggregate snapshot: normalized markets, edges, cross-venue matches,
// and event clusters. Serving goes through the coalescing cache; an
// optional shared cache warms cold instances and backstops outages.
type Aggregator struct {
	venues    []domain.Venue
	snapshots *cache.Coalescer
	shared    domain.SnapshotCache
	cfg       Config
	logger    *slog.Logger
}

// NewAggregator creates an Aggregator. shared may be nil.
func NewAggregator(
	venues []domain.Venue,
	snapshots *cache.Coalescer,
	shared domain.SnapshotCache,
	cfg Config,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		venues:    venues,
		snapshots: snapshots,
		shared:    shared,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Venues returns the configured venue names in fan-out order.
func (a *Aggregator) Venues() []string {
	names := make([]string, len(a.venues))
	for i, v := range a.venues {
		names[i] = v.Name()
	}
	return names
}

// DefaultLimit returns the per-venue market limit used when callers do
// not supply one.
func (a *Aggregator) DefaultLimit() int { return a.cfg.DefaultLimit }

// ComputeMarkets returns the aggregate snapshot for the given per-venue
// limit, serving from the coalescing cache. Concurrent callers of a
// cold or expired entry share one refresh.
func (a *Aggregator) ComputeMarkets(ctx context.Context, limit int) (*domain.Snapshot, error) {
	limit = a.clampLimit(limit)
	return a.snapshots.Get(ctx, snapshotKey(limit), func(ctx context.Context) (*domain.Snapshot, error) {
		return a.refresh(ctx, limit)
	})
}

// MatchMarkets runs cross-venue matching over already-normalized
// markets. A non-positive minSimilarity falls back to the configured
// threshold.
func (a *Aggregator) MatchMarkets(markets []domain.NormalizedMarket, minSimilarity float64) []domain.MarketMatch {
	if minSimilarity <= 0 {
		minSimilarity = a.cfg.MinSimilarity
	}
	return match.AcrossVenues(markets, minSimilarity, a.cfg.Weights)
}

// ClusterMatches groups pairwise matches into event clusters. Exposed so
// callers re-matching at a custom threshold can rebuild clusters to go
// with the result.
func (a *Aggregator) ClusterMatches(matches []domain.MarketMatch) []domain.EventCluster {
	return match.GroupEvents(matches)
}

// Refresh drops the cached snapshot for the given limit and computes a
// fresh one. The refresh pipeline calls this each cycle.
func (a *Aggregator) Refresh(ctx context.Context, limit int) (*domain.Snapshot, error) {
	limit = a.clampLimit(limit)
	a.snapshots.Invalidate(snapshotKey(limit))
	return a.ComputeMarkets(ctx, limit)
}

// Seed places a previously produced snapshot into the local cache under
// the default limit key, so a cold instance serves data before its first
// venue fetch.
func (a *Aggregator) Seed(snap *domain.Snapshot) {
	a.snapshots.Set(snapshotKey(a.cfg.DefaultLimit), snap)
}

// WarmStart seeds the local cache from the shared snapshot cache. Best
// effort; reports whether a snapshot was found.
func (a *Aggregator) WarmStart(ctx context.Context) bool {
	if a.shared == nil {
		return false
	}
	snap, err := a.shared.Get(ctx, SharedSnapshotKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.WarnContext(ctx, "aggregator: warm start read failed",
				slog.String("error", err.Error()),
			)
		}
		return false
	}
	a.Seed(snap)
	a.logger.InfoContext(ctx, "aggregator: warm start from shared cache",
		slog.String("snapshot_id", snap.ID),
		slog.Time("updated_at", snap.UpdatedAt),
	)
	return true
}

// refresh runs one full aggregation cycle: per-venue fetches fan out
// concurrently and are joined before any computation starts. A venue
// failure degrades to an empty contribution for that venue only; the
// cycle fails outright only when every venue failed.
func (a *Aggregator) refresh(ctx context.Context, limit int) (*domain.Snapshot, error) {
	type outcome struct {
		report  domain.VenueReport
		markets []domain.NormalizedMarket
		quotes  []domain.PriceQuote
		err     error
	}

	started := time.Now()
	outcomes := make([]outcome, len(a.venues))

	var g errgroup.Group
	for i, v := range a.venues {
		g.Go(func() error {
			res, err := v.FetchMarkets(ctx, limit)
			if err != nil {
				a.logger.ErrorContext(ctx, "aggregator: venue fetch failed",
					slog.String("venue", v.Name()),
					slog.String("error", err.Error()),
				)
				outcomes[i] = outcome{
					report: domain.VenueReport{Venue: v.Name(), Error: err.Error()},
					err:    err,
				}
				return nil
			}
			outcomes[i] = outcome{
				report: domain.VenueReport{
					Venue:   v.Name(),
					Markets: len(res.Markets),
					Skipped: res.Skipped,
				},
				markets: res.Markets,
				quotes:  res.Quotes,
			}
			return nil
		})
	}
	// Venue errors are recorded per slot, never propagated.
	g.Wait()

	var markets []domain.NormalizedMarket
	prices := make(map[string]domain.PriceQuote)
	reports := make([]domain.VenueReport, 0, len(a.venues))
	var venueErrs []error
	for _, o := range outcomes {
		reports = append(reports, o.report)
		if o.err != nil {
			venueErrs = append(venueErrs, o.err)
			continue
		}
		markets = append(markets, o.markets...)
		for _, q := range o.quotes {
			if prev, ok := prices[q.TokenRef]; !ok || q.UpdatedAt.After(prev.UpdatedAt) {
				prices[q.TokenRef] = q
			}
		}
	}

	if len(a.venues) > 0 && len(venueErrs) == len(a.venues) {
		if snap := a.sharedFallback(ctx); snap != nil {
			return snap, nil
		}
		return nil, fmt.Errorf("aggregator: all venues failed: %w", errors.Join(venueErrs...))
	}

	matches := match.AcrossVenues(markets, a.cfg.MinSimilarity, a.cfg.Weights)
	snap := &domain.Snapshot{
		ID:        uuid.NewString(),
		UpdatedAt: time.Now().UTC(),
		Markets:   markets,
		Edges:     edge.Compute(markets, prices),
		Matches:   matches,
		Clusters:  match.GroupEvents(matches),
		Venues:    reports,
	}

	a.storeShared(ctx, snap)

	a.logger.InfoContext(ctx, "aggregator: cycle complete",
		slog.String("snapshot_id", snap.ID),
		slog.Int("markets", len(snap.Markets)),
		slog.Int("edges", len(snap.Edges)),
		slog.Int("matches", len(snap.Matches)),
		slog.Int("clusters", len(snap.Clusters)),
		slog.Int("venues_failed", len(venueErrs)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return snap, nil
}

// sharedFallback is the last resort when every venue failed: another
// instance may have refreshed the shared cache recently. Values older
// than the local TTL come back flagged stale.
func (a *Aggregator) sharedFallback(ctx context.Context) *domain.Snapshot {
	if a.shared == nil {
		return nil
	}
	snap, err := a.shared.Get(ctx, SharedSnapshotKey)
	if err != nil {
		return nil
	}
	a.logger.WarnContext(ctx, "aggregator: all venues failed, serving shared cache snapshot",
		slog.String("snapshot_id", snap.ID),
		slog.Time("updated_at", snap.UpdatedAt),
	)
	if time.Since(snap.UpdatedAt) > a.snapshots.TTL() {
		cp := *snap
		cp.Stale = true
		cp.StaleReason = "shared_cache_fallback"
		return &cp
	}
	return snap
}

// storeShared mirrors a fresh snapshot into the shared cache. Log but
// never fail on errors here.
func (a *Aggregator) storeShared(ctx context.Context, snap *domain.Snapshot) {
	if a.shared == nil {
		return
	}
	ttl := a.snapshots.TTL() + a.snapshots.StaleWindow()
	if err := a.shared.Set(ctx, SharedSnapshotKey, snap, ttl); err != nil {
		a.logger.WarnContext(ctx, "aggregator: shared cache write failed",
			slog.String("error", err.Error()),
		)
	}
}

func (a *Aggregator) clampLimit(limit int) int {
	if limit <= 0 {
		return a.cfg.DefaultLimit
	}
	if limit > a.cfg.MaxLimit {
		return a.cfg.MaxLimit
	}
	return limit
}

func snapshotKey(limit int) string {
	return fmt.Sprintf("markets:%d", limit)
}
