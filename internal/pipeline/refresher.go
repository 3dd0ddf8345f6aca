// Package pipeline drives periodic aggregation cycles and fans each changed
// snapshot out to the configured sinks: Postgres stores, the S3 export, the
// signal bus, and operator alerts.
package pipeline

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
	"github.com/aarontekluuu/pm.ag-sub000/internal/notify"
)

// UpdatesChannel is the signal bus channel carrying one compact message per
// changed snapshot. The WebSocket hub subscribes to it.
const UpdatesChannel = "snapshot_updates"

// leaderLockKey elects the single instance allowed to refresh per cycle when
// a lock manager is wired.
const leaderLockKey = "refresh_leader"

// ErrRefreshPending is returned by TriggerRefresh when a manual refresh is
// already queued.
var ErrRefreshPending = errors.New("pipeline: refresh already pending")

// UpdateMessage is the compact notification published after each changed
// cycle. Consumers fetch the full snapshot through the API if they need it.
type UpdateMessage struct {
	SnapshotID string    `json:"snapshot_id"`
	UpdatedAt  time.Time `json:"updated_at"`
	Markets    int       `json:"markets"`
	Edges      int       `json:"edges"`
	Matches    int       `json:"matches"`
	MaxEdge    float64   `json:"max_edge"`
}

// SnapshotSource produces a fresh aggregate snapshot, bypassing cache TTLs.
type SnapshotSource interface {
	Refresh(ctx context.Context, limit int) (*domain.Snapshot, error)
}

// SnapshotExporter mirrors a snapshot to object storage.
type SnapshotExporter interface {
	Export(ctx context.Context, snap *domain.Snapshot) error
}

// EdgeObserver receives each cycle's edges and raises operator alerts.
type EdgeObserver interface {
	Observe(ctx context.Context, edges []domain.MarketEdge) int
}

// EventNotifier delivers one-off operator notifications.
type EventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Refresher runs the aggregation cycle on an interval and distributes the
// result. Every sink is optional; a missing sink is skipped and a failing
// sink is logged without aborting the cycle.
type Refresher struct {
	source   SnapshotSource
	limit    int
	interval time.Duration
	logger   *slog.Logger

	markets  domain.MarketStore
	edges    domain.EdgeStore
	exporter SnapshotExporter
	bus      domain.SignalBus
	alerter  EdgeObserver
	notifier EventNotifier
	lock     domain.LockManager

	trigger    chan chan error
	lastDigest string
	wasDown    map[string]bool
}

// Option configures optional Refresher sinks.
type Option func(*Refresher)

// WithMarketStore persists each changed snapshot's markets.
func WithMarketStore(s domain.MarketStore) Option {
	return func(r *Refresher) { r.markets = s }
}

// WithEdgeStore persists each changed snapshot's edges.
func WithEdgeStore(s domain.EdgeStore) Option {
	return func(r *Refresher) { r.edges = s }
}

// WithExporter mirrors each changed snapshot to object storage.
func WithExporter(e SnapshotExporter) Option {
	return func(r *Refresher) { r.exporter = e }
}

// WithSignalBus publishes an UpdateMessage for each changed snapshot.
func WithSignalBus(b domain.SignalBus) Option {
	return func(r *Refresher) { r.bus = b }
}

// WithAlerter raises edge alerts after each changed snapshot.
func WithAlerter(a EdgeObserver) Option {
	return func(r *Refresher) { r.alerter = a }
}

// WithNotifier reports venue up/down transitions.
func WithNotifier(n EventNotifier) Option {
	return func(r *Refresher) { r.notifier = n }
}

// WithLeaderLock runs each cycle under a distributed lock so only one
// instance refreshes at a time. A held lock skips the cycle silently.
func WithLeaderLock(lm domain.LockManager) Option {
	return func(r *Refresher) { r.lock = lm }
}

// NewRefresher creates a Refresher that pulls from source every interval at
// the given per-venue market limit.
func NewRefresher(
	source SnapshotSource,
	interval time.Duration,
	limit int,
	logger *slog.Logger,
	opts ...Option,
) *Refresher {
	r := &Refresher{
		source:   source,
		limit:    limit,
		interval: interval,
		logger:   logger.With(slog.String("component", "refresher")),
		trigger:  make(chan chan error, 1),
		wasDown:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunLoop refreshes immediately, then on every tick or manual trigger, until
// the context is cancelled. Cycle failures are logged and the loop keeps
// going.
func (r *Refresher) RunLoop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "pipeline: refresh loop starting",
		slog.Duration("interval", r.interval),
		slog.Int("limit", r.limit),
		slog.Bool("leader_lock", r.lock != nil),
	)

	if err := r.RunOnce(ctx); err != nil {
		r.logger.ErrorContext(ctx, "pipeline: refresh cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "pipeline: refresh loop stopped")
			return ctx.Err()
		case reply := <-r.trigger:
			r.logger.InfoContext(ctx, "pipeline: manual refresh triggered")
			reply <- r.RunOnce(ctx)
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "pipeline: refresh cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// TriggerRefresh queues an immediate cycle and waits for its outcome. It
// fails with ErrRefreshPending when a manual refresh is already waiting.
func (r *Refresher) TriggerRefresh(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.trigger <- reply:
	default:
		return ErrRefreshPending
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes a single aggregation cycle and fans out the result. With
// a leader lock configured, losing the election skips the cycle without
// error.
func (r *Refresher) RunOnce(ctx context.Context) error {
	if r.lock != nil {
		unlock, err := r.lock.Acquire(ctx, leaderLockKey, r.interval)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			r.logger.DebugContext(ctx, "pipeline: another instance holds the refresh lock")
			return nil
		case err != nil:
			// Lock backend down. Refreshing anyway keeps this instance
			// serving; duplicate cycles are harmless upserts.
			r.logger.WarnContext(ctx, "pipeline: leader lock unavailable",
				slog.String("error", err.Error()),
			)
		default:
			defer unlock()
		}
	}

	snap, err := r.source.Refresh(ctx, r.limit)
	if err != nil {
		return fmt.Errorf("pipeline: refresh: %w", err)
	}

	r.fanout(ctx, snap)
	return nil
}

// fanout distributes one cycle's snapshot. Venue transitions are reported
// every cycle; the remaining sinks only see snapshots whose content digest
// changed since the last distribution.
func (r *Refresher) fanout(ctx context.Context, snap *domain.Snapshot) {
	r.reportVenues(ctx, snap)

	if snap.Stale {
		r.logger.WarnContext(ctx, "pipeline: cycle served a stale snapshot, skipping fan-out",
			slog.String("snapshot_id", snap.ID),
			slog.String("reason", snap.StaleReason),
		)
		return
	}

	digest := snapshotDigest(snap)
	if digest == r.lastDigest {
		r.logger.DebugContext(ctx, "pipeline: snapshot unchanged, skipping fan-out",
			slog.String("snapshot_id", snap.ID),
		)
		return
	}
	r.lastDigest = digest

	if r.markets != nil {
		if err := r.markets.UpsertBatch(ctx, snap.Markets); err != nil {
			r.logger.ErrorContext(ctx, "pipeline: market upsert failed", slog.String("error", err.Error()))
		}
	}

	if r.edges != nil {
		if err := r.edges.UpsertBatch(ctx, snap.Edges); err != nil {
			r.logger.ErrorContext(ctx, "pipeline: edge upsert failed", slog.String("error", err.Error()))
		}
	}

	if r.exporter != nil {
		if err := r.exporter.Export(ctx, snap); err != nil {
			r.logger.ErrorContext(ctx, "pipeline: snapshot export failed", slog.String("error", err.Error()))
		}
	}

	if r.bus != nil {
		if err := r.publishUpdate(ctx, snap); err != nil {
			r.logger.ErrorContext(ctx, "pipeline: update publish failed", slog.String("error", err.Error()))
		}
	}

	alertCount := 0
	if r.alerter != nil {
		alertCount = r.alerter.Observe(ctx, snap.Edges)
	}

	r.logger.InfoContext(ctx, "pipeline: snapshot distributed",
		slog.String("snapshot_id", snap.ID),
		slog.Int("markets", len(snap.Markets)),
		slog.Int("edges", len(snap.Edges)),
		slog.Int("alerts", alertCount),
	)
}

// reportVenues notifies on venue up-to-down transitions. Repeated failures
// stay quiet until the venue recovers.
func (r *Refresher) reportVenues(ctx context.Context, snap *domain.Snapshot) {
	for _, v := range snap.Venues {
		down := v.Error != ""
		if down && !r.wasDown[v.Venue] && r.notifier != nil {
			title := fmt.Sprintf("Venue %s is failing", v.Venue)
			if err := r.notifier.Notify(ctx, notify.EventVenueDown, title, v.Error); err != nil {
				r.logger.ErrorContext(ctx, "pipeline: venue notification failed", slog.String("error", err.Error()))
			}
		}
		r.wasDown[v.Venue] = down
	}
}

func (r *Refresher) publishUpdate(ctx context.Context, snap *domain.Snapshot) error {
	msg := UpdateMessage{
		SnapshotID: snap.ID,
		UpdatedAt:  snap.UpdatedAt,
		Markets:    len(snap.Markets),
		Edges:      len(snap.Edges),
		Matches:    len(snap.Matches),
	}
	for _, e := range snap.Edges {
		if e.Edge > msg.MaxEdge {
			msg.MaxEdge = e.Edge
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal update message: %w", err)
	}
	return r.bus.Publish(ctx, UpdatesChannel, payload)
}

// snapshotDigest hashes a canonical projection of the content-bearing
// sections of a snapshot. Cycle metadata (id, fetch timestamps, venue
// diagnostics) is excluded so an unchanged market set maps to the same
// digest even though every cycle restamps it.
func snapshotDigest(snap *domain.Snapshot) string {
	var b bytes.Buffer
	for _, m := range snap.Markets {
		fmt.Fprintf(&b, "m|%s|%s|%s|%s|%s|%g|%s\n",
			m.Venue, m.ID, m.Title, fmtPrice(m.YesPrice), fmtPrice(m.NoPrice), m.Volume, fmtTime(m.ExpiresAt))
	}
	for _, e := range snap.Edges {
		fmt.Fprintf(&b, "e|%s|%s|%.6f|%.6f\n", e.Venue, e.MarketID, e.Sum, e.Edge)
	}
	for _, mt := range snap.Matches {
		fmt.Fprintf(&b, "x|%s:%s|%s:%s|%.6f\n", mt.A.Venue, mt.A.ID, mt.B.Venue, mt.B.ID, mt.Similarity)
	}
	for _, c := range snap.Clusters {
		fmt.Fprintf(&b, "c|%s|%d|%d\n", c.Key, len(c.Members), c.VenueCount)
	}

	sum := blake2b.Sum256(b.Bytes())
	return hex.EncodeToString(sum[:])
}

func fmtPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return strconv.FormatInt(t.Unix(), 10)
}
