package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// maxMarketsLimit caps the per-venue limit a request may ask for.
const maxMarketsLimit = 500

// SnapshotService defines what the snapshot-serving handlers require from
// the aggregation service. It is declared locally so the handler package
// does not depend on the concrete service implementation.
type SnapshotService interface {
	ComputeMarkets(ctx context.Context, limit int) (*domain.Snapshot, error)
	DefaultLimit() int
}

// MarketsHandler serves the aggregated market list.
type MarketsHandler struct {
	svc    SnapshotService
	logger *slog.Logger
}

// NewMarketsHandler creates a MarketsHandler with the given service and logger.
func NewMarketsHandler(svc SnapshotService, logger *slog.Logger) *MarketsHandler {
	return &MarketsHandler{svc: svc, logger: logger}
}

// snapshotMeta is the serving metadata repeated on every snapshot-backed
// response so consumers can tell fresh data from stale.
type snapshotMeta struct {
	SnapshotID  string `json:"snapshot_id"`
	UpdatedAt   string `json:"updated_at"`
	Stale       bool   `json:"stale"`
	StaleReason string `json:"stale_reason,omitempty"`
}

func metaFor(snap *domain.Snapshot) snapshotMeta {
	return snapshotMeta{
		SnapshotID:  snap.ID,
		UpdatedAt:   snap.UpdatedAt.UTC().Format(time.RFC3339),
		Stale:       snap.Stale,
		StaleReason: snap.StaleReason,
	}
}

type listMarketsResponse struct {
	snapshotMeta
	Markets []domain.NormalizedMarket `json:"markets"`
	Venues  []domain.VenueReport      `json:"venues"`
	Total   int                       `json:"total"`
}

// List returns the current aggregated markets. Stale snapshots are served
// with the stale flag set rather than rejected.
// GET /api/markets?limit=100
func (h *MarketsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, h.svc.DefaultLimit(), maxMarketsLimit)

	snap, err := h.svc.ComputeMarkets(r.Context(), limit)
	if err != nil {
		writeSnapshotError(w, r, h.logger, "list markets", err)
		return
	}

	markets := snap.Markets
	if markets == nil {
		markets = []domain.NormalizedMarket{}
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		snapshotMeta: metaFor(snap),
		Markets:      markets,
		Venues:       snap.Venues,
		Total:        len(markets),
	})
}

// writeSnapshotError maps aggregation failures onto HTTP statuses: a cold
// cache with every venue down is 503, anything else 502.
func writeSnapshotError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
	)
	if errors.Is(err, domain.ErrNoData) {
		writeError(w, http.StatusServiceUnavailable, "no market data available yet")
		return
	}
	writeError(w, http.StatusBadGateway, "upstream venues unavailable")
}
