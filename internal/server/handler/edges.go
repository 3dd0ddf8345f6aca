package handler

import (
	"log/slog"
	"net/http"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// maxEdgesLimit caps how many edges one response returns.
const maxEdgesLimit = 200

// EdgesHandler serves per-market mispricing edges from the current snapshot.
type EdgesHandler struct {
	svc    SnapshotService
	logger *slog.Logger
}

// NewEdgesHandler creates an EdgesHandler with the given service and logger.
func NewEdgesHandler(svc SnapshotService, logger *slog.Logger) *EdgesHandler {
	return &EdgesHandler{svc: svc, logger: logger}
}

type listEdgesResponse struct {
	snapshotMeta
	Edges []domain.MarketEdge `json:"edges"`
	Total int                 `json:"total"`
}

// List returns edges from the current snapshot, optionally filtered to a
// minimum edge. Edges are already sorted by volume descending.
// GET /api/edges?limit=50&min_edge=0.01
func (h *EdgesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, maxEdgesLimit)

	snap, err := h.svc.ComputeMarkets(r.Context(), h.svc.DefaultLimit())
	if err != nil {
		writeSnapshotError(w, r, h.logger, "list edges", err)
		return
	}

	edges := snap.Edges
	if minEdge, ok := parseFloat(r, "min_edge"); ok {
		filtered := make([]domain.MarketEdge, 0, len(edges))
		for _, e := range edges {
			if e.Edge >= minEdge {
				filtered = append(filtered, e)
			}
		}
		edges = filtered
	}

	total := len(edges)
	if len(edges) > limit {
		edges = edges[:limit]
	}
	if edges == nil {
		edges = []domain.MarketEdge{}
	}

	writeJSON(w, http.StatusOK, listEdgesResponse{
		snapshotMeta: metaFor(snap),
		Edges:        edges,
		Total:        total,
	})
}
