package handler

import (
	"log/slog"
	"net/http"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// maxMatchesLimit caps how many matches one response returns.
const maxMatchesLimit = 200

// MatchService extends SnapshotService with cross-venue matching, so the
// handler can re-match at a caller-supplied threshold.
type MatchService interface {
	SnapshotService
	MatchMarkets(markets []domain.NormalizedMarket, minSimilarity float64) []domain.MarketMatch
	ClusterMatches(matches []domain.MarketMatch) []domain.EventCluster
}

// MatchesHandler serves cross-venue market matches and event clusters.
type MatchesHandler struct {
	svc    MatchService
	logger *slog.Logger
}

// NewMatchesHandler creates a MatchesHandler with the given service and logger.
func NewMatchesHandler(svc MatchService, logger *slog.Logger) *MatchesHandler {
	return &MatchesHandler{svc: svc, logger: logger}
}

type listMatchesResponse struct {
	snapshotMeta
	Matches  []domain.MarketMatch  `json:"matches"`
	Clusters []domain.EventCluster `json:"clusters"`
	Total    int                   `json:"total"`
}

// List returns cross-venue matches and clusters. Without a min_similarity
// parameter the snapshot's precomputed matches are served; with one, the
// snapshot's markets are re-matched at that threshold.
// GET /api/matches?limit=50&min_similarity=0.75
func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, maxMatchesLimit)

	minSim, hasMinSim := parseFloat(r, "min_similarity")
	if hasMinSim && (minSim <= 0 || minSim > 1) {
		writeError(w, http.StatusBadRequest, "min_similarity must be in (0, 1]")
		return
	}

	snap, err := h.svc.ComputeMarkets(r.Context(), h.svc.DefaultLimit())
	if err != nil {
		writeSnapshotError(w, r, h.logger, "list matches", err)
		return
	}

	matches := snap.Matches
	clusters := snap.Clusters
	if hasMinSim {
		matches = h.svc.MatchMarkets(snap.Markets, minSim)
		clusters = h.svc.ClusterMatches(matches)
	}

	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []domain.MarketMatch{}
	}
	if clusters == nil {
		clusters = []domain.EventCluster{}
	}

	writeJSON(w, http.StatusOK, listMatchesResponse{
		snapshotMeta: metaFor(snap),
		Matches:      matches,
		Clusters:     clusters,
		Total:        total,
	})
}
