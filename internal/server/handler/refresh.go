package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aarontekluuu/pm.ag-sub000/internal/pipeline"
)

// RefreshTrigger is the slice of the refresh pipeline this handler needs.
type RefreshTrigger interface {
	TriggerRefresh(ctx context.Context) error
}

// RefreshHandler triggers one refresh cycle on demand.
type RefreshHandler struct {
	trigger RefreshTrigger
	logger  *slog.Logger
}

// NewRefreshHandler creates a RefreshHandler with the given trigger and logger.
func NewRefreshHandler(trigger RefreshTrigger, logger *slog.Logger) *RefreshHandler {
	return &RefreshHandler{trigger: trigger, logger: logger}
}

// Trigger runs one refresh cycle and waits for it to finish. A cycle already
// in flight answers 409 so callers can back off instead of queueing up.
// POST /api/refresh
func (h *RefreshHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusNotImplemented, "refresh pipeline not running")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: manual refresh requested")

	err := h.trigger.TriggerRefresh(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "refreshed",
			"completed_at": time.Now().UTC().Format(time.RFC3339),
		})
	case errors.Is(err, pipeline.ErrRefreshPending):
		writeError(w, http.StatusConflict, "a refresh cycle is already running")
	default:
		h.logger.ErrorContext(r.Context(), "handler: manual refresh failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "refresh cycle failed")
	}
}
