package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports the running mode and the configured venues.
type StatusHandler struct {
	mode      string
	venues    []string
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. A zero startedAt is pinned to
// the construction time.
func NewStatusHandler(mode string, venues []string, startedAt time.Time) *StatusHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &StatusHandler{mode: mode, venues: venues, startedAt: startedAt}
}

// GetStatus responds with the backend mode, venue list, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	venues := h.venues
	if venues == nil {
		venues = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"venues":         venues,
		"uptime_seconds": uptime,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
	})
}
