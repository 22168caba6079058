package handlers

import (
	"context"
	"net/http"
	"time"

	"challengetracker/database"
	"challengetracker/metrics"
)

type HealthHandler struct {
	base
}

func NewHealthHandler(d Deps) *HealthHandler {
	return &HealthHandler{base{d}}
}

// Healthz pings the database.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := database.Ping(ctx, h.DB)
	metrics.ObserveDBPing(time.Since(start))
	if err != nil {
		h.logError(r, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
