package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/skillswap/backend/internal/logging"
)

// HealthHandler responds with service health information.
type HealthHandler struct {
	DB Pinger
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.DB != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.DB.Ping(pingCtx); err != nil {
			logging.FromContext(ctx).Error("health check database ping failed", "error", err)
			respondJSON(ctx, w, http.StatusServiceUnavailable, envelope{"success": false, "status": "degraded", "message": "database unavailable"})
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, envelope{"success": true, "status": "ok"})
}
