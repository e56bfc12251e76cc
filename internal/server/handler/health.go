package handler

import (
	"context"
	"net/http"
	"time"
)

// ConnectionChecker reports brokerage connectivity.
type ConnectionChecker interface {
	IsConnected(ctx context.Context) bool
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	broker ConnectionChecker
}

// NewHealthHandler creates a HealthHandler. broker may be nil in monitor
// mode.
func NewHealthHandler(broker ConnectionChecker) *HealthHandler {
	return &HealthHandler{broker: broker}
}

// HealthCheck reports liveness and broker connectivity.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.broker != nil {
		resp["broker_connected"] = h.broker.IsConnected(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}
