package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the daemon summary for the dashboard.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	trading   TradingController
}

// NewStatusHandler creates a StatusHandler. trading is nil in monitor mode.
func NewStatusHandler(mode string, startedAt time.Time, trading TradingController) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, trading: trading}
}

// GetStatus reports mode, uptime and whether trading is running.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"trading_active": false,
		"engines":        0,
	}
	if h.trading != nil {
		resp["trading_active"] = h.trading.Active()
		resp["engines"] = len(h.trading.Engines())
	}
	writeJSON(w, http.StatusOK, resp)
}
