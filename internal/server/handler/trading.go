package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/equitybot/internal/strategy"
)

// TradingController starts and stops the supervisor.
type TradingController interface {
	Start(ctx context.Context, codes []string) ([]string, error)
	Stop(ctx context.Context) error
	Active() bool
	Engines() []strategy.Snapshot
}

// TradingHandler serves the trading control endpoints.
type TradingHandler struct {
	trading TradingController
	logger  *slog.Logger
}

// NewTradingHandler creates a TradingHandler. A nil controller answers 503.
func NewTradingHandler(trading TradingController, logger *slog.Logger) *TradingHandler {
	return &TradingHandler{trading: trading, logger: logger.With(slog.String("handler", "trading"))}
}

type startRequest struct {
	Codes []string `json:"codes"`
}

func (h *TradingHandler) available(w http.ResponseWriter) bool {
	if h.trading == nil {
		writeError(w, http.StatusServiceUnavailable, "trading is disabled in this mode")
		return false
	}
	return true
}

// ListEngines returns a snapshot per live engine.
// GET /api/engines
func (h *TradingHandler) ListEngines(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  h.trading.Active(),
		"engines": emptyIfNil(h.trading.Engines()),
	})
}

// Start begins trading. An empty body or code list trades every symbol
// switched on.
// POST /api/trading/start
func (h *TradingHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	codes, err := h.trading.Start(r.Context(), req.Codes)
	if err != nil {
		fail(w, r, h.logger, "failed to start trading", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"started": codes})
}

// Stop ends trading.
// POST /api/trading/stop
func (h *TradingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	if err := h.trading.Stop(r.Context()); err != nil {
		fail(w, r, h.logger, "failed to stop trading", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}
