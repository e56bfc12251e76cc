package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// PortfolioReader lists and refreshes holdings.
type PortfolioReader interface {
	Holdings(ctx context.Context) ([]domain.Holding, error)
	Refresh(ctx context.Context, code string) (domain.Holding, error)
}

// PositionHandler serves holding snapshots.
type PositionHandler struct {
	portfolio PortfolioReader
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(portfolio PortfolioReader, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{portfolio: portfolio, logger: logger.With(slog.String("handler", "positions"))}
}

// ListPositions returns every non-flat holding.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.portfolio.Holdings(r.Context())
	if err != nil {
		fail(w, r, h.logger, "failed to list positions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": emptyIfNil(holdings)})
}

// RefreshPosition re-reads one holding from the broker.
// POST /api/positions/{code}/refresh
func (h *PositionHandler) RefreshPosition(w http.ResponseWriter, r *http.Request) {
	holding, err := h.portfolio.Refresh(r.Context(), r.PathValue("code"))
	if err != nil {
		fail(w, r, h.logger, "failed to refresh position", err)
		return
	}
	writeJSON(w, http.StatusOK, holding)
}
