package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// JournalHandler serves the order journal and audit log. Either store may
// be nil when Postgres is not wired.
type JournalHandler struct {
	orders domain.OrderStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(orders domain.OrderStore, audit domain.AuditStore, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{orders: orders, audit: audit, logger: logger.With(slog.String("handler", "journal"))}
}

// ListOrders returns journaled orders, newest first.
// GET /api/orders?code=005930&limit=50&offset=0
func (h *JournalHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeError(w, http.StatusServiceUnavailable, "order journal is not configured")
		return
	}
	orders, err := h.orders.List(r.Context(), r.URL.Query().Get("code"), parseListOpts(r))
	if err != nil {
		fail(w, r, h.logger, "failed to list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": emptyIfNil(orders)})
}

// ListAudit returns audit entries, newest first.
// GET /api/audit
func (h *JournalHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log is not configured")
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		fail(w, r, h.logger, "failed to list audit entries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": emptyIfNil(entries)})
}
