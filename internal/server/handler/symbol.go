package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// SymbolHandler serves per-symbol trading configuration.
type SymbolHandler struct {
	store  domain.SymbolConfigStore
	logger *slog.Logger
}

// NewSymbolHandler creates a SymbolHandler.
func NewSymbolHandler(store domain.SymbolConfigStore, logger *slog.Logger) *SymbolHandler {
	return &SymbolHandler{store: store, logger: logger.With(slog.String("handler", "symbols"))}
}

// ListSymbols returns every stored config.
// GET /api/symbols
func (h *SymbolHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.List(r.Context())
	if err != nil {
		fail(w, r, h.logger, "failed to list symbols", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": emptyIfNil(configs)})
}

// GetSymbol returns one config.
// GET /api/symbols/{code}
func (h *SymbolHandler) GetSymbol(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Get(r.Context(), r.PathValue("code"))
	if err != nil {
		fail(w, r, h.logger, "failed to get symbol", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutSymbol validates and stores a config. The body is the persisted
// record form; the code comes from the path. Running engines keep the
// config they started with.
// PUT /api/symbols/{code}
func (h *SymbolHandler) PutSymbol(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	var rec domain.SymbolRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := rec.Decode(code)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Upsert(r.Context(), cfg); err != nil {
		fail(w, r, h.logger, "failed to save symbol", err)
		return
	}
	h.logger.InfoContext(r.Context(), "symbol config saved", slog.String("code", code))
	writeJSON(w, http.StatusOK, cfg)
}

// DeleteSymbol removes a config.
// DELETE /api/symbols/{code}
func (h *SymbolHandler) DeleteSymbol(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("code")); err != nil {
		fail(w, r, h.logger, "failed to delete symbol", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
