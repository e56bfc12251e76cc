package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

const (
	defaultFillPage = 100
	maxFillPage     = 1000
)

// StreamReader reads a durable stream after an entry ID.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// FillHandler replays the durable fill stream so a dashboard can catch up
// on fills it missed while disconnected.
type FillHandler struct {
	reader StreamReader
	stream string
	logger *slog.Logger
}

// NewFillHandler creates a FillHandler over stream. reader may be nil when
// Redis is disabled.
func NewFillHandler(reader StreamReader, stream string, logger *slog.Logger) *FillHandler {
	return &FillHandler{reader: reader, stream: stream, logger: logger.With(slog.String("handler", "fills"))}
}

type streamFill struct {
	ID   string          `json:"id"`
	Fill json.RawMessage `json:"fill"`
}

// ListFills returns fills after the given stream ID, oldest first.
// GET /api/fills?after=0&limit=100
func (h *FillHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "fill stream is not configured")
		return
	}
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := defaultFillPage
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = min(n, maxFillPage)
	}

	msgs, err := h.reader.StreamRead(r.Context(), h.stream, after, limit)
	if err != nil {
		fail(w, r, h.logger, "failed to read fills", err)
		return
	}
	fills := make([]streamFill, 0, len(msgs))
	last := after
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		fills = append(fills, streamFill{ID: m.ID, Fill: m.Payload})
		last = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": fills, "last_id": last})
}
