// Package service holds the components that sit around the supervisor:
// the journal that observes fills and events, the portfolio view, the
// trading controller and the archive job.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// Pub/sub channels and streams shared with the dashboard hub.
const (
	ChannelEvents    = "events"
	ChannelFills     = "fills"
	ChannelPositions = "positions"
	StreamFills      = "stream:fills"
)

var hundred = decimal.NewFromInt(100)

// PnLPct returns (cur-avg)/avg*100, or 0 unless qty, avg and cur are all
// positive.
func PnLPct(qty, avg, cur int64) float64 {
	if qty <= 0 || avg <= 0 || cur <= 0 {
		return 0
	}
	return decimal.NewFromInt(cur - avg).
		Div(decimal.NewFromInt(avg)).
		Mul(hundred).
		InexactFloat64()
}

// Portfolio values holdings through the gateway. Snapshots are kept in
// memory and, when a store is wired, persisted.
type Portfolio struct {
	gw     domain.Gateway
	store  domain.PositionStore
	pubs   []domain.Publisher
	logger *slog.Logger

	mu       sync.RWMutex
	holdings map[string]domain.Holding
}

// NewPortfolio creates a Portfolio. store may be nil; a nil gw gives a
// read-only view whose Refresh always fails.
func NewPortfolio(gw domain.Gateway, store domain.PositionStore, pubs []domain.Publisher, logger *slog.Logger) *Portfolio {
	return &Portfolio{
		gw:       gw,
		store:    store,
		pubs:     pubs,
		logger:   logger.With(slog.String("component", "portfolio")),
		holdings: make(map[string]domain.Holding),
	}
}

// Refresh re-reads the position and quote for code and records the
// resulting snapshot.
func (p *Portfolio) Refresh(ctx context.Context, code string) (domain.Holding, error) {
	if p.gw == nil || !p.gw.IsConnected(ctx) {
		return domain.Holding{}, fmt.Errorf("portfolio: refresh %s: %w", code, domain.ErrGatewayUnavailable)
	}
	pos := p.gw.Position(ctx, code)
	q := p.gw.Quote(ctx, code)
	h := domain.Holding{
		Code:         code,
		Quantity:     pos.Quantity,
		AvgPrice:     pos.AvgPrice,
		CurrentPrice: q.Price,
		PnLPct:       PnLPct(pos.Quantity, pos.AvgPrice, q.Price),
		UpdatedAt:    time.Now().UTC(),
	}

	p.mu.Lock()
	if h.Quantity > 0 {
		p.holdings[code] = h
	} else {
		delete(p.holdings, code)
	}
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Upsert(ctx, h); err != nil {
			p.logger.WarnContext(ctx, "persist holding failed",
				slog.String("code", code),
				slog.String("error", err.Error()),
			)
		}
	}
	if payload, err := json.Marshal(h); err == nil {
		publishAll(ctx, p.pubs, ChannelPositions, payload, p.logger)
	}
	return h, nil
}

// Holdings returns the non-flat snapshots ordered by code. The store is
// preferred when wired since it survives restarts.
func (p *Portfolio) Holdings(ctx context.Context) ([]domain.Holding, error) {
	if p.store != nil {
		out, err := p.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("portfolio: list holdings: %w", err)
		}
		return out, nil
	}
	p.mu.RLock()
	out := make([]domain.Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, h)
	}
	p.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.Holding) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

// publishAll sends payload to every publisher, logging failures.
func publishAll(ctx context.Context, pubs []domain.Publisher, channel string, payload []byte, logger *slog.Logger) {
	for _, pub := range pubs {
		if err := pub.Publish(ctx, channel, payload); err != nil {
			logger.WarnContext(ctx, "publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}
}
