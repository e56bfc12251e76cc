// Package feed routes real-time ticks from a broker stream to the engine
// subscribed for each symbol.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

const cacheBuffer = 256

type binding struct {
	kind    domain.MarketKind
	handler domain.TickHandler
}

// Router maps symbol codes to tick handlers. Raw ticks pushed through
// Dispatch have their trade value corrected for the symbol's market before
// delivery. At most one handler is bound per code.
type Router struct {
	mu       sync.RWMutex
	bindings map[string]binding

	cache   domain.TickCache
	cacheCh chan domain.Tick
	logger  *slog.Logger
}

// NewRouter creates a Router. cache may be nil.
func NewRouter(cache domain.TickCache, logger *slog.Logger) *Router {
	r := &Router{
		bindings: make(map[string]binding),
		cache:    cache,
		logger:   logger.With(slog.String("component", "tick_router")),
	}
	if cache != nil {
		r.cacheCh = make(chan domain.Tick, cacheBuffer)
	}
	return r
}

// Bind routes ticks for code to h, replacing any previous handler.
func (r *Router) Bind(code string, kind domain.MarketKind, h domain.TickHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[code] = binding{kind: kind, handler: h}
}

// Unbind stops routing ticks for code.
func (r *Router) Unbind(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, code)
}

// Bound returns the codes that currently have a handler.
func (r *Router) Bound() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.bindings))
	for code := range r.bindings {
		out = append(out, code)
	}
	return out
}

// Dispatch delivers a raw tick. Ticks for unbound codes are dropped. It is
// safe to call from any goroutine and does not block on the cache.
func (r *Router) Dispatch(t domain.Tick) {
	r.mu.RLock()
	b, ok := r.bindings[t.Code]
	r.mu.RUnlock()
	if !ok {
		return
	}
	t.TradeValue = CorrectTradeValue(b.kind, t.TradeValue)
	if t.Time.IsZero() {
		t.Time = time.Now()
	}
	b.handler(t)

	if r.cacheCh != nil {
		select {
		case r.cacheCh <- t:
		default:
		}
	}
}

// Run writes dispatched ticks to the tick cache until ctx is done. It
// returns immediately when no cache is configured.
func (r *Router) Run(ctx context.Context) error {
	if r.cacheCh == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-r.cacheCh:
			wctx, cancel := context.WithTimeout(ctx, time.Second)
			if err := r.cache.SetTick(wctx, t); err != nil {
				r.logger.Debug("tick cache write failed",
					slog.String("code", t.Code),
					slog.String("error", err.Error()),
				)
			}
			cancel()
		}
	}
}
