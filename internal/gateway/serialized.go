// Package gateway is the single serialization boundary between strategy
// engines and the brokerage. Every broker call, from any engine, passes
// through one mutex because brokerage sessions are not reentrant.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/feed"
	"github.com/alanyoungcy/equitybot/internal/metrics"
)

const (
	// rateLimitKey is the limiter bucket shared by every order.
	rateLimitKey = "orders"
	// prevCloseLookback is how many sessions before today are searched for
	// a non-zero close.
	prevCloseLookback = 3
)

// OrderRecorder receives the journal record of every order attempt. It must
// not block.
type OrderRecorder interface {
	RecordOrder(order domain.Order)
}

// Options tunes the boundary.
type Options struct {
	// OrderGap is held after each order submission, inside the boundary,
	// to stay under the broker's request throttle.
	OrderGap time.Duration
	// Limiter optionally enforces a cross-process order rate.
	Limiter     domain.RateLimiter
	OrderLimit  int
	OrderWindow time.Duration
	Recorder    OrderRecorder
}

// Serialized adapts a domain.Broker into the fail-soft domain.Gateway.
type Serialized struct {
	mu     sync.Mutex
	broker domain.Broker
	router *feed.Router
	kinds  map[string]domain.MarketKind
	opts   Options
	logger *slog.Logger
}

var _ domain.Gateway = (*Serialized)(nil)

// New creates the boundary around broker. Subscribed symbols are bound on
// router, which the broker's stream must feed.
func New(broker domain.Broker, router *feed.Router, opts Options, logger *slog.Logger) *Serialized {
	return &Serialized{
		broker: broker,
		router: router,
		kinds:  make(map[string]domain.MarketKind),
		opts:   opts,
		logger: logger.With(slog.String("component", "gateway"), slog.String("broker", broker.Name())),
	}
}

func observe(op string, start time.Time) {
	metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (g *Serialized) fail(op, code string, kind, err error) {
	metrics.GatewayErrors.WithLabelValues(op).Inc()
	g.logger.Warn("gateway call failed",
		slog.String("op", op),
		slog.String("code", code),
		slog.String("error", fmt.Errorf("%w: %w", kind, err).Error()),
	)
}

// IsConnected reports whether the broker session is usable.
func (g *Serialized) IsConnected(ctx context.Context) bool {
	defer observe("connected", time.Now())
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.broker.Connected(ctx)
}

// Quote returns the current quote with a safe previous close and a KRW
// trade value. It returns a zero quote on failure.
func (g *Serialized) Quote(ctx context.Context, code string) domain.Quote {
	defer observe("quote", time.Now())
	g.mu.Lock()
	defer g.mu.Unlock()

	q, err := g.broker.Quote(ctx, code)
	if err != nil {
		g.fail("quote", code, domain.ErrQuoteUnavailable, err)
		return domain.Quote{Code: code}
	}
	q.Code = code
	q.TradeValue = feed.CorrectTradeValue(g.kindLocked(ctx, code), q.TradeValue)
	if prev := g.prevCloseLocked(ctx, code); prev > 0 {
		q.Close = prev
	}
	return q
}

// prevCloseLocked returns the newest non-zero close among the sessions
// before today, or 0.
func (g *Serialized) prevCloseLocked(ctx context.Context, code string) int64 {
	bars, err := g.broker.DailyBars(ctx, code, prevCloseLookback+1)
	if err != nil {
		g.fail("prev_close", code, domain.ErrHistoryUnavailable, err)
		return 0
	}
	for i := 1; i < len(bars) && i <= prevCloseLookback; i++ {
		if bars[i].Close > 0 {
			return bars[i].Close
		}
	}
	return 0
}

func (g *Serialized) kindLocked(ctx context.Context, code string) domain.MarketKind {
	if k, ok := g.kinds[code]; ok {
		return k
	}
	k, err := g.broker.MarketKind(ctx, code)
	if err != nil {
		// Not cached, so the next call retries.
		g.fail("market_kind", code, domain.ErrQuoteUnavailable, err)
		return domain.MarketUnknown
	}
	g.kinds[code] = k
	return k
}

// Position returns the held quantity and average price, or zeros on
// failure.
func (g *Serialized) Position(ctx context.Context, code string) domain.Position {
	defer observe("position", time.Now())
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.broker.Position(ctx, code)
	if err != nil {
		g.fail("position", code, domain.ErrQuoteUnavailable, err)
		return domain.Position{Code: code}
	}
	p.Code = code
	return p
}

// NDayHigh returns the highest high over the n sessions before today.
func (g *Serialized) NDayHigh(ctx context.Context, code string, n int) int64 {
	defer observe("nday_high", time.Now())
	bars := g.history(ctx, code, n)
	var high int64
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
	}
	return high
}

// NDayLow returns the lowest non-zero low over the n sessions before today.
func (g *Serialized) NDayLow(ctx context.Context, code string, n int) int64 {
	defer observe("nday_low", time.Now())
	bars := g.history(ctx, code, n)
	var low int64
	for _, b := range bars {
		if b.Low > 0 && (low == 0 || b.Low < low) {
			low = b.Low
		}
	}
	return low
}

// history returns bars[1..n], excluding the current session.
func (g *Serialized) history(ctx context.Context, code string, n int) []domain.DailyBar {
	if n <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	bars, err := g.broker.DailyBars(ctx, code, n+1)
	if err != nil {
		g.fail("history", code, domain.ErrHistoryUnavailable, err)
		return nil
	}
	if len(bars) < 2 {
		g.fail("history", code, domain.ErrHistoryUnavailable, fmt.Errorf("%d bars for %d-day window", len(bars), n))
		return nil
	}
	end := min(n+1, len(bars))
	return bars[1:end]
}

// PlaceOrder submits an immediate-or-cancel market order and reports
// whether the broker accepted it.
func (g *Serialized) PlaceOrder(ctx context.Context, code string, qty int64, side domain.OrderSide) bool {
	defer observe("order", time.Now())

	order := domain.Order{
		ID:        uuid.NewString(),
		Code:      code,
		Side:      side,
		Type:      domain.OrderTypeIOCMarket,
		Quantity:  qty,
		Status:    domain.OrderStatusSubmitted,
		CreatedAt: time.Now().UTC(),
	}
	defer func() {
		metrics.OrdersTotal.WithLabelValues(string(side), string(order.Status)).Inc()
		if g.opts.Recorder != nil {
			g.opts.Recorder.RecordOrder(order)
		}
	}()

	if qty <= 0 {
		order.Status, order.Message = domain.OrderStatusRejected, "non-positive quantity"
		return false
	}
	if g.opts.Limiter != nil && g.opts.OrderLimit > 0 {
		if err := g.opts.Limiter.Wait(ctx, rateLimitKey, g.opts.OrderLimit, g.opts.OrderWindow); err != nil {
			order.Status, order.Message = domain.OrderStatusRejected, err.Error()
			g.fail("order", code, domain.ErrRateLimited, err)
			return false
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("order request",
		slog.String("code", code),
		slog.String("side", string(side)),
		slog.Int64("quantity", qty),
		slog.String("client_id", order.ID),
	)
	res, err := g.broker.PlaceOrder(ctx, domain.OrderRequest{
		ClientID: order.ID,
		Code:     code,
		Side:     side,
		Type:     domain.OrderTypeIOCMarket,
		Quantity: qty,
	})
	g.pause(ctx)

	switch {
	case err != nil:
		order.Status, order.Message = domain.OrderStatusRejected, err.Error()
		g.fail("order", code, domain.ErrOrderRejected, err)
		return false
	case !res.Accepted:
		order.Status, order.Message, order.BrokerID = domain.OrderStatusRejected, res.Message, res.OrderID
		g.fail("order", code, domain.ErrOrderRejected, fmt.Errorf("broker: %s", res.Message))
		return false
	}
	order.Status, order.BrokerID, order.Message = domain.OrderStatusAccepted, res.OrderID, res.Message
	g.logger.Info("order accepted",
		slog.String("code", code),
		slog.String("side", string(side)),
		slog.Int64("quantity", qty),
		slog.String("order_id", res.OrderID),
	)
	return true
}

func (g *Serialized) pause(ctx context.Context) {
	if g.opts.OrderGap <= 0 {
		return
	}
	t := time.NewTimer(g.opts.OrderGap)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Subscribe binds h to code's ticks and asks the broker to stream it.
func (g *Serialized) Subscribe(ctx context.Context, code string, h domain.TickHandler) error {
	defer observe("subscribe", time.Now())
	g.mu.Lock()
	defer g.mu.Unlock()

	g.router.Bind(code, g.kindLocked(ctx, code), h)
	if err := g.broker.Subscribe(ctx, code); err != nil {
		g.router.Unbind(code)
		metrics.GatewayErrors.WithLabelValues("subscribe").Inc()
		return fmt.Errorf("gateway: subscribe %s: %w: %w", code, domain.ErrGatewayUnavailable, err)
	}
	return nil
}

// Unsubscribe stops code's stream. The route is dropped before waiting on
// the broker, so no tick reaches the handler after the call starts.
// Failures are logged only.
func (g *Serialized) Unsubscribe(ctx context.Context, code string) {
	defer observe("unsubscribe", time.Now())
	g.router.Unbind(code)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.broker.Unsubscribe(ctx, code); err != nil {
		g.fail("unsubscribe", code, domain.ErrGatewayUnavailable, err)
	}
}
