package strategy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

type placedOrder struct {
	code string
	qty  int64
	side domain.OrderSide
}

// fakeGateway is an in-memory domain.Gateway. Accepted orders move the
// position immediately.
type fakeGateway struct {
	mu        sync.Mutex
	pos       domain.Position
	close     int64
	highs     map[int]int64
	lows      map[int]int64
	highCalls map[int]int
	lowCalls  map[int]int
	orders    []placedOrder
	reject    bool
	buyAvg    int64
	panicOn   bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		highs:     map[int]int64{},
		lows:      map[int]int64{},
		highCalls: map[int]int{},
		lowCalls:  map[int]int{},
	}
}

func (g *fakeGateway) IsConnected(context.Context) bool { return true }

func (g *fakeGateway) Quote(_ context.Context, code string) domain.Quote {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.Quote{Code: code, Close: g.close}
}

func (g *fakeGateway) Position(_ context.Context, code string) domain.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.pos
	p.Code = code
	return p
}

func (g *fakeGateway) NDayHigh(_ context.Context, _ string, n int) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.highCalls[n]++
	return g.highs[n]
}

func (g *fakeGateway) NDayLow(_ context.Context, _ string, n int) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lowCalls[n]++
	return g.lows[n]
}

func (g *fakeGateway) PlaceOrder(_ context.Context, code string, qty int64, side domain.OrderSide) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.panicOn {
		panic("broker exploded")
	}
	g.orders = append(g.orders, placedOrder{code: code, qty: qty, side: side})
	if g.reject {
		return false
	}
	if side == domain.OrderSideBuy {
		g.pos.Quantity += qty
		if g.buyAvg > 0 {
			g.pos.AvgPrice = g.buyAvg
		}
	} else {
		g.pos.Quantity -= qty
		if g.pos.Quantity == 0 {
			g.pos.AvgPrice = 0
		}
	}
	return true
}

func (g *fakeGateway) Subscribe(context.Context, string, domain.TickHandler) error { return nil }

func (g *fakeGateway) Unsubscribe(context.Context, string) {}

func (g *fakeGateway) placed() []placedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]placedOrder(nil), g.orders...)
}

func (g *fakeGateway) setReject(v bool) {
	g.mu.Lock()
	g.reject = v
	g.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	fills  []domain.Fill
}

func (r *recorder) OnEvent(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) OnFill(f domain.Fill) {
	r.mu.Lock()
	r.fills = append(r.fills, f)
	r.mu.Unlock()
}

func (r *recorder) fillCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fills)
}

func (r *recorder) hasLevel(level domain.EventLevel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Level == level {
			return true
		}
	}
	return false
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func testOptions() Options {
	return Options{
		TickWait:        10 * time.Millisecond,
		IdleInterval:    5 * time.Millisecond,
		SettleDelay:     0,
		RefreshInterval: 5 * time.Minute,
		Session:         AllDay(time.UTC),
		Clock:           SystemClock(),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
