package supervisor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/feed"
	"github.com/alanyoungcy/equitybot/internal/gateway"
	"github.com/alanyoungcy/equitybot/internal/gateway/paper"
	"github.com/alanyoungcy/equitybot/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []domain.Event
	fills  []domain.Fill
}

func (r *sinkRecorder) HandleEvent(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *sinkRecorder) HandleFill(f domain.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills = append(r.fills, f)
}

func (r *sinkRecorder) fillCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fills)
}

type fakeLock struct {
	mu       sync.Mutex
	held     bool
	released int
}

func (l *fakeLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
	}, nil
}

// downGateway reports no brokerage session.
type downGateway struct {
	domain.Gateway
}

func (downGateway) IsConnected(context.Context) bool { return false }

type harness struct {
	broker *paper.Broker
	router *feed.Router
	sup    *Supervisor
	sink   *sinkRecorder
	lock   *fakeLock
}

func newHarness() *harness {
	return newHarnessWith(nil, time.Second)
}

// newHarnessWith lets a test wrap the paper broker the gateway talks to.
func newHarnessWith(wrap func(*paper.Broker) domain.Broker, join time.Duration) *harness {
	logger := testLogger()
	router := feed.NewRouter(nil, logger)
	broker := paper.New(paper.Config{
		Cash:   10_000_000,
		Prices: map[string]int64{"005930": 10000, "000660": 20000},
	}, router.Dispatch, logger)
	var raw domain.Broker = broker
	if wrap != nil {
		raw = wrap(broker)
	}
	gw := gateway.New(raw, router, gateway.Options{}, logger)
	sink := &sinkRecorder{}
	lock := &fakeLock{}
	sup := New(gw, sink, lock, Options{
		Engine: strategy.Options{
			TickWait:     10 * time.Millisecond,
			IdleInterval: 5 * time.Millisecond,
			Session:      strategy.AllDay(time.UTC),
		},
		JoinTimeout: join,
	}, logger)
	return &harness{broker: broker, router: router, sup: sup, sink: sink, lock: lock}
}

func (h *harness) tick(code string, price int64) {
	h.broker.SetPrice(code, price)
	h.router.Dispatch(domain.Tick{Code: code, Price: price, Time: time.Now()})
}

func breakoutConfig(target int64) domain.SymbolConfig {
	return domain.SymbolConfig{
		On:          true,
		BuyEnabled:  true,
		SellEnabled: true,
		Buy: []domain.BuyRule{
			domain.PriceBreakout{Target: target, Condition: domain.Condition{Kind: domain.ConditionNone}, Amount: 100_000},
		},
		Sell: []domain.SellRule{
			domain.ProfitTarget{Pct: 10, Size: domain.SellSizing{Method: domain.SizeFull}},
		},
	}
}

func TestStartTradingRequiresConnection(t *testing.T) {
	sup := New(downGateway{}, nil, nil, Options{}, testLogger())
	err := sup.StartTrading(context.Background(), nil, []string{"005930"})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.False(t, sup.Active())
}

func TestStartTradingOnlyOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	configs := map[string]domain.SymbolConfig{"005930": breakoutConfig(99999)}

	require.NoError(t, h.sup.StartTrading(ctx, configs, []string{"005930"}))
	assert.True(t, h.sup.Active())
	err := h.sup.StartTrading(ctx, configs, []string{"005930"})
	assert.ErrorIs(t, err, domain.ErrTradingActive)

	require.NoError(t, h.sup.StopTrading(ctx))
	assert.ErrorIs(t, h.sup.StopTrading(ctx), domain.ErrTradingInactive)
}

func TestStartTradingLockHeldElsewhere(t *testing.T) {
	h := newHarness()
	h.lock.held = true

	err := h.sup.StartTrading(context.Background(), map[string]domain.SymbolConfig{}, nil)
	assert.ErrorIs(t, err, domain.ErrTradingActive)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.False(t, h.sup.Active())
}

func TestStartTradingSkipsUnconfigured(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	configs := map[string]domain.SymbolConfig{
		"005930": breakoutConfig(99999),
		"000660": breakoutConfig(99999),
	}

	require.NoError(t, h.sup.StartTrading(ctx, configs, []string{"000660", "005930", "035420"}))
	defer h.sup.StopTrading(ctx)

	snaps := h.sup.Engines()
	require.Len(t, snaps, 2)
	assert.Equal(t, "000660", snaps[0].Code)
	assert.Equal(t, "005930", snaps[1].Code)
	assert.ElementsMatch(t, []string{"000660", "005930"}, h.router.Bound())
}

func TestStopTradingStopsEverything(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	configs := map[string]domain.SymbolConfig{
		"005930": breakoutConfig(99999),
		"000660": breakoutConfig(99999),
	}
	require.NoError(t, h.sup.StartTrading(ctx, configs, []string{"005930", "000660"}))

	require.NoError(t, h.sup.StopTrading(ctx))
	assert.Empty(t, h.sup.Engines())
	assert.Empty(t, h.router.Bound())
	assert.False(t, h.sup.Active())
	assert.Equal(t, 1, h.lock.released)

	// The lock is free again, so trading can restart.
	require.NoError(t, h.sup.StartTrading(ctx, configs, []string{"005930"}))
	require.NoError(t, h.sup.StopTrading(ctx))
}

func TestRoundTripRemovesFinishedEngine(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.sup.StartTrading(ctx, map[string]domain.SymbolConfig{
		"005930": breakoutConfig(10000),
	}, []string{"005930"}))
	defer h.sup.StopTrading(ctx)

	h.tick("005930", 10000)
	require.Eventually(t, func() bool { return h.sink.fillCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.sink.mu.Lock()
	buy := h.sink.fills[0]
	h.sink.mu.Unlock()
	assert.Equal(t, domain.OrderSideBuy, buy.Side)
	assert.Equal(t, int64(10), buy.Quantity)
	assert.Equal(t, int64(10), buy.Position.Quantity)

	h.tick("005930", 11000)
	require.Eventually(t, func() bool { return h.sink.fillCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	// Full liquidation ends the engine and the supervisor drops it.
	require.Eventually(t, func() bool { return len(h.sup.Engines()) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.router.Bound())
	assert.True(t, h.sup.Active(), "trading stays active until stopped")

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	sell := h.sink.fills[1]
	assert.Equal(t, domain.OrderSideSell, sell.Side)
	assert.Equal(t, int64(10), sell.Quantity)
	assert.True(t, sell.Position.Flat())
	assert.NotEmpty(t, h.sink.events)
}

// stuckBroker parks every order until release is closed. With honorCtx it
// also gives up when the caller's context ends.
type stuckBroker struct {
	*paper.Broker
	honorCtx bool
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newStuckBroker(b *paper.Broker, honorCtx bool) *stuckBroker {
	return &stuckBroker{Broker: b, honorCtx: honorCtx, entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *stuckBroker) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	b.once.Do(func() { close(b.entered) })
	if b.honorCtx {
		select {
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		case <-b.release:
		}
	} else {
		<-b.release
	}
	return b.Broker.PlaceOrder(ctx, req)
}

func TestStopTradingCancelsOrderInFlight(t *testing.T) {
	var stuck *stuckBroker
	h := newHarnessWith(func(b *paper.Broker) domain.Broker {
		stuck = newStuckBroker(b, true)
		return stuck
	}, 200*time.Millisecond)
	defer close(stuck.release)
	ctx := context.Background()
	require.NoError(t, h.sup.StartTrading(ctx, map[string]domain.SymbolConfig{
		"005930": breakoutConfig(10000),
		"000660": breakoutConfig(99999),
	}, []string{"005930", "000660"}))

	h.tick("005930", 10000)
	select {
	case <-stuck.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("order never reached the broker")
	}

	start := time.Now()
	require.NoError(t, h.sup.StopTrading(ctx))
	assert.Less(t, time.Since(start), 200*time.Millisecond+500*time.Millisecond)
	assert.Empty(t, h.sup.Engines())
	assert.Empty(t, h.router.Bound())
	assert.Equal(t, 1, h.lock.released)
	assert.Zero(t, h.sink.fillCount())
}

func TestStopTradingAbandonsStuckEngine(t *testing.T) {
	const join = 200 * time.Millisecond
	var stuck *stuckBroker
	h := newHarnessWith(func(b *paper.Broker) domain.Broker {
		stuck = newStuckBroker(b, false)
		return stuck
	}, join)
	ctx := context.Background()
	require.NoError(t, h.sup.StartTrading(ctx, map[string]domain.SymbolConfig{
		"005930": breakoutConfig(10000),
	}, []string{"005930"}))

	h.tick("005930", 10000)
	select {
	case <-stuck.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("order never reached the broker")
	}

	start := time.Now()
	require.NoError(t, h.sup.StopTrading(ctx))
	assert.GreaterOrEqual(t, time.Since(start), join)
	assert.Less(t, time.Since(start), join+500*time.Millisecond)
	assert.Empty(t, h.sup.Engines())
	require.Eventually(t, func() bool { return len(h.router.Bound()) == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, h.sup.Active())
	assert.Equal(t, 1, h.lock.released)

	// The abandoned engine still reports the order the broker filled.
	close(stuck.release)
	require.Eventually(t, func() bool { return h.sink.fillCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.sup.Engines())
}
