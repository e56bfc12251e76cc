package paper

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
)

func newBroker(cfg Config, sink domain.TickHandler) *Broker {
	if sink == nil {
		sink = func(domain.Tick) {}
	}
	return New(cfg, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTickSize(t *testing.T) {
	tests := []struct {
		price, want int64
	}{
		{1999, 1},
		{4995, 5},
		{19990, 10},
		{49950, 50},
		{199900, 100},
		{499500, 500},
		{700000, 1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tickSize(tt.price), "price %d", tt.price)
	}
	assert.Equal(t, int64(10010), roundTick(10017))
	assert.Equal(t, int64(1), roundTick(-5))
}

func TestBuyAndSellAccounting(t *testing.T) {
	ctx := context.Background()
	b := newBroker(Config{Cash: 1_000_000, Prices: map[string]int64{"005930": 10000}}, nil)

	res, err := b.PlaceOrder(ctx, domain.OrderRequest{Code: "005930", Side: domain.OrderSideBuy, Quantity: 20})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, int64(800_000), b.Cash())

	b.SetPrice("005930", 12000)
	_, err = b.PlaceOrder(ctx, domain.OrderRequest{Code: "005930", Side: domain.OrderSideBuy, Quantity: 10})
	require.NoError(t, err)

	pos, err := b.Position(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, int64(30), pos.Quantity)
	assert.Equal(t, int64(10666), pos.AvgPrice)

	res, err = b.PlaceOrder(ctx, domain.OrderRequest{Code: "005930", Side: domain.OrderSideSell, Quantity: 30})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	pos, _ = b.Position(ctx, "005930")
	assert.True(t, pos.Flat())
	assert.Zero(t, pos.AvgPrice)
	assert.Equal(t, int64(1_040_000), b.Cash())
}

func TestOrderRejections(t *testing.T) {
	ctx := context.Background()
	b := newBroker(Config{Cash: 50_000, Prices: map[string]int64{"005930": 10000}}, nil)

	res, err := b.PlaceOrder(ctx, domain.OrderRequest{Code: "005930", Side: domain.OrderSideBuy, Quantity: 6})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "insufficient cash", res.Message)

	res, err = b.PlaceOrder(ctx, domain.OrderRequest{Code: "005930", Side: domain.OrderSideSell, Quantity: 1})
	require.NoError(t, err)
	assert.False(t, res.Accepted)

	res, _ = b.PlaceOrder(ctx, domain.OrderRequest{Code: "005930", Side: domain.OrderSideBuy})
	assert.False(t, res.Accepted)
}

func TestDailyBarsNewestFirst(t *testing.T) {
	ctx := context.Background()
	b := newBroker(Config{Prices: map[string]int64{"005930": 10000}}, nil)

	bars, err := b.DailyBars(ctx, "005930", 21)
	require.NoError(t, err)
	require.Len(t, bars, 21)
	assert.Equal(t, int64(10000), bars[0].Close)
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i].Date.Before(bars[i-1].Date))
		assert.Positive(t, bars[i].Close)
		assert.GreaterOrEqual(t, bars[i].High, bars[i].Low)
	}

	q, err := b.Quote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, bars[1].Close, q.Close)

	_, err = b.DailyBars(ctx, "005930", 0)
	assert.Error(t, err)
}

func TestMarketKind(t *testing.T) {
	ctx := context.Background()
	b := newBroker(Config{KOSDAQ: []string{"091990"}}, nil)

	k, _ := b.MarketKind(ctx, "091990")
	assert.Equal(t, domain.MarketKOSDAQ, k)
	k, _ = b.MarketKind(ctx, "005930")
	assert.Equal(t, domain.MarketKOSPI, k)
}

func TestStepOnlySubscribed(t *testing.T) {
	ctx := context.Background()
	b := newBroker(Config{Seed: 7}, nil)
	require.NoError(t, b.Subscribe(ctx, "005930"))

	ticks := b.Step()
	require.Len(t, ticks, 1)
	tk := ticks[0]
	assert.Equal(t, "005930", tk.Code)
	assert.Equal(t, tk.Price, roundTick(tk.Price))
	assert.GreaterOrEqual(t, tk.High, tk.Price)
	assert.LessOrEqual(t, tk.Low, tk.Price)

	require.NoError(t, b.Unsubscribe(ctx, "005930"))
	assert.Empty(t, b.Step())
}

func TestRunPushesTicks(t *testing.T) {
	var mu sync.Mutex
	var got []domain.Tick
	b := newBroker(Config{TickInterval: 5 * time.Millisecond}, func(tk domain.Tick) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tk)
	})
	require.NoError(t, b.Subscribe(context.Background(), "005930"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := b.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, got)
}
