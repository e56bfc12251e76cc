package feed

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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memTickCache struct {
	mu    sync.Mutex
	ticks map[string]domain.Tick
}

func (c *memTickCache) SetTick(_ context.Context, t domain.Tick) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[t.Code] = t
	return nil
}

func (c *memTickCache) GetTick(_ context.Context, code string) (domain.Tick, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.ticks[code]
	if !ok {
		return domain.Tick{}, domain.ErrNotFound
	}
	return t, nil
}

func TestCorrectTradeValue(t *testing.T) {
	assert.Equal(t, int64(120_000), CorrectTradeValue(domain.MarketKOSPI, 12))
	assert.Equal(t, int64(12_000), CorrectTradeValue(domain.MarketKOSDAQ, 12))
	assert.Equal(t, int64(12), CorrectTradeValue(domain.MarketUnknown, 12))
}

func TestRouterDispatchesCorrectedTicks(t *testing.T) {
	r := NewRouter(nil, testLogger())
	var got []domain.Tick
	r.Bind("005930", domain.MarketKOSPI, func(t domain.Tick) { got = append(got, t) })

	r.Dispatch(domain.Tick{Code: "005930", Price: 70_000, TradeValue: 5})
	r.Dispatch(domain.Tick{Code: "000660", Price: 1})

	require.Len(t, got, 1)
	assert.Equal(t, int64(50_000), got[0].TradeValue)
	assert.False(t, got[0].Time.IsZero())
	assert.Equal(t, []string{"005930"}, r.Bound())

	r.Unbind("005930")
	r.Dispatch(domain.Tick{Code: "005930", Price: 70_100})
	assert.Len(t, got, 1)
}

func TestRouterWritesTickCache(t *testing.T) {
	cache := &memTickCache{ticks: map[string]domain.Tick{}}
	r := NewRouter(cache, testLogger())
	r.Bind("035720", domain.MarketKOSDAQ, func(domain.Tick) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Dispatch(domain.Tick{Code: "035720", Price: 41_000, TradeValue: 3})
	require.Eventually(t, func() bool {
		tick, err := cache.GetTick(ctx, "035720")
		return err == nil && tick.TradeValue == 3_000
	}, time.Second, time.Millisecond)
}
