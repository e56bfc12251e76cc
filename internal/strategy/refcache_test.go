package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

func refTestConfig() domain.SymbolConfig {
	return domain.SymbolConfig{
		Code: "005930",
		Buy: []domain.BuyRule{
			domain.NDayHighBreakout{Days: 20, Amount: 1_000_000},
			domain.NDayHighBreakout{Days: 20, Amount: 2_000_000},
			domain.NDayHighBreakout{Days: 5, Amount: 1_000_000},
		},
		Sell: []domain.SellRule{domain.NDayLowBreach{Days: 10}},
	}
}

func TestRefCacheOneCallPerWindow(t *testing.T) {
	gw := newFakeGateway()
	gw.highs[20] = 80_000
	gw.highs[5] = 75_000
	gw.lows[10] = 60_000

	c := newRefCache(refTestConfig(), 5*time.Minute, AllDay(time.UTC))
	res := c.refresh(context.Background(), gw, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	assert.Equal(t, 1, gw.highCalls[20])
	assert.Equal(t, 1, gw.highCalls[5])
	assert.Equal(t, 1, gw.lowCalls[10])
	assert.Empty(t, res.failedHigh)
	v, ok := c.high(20)
	assert.True(t, ok)
	assert.Equal(t, int64(80_000), v)
}

func TestRefCacheFailedWindowIsUnavailable(t *testing.T) {
	gw := newFakeGateway()
	gw.highs[20] = 80_000

	c := newRefCache(refTestConfig(), 5*time.Minute, AllDay(time.UTC))
	res := c.refresh(context.Background(), gw, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	assert.Equal(t, []int{5}, res.failedHigh)
	assert.Equal(t, []int{10}, res.failedLow)
	_, ok := c.high(5)
	assert.False(t, ok)
	_, ok = c.low(10)
	assert.False(t, ok)
}

func TestRefCacheRefreshPolicy(t *testing.T) {
	gw := newFakeGateway()
	gw.highs[20] = 80_000
	c := newRefCache(refTestConfig(), 5*time.Minute, AllDay(time.UTC))

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	assert.True(t, c.due(start), "never refreshed")

	refreshes := 0
	for _, at := range []time.Duration{0, time.Second, time.Minute, 4*time.Minute + 59*time.Second} {
		now := start.Add(at)
		if c.due(now) {
			c.refresh(context.Background(), gw, now)
			refreshes++
		}
	}
	assert.Equal(t, 1, refreshes, "repeated ticks inside the interval reuse the cache")

	assert.True(t, c.due(start.Add(5*time.Minute)), "forced after the interval")
	c.refresh(context.Background(), gw, start.Add(5*time.Minute))
	assert.False(t, c.due(start.Add(6*time.Minute)))

	nextDay := time.Date(2026, 3, 3, 0, 0, 1, 0, time.UTC)
	c.refresh(context.Background(), gw, time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC))
	assert.True(t, c.due(nextDay), "date change forces a rebuild")
}

func TestRefCacheWithoutWindowsIsNeverDue(t *testing.T) {
	c := newRefCache(domain.SymbolConfig{Code: "005930"}, 5*time.Minute, AllDay(time.UTC))
	assert.False(t, c.due(time.Now()))
}
