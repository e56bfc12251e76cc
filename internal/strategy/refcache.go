package strategy

import (
	"context"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// refCache holds N-day high and low levels keyed by window length. It is
// rebuilt when the market date changes and again whenever interval has
// passed since the last build.
type refCache struct {
	code     string
	highDays []int
	lowDays  []int
	interval time.Duration
	session  Session

	highs map[int]int64
	lows  map[int]int64
	day   string
	at    time.Time
}

func newRefCache(cfg domain.SymbolConfig, interval time.Duration, session Session) *refCache {
	return &refCache{
		code:     cfg.Code,
		highDays: cfg.HighWindows(),
		lowDays:  cfg.LowWindows(),
		interval: interval,
		session:  session,
		highs:    map[int]int64{},
		lows:     map[int]int64{},
	}
}

func (c *refCache) empty() bool {
	return len(c.highDays) == 0 && len(c.lowDays) == 0
}

func (c *refCache) due(now time.Time) bool {
	if c.empty() {
		return false
	}
	if c.at.IsZero() || c.session.Day(now) != c.day {
		return true
	}
	return now.Sub(c.at) >= c.interval
}

// refreshResult lists the windows a rebuild could not fetch.
type refreshResult struct {
	highs      map[int]int64
	lows       map[int]int64
	failedHigh []int
	failedLow  []int
}

// refresh makes one gateway call per distinct window. Failed windows are
// left out so their rules do not trigger.
func (c *refCache) refresh(ctx context.Context, gw domain.Gateway, now time.Time) refreshResult {
	res := refreshResult{highs: map[int]int64{}, lows: map[int]int64{}}
	for _, n := range c.highDays {
		if v := gw.NDayHigh(ctx, c.code, n); v > 0 {
			res.highs[n] = v
		} else {
			res.failedHigh = append(res.failedHigh, n)
		}
	}
	for _, n := range c.lowDays {
		if v := gw.NDayLow(ctx, c.code, n); v > 0 {
			res.lows[n] = v
		} else {
			res.failedLow = append(res.failedLow, n)
		}
	}
	c.highs, c.lows = res.highs, res.lows
	c.day = c.session.Day(now)
	c.at = now
	return res
}

func (c *refCache) high(n int) (int64, bool) {
	v, ok := c.highs[n]
	return v, ok
}

func (c *refCache) low(n int) (int64, bool) {
	v, ok := c.lows[n]
	return v, ok
}
