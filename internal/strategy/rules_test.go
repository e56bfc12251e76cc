package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

type staticRefs struct {
	highs map[int]int64
	lows  map[int]int64
}

func (s staticRefs) high(n int) (int64, bool) {
	v, ok := s.highs[n]
	return v, ok
}

func (s staticRefs) low(n int) (int64, bool) {
	v, ok := s.lows[n]
	return v, ok
}

func TestBuySignalNDayHighIsStrict(t *testing.T) {
	refs := staticRefs{highs: map[int]int64{20: 70_000}}
	rule := domain.NDayHighBreakout{Days: 20, Amount: 1_000_000}

	for _, p := range []int64{1, 69_999, 70_000} {
		ok, _ := buySignal(rule, domain.Tick{Price: p}, refs)
		assert.False(t, ok, "price %d", p)
	}
	for _, p := range []int64{70_001, 90_000} {
		ok, why := buySignal(rule, domain.Tick{Price: p}, refs)
		assert.True(t, ok, "price %d", p)
		assert.Contains(t, why, "20-day high breakout")
	}
}

func TestBuySignalUnavailableHighNeverTriggers(t *testing.T) {
	ok, _ := buySignal(domain.NDayHighBreakout{Days: 5}, domain.Tick{Price: 1_000_000}, staticRefs{})
	assert.False(t, ok)
}

func TestBuySignalPriceBreakoutConditions(t *testing.T) {
	refs := staticRefs{}
	tick := domain.Tick{Price: 50_000, Volume: 400_000, TradeValue: 2_000_000_000}

	tests := []struct {
		name string
		rule domain.PriceBreakout
		want bool
	}{
		{"no condition at target", domain.PriceBreakout{Target: 50_000}, true},
		{"below target", domain.PriceBreakout{Target: 50_001}, false},
		{"volume short", domain.PriceBreakout{Target: 50_000, Condition: domain.Condition{Kind: domain.ConditionVolume, Threshold: 500_000}}, false},
		{"volume met", domain.PriceBreakout{Target: 50_000, Condition: domain.Condition{Kind: domain.ConditionVolume, Threshold: 400_000}}, true},
		{"trade value met", domain.PriceBreakout{Target: 50_000, Condition: domain.Condition{Kind: domain.ConditionTradeValue, Threshold: 1_000_000_000}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, _ := buySignal(tc.rule, tick, refs)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestSellSignals(t *testing.T) {
	refs := staticRefs{lows: map[int]int64{10: 9_000}}
	pos := domain.Position{Quantity: 10, AvgPrice: 10_000}

	tests := []struct {
		name  string
		rule  domain.SellRule
		price int64
		pos   domain.Position
		want  bool
	}{
		{"low breach below", domain.NDayLowBreach{Days: 10}, 8_999, pos, true},
		{"low breach at level", domain.NDayLowBreach{Days: 10}, 9_000, pos, false},
		{"low breach unavailable window", domain.NDayLowBreach{Days: 5}, 1, pos, false},
		{"profit exactly at target", domain.ProfitTarget{Pct: 10}, 11_000, pos, true},
		{"profit short", domain.ProfitTarget{Pct: 10}, 10_999, pos, false},
		{"profit without average", domain.ProfitTarget{Pct: 10}, 20_000, domain.Position{Quantity: 10}, false},
		{"stop loss at threshold", domain.StopLoss{Pct: 5}, 9_500, pos, true},
		{"stop loss short", domain.StopLoss{Pct: 5}, 9_501, pos, false},
		{"price breach at target", domain.PriceBreach{Target: 9_800}, 9_800, pos, true},
		{"price breach above", domain.PriceBreach{Target: 9_800}, 9_801, pos, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, _ := sellSignal(tc.rule, domain.Tick{Price: tc.price}, tc.pos, refs)
			assert.Equal(t, tc.want, ok)
		})
	}
}
