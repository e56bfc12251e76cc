package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSellSizingQuantity(t *testing.T) {
	tests := []struct {
		name  string
		size  SellSizing
		held  int64
		price int64
		want  int64
	}{
		{"half of odd holding floors", SellSizing{Method: SizePercent, Value: 50}, 33, 10_000, 16},
		{"full percent", SellSizing{Method: SizePercent, Value: 100}, 33, 10_000, 33},
		{"tiny percent rounds to zero", SellSizing{Method: SizePercent, Value: 1}, 33, 10_000, 0},
		{"cash floors", SellSizing{Method: SizeCash, Value: 1_000_000}, 100, 30_000, 33},
		{"cash capped at holding", SellSizing{Method: SizeCash, Value: 1_000_000}, 10, 10_000, 10},
		{"cash with no price", SellSizing{Method: SizeCash, Value: 1_000_000}, 10, 0, 0},
		{"full", SellSizing{Method: SizeFull}, 42, 10_000, 42},
		{"nothing held", SellSizing{Method: SizeFull}, 0, 10_000, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.size.Quantity(tc.held, tc.price))
		})
	}
}

func TestBuyQuantity(t *testing.T) {
	assert.Equal(t, int64(20), BuyQuantity(1_000_000, 50_000))
	assert.Equal(t, int64(19), BuyQuantity(1_000_000, 50_001))
	assert.Equal(t, int64(0), BuyQuantity(1_000_000, 0))
	assert.Equal(t, int64(0), BuyQuantity(10_000, 50_000))
}

func TestConditionMet(t *testing.T) {
	tick := Tick{Volume: 600_000, TradeValue: 900_000_000}

	assert.True(t, Condition{Kind: ConditionNone}.Met(tick))
	assert.True(t, Condition{Kind: ConditionVolume, Threshold: 600_000}.Met(tick))
	assert.False(t, Condition{Kind: ConditionVolume, Threshold: 600_001}.Met(tick))
	assert.False(t, Condition{Kind: ConditionTradeValue, Threshold: 1_000_000_000}.Met(tick))
}
