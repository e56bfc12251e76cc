package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolRecordDecodeAliases(t *testing.T) {
	raw := `{
		"on": true,
		"buy_flag": true,
		"sell_flag": false,
		"buy": [
			{"strategy": "N일고점돌파", "param": 20, "amount": 1000000},
			{"strategy": "특정가격돌파", "param": 51000, "amount": 500000, "cond_type": "거래량", "cond_value": 700000}
		],
		"sell": [
			{"strategy": "트레일링스탑", "trail_base": "매수평단가", "raise_pct": 4, "trail_pct": 2, "method": "전량"},
			{"strategy": "손절매", "param": 3, "method": "비중", "value": 50}
		]
	}`
	var rec SymbolRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	cfg, err := rec.Decode("005930")
	require.NoError(t, err)

	assert.True(t, cfg.On)
	assert.True(t, cfg.BuyEnabled)
	assert.False(t, cfg.SellEnabled)
	require.Len(t, cfg.Buy, 2)
	assert.Equal(t, NDayHighBreakout{Days: 20, Amount: 1_000_000}, cfg.Buy[0])
	assert.Equal(t, PriceBreakout{
		Target:    51_000,
		Condition: Condition{Kind: ConditionVolume, Threshold: 700_000},
		Amount:    500_000,
	}, cfg.Buy[1])
	require.Len(t, cfg.Sell, 2)
	assert.Equal(t, TrailingStop{
		Base:     BaseAvgBuyPrice,
		RisePct:  4,
		TrailPct: 2,
		Size:     SellSizing{Method: SizeFull},
	}, cfg.Sell[0])
	assert.Equal(t, StopLoss{Pct: 3, Size: SellSizing{Method: SizePercent, Value: 50}}, cfg.Sell[1])
}

func TestSymbolRecordDefaults(t *testing.T) {
	rec := SymbolRecord{
		Buy: []RuleRecord{
			{Strategy: "nday_high_breakout"},
			{Strategy: "price_breakout", CondType: "trade_value"},
		},
		Sell: []RuleRecord{
			{Strategy: "nday_low_breach"},
			{Strategy: "profit_target", Method: "cash"},
			{Strategy: "price_breach"},
			{Strategy: "trailing_stop"},
		},
	}
	cfg, err := rec.Decode("000660")
	require.NoError(t, err)

	assert.True(t, cfg.BuyEnabled)
	assert.True(t, cfg.SellEnabled)
	assert.Equal(t, NDayHighBreakout{Days: 20, Amount: 1_000_000}, cfg.Buy[0])
	assert.Equal(t, PriceBreakout{
		Target:    50_000,
		Condition: Condition{Kind: ConditionTradeValue, Threshold: 1_000_000_000},
		Amount:    1_000_000,
	}, cfg.Buy[1])
	assert.Equal(t, NDayLowBreach{Days: 10, Size: SellSizing{Method: SizePercent, Value: 50}}, cfg.Sell[0])
	assert.Equal(t, ProfitTarget{Pct: 10, Size: SellSizing{Method: SizeCash, Value: 1_000_000}}, cfg.Sell[1])
	assert.Equal(t, PriceBreach{Target: 50_000, Size: SellSizing{Method: SizePercent, Value: 50}}, cfg.Sell[2])
	assert.Equal(t, TrailingStop{
		Base:     BaseCurrentPrice,
		RisePct:  3,
		TrailPct: 1,
		Size:     SellSizing{Method: SizePercent, Value: 50},
	}, cfg.Sell[3])
	assert.Equal(t, []int{20}, cfg.HighWindows())
	assert.Equal(t, []int{10}, cfg.LowWindows())
}

func TestSymbolRecordRejectsInvalid(t *testing.T) {
	neg := -1.0
	frac := 2.5
	big := 150.0
	tests := []struct {
		name string
		rec  SymbolRecord
	}{
		{"unknown strategy", SymbolRecord{Buy: []RuleRecord{{Strategy: "moon"}}}},
		{"sell strategy in buy list", SymbolRecord{Buy: []RuleRecord{{Strategy: "stop_loss"}}}},
		{"buy strategy in sell list", SymbolRecord{Sell: []RuleRecord{{Strategy: "price_breakout"}}}},
		{"negative amount", SymbolRecord{Buy: []RuleRecord{{Strategy: "price_breakout", Amount: &neg}}}},
		{"fractional days", SymbolRecord{Buy: []RuleRecord{{Strategy: "nday_high_breakout", Param: &frac}}}},
		{"unknown condition", SymbolRecord{Buy: []RuleRecord{{Strategy: "price_breakout", CondType: "rsi"}}}},
		{"percent above 100", SymbolRecord{Sell: []RuleRecord{{Strategy: "stop_loss", Value: &big}}}},
		{"unknown method", SymbolRecord{Sell: []RuleRecord{{Strategy: "stop_loss", Method: "half"}}}},
		{"unknown base", SymbolRecord{Sell: []RuleRecord{{Strategy: "trailing_stop", TrailBase: "vwap"}}}},
		{"trail of 100 percent", SymbolRecord{Sell: []RuleRecord{{Strategy: "trailing_stop", TrailPct: &big}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.rec.Decode("005930")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfigInvalid)
		})
	}
}

func TestSymbolConfigJSONUsesCanonicalNames(t *testing.T) {
	cfg := SymbolConfig{
		Code:        "035720",
		On:          true,
		BuyEnabled:  true,
		SellEnabled: true,
		Buy:         []BuyRule{NDayHighBreakout{Days: 5, Amount: 2_000_000}},
		Sell:        []SellRule{TrailingStop{Base: BasePrevClose, RisePct: 3, TrailPct: 1, Size: SellSizing{Method: SizeFull}}},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"strategy":"nday_high_breakout"`)
	assert.Contains(t, string(data), `"trail_base":"prev_close"`)
	assert.Contains(t, string(data), `"method":"full"`)

	var back SymbolConfig
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cfg.Code, back.Code)
	assert.Equal(t, cfg.Buy, back.Buy)
	assert.Equal(t, cfg.Sell, back.Sell)
}
