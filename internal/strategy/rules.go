package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// references resolves cached N-day levels; ok is false when the level is
// unavailable and the dependent rule must not trigger.
type references interface {
	high(n int) (int64, bool)
	low(n int) (int64, bool)
}

// buySignal reports whether rule is satisfied by t, with a human-readable
// reason.
func buySignal(rule domain.BuyRule, t domain.Tick, refs references) (bool, string) {
	if t.Price <= 0 {
		return false, ""
	}
	switch r := rule.(type) {
	case domain.NDayHighBreakout:
		high, ok := refs.high(r.Days)
		if ok && t.Price > high {
			return true, fmt.Sprintf("%d-day high breakout: %d > %d", r.Days, t.Price, high)
		}
	case domain.PriceBreakout:
		if t.Price < r.Target || !r.Condition.Met(t) {
			return false, ""
		}
		switch r.Condition.Kind {
		case domain.ConditionVolume:
			return true, fmt.Sprintf("price breakout: %d >= %d, volume %d >= %d", t.Price, r.Target, t.Volume, r.Condition.Threshold)
		case domain.ConditionTradeValue:
			return true, fmt.Sprintf("price breakout: %d >= %d, trade value %d >= %d", t.Price, r.Target, t.TradeValue, r.Condition.Threshold)
		default:
			return true, fmt.Sprintf("price breakout: %d >= %d", t.Price, r.Target)
		}
	}
	return false, ""
}

// sellSignal reports whether a non-trailing sell rule is satisfied.
func sellSignal(rule domain.SellRule, t domain.Tick, pos domain.Position, refs references) (bool, string) {
	if t.Price <= 0 {
		return false, ""
	}
	switch r := rule.(type) {
	case domain.NDayLowBreach:
		low, ok := refs.low(r.Days)
		if ok && t.Price < low {
			return true, fmt.Sprintf("%d-day low breach: %d < %d", r.Days, t.Price, low)
		}
	case domain.ProfitTarget:
		if pos.AvgPrice > 0 && movePctAtLeast(t.Price-pos.AvgPrice, pos.AvgPrice, r.Pct) {
			return true, fmt.Sprintf("profit target: %s%% >= %v%%", pctOf(t.Price-pos.AvgPrice, pos.AvgPrice), r.Pct)
		}
	case domain.StopLoss:
		if pos.AvgPrice > 0 && movePctAtLeast(pos.AvgPrice-t.Price, pos.AvgPrice, r.Pct) {
			return true, fmt.Sprintf("stop loss: %s%% >= %v%%", pctOf(pos.AvgPrice-t.Price, pos.AvgPrice), r.Pct)
		}
	case domain.PriceBreach:
		if t.Price <= r.Target {
			return true, fmt.Sprintf("price breach: %d <= %d", t.Price, r.Target)
		}
	}
	return false, ""
}

// movePctAtLeast reports move/base*100 >= pct without dividing.
func movePctAtLeast(move, base int64, pct float64) bool {
	lhs := decimal.NewFromInt(move).Mul(hundred)
	rhs := decimal.NewFromFloat(pct).Mul(decimal.NewFromInt(base))
	return lhs.GreaterThanOrEqual(rhs)
}

func pctOf(move, base int64) string {
	return decimal.NewFromInt(move).Mul(hundred).Div(decimal.NewFromInt(base)).StringFixed(2)
}
