package domain

import "github.com/shopspring/decimal"

// RuleKind is the canonical discriminator of a rule variant.
type RuleKind string

const (
	RuleNDayHighBreakout RuleKind = "nday_high_breakout"
	RulePriceBreakout    RuleKind = "price_breakout"
	RuleNDayLowBreach    RuleKind = "nday_low_breach"
	RuleProfitTarget     RuleKind = "profit_target"
	RuleStopLoss         RuleKind = "stop_loss"
	RulePriceBreach      RuleKind = "price_breach"
	RuleTrailingStop     RuleKind = "trailing_stop"
)

// BuyRule is one of NDayHighBreakout or PriceBreakout.
type BuyRule interface {
	Kind() RuleKind
	// Budget is the cash amount spent when the rule fires.
	Budget() int64
	buyRule()
}

// SellRule is one of NDayLowBreach, ProfitTarget, StopLoss, PriceBreach or
// TrailingStop.
type SellRule interface {
	Kind() RuleKind
	Sizing() SellSizing
	sellRule()
}

// ConditionKind qualifies a PriceBreakout.
type ConditionKind string

const (
	ConditionNone       ConditionKind = "none"
	ConditionVolume     ConditionKind = "volume"
	ConditionTradeValue ConditionKind = "trade_value"
)

// Condition is an extra volume or trade value floor on a breakout.
type Condition struct {
	Kind      ConditionKind
	Threshold int64
}

// Met reports whether the tick satisfies the condition.
func (c Condition) Met(t Tick) bool {
	switch c.Kind {
	case ConditionVolume:
		return t.Volume >= c.Threshold
	case ConditionTradeValue:
		return t.TradeValue >= c.Threshold
	default:
		return true
	}
}

// NDayHighBreakout buys when the price strictly exceeds the highest high of
// the previous Days sessions.
type NDayHighBreakout struct {
	Days   int
	Amount int64
}

func (NDayHighBreakout) Kind() RuleKind  { return RuleNDayHighBreakout }
func (r NDayHighBreakout) Budget() int64 { return r.Amount }
func (NDayHighBreakout) buyRule()        {}

// PriceBreakout buys when the price reaches Target and Condition holds.
type PriceBreakout struct {
	Target    int64
	Condition Condition
	Amount    int64
}

func (PriceBreakout) Kind() RuleKind  { return RulePriceBreakout }
func (r PriceBreakout) Budget() int64 { return r.Amount }
func (PriceBreakout) buyRule()        {}

// BuyQuantity is floor(amount / price), or 0 when price is not positive.
func BuyQuantity(amount, price int64) int64 {
	if price <= 0 || amount <= 0 {
		return 0
	}
	return amount / price
}

// NDayLowBreach sells when the price drops below the lowest low of the
// previous Days sessions.
type NDayLowBreach struct {
	Days int
	Size SellSizing
}

func (NDayLowBreach) Kind() RuleKind       { return RuleNDayLowBreach }
func (r NDayLowBreach) Sizing() SellSizing { return r.Size }
func (NDayLowBreach) sellRule()            {}

// ProfitTarget sells when the gain over the average price reaches Pct.
type ProfitTarget struct {
	Pct  float64
	Size SellSizing
}

func (ProfitTarget) Kind() RuleKind       { return RuleProfitTarget }
func (r ProfitTarget) Sizing() SellSizing { return r.Size }
func (ProfitTarget) sellRule()            {}

// StopLoss sells when the loss against the average price reaches Pct.
type StopLoss struct {
	Pct  float64
	Size SellSizing
}

func (StopLoss) Kind() RuleKind       { return RuleStopLoss }
func (r StopLoss) Sizing() SellSizing { return r.Size }
func (StopLoss) sellRule()            {}

// PriceBreach sells when the price falls to Target or below.
type PriceBreach struct {
	Target int64
	Size   SellSizing
}

func (PriceBreach) Kind() RuleKind       { return RulePriceBreach }
func (r PriceBreach) Sizing() SellSizing { return r.Size }
func (PriceBreach) sellRule()            {}

// BaseSource selects the initial peak of a trailing stop.
type BaseSource string

const (
	BaseCurrentPrice BaseSource = "current_price"
	BaseAvgBuyPrice  BaseSource = "avg_buy_price"
	BasePrevClose    BaseSource = "prev_close"
)

// TrailingStop arms once the price rises RisePct above its base, then sells
// on a TrailPct retracement from the running peak.
type TrailingStop struct {
	Base     BaseSource
	RisePct  float64
	TrailPct float64
	Size     SellSizing
}

func (TrailingStop) Kind() RuleKind       { return RuleTrailingStop }
func (r TrailingStop) Sizing() SellSizing { return r.Size }
func (TrailingStop) sellRule()            {}

// SizingMethod selects how much of a holding a sell rule disposes of.
type SizingMethod string

const (
	SizePercent SizingMethod = "percent"
	SizeCash    SizingMethod = "cash"
	SizeFull    SizingMethod = "full"
)

// SellSizing is the sell quantity policy of a rule. Value is a percentage
// of the holding for SizePercent and a KRW amount for SizeCash.
type SellSizing struct {
	Method SizingMethod
	Value  float64
}

// Quantity returns the number of shares to sell out of held at price. The
// result never exceeds held.
func (s SellSizing) Quantity(held, price int64) int64 {
	if held <= 0 {
		return 0
	}
	var qty int64
	switch s.Method {
	case SizePercent:
		qty = decimal.NewFromInt(held).
			Mul(decimal.NewFromFloat(s.Value)).
			Div(decimal.NewFromInt(100)).
			Floor().IntPart()
	case SizeCash:
		if price <= 0 {
			return 0
		}
		qty = decimal.NewFromFloat(s.Value).
			Div(decimal.NewFromInt(price)).
			Floor().IntPart()
	case SizeFull:
		qty = held
	}
	if qty > held {
		qty = held
	}
	if qty < 0 {
		qty = 0
	}
	return qty
}
