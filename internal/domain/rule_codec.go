package domain

import (
	"fmt"
	"math"
	"strings"
)

// Default rule parameters applied when a field is absent from a record.
const (
	DefaultHighDays        = 20
	DefaultLowDays         = 10
	DefaultBuyAmount       = 1_000_000
	DefaultBreakoutTarget  = 50_000
	DefaultVolumeFloor     = 500_000
	DefaultTradeValueFloor = 1_000_000_000
	DefaultProfitPct       = 10
	DefaultStopLossPct     = 5
	DefaultBreachTarget    = 50_000
	DefaultRisePct         = 3
	DefaultTrailPct        = 1
	DefaultSellPercent     = 50
	DefaultSellCash        = 1_000_000
)

// RuleRecord is the persisted form of a rule: a discriminated record whose
// strategy field names the variant.
type RuleRecord struct {
	Strategy  string   `json:"strategy" yaml:"strategy"`
	Param     *float64 `json:"param,omitempty" yaml:"param,omitempty"`
	Amount    *float64 `json:"amount,omitempty" yaml:"amount,omitempty"`
	CondType  string   `json:"cond_type,omitempty" yaml:"cond_type,omitempty"`
	CondValue *float64 `json:"cond_value,omitempty" yaml:"cond_value,omitempty"`
	Method    string   `json:"method,omitempty" yaml:"method,omitempty"`
	Value     *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	TrailBase string   `json:"trail_base,omitempty" yaml:"trail_base,omitempty"`
	RaisePct  *float64 `json:"raise_pct,omitempty" yaml:"raise_pct,omitempty"`
	TrailPct  *float64 `json:"trail_pct,omitempty" yaml:"trail_pct,omitempty"`
}

// Labels written by the desktop tool that produced the first config files.
var (
	ruleAliases = map[string]RuleKind{
		"N일고점돌파": RuleNDayHighBreakout,
		"특정가격돌파": RulePriceBreakout,
		"N일저점이탈": RuleNDayLowBreach,
		"수익률매도":  RuleProfitTarget,
		"손절매":    RuleStopLoss,
		"특정가격이탈": RulePriceBreach,
		"트레일링스탑": RuleTrailingStop,
	}
	conditionAliases = map[string]ConditionKind{
		"조건없음": ConditionNone,
		"거래량":  ConditionVolume,
		"거래대금": ConditionTradeValue,
	}
	methodAliases = map[string]SizingMethod{
		"비중": SizePercent,
		"금액": SizeCash,
		"전량": SizeFull,
	}
	baseAliases = map[string]BaseSource{
		"현재가":   BaseCurrentPrice,
		"매수평단가": BaseAvgBuyPrice,
		"전일종가":  BasePrevClose,
	}
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigInvalid, fmt.Sprintf(format, args...))
}

func ruleKind(s string) (RuleKind, error) {
	s = strings.TrimSpace(s)
	if k, ok := ruleAliases[s]; ok {
		return k, nil
	}
	k := RuleKind(strings.ToLower(s))
	switch k {
	case RuleNDayHighBreakout, RulePriceBreakout, RuleNDayLowBreach, RuleProfitTarget,
		RuleStopLoss, RulePriceBreach, RuleTrailingStop:
		return k, nil
	}
	return "", invalid("unknown strategy %q", s)
}

func conditionKind(s string) (ConditionKind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ConditionNone, nil
	}
	if k, ok := conditionAliases[s]; ok {
		return k, nil
	}
	switch k := ConditionKind(strings.ToLower(s)); k {
	case ConditionNone, ConditionVolume, ConditionTradeValue:
		return k, nil
	}
	return "", invalid("unknown cond_type %q", s)
}

func sizingMethod(s string) (SizingMethod, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SizePercent, nil
	}
	if m, ok := methodAliases[s]; ok {
		return m, nil
	}
	switch m := SizingMethod(strings.ToLower(s)); m {
	case SizePercent, SizeCash, SizeFull:
		return m, nil
	}
	return "", invalid("unknown method %q", s)
}

func baseSource(s string) (BaseSource, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return BaseCurrentPrice, nil
	}
	if b, ok := baseAliases[s]; ok {
		return b, nil
	}
	switch b := BaseSource(strings.ToLower(s)); b {
	case BaseCurrentPrice, BaseAvgBuyPrice, BasePrevClose:
		return b, nil
	}
	return "", invalid("unknown trail_base %q", s)
}

func days(v *float64, def int, field string) (int, error) {
	if v == nil {
		return def, nil
	}
	if *v < 1 || *v != math.Trunc(*v) {
		return 0, invalid("%s must be a positive whole number of days, got %v", field, *v)
	}
	return int(*v), nil
}

func won(v *float64, def int64, field string) (int64, error) {
	if v == nil {
		return def, nil
	}
	if *v <= 0 || *v != math.Trunc(*v) {
		return 0, invalid("%s must be a positive whole KRW amount, got %v", field, *v)
	}
	return int64(*v), nil
}

func pct(v *float64, def float64, field string) (float64, error) {
	if v == nil {
		return def, nil
	}
	if *v <= 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, invalid("%s must be > 0, got %v", field, *v)
	}
	return *v, nil
}

// BuyRule decodes the record into a buy rule variant.
func (r RuleRecord) BuyRule() (BuyRule, error) {
	kind, err := ruleKind(r.Strategy)
	if err != nil {
		return nil, err
	}
	amount, err := won(r.Amount, DefaultBuyAmount, "amount")
	if err != nil {
		return nil, err
	}
	switch kind {
	case RuleNDayHighBreakout:
		n, err := days(r.Param, DefaultHighDays, "param")
		if err != nil {
			return nil, err
		}
		return NDayHighBreakout{Days: n, Amount: amount}, nil
	case RulePriceBreakout:
		target, err := won(r.Param, DefaultBreakoutTarget, "param")
		if err != nil {
			return nil, err
		}
		ck, err := conditionKind(r.CondType)
		if err != nil {
			return nil, err
		}
		cond := Condition{Kind: ck}
		switch ck {
		case ConditionVolume:
			cond.Threshold, err = won(r.CondValue, DefaultVolumeFloor, "cond_value")
		case ConditionTradeValue:
			cond.Threshold, err = won(r.CondValue, DefaultTradeValueFloor, "cond_value")
		}
		if err != nil {
			return nil, err
		}
		return PriceBreakout{Target: target, Condition: cond, Amount: amount}, nil
	}
	return nil, invalid("%s is not a buy strategy", kind)
}

func (r RuleRecord) sizing() (SellSizing, error) {
	m, err := sizingMethod(r.Method)
	if err != nil {
		return SellSizing{}, err
	}
	s := SellSizing{Method: m}
	switch m {
	case SizePercent:
		s.Value, err = pct(r.Value, DefaultSellPercent, "value")
		if err == nil && s.Value > 100 {
			err = invalid("value must be at most 100 percent, got %v", s.Value)
		}
	case SizeCash:
		var v int64
		v, err = won(r.Value, DefaultSellCash, "value")
		s.Value = float64(v)
	}
	return s, err
}

// SellRule decodes the record into a sell rule variant.
func (r RuleRecord) SellRule() (SellRule, error) {
	kind, err := ruleKind(r.Strategy)
	if err != nil {
		return nil, err
	}
	size, err := r.sizing()
	if err != nil {
		return nil, err
	}
	switch kind {
	case RuleNDayLowBreach:
		n, err := days(r.Param, DefaultLowDays, "param")
		if err != nil {
			return nil, err
		}
		return NDayLowBreach{Days: n, Size: size}, nil
	case RuleProfitTarget:
		p, err := pct(r.Param, DefaultProfitPct, "param")
		if err != nil {
			return nil, err
		}
		return ProfitTarget{Pct: p, Size: size}, nil
	case RuleStopLoss:
		p, err := pct(r.Param, DefaultStopLossPct, "param")
		if err != nil {
			return nil, err
		}
		return StopLoss{Pct: p, Size: size}, nil
	case RulePriceBreach:
		target, err := won(r.Param, DefaultBreachTarget, "param")
		if err != nil {
			return nil, err
		}
		return PriceBreach{Target: target, Size: size}, nil
	case RuleTrailingStop:
		base, err := baseSource(r.TrailBase)
		if err != nil {
			return nil, err
		}
		rise, err := pct(r.RaisePct, DefaultRisePct, "raise_pct")
		if err != nil {
			return nil, err
		}
		trail, err := pct(r.TrailPct, DefaultTrailPct, "trail_pct")
		if err != nil {
			return nil, err
		}
		if trail >= 100 {
			return nil, invalid("trail_pct must be below 100, got %v", trail)
		}
		return TrailingStop{Base: base, RisePct: rise, TrailPct: trail, Size: size}, nil
	}
	return nil, invalid("%s is not a sell strategy", kind)
}

func num(v float64) *float64 { return &v }

// BuyRecord encodes a buy rule with canonical names.
func BuyRecord(rule BuyRule) RuleRecord {
	rec := RuleRecord{Strategy: string(rule.Kind()), Amount: num(float64(rule.Budget()))}
	switch r := rule.(type) {
	case NDayHighBreakout:
		rec.Param = num(float64(r.Days))
	case PriceBreakout:
		rec.Param = num(float64(r.Target))
		rec.CondType = string(r.Condition.Kind)
		if r.Condition.Kind != ConditionNone && r.Condition.Kind != "" {
			rec.CondValue = num(float64(r.Condition.Threshold))
		}
	}
	return rec
}

// SellRecord encodes a sell rule with canonical names.
func SellRecord(rule SellRule) RuleRecord {
	size := rule.Sizing()
	rec := RuleRecord{Strategy: string(rule.Kind()), Method: string(size.Method)}
	if size.Method != SizeFull {
		rec.Value = num(size.Value)
	}
	switch r := rule.(type) {
	case NDayLowBreach:
		rec.Param = num(float64(r.Days))
	case ProfitTarget:
		rec.Param = num(r.Pct)
	case StopLoss:
		rec.Param = num(r.Pct)
	case PriceBreach:
		rec.Param = num(float64(r.Target))
	case TrailingStop:
		rec.TrailBase = string(r.Base)
		rec.RaisePct = num(r.RisePct)
		rec.TrailPct = num(r.TrailPct)
	}
	return rec
}
