package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

type trailPhase int

const (
	trailUninitialized trailPhase = iota
	trailPending
	trailArmed
)

func (p trailPhase) String() string {
	switch p {
	case trailPending:
		return "pending"
	case trailArmed:
		return "armed"
	default:
		return "uninitialized"
	}
}

// trailStep is what one tick did to a trailing stop.
type trailStep int

const (
	trailHold trailStep = iota
	trailBaseSet
	trailArmedNow
	trailPeakRaised
	trailFired
)

// trailing is the per-rule trailing-stop state. The peak only moves up once
// armed.
type trailing struct {
	phase trailPhase
	peak  int64
}

func (s *trailing) reset() {
	s.phase = trailUninitialized
	s.peak = 0
}

// advance feeds one price into the machine. A trailFired result leaves the
// state armed; the caller sells and the stop keeps watching if the order
// fails.
func (s *trailing) advance(rule domain.TrailingStop, price, avgPrice, prevClose int64) trailStep {
	switch s.phase {
	case trailUninitialized:
		s.peak = baseFor(rule.Base, price, avgPrice, prevClose)
		s.phase = trailPending
		return trailBaseSet

	case trailPending:
		if decimal.NewFromInt(price).GreaterThanOrEqual(armLevel(s.peak, rule.RisePct)) {
			s.peak = price
			s.phase = trailArmed
			return trailArmedNow
		}
		return trailHold

	default:
		if price > s.peak {
			s.peak = price
			return trailPeakRaised
		}
		if decimal.NewFromInt(price).LessThanOrEqual(triggerLevel(s.peak, rule.TrailPct)) {
			return trailFired
		}
		return trailHold
	}
}

func baseFor(src domain.BaseSource, price, avgPrice, prevClose int64) int64 {
	switch src {
	case domain.BaseAvgBuyPrice:
		if avgPrice > 0 {
			return avgPrice
		}
	case domain.BasePrevClose:
		if prevClose > 0 {
			return prevClose
		}
	}
	return price
}

// armLevel is peak * (1 + rise/100).
func armLevel(peak int64, risePct float64) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(risePct).Div(hundred))
	return decimal.NewFromInt(peak).Mul(factor)
}

// triggerLevel is peak * (1 - trail/100).
func triggerLevel(peak int64, trailPct float64) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(trailPct).Div(hundred))
	return decimal.NewFromInt(peak).Mul(factor)
}
