package feed

import "github.com/alanyoungcy/equitybot/internal/domain"

// CorrectTradeValue converts a raw trade value reported in the market's
// quoting unit to KRW. KOSPI reports in units of 10,000 won and KOSDAQ in
// units of 1,000 won; other markets already report won.
func CorrectTradeValue(kind domain.MarketKind, raw int64) int64 {
	switch kind {
	case domain.MarketKOSPI:
		return raw * 10_000
	case domain.MarketKOSDAQ:
		return raw * 1_000
	default:
		return raw
	}
}
