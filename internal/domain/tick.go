package domain

import "time"

// Tick is one real-time price update for a symbol. Prices are in KRW.
// TradeValue is already corrected for the market-tier unit.
type Tick struct {
	Code       string    `json:"code"`
	Price      int64     `json:"current_price"`
	High       int64     `json:"high_price"`
	Low        int64     `json:"low_price"`
	Volume     int64     `json:"volume"`
	TradeValue int64     `json:"trade_value"`
	Time       time.Time `json:"tick_time"`
}

// Quote is a point-in-time snapshot returned by a quote query.
// Close is the previous session's close.
type Quote struct {
	Code       string `json:"code"`
	Price      int64  `json:"current_price"`
	Close      int64  `json:"close_price"`
	Volume     int64  `json:"volume"`
	TradeValue int64  `json:"trade_value"`
}

// DailyBar is one session of daily OHLCV history.
type DailyBar struct {
	Date   time.Time `json:"date"`
	Open   int64     `json:"open"`
	High   int64     `json:"high"`
	Low    int64     `json:"low"`
	Close  int64     `json:"close"`
	Volume int64     `json:"volume"`
}

// MarketKind identifies the listing market of a symbol. The numeric values
// follow the brokerage's own codes.
type MarketKind int

const (
	MarketUnknown MarketKind = 0
	MarketKOSPI   MarketKind = 1
	MarketKOSDAQ  MarketKind = 2
)

func (m MarketKind) String() string {
	switch m {
	case MarketKOSPI:
		return "kospi"
	case MarketKOSDAQ:
		return "kosdaq"
	default:
		return "other"
	}
}
