package bridge

import (
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// Wire types of the brokerage bridge REST API and tick stream. Prices are
// KRW integers; trade values are in the market's reporting unit.

type quoteResponse struct {
	Code       string `json:"code"`
	Price      int64  `json:"price"`
	PrevClose  int64  `json:"prev_close"`
	Volume     int64  `json:"volume"`
	TradeValue int64  `json:"trade_value"`
}

type positionResponse struct {
	Code     string `json:"code"`
	Quantity int64  `json:"quantity"`
	AvgPrice int64  `json:"avg_price"`
}

type barMessage struct {
	Date   string `json:"date"` // YYYYMMDD
	Open   int64  `json:"open"`
	High   int64  `json:"high"`
	Low    int64  `json:"low"`
	Close  int64  `json:"close"`
	Volume int64  `json:"volume"`
}

type chartResponse struct {
	Code string       `json:"code"`
	Bars []barMessage `json:"bars"`
}

type marketResponse struct {
	Code   string `json:"code"`
	Market string `json:"market"`
}

type healthResponse struct {
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
}

type orderRequest struct {
	ClientID string `json:"client_id"`
	Code     string `json:"code"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Quantity int64  `json:"quantity"`
}

type orderResponse struct {
	Accepted bool   `json:"accepted"`
	OrderID  string `json:"order_id"`
	Message  string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// streamCommand is sent on the tick stream.
type streamCommand struct {
	Type  string   `json:"type"` // subscribe | unsubscribe
	Codes []string `json:"codes"`
}

// tickMessage is received on the tick stream.
type tickMessage struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	Price      int64  `json:"price"`
	High       int64  `json:"high"`
	Low        int64  `json:"low"`
	Volume     int64  `json:"volume"`
	TradeValue int64  `json:"trade_value"`
	Time       int64  `json:"time"` // Unix milliseconds
}

func (m tickMessage) toDomain() domain.Tick {
	t := domain.Tick{
		Code:       m.Code,
		Price:      m.Price,
		High:       m.High,
		Low:        m.Low,
		Volume:     m.Volume,
		TradeValue: m.TradeValue,
	}
	if m.Time > 0 {
		t.Time = time.UnixMilli(m.Time)
	}
	return t
}

func (b barMessage) toDomain() domain.DailyBar {
	d, _ := time.Parse("20060102", b.Date)
	return domain.DailyBar{
		Date:   d,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

func parseMarket(s string) domain.MarketKind {
	switch s {
	case "KOSPI", "1":
		return domain.MarketKOSPI
	case "KOSDAQ", "2":
		return domain.MarketKOSDAQ
	default:
		return domain.MarketUnknown
	}
}
