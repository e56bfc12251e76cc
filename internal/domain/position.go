package domain

import "time"

// Position is the broker-reported holding for a symbol.
type Position struct {
	Code     string `json:"code"`
	Quantity int64  `json:"quantity"`
	AvgPrice int64  `json:"avg_price"`
}

// Flat reports whether nothing is held.
func (p Position) Flat() bool {
	return p.Quantity <= 0
}

// Holding is a display snapshot of a position valued at the current price.
type Holding struct {
	Code         string    `json:"code"`
	Quantity     int64     `json:"quantity"`
	AvgPrice     int64     `json:"avg_price"`
	CurrentPrice int64     `json:"current_price"`
	PnLPct       float64   `json:"pnl_pct"`
	UpdatedAt    time.Time `json:"updated_at"`
}
