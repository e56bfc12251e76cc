package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType indicates the time-in-force policy. Only immediate-or-cancel
// market orders are submitted.
type OrderType string

const (
	OrderTypeIOCMarket OrderType = "IOC_MARKET"
)

// OrderStatus tracks the order outcome.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusRejected  OrderStatus = "rejected"
)

// OrderRequest is what a broker adapter receives.
type OrderRequest struct {
	ClientID string
	Code     string
	Side     OrderSide
	Type     OrderType
	Quantity int64
}

// OrderResult wraps the broker response after order submission.
type OrderResult struct {
	Accepted bool
	OrderID  string
	Message  string
}

// Order is the journal record of one submission attempt.
type Order struct {
	ID        string      `json:"id"`
	BrokerID  string      `json:"broker_id,omitempty"`
	Code      string      `json:"code"`
	Side      OrderSide   `json:"side"`
	Type      OrderType   `json:"type"`
	Quantity  int64       `json:"quantity"`
	Status    OrderStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Fill is emitted by an engine after an order it placed was accepted.
// Position is the holding re-read from the broker afterwards.
type Fill struct {
	Code     string    `json:"code"`
	Side     OrderSide `json:"side"`
	Quantity int64     `json:"quantity"`
	Price    int64     `json:"price"`
	Rule     RuleKind  `json:"rule"`
	Position Position  `json:"position"`
	Time     time.Time `json:"time"`
}
