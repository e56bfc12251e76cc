package domain

import "context"

// TickHandler receives ticks for one subscribed symbol. It may be called
// from any goroutine.
type TickHandler func(Tick)

// Broker is a raw brokerage adapter. Implementations report failures as
// errors and need not be safe for concurrent use; callers serialize access.
type Broker interface {
	Name() string
	Connected(ctx context.Context) bool
	Quote(ctx context.Context, code string) (Quote, error)
	Position(ctx context.Context, code string) (Position, error)
	// DailyBars returns up to count daily bars, newest first; index 0 is
	// the current session.
	DailyBars(ctx context.Context, code string, count int) ([]DailyBar, error)
	MarketKind(ctx context.Context, code string) (MarketKind, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	// Subscribe starts real-time ticks for code. Ticks arrive on the sink
	// given to the adapter at construction.
	Subscribe(ctx context.Context, code string) error
	Unsubscribe(ctx context.Context, code string) error
}

// Gateway is the fail-soft execution gateway consumed by strategy engines.
// Query failures yield zero values and order failures yield false.
type Gateway interface {
	IsConnected(ctx context.Context) bool
	Quote(ctx context.Context, code string) Quote
	Position(ctx context.Context, code string) Position
	// NDayHigh and NDayLow exclude the current session; 0 means
	// unavailable.
	NDayHigh(ctx context.Context, code string, n int) int64
	NDayLow(ctx context.Context, code string, n int) int64
	PlaceOrder(ctx context.Context, code string, qty int64, side OrderSide) bool
	Subscribe(ctx context.Context, code string, h TickHandler) error
	Unsubscribe(ctx context.Context, code string)
}
