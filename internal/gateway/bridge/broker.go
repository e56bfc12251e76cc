package bridge

import (
	"context"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// Broker joins the REST client and tick stream into a domain.Broker.
type Broker struct {
	client *Client
	stream *Stream
}

var _ domain.Broker = (*Broker)(nil)

// NewBroker creates a bridge-backed broker.
func NewBroker(client *Client, stream *Stream) *Broker {
	return &Broker{client: client, stream: stream}
}

func (b *Broker) Name() string { return "bridge" }

// Connected reports whether the bridge holds a brokerage session.
func (b *Broker) Connected(ctx context.Context) bool {
	ok, err := b.client.Health(ctx)
	return err == nil && ok
}

func (b *Broker) Quote(ctx context.Context, code string) (domain.Quote, error) {
	return b.client.GetQuote(ctx, code)
}

func (b *Broker) Position(ctx context.Context, code string) (domain.Position, error) {
	return b.client.GetPosition(ctx, code)
}

func (b *Broker) DailyBars(ctx context.Context, code string, count int) ([]domain.DailyBar, error) {
	return b.client.GetDailyBars(ctx, code, count)
}

func (b *Broker) MarketKind(ctx context.Context, code string) (domain.MarketKind, error) {
	return b.client.GetMarketKind(ctx, code)
}

func (b *Broker) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	return b.client.PlaceOrder(ctx, req)
}

func (b *Broker) Subscribe(_ context.Context, code string) error {
	return b.stream.Subscribe(code)
}

func (b *Broker) Unsubscribe(_ context.Context, code string) error {
	return b.stream.Unsubscribe(code)
}

// Run drives the tick stream until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	return b.stream.Run(ctx)
}
