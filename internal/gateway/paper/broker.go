// Package paper is an in-memory brokerage used for paper trading and
// tests. Prices follow a seeded random walk on KRX tick increments and
// orders fill immediately at the current price.
package paper

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

const historyDays = 120

// Config seeds the simulated account and market.
type Config struct {
	Cash int64
	// Prices fixes starting prices; other symbols get a price derived from
	// their code.
	Prices map[string]int64
	// KOSDAQ lists codes listed on KOSDAQ; all others are KOSPI.
	KOSDAQ []string
	// StepPct is the largest per-step move, in percent.
	StepPct float64
	// TickInterval is the period between simulated ticks.
	TickInterval time.Duration
	Seed         uint64
}

type symbol struct {
	kind     domain.MarketKind
	bars     []domain.DailyBar // newest first, bars[0] is today
	price    int64
	volume   int64
	value    int64 // KRW traded today
	held     int64
	avgPrice int64
}

// Broker implements domain.Broker against simulated state.
type Broker struct {
	mu         sync.Mutex
	cfg        Config
	rng        *rand.Rand
	cash       int64
	symbols    map[string]*symbol
	subscribed map[string]struct{}
	kosdaq     map[string]struct{}
	sink       domain.TickHandler
	logger     *slog.Logger
}

var _ domain.Broker = (*Broker)(nil)

// New creates a paper broker that pushes ticks for subscribed codes to sink.
func New(cfg Config, sink domain.TickHandler, logger *slog.Logger) *Broker {
	if cfg.StepPct <= 0 {
		cfg.StepPct = 0.5
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	kosdaq := make(map[string]struct{}, len(cfg.KOSDAQ))
	for _, c := range cfg.KOSDAQ {
		kosdaq[c] = struct{}{}
	}
	return &Broker{
		cfg:        cfg,
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		cash:       cfg.Cash,
		symbols:    make(map[string]*symbol),
		subscribed: make(map[string]struct{}),
		kosdaq:     kosdaq,
		sink:       sink,
		logger:     logger.With(slog.String("component", "paper_broker")),
	}
}

func (b *Broker) Name() string { return "paper" }

func (b *Broker) Connected(context.Context) bool { return true }

// Cash returns the remaining simulated cash.
func (b *Broker) Cash() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

// SetPrice moves code's price, folding it into today's bar.
func (b *Broker) SetPrice(code string, price int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mark(b.symbol(code), price)
}

func (b *Broker) Quote(_ context.Context, code string) (domain.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.symbol(code)
	return domain.Quote{
		Code:       code,
		Price:      s.price,
		Close:      s.bars[1].Close,
		Volume:     s.volume,
		TradeValue: s.value / unit(s.kind),
	}, nil
}

func (b *Broker) Position(_ context.Context, code string) (domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.symbol(code)
	return domain.Position{Code: code, Quantity: s.held, AvgPrice: s.avgPrice}, nil
}

func (b *Broker) DailyBars(_ context.Context, code string, count int) ([]domain.DailyBar, error) {
	if count <= 0 {
		return nil, fmt.Errorf("paper: invalid bar count %d", count)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.symbol(code)
	return slices.Clone(s.bars[:min(count, len(s.bars))]), nil
}

func (b *Broker) MarketKind(_ context.Context, code string) (domain.MarketKind, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.symbol(code).kind, nil
}

// PlaceOrder fills the whole quantity at the current price, or rejects it
// when cash or holdings are insufficient.
func (b *Broker) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Quantity <= 0 {
		return domain.OrderResult{Message: "quantity must be positive"}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.symbol(req.Code)

	switch req.Side {
	case domain.OrderSideBuy:
		cost := s.price * req.Quantity
		if cost > b.cash {
			return domain.OrderResult{Message: "insufficient cash"}, nil
		}
		b.cash -= cost
		s.avgPrice = (s.avgPrice*s.held + cost) / (s.held + req.Quantity)
		s.held += req.Quantity
	case domain.OrderSideSell:
		if req.Quantity > s.held {
			return domain.OrderResult{Message: "insufficient holdings"}, nil
		}
		b.cash += s.price * req.Quantity
		s.held -= req.Quantity
		if s.held == 0 {
			s.avgPrice = 0
		}
	default:
		return domain.OrderResult{}, fmt.Errorf("paper: unknown side %q", req.Side)
	}
	s.volume += req.Quantity
	s.value += s.price * req.Quantity

	b.logger.Info("paper fill",
		slog.String("code", req.Code),
		slog.String("side", string(req.Side)),
		slog.Int64("quantity", req.Quantity),
		slog.Int64("price", s.price),
		slog.Int64("cash", b.cash),
	)
	return domain.OrderResult{Accepted: true, OrderID: uuid.NewString()}, nil
}

func (b *Broker) Subscribe(_ context.Context, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.symbol(code)
	b.subscribed[code] = struct{}{}
	return nil
}

func (b *Broker) Unsubscribe(_ context.Context, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribed, code)
	return nil
}

// Run advances every subscribed symbol once per TickInterval and pushes the
// resulting ticks until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, t := range b.Step() {
				b.sink(t)
			}
		}
	}
}

// Step advances every subscribed symbol by one random move and returns the
// raw ticks, trade value in market units.
func (b *Broker) Step() []domain.Tick {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	ticks := make([]domain.Tick, 0, len(b.subscribed))
	for code := range b.subscribed {
		s := b.symbol(code)
		move := (b.rng.Float64()*2 - 1) * b.cfg.StepPct / 100
		b.mark(s, roundTick(s.price+int64(float64(s.price)*move)))
		qty := 1 + b.rng.Int64N(500)
		s.volume += qty
		s.value += qty * s.price
		ticks = append(ticks, b.tick(code, s, now))
	}
	return ticks
}

func (b *Broker) tick(code string, s *symbol, now time.Time) domain.Tick {
	return domain.Tick{
		Code:       code,
		Price:      s.price,
		High:       s.bars[0].High,
		Low:        s.bars[0].Low,
		Volume:     s.volume,
		TradeValue: s.value / unit(s.kind),
		Time:       now,
	}
}

func (b *Broker) mark(s *symbol, price int64) {
	s.price = price
	today := &s.bars[0]
	today.Close = price
	today.High = max(today.High, price)
	today.Low = min(today.Low, price)
}

// symbol returns code's state, generating history on first use. Caller
// holds b.mu.
func (b *Broker) symbol(code string) *symbol {
	if s, ok := b.symbols[code]; ok {
		return s
	}
	kind := domain.MarketKOSPI
	if _, ok := b.kosdaq[code]; ok {
		kind = domain.MarketKOSDAQ
	}
	start, ok := b.cfg.Prices[code]
	if !ok || start <= 0 {
		h := fnv.New32a()
		h.Write([]byte(code))
		start = 5000 + int64(h.Sum32()%95000)
	}
	start = roundTick(start)

	bars := make([]domain.DailyBar, historyDays)
	day := time.Now().Truncate(24 * time.Hour)
	closePx := start
	for i := range bars {
		open := roundTick(closePx + int64(float64(closePx)*(b.rng.Float64()*2-1)*0.02))
		hi := roundTick(max(open, closePx) + int64(float64(closePx)*b.rng.Float64()*0.01))
		lo := roundTick(min(open, closePx) - int64(float64(closePx)*b.rng.Float64()*0.01))
		bars[i] = domain.DailyBar{
			Date:   day.AddDate(0, 0, -i),
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  closePx,
			Volume: 10000 + b.rng.Int64N(1000000),
		}
		closePx = open
	}
	// Today opens at the current price.
	bars[0] = domain.DailyBar{Date: day, Open: start, High: start, Low: start, Close: start}

	s := &symbol{kind: kind, bars: bars, price: start}
	b.symbols[code] = s
	return s
}

// unit is the broker's reporting unit for trade value.
func unit(kind domain.MarketKind) int64 {
	if kind == domain.MarketKOSDAQ {
		return 1000
	}
	return 10000
}
