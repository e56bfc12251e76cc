package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/equitybot/internal/config"
	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/feed"
	"github.com/alanyoungcy/equitybot/internal/gateway"
	"github.com/alanyoungcy/equitybot/internal/gateway/paper"
	"github.com/alanyoungcy/equitybot/internal/strategy"
	"github.com/alanyoungcy/equitybot/internal/supervisor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memPub struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func newMemPub() *memPub { return &memPub{msgs: map[string][][]byte{}} }

func (p *memPub) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs[channel] = append(p.msgs[channel], payload)
	return nil
}

func (p *memPub) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return p.Publish(ctx, stream, payload)
}

func (p *memPub) count(channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs[channel])
}

type memOrders struct {
	domain.OrderStore
	mu     sync.Mutex
	orders []domain.Order
}

func (m *memOrders) Create(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, o)
	return nil
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type downGateway struct{ domain.Gateway }

func (downGateway) IsConnected(context.Context) bool { return false }

func paperGateway(prices map[string]int64) (*paper.Broker, *gateway.Serialized) {
	logger := testLogger()
	router := feed.NewRouter(nil, logger)
	broker := paper.New(paper.Config{Cash: 10_000_000, Prices: prices}, router.Dispatch, logger)
	return broker, gateway.New(broker, router, gateway.Options{}, logger)
}

func TestPnLPct(t *testing.T) {
	cases := []struct {
		qty, avg, cur int64
		want          float64
	}{
		{10, 10_000, 11_000, 10},
		{10, 10_000, 9_500, -5},
		{0, 10_000, 11_000, 0},
		{10, 0, 11_000, 0},
		{10, 10_000, 0, 0},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, PnLPct(c.qty, c.avg, c.cur), 1e-9)
	}
}

func TestPortfolioRefresh(t *testing.T) {
	ctx := context.Background()
	broker, gw := paperGateway(map[string]int64{"005930": 10_000})
	pub := newMemPub()
	p := NewPortfolio(gw, nil, []domain.Publisher{pub}, testLogger())

	require.True(t, gw.PlaceOrder(ctx, "005930", 10, domain.OrderSideBuy))
	broker.SetPrice("005930", 11_000)

	h, err := p.Refresh(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.Quantity)
	assert.Equal(t, int64(10_000), h.AvgPrice)
	assert.Equal(t, int64(11_000), h.CurrentPrice)
	assert.InDelta(t, 10.0, h.PnLPct, 1e-9)
	assert.Equal(t, 1, pub.count(ChannelPositions))

	list, err := p.Holdings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.True(t, gw.PlaceOrder(ctx, "005930", 10, domain.OrderSideSell))
	h, err = p.Refresh(ctx, "005930")
	require.NoError(t, err)
	assert.Zero(t, h.PnLPct)
	list, err = p.Holdings(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPortfolioRefreshNeedsGateway(t *testing.T) {
	p := NewPortfolio(downGateway{}, nil, nil, testLogger())
	_, err := p.Refresh(context.Background(), "005930")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestJournalFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, gw := paperGateway(map[string]int64{"005930": 10_000})
	pub := newMemPub()
	orders := &memOrders{}
	j := NewJournal(JournalDeps{
		Orders:     orders,
		Publishers: []domain.Publisher{pub},
		Stream:     pub,
		Portfolio:  NewPortfolio(gw, nil, []domain.Publisher{pub}, testLogger()),
	}, testLogger())
	go j.Run(ctx)

	j.RecordOrder(domain.Order{ID: "o-1", Code: "005930", Quantity: 1, Status: domain.OrderStatusAccepted})
	j.HandleEvent(domain.Event{Level: domain.LevelInfo, Message: "engine started"})
	j.HandleFill(domain.Fill{Code: "005930", Side: domain.OrderSideBuy, Quantity: 1, Price: 10_000})

	require.Eventually(t, func() bool {
		return orders.count() == 1 &&
			pub.count(ChannelEvents) == 1 &&
			pub.count(ChannelFills) == 1 &&
			pub.count(StreamFills) == 1 &&
			pub.count(ChannelPositions) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestJournalDropsWhenFull(t *testing.T) {
	j := NewJournal(JournalDeps{}, testLogger())
	for range journalQueue + 3 {
		j.HandleEvent(domain.Event{})
	}
	assert.Equal(t, uint64(3), j.Dropped())
}

func TestJournalLogsUnencodableEvent(t *testing.T) {
	var logs bytes.Buffer
	pub := newMemPub()
	j := NewJournal(JournalDeps{Publishers: []domain.Publisher{pub}},
		slog.New(slog.NewTextHandler(&logs, nil)))

	j.handle(context.Background(), journalItem{event: &domain.Event{
		Code:    "005930",
		Level:   domain.LevelWarning,
		Message: "odd fields",
		Fields:  map[string]any{"ratio": math.Inf(1)},
	}})

	assert.Zero(t, pub.count(ChannelEvents))
	assert.Contains(t, logs.String(), "marshal event failed")
	assert.Contains(t, logs.String(), "code=005930")
}

func TestTradingStartStop(t *testing.T) {
	ctx := context.Background()
	_, gw := paperGateway(map[string]int64{"005930": 10_000, "000660": 20_000})
	sup := supervisor.New(gw, nil, nil, supervisor.Options{
		Engine: strategy.Options{
			TickWait:     10 * time.Millisecond,
			IdleInterval: 5 * time.Millisecond,
			Session:      strategy.AllDay(time.UTC),
		},
		JoinTimeout: time.Second,
	}, testLogger())

	store, err := config.OpenSymbolFile(filepath.Join(t.TempDir(), "user_config.json"))
	require.NoError(t, err)
	audit := &memAudit{}
	tr := NewTrading(sup, store, audit, nil, testLogger())

	_, err = tr.Start(ctx, nil)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)

	require.NoError(t, store.Upsert(ctx, domain.SymbolConfig{Code: "005930", On: true, BuyEnabled: true, SellEnabled: true}))
	require.NoError(t, store.Upsert(ctx, domain.SymbolConfig{Code: "000660", On: false, BuyEnabled: true, SellEnabled: true}))

	codes, err := tr.Start(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"005930"}, codes)
	assert.True(t, tr.Active())
	require.Len(t, tr.Engines(), 1)

	_, err = tr.Start(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrTradingActive)

	require.NoError(t, tr.Stop(ctx))
	assert.False(t, tr.Active())
	assert.ErrorIs(t, tr.Stop(ctx), domain.ErrTradingInactive)
	assert.Equal(t, []string{"trading.start", "trading.stop"}, audit.events)
}

type cutoffArchiver struct{ before time.Time }

func (a *cutoffArchiver) ArchiveOrders(_ context.Context, before time.Time) (int64, error) {
	a.before = before
	return 7, nil
}

func TestArchiveJobCutsAtLocalMidnight(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	arch := &cutoffArchiver{}
	job := NewArchiveJob(arch, 0, seoul, testLogger())

	now := time.Date(2026, 3, 15, 16, 30, 0, 0, time.UTC) // 01:30 KST on the 16th
	n, err := job.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, seoul), arch.before)
}
