// Package strategy implements the per-symbol trading engine: a worker that
// consumes coalesced ticks and evaluates a symbol's buy and sell rules.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/metrics"
)

// ErrAlreadyStarted is returned by Start on an engine that has left the
// Created state.
var ErrAlreadyStarted = errors.New("strategy: engine already started")

// State is the lifecycle stage of an Engine.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopRequested
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	default:
		return "stopped"
	}
}

// Observer receives an engine's events and fills. Calls come from the
// engine goroutine and must return quickly.
type Observer interface {
	OnEvent(ev domain.Event)
	OnFill(fill domain.Fill)
}

// Options tunes the engine loop.
type Options struct {
	// TickWait bounds one wait for a tick before the loop re-checks the
	// session and stop flag.
	TickWait time.Duration
	// IdleInterval is the poll period outside trading hours.
	IdleInterval time.Duration
	// SettleDelay is slept after an accepted order before the position is
	// re-read.
	SettleDelay time.Duration
	// RefreshInterval forces an N-day level rebuild even on the same day.
	RefreshInterval time.Duration
	Session         Session
	Clock           Clock
}

// DefaultOptions returns the production loop timing on the KRX session.
func DefaultOptions() Options {
	return Options{
		TickWait:        time.Second,
		IdleInterval:    time.Second,
		SettleDelay:     500 * time.Millisecond,
		RefreshInterval: 5 * time.Minute,
		Session:         KRXSession(),
		Clock:           SystemClock(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TickWait <= 0 {
		o.TickWait = d.TickWait
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = d.IdleInterval
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = d.RefreshInterval
	}
	if o.Session.Close == 0 {
		o.Session = d.Session
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}

// TrailSnapshot is the display view of one trailing-stop rule.
type TrailSnapshot struct {
	Rule  int    `json:"rule"`
	Phase string `json:"phase"`
	Peak  int64  `json:"peak"`
}

// Snapshot is a best-effort copy of engine state for display. It is never
// used for trading decisions.
type Snapshot struct {
	Code        string          `json:"code"`
	State       string          `json:"state"`
	BuyEnabled  bool            `json:"buy_enabled"`
	SellEnabled bool            `json:"sell_enabled"`
	Quantity    int64           `json:"quantity"`
	AvgPrice    int64           `json:"avg_price"`
	PrevClose   int64           `json:"prev_close"`
	LastPrice   int64           `json:"last_price"`
	Highs       map[int]int64   `json:"nday_highs,omitempty"`
	Lows        map[int]int64   `json:"nday_lows,omitempty"`
	RefreshedAt time.Time       `json:"refreshed_at,omitzero"`
	Trailing    []TrailSnapshot `json:"trailing,omitempty"`
	Ticks       uint64          `json:"ticks"`
	Coalesced   uint64          `json:"coalesced"`
}

// Engine trades one symbol. All rule and position state is owned by the
// goroutine started in Start; other goroutines only call Ingest,
// RequestStop, Done and Snapshot.
type Engine struct {
	cfg    domain.SymbolConfig
	gw     domain.Gateway
	obs    Observer
	opts   Options
	logger *slog.Logger

	slot     *tickSlot
	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once

	// Loop-owned.
	pos       domain.Position
	prevClose int64
	lastPrice int64
	refs      *refCache
	trails    []*trailing

	snapMu sync.Mutex
	snap   Snapshot
}

// NewEngine creates an engine in the Created state.
func NewEngine(cfg domain.SymbolConfig, gw domain.Gateway, obs Observer, opts Options, logger *slog.Logger) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		cfg:    cfg,
		gw:     gw,
		obs:    obs,
		opts:   opts,
		logger: logger.With(slog.String("component", "engine"), slog.String("code", cfg.Code)),
		slot:   newTickSlot(),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		refs:   newRefCache(cfg, opts.RefreshInterval, opts.Session),
		trails: make([]*trailing, len(cfg.Sell)),
	}
	for i, r := range cfg.Sell {
		if _, ok := r.(domain.TrailingStop); ok {
			e.trails[i] = &trailing{}
		}
	}
	e.snap = Snapshot{Code: cfg.Code, State: StateCreated.String(), BuyEnabled: cfg.BuyEnabled, SellEnabled: cfg.SellEnabled}
	return e
}

// Code returns the symbol this engine trades.
func (e *Engine) Code() string { return e.cfg.Code }

// State returns the current lifecycle stage.
func (e *Engine) State() State { return State(e.state.Load()) }

// Start moves the engine to Running and launches its loop.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	go e.run(ctx)
	return nil
}

// RequestStop asks the loop to exit. The flag is observed at the top of each
// iteration and after each trading action; nothing is interrupted.
func (e *Engine) RequestStop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	if e.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
		e.finish()
		return
	}
	e.state.CompareAndSwap(int32(StateRunning), int32(StateStopRequested))
}

// Done is closed once the engine is Stopped.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Wait blocks until the engine stops or timeout elapses, reporting whether
// it stopped.
func (e *Engine) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-e.done:
		return true
	case <-t.C:
		return false
	}
}

// Ingest hands a tick to the engine. It never blocks; an unprocessed older
// tick is replaced.
func (e *Engine) Ingest(t domain.Tick) {
	metrics.TicksTotal.WithLabelValues(e.cfg.Code).Inc()
	if e.slot.put(t) {
		metrics.TicksCoalesced.WithLabelValues(e.cfg.Code).Inc()
	}
}

// Snapshot returns a copy of the last published display state.
func (e *Engine) Snapshot() Snapshot {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	s := e.snap
	s.State = e.State().String()
	s.Highs = maps.Clone(e.snap.Highs)
	s.Lows = maps.Clone(e.snap.Lows)
	s.Trailing = append([]TrailSnapshot(nil), e.snap.Trailing...)
	s.Ticks, s.Coalesced = e.slot.stats()
	return s
}

func (e *Engine) finish() {
	e.doneOnce.Do(func() { close(e.done) })
}

func (e *Engine) stopping(ctx context.Context) bool {
	select {
	case <-e.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (e *Engine) run(ctx context.Context) {
	metrics.ActiveEngines.Inc()
	defer func() {
		metrics.ActiveEngines.Dec()
		e.state.Store(int32(StateStopped))
		e.emit(domain.LevelInfo, "engine stopped", nil)
		e.finish()
	}()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine loop panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			e.emit(domain.LevelError, fmt.Sprintf("evaluation error, engine halted: %v", r), nil)
		}
	}()

	e.emit(domain.LevelInfo, "engine started", nil)
	e.bootstrap(ctx)

	for !e.stopping(ctx) {
		if !e.opts.Session.Contains(e.opts.Clock.Now()) {
			e.pause(ctx, e.opts.IdleInterval)
			continue
		}
		tick, ok := e.slot.wait(ctx, e.stopCh, e.opts.TickWait)
		if !ok || e.stopping(ctx) {
			continue
		}
		e.step(ctx, tick)
	}
}

// bootstrap loads the position, previous close and reference levels.
func (e *Engine) bootstrap(ctx context.Context) {
	e.pos = e.gw.Position(ctx, e.cfg.Code)
	e.prevClose = e.gw.Quote(ctx, e.cfg.Code).Close
	e.emit(domain.LevelInfo, "position loaded", map[string]any{
		"quantity":   e.pos.Quantity,
		"avg_price":  e.pos.AvgPrice,
		"prev_close": e.prevClose,
	})
	if !e.refs.empty() {
		e.refreshRefs(ctx, e.opts.Clock.Now())
	}
	e.publish()
}

func (e *Engine) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-e.stopCh:
	case <-ctx.Done():
	}
}

func (e *Engine) refreshRefs(ctx context.Context, now time.Time) {
	res := e.refs.refresh(ctx, e.gw, now)
	for _, n := range res.failedHigh {
		e.emit(domain.LevelWarning, fmt.Sprintf("%d-day high unavailable, rule skipped", n), nil)
	}
	for _, n := range res.failedLow {
		e.emit(domain.LevelWarning, fmt.Sprintf("%d-day low unavailable, rule skipped", n), nil)
	}
	if len(res.highs)+len(res.lows) > 0 {
		e.emit(domain.LevelInfo, "reference levels refreshed", map[string]any{
			"highs": res.highs,
			"lows":  res.lows,
		})
	}
}

// step evaluates one tick: buys while flat, sells while holding.
func (e *Engine) step(ctx context.Context, t domain.Tick) {
	if now := e.opts.Clock.Now(); e.refs.due(now) {
		e.refreshRefs(ctx, now)
	}
	e.lastPrice = t.Price
	if t.Price > 0 {
		if e.pos.Quantity <= 0 {
			if e.cfg.BuyEnabled {
				e.evaluateBuys(ctx, t)
			}
		} else if e.cfg.SellEnabled {
			e.evaluateSells(ctx, t)
		}
	}
	e.publish()
}

// evaluateBuys acts on the first satisfied rule only.
func (e *Engine) evaluateBuys(ctx context.Context, t domain.Tick) {
	for _, rule := range e.cfg.Buy {
		ok, why := buySignal(rule, t, e.refs)
		if !ok {
			continue
		}
		metrics.RuleTriggers.WithLabelValues(string(rule.Kind())).Inc()
		e.emit(domain.LevelInfo, why, nil)

		qty := domain.BuyQuantity(rule.Budget(), t.Price)
		if qty <= 0 {
			e.emit(domain.LevelWarning, fmt.Sprintf("budget %d buys no shares at %d", rule.Budget(), t.Price), nil)
			return
		}
		if !e.gw.PlaceOrder(ctx, e.cfg.Code, qty, domain.OrderSideBuy) {
			e.emit(domain.LevelError, fmt.Sprintf("buy order for %d shares failed", qty), nil)
			return
		}
		e.emit(domain.LevelSuccess, fmt.Sprintf("bought %d shares via %s", qty, rule.Kind()), nil)
		for _, tr := range e.trails {
			if tr != nil {
				tr.reset()
			}
		}
		e.settle(ctx)
		e.pos = e.gw.Position(ctx, e.cfg.Code)
		e.fill(domain.OrderSideBuy, qty, t.Price, rule.Kind())
		return
	}
}

// evaluateSells acts on the first satisfied ordinary rule only. A trailing
// stop never ends the pass unless its sale left nothing held, so a partial
// or failed trailing sale still lets the rules after it run on this tick.
func (e *Engine) evaluateSells(ctx context.Context, t domain.Tick) {
	for i, rule := range e.cfg.Sell {
		if ts, ok := rule.(domain.TrailingStop); ok {
			if e.evaluateTrailing(ctx, i, ts, t) && e.pos.Quantity <= 0 {
				return
			}
			continue
		}
		ok, why := sellSignal(rule, t, e.pos, e.refs)
		if !ok {
			continue
		}
		metrics.RuleTriggers.WithLabelValues(string(rule.Kind())).Inc()
		e.emit(domain.LevelInfo, why, nil)
		e.sell(ctx, t, rule)
		return
	}
}

func (e *Engine) evaluateTrailing(ctx context.Context, idx int, rule domain.TrailingStop, t domain.Tick) bool {
	tr := e.trails[idx]
	switch tr.advance(rule, t.Price, e.pos.AvgPrice, e.prevClose) {
	case trailBaseSet:
		e.emit(domain.LevelInfo, fmt.Sprintf("trailing stop base set at %d", tr.peak), nil)
	case trailArmedNow:
		e.emit(domain.LevelInfo, fmt.Sprintf("trailing stop armed, peak %d", tr.peak), nil)
	case trailPeakRaised:
		e.logger.Debug("trailing peak raised", slog.Int64("peak", tr.peak))
	case trailFired:
		metrics.RuleTriggers.WithLabelValues(string(rule.Kind())).Inc()
		e.emit(domain.LevelInfo, fmt.Sprintf("trailing stop hit: %d <= %.2f%% below peak %d", t.Price, rule.TrailPct, tr.peak), nil)
		e.sell(ctx, t, rule)
		return true
	}
	return false
}

// sell places the rule's sized order. After it the position is re-read and
// the engine stops itself once nothing is held.
func (e *Engine) sell(ctx context.Context, t domain.Tick, rule domain.SellRule) {
	qty := rule.Sizing().Quantity(e.pos.Quantity, t.Price)
	if qty <= 0 {
		e.emit(domain.LevelWarning, fmt.Sprintf("%s sizes to zero shares, nothing sold", rule.Kind()), nil)
		return
	}
	if !e.gw.PlaceOrder(ctx, e.cfg.Code, qty, domain.OrderSideSell) {
		e.emit(domain.LevelError, fmt.Sprintf("sell order for %d shares failed", qty), nil)
		return
	}
	e.emit(domain.LevelSuccess, fmt.Sprintf("sold %d shares via %s", qty, rule.Kind()), nil)
	e.settle(ctx)
	e.pos = e.gw.Position(ctx, e.cfg.Code)
	e.fill(domain.OrderSideSell, qty, t.Price, rule.Kind())
	if e.pos.Quantity <= 0 {
		e.emit(domain.LevelInfo, "position closed, stopping engine", nil)
		e.RequestStop()
	}
}

func (e *Engine) settle(ctx context.Context) {
	if e.opts.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(e.opts.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (e *Engine) fill(side domain.OrderSide, qty, price int64, rule domain.RuleKind) {
	e.publish()
	if e.obs == nil {
		return
	}
	e.obs.OnFill(domain.Fill{
		Code:     e.cfg.Code,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Rule:     rule,
		Position: e.pos,
		Time:     e.opts.Clock.Now(),
	})
}

func (e *Engine) emit(level domain.EventLevel, msg string, fields map[string]any) {
	if e.obs == nil {
		e.logger.Debug(msg, slog.String("level", string(level)))
		return
	}
	e.obs.OnEvent(domain.Event{
		Time:    e.opts.Clock.Now(),
		Code:    e.cfg.Code,
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}

// publish copies loop-owned state into the display snapshot.
func (e *Engine) publish() {
	trails := make([]TrailSnapshot, 0, len(e.trails))
	for i, tr := range e.trails {
		if tr != nil {
			trails = append(trails, TrailSnapshot{Rule: i, Phase: tr.phase.String(), Peak: tr.peak})
		}
	}
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.snap.Quantity = e.pos.Quantity
	e.snap.AvgPrice = e.pos.AvgPrice
	e.snap.PrevClose = e.prevClose
	e.snap.LastPrice = e.lastPrice
	e.snap.Highs = maps.Clone(e.refs.highs)
	e.snap.Lows = maps.Clone(e.refs.lows)
	e.snap.RefreshedAt = e.refs.at
	e.snap.Trailing = trails
}
