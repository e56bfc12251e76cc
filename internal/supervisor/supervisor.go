// Package supervisor owns the live set of strategy engines: one per
// subscribed symbol, started and stopped together.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/strategy"
)

const (
	// SessionLockKey guards trading against a second process on the same
	// account.
	SessionLockKey = "trading:session"

	sessionLockTTL = 24 * time.Hour
	defaultJoin    = 2 * time.Second
)

// Options tunes the supervisor.
type Options struct {
	Engine strategy.Options
	// JoinTimeout bounds the wait for each engine in StopTrading.
	JoinTimeout time.Duration
}

// Supervisor starts and stops engines and relays their events and fills to
// an external sink. It is safe for concurrent use.
type Supervisor struct {
	gw     domain.Gateway
	sink   domain.EventSink
	lock   domain.LockManager
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	engines map[string]*strategy.Engine
	active  bool
	unlock  func()
	cancel  context.CancelFunc
}

var _ strategy.Observer = (*Supervisor)(nil)

// New creates a Supervisor. sink and lock may be nil.
func New(gw domain.Gateway, sink domain.EventSink, lock domain.LockManager, opts Options, logger *slog.Logger) *Supervisor {
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoin
	}
	return &Supervisor{
		gw:      gw,
		sink:    sink,
		lock:    lock,
		opts:    opts,
		logger:  logger.With(slog.String("component", "supervisor")),
		engines: make(map[string]*strategy.Engine),
	}
}

// StartTrading starts an engine for every code in codes that has a config
// and no live engine. It fails when the gateway is down or trading is
// already active.
func (s *Supervisor) StartTrading(ctx context.Context, configs map[string]domain.SymbolConfig, codes []string) error {
	if !s.gw.IsConnected(ctx) {
		return fmt.Errorf("supervisor: start: %w", domain.ErrGatewayUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return fmt.Errorf("supervisor: start: %w", domain.ErrTradingActive)
	}
	if s.lock != nil {
		unlock, err := s.lock.Acquire(ctx, SessionLockKey, sessionLockTTL)
		if err != nil {
			return fmt.Errorf("supervisor: start: %w: %w", domain.ErrTradingActive, err)
		}
		s.unlock = unlock
	}

	// Engines outlive the request that started them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.active = true

	started := 0
	for _, code := range codes {
		if _, ok := s.engines[code]; ok {
			s.logger.Warn("engine already running", slog.String("code", code))
			continue
		}
		cfg, ok := configs[code]
		if !ok {
			s.logger.Warn("no config for symbol, skipped", slog.String("code", code))
			continue
		}
		cfg.Code = code
		if err := s.startEngine(runCtx, cfg); err != nil {
			s.logger.Error("engine start failed",
				slog.String("code", code),
				slog.String("error", err.Error()),
			)
			s.OnEvent(domain.Event{Time: time.Now(), Code: code, Level: domain.LevelError, Message: err.Error()})
			continue
		}
		started++
	}
	s.logger.Info("trading started", slog.Int("engines", started), slog.Int("requested", len(codes)))
	return nil
}

// startEngine subscribes code and launches its engine. Caller holds s.mu.
func (s *Supervisor) startEngine(ctx context.Context, cfg domain.SymbolConfig) error {
	eng := strategy.NewEngine(cfg, s.gw, s, s.opts.Engine, s.logger)
	if err := s.gw.Subscribe(ctx, cfg.Code, eng.Ingest); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Code, err)
	}
	if err := eng.Start(ctx); err != nil {
		s.gw.Unsubscribe(ctx, cfg.Code)
		return fmt.Errorf("start %s: %w", cfg.Code, err)
	}
	s.engines[cfg.Code] = eng
	go s.reap(ctx, eng)
	return nil
}

// reap removes an engine that stopped on its own.
func (s *Supervisor) reap(ctx context.Context, eng *strategy.Engine) {
	<-eng.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engines[eng.Code()] != eng {
		return
	}
	delete(s.engines, eng.Code())
	s.gw.Unsubscribe(context.WithoutCancel(ctx), eng.Code())
	s.logger.Info("engine finished, removed", slog.String("code", eng.Code()))
}

// StopTrading stops every engine, waiting a bounded time for each, then
// clears the engine map. The engines' context is cancelled up front so a
// broker call in flight returns instead of holding the gateway. An engine
// that misses the bound is abandoned and its feed released in the
// background. The call returns within twice the join timeout.
func (s *Supervisor) StopTrading(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: stop: %w", domain.ErrTradingInactive)
	}
	engines := s.engines
	s.engines = make(map[string]*strategy.Engine)
	s.active = false
	unlock, cancel := s.unlock, s.cancel
	s.unlock, s.cancel = nil, nil
	s.mu.Unlock()

	for _, eng := range engines {
		eng.RequestStop()
	}
	if cancel != nil {
		cancel()
	}

	var g errgroup.Group
	for code, eng := range engines {
		g.Go(func() error {
			stopped := eng.Wait(s.opts.JoinTimeout)
			if !stopped {
				s.logger.Warn("engine did not stop in time, abandoned",
					slog.String("code", code),
					slog.Duration("timeout", s.opts.JoinTimeout),
				)
			}
			released := make(chan struct{})
			go func() {
				defer close(released)
				s.gw.Unsubscribe(context.WithoutCancel(ctx), code)
			}()
			if !stopped {
				return nil
			}
			// The gateway may still be held by an abandoned engine.
			select {
			case <-released:
			case <-time.After(s.opts.JoinTimeout):
				s.logger.Warn("unsubscribe still pending", slog.String("code", code))
			}
			return nil
		})
	}
	_ = g.Wait()

	if unlock != nil {
		unlock()
	}
	s.logger.Info("trading stopped", slog.Int("engines", len(engines)))
	return nil
}

// Active reports whether trading is globally active.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Engines returns display snapshots of the live engines, ordered by code.
func (s *Supervisor) Engines() []strategy.Snapshot {
	s.mu.Lock()
	engines := make([]*strategy.Engine, 0, len(s.engines))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	s.mu.Unlock()

	out := make([]strategy.Snapshot, 0, len(engines))
	for _, e := range engines {
		out = append(out, e.Snapshot())
	}
	slices.SortFunc(out, func(a, b strategy.Snapshot) int {
		return strings.Compare(a.Code, b.Code)
	})
	return out
}

// OnEvent logs an engine event at its severity and forwards it.
func (s *Supervisor) OnEvent(ev domain.Event) {
	attrs := []any{slog.String("code", ev.Code)}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	switch ev.Level {
	case domain.LevelError:
		s.logger.Error(ev.Message, attrs...)
	case domain.LevelWarning:
		s.logger.Warn(ev.Message, attrs...)
	case domain.LevelSuccess:
		s.logger.Info(ev.Message, append(attrs, slog.String("severity", string(ev.Level)))...)
	default:
		s.logger.Info(ev.Message, attrs...)
	}
	if s.sink != nil {
		s.sink.HandleEvent(ev)
	}
}

// OnFill forwards an engine fill to the external refresh observer.
func (s *Supervisor) OnFill(fill domain.Fill) {
	if s.sink != nil {
		s.sink.HandleFill(fill)
	}
}
