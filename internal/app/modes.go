package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/equitybot/internal/crypto"
	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/feed"
	"github.com/alanyoungcy/equitybot/internal/gateway"
	"github.com/alanyoungcy/equitybot/internal/gateway/bridge"
	"github.com/alanyoungcy/equitybot/internal/gateway/paper"
	"github.com/alanyoungcy/equitybot/internal/server"
	"github.com/alanyoungcy/equitybot/internal/server/handler"
	"github.com/alanyoungcy/equitybot/internal/server/ws"
	"github.com/alanyoungcy/equitybot/internal/service"
	"github.com/alanyoungcy/equitybot/internal/strategy"
	"github.com/alanyoungcy/equitybot/internal/supervisor"
)

const (
	shutdownTimeout  = 10 * time.Second
	autoStartBackoff = 5 * time.Second
)

// hubChannels are relayed from the event bus to WebSocket clients.
var hubChannels = []string{service.ChannelEvents, service.ChannelFills, service.ChannelPositions}

// runner is a long-lived component started under the mode's errgroup.
type runner func(ctx context.Context) error

// recordFunc adapts a function to gateway.OrderRecorder.
type recordFunc func(domain.Order)

func (f recordFunc) RecordOrder(o domain.Order) { f(o) }

// TradingMode runs the broker, gateway, supervisor and journal, plus the API
// server when enabled. Paper and live differ only in the broker adapter.
func (a *App) TradingMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trading mode", slog.String("broker", a.cfg.BrokerKind()))

	g, ctx := errgroup.WithContext(ctx)

	router := feed.NewRouter(deps.TickCache, a.logger)
	broker, runBroker, err := a.newBroker(router)
	if err != nil {
		return fmt.Errorf("trading mode: %w", err)
	}

	// The journal needs the portfolio, which needs the gateway, which
	// records into the journal.
	var journal *service.Journal
	gwOpts := gateway.Options{
		OrderGap: a.cfg.Trading.OrderGap.Duration,
		Recorder: recordFunc(func(o domain.Order) { journal.RecordOrder(o) }),
	}
	if deps.RateLimiter != nil && a.cfg.Trading.OrderRateLimit > 0 {
		gwOpts.Limiter = deps.RateLimiter
		gwOpts.OrderLimit = a.cfg.Trading.OrderRateLimit
		gwOpts.OrderWindow = a.cfg.Trading.OrderRateWindow.Duration
	}
	gw := gateway.New(broker, router, gwOpts, a.logger)

	var trading *service.Trading
	hub := a.newHub(deps, func() any { return a.statusSnapshot(trading) })
	pubs := a.publishers(deps, hub)

	portfolio := service.NewPortfolio(gw, deps.PositionStore, pubs, a.logger)
	var stream service.StreamAppender
	if deps.EventBus != nil {
		stream = deps.EventBus
	}
	journal = service.NewJournal(service.JournalDeps{
		Orders:     deps.OrderStore,
		Publishers: pubs,
		Stream:     stream,
		Portfolio:  portfolio,
		Notifier:   deps.Notifier,
	}, a.logger)

	session, err := strategy.ParseSession(a.cfg.Trading.SessionOpen, a.cfg.Trading.SessionClose, a.cfg.Trading.Timezone)
	if err != nil {
		return fmt.Errorf("trading mode: %w", err)
	}
	sup := supervisor.New(gw, journal, deps.LockManager, supervisor.Options{
		Engine: strategy.Options{
			TickWait:        a.cfg.Trading.TickWait.Duration,
			IdleInterval:    a.cfg.Trading.IdleInterval.Duration,
			SettleDelay:     a.cfg.Trading.SettleDelay.Duration,
			RefreshInterval: a.cfg.Trading.RefreshInterval.Duration,
			Session:         session,
			Clock:           strategy.SystemClock(),
		},
		JoinTimeout: a.cfg.Trading.JoinTimeout.Duration,
	}, a.logger)
	trading = service.NewTrading(sup, deps.SymbolConfigs, deps.AuditStore, deps.Notifier, a.logger)

	// The journal outlives ctx so the stop events of the shutdown below
	// are still persisted.
	journalCtx, stopJournal := context.WithCancel(context.WithoutCancel(ctx))
	g.Go(func() error { return journal.Run(journalCtx) })
	g.Go(func() error { return router.Run(ctx) })
	g.Go(func() error { return runBroker(ctx) })
	g.Go(func() error { return hub.Run(ctx) })

	if deps.Archiver != nil {
		loc, err := time.LoadLocation(a.cfg.Trading.Timezone)
		if err != nil {
			stopJournal()
			return fmt.Errorf("trading mode: timezone: %w", err)
		}
		job := service.NewArchiveJob(deps.Archiver, a.cfg.Archive.Interval.Duration, loc, a.logger)
		g.Go(func() error { return job.Run(ctx) })
	}

	if a.cfg.Trading.AutoStart {
		g.Go(func() error {
			a.autoStart(ctx, trading)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		defer func() {
			stopJournal()
			if n := journal.Dropped(); n > 0 {
				a.logger.Warn("journal dropped items under load", slog.Uint64("dropped", n))
			}
		}()
		if !trading.Active() {
			return nil
		}
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := trading.Stop(stopCtx); err != nil {
			a.logger.Warn("stop trading on shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, hub, server.Handlers{
			Health:    handler.NewHealthHandler(gw),
			Status:    handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), trading),
			Trading:   handler.NewTradingHandler(trading, a.logger),
			Positions: handler.NewPositionHandler(portfolio, a.logger),
		})
	}

	return g.Wait()
}

// MonitorMode serves the API and relays bus traffic without trading, so a
// dashboard can follow a trading daemon running elsewhere.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	if deps.EventBus == nil {
		a.logger.WarnContext(ctx, "redis disabled, monitor mode will not relay live events")
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := a.newHub(deps, func() any { return a.statusSnapshot(nil) })
	g.Go(func() error { return hub.Run(ctx) })

	a.startHTTPServer(ctx, g, deps, hub, server.Handlers{
		Health:    handler.NewHealthHandler(nil),
		Status:    handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), nil),
		Trading:   handler.NewTradingHandler(nil, a.logger),
		Positions: handler.NewPositionHandler(service.NewPortfolio(nil, deps.PositionStore, nil, a.logger), a.logger),
	})

	return g.Wait()
}

// newBroker builds the brokerage adapter for the mode. Ticks from the
// returned broker are fed to router.
func (a *App) newBroker(router *feed.Router) (domain.Broker, runner, error) {
	switch a.cfg.BrokerKind() {
	case "paper":
		b := paper.New(paper.Config{
			Cash:         a.cfg.Paper.Cash,
			Prices:       a.cfg.Paper.Prices,
			KOSDAQ:       a.cfg.Paper.KOSDAQ,
			StepPct:      a.cfg.Paper.StepPct,
			TickInterval: a.cfg.Paper.TickInterval.Duration,
			Seed:         a.cfg.Paper.Seed,
		}, router.Dispatch, a.logger)
		return b, b.Run, nil
	case "bridge":
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			Raw:           a.cfg.Broker.APISecret,
			EncryptedPath: a.cfg.Broker.EncryptedSecretPath,
			Password:      a.cfg.Broker.SecretPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("broker secret: %w", err)
		}
		auth := &crypto.HMACAuth{Key: a.cfg.Broker.APIKey, Secret: secret, Account: a.cfg.Broker.Account}
		a.logger.Info("bridge credentials loaded", slog.String("auth", auth.String()))
		client := bridge.NewClient(a.cfg.Broker.BridgeURL, auth, a.cfg.Broker.Timeout.Duration)
		stream := bridge.NewStream(a.cfg.Broker.StreamURL, auth, router.Dispatch, a.logger)
		b := bridge.NewBroker(client, stream)
		return b, b.Run, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker kind %q", a.cfg.BrokerKind())
	}
}

// newHub creates the WebSocket hub. With Redis the hub relays the bus so
// every process sees the same stream; otherwise the journal publishes to
// the hub directly.
func (a *App) newHub(deps *Dependencies, status ws.StatusFunc) *ws.Hub {
	var bus ws.Subscriber
	if deps.EventBus != nil {
		bus = deps.EventBus
	}
	return ws.NewHub(bus, hubChannels, status, a.logger)
}

func (a *App) publishers(deps *Dependencies, hub *ws.Hub) []domain.Publisher {
	if deps.EventBus != nil {
		return []domain.Publisher{deps.EventBus}
	}
	return []domain.Publisher{hub}
}

func (a *App) statusSnapshot(trading *service.Trading) any {
	out := map[string]any{
		"mode":           a.cfg.Mode,
		"broker":         a.cfg.BrokerKind(),
		"trading_active": false,
	}
	if trading != nil {
		out["trading_active"] = trading.Active()
		out["engines"] = trading.Engines()
	}
	return out
}

// autoStart starts trading on every enabled symbol, retrying while the
// broker is still connecting.
func (a *App) autoStart(ctx context.Context, trading *service.Trading) {
	for {
		codes, err := trading.Start(ctx, a.cfg.Trading.Symbols)
		if err == nil {
			a.logger.InfoContext(ctx, "auto start: trading", slog.Any("codes", codes))
			return
		}
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			a.logger.ErrorContext(ctx, "auto start failed", slog.String("error", err.Error()))
			return
		}
		a.logger.WarnContext(ctx, "auto start: broker not ready, retrying",
			slog.Duration("backoff", autoStartBackoff),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(autoStartBackoff):
		}
	}
}

// startHTTPServer fills in the store-backed handlers and launches the API
// server, shutting it down when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub, handlers server.Handlers) {
	handlers.Symbols = handler.NewSymbolHandler(deps.SymbolConfigs, a.logger)
	handlers.Journal = handler.NewJournalHandler(deps.OrderStore, deps.AuditStore, a.logger)
	var fills handler.StreamReader
	if deps.EventBus != nil {
		fills = deps.EventBus
	}
	handlers.Fills = handler.NewFillHandler(fills, service.StreamFills, a.logger)

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		MetricsPath: metricsPath,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
