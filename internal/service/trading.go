package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/notify"
	"github.com/alanyoungcy/equitybot/internal/strategy"
	"github.com/alanyoungcy/equitybot/internal/supervisor"
)

// Trading starts and stops the supervisor over the stored symbol configs
// and records both in the audit log.
type Trading struct {
	sup      *supervisor.Supervisor
	configs  domain.SymbolConfigStore
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewTrading creates a Trading controller. audit and notifier may be nil.
func NewTrading(sup *supervisor.Supervisor, configs domain.SymbolConfigStore, audit domain.AuditStore, notifier *notify.Notifier, logger *slog.Logger) *Trading {
	return &Trading{
		sup:      sup,
		configs:  configs,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "trading")),
	}
}

// Start begins trading codes, or every symbol switched on when codes is
// empty. It returns the codes handed to the supervisor.
func (t *Trading) Start(ctx context.Context, codes []string) ([]string, error) {
	list, err := t.configs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("trading: load symbol configs: %w", err)
	}
	configs := make(map[string]domain.SymbolConfig, len(list))
	for _, cfg := range list {
		configs[cfg.Code] = cfg
	}
	if len(codes) == 0 {
		codes = enabledCodes(list)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("trading: start: %w: no symbol is switched on", domain.ErrConfigInvalid)
	}

	if err := t.sup.StartTrading(ctx, configs, codes); err != nil {
		return nil, fmt.Errorf("trading: start: %w", err)
	}
	t.record(ctx, "trading.start", map[string]any{"codes": codes})
	t.notify(ctx, notify.EventTradingStarted, "Trading started", fmt.Sprintf("%d symbols: %v", len(codes), codes))
	return codes, nil
}

// Stop ends trading and waits for engines to exit.
func (t *Trading) Stop(ctx context.Context) error {
	engines := len(t.sup.Engines())
	if err := t.sup.StopTrading(ctx); err != nil {
		return fmt.Errorf("trading: stop: %w", err)
	}
	t.record(ctx, "trading.stop", map[string]any{"engines": engines})
	t.notify(ctx, notify.EventTradingStopped, "Trading stopped", fmt.Sprintf("%d engines stopped", engines))
	return nil
}

// Active reports whether trading is running.
func (t *Trading) Active() bool { return t.sup.Active() }

// Engines returns display snapshots of the live engines.
func (t *Trading) Engines() []strategy.Snapshot { return t.sup.Engines() }

func enabledCodes(list []domain.SymbolConfig) []string {
	var codes []string
	for _, cfg := range list {
		if cfg.On {
			codes = append(codes, cfg.Code)
		}
	}
	slices.Sort(codes)
	return codes
}

func (t *Trading) record(ctx context.Context, event string, detail map[string]any) {
	if t.audit == nil {
		return
	}
	if err := t.audit.Log(ctx, event, detail); err != nil {
		t.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (t *Trading) notify(ctx context.Context, event, title, msg string) {
	if !t.notifier.Enabled() {
		return
	}
	if err := t.notifier.Notify(ctx, event, title, msg); err != nil {
		t.logger.DebugContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}
