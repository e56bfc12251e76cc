// Package notify fans trading alerts out to chat channels (Telegram,
// Discord), filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// Event types accepted by the notify.events filter.
const (
	EventOrderFilled    = "order_filled"
	EventTradingStarted = "trading_started"
	EventTradingStopped = "trading_stopped"
	EventWarning        = "warning"
	EventError          = "error"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every sender. Notify drops event types outside the
// configured set; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders and allowed events.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends title/message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyFill reports an accepted order.
func (n *Notifier) NotifyFill(ctx context.Context, f domain.Fill) error {
	title := fmt.Sprintf("%s %s", strings.ToUpper(string(f.Side)), f.Code)
	msg := fmt.Sprintf("%d shares @ %d (%s)\nholding %d @ avg %d",
		f.Quantity, f.Price, f.Rule, f.Position.Quantity, f.Position.AvgPrice)
	return n.Notify(ctx, EventOrderFilled, title, msg)
}

// NotifyEvent reports warning and error events; other levels are not
// alert-worthy.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	var kind string
	switch ev.Level {
	case domain.LevelWarning:
		kind = EventWarning
	case domain.LevelError:
		kind = EventError
	default:
		return nil
	}
	title := strings.ToUpper(string(ev.Level))
	if ev.Code != "" {
		title += " " + ev.Code
	}
	return n.Notify(ctx, kind, title, ev.Message)
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
