package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/notify"
)

const journalQueue = 1024

// StreamAppender appends to a durable stream.
type StreamAppender interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// JournalDeps are the optional outputs of a Journal; nil fields are skipped.
type JournalDeps struct {
	Orders     domain.OrderStore
	Publishers []domain.Publisher
	Stream     StreamAppender
	Portfolio  *Portfolio
	Notifier   *notify.Notifier
}

type journalItem struct {
	event *domain.Event
	fill  *domain.Fill
	order *domain.Order
}

// Journal observes engine events, fills and order outcomes. Callers never
// block: items go through a bounded queue drained by Run, and are dropped
// when it is full.
type Journal struct {
	deps    JournalDeps
	queue   chan journalItem
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewJournal creates a Journal. Call Run to start draining.
func NewJournal(deps JournalDeps, logger *slog.Logger) *Journal {
	return &Journal{
		deps:   deps,
		queue:  make(chan journalItem, journalQueue),
		logger: logger.With(slog.String("component", "journal")),
	}
}

var _ domain.EventSink = (*Journal)(nil)

// HandleEvent queues an engine or supervisor event.
func (j *Journal) HandleEvent(ev domain.Event) { j.enqueue(journalItem{event: &ev}) }

// HandleFill queues an accepted order report.
func (j *Journal) HandleFill(f domain.Fill) { j.enqueue(journalItem{fill: &f}) }

// RecordOrder queues an order outcome from the gateway.
func (j *Journal) RecordOrder(o domain.Order) { j.enqueue(journalItem{order: &o}) }

// Dropped returns the number of items lost to a full queue.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

func (j *Journal) enqueue(it journalItem) {
	select {
	case j.queue <- it:
	default:
		if j.dropped.Add(1) == 1 {
			j.logger.Warn("journal queue full, dropping items")
		}
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case it := <-j.queue:
			j.handle(ctx, it)
		case <-ctx.Done():
			j.drain()
			return nil
		}
	}
}

// drain handles queued items with a context detached from shutdown.
func (j *Journal) drain() {
	ctx := context.Background()
	for {
		select {
		case it := <-j.queue:
			j.handle(ctx, it)
		default:
			return
		}
	}
}

func (j *Journal) handle(ctx context.Context, it journalItem) {
	switch {
	case it.event != nil:
		j.onEvent(ctx, *it.event)
	case it.fill != nil:
		j.onFill(ctx, *it.fill)
	case it.order != nil:
		j.onOrder(ctx, *it.order)
	}
}

func (j *Journal) onEvent(ctx context.Context, ev domain.Event) {
	if payload, err := json.Marshal(ev); err != nil {
		j.logger.ErrorContext(ctx, "marshal event failed",
			slog.String("code", ev.Code),
			slog.String("message", ev.Message),
			slog.String("error", err.Error()),
		)
	} else {
		publishAll(ctx, j.deps.Publishers, ChannelEvents, payload, j.logger)
	}
	if j.deps.Notifier != nil {
		if err := j.deps.Notifier.NotifyEvent(ctx, ev); err != nil {
			j.logger.DebugContext(ctx, "event notification failed", slog.String("error", err.Error()))
		}
	}
}

func (j *Journal) onFill(ctx context.Context, f domain.Fill) {
	payload, err := json.Marshal(f)
	if err != nil {
		j.logger.ErrorContext(ctx, "marshal fill failed", slog.String("error", err.Error()))
		return
	}
	publishAll(ctx, j.deps.Publishers, ChannelFills, payload, j.logger)
	if j.deps.Stream != nil {
		if err := j.deps.Stream.StreamAppend(ctx, StreamFills, payload); err != nil {
			j.logger.WarnContext(ctx, "append fill to stream failed", slog.String("error", err.Error()))
		}
	}
	if j.deps.Notifier != nil {
		if err := j.deps.Notifier.NotifyFill(ctx, f); err != nil {
			j.logger.DebugContext(ctx, "fill notification failed", slog.String("error", err.Error()))
		}
	}
	if j.deps.Portfolio != nil {
		if _, err := j.deps.Portfolio.Refresh(ctx, f.Code); err != nil {
			j.logger.WarnContext(ctx, "holding refresh failed",
				slog.String("code", f.Code),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (j *Journal) onOrder(ctx context.Context, o domain.Order) {
	if j.deps.Orders == nil {
		return
	}
	if err := j.deps.Orders.Create(ctx, o); err != nil {
		j.logger.ErrorContext(ctx, "journal order failed",
			slog.String("order_id", o.ID),
			slog.String("code", o.Code),
			slog.String("error", err.Error()),
		)
	}
}
