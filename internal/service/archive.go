package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// ArchiveJob periodically moves orders older than the current trading day
// to cold storage.
type ArchiveJob struct {
	archiver domain.Archiver
	interval time.Duration
	loc      *time.Location
	logger   *slog.Logger
}

// NewArchiveJob creates an ArchiveJob. Days are cut in loc.
func NewArchiveJob(archiver domain.Archiver, interval time.Duration, loc *time.Location, logger *slog.Logger) *ArchiveJob {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ArchiveJob{
		archiver: archiver,
		interval: interval,
		loc:      loc,
		logger:   logger.With(slog.String("component", "archive_job")),
	}
}

// Cutoff returns the start of now's day in the job's location.
func (a *ArchiveJob) Cutoff(now time.Time) time.Time {
	y, m, d := now.In(a.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.loc)
}

// RunOnce archives everything before today.
func (a *ArchiveJob) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	return a.archiver.ArchiveOrders(ctx, a.Cutoff(now))
}

// Run archives once per interval until ctx is cancelled.
func (a *ArchiveJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n, err := a.RunOnce(ctx, now)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
				continue
			}
			a.logger.InfoContext(ctx, "archive run finished", slog.Int64("orders", n))
		}
	}
}
