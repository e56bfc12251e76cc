package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// OrderSource is the slice of domain.OrderStore the archiver reads and
// purges.
type OrderSource interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Order, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiverOptions tunes an Archiver.
type ArchiverOptions struct {
	BatchSize int  // rows per run, default 50000
	Purge     bool // delete archived rows once uploaded
}

// Archiver implements domain.Archiver: orders older than a cutoff are
// written as one JSONL object per day of the cutoff and recorded in the
// audit log.
type Archiver struct {
	writer domain.BlobWriter
	orders OrderSource
	audit  domain.AuditStore
	opts   ArchiverOptions
	logger *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, orders OrderSource, audit domain.AuditStore, opts ArchiverOptions, logger *slog.Logger) *Archiver {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50000
	}
	return &Archiver{
		writer: writer,
		orders: orders,
		audit:  audit,
		opts:   opts,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOrders uploads every order created before the cutoff to
// archive/orders/YYYY-MM-DD.jsonl and returns the number archived.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	batch, err := a.orders.ListBefore(ctx, before, a.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	if err := appendJSONL(&buf, batch); err != nil {
		return 0, fmt.Errorf("s3blob: archive orders marshal: %w", err)
	}
	count := int64(len(batch))

	// A full batch leaves newer rows behind; only purge what was written.
	// Postgres timestamps have microsecond resolution.
	purgeBefore := before
	if len(batch) == a.opts.BatchSize {
		purgeBefore = batch[len(batch)-1].CreatedAt.Add(time.Microsecond)
		a.logger.Warn("archive batch full, remaining orders wait for the next run",
			slog.Int("batch_size", a.opts.BatchSize))
	}

	path := archivePath("orders", before)
	if err := a.writer.Upload(ctx, path, bytes.NewReader(buf.Bytes()), jsonlContentType); err != nil {
		return 0, fmt.Errorf("s3blob: archive orders upload: %w", err)
	}

	var purged int64
	if a.opts.Purge {
		n, err := a.orders.DeleteBefore(ctx, purgeBefore)
		if err != nil {
			return count, fmt.Errorf("s3blob: purge archived orders: %w", err)
		}
		purged = n
	}

	a.logger.Info("orders archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int64("purged", purged),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.orders", map[string]any{
			"path":   path,
			"count":  count,
			"purged": purged,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive orders audit log: %w", err)
		}
	}
	return count, nil
}

// archivePath builds the object key, partitioned by the cutoff's date:
// archive/orders/2026-03-16.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format(time.DateOnly))
}

// appendJSONL writes one compact JSON line per record.
func appendJSONL[T any](buf *bytes.Buffer, records []T) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return nil
}

var _ domain.Archiver = (*Archiver)(nil)
