package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter stores archive objects.
type BlobWriter interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Archiver moves old journal rows from the database to cold storage.
type Archiver interface {
	ArchiveOrders(ctx context.Context, before time.Time) (int64, error)
}
