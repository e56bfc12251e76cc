package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists the order journal.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, code string, opts ListOpts) ([]Order, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Order, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore persists holding snapshots.
type PositionStore interface {
	Upsert(ctx context.Context, h Holding) error
	Get(ctx context.Context, code string) (Holding, error)
	List(ctx context.Context) ([]Holding, error)
}

// SymbolConfigStore persists per-symbol trading configuration.
type SymbolConfigStore interface {
	Get(ctx context.Context, code string) (SymbolConfig, error)
	Upsert(ctx context.Context, cfg SymbolConfig) error
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]SymbolConfig, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
