package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// PositionStore keeps the latest holding snapshot per symbol.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const holdingSelectCols = `code, quantity, avg_price, current_price, pnl_pct, updated_at`

func scanHolding(row pgx.Row) (domain.Holding, error) {
	var h domain.Holding
	err := row.Scan(&h.Code, &h.Quantity, &h.AvgPrice, &h.CurrentPrice, &h.PnLPct, &h.UpdatedAt)
	return h, err
}

// Upsert replaces the snapshot for h.Code.
func (s *PositionStore) Upsert(ctx context.Context, h domain.Holding) error {
	const query = `
		INSERT INTO position_snapshots (` + holdingSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (code) DO UPDATE SET
			quantity      = EXCLUDED.quantity,
			avg_price     = EXCLUDED.avg_price,
			current_price = EXCLUDED.current_price,
			pnl_pct       = EXCLUDED.pnl_pct,
			updated_at    = NOW()`

	if _, err := s.pool.Exec(ctx, query, h.Code, h.Quantity, h.AvgPrice, h.CurrentPrice, h.PnLPct); err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", h.Code, err)
	}
	return nil
}

// Get returns the snapshot for code.
func (s *PositionStore) Get(ctx context.Context, code string) (domain.Holding, error) {
	h, err := scanHolding(s.pool.QueryRow(ctx,
		`SELECT `+holdingSelectCols+` FROM position_snapshots WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Holding{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Holding{}, fmt.Errorf("postgres: get position %s: %w", code, err)
	}
	return h, nil
}

// List returns every non-flat snapshot ordered by code.
func (s *PositionStore) List(ctx context.Context) ([]domain.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+holdingSelectCols+` FROM position_snapshots WHERE quantity > 0 ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

var _ domain.PositionStore = (*PositionStore)(nil)
