package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// SymbolConfigStore implements domain.SymbolConfigStore. Each symbol's rule
// set is stored as its JSONB record.
type SymbolConfigStore struct {
	pool *pgxpool.Pool
}

// NewSymbolConfigStore creates a new SymbolConfigStore backed by the given pool.
func NewSymbolConfigStore(pool *pgxpool.Pool) *SymbolConfigStore {
	return &SymbolConfigStore{pool: pool}
}

func scanSymbolConfig(row pgx.Row) (domain.SymbolConfig, error) {
	var code string
	var raw []byte
	var cfg domain.SymbolConfig
	if err := row.Scan(&code, &raw, &cfg.UpdatedAt); err != nil {
		return domain.SymbolConfig{}, err
	}
	var rec domain.SymbolRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.SymbolConfig{}, fmt.Errorf("%w: %s: %v", domain.ErrConfigInvalid, code, err)
	}
	updated := cfg.UpdatedAt
	cfg, err := rec.Decode(code)
	if err != nil {
		return domain.SymbolConfig{}, err
	}
	cfg.UpdatedAt = updated
	return cfg, nil
}

// Get returns the config for code.
func (s *SymbolConfigStore) Get(ctx context.Context, code string) (domain.SymbolConfig, error) {
	cfg, err := scanSymbolConfig(s.pool.QueryRow(ctx,
		`SELECT code, config, updated_at FROM symbol_configs WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SymbolConfig{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SymbolConfig{}, fmt.Errorf("postgres: get symbol config %s: %w", code, err)
	}
	return cfg, nil
}

// Upsert writes cfg in its canonical record form.
func (s *SymbolConfigStore) Upsert(ctx context.Context, cfg domain.SymbolConfig) error {
	raw, err := json.Marshal(cfg.Record())
	if err != nil {
		return fmt.Errorf("postgres: marshal symbol config %s: %w", cfg.Code, err)
	}
	const query = `
		INSERT INTO symbol_configs (code, config, "on", updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (code) DO UPDATE SET
			config     = EXCLUDED.config,
			"on"       = EXCLUDED."on",
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, cfg.Code, raw, cfg.On); err != nil {
		return fmt.Errorf("postgres: upsert symbol config %s: %w", cfg.Code, err)
	}
	return nil
}

// Delete removes the config for code.
func (s *SymbolConfigStore) Delete(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM symbol_configs WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("postgres: delete symbol config %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns every config ordered by code.
func (s *SymbolConfigStore) List(ctx context.Context) ([]domain.SymbolConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, config, updated_at FROM symbol_configs ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list symbol configs: %w", err)
	}
	defer rows.Close()

	var out []domain.SymbolConfig
	for rows.Next() {
		cfg, err := scanSymbolConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan symbol config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

var _ domain.SymbolConfigStore = (*SymbolConfigStore)(nil)
