package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	sql, args := newListQuery("SELECT id FROM orders WHERE code = $1", "005930").
		apply(domain.ListOpts{Since: &since, Limit: 50, Offset: 100})

	assert.Equal(t,
		"SELECT id FROM orders WHERE code = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		sql)
	assert.Equal(t, []any{"005930", since, 50, 100}, args)

	sql, args = newListQuery("SELECT id FROM audit_log WHERE TRUE").apply(domain.ListOpts{})
	assert.Equal(t, "SELECT id FROM audit_log WHERE TRUE ORDER BY created_at DESC", sql)
	assert.Empty(t, args)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/equitybot?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "equitybot"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
}
