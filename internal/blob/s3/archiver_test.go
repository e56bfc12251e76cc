package s3blob

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

type memBlobs struct {
	objects     map[string]string
	contentType string
}

func (m *memBlobs) Upload(_ context.Context, key string, body io.Reader, contentType string) error {
	b, err := io.ReadAll(body)
	m.objects[key] = string(b)
	m.contentType = contentType
	return err
}

type memOrders struct {
	orders        []domain.Order
	deletedBefore time.Time
}

func (m *memOrders) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range m.orders {
		if o.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.deletedBefore = before
	var kept []domain.Order
	var n int64
	for _, o := range m.orders {
		if o.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, o)
	}
	m.orders = kept
	return n, nil
}

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func sampleOrders() []domain.Order {
	base := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)
	return []domain.Order{
		{ID: "a", Code: "005930", Side: domain.OrderSideBuy, Quantity: 10, Status: domain.OrderStatusAccepted, CreatedAt: base},
		{ID: "b", Code: "005930", Side: domain.OrderSideSell, Quantity: 5, Status: domain.OrderStatusAccepted, CreatedAt: base.Add(time.Hour)},
		{ID: "c", Code: "035720", Side: domain.OrderSideBuy, Quantity: 1, Status: domain.OrderStatusRejected, CreatedAt: base.Add(72 * time.Hour)},
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestArchiveOrdersWritesJSONL(t *testing.T) {
	blobs := &memBlobs{objects: map[string]string{}}
	orders := &memOrders{orders: sampleOrders()}
	audit := &memAudit{}
	a := NewArchiver(blobs, orders, audit, ArchiverOptions{}, discard())

	cutoff := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	n, err := a.ArchiveOrders(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	body, ok := blobs.objects["archive/orders/2026-03-16.jsonl"]
	require.True(t, ok)
	assert.Equal(t, "application/x-ndjson", blobs.contentType)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"a"`)
	assert.Equal(t, []string{"archive.orders"}, audit.events)
	assert.Len(t, orders.orders, 3, "no purge unless asked")
}

func TestArchiveOrdersPurge(t *testing.T) {
	blobs := &memBlobs{objects: map[string]string{}}
	orders := &memOrders{orders: sampleOrders()}
	a := NewArchiver(blobs, orders, nil, ArchiverOptions{Purge: true, BatchSize: 1}, discard())

	cutoff := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	n, err := a.ArchiveOrders(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	// Full batch: rows after the last archived one stay.
	assert.Equal(t, sampleOrders()[0].CreatedAt.Add(time.Microsecond), orders.deletedBefore)
	require.Len(t, orders.orders, 2)
	assert.Equal(t, "b", orders.orders[0].ID)
}

func TestArchiveOrdersNothingToDo(t *testing.T) {
	blobs := &memBlobs{objects: map[string]string{}}
	a := NewArchiver(blobs, &memOrders{}, &memAudit{}, ArchiverOptions{}, discard())
	n, err := a.ArchiveOrders(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blobs.objects)
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"minio:9000", true, "https://minio:9000"},
		{"minio:9000", false, "http://minio:9000"},
		{"localhost", false, "http://localhost"},
		{"http://x", true, "http://x"},
		{"https://r2.example.com", false, "https://r2.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, endpointURL(tt.endpoint, tt.useSSL), tt.endpoint)
	}
}

func TestBucketConfigValidate(t *testing.T) {
	err := BucketConfig{}.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
	assert.Contains(t, err.Error(), "region is required")
	assert.NoError(t, BucketConfig{Bucket: "archive", Region: "ap-northeast-2"}.validate())
}
