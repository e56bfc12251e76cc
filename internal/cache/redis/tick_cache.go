package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// TickCache implements domain.TickCache using Redis hashes. Each symbol's
// latest tick is stored at "{prefix}tick:{code}".
type TickCache struct {
	rdb *redis.Client
	ks  keyspace
	ttl time.Duration
}

// NewTickCache creates a TickCache. Entries expire after ttl; zero keeps
// them forever.
func NewTickCache(c *Client, ttl time.Duration) *TickCache {
	return &TickCache{rdb: c.rdb, ks: c.ks, ttl: ttl}
}

func (tc *TickCache) tickKey(code string) string {
	return tc.ks.key("tick", code)
}

// SetTick stores t as the latest tick for its code.
func (tc *TickCache) SetTick(ctx context.Context, t domain.Tick) error {
	key := tc.tickKey(t.Code)
	pipe := tc.rdb.TxPipeline()
	pipe.HSet(ctx, key, tickFields(t))
	if tc.ttl > 0 {
		pipe.Expire(ctx, key, tc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set tick %s: %w", t.Code, err)
	}
	return nil
}

// GetTick returns the latest tick for code, or domain.ErrNotFound.
func (tc *TickCache) GetTick(ctx context.Context, code string) (domain.Tick, error) {
	vals, err := tc.rdb.HGetAll(ctx, tc.tickKey(code)).Result()
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: get tick %s: %w", code, err)
	}
	if len(vals) == 0 {
		return domain.Tick{}, domain.ErrNotFound
	}
	t, err := parseTick(code, vals)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: parse tick %s: %w", code, err)
	}
	return t, nil
}

func tickFields(t domain.Tick) map[string]any {
	return map[string]any{
		"price":       strconv.FormatInt(t.Price, 10),
		"high":        strconv.FormatInt(t.High, 10),
		"low":         strconv.FormatInt(t.Low, 10),
		"volume":      strconv.FormatInt(t.Volume, 10),
		"trade_value": strconv.FormatInt(t.TradeValue, 10),
		"ts":          strconv.FormatInt(t.Time.UnixNano(), 10),
	}
}

func parseTick(code string, vals map[string]string) (domain.Tick, error) {
	t := domain.Tick{Code: code}
	fields := []struct {
		name string
		dst  *int64
	}{
		{"price", &t.Price},
		{"high", &t.High},
		{"low", &t.Low},
		{"volume", &t.Volume},
		{"trade_value", &t.TradeValue},
	}
	for _, f := range fields {
		v, ok := vals[f.name]
		if !ok {
			return domain.Tick{}, fmt.Errorf("missing field %q", f.name)
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.Tick{}, fmt.Errorf("field %q: %w", f.name, err)
		}
		*f.dst = n
	}
	if ts, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		t.Time = time.Unix(0, ts)
	}
	return t, nil
}

// Compile-time interface check.
var _ domain.TickCache = (*TickCache)(nil)
