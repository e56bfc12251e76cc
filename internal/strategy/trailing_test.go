package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

func TestTrailingArmsOnlyAfterRise(t *testing.T) {
	rule := domain.TrailingStop{Base: domain.BaseCurrentPrice, RisePct: 3, TrailPct: 1}
	var tr trailing

	require.Equal(t, trailBaseSet, tr.advance(rule, 10_000, 0, 0))
	assert.Equal(t, int64(10_000), tr.peak)

	// Falling before arming never fires.
	assert.Equal(t, trailHold, tr.advance(rule, 9_000, 0, 0))
	assert.Equal(t, trailHold, tr.advance(rule, 10_299, 0, 0))
	assert.Equal(t, trailPending, tr.phase)

	require.Equal(t, trailArmedNow, tr.advance(rule, 10_300, 0, 0))
	assert.Equal(t, trailArmed, tr.phase)
	assert.Equal(t, int64(10_300), tr.peak)
}

func TestTrailingPeakRatchetsAndFires(t *testing.T) {
	rule := domain.TrailingStop{Base: domain.BaseCurrentPrice, RisePct: 3, TrailPct: 1}
	tr := trailing{phase: trailArmed, peak: 10_300}

	assert.Equal(t, trailPeakRaised, tr.advance(rule, 11_000, 0, 0))
	assert.Equal(t, int64(11_000), tr.peak)

	// 11_000 * 0.99 = 10_890
	assert.Equal(t, trailHold, tr.advance(rule, 10_891, 0, 0))
	assert.Equal(t, int64(11_000), tr.peak, "peak never moves down")
	assert.Equal(t, trailFired, tr.advance(rule, 10_890, 0, 0))
	assert.Equal(t, trailArmed, tr.phase, "fired stop stays armed until sold")
	assert.Equal(t, int64(11_000), tr.peak)
}

func TestTrailingBaseSources(t *testing.T) {
	tests := []struct {
		name      string
		base      domain.BaseSource
		avg, prev int64
		want      int64
	}{
		{"current", domain.BaseCurrentPrice, 9_000, 8_000, 10_000},
		{"average", domain.BaseAvgBuyPrice, 9_000, 8_000, 9_000},
		{"average missing", domain.BaseAvgBuyPrice, 0, 8_000, 10_000},
		{"previous close", domain.BasePrevClose, 9_000, 8_000, 8_000},
		{"previous close missing", domain.BasePrevClose, 9_000, 0, 10_000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var tr trailing
			tr.advance(domain.TrailingStop{Base: tc.base, RisePct: 3, TrailPct: 1}, 10_000, tc.avg, tc.prev)
			assert.Equal(t, tc.want, tr.peak)
		})
	}
}

func TestTrailingReset(t *testing.T) {
	tr := trailing{phase: trailArmed, peak: 12_345}
	tr.reset()
	assert.Equal(t, trailUninitialized, tr.phase)
	assert.Zero(t, tr.peak)
}
