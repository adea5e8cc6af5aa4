package veto

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"off": ModeOff, "Lenient": ModeLenient, " STRICT ": ModeStrict} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("paranoid")
	assert.Error(t, err)
}

func TestOffNeverVetoes(t *testing.T) {
	p := NewPolicy(ModeOff, DefaultThreshold, 0)
	extremes := []float64{math.Inf(1), math.MaxFloat64, 1e9, 0, -1e9, math.NaN()}
	for _, zg := range extremes {
		for _, zt := range extremes {
			d := p.Decide(zg, zt)
			assert.False(t, d.Veto, "zGamma=%v zTotal=%v", zg, zt)
			assert.False(t, d.Forced)
		}
	}
	assert.Equal(t, 0, p.Consecutive())
}

func TestStrictRule(t *testing.T) {
	p := NewPolicy(ModeStrict, 3.0, 10)
	assert.True(t, p.Decide(0, 3.5).Veto, "single total threshold is enough")
	assert.True(t, p.Decide(3.1, 0).Veto)
	assert.False(t, p.Decide(3.0, 3.0).Veto, "threshold itself is accepted")
}

func TestLenientRule(t *testing.T) {
	cases := []struct {
		zGamma, zTotal float64
		veto           bool
	}{
		{4.2, 0, true},
		{4.0, 0, false},
		{0, 10, false},
		{2.6, 4.5, true},
		{2.5, 4.5, false},
		{3.5, 3.9, false},
	}
	for _, tc := range cases {
		p := NewPolicy(ModeLenient, 3.0, 10)
		assert.Equal(t, tc.veto, p.Decide(tc.zGamma, tc.zTotal).Veto, "zGamma=%v zTotal=%v", tc.zGamma, tc.zTotal)
	}
}

func TestConsecutiveCapForcesAccept(t *testing.T) {
	p := NewPolicy(ModeStrict, 3.0, 2)

	d := p.Decide(5, 5)
	require.True(t, d.Veto)
	d = p.Decide(5, 5)
	require.True(t, d.Veto)
	require.Equal(t, 2, p.Consecutive())

	d = p.Decide(5, 5)
	assert.False(t, d.Veto)
	assert.True(t, d.Forced)
	assert.Equal(t, 0, p.Consecutive())

	// the counter restarts after the forced accept
	assert.True(t, p.Decide(5, 5).Veto)
	assert.Equal(t, 1, p.Consecutive())
}

func TestAcceptResetsCounter(t *testing.T) {
	p := NewPolicy(ModeStrict, 3.0, 5)
	p.Decide(5, 0)
	p.Decide(5, 0)
	require.Equal(t, 2, p.Consecutive())

	d := p.Decide(0, 0)
	assert.False(t, d.Veto)
	assert.False(t, d.Forced)
	assert.Equal(t, 0, p.Consecutive())
}

func TestZeroCapNeverVetoes(t *testing.T) {
	p := NewPolicy(ModeStrict, 3.0, -4)
	d := p.Decide(10, 10)
	assert.False(t, d.Veto)
	assert.True(t, d.Forced)
}
