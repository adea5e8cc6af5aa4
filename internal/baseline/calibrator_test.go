package baseline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

func bandsWithRaw(raw, gamma float64) eeg.Bands {
	// alpha+theta = 2, so beta = 2*raw gives the requested ratio
	return eeg.Bands{Delta: 1, Theta: 1, Alpha: 1, Beta: 2 * raw, Gamma: gamma}
}

func TestTargetWindows(t *testing.T) {
	assert.Equal(t, 6, TargetWindows(30, 5))
	assert.Equal(t, 1, TargetWindows(3, 5))
	assert.Equal(t, 1, TargetWindows(30, 0))

	c := NewCalibrator(6)
	assert.Equal(t, 48, c.Budget())
}

func TestCalibratorStopsAtTarget(t *testing.T) {
	c := NewCalibrator(3)
	for i := 0; i < 3; i++ {
		require.False(t, c.Done())
		c.Accept(bandsWithRaw(1, 1))
	}
	assert.True(t, c.Done())
}

func TestCalibratorStopsAtBudget(t *testing.T) {
	c := NewCalibrator(2)
	for i := 0; i < c.Budget(); i++ {
		require.False(t, c.Done())
		c.Discard()
	}
	assert.True(t, c.Done())
	assert.Equal(t, 0, c.Accepted())
}

func TestFinishStandardStatistics(t *testing.T) {
	c := NewCalibrator(4)
	for _, raw := range []float64{1, 2, 3, 4} {
		c.Accept(bandsWithRaw(raw, raw*10))
	}
	c.Discard()

	st, err := c.Finish()
	require.NoError(t, err)
	assert.False(t, st.Robust)
	assert.Equal(t, 4, st.Accepted)
	assert.Equal(t, 5, st.Attempts)
	assert.InDelta(t, 2.5, st.MuRaw, 1e-9)
	// sample standard deviation of 1..4
	assert.InDelta(t, 1.2909944, st.SigmaRaw, 1e-6)
	assert.InDelta(t, 25, st.MuGamma, 1e-9)
}

func TestFinishSelectsRobustWhenScarce(t *testing.T) {
	c := NewCalibrator(10)
	for _, raw := range []float64{1, 2, 3, 100} {
		c.Accept(bandsWithRaw(raw, 1))
	}

	st, err := c.Finish()
	require.NoError(t, err)
	assert.True(t, st.Robust)
	assert.InDelta(t, 2.5, st.MuRaw, 1e-9)
	// |x-2.5| = 1.5, .5, .5, 97.5 -> MAD 1.0
	assert.InDelta(t, 1.4826, st.SigmaRaw, 1e-9)
	// identical gammas collapse to the floor
	assert.Equal(t, eeg.Epsilon, st.SigmaGamma)
}

func TestFinishSelectionBoundaries(t *testing.T) {
	cases := []struct {
		target   int
		accepted int
		robust   bool
		fails    bool
	}{
		{target: 10, accepted: 5, robust: false},
		{target: 10, accepted: 4, robust: true},
		{target: 10, accepted: 3, robust: true},
		{target: 10, accepted: 2, fails: true},
		{target: 6, accepted: 3, robust: false},
		{target: 1, accepted: 1, fails: true},
		{target: 3, accepted: 0, fails: true},
	}
	for _, tc := range cases {
		c := NewCalibrator(tc.target)
		for i := 0; i < tc.accepted; i++ {
			c.Accept(bandsWithRaw(float64(i+1), 1))
		}
		st, err := c.Finish()
		if tc.fails {
			assert.ErrorIs(t, err, ErrCalibrationInsufficient, "target=%d accepted=%d", tc.target, tc.accepted)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.robust, st.Robust, "target=%d accepted=%d", tc.target, tc.accepted)
	}
}

func TestZScoresUseFlooredSpread(t *testing.T) {
	st := Stats{MuRaw: 1, SigmaRaw: 0.5, MuGamma: 2, SigmaGamma: 0}
	assert.InDelta(t, 1.0, st.ZRaw(1.5), 1e-12)
	assert.InDelta(t, 1/eeg.Epsilon, st.ZGamma(3), 1)
}

func TestMedianEvenAndOdd(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 0.0, median(nil))
}
