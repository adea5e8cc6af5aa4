package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/focus_streamer/internal/baseline"
	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

func TestEvaluateWorkedExample(t *testing.T) {
	base := baseline.Stats{MuRaw: 1.0, SigmaRaw: 0.5}

	r := Evaluate(1.5, base)
	assert.Equal(t, 1.0, r.Z)
	assert.InDelta(t, 0.7685, sigmoid(LogisticGain*r.Z), 1e-4)
	assert.Equal(t, 77, r.Score)
	assert.Equal(t, LabelHigh, r.Label)
}

func TestComputeCarriesBands(t *testing.T) {
	// alpha+theta = 2, beta = 3 -> raw just under 1.5
	b := eeg.Bands{Delta: 1, Theta: 1, Alpha: 1, Beta: 3, Gamma: 1}
	base := baseline.Stats{MuRaw: 1.0, SigmaRaw: 0.5}

	r, ok := Compute(b, base)
	require.True(t, ok)
	assert.InDelta(t, 1.5, r.Raw, 1e-9)
	assert.Equal(t, 77, r.Score)
	assert.Equal(t, b, r.Bands)
}

func TestComputeRejectsNonFiniteRatio(t *testing.T) {
	b := eeg.Bands{Theta: 1, Alpha: 1, Beta: math.Inf(1)}
	_, ok := Compute(b, baseline.Stats{SigmaRaw: 1})
	assert.False(t, ok)

	b = eeg.Bands{Theta: 1, Alpha: 1, Beta: math.NaN()}
	_, ok = Compute(b, baseline.Stats{SigmaRaw: 1})
	assert.False(t, ok)
}

func TestScoreMonotoneAndBounded(t *testing.T) {
	bases := []baseline.Stats{
		{MuRaw: 1, SigmaRaw: 0.5},
		{MuRaw: 0.2, SigmaRaw: 0},
		{MuRaw: 10, SigmaRaw: 100},
	}
	for _, base := range bases {
		prev := -1
		for raw := 0.0; raw < 20; raw += 0.01 {
			b := eeg.Bands{Delta: 1, Theta: 1, Alpha: 1, Beta: 2 * raw, Gamma: 1}
			r, ok := Compute(b, base)
			require.True(t, ok)
			require.GreaterOrEqual(t, r.Score, 0)
			require.LessOrEqual(t, r.Score, 100)
			require.GreaterOrEqual(t, r.Score, prev, "score decreased at raw=%v", raw)
			prev = r.Score
		}
	}
}

func TestFromZExtremes(t *testing.T) {
	assert.Equal(t, 100, FromZ(math.Inf(1)))
	assert.Equal(t, 0, FromZ(math.Inf(-1)))
	assert.Equal(t, 50, FromZ(0))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, LabelHigh, Classify(1.0))
	assert.Equal(t, LabelNeutral, Classify(0.99))
	assert.Equal(t, LabelNeutral, Classify(-0.99))
	assert.Equal(t, LabelLow, Classify(-1.0))
}
