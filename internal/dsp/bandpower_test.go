package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

func sineWindow(channels, n, sampleRate int, freq, amp, offset float64) eeg.Window {
	w := eeg.Window{Data: make([][]float64, channels)}
	for ch := range w.Data {
		row := make([]float64, n)
		for i := range row {
			row[i] = offset + amp*math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		}
		w.Data[ch] = row
	}
	return w
}

func TestDetrenderReturnsNewWindow(t *testing.T) {
	w := eeg.Window{Start: 3, Data: [][]float64{{1, 2, 3}, {10, 10, 10}}}
	out := Detrender{}.Clean(w)

	assert.Equal(t, []float64{-1, 0, 1}, out.Data[0])
	assert.Equal(t, []float64{0, 0, 0}, out.Data[1])
	assert.Equal(t, []float64{1, 2, 3}, w.Data[0], "input must not be mutated")
	assert.Equal(t, int64(3), out.Start)
}

func TestPeriodogramFindsDominantBand(t *testing.T) {
	const sr = 256
	cases := map[string]struct {
		freq float64
		pick func(eeg.Bands) float64
	}{
		"theta": {6, func(b eeg.Bands) float64 { return b.Theta }},
		"alpha": {10, func(b eeg.Bands) float64 { return b.Alpha }},
		"beta":  {20, func(b eeg.Bands) float64 { return b.Beta }},
		"gamma": {38, func(b eeg.Bands) float64 { return b.Gamma }},
	}
	p := NewPeriodogram(true)
	for name, tc := range cases {
		b := p.Bands(sineWindow(4, 5*sr, sr, tc.freq, 10, 500), sr)
		got := tc.pick(b)
		for _, v := range b.Slice() {
			assert.LessOrEqual(t, v, got, name)
		}
		assert.Greater(t, got, 0.0, name)
	}
}

func TestPeriodogramPowerScalesWithAmplitude(t *testing.T) {
	const sr = 128
	p := NewPeriodogram(false)
	small := p.Bands(sineWindow(1, 4*sr, sr, 10, 1, 0), sr)
	large := p.Bands(sineWindow(1, 4*sr, sr, 10, 2, 0), sr)
	require.Greater(t, small.Alpha, 0.0)
	assert.InDelta(t, 4.0, large.Alpha/small.Alpha, 1e-6)
}

func TestPeriodogramPropagatesNonFinite(t *testing.T) {
	const sr = 64
	w := sineWindow(2, 2*sr, sr, 10, 1, 0)
	w.Data[1][5] = math.NaN()

	b := NewPeriodogram(true).Bands(w, sr)
	assert.False(t, b.Valid())
}

func TestPeriodogramDegenerateInput(t *testing.T) {
	p := NewPeriodogram(true)
	assert.Equal(t, eeg.Bands{}, p.Bands(eeg.Window{}, 256))
	assert.Equal(t, eeg.Bands{}, p.Bands(eeg.Window{Data: [][]float64{{1}}}, 256))
}
