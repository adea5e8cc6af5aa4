package source

import (
	"math"
	"math/rand/v2"
)

// Synth generates EEG-like samples: theta, alpha, beta and gamma
// oscillations with a slow drift in beta so the focus score moves, plus
// noise and a DC offset per channel.
type Synth struct {
	sampleRate float64
	channels   int
	n          int64
	rng        *rand.Rand
}

// NewSynth creates a deterministic generator for the given seed.
func NewSynth(sampleRate, channels int, seed uint64) *Synth {
	return &Synth{
		sampleRate: float64(sampleRate),
		channels:   channels,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next returns one sample per channel and advances time.
func (s *Synth) Next() []float64 {
	t := float64(s.n) / s.sampleRate
	s.n++

	// beta drifts with a period of about a minute
	focus := 1 + 0.6*math.Sin(2*math.Pi*t/60)

	row := make([]float64, s.channels)
	for ch := range row {
		phase := float64(ch) * 0.7
		v := 6*math.Sin(2*math.Pi*6*t+phase) +
			10*math.Sin(2*math.Pi*10*t+phase) +
			4*focus*math.Sin(2*math.Pi*20*t+phase) +
			1*math.Sin(2*math.Pi*38*t+phase)
		row[ch] = v + 2*s.rng.NormFloat64() + 15*float64(ch+1)
	}
	return row
}

// Rows returns n consecutive samples.
func (s *Synth) Rows(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = s.Next()
	}
	return rows
}

// Emitted is the number of samples generated so far.
func (s *Synth) Emitted() int64 { return s.n }

// Skip advances time by n samples without generating them.
func (s *Synth) Skip(n int64) { s.n += n }
