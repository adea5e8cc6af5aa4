// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package baseline estimates the personal reference statistics used to
// z-score windows during scoring.
package baseline

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

// AttemptFactor bounds calibration to this many consumed windows per
// target window.
const AttemptFactor = 8

// MinAccepted is the smallest sample set a baseline can be built from.
const MinAccepted = 3

// ErrCalibrationInsufficient means too few clean windows were collected.
var ErrCalibrationInsufficient = errors.New("baseline collection failed (insufficient clean windows)")

// Stats is the immutable outcome of a calibration run.
type Stats struct {
	MuRaw      float64 `json:"mu_raw"`
	SigmaRaw   float64 `json:"sigma_raw"`
	MuGamma    float64 `json:"mu_gamma"`
	SigmaGamma float64 `json:"sigma_gamma"`
	MuTotal    float64 `json:"mu_total"`
	SigmaTotal float64 `json:"sigma_total"`

	Robust   bool `json:"robust"`
	Accepted int  `json:"accepted"`
	Attempts int  `json:"attempts"`
}

// ZRaw standardizes a raw ratio against the baseline.
func (s Stats) ZRaw(raw float64) float64 { return zscore(raw, s.MuRaw, s.SigmaRaw) }

// ZGamma standardizes a gamma band power against the baseline.
func (s Stats) ZGamma(gamma float64) float64 { return zscore(gamma, s.MuGamma, s.SigmaGamma) }

// ZTotal standardizes a total band power against the baseline.
func (s Stats) ZTotal(total float64) float64 { return zscore(total, s.MuTotal, s.SigmaTotal) }

func zscore(x, mu, sigma float64) float64 {
	if sigma < eeg.Epsilon {
		sigma = eeg.Epsilon
	}
	return (x - mu) / sigma
}

// TargetWindows is the number of windows that cover the baseline period,
// never less than one.
func TargetWindows(baselineSeconds, windowSeconds int) int {
	if windowSeconds <= 0 {
		return 1
	}
	return max(1, baselineSeconds/windowSeconds)
}

// Calibrator collects accepted feature samples until the target is met or
// the attempt budget runs out. The caller feeds it one decision per
// consumed window.
type Calibrator struct {
	target int
	budget int

	attempts int
	raws     []float64
	gammas   []float64
	totals   []float64
}

// NewCalibrator creates a calibrator aiming for target accepted windows.
func NewCalibrator(target int) *Calibrator {
	target = max(1, target)
	return &Calibrator{
		target: target,
		budget: target * AttemptFactor,
		raws:   make([]float64, 0, target),
		gammas: make([]float64, 0, target),
		totals: make([]float64, 0, target),
	}
}

func (c *Calibrator) Target() int   { return c.target }
func (c *Calibrator) Budget() int   { return c.budget }
func (c *Calibrator) Attempts() int { return c.attempts }
func (c *Calibrator) Accepted() int { return len(c.raws) }

// Discard records a consumed window that failed validation.
func (c *Calibrator) Discard() {
	c.attempts++
}

// Accept records a valid window and returns the accepted count so far.
func (c *Calibrator) Accept(b eeg.Bands) int {
	c.attempts++
	c.raws = append(c.raws, b.RawRatio())
	c.gammas = append(c.gammas, b.Gamma)
	c.totals = append(c.totals, b.Total())
	return len(c.raws)
}

// Done reports whether collection should stop.
func (c *Calibrator) Done() bool {
	return len(c.raws) >= c.target || c.attempts >= c.budget
}

// Finish computes the baseline from the accepted samples. Standard
// statistics are used when at least max(3, target/2) samples were
// accepted, median/MAD when at least 3, and an error otherwise.
func (c *Calibrator) Finish() (Stats, error) {
	n := len(c.raws)
	st := Stats{Accepted: n, Attempts: c.attempts}

	switch {
	case n >= max(MinAccepted, c.target/2):
		st.MuRaw, st.SigmaRaw = meanStd(c.raws)
		st.MuGamma, st.SigmaGamma = meanStd(c.gammas)
		st.MuTotal, st.SigmaTotal = meanStd(c.totals)
	case n >= MinAccepted:
		st.Robust = true
		st.MuRaw, st.SigmaRaw = robustMeanStd(c.raws)
		st.MuGamma, st.SigmaGamma = robustMeanStd(c.gammas)
		st.MuTotal, st.SigmaTotal = robustMeanStd(c.totals)
	default:
		return Stats{}, fmt.Errorf("%w: %d accepted of %d attempts, need %d",
			ErrCalibrationInsufficient, n, c.attempts, MinAccepted)
	}
	return st, nil
}
