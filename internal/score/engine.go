// Package score maps band powers and a baseline to a 0-100 focus score.
package score

import (
	"math"

	"github.com/relabs-tech/focus_streamer/internal/baseline"
	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

const (
	// LogisticGain is the slope of the z to score transform.
	LogisticGain = 1.2

	HighZ = 1.0
	LowZ  = -1.0
)

// Label names the focus category of a window.
type Label string

const (
	LabelHigh    Label = "High focus"
	LabelNeutral Label = "Neutral"
	LabelLow     Label = "Low focus"
)

// Result is the scored outcome of one accepted window.
type Result struct {
	Score int
	Z     float64
	Raw   float64
	Bands eeg.Bands
	Label Label
}

// Compute scores a window. It returns false when the raw ratio is not
// finite, in which case the window must be discarded.
func Compute(b eeg.Bands, base baseline.Stats) (Result, bool) {
	raw := b.RawRatio()
	if !eeg.IsFinite(raw) {
		return Result{}, false
	}
	r := Evaluate(raw, base)
	r.Bands = b
	return r, true
}

// Evaluate scores a raw ratio against the baseline.
func Evaluate(raw float64, base baseline.Stats) Result {
	z := base.ZRaw(raw)
	return Result{
		Score: FromZ(z),
		Z:     z,
		Raw:   raw,
		Label: Classify(z),
	}
}

// FromZ applies the logistic transform and rounds to [0, 100].
func FromZ(z float64) int {
	s01 := sigmoid(LogisticGain * z)
	s := int(math.Round(100 * s01))
	return min(100, max(0, s))
}

// Classify maps a z-score to a label.
func Classify(z float64) Label {
	switch {
	case z >= HighZ:
		return LabelHigh
	case z <= LowZ:
		return LabelLow
	default:
		return LabelNeutral
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
