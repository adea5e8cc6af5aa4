package pipeline

import (
	"github.com/relabs-tech/focus_streamer/internal/eeg"
	"github.com/relabs-tech/focus_streamer/internal/score"
)

// Outcome is the result of analysing one window. The concrete types are
// Accepted, DiscardedNonFinite, DiscardedInvalidBands and Vetoed.
type Outcome interface {
	outcome()
}

// Accepted carries a scored window.
type Accepted struct {
	Result score.Result
	// Forced is set when the veto cap let an artefact window through.
	Forced bool
}

// DiscardedNonFinite means the cleaned samples held NaN or Inf.
type DiscardedNonFinite struct{}

// DiscardedInvalidBands means a band power or the raw ratio was not a
// positive finite number.
type DiscardedInvalidBands struct {
	Bands eeg.Bands
}

// Vetoed means the artefact gate rejected the window.
type Vetoed struct {
	ZGamma float64
	ZTotal float64
}

func (Accepted) outcome()              {}
func (DiscardedNonFinite) outcome()    {}
func (DiscardedInvalidBands) outcome() {}
func (Vetoed) outcome()                {}
