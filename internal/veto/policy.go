// Package veto rejects windows whose quality features look like artefacts.
package veto

import (
	"fmt"
	"strings"
)

// Mode selects how aggressive the veto is.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeLenient Mode = "lenient"
	ModeStrict  Mode = "strict"
)

// DefaultThreshold is the base z threshold for gamma and total power.
const DefaultThreshold = 3.0

// DefaultMaxConsecutive caps how many windows in a row may be vetoed.
const DefaultMaxConsecutive = 2

// ParseMode accepts off, lenient or strict (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOff, ModeLenient, ModeStrict:
		return m, nil
	default:
		return "", fmt.Errorf("invalid veto mode %q (want off, lenient or strict)", s)
	}
}

// Decision is the outcome for one window.
type Decision struct {
	Veto   bool
	Forced bool // a tentative veto was overridden by the consecutive cap
	ZGamma float64
	ZTotal float64
}

// Policy carries the consecutive veto counter between windows. It is owned
// by the processing loop and not safe for concurrent use.
type Policy struct {
	mode           Mode
	threshold      float64
	maxConsecutive int

	consecutive int
}

// NewPolicy creates a policy. A negative cap is treated as zero, which
// disables vetoing after the counter has been reset.
func NewPolicy(mode Mode, threshold float64, maxConsecutive int) *Policy {
	return &Policy{
		mode:           mode,
		threshold:      threshold,
		maxConsecutive: max(0, maxConsecutive),
	}
}

func (p *Policy) Mode() Mode { return p.mode }

// Consecutive returns the number of vetoes since the last accepted window.
func (p *Policy) Consecutive() int { return p.consecutive }

// Tentative applies the mode rule alone, without the consecutive cap.
func (p *Policy) Tentative(zGamma, zTotal float64) bool {
	t := p.threshold
	switch p.mode {
	case ModeStrict:
		return zGamma > t || zTotal > t
	case ModeLenient:
		// isolated total-power spikes need gamma corroboration
		return zGamma > t+1 || (zTotal > t+1 && zGamma > t-0.5)
	default:
		return false
	}
}

// Decide returns the decision for a window and updates the counter.
func (p *Policy) Decide(zGamma, zTotal float64) Decision {
	d := Decision{ZGamma: zGamma, ZTotal: zTotal}
	if p.Tentative(zGamma, zTotal) {
		if p.consecutive >= p.maxConsecutive {
			d.Forced = true
		} else {
			d.Veto = true
		}
	}

	if d.Veto {
		p.consecutive++
	} else {
		p.consecutive = 0
	}
	return d
}
