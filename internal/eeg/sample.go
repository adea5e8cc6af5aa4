// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package eeg

import "math"

// Epsilon guards every division by a baseline spread or band sum.
const Epsilon = 1e-12

// Frame is a block of newly arrived samples, indexed by channel.
// Every channel holds the same number of samples; a frame may be empty.
type Frame [][]float64

// Columns returns the number of samples per channel. For a ragged frame
// it is the length of the longest channel.
func (f Frame) Columns() int {
	n := 0
	for _, row := range f {
		n = max(n, len(row))
	}
	return n
}

// Window is a fixed-length slice of samples taken from the front of the
// accumulation buffer. Start is the global index of its first column.
type Window struct {
	Start int64
	Data  [][]float64 // channel-major, owned by the window
}

// Columns returns the number of samples per channel.
func (w Window) Columns() int {
	if len(w.Data) == 0 {
		return 0
	}
	return len(w.Data[0])
}

// Clone returns a deep copy of the window.
func (w Window) Clone() Window {
	out := Window{Start: w.Start, Data: make([][]float64, len(w.Data))}
	for ch, row := range w.Data {
		out.Data[ch] = append([]float64(nil), row...)
	}
	return out
}

// Finite reports whether every sample in the window is a finite number.
func (w Window) Finite() bool {
	for _, row := range w.Data {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Bands holds the average power per frequency band over all channels.
type Bands struct {
	Delta float64 `json:"delta"`
	Theta float64 `json:"theta"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Slice returns the bands in delta..gamma order.
func (b Bands) Slice() []float64 {
	return []float64{b.Delta, b.Theta, b.Alpha, b.Beta, b.Gamma}
}

// Total is the sum of all five band powers.
func (b Bands) Total() float64 {
	return b.Delta + b.Theta + b.Alpha + b.Beta + b.Gamma
}

// Valid reports whether every band power is finite and strictly positive.
func (b Bands) Valid() bool {
	for _, v := range b.Slice() {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	return true
}

// RawRatio is beta / (alpha + theta), the attention proxy feature.
func (b Bands) RawRatio() float64 {
	return b.Beta / (b.Alpha + b.Theta + Epsilon)
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
