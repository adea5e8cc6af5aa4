// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package window turns a stream of variable-length sample frames into
// disjoint fixed-length analysis windows.
//
// The buffer holds at most four windows worth of columns. When a frame
// would push it past that, the oldest unconsumed columns are dropped so the
// analysis always works on fresh data; the number of dropped columns is
// reported through Stats.
package window

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

// CapacityWindows is the buffer size expressed in windows.
const CapacityWindows = 4

// ErrChannelMismatch is returned for frames whose channel layout differs
// from the one fixed by the first non-empty frame.
var ErrChannelMismatch = errors.New("frame channel layout mismatch")

// Stats counts what went through the accumulator.
type Stats struct {
	ColumnsAppended int64 `json:"columns_appended"`
	ColumnsDropped  int64 `json:"columns_dropped"`
	WindowsConsumed int64 `json:"windows_consumed"`
}

// Accumulator is a bounded FIFO column buffer. It is not safe for
// concurrent use; the processing loop owns it.
type Accumulator struct {
	windowLen int
	capacity  int

	channels int
	buf      [][]float64
	head     int64 // global column index of buf[*][0]

	stats Stats
}

// New creates an accumulator producing windows of windowLen columns.
func New(windowLen int) *Accumulator {
	if windowLen < 1 {
		windowLen = 1
	}
	return &Accumulator{
		windowLen: windowLen,
		capacity:  CapacityWindows * windowLen,
	}
}

// WindowLen returns the number of columns per window.
func (a *Accumulator) WindowLen() int { return a.windowLen }

// Capacity returns the maximum number of buffered columns.
func (a *Accumulator) Capacity() int { return a.capacity }

// Len returns the number of buffered, unconsumed columns.
func (a *Accumulator) Len() int {
	if len(a.buf) == 0 {
		return 0
	}
	return len(a.buf[0])
}

// Stats returns a snapshot of the counters.
func (a *Accumulator) Stats() Stats { return a.stats }

// Accumulate appends the frame's columns, then trims the oldest columns so
// that at most Capacity remain. Empty frames are ignored.
func (a *Accumulator) Accumulate(frame eeg.Frame) error {
	cols := frame.Columns()
	if cols == 0 {
		return nil
	}
	for ch, row := range frame {
		if len(row) != cols {
			return fmt.Errorf("%w: channel %d has %d samples, want %d", ErrChannelMismatch, ch, len(row), cols)
		}
	}
	if a.buf == nil {
		a.channels = len(frame)
		a.buf = make([][]float64, a.channels)
	} else if len(frame) != a.channels {
		return fmt.Errorf("%w: got %d channels, want %d", ErrChannelMismatch, len(frame), a.channels)
	}

	total := a.Len() + cols
	drop := total - a.capacity
	if drop < 0 {
		drop = 0
	}

	for ch := range a.buf {
		next := make([]float64, 0, min(total-drop, a.capacity))
		old := a.buf[ch]
		if drop < len(old) {
			next = append(next, old[drop:]...)
			next = append(next, frame[ch]...)
		} else {
			// the frame alone overflows; keep only its tail
			next = append(next, frame[ch][drop-len(old):]...)
		}
		a.buf[ch] = next
	}

	a.head += int64(drop)
	a.stats.ColumnsAppended += int64(cols)
	a.stats.ColumnsDropped += int64(drop)
	return nil
}

// TryConsume removes and returns the oldest WindowLen columns. It returns
// false when fewer columns are buffered.
func (a *Accumulator) TryConsume() (eeg.Window, bool) {
	if a.Len() < a.windowLen {
		return eeg.Window{}, false
	}

	w := eeg.Window{Start: a.head, Data: make([][]float64, a.channels)}
	for ch, row := range a.buf {
		w.Data[ch] = append(make([]float64, 0, a.windowLen), row[:a.windowLen]...)
		rest := make([]float64, len(row)-a.windowLen, a.capacity)
		copy(rest, row[a.windowLen:])
		a.buf[ch] = rest
	}

	a.head += int64(a.windowLen)
	a.stats.WindowsConsumed++
	return w, true
}
