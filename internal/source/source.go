// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package source provides the sample acquisition backends feeding the
// processing loop.
package source

import (
	"context"
	"errors"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

var (
	// ErrConnect wraps every failure to establish a session.
	ErrConnect = errors.New("source connect failed")
	// ErrNotConnected is returned by Read and Tag before Connect.
	ErrNotConnected = errors.New("source not connected")
)

// Source delivers sample blocks from a device or stream.
//
// Read returns whatever arrived since the previous call and never blocks
// for long; an empty frame means nothing new. Tag inserts a marker into
// the upstream stream when the backend supports it.
type Source interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (eeg.Frame, error)
	Tag(value float64) error
	SampleRate() int
	Channels() int
	Close() error
}

// RowsToFrame transposes sample rows (one value per channel) into a
// channel-major frame.
func RowsToFrame(rows [][]float64, channels int) eeg.Frame {
	if len(rows) == 0 {
		return nil
	}
	frame := make(eeg.Frame, channels)
	for ch := range frame {
		frame[ch] = make([]float64, len(rows))
	}
	for i, row := range rows {
		for ch := 0; ch < channels; ch++ {
			frame[ch][i] = row[ch]
		}
	}
	return frame
}
