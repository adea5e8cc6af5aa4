// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control listens for out-of-band commands and turns a shutdown
// request into the single cancellation signal the processing loop obeys.
package control

import (
	"context"
	"sync"
	"sync/atomic"
)

// Signal is the process-wide cancellation event. Request may be called any
// number of times from any goroutine; only the first call has an effect.
type Signal struct {
	ctx    context.Context
	cancel context.CancelFunc

	once      sync.Once
	requested atomic.Bool
	reason    atomic.Pointer[string]
}

// NewSignal derives the signal from parent, so cancelling parent also
// trips it.
func NewSignal(parent context.Context) *Signal {
	ctx, cancel := context.WithCancel(parent)
	return &Signal{ctx: ctx, cancel: cancel}
}

// Context is cancelled once a stop has been requested.
func (s *Signal) Context() context.Context { return s.ctx }

// Done is closed once a stop has been requested.
func (s *Signal) Done() <-chan struct{} { return s.ctx.Done() }

// Request trips the signal.
func (s *Signal) Request(reason string) {
	s.once.Do(func() {
		s.reason.Store(&reason)
		s.requested.Store(true)
		s.cancel()
	})
}

// Requested reports whether a stop was requested through Request or the
// parent context.
func (s *Signal) Requested() bool {
	return s.requested.Load() || s.ctx.Err() != nil
}

// Reason returns the reason given to the first Request call.
func (s *Signal) Reason() string {
	if r := s.reason.Load(); r != nil {
		return *r
	}
	if s.ctx.Err() != nil {
		return "context cancelled"
	}
	return ""
}
