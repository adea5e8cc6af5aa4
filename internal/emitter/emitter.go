// Package emitter serializes processing outcomes and fans them out to the
// configured sinks.
package emitter

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/baseline"
	"github.com/relabs-tech/focus_streamer/internal/score"
)

// Sink delivers one encoded message. kind is the message type.
type Sink interface {
	Write(ctx context.Context, kind string, payload []byte) error
	Close() error
	String() string
}

// Emitter holds no state besides its sinks. A failing sink is logged and
// the remaining sinks still receive the message.
type Emitter struct {
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

// New creates an emitter writing to sinks in order.
func New(logger *zap.Logger, sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, logger: logger, now: time.Now}
}

// WithClock replaces the wall clock used for the "t" field.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

func (e *Emitter) stamp() float64 {
	return float64(e.now().UnixNano()) / 1e9
}

// BaselineProgress reports calibration progress.
func (e *Emitter) BaselineProgress(ctx context.Context, elapsed time.Duration, count, target int) {
	e.emit(ctx, TypeBaselineProgress, BaselineProgress{
		Type:    TypeBaselineProgress,
		T:       e.stamp(),
		Elapsed: elapsed.Seconds(),
		Count:   count,
		Target:  target,
	})
}

// BaselineReady publishes the calibration result.
func (e *Emitter) BaselineReady(ctx context.Context, s baseline.Stats) {
	e.emit(ctx, TypeBaselineReady, BaselineReady{
		Type:       TypeBaselineReady,
		T:          e.stamp(),
		MuRaw:      s.MuRaw,
		SigmaRaw:   s.SigmaRaw,
		MuGamma:    s.MuGamma,
		SigmaGamma: s.SigmaGamma,
		MuTotal:    s.MuTotal,
		SigmaTotal: s.SigmaTotal,
	})
}

// Veto reports a rejected window.
func (e *Emitter) Veto(ctx context.Context, zGamma, zTotal float64) {
	e.emit(ctx, TypeVeto, Veto{
		Type:   TypeVeto,
		T:      e.stamp(),
		ZGamma: zGamma,
		ZTotal: zTotal,
	})
}

// Concentration publishes a scored window.
func (e *Emitter) Concentration(ctx context.Context, r score.Result) {
	e.emit(ctx, TypeConcentration, Concentration{
		Type:  TypeConcentration,
		T:     e.stamp(),
		Score: r.Score,
		Z:     r.Z,
		Raw:   r.Raw,
		Alpha: r.Bands.Alpha,
		Beta:  r.Bands.Beta,
		Theta: r.Bands.Theta,
		Gamma: r.Bands.Gamma,
		Label: string(r.Label),
	})
}

func (e *Emitter) emit(ctx context.Context, kind string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		// NaN or Inf slipped through validation
		e.logger.Error("message encode failed", zap.String("type", kind), zap.Error(err))
		return
	}
	for _, s := range e.sinks {
		if err := s.Write(ctx, kind, payload); err != nil {
			e.logger.Warn("sink write failed",
				zap.String("sink", s.String()),
				zap.String("type", kind),
				zap.Error(err))
		}
	}
}

// Close closes every sink and returns the first error.
func (e *Emitter) Close() error {
	var first error
	for _, s := range e.sinks {
		if err := s.Close(); err != nil {
			e.logger.Warn("sink close failed", zap.String("sink", s.String()), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
