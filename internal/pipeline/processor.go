// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pipeline runs the acquisition, calibration and scoring phases on
// a single goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/baseline"
	"github.com/relabs-tech/focus_streamer/internal/config"
	"github.com/relabs-tech/focus_streamer/internal/dsp"
	"github.com/relabs-tech/focus_streamer/internal/eeg"
	"github.com/relabs-tech/focus_streamer/internal/score"
	"github.com/relabs-tech/focus_streamer/internal/source"
	"github.com/relabs-tech/focus_streamer/internal/veto"
	"github.com/relabs-tech/focus_streamer/internal/window"
)

// pacingSlack is subtracted from the window length when pacing scored
// windows.
const pacingSlack = 50 * time.Millisecond

// errStopped reports that the stop signal fired while waiting.
var errStopped = errors.New("stopped")

// AcquisitionError is returned when the source could not be connected.
type AcquisitionError struct {
	Attempts int
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Reporter receives the outcomes the loop publishes.
type Reporter interface {
	BaselineProgress(ctx context.Context, elapsed time.Duration, count, target int)
	BaselineReady(ctx context.Context, s baseline.Stats)
	Veto(ctx context.Context, zGamma, zTotal float64)
	Concentration(ctx context.Context, r score.Result)
}

// Options are the loop parameters, normally derived from config.
type Options struct {
	WindowLength   int
	BaselineTarget int
	UseClean       bool

	VetoMode      veto.Mode
	VetoZ         float64
	MaxConsecVeto int

	ConnectRetries int
	ConnectPause   time.Duration
	BaselinePoll   time.Duration
	ScorePoll      time.Duration
	Pace           time.Duration
}

// OptionsFromConfig maps the loaded configuration onto loop options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WindowLength:   cfg.WindowLength(),
		BaselineTarget: cfg.BaselineTarget(),
		UseClean:       cfg.UseClean,
		VetoMode:       cfg.VetoMode,
		VetoZ:          cfg.VetoZ,
		MaxConsecVeto:  cfg.MaxConsecVeto,
		ConnectRetries: cfg.ConnectRetries,
		ConnectPause:   cfg.ConnectPause(),
		BaselinePoll:   cfg.BaselinePoll(),
		ScorePoll:      cfg.ScorePoll(),
		Pace:           max(0, cfg.WindowDuration()-pacingSlack),
	}
}

// Summary counts what happened to every consumed window.
type Summary struct {
	Windows    int
	Scored     int
	Vetoed     int
	Forced     int
	NonFinite  int
	BadBands   int
	ReadErrors int
}

// Processor owns the accumulation buffer, baseline and veto state. None of
// it is shared with other goroutines.
type Processor struct {
	src        source.Source
	cleaner    dsp.Cleaner
	decomposer dsp.Decomposer
	report     Reporter
	logger     *zap.Logger
	opts       Options
	now        func() time.Time

	acc     *window.Accumulator
	dropped int64
	failing int // consecutive failed reads
	summary Summary
}

// New creates a processor. cleaner is skipped when opts.UseClean is false.
func New(src source.Source, cleaner dsp.Cleaner, decomposer dsp.Decomposer,
	report Reporter, opts Options, logger *zap.Logger) *Processor {
	return &Processor{
		src:        src,
		cleaner:    cleaner,
		decomposer: decomposer,
		report:     report,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		acc:        window.New(opts.WindowLength),
	}
}

// Summary returns the window counters.
func (p *Processor) Summary() Summary { return p.summary }

// Run connects the source, calibrates and scores until ctx is cancelled.
// A stop during connect or scoring returns nil. A stop during calibration
// ends collection early: the baseline is still built from what was
// accepted, and fewer than three windows fail the run.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.connect(ctx); err != nil {
		if errors.Is(err, errStopped) {
			return nil
		}
		return err
	}

	base, err := p.calibrate(ctx)
	if err != nil {
		return err
	}
	p.report.BaselineReady(ctx, base)
	p.logger.Info("baseline ready",
		zap.Float64("mu_raw", base.MuRaw),
		zap.Float64("sigma_raw", base.SigmaRaw),
		zap.Float64("mu_gamma", base.MuGamma),
		zap.Float64("sigma_gamma", base.SigmaGamma),
		zap.Float64("mu_total", base.MuTotal),
		zap.Float64("sigma_total", base.SigmaTotal),
		zap.Bool("robust", base.Robust),
		zap.Int("accepted", base.Accepted),
		zap.Int("attempts", base.Attempts))
	if ctx.Err() != nil {
		p.logger.Info("stopped before scoring")
		return nil
	}

	p.score(ctx, base)
	s := p.summary
	p.logger.Info("scoring stopped",
		zap.Int("windows", s.Windows),
		zap.Int("scored", s.Scored),
		zap.Int("vetoed", s.Vetoed),
		zap.Int("forced", s.Forced),
		zap.Int("non_finite", s.NonFinite),
		zap.Int("bad_bands", s.BadBands))
	return nil
}

func (p *Processor) connect(ctx context.Context) error {
	attempts := max(1, p.opts.ConnectRetries)
	var err error
	for i := 1; i <= attempts; i++ {
		if err = p.src.Connect(ctx); err == nil {
			p.logger.Info("source connected",
				zap.Int("attempt", i),
				zap.Int("sample_rate", p.src.SampleRate()),
				zap.Int("channels", p.src.Channels()))
			return nil
		}
		if ctx.Err() != nil {
			return errStopped
		}
		p.logger.Warn("source connect failed", zap.Int("attempt", i), zap.Int("of", attempts), zap.Error(err))
		if i < attempts && !wait(ctx, p.opts.ConnectPause) {
			return errStopped
		}
	}
	return &AcquisitionError{Attempts: attempts, Err: err}
}

func (p *Processor) calibrate(ctx context.Context) (baseline.Stats, error) {
	cal := baseline.NewCalibrator(p.opts.BaselineTarget)
	start := p.now()
	p.logger.Info("collecting baseline",
		zap.Int("target_windows", cal.Target()),
		zap.Int("budget", cal.Budget()),
		zap.Bool("clean", p.opts.UseClean),
		zap.String("veto_mode", string(p.opts.VetoMode)),
		zap.Float64("veto_z", p.opts.VetoZ))

	for !cal.Done() {
		w, ok := p.nextWindow(ctx, p.opts.BaselinePoll)
		if !ok {
			p.logger.Info("stopped during baseline collection",
				zap.Int("accepted", cal.Accepted()), zap.Int("attempts", cal.Attempts()))
			break
		}
		bands, rejected := p.features(w)
		if rejected != nil {
			cal.Discard()
			p.logger.Debug("baseline window discarded",
				zap.String("reason", describe(rejected)), zap.Int64("start", w.Start))
			continue
		}
		n := cal.Accept(bands)
		elapsed := p.now().Sub(start)
		p.report.BaselineProgress(ctx, elapsed, n, cal.Target())
		p.logger.Info("baseline progress",
			zap.Int("count", n), zap.Int("target", cal.Target()), zap.Duration("elapsed", elapsed))
	}

	stats, err := cal.Finish()
	if err != nil {
		return baseline.Stats{}, err
	}
	return stats, nil
}

func (p *Processor) score(ctx context.Context, base baseline.Stats) {
	policy := veto.NewPolicy(p.opts.VetoMode, p.opts.VetoZ, p.opts.MaxConsecVeto)
	for {
		w, ok := p.nextWindow(ctx, p.opts.ScorePoll)
		if !ok {
			return
		}

		switch o := p.Evaluate(w, base, policy).(type) {
		case DiscardedNonFinite:
			p.summary.NonFinite++
			p.logger.Debug("window discarded", zap.String("reason", describe(o)), zap.Int64("start", w.Start))
		case DiscardedInvalidBands:
			p.summary.BadBands++
			p.logger.Debug("window discarded", zap.String("reason", describe(o)), zap.Int64("start", w.Start))
		case Vetoed:
			p.summary.Vetoed++
			p.report.Veto(ctx, o.ZGamma, o.ZTotal)
			p.logger.Info("artefact veto",
				zap.Float64("z_gamma", o.ZGamma),
				zap.Float64("z_total", o.ZTotal),
				zap.Int("consecutive", policy.Consecutive()))
		case Accepted:
			p.summary.Scored++
			if o.Forced {
				p.summary.Forced++
			}
			r := o.Result
			p.report.Concentration(ctx, r)
			p.logger.Info("concentration",
				zap.Int("score", r.Score),
				zap.Float64("z", r.Z),
				zap.Float64("raw", r.Raw),
				zap.String("label", string(r.Label)),
				zap.Bool("forced", o.Forced))
			if err := p.src.Tag(float64(r.Score)); err != nil {
				p.logger.Debug("marker insert failed", zap.Error(err))
			}
			if !wait(ctx, p.opts.Pace) {
				return
			}
		}
	}
}

// Evaluate runs validation, the veto gate and scoring for one window. The
// policy state advances only for windows that pass validation.
func (p *Processor) Evaluate(w eeg.Window, base baseline.Stats, policy *veto.Policy) Outcome {
	p.summary.Windows++
	bands, rejected := p.features(w)
	if rejected != nil {
		return rejected
	}

	d := policy.Decide(base.ZGamma(bands.Gamma), base.ZTotal(bands.Total()))
	if d.Veto {
		return Vetoed{ZGamma: d.ZGamma, ZTotal: d.ZTotal}
	}
	r, ok := score.Compute(bands, base)
	if !ok {
		return DiscardedInvalidBands{Bands: bands}
	}
	return Accepted{Result: r, Forced: d.Forced}
}

// features cleans and decomposes a window. A non-nil Outcome means the
// window must be discarded.
func (p *Processor) features(w eeg.Window) (eeg.Bands, Outcome) {
	if p.opts.UseClean && p.cleaner != nil {
		w = p.cleaner.Clean(w)
	}
	if !w.Finite() {
		return eeg.Bands{}, DiscardedNonFinite{}
	}
	bands := p.decomposer.Bands(w, p.src.SampleRate())
	if !bands.Valid() || !eeg.IsFinite(bands.RawRatio()) {
		return bands, DiscardedInvalidBands{Bands: bands}
	}
	return bands, nil
}

// nextWindow polls the source until a full window is buffered. It returns
// false once ctx is cancelled.
func (p *Processor) nextWindow(ctx context.Context, poll time.Duration) (eeg.Window, bool) {
	for {
		if ctx.Err() != nil {
			return eeg.Window{}, false
		}
		if w, ok := p.acc.TryConsume(); ok {
			return w, true
		}

		frame, err := p.src.Read(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return eeg.Window{}, false
		case err != nil:
			p.readFailed(err)
		default:
			if p.failing > 0 {
				p.logger.Info("source reads recovered", zap.Int("failed_reads", p.failing))
				p.failing = 0
			}
			p.accumulate(frame)
		}

		if w, ok := p.acc.TryConsume(); ok {
			return w, true
		}
		if !wait(ctx, poll) {
			return eeg.Window{}, false
		}
	}
}

// readFailed warns on the first error of a run of failed reads only; a
// dead port fails on every poll.
func (p *Processor) readFailed(err error) {
	p.summary.ReadErrors++
	p.failing++
	if p.failing == 1 {
		p.logger.Warn("source read failed", zap.Error(err))
		return
	}
	p.logger.Debug("source read failed", zap.Int("consecutive", p.failing), zap.Error(err))
}

func (p *Processor) accumulate(frame eeg.Frame) {
	if err := p.acc.Accumulate(frame); err != nil {
		p.logger.Warn("frame dropped", zap.Int("channels", len(frame)), zap.Error(err))
		return
	}
	if d := p.acc.Stats().ColumnsDropped; d > p.dropped {
		p.logger.Warn("buffer overflow, oldest samples dropped",
			zap.Int64("columns", d-p.dropped), zap.Int64("total", d))
		p.dropped = d
	}
}

func describe(o Outcome) string {
	switch o.(type) {
	case DiscardedNonFinite:
		return "non-finite samples"
	case DiscardedInvalidBands:
		return "invalid band powers"
	case Vetoed:
		return "artefact veto"
	default:
		return "accepted"
	}
}

// wait sleeps for d or until ctx is done; false means cancelled.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
