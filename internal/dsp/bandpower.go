// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dsp holds the minimal signal conditioning used before scoring:
// a constant detrend and a Hann-windowed periodogram integrated over the
// classic EEG bands.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

// Band is a half-open frequency range in Hz.
type Band struct {
	Lo, Hi float64
}

// Standard band edges.
var (
	Delta = Band{1, 4}
	Theta = Band{4, 8}
	Alpha = Band{8, 13}
	Beta  = Band{13, 30}
	Gamma = Band{30, 45}
)

// Cleaner conditions a window before decomposition. Implementations must
// return a new window and leave the input untouched.
type Cleaner interface {
	Clean(w eeg.Window) eeg.Window
}

// Decomposer computes band powers for a window sampled at sampleRate.
type Decomposer interface {
	Bands(w eeg.Window, sampleRate int) eeg.Bands
}

// Detrender removes the per-channel mean.
type Detrender struct{}

func (Detrender) Clean(w eeg.Window) eeg.Window {
	out := w.Clone()
	for _, row := range out.Data {
		detrend(row)
	}
	return out
}

func detrend(row []float64) {
	if len(row) == 0 {
		return
	}
	var mean float64
	for _, v := range row {
		mean += v
	}
	mean /= float64(len(row))
	for i := range row {
		row[i] -= mean
	}
}

// Periodogram estimates band powers with a single Hann-windowed FFT per
// channel and averages them over channels. With Detrend set it removes
// the channel mean first, for windows that were not cleaned.
type Periodogram struct {
	Detrend bool

	fft   *fourier.FFT
	n     int
	taper []float64
	buf   []float64
	coeff []complex128
}

// NewPeriodogram returns a decomposer.
func NewPeriodogram(detrend bool) *Periodogram {
	return &Periodogram{Detrend: detrend}
}

func (p *Periodogram) plan(n int) {
	if p.fft != nil && p.n == n {
		return
	}
	p.n = n
	p.fft = fourier.NewFFT(n)
	p.taper = hann(n)
	p.buf = make([]float64, n)
	p.coeff = make([]complex128, n/2+1)
}

// Bands returns the average band powers. Non-finite samples produce
// non-finite powers; callers treat that as a discard.
func (p *Periodogram) Bands(w eeg.Window, sampleRate int) eeg.Bands {
	n := w.Columns()
	if n < 2 || len(w.Data) == 0 || sampleRate <= 0 {
		return eeg.Bands{}
	}
	p.plan(n)

	var sum eeg.Bands
	for _, row := range w.Data {
		copy(p.buf, row)
		if p.Detrend {
			detrend(p.buf)
		}
		for i := range p.buf {
			p.buf[i] *= p.taper[i]
		}
		p.coeff = p.fft.Coefficients(p.coeff, p.buf)

		psd := p.density(sampleRate)
		sum.Delta += integrate(psd, Delta, sampleRate, n)
		sum.Theta += integrate(psd, Theta, sampleRate, n)
		sum.Alpha += integrate(psd, Alpha, sampleRate, n)
		sum.Beta += integrate(psd, Beta, sampleRate, n)
		sum.Gamma += integrate(psd, Gamma, sampleRate, n)
	}

	ch := float64(len(w.Data))
	return eeg.Bands{
		Delta: sum.Delta / ch,
		Theta: sum.Theta / ch,
		Alpha: sum.Alpha / ch,
		Beta:  sum.Beta / ch,
		Gamma: sum.Gamma / ch,
	}
}

// density converts the FFT coefficients into a one-sided power spectral
// density.
func (p *Periodogram) density(sampleRate int) []float64 {
	var wss float64
	for _, v := range p.taper {
		wss += v * v
	}
	scale := 1 / (float64(sampleRate) * wss)

	psd := make([]float64, len(p.coeff))
	for i, c := range p.coeff {
		re, im := real(c), imag(c)
		psd[i] = (re*re + im*im) * scale
		if i > 0 && !(p.n%2 == 0 && i == len(p.coeff)-1) {
			psd[i] *= 2
		}
	}
	return psd
}

func integrate(psd []float64, b Band, sampleRate, n int) float64 {
	df := float64(sampleRate) / float64(n)
	var total float64
	for i, v := range psd {
		f := float64(i) * df
		if f >= b.Lo && f < b.Hi {
			total += v * df
		}
	}
	return total
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}
