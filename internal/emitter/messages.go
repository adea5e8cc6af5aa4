// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package emitter

// Message types, carried in the "type" field of every payload.
const (
	TypeBaselineProgress = "baseline_progress"
	TypeBaselineReady    = "baseline_ready"
	TypeVeto             = "veto"
	TypeConcentration    = "concentration"
)

// BaselineProgress is sent after each accepted calibration window.
type BaselineProgress struct {
	Type    string  `json:"type"`
	T       float64 `json:"t"`
	Elapsed float64 `json:"elapsed"`
	Count   int     `json:"count"`
	Target  int     `json:"target"`
}

// BaselineReady carries the finished calibration statistics.
type BaselineReady struct {
	Type       string  `json:"type"`
	T          float64 `json:"t"`
	MuRaw      float64 `json:"mu_raw"`
	SigmaRaw   float64 `json:"sigma_raw"`
	MuGamma    float64 `json:"mu_gamma"`
	SigmaGamma float64 `json:"sigma_gamma"`
	MuTotal    float64 `json:"mu_total"`
	SigmaTotal float64 `json:"sigma_total"`
}

// Veto reports a rejected window.
type Veto struct {
	Type   string  `json:"type"`
	T      float64 `json:"t"`
	ZGamma float64 `json:"z_gamma"`
	ZTotal float64 `json:"z_total"`
}

// Concentration is one scored window.
type Concentration struct {
	Type  string  `json:"type"`
	T     float64 `json:"t"`
	Score int     `json:"score"`
	Z     float64 `json:"z"`
	Raw   float64 `json:"raw"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Theta float64 `json:"theta"`
	Gamma float64 `json:"gamma"`
	Label string  `json:"label"`
}

// Envelope decodes just the type of an inbound payload.
type Envelope struct {
	Type string  `json:"type"`
	T    float64 `json:"t"`
}
