package events

import (
	"errors"
	"fmt"
	"math"

	"iaq-analysis/internal/bounds"
)

var (
	// ErrInvalidParams is returned when response parameters are out of range.
	ErrInvalidParams = errors.New("events: invalid parameters")
	// ErrLengthMismatch is returned when outdoor and indoor series differ in length.
	ErrLengthMismatch = errors.New("events: outdoor/indoor length mismatch")
)

// Params controls detection and response characterization.
type Params struct {
	ThresholdMultiplier float64 `json:"threshold_multiplier"`
	MinDuration         int     `json:"min_duration"`
	PreWindow           int     `json:"pre_window"`
	Lookahead           int     `json:"lookahead"`
	RecoveryFactor      float64 `json:"recovery_factor"`
	RecoveryLookahead   int     `json:"recovery_lookahead"`
	ClampPeakReduction  bool    `json:"clamp_peak_reduction"`
	FitDecay            bool    `json:"fit_decay"`
	MaxCorrelationLag   int     `json:"max_correlation_lag"`
}

// DefaultParams returns the standard hourly-series settings.
func DefaultParams() Params {
	return Params{
		ThresholdMultiplier: 1.5,
		MinDuration:         2,
		PreWindow:           6,
		Lookahead:           24,
		RecoveryFactor:      1.1,
		RecoveryLookahead:   48,
		ClampPeakReduction:  true,
		FitDecay:            true,
		MaxCorrelationLag:   24,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	switch {
	case !(p.ThresholdMultiplier > 0):
		return fmt.Errorf("%w: threshold multiplier must be > 0", ErrInvalidParams)
	case p.MinDuration < 1:
		return fmt.Errorf("%w: min duration must be >= 1", ErrInvalidParams)
	case p.PreWindow < 1:
		return fmt.Errorf("%w: pre window must be >= 1", ErrInvalidParams)
	case p.Lookahead < 0 || p.RecoveryLookahead < 0 || p.MaxCorrelationLag < 0:
		return fmt.Errorf("%w: lookahead windows must be >= 0", ErrInvalidParams)
	case !(p.RecoveryFactor >= 1):
		return fmt.Errorf("%w: recovery factor must be >= 1", ErrInvalidParams)
	}
	return nil
}

// EventResponse characterizes the indoor response to one outdoor event.
type EventResponse struct {
	Event               Event   `json:"event"`
	IndoorBaseline      float64 `json:"indoor_baseline"`
	IndoorPeakTime      int     `json:"indoor_peak_time"`
	IndoorPeakValue     float64 `json:"indoor_peak_value"`
	LagTime             float64 `json:"lag_time"`
	Anomalous           bool    `json:"anomalous"`
	PeakReduction       float64 `json:"peak_reduction"`
	IntegratedReduction float64 `json:"integrated_reduction"`
	// RecoveryTime is samples after the event end until indoor falls below
	// the recovery threshold; NaN means never recovered within the window.
	RecoveryTime  float64 `json:"recovery_time"`
	DecayHalfLife float64 `json:"decay_half_life"`
}

// Recovered reports whether the indoor level returned to baseline.
func (r EventResponse) Recovered() bool { return !math.IsNaN(r.RecoveryTime) }

// Response aggregates per-event responses for one indoor series.
type Response struct {
	Events                 []EventResponse `json:"events"`
	AvgLagTime             float64         `json:"avg_lag_time"`
	AvgPeakReduction       float64         `json:"avg_peak_reduction"`
	AvgIntegratedReduction float64         `json:"avg_integrated_reduction"`
	AvgRecoveryTime        float64         `json:"avg_recovery_time"`
	AvgDecayHalfLife       float64         `json:"avg_decay_half_life"`
	NeverRecovered         int             `json:"never_recovered"`
	Anomalous              int             `json:"anomalous"`
}

// Analyze characterizes the indoor response to each outdoor event and
// averages the per-event metrics ignoring NaN.
func Analyze(evts []Event, outdoor, indoor []float64, p Params) (Response, error) {
	if len(outdoor) != len(indoor) {
		return Response{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(outdoor), len(indoor))
	}
	resp := Response{Events: make([]EventResponse, 0, len(evts))}
	for _, evt := range evts {
		if evt.Start < 0 || evt.End >= len(indoor) || evt.End < evt.Start {
			continue
		}
		er := analyzeEvent(evt, outdoor, indoor, p)
		if !er.Recovered() {
			resp.NeverRecovered++
		}
		if er.Anomalous {
			resp.Anomalous++
		}
		resp.Events = append(resp.Events, er)
	}
	resp.AvgLagTime = meanOf(resp.Events, func(r EventResponse) float64 { return r.LagTime })
	resp.AvgPeakReduction = meanOf(resp.Events, func(r EventResponse) float64 { return r.PeakReduction })
	resp.AvgIntegratedReduction = meanOf(resp.Events, func(r EventResponse) float64 { return r.IntegratedReduction })
	resp.AvgRecoveryTime = meanOf(resp.Events, func(r EventResponse) float64 { return r.RecoveryTime })
	resp.AvgDecayHalfLife = meanOf(resp.Events, func(r EventResponse) float64 { return r.DecayHalfLife })
	return resp, nil
}

func analyzeEvent(evt Event, outdoor, indoor []float64, p Params) EventResponse {
	n := len(indoor)
	nan := math.NaN()
	er := EventResponse{
		Event:               evt,
		IndoorPeakTime:      -1,
		IndoorPeakValue:     nan,
		LagTime:             nan,
		PeakReduction:       nan,
		IntegratedReduction: nan,
		RecoveryTime:        nan,
		DecayHalfLife:       nan,
	}

	preStart := evt.Start - p.PreWindow
	if preStart < 0 {
		preStart = 0
	}
	inBase := nanMean(indoor[preStart:evt.Start])
	if math.IsNaN(inBase) {
		inBase = indoor[evt.Start]
	}
	er.IndoorBaseline = inBase

	outBase := evt.Baseline
	if math.IsNaN(outBase) {
		outBase = nanMean(outdoor[preStart:evt.Start])
	}

	windowEnd := minInt(n-1, evt.End+p.Lookahead)
	peak := -1
	for i := evt.Start; i <= windowEnd; i++ {
		if math.IsNaN(indoor[i]) {
			continue
		}
		if peak < 0 || indoor[i] > indoor[peak] {
			peak = i
		}
	}
	if peak < 0 {
		return er
	}
	er.IndoorPeakTime = peak
	er.IndoorPeakValue = indoor[peak]
	er.LagTime = float64(peak - evt.PeakTime)
	er.Anomalous = peak < evt.PeakTime

	expected := inBase + (evt.PeakValue - outBase)
	if expected > 0 {
		er.PeakReduction = 100 * (expected - er.IndoorPeakValue) / expected
		if p.ClampPeakReduction && er.PeakReduction < 0 {
			er.PeakReduction = 0
		}
	}

	var outArea, inArea float64
	for i := evt.Start; i <= windowEnd; i++ {
		if !math.IsNaN(outdoor[i]) {
			outArea += math.Max(0, outdoor[i]-outBase)
		}
		if !math.IsNaN(indoor[i]) {
			inArea += math.Max(0, indoor[i]-inBase)
		}
	}
	if outArea > 0 {
		er.IntegratedReduction = 100 * (1 - inArea/outArea)
	}

	recoveredAt := -1
	if !math.IsNaN(inBase) {
		target := inBase * p.RecoveryFactor
		limit := minInt(n-1, evt.End+p.RecoveryLookahead)
		for t := evt.End + 1; t <= limit; t++ {
			if !math.IsNaN(indoor[t]) && indoor[t] < target {
				recoveredAt = t
				er.RecoveryTime = float64(t - evt.End)
				break
			}
		}
	}

	if p.FitDecay && !math.IsNaN(inBase) {
		stop := recoveredAt
		if stop < 0 {
			stop = minInt(n-1, evt.End+p.RecoveryLookahead)
		}
		er.DecayHalfLife = decayHalfLife(indoor, inBase, peak, stop)
	}
	return er
}

// decayHalfLife fits ln(indoor - base) = a - k*t over [from, to] and returns
// ln2/k. Fewer than three positive excess samples or k <= 0 yield NaN.
func decayHalfLife(indoor []float64, base float64, from, to int) float64 {
	var sx, sy, sxx, sxy float64
	var n int
	for t := from; t <= to && t < len(indoor); t++ {
		excess := indoor[t] - base
		if math.IsNaN(excess) || excess <= 0 {
			continue
		}
		x := float64(t - from)
		y := math.Log(excess)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
		n++
	}
	if n < 3 {
		return math.NaN()
	}
	fn := float64(n)
	den := fn*sxx - sx*sx
	if den == 0 {
		return math.NaN()
	}
	k := -(fn*sxy - sx*sy) / den
	if !(k > 0) {
		return math.NaN()
	}
	return math.Ln2 / k
}

// BoundedResponse runs the same analysis on tight and leaky indoor series and
// brackets the aggregates. Bounds are taken on the aggregate, not per event.
type BoundedResponse struct {
	Tight                  Response      `json:"tight"`
	Leaky                  Response      `json:"leaky"`
	AvgLagTime             bounds.Metric `json:"avg_lag_time"`
	AvgPeakReduction       bounds.Metric `json:"avg_peak_reduction"`
	AvgIntegratedReduction bounds.Metric `json:"avg_integrated_reduction"`
	AvgRecoveryTime        bounds.Metric `json:"avg_recovery_time"`
	AvgDecayHalfLife       bounds.Metric `json:"avg_decay_half_life"`
}

// AnalyzeBounded characterizes both envelopes against the same outdoor events.
func AnalyzeBounded(evts []Event, outdoor, tightIndoor, leakyIndoor []float64, p Params) (BoundedResponse, error) {
	tight, err := Analyze(evts, outdoor, tightIndoor, p)
	if err != nil {
		return BoundedResponse{}, fmt.Errorf("tight: %w", err)
	}
	leaky, err := Analyze(evts, outdoor, leakyIndoor, p)
	if err != nil {
		return BoundedResponse{}, fmt.Errorf("leaky: %w", err)
	}
	return BoundedResponse{
		Tight:                  tight,
		Leaky:                  leaky,
		AvgLagTime:             bounds.FromPair(tight.AvgLagTime, leaky.AvgLagTime),
		AvgPeakReduction:       bounds.FromPair(tight.AvgPeakReduction, leaky.AvgPeakReduction),
		AvgIntegratedReduction: bounds.FromPair(tight.AvgIntegratedReduction, leaky.AvgIntegratedReduction),
		AvgRecoveryTime:        bounds.FromPair(tight.AvgRecoveryTime, leaky.AvgRecoveryTime),
		AvgDecayHalfLife:       bounds.FromPair(tight.AvgDecayHalfLife, leaky.AvgDecayHalfLife),
	}, nil
}

func meanOf(rs []EventResponse, field func(EventResponse) float64) float64 {
	vals := make([]float64, len(rs))
	for i, r := range rs {
		vals[i] = field(r)
	}
	return nanMean(vals)
}

func nanMean(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
