package domain

import (
	"fmt"
	"math"
	"strings"
)

// Leakage is the building-envelope assumption of a simulation run.
type Leakage string

const (
	LeakageTight Leakage = "tight"
	LeakageLeaky Leakage = "leaky"
)

// FilterType identifies the installed filter.
type FilterType string

const (
	FilterBaseline FilterType = "baseline"
	FilterHEPA     FilterType = "hepa"
	FilterMERV     FilterType = "merv"
)

// Mode is the filter operating schedule.
type Mode string

const (
	ModeBaseline Mode = "baseline"
	// ModeActive runs the filter only while outdoor pollution is elevated.
	// The input label "triggered" is a synonym.
	ModeActive   Mode = "active"
	ModeAlwaysOn Mode = "always_on"
)

// Leakages lists both envelopes in a fixed order.
var Leakages = []Leakage{LeakageTight, LeakageLeaky}

// InterventionModes lists the non-baseline operating modes.
var InterventionModes = []Mode{ModeActive, ModeAlwaysOn}

// ParseLeakage normalizes a leakage label.
func ParseLeakage(value string) (Leakage, error) {
	switch Leakage(strings.ToLower(strings.TrimSpace(value))) {
	case LeakageTight:
		return LeakageTight, nil
	case LeakageLeaky:
		return LeakageLeaky, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLeakage, value)
}

// ParseFilterType normalizes a filter label.
func ParseFilterType(value string) (FilterType, error) {
	switch FilterType(strings.ToLower(strings.TrimSpace(value))) {
	case FilterBaseline:
		return FilterBaseline, nil
	case FilterHEPA:
		return FilterHEPA, nil
	case FilterMERV:
		return FilterMERV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFilterType, value)
}

// ParseMode normalizes an operating mode label, folding "triggered" into active.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ModeBaseline):
		return ModeBaseline, nil
	case string(ModeActive), "triggered":
		return ModeActive, nil
	case string(ModeAlwaysOn), "always-on", "alwayson":
		return ModeAlwaysOn, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, value)
}

// Configuration identifies one comparable intervention, abstracting away leakage.
type Configuration struct {
	Location   string     `json:"location"`
	FilterType FilterType `json:"filter_type"`
	Mode       Mode       `json:"mode"`
}

// String renders the configuration as location/filter/mode.
func (c Configuration) String() string {
	return c.Location + "/" + string(c.FilterType) + "/" + string(c.Mode)
}

// IsBaseline reports whether this is the no-filter reference configuration.
func (c Configuration) IsBaseline() bool { return c.Mode == ModeBaseline }

// Baseline returns the reference configuration at the same location.
func (c Configuration) Baseline() Configuration {
	return Configuration{Location: c.Location, FilterType: FilterBaseline, Mode: ModeBaseline}
}

// RunKey identifies a single simulated run.
type RunKey struct {
	Configuration
	Leakage Leakage `json:"leakage"`
}

// String renders the key as location/leakage/filter/mode.
func (k RunKey) String() string {
	return k.Location + "/" + string(k.Leakage) + "/" + string(k.FilterType) + "/" + string(k.Mode)
}

// ScenarioRun is one simulated year of hourly data for a fixed key.
type ScenarioRun struct {
	Location   string
	Leakage    Leakage
	FilterType FilterType
	Mode       Mode

	IndoorPM25  []float64
	IndoorPM10  []float64
	OutdoorPM25 []float64
	OutdoorPM10 []float64

	AvgIndoorPM25  float64
	AvgIndoorPM10  float64
	AvgOutdoorPM25 float64
	AvgOutdoorPM10 float64

	TotalCost float64
	// FilterReplaced is hours between filter replacements, NaN when never replaced.
	FilterReplaced float64
}

// Key returns the run identity.
func (r *ScenarioRun) Key() RunKey {
	return RunKey{
		Configuration: r.Configuration(),
		Leakage:       r.Leakage,
	}
}

// Configuration returns the leakage-free key.
func (r *ScenarioRun) Configuration() Configuration {
	return Configuration{Location: r.Location, FilterType: r.FilterType, Mode: r.Mode}
}

// Hours returns the simulated length in samples.
func (r *ScenarioRun) Hours() int { return len(r.IndoorPM25) }

// Validate checks the baseline/filter coincidence invariant.
func (r *ScenarioRun) Validate() error {
	if r.Location == "" {
		return fmt.Errorf("%w: location", ErrMissingColumn)
	}
	if (r.Mode == ModeBaseline) != (r.FilterType == FilterBaseline) {
		return fmt.Errorf("%w: %s", ErrInconsistentBaseline, r.Key())
	}
	return nil
}

// FillAverages derives any NaN average from its hourly series.
func (r *ScenarioRun) FillAverages() {
	fill := func(avg *float64, series []float64) {
		if math.IsNaN(*avg) {
			*avg = NanMean(series)
		}
	}
	fill(&r.AvgIndoorPM25, r.IndoorPM25)
	fill(&r.AvgIndoorPM10, r.IndoorPM10)
	fill(&r.AvgOutdoorPM25, r.OutdoorPM25)
	fill(&r.AvgOutdoorPM10, r.OutdoorPM10)
}

// NanMean averages the finite-or-infinite samples, skipping NaN.
// An all-NaN or empty series yields NaN.
func NanMean(values []float64) float64 {
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
