package events

import (
	"fmt"
	"log"

	"iaq-analysis/internal/bounds"
	"iaq-analysis/internal/scenario/domain"
)

// Pollutant selects which indoor/outdoor series pair an event analysis uses.
type Pollutant string

const (
	PM25 Pollutant = "PM25"
	PM10 Pollutant = "PM10"
)

// Pollutants lists the analysed pollutants in report order.
var Pollutants = []Pollutant{PM25, PM10}

func (p Pollutant) series(run *domain.ScenarioRun) (outdoor, indoor []float64) {
	if p == PM10 {
		return run.OutdoorPM10, run.IndoorPM10
	}
	return run.OutdoorPM25, run.IndoorPM25
}

// SummaryRow is the configuration-level event response for one pollutant.
type SummaryRow struct {
	Location               string            `json:"location"`
	FilterType             domain.FilterType `json:"filter_type"`
	Mode                   domain.Mode       `json:"mode"`
	Pollutant              Pollutant         `json:"pollutant"`
	Threshold              float64           `json:"threshold"`
	EventCount             int               `json:"event_count"`
	AvgLagTime             bounds.Metric     `json:"avg_lag_time"`
	AvgPeakReduction       bounds.Metric     `json:"avg_peak_reduction"`
	AvgIntegratedReduction bounds.Metric     `json:"avg_integrated_reduction"`
	AvgRecoveryTime        bounds.Metric     `json:"avg_recovery_time"`
	AvgDecayHalfLife       bounds.Metric     `json:"avg_decay_half_life"`
	NeverRecovered         bounds.Metric     `json:"never_recovered"`
	Anomalous              bounds.Metric     `json:"anomalous"`
	PeakCorrelationLag     bounds.Metric     `json:"peak_correlation_lag"`
}

// ParamsFunc resolves event parameters for a location.
type ParamsFunc func(location string) Params

// Summarizer builds the event summary table over active-mode configurations.
type Summarizer struct {
	params ParamsFunc
	logger *log.Logger
}

// NewSummarizer constructs a Summarizer. A nil params func uses DefaultParams.
func NewSummarizer(params ParamsFunc, logger *log.Logger) *Summarizer {
	if params == nil {
		params = func(string) Params { return DefaultParams() }
	}
	return &Summarizer{params: params, logger: logger}
}

// Summarize detects outdoor events on the tight run's outdoor series and
// characterizes both envelopes' indoor response. Configurations without a
// complete tight/leaky pair are skipped with a warning.
func (s *Summarizer) Summarize(table *domain.Table) ([]SummaryRow, error) {
	if table == nil {
		return nil, nil
	}
	var rows []SummaryRow
	for _, cfg := range table.Configurations() {
		if cfg.Mode != domain.ModeActive {
			continue
		}
		tight, leaky, err := table.Pair(cfg)
		if err != nil {
			s.logf("events: skipping configuration location=%s filter=%s mode=%s: %v", cfg.Location, cfg.FilterType, cfg.Mode, err)
			continue
		}
		p := s.params(cfg.Location)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("location %s: %w", cfg.Location, err)
		}
		for _, pollutant := range Pollutants {
			row, err := summarizeOne(cfg, pollutant, tight, leaky, p)
			if err != nil {
				s.logf("events: skipping configuration location=%s filter=%s pollutant=%s: %v", cfg.Location, cfg.FilterType, pollutant, err)
				continue
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func summarizeOne(cfg domain.Configuration, pollutant Pollutant, tight, leaky *domain.ScenarioRun, p Params) (SummaryRow, error) {
	outdoor, tightIndoor := pollutant.series(tight)
	_, leakyIndoor := pollutant.series(leaky)
	if len(leakyIndoor) != len(outdoor) {
		return SummaryRow{}, fmt.Errorf("%w: leaky indoor %d vs outdoor %d", ErrLengthMismatch, len(leakyIndoor), len(outdoor))
	}

	threshold := Threshold(outdoor, p.ThresholdMultiplier)
	evts := Detect(outdoor, threshold, p.MinDuration, p.ThresholdMultiplier)
	resp, err := AnalyzeBounded(evts, outdoor, tightIndoor, leakyIndoor, p)
	if err != nil {
		return SummaryRow{}, err
	}

	tightLag, _ := PeakLag(CrossCorrelation(outdoor, tightIndoor, p.MaxCorrelationLag))
	leakyLag, _ := PeakLag(CrossCorrelation(outdoor, leakyIndoor, p.MaxCorrelationLag))

	return SummaryRow{
		Location:               cfg.Location,
		FilterType:             cfg.FilterType,
		Mode:                   cfg.Mode,
		Pollutant:              pollutant,
		Threshold:              threshold,
		EventCount:             len(evts),
		AvgLagTime:             resp.AvgLagTime,
		AvgPeakReduction:       resp.AvgPeakReduction,
		AvgIntegratedReduction: resp.AvgIntegratedReduction,
		AvgRecoveryTime:        resp.AvgRecoveryTime,
		AvgDecayHalfLife:       resp.AvgDecayHalfLife,
		NeverRecovered:         bounds.FromPair(float64(resp.Tight.NeverRecovered), float64(resp.Leaky.NeverRecovered)),
		Anomalous:              bounds.FromPair(float64(resp.Tight.Anomalous), float64(resp.Leaky.Anomalous)),
		PeakCorrelationLag:     bounds.FromPair(lagValue(tightLag), lagValue(leakyLag)),
	}, nil
}

func lagValue(lag int) float64 {
	if lag < 0 {
		return bounds.NaN().Mean
	}
	return float64(lag)
}

func (s *Summarizer) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
