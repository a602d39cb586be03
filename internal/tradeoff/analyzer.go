package tradeoff

import (
	"errors"
	"fmt"
	"log"
	"math"

	"iaq-analysis/internal/bounds"
	"iaq-analysis/internal/scenario/domain"
)

var (
	// ErrInvalidParams is returned when fan-law constants are unusable.
	ErrInvalidParams = errors.New("tradeoff: invalid parameters")
	// ErrUnknownFilter is returned when no pressure-drop constants exist for a filter type.
	ErrUnknownFilter = errors.New("tradeoff: no pressure constants for filter")
)

// PressureDrop holds clean and end-of-life filter resistance in pascals.
type PressureDrop struct {
	Initial float64 `json:"initial"`
	Loaded  float64 `json:"loaded"`
}

// Params are the fan-law approximation constants.
type Params struct {
	HoursPerYear float64
	// SystemStaticBudget is the fan's available static pressure in pascals.
	SystemStaticBudget float64
	PressureDrops      map[domain.FilterType]PressureDrop
	// LoadingFactors place a mode between clean (0) and loaded (1).
	LoadingFactors map[domain.Mode]float64
	// Widening is the fractional half-width applied per mode.
	Widening          map[domain.Mode]float64
	MaxAirflowPenalty float64
	EnergyMultiplier  float64
	MaxEnergyPenalty  float64
}

// DefaultParams returns residential HVAC defaults.
func DefaultParams() Params {
	return Params{
		HoursPerYear:       8760,
		SystemStaticBudget: 1000,
		PressureDrops: map[domain.FilterType]PressureDrop{
			domain.FilterHEPA: {Initial: 250, Loaded: 500},
			domain.FilterMERV: {Initial: 100, Loaded: 200},
		},
		LoadingFactors: map[domain.Mode]float64{
			domain.ModeActive:   0.5,
			domain.ModeAlwaysOn: 0.75,
		},
		Widening: map[domain.Mode]float64{
			domain.ModeActive:   0.05,
			domain.ModeAlwaysOn: 0.10,
		},
		MaxAirflowPenalty: 50,
		EnergyMultiplier:  2,
		MaxEnergyPenalty:  100,
	}
}

// Validate checks the constants.
func (p Params) Validate() error {
	if !(p.HoursPerYear > 0) {
		return fmt.Errorf("%w: hours per year must be > 0", ErrInvalidParams)
	}
	if !(p.SystemStaticBudget > 0) {
		return fmt.Errorf("%w: system static budget must be > 0", ErrInvalidParams)
	}
	for ft, pd := range p.PressureDrops {
		if pd.Initial < 0 || pd.Loaded < pd.Initial {
			return fmt.Errorf("%w: %s pressure drop initial=%g loaded=%g", ErrInvalidParams, ft, pd.Initial, pd.Loaded)
		}
	}
	for mode, w := range p.Widening {
		if w < 0 || w >= 1 {
			return fmt.Errorf("%w: %s widening %g outside [0,1)", ErrInvalidParams, mode, w)
		}
	}
	return nil
}

// ReplacementsPerYear annualizes the replacement interval. A NaN or
// non-positive interval yields NaN.
func ReplacementsPerYear(hoursPerYear, filterReplaced float64) float64 {
	if math.IsNaN(filterReplaced) || filterReplaced <= 0 {
		return math.NaN()
	}
	return hoursPerYear / filterReplaced
}

// AirflowPenalty is the fan-law airflow loss in percent for a pressure drop
// against the static budget. Drops at or beyond the budget saturate at 50%.
func AirflowPenalty(pressureDrop, budget float64) float64 {
	if pressureDrop <= 0 {
		return 0
	}
	if pressureDrop >= budget {
		return 50
	}
	return 100 * (1 - math.Sqrt(1-pressureDrop/budget))
}

// Row is the physical tradeoff of one configuration.
type Row struct {
	Location            string            `json:"location"`
	FilterType          domain.FilterType `json:"filter_type"`
	Mode                domain.Mode       `json:"mode"`
	FilterReplaced      bounds.Metric     `json:"filter_replaced_hours"`
	ReplacementsPerYear bounds.Metric     `json:"estimated_replacements_per_year"`
	PressureDrop        float64           `json:"pressure_drop_pa"`
	AirflowPenalty      bounds.Metric     `json:"airflow_penalty_percent"`
	EnergyPenalty       bounds.Metric     `json:"energy_penalty_percent"`
}

// Result is the tradeoff table plus skipped configurations.
type Result struct {
	Rows    []Row
	Skipped []domain.Configuration
}

// Analyzer computes the physical tradeoff table.
type Analyzer struct {
	params Params
	logger *log.Logger
}

// NewAnalyzer validates params and constructs an Analyzer.
func NewAnalyzer(params Params, logger *log.Logger) (*Analyzer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{params: params, logger: logger}, nil
}

// Analyze produces one row per configuration with both envelopes present.
func (a *Analyzer) Analyze(table *domain.Table) (*Result, error) {
	out := &Result{}
	if table == nil {
		return out, nil
	}
	for _, cfg := range table.Configurations() {
		tight, leaky, err := table.Pair(cfg)
		if err != nil {
			a.skip(out, cfg, err)
			continue
		}
		row, err := a.row(cfg, tight, leaky)
		if err != nil {
			a.skip(out, cfg, err)
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func (a *Analyzer) row(cfg domain.Configuration, tight, leaky *domain.ScenarioRun) (Row, error) {
	pd, ok := a.params.PressureDrops[cfg.FilterType]
	if !ok {
		return Row{}, fmt.Errorf("%w: %s", ErrUnknownFilter, cfg.FilterType)
	}
	load := a.params.LoadingFactors[cfg.Mode]
	dp := pd.Initial + load*(pd.Loaded-pd.Initial)
	penalty := AirflowPenalty(dp, a.params.SystemStaticBudget)
	w := a.params.Widening[cfg.Mode]

	airflow := bounds.Metric{
		Mean:  penalty,
		Lower: penalty * (1 - w),
		Upper: penalty * (1 + w),
	}.Clamp(0, a.params.MaxAirflowPenalty)
	energy := airflow.Scale(a.params.EnergyMultiplier).Clamp(0, a.params.MaxEnergyPenalty)

	hpy := a.params.HoursPerYear
	return Row{
		Location:       cfg.Location,
		FilterType:     cfg.FilterType,
		Mode:           cfg.Mode,
		FilterReplaced: bounds.FromPair(tight.FilterReplaced, leaky.FilterReplaced),
		ReplacementsPerYear: bounds.FromPair(
			ReplacementsPerYear(hpy, tight.FilterReplaced),
			ReplacementsPerYear(hpy, leaky.FilterReplaced),
		),
		PressureDrop:   dp,
		AirflowPenalty: airflow,
		EnergyPenalty:  energy,
	}, nil
}

func (a *Analyzer) skip(out *Result, cfg domain.Configuration, err error) {
	out.Skipped = append(out.Skipped, cfg)
	if a.logger != nil {
		a.logger.Printf("tradeoff: skipping configuration location=%s filter=%s mode=%s: %v", cfg.Location, cfg.FilterType, cfg.Mode, err)
	}
}
