package efficacy

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"iaq-analysis/internal/aqi"
	"iaq-analysis/internal/bounds"
	"iaq-analysis/internal/cost"
	"iaq-analysis/internal/exposure"
	"iaq-analysis/internal/scenario/domain"
)

// ErrInvalidWeights is returned when component weights do not sum to 1.
var ErrInvalidWeights = errors.New("efficacy: weights must sum to 1")

const weightTolerance = 1e-9

// Weights are the composite score component weights.
type Weights struct {
	PM25              float64 `json:"pm25" yaml:"pm25"`
	PM10              float64 `json:"pm10" yaml:"pm10"`
	CostEffectiveness float64 `json:"cost_effectiveness" yaml:"cost_effectiveness"`
	AQIHours          float64 `json:"aqi_hours" yaml:"aqi_hours"`
}

// DefaultWeights returns 0.40/0.20/0.20/0.20.
func DefaultWeights() Weights {
	return Weights{PM25: 0.40, PM10: 0.20, CostEffectiveness: 0.20, AQIHours: 0.20}
}

// Sum adds the four weights.
func (w Weights) Sum() float64 {
	return w.PM25 + w.PM10 + w.CostEffectiveness + w.AQIHours
}

// Validate rejects negative weights and sums away from 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.PM25, w.PM10, w.CostEffectiveness, w.AQIHours} {
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("%w: negative or NaN weight %g", ErrInvalidWeights, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: got %g", ErrInvalidWeights, sum)
	}
	return nil
}

// Components are the four normalized 0..100 scores that make up a composite.
type Components struct {
	PM25              float64 `json:"pm25"`
	PM10              float64 `json:"pm10"`
	CostEffectiveness float64 `json:"cost_effectiveness"`
	AQIHours          float64 `json:"aqi_hours"`
}

// Contributions scales each normalized component by its weight. The four
// contributions sum to the composite score.
func (c Components) Contributions(w Weights) Components {
	return Components{
		PM25:              w.PM25 * c.PM25,
		PM10:              w.PM10 * c.PM10,
		CostEffectiveness: w.CostEffectiveness * c.CostEffectiveness,
		AQIHours:          w.AQIHours * c.AQIHours,
	}
}

func (c Components) sum() float64 {
	return c.PM25 + c.PM10 + c.CostEffectiveness + c.AQIHours
}

func (c Components) weighted(w Weights) float64 {
	return c.Contributions(w).sum()
}

// Row is the composite efficacy score of one configuration.
type Row struct {
	Rank       int               `json:"rank"`
	Location   string            `json:"location"`
	FilterType domain.FilterType `json:"filter_type"`
	Mode       domain.Mode       `json:"mode"`

	MeanScore      float64 `json:"mean_efficacy_score"`
	BestCaseScore  float64 `json:"best_case_score"`
	WorstCaseScore float64 `json:"worst_case_score"`
	ScoreRange     float64 `json:"score_range"`
	ScoreRangeHalf float64 `json:"score_range_half"`

	// MeanComponents are the normalized 0..100 component scores of the mean
	// metrics; MeanContributions are the same scaled by their weights.
	MeanComponents    Components `json:"mean_components"`
	MeanContributions Components `json:"mean_contributions"`
	// UnhealthyHoursAvoided counts hours at USG or worse avoided; reported, not scored.
	UnhealthyHoursAvoided bounds.Metric `json:"unhealthy_hours_avoided"`
}

// Configuration returns the row key.
func (r Row) Configuration() domain.Configuration {
	return domain.Configuration{Location: r.Location, FilterType: r.FilterType, Mode: r.Mode}
}

// Scorer ranks configurations by weighted normalized efficacy.
type Scorer struct {
	weights Weights
	logger  *log.Logger
}

// NewScorer validates weights before any scoring can run.
func NewScorer(weights Weights, logger *log.Logger) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights, logger: logger}, nil
}

// Weights returns the scorer's weights.
func (s *Scorer) Weights() Weights { return s.weights }

// Score normalizes every component against the range observed across the
// whole cost table, then scores and ranks each configuration. All rows must
// be collected before any score is final.
func (s *Scorer) Score(costRows []cost.Row, health *exposure.Table) ([]Row, error) {
	if err := s.weights.Validate(); err != nil {
		return nil, err
	}
	if len(costRows) == 0 {
		return nil, nil
	}

	pm25 := newRange(costRows, func(r cost.Row) bounds.Metric { return r.PM25ReductionPercent })
	pm10 := newRange(costRows, func(r cost.Row) bounds.Metric { return r.PM10ReductionPercent })
	ce := newRange(costRows, func(r cost.Row) bounds.Metric { return r.CostPerAQIHourAvoided })
	hours := newRange(costRows, func(r cost.Row) bounds.Metric { return r.AQIHoursAvoided })

	rows := make([]Row, 0, len(costRows))
	for _, cr := range costRows {
		mean := Components{
			PM25:              pm25.score(cr.PM25ReductionPercent.Mean, false),
			PM10:              pm10.score(cr.PM10ReductionPercent.Mean, false),
			CostEffectiveness: ce.score(cr.CostPerAQIHourAvoided.Mean, true),
			AQIHours:          hours.score(cr.AQIHoursAvoided.Mean, false),
		}
		best := Components{
			PM25:              pm25.score(cr.PM25ReductionPercent.Upper, false),
			PM10:              pm10.score(cr.PM10ReductionPercent.Upper, false),
			CostEffectiveness: ce.score(cr.CostPerAQIHourAvoided.Lower, true),
			AQIHours:          hours.score(cr.AQIHoursAvoided.Upper, false),
		}
		worst := Components{
			PM25:              pm25.score(cr.PM25ReductionPercent.Lower, false),
			PM10:              pm10.score(cr.PM10ReductionPercent.Lower, false),
			CostEffectiveness: ce.score(cr.CostPerAQIHourAvoided.Upper, true),
			AQIHours:          hours.score(cr.AQIHoursAvoided.Lower, false),
		}
		bestScore := best.weighted(s.weights)
		worstScore := worst.weighted(s.weights)
		spread := math.Abs(bestScore - worstScore)
		rows = append(rows, Row{
			Location:              cr.Location,
			FilterType:            cr.FilterType,
			Mode:                  cr.Mode,
			MeanScore:             mean.weighted(s.weights),
			BestCaseScore:         bestScore,
			WorstCaseScore:        worstScore,
			ScoreRange:            spread,
			ScoreRangeHalf:        spread / 2,
			MeanComponents:        mean,
			MeanContributions:     mean.Contributions(s.weights),
			UnhealthyHoursAvoided: unhealthyHoursAvoided(cr.Configuration(), health),
		})
	}

	Rank(rows)
	if s.logger != nil && len(rows) > 0 {
		s.logger.Printf("efficacy: scored configurations=%d top=%s score=%.2f", len(rows), rows[0].Configuration(), rows[0].MeanScore)
	}
	return rows, nil
}

// Rank stable-sorts rows by descending mean score, NaN last, and assigns
// ranks 1..N in that order.
func Rank(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].MeanScore, rows[j].MeanScore
		if math.IsNaN(a) {
			return false
		}
		if math.IsNaN(b) {
			return true
		}
		return a > b
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

// valueRange is the finite min/max of a metric across mean, lower and upper.
type valueRange struct {
	lo, hi float64
	ok     bool
}

func newRange(rows []cost.Row, field func(cost.Row) bounds.Metric) valueRange {
	r := valueRange{lo: math.Inf(1), hi: math.Inf(-1)}
	for _, row := range rows {
		m := field(row)
		for _, v := range []float64{m.Mean, m.Lower, m.Upper} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			r.lo = math.Min(r.lo, v)
			r.hi = math.Max(r.hi, v)
			r.ok = true
		}
	}
	return r
}

// score maps v linearly onto 0..100 within the range, inverted when lower is
// better. NaN scores 0; +Inf scores 0 when inverted and 100 otherwise; a
// degenerate range scores 50.
func (r valueRange) score(v float64, invert bool) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if math.IsInf(v, 0) {
		high := v > 0
		if high != invert {
			return 100
		}
		return 0
	}
	if !r.ok {
		return 0
	}
	if r.hi == r.lo {
		return 50
	}
	s := 100 * (v - r.lo) / (r.hi - r.lo)
	s = math.Max(0, math.Min(100, s))
	if invert {
		s = 100 - s
	}
	return s
}

func unhealthyHoursAvoided(cfg domain.Configuration, health *exposure.Table) bounds.Metric {
	if health == nil {
		return bounds.NaN()
	}
	intT, intL, ok := health.Pair(cfg)
	if !ok {
		return bounds.NaN()
	}
	baseT, baseL, ok := health.Pair(cfg.Baseline())
	if !ok {
		return bounds.NaN()
	}
	return bounds.FromPair(
		float64(baseT.Hours.AtLeast(aqi.USG)-intT.Hours.AtLeast(aqi.USG)),
		float64(baseL.Hours.AtLeast(aqi.USG)-intL.Hours.AtLeast(aqi.USG)),
	)
}
