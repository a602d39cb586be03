package cost

import (
	"fmt"
	"log"
	"math"
	"strings"

	"iaq-analysis/internal/aqi"
	"iaq-analysis/internal/bounds"
	"iaq-analysis/internal/exposure"
	"iaq-analysis/internal/scenario/domain"
)

// ZeroBaselinePolicy decides the percent reduction when the baseline is zero.
type ZeroBaselinePolicy string

const (
	ZeroBaselineNaN  ZeroBaselinePolicy = "nan"
	ZeroBaselineZero ZeroBaselinePolicy = "zero"
	ZeroBaselineInf  ZeroBaselinePolicy = "inf"
)

// ParseZeroBaselinePolicy normalizes a policy label. Empty means nan.
func ParseZeroBaselinePolicy(value string) (ZeroBaselinePolicy, error) {
	switch p := ZeroBaselinePolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return ZeroBaselineNaN, nil
	case ZeroBaselineNaN, ZeroBaselineZero, ZeroBaselineInf:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, value)
}

// PercentReduction is 100*(baseline-intervention)/baseline with the policy
// applied when baseline is zero.
func PercentReduction(baseline, intervention float64, policy ZeroBaselinePolicy) float64 {
	if math.IsNaN(baseline) || math.IsNaN(intervention) {
		return math.NaN()
	}
	if baseline == 0 {
		switch policy {
		case ZeroBaselineZero:
			return 0
		case ZeroBaselineInf:
			diff := baseline - intervention
			switch {
			case diff > 0:
				return math.Inf(1)
			case diff < 0:
				return math.Inf(-1)
			}
			return 0
		}
		return math.NaN()
	}
	return 100 * (baseline - intervention) / baseline
}

// Row is the cost-effectiveness of one configuration. Every bounded field
// brackets the tight and leaky realizations.
type Row struct {
	Location   string            `json:"location"`
	FilterType domain.FilterType `json:"filter_type"`
	Mode       domain.Mode       `json:"mode"`

	TotalCost bounds.Metric `json:"total_cost"`

	PM25Reduction          bounds.Metric `json:"pm25_reduction"`
	PM10Reduction          bounds.Metric `json:"pm10_reduction"`
	PM25ReductionPercent   bounds.Metric `json:"pm25_reduction_percent"`
	PM10ReductionPercent   bounds.Metric `json:"pm10_reduction_percent"`
	PM25ReductionWorstCase bounds.Metric `json:"pm25_reduction_worst_case"`

	AQIHoursAvoided            bounds.Metric `json:"aqi_hours_avoided"`
	AQIHoursAvoidedTraditional bounds.Metric `json:"aqi_hours_avoided_traditional"`

	CostPerUgPM25Removed  bounds.Metric `json:"cost_per_ug_pm25_removed"`
	CostPerUgPM10Removed  bounds.Metric `json:"cost_per_ug_pm10_removed"`
	CostPerAQIHourAvoided bounds.Metric `json:"cost_per_aqi_hour_avoided"`

	Estimates map[domain.Leakage]Estimate `json:"estimates"`
}

// Configuration returns the row key.
func (r Row) Configuration() domain.Configuration {
	return domain.Configuration{Location: r.Location, FilterType: r.FilterType, Mode: r.Mode}
}

// Result is the cost table plus the configurations that were skipped.
type Result struct {
	Rows    []Row
	Skipped []domain.Configuration

	CacheHits   uint64
	CacheMisses uint64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithZeroBaselinePolicy sets the percent-reduction policy for zero baselines.
func WithZeroBaselinePolicy(p ZeroBaselinePolicy) Option {
	return func(a *Analyzer) { a.policy = p }
}

// WithCacheSize bounds the per-analysis AQI series cache.
func WithCacheSize(size int) Option {
	return func(a *Analyzer) { a.cacheSize = size }
}

// WithLogger sets the warning sink.
func WithLogger(logger *log.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// Analyzer computes the cost-effectiveness table.
type Analyzer struct {
	bp        aqi.Breakpoints
	cacheSize int
	policy    ZeroBaselinePolicy
	logger    *log.Logger
}

// NewAnalyzer constructs an Analyzer converting concentrations to AQI with bp.
func NewAnalyzer(bp aqi.Breakpoints, opts ...Option) (*Analyzer, error) {
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{bp: bp, policy: ZeroBaselineNaN}
	for _, opt := range opts {
		opt(a)
	}
	if _, err := ParseZeroBaselinePolicy(string(a.policy)); err != nil {
		return nil, err
	}
	return a, nil
}

// Analyze produces one row per configuration holding all four of tight and
// leaky intervention and baseline runs. Incomplete configurations are logged
// and skipped. health may be nil, in which case the traditional AQI-hours
// bracket is NaN.
//
// AQI series are cached by run key only for the duration of one call, so an
// Analyzer can be reused across tables whose runs share keys.
func (a *Analyzer) Analyze(table *domain.Table, health *exposure.Table) (*Result, error) {
	if table == nil || table.Len() == 0 {
		return nil, ErrEmptyTable
	}
	cache, err := aqi.NewSeriesCache(a.bp, a.cacheSize)
	if err != nil {
		return nil, err
	}
	out := &Result{}
	for _, cfg := range table.Configurations() {
		intT, intL, err := table.Pair(cfg)
		if err != nil {
			a.skip(out, cfg, err)
			continue
		}
		baseT, baseL, err := table.BaselinePair(cfg.Location)
		if err != nil {
			a.skip(out, cfg, fmt.Errorf("baseline: %w", err))
			continue
		}
		row, err := a.row(cache, cfg, baseT, baseL, intT, intL, health)
		if err != nil {
			return nil, fmt.Errorf("cost %s: %w", cfg, err)
		}
		out.Rows = append(out.Rows, row)
	}
	out.CacheHits, out.CacheMisses = cache.Stats()
	return out, nil
}

func (a *Analyzer) row(cache *aqi.SeriesCache, cfg domain.Configuration, baseT, baseL, intT, intL *domain.ScenarioRun, health *exposure.Table) (Row, error) {
	pm25 := bounds.Pair{
		Tight: baseT.AvgIndoorPM25 - intT.AvgIndoorPM25,
		Leaky: baseL.AvgIndoorPM25 - intL.AvgIndoorPM25,
	}
	pm10 := bounds.Pair{
		Tight: baseT.AvgIndoorPM10 - intT.AvgIndoorPM10,
		Leaky: baseL.AvgIndoorPM10 - intL.AvgIndoorPM10,
	}
	totalCost := bounds.Pair{Tight: intT.TotalCost, Leaky: intL.TotalCost}

	estT, err := estimate(cache, baseT, intT)
	if err != nil {
		return Row{}, fmt.Errorf("tight: %w", err)
	}
	estL, err := estimate(cache, baseL, intL)
	if err != nil {
		return Row{}, fmt.Errorf("leaky: %w", err)
	}
	aqiHours := bounds.Pair{Tight: estT.Value, Leaky: estL.Value}

	return Row{
		Location:   cfg.Location,
		FilterType: cfg.FilterType,
		Mode:       cfg.Mode,
		TotalCost:  totalCost.Metric(),

		PM25Reduction: pm25.Metric(),
		PM10Reduction: pm10.Metric(),
		PM25ReductionPercent: bounds.FromPair(
			PercentReduction(baseT.AvgIndoorPM25, intT.AvgIndoorPM25, a.policy),
			PercentReduction(baseL.AvgIndoorPM25, intL.AvgIndoorPM25, a.policy),
		),
		PM10ReductionPercent: bounds.FromPair(
			PercentReduction(baseT.AvgIndoorPM10, intT.AvgIndoorPM10, a.policy),
			PercentReduction(baseL.AvgIndoorPM10, intL.AvgIndoorPM10, a.policy),
		),
		PM25ReductionWorstCase: bounds.Difference(
			bounds.FromPair(baseT.AvgIndoorPM25, baseL.AvgIndoorPM25),
			bounds.FromPair(intT.AvgIndoorPM25, intL.AvgIndoorPM25),
		),

		AQIHoursAvoided:            aqiHours.Metric(),
		AQIHoursAvoidedTraditional: traditionalHours(cfg, health),

		CostPerUgPM25Removed:  bounds.CostPerUnit(totalCost, pm25),
		CostPerUgPM10Removed:  bounds.CostPerUnit(totalCost, pm10),
		CostPerAQIHourAvoided: bounds.CostPerUnit(totalCost, aqiHours),

		Estimates: map[domain.Leakage]Estimate{
			domain.LeakageTight: estT,
			domain.LeakageLeaky: estL,
		},
	}, nil
}

func estimate(cache *aqi.SeriesCache, base, intervention *domain.ScenarioRun) (Estimate, error) {
	baseAQI, err := cache.Index(base.Key().String(), base.IndoorPM25, base.IndoorPM10)
	if err != nil {
		return Estimate{}, fmt.Errorf("%s: %w", base.Key(), err)
	}
	intAQI, err := cache.Index(intervention.Key().String(), intervention.IndoorPM25, intervention.IndoorPM10)
	if err != nil {
		return Estimate{}, fmt.Errorf("%s: %w", intervention.Key(), err)
	}
	return ImprovedAQIHours(
		Series{PM25: base.IndoorPM25, PM10: base.IndoorPM10, AQI: baseAQI},
		Series{PM25: intervention.IndoorPM25, PM10: intervention.IndoorPM10, AQI: intAQI},
	)
}

// traditionalHours is hours above Good in the baseline minus the intervention,
// per envelope, from the health exposure table.
func traditionalHours(cfg domain.Configuration, health *exposure.Table) bounds.Metric {
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
		float64(baseT.HoursAboveGood()-intT.HoursAboveGood()),
		float64(baseL.HoursAboveGood()-intL.HoursAboveGood()),
	)
}

func (a *Analyzer) skip(out *Result, cfg domain.Configuration, err error) {
	out.Skipped = append(out.Skipped, cfg)
	if a.logger != nil {
		a.logger.Printf("cost: skipping configuration location=%s filter=%s mode=%s: %v", cfg.Location, cfg.FilterType, cfg.Mode, err)
	}
}
