package uncertainty

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"iaq-analysis/internal/bounds"
	"iaq-analysis/internal/scenario/domain"
)

// ErrUnknownMetric is returned for a metric name with no extractor.
var ErrUnknownMetric = errors.New("uncertainty: unknown metric")

// Extractor reads one scalar from a run.
type Extractor func(*domain.ScenarioRun) float64

var extractors = map[string]Extractor{
	"avg_indoor_pm25":  func(r *domain.ScenarioRun) float64 { return r.AvgIndoorPM25 },
	"avg_indoor_pm10":  func(r *domain.ScenarioRun) float64 { return r.AvgIndoorPM10 },
	"avg_outdoor_pm25": func(r *domain.ScenarioRun) float64 { return r.AvgOutdoorPM25 },
	"avg_outdoor_pm10": func(r *domain.ScenarioRun) float64 { return r.AvgOutdoorPM10 },
	"total_cost":       func(r *domain.ScenarioRun) float64 { return r.TotalCost },
	"filter_replaced":  func(r *domain.ScenarioRun) float64 { return r.FilterReplaced },
	"io_ratio_pm25":    func(r *domain.ScenarioRun) float64 { return ioRatio(r.AvgIndoorPM25, r.AvgOutdoorPM25) },
	"io_ratio_pm10":    func(r *domain.ScenarioRun) float64 { return ioRatio(r.AvgIndoorPM10, r.AvgOutdoorPM10) },
}

// DefaultMetrics is the metric list used when none is configured.
var DefaultMetrics = []string{
	"avg_indoor_pm25",
	"avg_indoor_pm10",
	"total_cost",
	"filter_replaced",
	"io_ratio_pm25",
	"io_ratio_pm10",
}

// KnownMetric reports whether name has an extractor.
func KnownMetric(name string) bool {
	_, ok := extractors[name]
	return ok
}

func ioRatio(indoor, outdoor float64) float64 {
	if math.IsNaN(indoor) || math.IsNaN(outdoor) || outdoor == 0 {
		return math.NaN()
	}
	return indoor / outdoor
}

// Row is the tight/leaky spread of one metric for one configuration.
type Row struct {
	Location     string            `json:"location"`
	FilterType   domain.FilterType `json:"filter_type"`
	Mode         domain.Mode       `json:"mode"`
	Metric       string            `json:"metric"`
	Tight        float64           `json:"tight"`
	Leaky        float64           `json:"leaky"`
	Bounds       bounds.Metric     `json:"bounds"`
	RangeWidth   float64           `json:"range_width"`
	RangePercent float64           `json:"range_percent"`
	RangeFactor  float64           `json:"range_factor"`
}

// Builder produces the range table.
type Builder struct {
	metrics []string
	logger  *log.Logger
}

// NewBuilder validates metric names up front. Empty uses DefaultMetrics.
func NewBuilder(metrics []string, logger *log.Logger) (*Builder, error) {
	if len(metrics) == 0 {
		metrics = DefaultMetrics
	}
	for _, name := range metrics {
		if !KnownMetric(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
		}
	}
	return &Builder{metrics: append([]string(nil), metrics...), logger: logger}, nil
}

// Metrics returns the configured metric names.
func (b *Builder) Metrics() []string { return b.metrics }

// Build emits exactly one row per non-baseline configuration and metric, so
// the table has len(table.Configurations())*len(metrics) rows. A configuration
// missing either envelope yields NaN rows and a warning. Rows are ordered by
// descending range percent, NaN last, ties kept in input order.
func (b *Builder) Build(table *domain.Table) []Row {
	if table == nil {
		return nil
	}
	cfgs := table.Configurations()
	rows := make([]Row, 0, len(cfgs)*len(b.metrics))
	for _, cfg := range cfgs {
		tight, leaky, err := table.Pair(cfg)
		if err != nil && b.logger != nil {
			b.logger.Printf("uncertainty: incomplete pair location=%s filter=%s mode=%s: %v", cfg.Location, cfg.FilterType, cfg.Mode, err)
		}
		for _, name := range b.metrics {
			t, l := math.NaN(), math.NaN()
			if err == nil {
				fn := extractors[name]
				t, l = fn(tight), fn(leaky)
			}
			rows = append(rows, newRow(cfg, name, t, l))
		}
	}
	SortByRangePercent(rows)
	return rows
}

func newRow(cfg domain.Configuration, metric string, tight, leaky float64) Row {
	m := bounds.FromPair(tight, leaky)
	row := Row{
		Location:   cfg.Location,
		FilterType: cfg.FilterType,
		Mode:       cfg.Mode,
		Metric:     metric,
		Tight:      tight,
		Leaky:      leaky,
		Bounds:     m,
		RangeWidth: m.Width(),
	}
	switch {
	case m.IsNaN():
		row.RangePercent = math.NaN()
		row.RangeFactor = math.NaN()
	case m.Mean == 0:
		row.RangePercent = 0
		row.RangeFactor = 1
	default:
		row.RangePercent = 100 * row.RangeWidth / math.Abs(m.Mean)
		row.RangeFactor = m.Upper / m.Mean
	}
	return row
}

// SortByRangePercent orders rows by descending range percent with NaN last.
func SortByRangePercent(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].RangePercent, rows[j].RangePercent
		if math.IsNaN(a) {
			return false
		}
		if math.IsNaN(b) {
			return true
		}
		return a > b
	})
}
