package exposure

import (
	"errors"
	"fmt"
	"math"

	"iaq-analysis/internal/aqi"
	"iaq-analysis/internal/scenario/domain"
)

// Row is the hours-in-category tally for one run.
type Row struct {
	Location   string            `json:"location"`
	Leakage    domain.Leakage    `json:"leakage"`
	FilterType domain.FilterType `json:"filter_type"`
	Scenario   domain.Mode       `json:"scenario"`
	Hours      aqi.Counts        `json:"hours"`
	TotalHours int               `json:"total_hours"`
}

// Key returns the run identity of the row.
func (r Row) Key() domain.RunKey {
	return domain.RunKey{
		Configuration: domain.Configuration{Location: r.Location, FilterType: r.FilterType, Mode: r.Scenario},
		Leakage:       r.Leakage,
	}
}

// HoursAboveGood is the number of hours worse than Good.
func (r Row) HoursAboveGood() int { return r.Hours.AtLeast(aqi.Moderate) }

// Table is the health exposure output.
type Table struct {
	Rows  []Row
	index map[domain.RunKey]int
}

// Lookup returns the row for a run key.
func (t *Table) Lookup(key domain.RunKey) (Row, bool) {
	if t == nil {
		return Row{}, false
	}
	i, ok := t.index[key]
	if !ok {
		return Row{}, false
	}
	return t.Rows[i], true
}

// Pair returns the tight and leaky rows of a configuration.
func (t *Table) Pair(cfg domain.Configuration) (tight, leaky Row, ok bool) {
	tight, okT := t.Lookup(domain.RunKey{Configuration: cfg, Leakage: domain.LeakageTight})
	leaky, okL := t.Lookup(domain.RunKey{Configuration: cfg, Leakage: domain.LeakageLeaky})
	return tight, leaky, okT && okL
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRequiredFilters fixes the filter types every location/leakage must carry.
// By default the filter types present anywhere in the table are required.
func WithRequiredFilters(filters ...domain.FilterType) Option {
	return func(a *Aggregator) {
		a.requiredFilters = append([]domain.FilterType(nil), filters...)
	}
}

// Aggregator produces per-run AQI hour tallies with fail-fast validation.
type Aggregator struct {
	bp              aqi.Breakpoints
	requiredFilters []domain.FilterType
}

// NewAggregator constructs an Aggregator.
func NewAggregator(bp aqi.Breakpoints, opts ...Option) (*Aggregator, error) {
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	a := &Aggregator{bp: bp}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Aggregate tallies baseline, active and always-on runs for every location
// and envelope. Any missing or corrupt required run halts with a *ScenarioError.
func (a *Aggregator) Aggregate(table *domain.Table) (*Table, error) {
	if table == nil || table.Len() == 0 {
		return nil, ErrEmptyTable
	}
	filters := a.requiredFilters
	if len(filters) == 0 {
		filters = table.FilterTypes()
	}

	out := &Table{index: make(map[domain.RunKey]int)}
	for _, location := range table.Locations() {
		for _, leakage := range domain.Leakages {
			baseKey := domain.RunKey{
				Configuration: domain.Configuration{Location: location, FilterType: domain.FilterBaseline, Mode: domain.ModeBaseline},
				Leakage:       leakage,
			}
			if err := a.tally(table, baseKey, ErrMissingBaseline, out); err != nil {
				return nil, err
			}
			for _, filter := range filters {
				for _, mode := range domain.InterventionModes {
					key := domain.RunKey{
						Configuration: domain.Configuration{Location: location, FilterType: filter, Mode: mode},
						Leakage:       leakage,
					}
					if err := a.tally(table, key, ErrMissingScenario, out); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return out, nil
}

func (a *Aggregator) tally(table *domain.Table, key domain.RunKey, missing error, out *Table) error {
	run, ok := table.Get(key)
	if !ok {
		return scenarioError(missing, key, "")
	}
	if err := checkSeries(key, "indoor_PM25", run.IndoorPM25); err != nil {
		return err
	}
	if err := checkSeries(key, "indoor_PM10", run.IndoorPM10); err != nil {
		return err
	}
	cats, err := a.bp.Classify(run.IndoorPM25, run.IndoorPM10)
	if err != nil {
		if errors.Is(err, aqi.ErrLengthMismatch) {
			return scenarioError(domain.ErrSeriesLengthMismatch, key, err.Error())
		}
		return scenarioError(ErrNaNSeries, key, err.Error())
	}
	counts := aqi.CountHours(cats)
	out.index[key] = len(out.Rows)
	out.Rows = append(out.Rows, Row{
		Location:   key.Location,
		Leakage:    key.Leakage,
		FilterType: key.FilterType,
		Scenario:   key.Mode,
		Hours:      counts,
		TotalHours: counts.Total(),
	})
	return nil
}

func checkSeries(key domain.RunKey, column string, series []float64) error {
	if len(series) == 0 {
		return scenarioError(ErrEmptySeries, key, column)
	}
	for i, v := range series {
		if math.IsNaN(v) {
			return scenarioError(ErrNaNSeries, key, fmt.Sprintf("%s hour %d", column, i))
		}
	}
	return nil
}
