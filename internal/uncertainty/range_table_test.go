package uncertainty

import (
	"bytes"
	"log"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaq-analysis/internal/scenario/domain"
)

func run(leak domain.Leakage, filter domain.FilterType, mode domain.Mode, indoor, cost float64) *domain.ScenarioRun {
	return &domain.ScenarioRun{
		Location: "boston", Leakage: leak, FilterType: filter, Mode: mode,
		IndoorPM25: []float64{indoor}, IndoorPM10: []float64{indoor}, OutdoorPM25: []float64{20}, OutdoorPM10: []float64{20},
		AvgIndoorPM25: indoor, AvgIndoorPM10: indoor, AvgOutdoorPM25: 20, AvgOutdoorPM10: 20,
		TotalCost: cost, FilterReplaced: math.NaN(),
	}
}

func TestBuildRowCountIsConfigurationsTimesMetrics(t *testing.T) {
	table, err := domain.NewTable([]*domain.ScenarioRun{
		run(domain.LeakageTight, domain.FilterBaseline, domain.ModeBaseline, 10, 0),
		run(domain.LeakageLeaky, domain.FilterBaseline, domain.ModeBaseline, 14, 0),
		run(domain.LeakageTight, domain.FilterHEPA, domain.ModeActive, 4, 100),
		run(domain.LeakageLeaky, domain.FilterHEPA, domain.ModeActive, 8, 140),
		run(domain.LeakageTight, domain.FilterMERV, domain.ModeAlwaysOn, 6, 50),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	metrics := []string{"avg_indoor_pm25", "total_cost", "io_ratio_pm25"}
	b, err := NewBuilder(metrics, log.New(&buf, "", 0))
	require.NoError(t, err)
	rows := b.Build(table)

	// hepa/active and merv/always_on; the baseline pair is not a configuration
	require.Len(t, rows, 2*len(metrics))
	assert.Contains(t, buf.String(), "filter=merv")
	for _, row := range rows {
		assert.NotEqual(t, domain.ModeBaseline, row.Mode)
	}

	var nanRows int
	for i, row := range rows {
		if math.IsNaN(row.RangePercent) {
			nanRows++
			assert.Equal(t, domain.FilterMERV, row.FilterType)
			assert.True(t, row.Bounds.IsNaN())
			continue
		}
		assert.True(t, row.Bounds.Valid())
		if i > 0 && !math.IsNaN(rows[i-1].RangePercent) {
			assert.GreaterOrEqual(t, rows[i-1].RangePercent, row.RangePercent)
		}
	}
	assert.Equal(t, len(metrics), nanRows)
	for _, row := range rows[len(rows)-nanRows:] {
		assert.True(t, math.IsNaN(row.RangePercent))
	}
}

func TestRowPercentAndFactor(t *testing.T) {
	cfg := domain.Configuration{Location: "x", FilterType: domain.FilterHEPA, Mode: domain.ModeActive}
	row := newRow(cfg, "avg_indoor_pm25", 4, 8)
	assert.Equal(t, 6.0, row.Bounds.Mean)
	assert.Equal(t, 4.0, row.RangeWidth)
	assert.InDelta(t, 100*4.0/6.0, row.RangePercent, 1e-12)
	assert.InDelta(t, 8.0/6.0, row.RangeFactor, 1e-12)

	zero := newRow(cfg, "total_cost", -2, 2)
	assert.Equal(t, 0.0, zero.RangePercent)
	assert.Equal(t, 1.0, zero.RangeFactor)

	neg := newRow(cfg, "total_cost", -4, -2)
	assert.InDelta(t, 100*2.0/3.0, neg.RangePercent, 1e-12)
}

func TestUnknownMetricRejected(t *testing.T) {
	_, err := NewBuilder([]string{"avg_indoor_pm25", "vibes"}, nil)
	assert.ErrorIs(t, err, ErrUnknownMetric)

	b, err := NewBuilder(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMetrics, b.Metrics())
}

func TestIORatio(t *testing.T) {
	assert.Equal(t, 0.5, ioRatio(10, 20))
	assert.True(t, math.IsNaN(ioRatio(10, 0)))
}

func TestBuildNilTable(t *testing.T) {
	b, err := NewBuilder(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, b.Build(nil))
}
