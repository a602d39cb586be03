package cost

import (
	"bytes"
	"log"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaq-analysis/internal/aqi"
	"iaq-analysis/internal/exposure"
	"iaq-analysis/internal/scenario/domain"
)

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func series(t *testing.T, pm25, pm10 []float64) Series {
	t.Helper()
	s, err := NewSeries(aqi.DefaultBreakpoints(), pm25, pm10)
	require.NoError(t, err)
	return s
}

func TestImprovedMetricSingleHourImprovementIsPositive(t *testing.T) {
	base := constant(24, 20)
	improved := constant(24, 20)
	improved[7] = 19

	est, err := ImprovedAQIHours(series(t, base, constant(24, 10)), series(t, improved, constant(24, 10)))
	require.NoError(t, err)
	assert.Greater(t, est.Value, 0.0)
	assert.Equal(t, 1, est.ImprovedHours)
	assert.Equal(t, 0.0, est.Traditional)
}

func TestImprovedMetricFloor(t *testing.T) {
	base := constant(24, 2)
	improved := constant(24, 2)
	improved[3] = 1.99

	est, err := ImprovedAQIHours(series(t, base, constant(24, 5)), series(t, improved, constant(24, 5)))
	require.NoError(t, err)
	assert.True(t, est.FloorApplied)
	assert.InDelta(t, 0.11, est.Value, 1e-12)

	same, err := ImprovedAQIHours(series(t, base, constant(24, 5)), series(t, base, constant(24, 5)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, same.Value)
	assert.False(t, same.FloorApplied)
}

func TestImprovedMetricTraditionalCrossing(t *testing.T) {
	base := []float64{20, 20, 5, 60}
	intervention := []float64{5, 8, 5, 40}
	est, err := ImprovedAQIHours(series(t, base, constant(4, 0)), series(t, intervention, constant(4, 0)))
	require.NoError(t, err)
	assert.Equal(t, 2.0, est.Traditional)
	assert.GreaterOrEqual(t, est.Value, est.Traditional)
	assert.GreaterOrEqual(t, est.Value, est.Weighted)
	assert.GreaterOrEqual(t, est.Value, est.Health)
}

func TestImprovedMetricNeverNegative(t *testing.T) {
	est, err := ImprovedAQIHours(series(t, constant(6, 5), constant(6, 5)), series(t, constant(6, 40), constant(6, 80)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, est.Value)
	assert.Less(t, est.Health, 0.0)
}

func TestImprovedMetricLengthMismatch(t *testing.T) {
	_, err := ImprovedAQIHours(series(t, constant(3, 5), constant(3, 5)), series(t, constant(2, 5), constant(2, 5)))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestPercentReductionPolicies(t *testing.T) {
	assert.Equal(t, 25.0, PercentReduction(20, 15, ZeroBaselineNaN))
	assert.True(t, math.IsNaN(PercentReduction(0, 1, ZeroBaselineNaN)))
	assert.Equal(t, 0.0, PercentReduction(0, 1, ZeroBaselineZero))
	assert.True(t, math.IsInf(PercentReduction(0, -1, ZeroBaselineInf), 1))
	assert.True(t, math.IsInf(PercentReduction(0, 1, ZeroBaselineInf), -1))

	_, err := ParseZeroBaselinePolicy("maybe")
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	p, err := ParseZeroBaselinePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ZeroBaselineNaN, p)
}

func run(leak domain.Leakage, filter domain.FilterType, mode domain.Mode, pm25 float64, cost float64) *domain.ScenarioRun {
	return &domain.ScenarioRun{
		Location:       "denver",
		Leakage:        leak,
		FilterType:     filter,
		Mode:           mode,
		IndoorPM25:     constant(24, pm25),
		IndoorPM10:     constant(24, 2*pm25),
		OutdoorPM25:    constant(24, 30),
		OutdoorPM10:    constant(24, 60),
		AvgIndoorPM25:  pm25,
		AvgIndoorPM10:  2 * pm25,
		AvgOutdoorPM25: 30,
		AvgOutdoorPM10: 60,
		TotalCost:      cost,
		FilterReplaced: 2000,
	}
}

func costTable(t *testing.T) *domain.Table {
	t.Helper()
	table, err := domain.NewTable([]*domain.ScenarioRun{
		run(domain.LeakageTight, domain.FilterBaseline, domain.ModeBaseline, 12, 0),
		run(domain.LeakageLeaky, domain.FilterBaseline, domain.ModeBaseline, 20, 0),
		// tight intervention does nothing, leaky removes 10 µg/m³
		run(domain.LeakageTight, domain.FilterHEPA, domain.ModeActive, 12, 100),
		run(domain.LeakageLeaky, domain.FilterHEPA, domain.ModeActive, 10, 120),
		run(domain.LeakageTight, domain.FilterHEPA, domain.ModeAlwaysOn, 4, 300),
	})
	require.NoError(t, err)
	return table
}

func TestAnalyzeZeroReductionIsInfinite(t *testing.T) {
	var buf bytes.Buffer
	a, err := NewAnalyzer(aqi.DefaultBreakpoints(), WithLogger(log.New(&buf, "", 0)))
	require.NoError(t, err)

	res, err := a.Analyze(costTable(t), nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]

	assert.Equal(t, domain.ModeActive, row.Mode)
	assert.Equal(t, 0.0, row.PM25Reduction.Lower)
	assert.Equal(t, 10.0, row.PM25Reduction.Upper)

	c := row.CostPerUgPM25Removed
	assert.False(t, c.IsNaN())
	assert.True(t, math.IsInf(c.Upper, 1))
	assert.False(t, math.IsInf(c.Lower, 0))
	assert.InDelta(t, 10.0, c.Lower, 1e-12)
	assert.True(t, c.Valid())

	// percent reductions use each envelope's own baseline
	assert.Equal(t, 0.0, row.PM25ReductionPercent.Lower)
	assert.Equal(t, 50.0, row.PM25ReductionPercent.Upper)

	// worst case bracket crosses envelopes: [12-12, 20-10] widened to [0, 10]
	assert.Equal(t, 0.0, row.PM25ReductionWorstCase.Lower)
	assert.Equal(t, 10.0, row.PM25ReductionWorstCase.Upper)

	assert.True(t, row.AQIHoursAvoidedTraditional.IsNaN())

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, domain.ModeAlwaysOn, res.Skipped[0].Mode)
	assert.Contains(t, buf.String(), "cost: skipping configuration location=denver filter=hepa mode=always_on")
}

func TestAnalyzeUsesHealthTableForTraditionalHours(t *testing.T) {
	table, err := domain.NewTable([]*domain.ScenarioRun{
		run(domain.LeakageTight, domain.FilterBaseline, domain.ModeBaseline, 40, 0),
		run(domain.LeakageLeaky, domain.FilterBaseline, domain.ModeBaseline, 60, 0),
		run(domain.LeakageTight, domain.FilterHEPA, domain.ModeActive, 5, 100),
		run(domain.LeakageLeaky, domain.FilterHEPA, domain.ModeActive, 20, 120),
		run(domain.LeakageTight, domain.FilterHEPA, domain.ModeAlwaysOn, 4, 300),
		run(domain.LeakageLeaky, domain.FilterHEPA, domain.ModeAlwaysOn, 6, 320),
	})
	require.NoError(t, err)
	agg, err := exposure.NewAggregator(aqi.DefaultBreakpoints())
	require.NoError(t, err)
	health, err := agg.Aggregate(table)
	require.NoError(t, err)

	a, err := NewAnalyzer(aqi.DefaultBreakpoints())
	require.NoError(t, err)
	res, err := a.Analyze(table, health)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	active := res.Rows[0]
	assert.Equal(t, domain.ModeActive, active.Mode)
	// tight: 24 hours above Good at 40 µg/m³, none at 5; leaky: 24 -> 24
	assert.Equal(t, 0.0, active.AQIHoursAvoidedTraditional.Lower)
	assert.Equal(t, 24.0, active.AQIHoursAvoidedTraditional.Upper)
	assert.True(t, active.AQIHoursAvoided.Valid())
	assert.Greater(t, active.AQIHoursAvoided.Lower, 0.0)
	assert.True(t, active.CostPerAQIHourAvoided.Valid())
	assert.Empty(t, res.Skipped)
}

func TestAnalyzeEmptyTable(t *testing.T) {
	a, err := NewAnalyzer(aqi.DefaultBreakpoints())
	require.NoError(t, err)
	_, err = a.Analyze(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyTable)

	_, err = NewAnalyzer(aqi.DefaultBreakpoints(), WithZeroBaselinePolicy("sometimes"))
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestAnalyzerReuseDoesNotLeakSeriesAcrossTables(t *testing.T) {
	clean, err := domain.NewTable([]*domain.ScenarioRun{
		run(domain.LeakageTight, domain.FilterBaseline, domain.ModeBaseline, 10, 0),
		run(domain.LeakageLeaky, domain.FilterBaseline, domain.ModeBaseline, 10, 0),
		run(domain.LeakageTight, domain.FilterHEPA, domain.ModeActive, 2, 100),
		run(domain.LeakageLeaky, domain.FilterHEPA, domain.ModeActive, 2, 100),
	})
	require.NoError(t, err)
	// same run keys, far dirtier baseline
	dirty, err := domain.NewTable([]*domain.ScenarioRun{
		run(domain.LeakageTight, domain.FilterBaseline, domain.ModeBaseline, 100, 0),
		run(domain.LeakageLeaky, domain.FilterBaseline, domain.ModeBaseline, 100, 0),
		run(domain.LeakageTight, domain.FilterHEPA, domain.ModeActive, 2, 100),
		run(domain.LeakageLeaky, domain.FilterHEPA, domain.ModeActive, 2, 100),
	})
	require.NoError(t, err)

	fresh, err := NewAnalyzer(aqi.DefaultBreakpoints())
	require.NoError(t, err)
	want, err := fresh.Analyze(dirty, nil)
	require.NoError(t, err)

	reused, err := NewAnalyzer(aqi.DefaultBreakpoints())
	require.NoError(t, err)
	first, err := reused.Analyze(clean, nil)
	require.NoError(t, err)
	got, err := reused.Analyze(dirty, nil)
	require.NoError(t, err)

	require.Len(t, got.Rows, 1)
	assert.Equal(t, want.Rows[0].AQIHoursAvoided, got.Rows[0].AQIHoursAvoided)
	assert.Equal(t, want.Rows[0].CostPerAQIHourAvoided, got.Rows[0].CostPerAQIHourAvoided)
	assert.Greater(t, got.Rows[0].AQIHoursAvoided.Mean, first.Rows[0].AQIHoursAvoided.Mean)

	// each call starts cold: four distinct runs, no hits across calls
	assert.Equal(t, uint64(4), got.CacheMisses)
	assert.Equal(t, uint64(0), got.CacheHits)
}
