package efficacy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaq-analysis/internal/bounds"
	"iaq-analysis/internal/cost"
	"iaq-analysis/internal/scenario/domain"
)

func m(lo, mean, hi float64) bounds.Metric { return bounds.Metric{Mean: mean, Lower: lo, Upper: hi} }

func costRow(location string, pm25, pm10, ce, hours bounds.Metric) cost.Row {
	return cost.Row{
		Location:              location,
		FilterType:            domain.FilterHEPA,
		Mode:                  domain.ModeActive,
		PM25ReductionPercent:  pm25,
		PM10ReductionPercent:  pm10,
		CostPerAQIHourAvoided: ce,
		AQIHoursAvoided:       hours,
	}
}

func TestWeightsMustSumToOne(t *testing.T) {
	_, err := NewScorer(Weights{PM25: 0.39, PM10: 0.20, CostEffectiveness: 0.20, AQIHours: 0.20}, nil)
	require.ErrorIs(t, err, ErrInvalidWeights)

	_, err = NewScorer(Weights{PM25: 1.2, PM10: -0.2}, nil)
	require.ErrorIs(t, err, ErrInvalidWeights)

	s, err := NewScorer(DefaultWeights(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s.Weights().Sum(), 1e-12)
}

func TestScoreRanksByMeanWithStableTies(t *testing.T) {
	a := costRow("a", m(40, 50, 60), m(20, 30, 40), m(10, 15, 20), m(100, 150, 200))
	b := costRow("b", m(10, 20, 30), m(5, 10, 15), m(30, 40, math.Inf(1)), m(10, 20, 30))
	c := costRow("c", m(40, 50, 60), m(20, 30, 40), m(10, 15, 20), m(100, 150, 200))

	s, err := NewScorer(DefaultWeights(), nil)
	require.NoError(t, err)
	rows, err := s.Score([]cost.Row{b, a, c}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "a", rows[0].Location)
	assert.Equal(t, "c", rows[1].Location)
	assert.Equal(t, "b", rows[2].Location)
	for i, row := range rows {
		assert.Equal(t, i+1, row.Rank)
		assert.GreaterOrEqual(t, row.BestCaseScore, row.MeanScore)
		assert.GreaterOrEqual(t, row.MeanScore, row.WorstCaseScore)
		assert.InDelta(t, row.BestCaseScore-row.WorstCaseScore, row.ScoreRange, 1e-12)
		assert.InDelta(t, row.ScoreRange/2, row.ScoreRangeHalf, 1e-12)
	}
	assert.Equal(t, rows[0].MeanScore, rows[1].MeanScore)

	// cost range is [10, 40]; mean 15 inverts to 100 - 100*5/30
	assert.InDelta(t, 100-100*5.0/30, rows[0].MeanComponents.CostEffectiveness, 1e-9)
	assert.InDelta(t, 80.0, rows[0].MeanComponents.PM25, 1e-9)
	// contributions are weight x normalized and add up to the mean score
	for _, row := range rows {
		w := DefaultWeights()
		assert.InDelta(t, w.PM25*row.MeanComponents.PM25, row.MeanContributions.PM25, 1e-12)
		assert.InDelta(t, w.CostEffectiveness*row.MeanComponents.CostEffectiveness, row.MeanContributions.CostEffectiveness, 1e-12)
		cc := row.MeanContributions
		assert.InDelta(t, row.MeanScore, cc.PM25+cc.PM10+cc.CostEffectiveness+cc.AQIHours, 1e-9)
	}
	assert.InDelta(t, 0.40*80.0, rows[0].MeanContributions.PM25, 1e-9)
	// infinite cost per AQI-hour scores zero
	assert.Equal(t, 0.0, rows[2].MeanComponents.CostEffectiveness)
	assert.True(t, rows[0].UnhealthyHoursAvoided.IsNaN())
}

func TestScoreDegenerateRange(t *testing.T) {
	only := costRow("solo", m(10, 10, 10), m(5, 5, 5), m(3, 3, 3), m(7, 7, 7))
	s, err := NewScorer(DefaultWeights(), nil)
	require.NoError(t, err)
	rows, err := s.Score([]cost.Row{only}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 50.0, rows[0].MeanScore, 1e-9)
	assert.Equal(t, 0.0, rows[0].ScoreRange)
	assert.Equal(t, 1, rows[0].Rank)
}

func TestRankPlacesNaNLast(t *testing.T) {
	rows := []Row{
		{Location: "x", MeanScore: math.NaN()},
		{Location: "y", MeanScore: 10},
		{Location: "z", MeanScore: 30},
	}
	Rank(rows)
	assert.Equal(t, []string{"z", "y", "x"}, []string{rows[0].Location, rows[1].Location, rows[2].Location})
	assert.Equal(t, 3, rows[2].Rank)
}
