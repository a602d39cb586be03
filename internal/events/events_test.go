package events

import (
	"bytes"
	"log"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaq-analysis/internal/scenario/domain"
)

func TestDetectFindsMaximalRuns(t *testing.T) {
	series := []float64{0, 0, 10, 10, 10, 0, 0, 12, 12, 0}
	evts := Detect(series, 5, 2, 1.5)
	require.Len(t, evts, 2)

	assert.Equal(t, 2, evts[0].Start)
	assert.Equal(t, 4, evts[0].End)
	assert.Equal(t, 3, evts[0].Duration)
	assert.Equal(t, 10.0, evts[0].PeakValue)
	assert.Equal(t, 2, evts[0].PeakTime)

	assert.Equal(t, 7, evts[1].Start)
	assert.Equal(t, 8, evts[1].End)
	assert.Equal(t, 2, evts[1].Duration)
	assert.Equal(t, 12.0, evts[1].PeakValue)
	assert.InDelta(t, 5/1.5, evts[1].Baseline, 1e-12)

	assert.Equal(t, evts, Detect(series, 5, 2, 1.5))
}

func TestDetectNeverOverlaps(t *testing.T) {
	series := []float64{9, 1, 9, 9, 1, 9, 9, 9, math.NaN(), 9, 9}
	evts := Detect(series, 5, 1, 1.5)
	require.Len(t, evts, 4)
	for i := 1; i < len(evts); i++ {
		assert.Greater(t, evts[i].Start, evts[i-1].End)
	}
}

func TestDetectMinDurationAndEmpty(t *testing.T) {
	assert.Empty(t, Detect([]float64{10, 0, 10, 0}, 5, 2, 1.5))
	assert.Empty(t, Detect(nil, 5, 2, 1.5))
	evts := Detect([]float64{0, 10, 10}, 5, 2, 1.5)
	require.Len(t, evts, 1)
	assert.Equal(t, 2, evts[0].End)
}

func TestThresholdUsesMedian(t *testing.T) {
	assert.Equal(t, 15.0, Threshold([]float64{5, 10, math.NaN(), 100}, 1.5))
	assert.True(t, math.IsNaN(Threshold([]float64{math.NaN()}, 1.5)))
}

// episode returns an outdoor series with a single plume at hours 10..13 and an
// indoor series that follows it at reduced amplitude with the given delay.
func episode(delay int, gain float64) (outdoor, indoor []float64) {
	outdoor = make([]float64, 60)
	indoor = make([]float64, 60)
	for i := range outdoor {
		outdoor[i] = 10
		indoor[i] = 5
	}
	for i, v := range []float64{30, 50, 40, 20} {
		outdoor[10+i] = v
	}
	for i, v := range []float64{30, 50, 40, 20} {
		indoor[10+delay+i] = 5 + gain*(v-10)
	}
	return outdoor, indoor
}

func TestAnalyzeCharacterizesResponse(t *testing.T) {
	outdoor, indoor := episode(1, 0.5)
	p := DefaultParams()
	evts := Detect(outdoor, 15, p.MinDuration, 1.5)
	require.Len(t, evts, 1)

	resp, err := Analyze(evts, outdoor, indoor, p)
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	er := resp.Events[0]

	assert.Equal(t, 5.0, er.IndoorBaseline)
	assert.Equal(t, 12, er.IndoorPeakTime)
	assert.Equal(t, 25.0, er.IndoorPeakValue)
	assert.Equal(t, 1.0, er.LagTime)
	assert.False(t, er.Anomalous)

	// expected = 5 + (50 - 10) = 45
	assert.InDelta(t, 100*(45.0-25.0)/45.0, er.PeakReduction, 1e-9)
	assert.False(t, math.IsNaN(er.IntegratedReduction))
	assert.True(t, er.Recovered())
	assert.Equal(t, 2.0, er.RecoveryTime)
	assert.Equal(t, 0, resp.NeverRecovered)
}

func TestRecoverySearchStartsAfterEventEnd(t *testing.T) {
	outdoor, indoor := episode(0, 0.5)
	// indoor is back at baseline on the last above-threshold outdoor hour
	indoor[13] = 5
	p := DefaultParams()
	evts := Detect(outdoor, 15, p.MinDuration, 1.5)
	require.Len(t, evts, 1)
	require.Equal(t, 13, evts[0].End)

	resp, err := Analyze(evts, outdoor, indoor, p)
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.Events[0].RecoveryTime)
}

func TestAnalyzeNeverRecoveredIsNaN(t *testing.T) {
	outdoor, indoor := episode(0, 0.5)
	for i := 12; i < len(indoor); i++ {
		indoor[i] = 20
	}
	p := DefaultParams()
	p.RecoveryLookahead = 10
	evts := Detect(outdoor, 15, p.MinDuration, 1.5)
	resp, err := Analyze(evts, outdoor, indoor, p)
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.True(t, math.IsNaN(resp.Events[0].RecoveryTime))
	assert.Equal(t, 1, resp.NeverRecovered)
	assert.True(t, math.IsNaN(resp.AvgRecoveryTime))
}

func TestAnalyzeNegativeLagIsFlagged(t *testing.T) {
	outdoor, indoor := episode(0, 0.5)
	indoor[9] = 60
	p := DefaultParams()
	p.PreWindow = 3
	evts := Detect(outdoor, 15, p.MinDuration, 1.5)
	require.Len(t, evts, 1)
	evts[0].Start = 9
	resp, err := Analyze(evts, outdoor, indoor, p)
	require.NoError(t, err)
	assert.Equal(t, -2.0, resp.Events[0].LagTime)
	assert.True(t, resp.Events[0].Anomalous)
	assert.Equal(t, 1, resp.Anomalous)
}

func TestPeakReductionClampPolicy(t *testing.T) {
	outdoor, indoor := episode(0, 2)
	evts := Detect(outdoor, 15, 2, 1.5)

	clamped := DefaultParams()
	resp, err := Analyze(evts, outdoor, indoor, clamped)
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.Events[0].PeakReduction)

	raw := DefaultParams()
	raw.ClampPeakReduction = false
	resp, err = Analyze(evts, outdoor, indoor, raw)
	require.NoError(t, err)
	assert.Less(t, resp.Events[0].PeakReduction, 0.0)
}

func TestAnalyzeRejectsLengthMismatch(t *testing.T) {
	_, err := Analyze(nil, []float64{1, 2}, []float64{1}, DefaultParams())
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestAnalyzeBoundedTakesBoundsOnAggregates(t *testing.T) {
	outdoor, tight := episode(1, 0.3)
	_, leaky := episode(1, 0.7)
	p := DefaultParams()
	evts := Detect(outdoor, 15, p.MinDuration, 1.5)

	b, err := AnalyzeBounded(evts, outdoor, tight, leaky, p)
	require.NoError(t, err)
	assert.Equal(t, b.Tight.AvgPeakReduction, b.AvgPeakReduction.Upper)
	assert.Equal(t, b.Leaky.AvgPeakReduction, b.AvgPeakReduction.Lower)
	assert.True(t, b.AvgPeakReduction.Valid())
	assert.True(t, b.AvgLagTime.Valid())
}

func TestDecayHalfLifeRecoversRate(t *testing.T) {
	indoor := make([]float64, 20)
	for i := range indoor {
		indoor[i] = 5 + 40*math.Pow(0.5, float64(i)/3)
	}
	assert.InDelta(t, 3.0, decayHalfLife(indoor, 5, 0, 19), 1e-9)
	assert.True(t, math.IsNaN(decayHalfLife(indoor, 5, 0, 1)))

	flat := []float64{6, 6, 6, 6}
	assert.True(t, math.IsNaN(decayHalfLife(flat, 5, 0, 3)))
}

func TestCrossCorrelationPeaksAtDelay(t *testing.T) {
	outdoor := make([]float64, 48)
	for i := range outdoor {
		outdoor[i] = math.Sin(float64(i)/2) + float64(i%7)
	}
	indoor := make([]float64, len(outdoor))
	for i := range indoor {
		if i >= 3 {
			indoor[i] = 0.4 * outdoor[i-3]
		}
	}
	coeffs := CrossCorrelation(outdoor, indoor, 6)
	require.Len(t, coeffs, 7)
	lag, c := PeakLag(coeffs)
	assert.Equal(t, 3, lag)
	assert.InDelta(t, 1.0, c, 1e-9)

	lag, c = PeakLag([]float64{math.NaN()})
	assert.Equal(t, -1, lag)
	assert.True(t, math.IsNaN(c))
}

func TestSummarizerCoversActiveConfigurations(t *testing.T) {
	outdoor, tight := episode(1, 0.3)
	_, leaky := episode(1, 0.6)
	run := func(leak domain.Leakage, filter domain.FilterType, mode domain.Mode, indoor []float64) *domain.ScenarioRun {
		return &domain.ScenarioRun{
			Location: "phoenix", Leakage: leak, FilterType: filter, Mode: mode,
			IndoorPM25: indoor, IndoorPM10: indoor, OutdoorPM25: outdoor, OutdoorPM10: outdoor,
		}
	}
	table, err := domain.NewTable([]*domain.ScenarioRun{
		run(domain.LeakageTight, domain.FilterBaseline, domain.ModeBaseline, outdoor),
		run(domain.LeakageLeaky, domain.FilterBaseline, domain.ModeBaseline, outdoor),
		run(domain.LeakageTight, domain.FilterHEPA, domain.ModeActive, tight),
		run(domain.LeakageLeaky, domain.FilterHEPA, domain.ModeActive, leaky),
		run(domain.LeakageTight, domain.FilterMERV, domain.ModeActive, tight),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	rows, err := NewSummarizer(nil, log.New(&buf, "", 0)).Summarize(table)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, domain.FilterHEPA, row.FilterType)
		assert.Equal(t, 1, row.EventCount)
		assert.True(t, row.AvgPeakReduction.Valid())
	}
	assert.Equal(t, PM25, rows[0].Pollutant)
	assert.Equal(t, PM10, rows[1].Pollutant)
	assert.Contains(t, buf.String(), "filter=merv")
}
