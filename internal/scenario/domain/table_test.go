package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(loc string, leak Leakage, filter FilterType, mode Mode) *ScenarioRun {
	return &ScenarioRun{
		Location:       loc,
		Leakage:        leak,
		FilterType:     filter,
		Mode:           mode,
		IndoorPM25:     []float64{1, 2, 3},
		IndoorPM10:     []float64{2, 4, 6},
		OutdoorPM25:    []float64{3, 4, 5},
		OutdoorPM10:    []float64{6, 8, 10},
		AvgIndoorPM25:  math.NaN(),
		AvgIndoorPM10:  2,
		AvgOutdoorPM25: math.NaN(),
		AvgOutdoorPM10: math.NaN(),
		FilterReplaced: math.NaN(),
	}
}

func TestParseModeFoldsTriggered(t *testing.T) {
	m, err := ParseMode("Triggered")
	require.NoError(t, err)
	assert.Equal(t, ModeActive, m)

	_, err = ParseMode("sometimes")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := NewTable([]*ScenarioRun{
		run("a", LeakageTight, FilterHEPA, ModeActive),
		run("a", LeakageTight, FilterHEPA, ModeActive),
	})
	assert.ErrorIs(t, err, ErrDuplicateRun)
}

func TestNewTableRejectsInconsistentBaseline(t *testing.T) {
	_, err := NewTable([]*ScenarioRun{run("a", LeakageTight, FilterHEPA, ModeBaseline)})
	assert.ErrorIs(t, err, ErrInconsistentBaseline)

	_, err = NewTable([]*ScenarioRun{run("a", LeakageTight, FilterBaseline, ModeActive)})
	assert.ErrorIs(t, err, ErrInconsistentBaseline)
}

func TestPairReportsMissingEnvelope(t *testing.T) {
	table, err := NewTable([]*ScenarioRun{
		run("a", LeakageTight, FilterHEPA, ModeActive),
		run("a", LeakageTight, FilterBaseline, ModeBaseline),
		run("a", LeakageLeaky, FilterBaseline, ModeBaseline),
	})
	require.NoError(t, err)

	_, _, err = table.Pair(Configuration{Location: "a", FilterType: FilterHEPA, Mode: ModeActive})
	assert.ErrorIs(t, err, ErrRunNotFound)

	tight, leaky, err := table.BaselinePair("a")
	require.NoError(t, err)
	assert.Equal(t, LeakageTight, tight.Leakage)
	assert.Equal(t, LeakageLeaky, leaky.Leakage)
}

func TestConfigurationsSortedWithoutBaseline(t *testing.T) {
	table, err := NewTable([]*ScenarioRun{
		run("b", LeakageTight, FilterMERV, ModeAlwaysOn),
		run("a", LeakageLeaky, FilterHEPA, ModeAlwaysOn),
		run("a", LeakageTight, FilterHEPA, ModeActive),
		run("a", LeakageTight, FilterBaseline, ModeBaseline),
	})
	require.NoError(t, err)

	cfgs := table.Configurations()
	require.Len(t, cfgs, 3)
	assert.Equal(t, "a/hepa/active", cfgs[0].String())
	assert.Equal(t, "a/hepa/always_on", cfgs[1].String())
	assert.Equal(t, "b/merv/always_on", cfgs[2].String())
	assert.Equal(t, []string{"a", "b"}, table.Locations())
	assert.Equal(t, []FilterType{FilterHEPA, FilterMERV}, table.FilterTypes())
}

func TestFillAverages(t *testing.T) {
	r := run("a", LeakageTight, FilterHEPA, ModeActive)
	r.FillAverages()
	assert.Equal(t, 2.0, r.AvgIndoorPM25)
	assert.Equal(t, 2.0, r.AvgIndoorPM10)
	assert.Equal(t, 4.0, r.AvgOutdoorPM25)
	assert.Equal(t, 8.0, r.AvgOutdoorPM10)
	assert.True(t, math.IsNaN(NanMean([]float64{math.NaN()})))
}
