package jsonfile

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaq-analysis/internal/scenario/domain"
)

const sample = `{"runs": [
 {"location": "denver", "leakage": "tight", "filter_type": "baseline", "mode": "baseline",
  "indoor_pm25": [10, 20], "indoor_pm10": [20, 40], "outdoor_pm25": [30, 30], "outdoor_pm10": [60, 60],
  "total_cost": 0, "filter_replaced": null},
 {"location": "denver", "leakage": "leaky", "filter_type": "HEPA", "mode": "triggered",
  "indoor_pm25": [4, null], "indoor_pm10": [8, 8], "outdoor_pm25": [30, 30], "outdoor_pm10": [60, 60],
  "avg_indoor_pm25": 4.5, "total_cost": 120.5, "filter_replaced": 2190}
]}`

func TestDecodeNormalizesLabelsAndNulls(t *testing.T) {
	table, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	base, ok := table.Get(domain.RunKey{
		Configuration: domain.Configuration{Location: "denver", FilterType: domain.FilterBaseline, Mode: domain.ModeBaseline},
		Leakage:       domain.LeakageTight,
	})
	require.True(t, ok)
	assert.True(t, math.IsNaN(base.FilterReplaced))
	assert.Equal(t, 15.0, base.AvgIndoorPM25)
	assert.Equal(t, 30.0, base.AvgIndoorPM10)

	active, ok := table.Get(domain.RunKey{
		Configuration: domain.Configuration{Location: "denver", FilterType: domain.FilterHEPA, Mode: domain.ModeActive},
		Leakage:       domain.LeakageLeaky,
	})
	require.True(t, ok)
	assert.True(t, math.IsNaN(active.IndoorPM25[1]))
	assert.Equal(t, 4.5, active.AvgIndoorPM25)
	assert.Equal(t, 2190.0, active.FilterReplaced)
}

func TestDecodeMissingColumn(t *testing.T) {
	doc := `{"runs": [{"location": "x", "leakage": "tight", "filter_type": "hepa", "mode": "active",
	  "indoor_pm25": [1], "indoor_pm10": [1], "outdoor_pm25": [1], "total_cost": 1}]}`
	_, err := Decode(strings.NewReader(doc))
	require.ErrorIs(t, err, domain.ErrMissingColumn)
	assert.Contains(t, err.Error(), "outdoor_pm10")
}

func TestDecodeRejectsBadLabels(t *testing.T) {
	doc := strings.Replace(sample, `"leakage": "tight"`, `"leakage": "drafty"`, 1)
	_, err := Decode(strings.NewReader(doc))
	assert.ErrorIs(t, err, domain.ErrInvalidLeakage)
}

func TestSaveThenLoad(t *testing.T) {
	table, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "runs.json")
	require.NoError(t, Save(path, table.Runs()))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, table.Len(), loaded.Len())
	for _, run := range table.Runs() {
		got, ok := loaded.Get(run.Key())
		require.True(t, ok)
		assert.Equal(t, run.TotalCost, got.TotalCost)
		assert.Equal(t, len(run.IndoorPM25), len(got.IndoorPM25))
		assert.Equal(t, math.IsNaN(run.FilterReplaced), math.IsNaN(got.FilterReplaced))
	}
}
