package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaq-analysis/internal/config"
	"iaq-analysis/internal/efficacy"
	"iaq-analysis/internal/exposure"
	"iaq-analysis/internal/scenario/domain"
	"iaq-analysis/internal/scenario/synth"
)

type recordingStore struct {
	mu    sync.Mutex
	saved []*Result
}

func (s *recordingStore) SaveAnalysis(_ context.Context, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, result)
	return nil
}

type stubReporter struct {
	err error
}

func (r stubReporter) Write(_ context.Context, result *Result) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "reports/" + result.RunID + "/report.zip", nil
}

func syntheticRuns(t *testing.T) []*domain.ScenarioRun {
	t.Helper()
	cfg := synth.DefaultConfig()
	cfg.Hours = 24 * 14
	cfg.Locations = cfg.Locations[:1]
	runs, err := synth.Generate(cfg)
	require.NoError(t, err)
	return runs
}

func TestRunProducesEveryTable(t *testing.T) {
	table, err := domain.NewTable(syntheticRuns(t))
	require.NoError(t, err)

	var logs bytes.Buffer
	store := &recordingStore{}
	runner, err := NewRunner(config.Default(), log.New(&logs, "", 0),
		WithStore(store),
		WithReporter(stubReporter{}),
		WithIDGenerator(func() string { return "run-1" }),
	)
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), table)
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 10, result.Runs)
	assert.Equal(t, 4, result.Configurations)
	assert.Len(t, result.Health.Rows, 10)
	assert.Len(t, result.Cost.Rows, 4)
	assert.Len(t, result.Tradeoff.Rows, 4)
	assert.Len(t, result.Events, 4)
	assert.Len(t, result.RangeTable, 4*6)
	require.Len(t, result.Efficacy, 4)
	for i, row := range result.Efficacy {
		assert.Equal(t, i+1, row.Rank)
	}
	assert.Equal(t, "reports/run-1/report.zip", result.ReportPath)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))

	require.Len(t, store.saved, 1)
	assert.Same(t, result, store.saved[0])

	out := logs.String()
	for _, stage := range []string{StageHealth, StageTradeoff, StageEvents, StageRangeTable, StageCost, StageEfficacy, StageReport, StagePersist} {
		assert.Contains(t, out, "event=pipeline_stage_done run_id=run-1 stage="+stage)
	}
	assert.Contains(t, out, "event=pipeline_run_success run_id=run-1")
}

func TestRunFailsFastOnMissingBaseline(t *testing.T) {
	var kept []*domain.ScenarioRun
	for _, run := range syntheticRuns(t) {
		if run.Mode == domain.ModeBaseline && run.Leakage == domain.LeakageLeaky {
			continue
		}
		kept = append(kept, run)
	}
	table, err := domain.NewTable(kept)
	require.NoError(t, err)

	store := &recordingStore{}
	runner, err := NewRunner(config.Default(), nil, WithStore(store))
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), table)
	require.ErrorIs(t, err, exposure.ErrMissingBaseline)
	var scenarioErr *exposure.ScenarioError
	require.True(t, errors.As(err, &scenarioErr))
	assert.Equal(t, domain.LeakageLeaky, scenarioErr.Leakage)
	assert.Empty(t, store.saved)
}

func TestRunReportsReporterFailure(t *testing.T) {
	table, err := domain.NewTable(syntheticRuns(t))
	require.NoError(t, err)

	var logs bytes.Buffer
	runner, err := NewRunner(config.Default(), log.New(&logs, "", 0), WithReporter(stubReporter{err: errors.New("disk full")}))
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage report")
	assert.True(t, strings.Contains(logs.String(), "event=pipeline_run_failed"))
}

func TestNewRunnerRejectsBadWeights(t *testing.T) {
	cfg := config.Default()
	cfg.Weights.PM25 = 0.5
	_, err := NewRunner(cfg, nil)
	assert.ErrorIs(t, err, efficacy.ErrInvalidWeights)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunRejectsEmptyTable(t *testing.T) {
	runner, err := NewRunner(config.Default(), nil)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestRunnerReuseMatchesFreshRunner(t *testing.T) {
	tableFor := func(seed int64) *domain.Table {
		cfg := synth.DefaultConfig()
		cfg.Seed = seed
		cfg.Hours = 24 * 14
		cfg.Locations = cfg.Locations[:1]
		runs, err := synth.Generate(cfg)
		require.NoError(t, err)
		table, err := domain.NewTable(runs)
		require.NoError(t, err)
		return table
	}
	ctx := context.Background()

	reused, err := NewRunner(config.Default(), nil)
	require.NoError(t, err)
	_, err = reused.Run(ctx, tableFor(1))
	require.NoError(t, err)
	got, err := reused.Run(ctx, tableFor(2))
	require.NoError(t, err)

	fresh, err := NewRunner(config.Default(), nil)
	require.NoError(t, err)
	want, err := fresh.Run(ctx, tableFor(2))
	require.NoError(t, err)

	require.Equal(t, len(want.Cost.Rows), len(got.Cost.Rows))
	for i := range want.Cost.Rows {
		assert.Equal(t, want.Cost.Rows[i].AQIHoursAvoided, got.Cost.Rows[i].AQIHoursAvoided, want.Cost.Rows[i].Configuration().String())
	}
	require.Equal(t, len(want.Efficacy), len(got.Efficacy))
	for i := range want.Efficacy {
		assert.Equal(t, want.Efficacy[i].Configuration(), got.Efficacy[i].Configuration())
		assert.InDelta(t, want.Efficacy[i].MeanScore, got.Efficacy[i].MeanScore, 1e-12)
	}
}
