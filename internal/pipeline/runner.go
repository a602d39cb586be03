package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"iaq-analysis/internal/config"
	"iaq-analysis/internal/cost"
	"iaq-analysis/internal/efficacy"
	"iaq-analysis/internal/events"
	"iaq-analysis/internal/exposure"
	"iaq-analysis/internal/observability/metrics"
	"iaq-analysis/internal/observability/tracing"
	"iaq-analysis/internal/scenario/domain"
	"iaq-analysis/internal/tradeoff"
	"iaq-analysis/internal/uncertainty"
)

// Stage names used in logs, metrics and spans.
const (
	StageHealth     = "health_exposure"
	StageTradeoff   = "physical_tradeoffs"
	StageEvents     = "event_summary"
	StageRangeTable = "range_table"
	StageCost       = "cost_effectiveness"
	StageEfficacy   = "efficacy_scores"
	StagePersist    = "persist"
	StageReport     = "report"
)

// ErrEmptyTable is returned when Run is given no scenario runs.
var ErrEmptyTable = errors.New("pipeline: empty summary table")

// Result collects every output table of one analysis run.
type Result struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Runs           int
	Configurations int
	Weights        efficacy.Weights

	Health     *exposure.Table
	Cost       *cost.Result
	Tradeoff   *tradeoff.Result
	Events     []events.SummaryRow
	Efficacy   []efficacy.Row
	RangeTable []uncertainty.Row

	// ReportPath is the archive written by the Reporter, if any.
	ReportPath string
}

// ResultStore persists a finished analysis.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, result *Result) error
}

// Reporter renders a finished analysis and returns the archive location.
type Reporter interface {
	Write(ctx context.Context, result *Result) (string, error)
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStore persists each successful run.
func WithStore(store ResultStore) Option {
	return func(r *Runner) { r.store = store }
}

// WithReporter writes report files for each successful run.
func WithReporter(reporter Reporter) Option {
	return func(r *Runner) { r.reporter = reporter }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// Runner executes the analysis stages over one summary table.
type Runner struct {
	aggregator *exposure.Aggregator
	cost       *cost.Analyzer
	tradeoff   *tradeoff.Analyzer
	events     *events.Summarizer
	ranges     *uncertainty.Builder
	scorer     *efficacy.Scorer

	store    ResultStore
	reporter Reporter
	logger   *log.Logger
	newID    func() string
}

// NewRunner builds every stage from cfg. Configuration errors, including an
// invalid weight vector, surface here before any data is read.
func NewRunner(cfg config.Config, logger *log.Logger, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bp := cfg.AQIBreakpoints()
	filters, err := cfg.Filters()
	if err != nil {
		return nil, err
	}
	aggregator, err := exposure.NewAggregator(bp, exposure.WithRequiredFilters(filters...))
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	costAnalyzer, err := cost.NewAnalyzer(bp,
		cost.WithZeroBaselinePolicy(policy),
		cost.WithCacheSize(cfg.AQICacheSize),
		cost.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	tradeoffAnalyzer, err := tradeoff.NewAnalyzer(cfg.TradeoffParams(), logger)
	if err != nil {
		return nil, err
	}
	ranges, err := uncertainty.NewBuilder(cfg.RangeMetrics, logger)
	if err != nil {
		return nil, err
	}
	scorer, err := efficacy.NewScorer(cfg.Weights, logger)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		aggregator: aggregator,
		cost:       costAnalyzer,
		tradeoff:   tradeoffAnalyzer,
		events:     events.NewSummarizer(cfg.EventsFor, logger),
		ranges:     ranges,
		scorer:     scorer,
		logger:     logger,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the stages in two phases. Health exposure, physical tradeoffs,
// the event summary and the range table only read the summary table and run
// concurrently. Cost needs the health table; efficacy normalizes over every
// cost row, so it starts only once cost has finished for all configurations.
func (r *Runner) Run(ctx context.Context, table *domain.Table) (*Result, error) {
	if r == nil {
		return nil, errors.New("pipeline runner: nil")
	}
	if table == nil || table.Len() == 0 {
		return nil, ErrEmptyTable
	}

	result := &Result{
		RunID:          r.newID(),
		StartedAt:      time.Now().UTC(),
		Runs:           table.Len(),
		Configurations: len(table.Configurations()),
		Weights:        r.scorer.Weights(),
	}
	ctx, span := tracing.StartStage(ctx, result.RunID, "run",
		tracing.AttrRows.Int(result.Runs),
		tracing.AttrConfigurations.Int(result.Configurations),
	)
	r.logf("pipeline_run_start", result.RunID, "", "runs=%d configurations=%d", result.Runs, result.Configurations)

	err := r.execute(ctx, table, result)
	tracing.End(span, err)
	result.FinishedAt = time.Now().UTC()
	duration := result.FinishedAt.Sub(result.StartedAt)
	if err != nil {
		metrics.ObserveRun(metrics.ResultError, duration)
		r.logf("pipeline_run_failed", result.RunID, "", "error=%s", err.Error())
		return nil, err
	}
	metrics.ObserveRun(metrics.ResultSuccess, duration)
	r.logf("pipeline_run_success", result.RunID, "", "duration=%s report=%s", duration, result.ReportPath)
	return result, nil
}

func (r *Runner) execute(ctx context.Context, table *domain.Table, result *Result) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.stage(gctx, result.RunID, StageHealth, func() (int, int, error) {
			health, err := r.aggregator.Aggregate(table)
			if err != nil {
				return 0, 0, err
			}
			result.Health = health
			return len(health.Rows), 0, nil
		})
	})
	g.Go(func() error {
		return r.stage(gctx, result.RunID, StageTradeoff, func() (int, int, error) {
			res, err := r.tradeoff.Analyze(table)
			if err != nil {
				return 0, 0, err
			}
			result.Tradeoff = res
			return len(res.Rows), len(res.Skipped), nil
		})
	})
	g.Go(func() error {
		return r.stage(gctx, result.RunID, StageEvents, func() (int, int, error) {
			rows, err := r.events.Summarize(table)
			if err != nil {
				return 0, 0, err
			}
			result.Events = rows
			for _, row := range rows {
				metrics.AddEvents(string(row.Pollutant), row.EventCount)
			}
			return len(rows), 0, nil
		})
	})
	g.Go(func() error {
		return r.stage(gctx, result.RunID, StageRangeTable, func() (int, int, error) {
			result.RangeTable = r.ranges.Build(table)
			return len(result.RangeTable), 0, nil
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.stage(ctx, result.RunID, StageCost, func() (int, int, error) {
		res, err := r.cost.Analyze(table, result.Health)
		if err != nil {
			return 0, 0, err
		}
		result.Cost = res
		return len(res.Rows), len(res.Skipped), nil
	}); err != nil {
		return err
	}
	metrics.AddCacheLookups(result.Cost.CacheHits, result.Cost.CacheMisses)

	if err := r.stage(ctx, result.RunID, StageEfficacy, func() (int, int, error) {
		rows, err := r.scorer.Score(result.Cost.Rows, result.Health)
		if err != nil {
			return 0, 0, err
		}
		result.Efficacy = rows
		top := 0.0
		if len(rows) > 0 {
			top = rows[0].MeanScore
		}
		metrics.SetRanking(len(rows), top)
		return len(rows), 0, nil
	}); err != nil {
		return err
	}

	if r.reporter != nil {
		if err := r.stage(ctx, result.RunID, StageReport, func() (int, int, error) {
			path, err := r.reporter.Write(ctx, result)
			if err != nil {
				return 0, 0, err
			}
			result.ReportPath = path
			return 0, 0, nil
		}); err != nil {
			return err
		}
	}
	if r.store != nil {
		if err := r.stage(ctx, result.RunID, StagePersist, func() (int, int, error) {
			return 0, 0, r.store.SaveAnalysis(ctx, result)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) stage(ctx context.Context, runID, name string, fn func() (rows, skipped int, err error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, span := tracing.StartStage(ctx, runID, name)
	r.logf("pipeline_stage_start", runID, name, "")
	started := time.Now()

	rows, skipped, err := fn()
	elapsed := time.Since(started)
	span.SetAttributes(tracing.AttrRows.Int(rows), tracing.AttrSkipped.Int(skipped))
	tracing.End(span, err)
	if err != nil {
		metrics.ObserveStage(name, metrics.ResultError, elapsed)
		r.logf("pipeline_stage_failed", runID, name, "error=%s", err.Error())
		return fmt.Errorf("stage %s: %w", name, err)
	}
	metrics.ObserveStage(name, metrics.ResultSuccess, elapsed)
	metrics.AddSkipped(name, skipped)
	r.logf("pipeline_stage_done", runID, name, "rows=%d skipped=%d duration=%s", rows, skipped, elapsed)
	return nil
}

func (r *Runner) logf(event, runID, stage, format string, args ...any) {
	if r.logger == nil {
		return
	}
	line := fmt.Sprintf("event=%s run_id=%s", event, runID)
	if stage != "" {
		line += " stage=" + stage
	}
	if format != "" {
		line += " " + fmt.Sprintf(format, args...)
	}
	r.logger.Print(line)
}
