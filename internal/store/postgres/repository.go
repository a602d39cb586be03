package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"iaq-analysis/internal/pipeline"
	"iaq-analysis/internal/scenario/domain"
)

//go:embed schema.sql
var schemaSQL string

// ErrAnalysisNotFound is returned when no analysis run has the requested id.
var ErrAnalysisNotFound = errors.New("iaq repo: analysis run not found")

// AnalysisRun is the stored header of one analysis.
type AnalysisRun struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Runs           int
	Configurations int
	Weights        []byte
	ReportLocation string
	CreatedAt      time.Time
}

// Repository stores scenario runs and analysis outputs.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("iaq repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

// SaveRuns upserts scenario runs keyed by location, leakage, filter type and mode.
func (r *Repository) SaveRuns(ctx context.Context, runs []*domain.ScenarioRun) error {
	if r == nil || r.db == nil {
		return errors.New("iaq repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, run := range runs {
		if run == nil {
			return errors.New("iaq repo: nil run")
		}
		series, err := encodeSeries(run.IndoorPM25, run.IndoorPM10, run.OutdoorPM25, run.OutdoorPM10)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO scenario_runs (
	location, leakage, filter_type, mode,
	indoor_pm25, indoor_pm10, outdoor_pm25, outdoor_pm10,
	avg_indoor_pm25, avg_indoor_pm10, avg_outdoor_pm25, avg_outdoor_pm10,
	total_cost, filter_replaced, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (location, leakage, filter_type, mode)
DO UPDATE SET
	indoor_pm25 = EXCLUDED.indoor_pm25,
	indoor_pm10 = EXCLUDED.indoor_pm10,
	outdoor_pm25 = EXCLUDED.outdoor_pm25,
	outdoor_pm10 = EXCLUDED.outdoor_pm10,
	avg_indoor_pm25 = EXCLUDED.avg_indoor_pm25,
	avg_indoor_pm10 = EXCLUDED.avg_indoor_pm10,
	avg_outdoor_pm25 = EXCLUDED.avg_outdoor_pm25,
	avg_outdoor_pm10 = EXCLUDED.avg_outdoor_pm10,
	total_cost = EXCLUDED.total_cost,
	filter_replaced = EXCLUDED.filter_replaced,
	updated_at = EXCLUDED.updated_at`,
			run.Location, string(run.Leakage), string(run.FilterType), string(run.Mode),
			series[0], series[1], series[2], series[3],
			nullFloat(run.AvgIndoorPM25), nullFloat(run.AvgIndoorPM10),
			nullFloat(run.AvgOutdoorPM25), nullFloat(run.AvgOutdoorPM10),
			run.TotalCost, nullFloat(run.FilterReplaced), now,
		)
		if err != nil {
			return fmt.Errorf("iaq repo: save run %s: %w", run.Key(), err)
		}
	}
	return tx.Commit()
}

// LoadRuns reads every stored scenario run into a validated table.
func (r *Repository) LoadRuns(ctx context.Context) (*domain.Table, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("iaq repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT
	location, leakage, filter_type, mode,
	indoor_pm25, indoor_pm10, outdoor_pm25, outdoor_pm10,
	avg_indoor_pm25, avg_indoor_pm10, avg_outdoor_pm25, avg_outdoor_pm10,
	total_cost, filter_replaced
FROM scenario_runs
ORDER BY location, leakage, filter_type, mode`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.ScenarioRun
	for rows.Next() {
		var (
			location, leakage, filterType, mode  string
			in25, in10, out25, out10             []byte
			avgIn25, avgIn10, avgOut25, avgOut10 sql.NullFloat64
			totalCost                            float64
			filterReplaced                       sql.NullFloat64
		)
		if err := rows.Scan(
			&location, &leakage, &filterType, &mode,
			&in25, &in10, &out25, &out10,
			&avgIn25, &avgIn10, &avgOut25, &avgOut10,
			&totalCost, &filterReplaced,
		); err != nil {
			return nil, err
		}
		run := &domain.ScenarioRun{
			Location:       location,
			TotalCost:      totalCost,
			AvgIndoorPM25:  floatOrNaN(avgIn25),
			AvgIndoorPM10:  floatOrNaN(avgIn10),
			AvgOutdoorPM25: floatOrNaN(avgOut25),
			AvgOutdoorPM10: floatOrNaN(avgOut10),
			FilterReplaced: floatOrNaN(filterReplaced),
		}
		if run.Leakage, err = domain.ParseLeakage(leakage); err != nil {
			return nil, err
		}
		if run.FilterType, err = domain.ParseFilterType(filterType); err != nil {
			return nil, err
		}
		if run.Mode, err = domain.ParseMode(mode); err != nil {
			return nil, err
		}
		for _, s := range []struct {
			raw []byte
			dst *[]float64
		}{
			{in25, &run.IndoorPM25},
			{in10, &run.IndoorPM10},
			{out25, &run.OutdoorPM25},
			{out10, &run.OutdoorPM10},
		} {
			if *s.dst, err = decodeSeries(s.raw); err != nil {
				return nil, fmt.Errorf("iaq repo: run %s/%s/%s/%s: %w", location, leakage, filterType, mode, err)
			}
		}
		run.FillAverages()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.NewTable(runs)
}

// SaveAnalysis stores the run header with its efficacy, cost and range
// tables in one transaction. Re-saving a run id replaces its rows.
func (r *Repository) SaveAnalysis(ctx context.Context, result *pipeline.Result) error {
	if r == nil || r.db == nil {
		return errors.New("iaq repo: nil db")
	}
	if result == nil || result.RunID == "" {
		return errors.New("iaq repo: analysis run id required")
	}
	weights, err := json.Marshal(result.Weights)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_runs WHERE id = $1`, result.RunID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO analysis_runs (
	id, started_at, finished_at, runs, configurations, weights, report_location, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`,
		result.RunID, result.StartedAt, result.FinishedAt, result.Runs, result.Configurations,
		string(weights), result.ReportPath, time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	for _, row := range result.Efficacy {
		_, err := tx.ExecContext(ctx, `
INSERT INTO efficacy_scores (
	run_id, rank, location, filter_type, mode,
	mean_efficacy_score, best_case_score, worst_case_score, score_range,
	pm25_contribution, pm10_contribution, cost_effectiveness_contribution, aqi_hours_contribution
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`,
			result.RunID, row.Rank, row.Location, string(row.FilterType), string(row.Mode),
			row.MeanScore, row.BestCaseScore, row.WorstCaseScore, row.ScoreRange,
			row.MeanContributions.PM25, row.MeanContributions.PM10,
			row.MeanContributions.CostEffectiveness, row.MeanContributions.AQIHours,
		)
		if err != nil {
			return fmt.Errorf("iaq repo: efficacy %s: %w", row.Configuration(), err)
		}
	}

	if result.Cost != nil {
		for _, row := range result.Cost.Rows {
			_, err := tx.ExecContext(ctx, `
INSERT INTO cost_effectiveness (
	run_id, location, filter_type, mode,
	total_cost, total_cost_lower, total_cost_upper,
	pm25_reduction_percent, pm25_reduction_percent_lower, pm25_reduction_percent_upper,
	aqi_hours_avoided, aqi_hours_avoided_lower, aqi_hours_avoided_upper,
	cost_per_aqi_hour_avoided, cost_per_aqi_hour_avoided_lower, cost_per_aqi_hour_avoided_upper
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)`,
				result.RunID, row.Location, string(row.FilterType), string(row.Mode),
				row.TotalCost.Mean, row.TotalCost.Lower, row.TotalCost.Upper,
				row.PM25ReductionPercent.Mean, row.PM25ReductionPercent.Lower, row.PM25ReductionPercent.Upper,
				row.AQIHoursAvoided.Mean, row.AQIHoursAvoided.Lower, row.AQIHoursAvoided.Upper,
				row.CostPerAQIHourAvoided.Mean, row.CostPerAQIHourAvoided.Lower, row.CostPerAQIHourAvoided.Upper,
			)
			if err != nil {
				return fmt.Errorf("iaq repo: cost %s: %w", row.Configuration(), err)
			}
		}
	}

	for _, row := range result.RangeTable {
		_, err := tx.ExecContext(ctx, `
INSERT INTO range_table (
	run_id, location, filter_type, mode, metric,
	value, value_lower, value_upper, range_width, range_percent, range_factor
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`,
			result.RunID, row.Location, string(row.FilterType), string(row.Mode), row.Metric,
			row.Bounds.Mean, row.Bounds.Lower, row.Bounds.Upper, row.RangeWidth, row.RangePercent, row.RangeFactor,
		)
		if err != nil {
			return fmt.Errorf("iaq repo: range %s %s: %w", row.Location, row.Metric, err)
		}
	}
	return tx.Commit()
}

// GetAnalysis returns the stored header for a run id.
func (r *Repository) GetAnalysis(ctx context.Context, runID string) (*AnalysisRun, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("iaq repo: nil db")
	}
	var run AnalysisRun
	err := r.db.QueryRowContext(ctx, `
SELECT id, started_at, finished_at, runs, configurations, weights, report_location, created_at
FROM analysis_runs
WHERE id = $1`, runID).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Runs, &run.Configurations,
		&run.Weights, &run.ReportLocation, &run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CountRows returns the number of stored output rows per table for a run id.
func (r *Repository) CountRows(ctx context.Context, runID string) (map[string]int, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("iaq repo: nil db")
	}
	out := make(map[string]int, 3)
	for _, table := range []string{"efficacy_scores", "cost_effectiveness", "range_table"} {
		var n int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE run_id = $1`, table)
		if err := r.db.QueryRowContext(ctx, query, runID).Scan(&n); err != nil {
			return nil, err
		}
		out[table] = n
	}
	return out, nil
}

// encodeSeries renders series as JSON arrays with NaN written as null.
func encodeSeries(series ...[]float64) ([]string, error) {
	out := make([]string, len(series))
	for i, values := range series {
		nullable := make([]*float64, len(values))
		for j, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			nullable[j] = &v
		}
		data, err := json.Marshal(nullable)
		if err != nil {
			return nil, err
		}
		out[i] = string(data)
	}
	return out, nil
}

func decodeSeries(raw []byte) ([]float64, error) {
	var nullable []*float64
	if err := json.Unmarshal(raw, &nullable); err != nil {
		return nil, err
	}
	out := make([]float64, len(nullable))
	for i, v := range nullable {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
