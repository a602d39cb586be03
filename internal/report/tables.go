package report

import (
	"strconv"

	"iaq-analysis/internal/aqi"
	"iaq-analysis/internal/bounds"
	"iaq-analysis/internal/cost"
	"iaq-analysis/internal/efficacy"
	"iaq-analysis/internal/events"
	"iaq-analysis/internal/exposure"
	"iaq-analysis/internal/scenario/domain"
	"iaq-analysis/internal/tradeoff"
	"iaq-analysis/internal/uncertainty"
)

// tableData is one flat output table. Cells are strings, ints, bools or
// float64; non-finite floats are kept so NaN and Inf stay distinguishable.
type tableData struct {
	Name   string
	Header []string
	Rows   [][]any
}

// bounded expands a metric name into its mean, lower and upper columns.
func bounded(name string) []string {
	return []string{name, name + "_lower", name + "_upper"}
}

func boundedValues(m bounds.Metric) []any {
	return []any{m.Mean, m.Lower, m.Upper}
}

func header(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func cells(parts ...[]any) []any {
	var out []any
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func healthTable(t *exposure.Table) tableData {
	cols := []string{"location", "leakage", "filter_type", "scenario"}
	for _, c := range aqi.Categories() {
		cols = append(cols, "hours_"+c.Key())
	}
	cols = append(cols, "total_hours", "hours_above_good")
	out := tableData{Name: "health_exposure", Header: cols}
	if t == nil {
		return out
	}
	for _, row := range t.Rows {
		values := []any{row.Location, string(row.Leakage), string(row.FilterType), string(row.Scenario)}
		for _, c := range aqi.Categories() {
			values = append(values, row.Hours[c])
		}
		values = append(values, row.TotalHours, row.HoursAboveGood())
		out.Rows = append(out.Rows, values)
	}
	return out
}

func costTable(res *cost.Result) tableData {
	out := tableData{
		Name: "cost_effectiveness",
		Header: header(
			[]string{"location", "filter_type", "mode"},
			bounded("total_cost"),
			bounded("pm25_reduction"),
			bounded("pm10_reduction"),
			bounded("pm25_reduction_percent"),
			bounded("pm10_reduction_percent"),
			bounded("pm25_reduction_worst_case"),
			bounded("aqi_hours_avoided"),
			bounded("aqi_hours_avoided_traditional"),
			bounded("cost_per_ug_pm25_removed"),
			bounded("cost_per_ug_pm10_removed"),
			bounded("cost_per_aqi_hour_avoided"),
			[]string{"aqi_floor_applied_tight", "aqi_floor_applied_leaky"},
		),
	}
	if res == nil {
		return out
	}
	for _, row := range res.Rows {
		out.Rows = append(out.Rows, cells(
			[]any{row.Location, string(row.FilterType), string(row.Mode)},
			boundedValues(row.TotalCost),
			boundedValues(row.PM25Reduction),
			boundedValues(row.PM10Reduction),
			boundedValues(row.PM25ReductionPercent),
			boundedValues(row.PM10ReductionPercent),
			boundedValues(row.PM25ReductionWorstCase),
			boundedValues(row.AQIHoursAvoided),
			boundedValues(row.AQIHoursAvoidedTraditional),
			boundedValues(row.CostPerUgPM25Removed),
			boundedValues(row.CostPerUgPM10Removed),
			boundedValues(row.CostPerAQIHourAvoided),
			[]any{row.Estimates[domain.LeakageTight].FloorApplied, row.Estimates[domain.LeakageLeaky].FloorApplied},
		))
	}
	return out
}

func tradeoffTable(res *tradeoff.Result) tableData {
	out := tableData{
		Name: "physical_tradeoffs",
		Header: header(
			[]string{"location", "filter_type", "mode"},
			bounded("filter_replaced_hours"),
			bounded("estimated_replacements_per_year"),
			[]string{"pressure_drop_pa"},
			bounded("airflow_penalty_percent"),
			bounded("energy_penalty_percent"),
		),
	}
	if res == nil {
		return out
	}
	for _, row := range res.Rows {
		out.Rows = append(out.Rows, cells(
			[]any{row.Location, string(row.FilterType), string(row.Mode)},
			boundedValues(row.FilterReplaced),
			boundedValues(row.ReplacementsPerYear),
			[]any{row.PressureDrop},
			boundedValues(row.AirflowPenalty),
			boundedValues(row.EnergyPenalty),
		))
	}
	return out
}

func efficacyTable(rows []efficacy.Row) tableData {
	out := tableData{
		Name: "efficacy_scores",
		Header: header(
			[]string{
				"rank", "location", "filter_type", "mode",
				"mean_efficacy_score", "best_case_score", "worst_case_score", "score_range", "score_range_half",
				"pm25_score", "pm10_score", "cost_effectiveness_score", "aqi_hours_score",
				"pm25_contribution", "pm10_contribution", "cost_effectiveness_contribution", "aqi_hours_contribution",
			},
			bounded("unhealthy_hours_avoided"),
		),
	}
	for _, row := range rows {
		c, w := row.MeanComponents, row.MeanContributions
		out.Rows = append(out.Rows, cells(
			[]any{
				row.Rank, row.Location, string(row.FilterType), string(row.Mode),
				row.MeanScore, row.BestCaseScore, row.WorstCaseScore, row.ScoreRange, row.ScoreRangeHalf,
				c.PM25, c.PM10, c.CostEffectiveness, c.AQIHours,
				w.PM25, w.PM10, w.CostEffectiveness, w.AQIHours,
			},
			boundedValues(row.UnhealthyHoursAvoided),
		))
	}
	return out
}

func rangeTable(rows []uncertainty.Row) tableData {
	out := tableData{
		Name: "range_table",
		Header: header(
			[]string{"location", "filter_type", "mode", "metric", "tight", "leaky"},
			bounded("value"),
			[]string{"range_width", "range_percent", "range_factor"},
		),
	}
	for _, row := range rows {
		out.Rows = append(out.Rows, cells(
			[]any{row.Location, string(row.FilterType), string(row.Mode), row.Metric, row.Tight, row.Leaky},
			boundedValues(row.Bounds),
			[]any{row.RangeWidth, row.RangePercent, row.RangeFactor},
		))
	}
	return out
}

func eventTable(rows []events.SummaryRow) tableData {
	out := tableData{
		Name: "event_summary",
		Header: header(
			[]string{"location", "filter_type", "mode", "pollutant", "threshold", "event_count"},
			bounded("avg_lag_time"),
			bounded("avg_peak_reduction"),
			bounded("avg_integrated_reduction"),
			bounded("avg_recovery_time"),
			bounded("avg_decay_half_life"),
			bounded("never_recovered"),
			bounded("anomalous"),
			bounded("peak_correlation_lag"),
		),
	}
	for _, row := range rows {
		out.Rows = append(out.Rows, cells(
			[]any{row.Location, string(row.FilterType), string(row.Mode), string(row.Pollutant), row.Threshold, row.EventCount},
			boundedValues(row.AvgLagTime),
			boundedValues(row.AvgPeakReduction),
			boundedValues(row.AvgIntegratedReduction),
			boundedValues(row.AvgRecoveryTime),
			boundedValues(row.AvgDecayHalfLife),
			boundedValues(row.NeverRecovered),
			boundedValues(row.Anomalous),
			boundedValues(row.PeakCorrelationLag),
		))
	}
	return out
}

func formatCell(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return formatFloat(value)
	case int:
		return strconv.Itoa(value)
	case bool:
		return formatBool(value)
	default:
		return ""
	}
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatBool(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
