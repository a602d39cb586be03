package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"iaq-analysis/internal/bounds"
	"iaq-analysis/internal/cost"
	"iaq-analysis/internal/efficacy"
	"iaq-analysis/internal/pipeline"
	"iaq-analysis/internal/scenario/domain"
	"iaq-analysis/internal/uncertainty"
)

const (
	timeLayout   = time.RFC3339
	widestRanges = 10
)

// jsonFloat encodes NaN and infinities as the strings "NaN", "Infinity" and
// "-Infinity" so undefined and unbounded values stay distinct in JSON.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		switch text {
		case "NaN":
			*f = jsonFloat(math.NaN())
		case "Infinity":
			*f = jsonFloat(math.Inf(1))
		case "-Infinity":
			*f = jsonFloat(math.Inf(-1))
		default:
			return fmt.Errorf("report: invalid float %q", text)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

type boundedJSON struct {
	Mean  jsonFloat `json:"mean"`
	Lower jsonFloat `json:"lower"`
	Upper jsonFloat `json:"upper"`
}

func toBoundedJSON(m bounds.Metric) boundedJSON {
	return boundedJSON{Mean: jsonFloat(m.Mean), Lower: jsonFloat(m.Lower), Upper: jsonFloat(m.Upper)}
}

type rankedConfiguration struct {
	Rank                  int         `json:"rank"`
	Location              string      `json:"location"`
	FilterType            string      `json:"filter_type"`
	Mode                  string      `json:"mode"`
	MeanScore             jsonFloat   `json:"mean_efficacy_score"`
	BestCaseScore         jsonFloat   `json:"best_case_score"`
	WorstCaseScore        jsonFloat   `json:"worst_case_score"`
	ScoreRange            jsonFloat   `json:"score_range"`
	CostPerAQIHourAvoided boundedJSON `json:"cost_per_aqi_hour_avoided"`
	AQIHoursAvoided       boundedJSON `json:"aqi_hours_avoided"`
}

type rangeEntry struct {
	Location     string    `json:"location"`
	FilterType   string    `json:"filter_type"`
	Mode         string    `json:"mode"`
	Metric       string    `json:"metric"`
	RangePercent jsonFloat `json:"range_percent"`
	RangeFactor  jsonFloat `json:"range_factor"`
}

type analysisSummary struct {
	RunID          string                `json:"run_id"`
	StartedAt      string                `json:"started_at"`
	FinishedAt     string                `json:"finished_at"`
	GeneratedAt    string                `json:"generated_at"`
	Runs           int                   `json:"runs"`
	Configurations int                   `json:"configurations"`
	Weights        efficacy.Weights      `json:"weights"`
	RowCounts      map[string]int        `json:"row_counts"`
	Skipped        map[string][]string   `json:"skipped"`
	EventsDetected map[string]int        `json:"events_detected"`
	Ranking        []rankedConfiguration `json:"ranking"`
	WidestRanges   []rangeEntry          `json:"widest_ranges"`
}

func buildSummary(result *pipeline.Result) analysisSummary {
	s := analysisSummary{
		RunID:          result.RunID,
		StartedAt:      formatTime(result.StartedAt),
		FinishedAt:     formatTime(result.FinishedAt),
		GeneratedAt:    time.Now().UTC().Format(timeLayout),
		Runs:           result.Runs,
		Configurations: result.Configurations,
		Weights:        result.Weights,
		RowCounts:      make(map[string]int),
		Skipped:        make(map[string][]string),
		EventsDetected: make(map[string]int),
	}
	for _, table := range outputTables(result) {
		s.RowCounts[table.Name] = len(table.Rows)
	}
	if result.Cost != nil {
		s.Skipped["cost_effectiveness"] = configurationNames(result.Cost.Skipped)
	}
	if result.Tradeoff != nil {
		s.Skipped["physical_tradeoffs"] = configurationNames(result.Tradeoff.Skipped)
	}
	for _, row := range result.Events {
		s.EventsDetected[string(row.Pollutant)] += row.EventCount
	}

	costByConfig := costIndex(result.Cost)
	for _, row := range result.Efficacy {
		entry := rankedConfiguration{
			Rank:           row.Rank,
			Location:       row.Location,
			FilterType:     string(row.FilterType),
			Mode:           string(row.Mode),
			MeanScore:      jsonFloat(row.MeanScore),
			BestCaseScore:  jsonFloat(row.BestCaseScore),
			WorstCaseScore: jsonFloat(row.WorstCaseScore),
			ScoreRange:     jsonFloat(row.ScoreRange),

			CostPerAQIHourAvoided: toBoundedJSON(bounds.NaN()),
			AQIHoursAvoided:       toBoundedJSON(bounds.NaN()),
		}
		if cr, ok := costByConfig[row.Configuration()]; ok {
			entry.CostPerAQIHourAvoided = toBoundedJSON(cr.CostPerAQIHourAvoided)
			entry.AQIHoursAvoided = toBoundedJSON(cr.AQIHoursAvoided)
		}
		s.Ranking = append(s.Ranking, entry)
	}

	for _, row := range topRanges(result.RangeTable, widestRanges) {
		s.WidestRanges = append(s.WidestRanges, rangeEntry{
			Location:     row.Location,
			FilterType:   string(row.FilterType),
			Mode:         string(row.Mode),
			Metric:       row.Metric,
			RangePercent: jsonFloat(row.RangePercent),
			RangeFactor:  jsonFloat(row.RangeFactor),
		})
	}
	return s
}

func writeSummaryJSON(outDir string, summary analysisSummary) error {
	file, err := os.Create(filepath.Join(outDir, summaryFile))
	if err != nil {
		return err
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}

func renderMarkdown(result *pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Indoor air quality filtration analysis\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", result.RunID)
	fmt.Fprintf(&b, "- Started: %s\n", formatTime(result.StartedAt))
	fmt.Fprintf(&b, "- Scenario runs: %d\n", result.Runs)
	fmt.Fprintf(&b, "- Configurations: %d\n", result.Configurations)
	w := result.Weights
	fmt.Fprintf(&b, "- Weights: PM2.5 %.2f, PM10 %.2f, cost-effectiveness %.2f, AQI-hours %.2f\n\n", w.PM25, w.PM10, w.CostEffectiveness, w.AQIHours)
	b.WriteString("Values are shown as mean [lower, upper]. Bounds span the tight and leaky building envelopes; they are not confidence intervals.\n\n")

	b.WriteString("## Efficacy ranking\n\n")
	b.WriteString("| Rank | Configuration | Mean | Best case | Worst case | Range |\n|---|---|---|---|---|---|\n")
	for _, row := range result.Efficacy {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n", row.Rank, row.Configuration(),
			fmtNum(row.MeanScore), fmtNum(row.BestCaseScore), fmtNum(row.WorstCaseScore), fmtNum(row.ScoreRange))
	}

	if result.Cost != nil {
		b.WriteString("\n## Cost-effectiveness\n\n")
		b.WriteString("| Configuration | Total cost | PM2.5 reduction % | AQI-hours avoided | Cost per AQI-hour |\n|---|---|---|---|---|\n")
		for _, row := range result.Cost.Rows {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", row.Configuration(),
				fmtMetric(row.TotalCost), fmtMetric(row.PM25ReductionPercent),
				fmtMetric(row.AQIHoursAvoided), fmtMetric(row.CostPerAQIHourAvoided))
		}
		writeSkipped(&b, result.Cost.Skipped)
	}

	if result.Tradeoff != nil {
		b.WriteString("\n## Physical tradeoffs\n\n")
		b.WriteString("| Configuration | Replacements per year | Airflow penalty % | Energy penalty % |\n|---|---|---|---|\n")
		for _, row := range result.Tradeoff.Rows {
			cfg := domain.Configuration{Location: row.Location, FilterType: row.FilterType, Mode: row.Mode}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cfg,
				fmtMetric(row.ReplacementsPerYear), fmtMetric(row.AirflowPenalty), fmtMetric(row.EnergyPenalty))
		}
		writeSkipped(&b, result.Tradeoff.Skipped)
	}

	if len(result.Events) > 0 {
		b.WriteString("\n## Pollution events\n\n")
		b.WriteString("| Configuration | Pollutant | Events | Lag (h) | Peak reduction | Recovery (h) | Never recovered |\n|---|---|---|---|---|---|---|\n")
		for _, row := range result.Events {
			cfg := domain.Configuration{Location: row.Location, FilterType: row.FilterType, Mode: row.Mode}
			fmt.Fprintf(&b, "| %s | %s | %d | %s | %s | %s | %s |\n", cfg, row.Pollutant, row.EventCount,
				fmtMetric(row.AvgLagTime), fmtMetric(row.AvgPeakReduction),
				fmtMetric(row.AvgRecoveryTime), fmtMetric(row.NeverRecovered))
		}
	}

	if top := topRanges(result.RangeTable, widestRanges); len(top) > 0 {
		b.WriteString("\n## Highest uncertainty\n\n")
		b.WriteString("| Configuration | Metric | Value | Range % | Range factor |\n|---|---|---|---|---|\n")
		for _, row := range top {
			cfg := domain.Configuration{Location: row.Location, FilterType: row.FilterType, Mode: row.Mode}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", cfg, row.Metric,
				fmtMetric(row.Bounds), fmtNum(row.RangePercent), fmtNum(row.RangeFactor))
		}
	}
	return b.String()
}

func writeSkipped(b *strings.Builder, skipped []domain.Configuration) {
	if len(skipped) == 0 {
		return
	}
	fmt.Fprintf(b, "\nSkipped (incomplete tight/leaky data): %s\n", strings.Join(configurationNames(skipped), ", "))
}

// topRanges returns up to n rows with a finite range percent, in table order.
func topRanges(rows []uncertainty.Row, n int) []uncertainty.Row {
	var out []uncertainty.Row
	for _, row := range rows {
		if len(out) == n {
			break
		}
		if math.IsNaN(row.RangePercent) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func costIndex(res *cost.Result) map[domain.Configuration]cost.Row {
	out := make(map[domain.Configuration]cost.Row)
	if res == nil {
		return out
	}
	for _, row := range res.Rows {
		out[row.Configuration()] = row
	}
	return out
}

func configurationNames(cfgs []domain.Configuration) []string {
	out := make([]string, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, cfg.String())
	}
	return out
}

func fmtNum(v float64) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return fmt.Sprintf("%.2f", v)
}

func fmtMetric(m bounds.Metric) string {
	if m.IsNaN() {
		return "n/a"
	}
	return fmt.Sprintf("%s [%s, %s]", fmtNum(m.Mean), fmtNum(m.Lower), fmtNum(m.Upper))
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}
