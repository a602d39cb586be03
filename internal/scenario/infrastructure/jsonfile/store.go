package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"iaq-analysis/internal/scenario/domain"
)

var requiredKeys = []string{
	"location", "leakage", "filter_type", "mode",
	"indoor_pm25", "indoor_pm10", "outdoor_pm25", "outdoor_pm10",
	"total_cost",
}

type document struct {
	Runs []map[string]json.RawMessage `json:"runs"`
}

type runRecord struct {
	Location       string     `json:"location"`
	Leakage        string     `json:"leakage"`
	FilterType     string     `json:"filter_type"`
	Mode           string     `json:"mode"`
	IndoorPM25     []*float64 `json:"indoor_pm25"`
	IndoorPM10     []*float64 `json:"indoor_pm10"`
	OutdoorPM25    []*float64 `json:"outdoor_pm25"`
	OutdoorPM10    []*float64 `json:"outdoor_pm10"`
	AvgIndoorPM25  *float64   `json:"avg_indoor_pm25"`
	AvgIndoorPM10  *float64   `json:"avg_indoor_pm10"`
	AvgOutdoorPM25 *float64   `json:"avg_outdoor_pm25"`
	AvgOutdoorPM10 *float64   `json:"avg_outdoor_pm10"`
	TotalCost      *float64   `json:"total_cost"`
	FilterReplaced *float64   `json:"filter_replaced"`
}

// Load reads a summary table from a JSON file.
func Load(path string) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses the {"runs": [...]} document. Missing required keys fail with
// domain.ErrMissingColumn; null samples and a null filter_replaced become NaN;
// absent averages are derived from the series.
func Decode(r io.Reader) (*domain.Table, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("jsonfile: decode: %w", err)
	}
	runs := make([]*domain.ScenarioRun, 0, len(doc.Runs))
	for i, raw := range doc.Runs {
		run, err := decodeRun(raw)
		if err != nil {
			return nil, fmt.Errorf("jsonfile: run %d: %w", i, err)
		}
		runs = append(runs, run)
	}
	return domain.NewTable(runs)
}

func decodeRun(raw map[string]json.RawMessage) (*domain.ScenarioRun, error) {
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumn, key)
		}
	}
	merged, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var rec runRecord
	if err := json.Unmarshal(merged, &rec); err != nil {
		return nil, err
	}

	leakage, err := domain.ParseLeakage(rec.Leakage)
	if err != nil {
		return nil, err
	}
	filter, err := domain.ParseFilterType(rec.FilterType)
	if err != nil {
		return nil, err
	}
	mode, err := domain.ParseMode(rec.Mode)
	if err != nil {
		return nil, err
	}

	run := &domain.ScenarioRun{
		Location:       rec.Location,
		Leakage:        leakage,
		FilterType:     filter,
		Mode:           mode,
		IndoorPM25:     series(rec.IndoorPM25),
		IndoorPM10:     series(rec.IndoorPM10),
		OutdoorPM25:    series(rec.OutdoorPM25),
		OutdoorPM10:    series(rec.OutdoorPM10),
		AvgIndoorPM25:  scalar(rec.AvgIndoorPM25),
		AvgIndoorPM10:  scalar(rec.AvgIndoorPM10),
		AvgOutdoorPM25: scalar(rec.AvgOutdoorPM25),
		AvgOutdoorPM10: scalar(rec.AvgOutdoorPM10),
		TotalCost:      scalar(rec.TotalCost),
		FilterReplaced: scalar(rec.FilterReplaced),
	}
	run.FillAverages()
	return run, nil
}

// Save writes runs to path, creating parent directories.
func Save(path string, runs []*domain.ScenarioRun) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, runs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Encode writes runs in the document schema. NaN values are written as null.
func Encode(w io.Writer, runs []*domain.ScenarioRun) error {
	if w == nil {
		return errors.New("jsonfile: nil writer")
	}
	out := struct {
		Runs []runRecord `json:"runs"`
	}{Runs: make([]runRecord, 0, len(runs))}
	for _, run := range runs {
		out.Runs = append(out.Runs, runRecord{
			Location:       run.Location,
			Leakage:        string(run.Leakage),
			FilterType:     string(run.FilterType),
			Mode:           string(run.Mode),
			IndoorPM25:     nullable(run.IndoorPM25),
			IndoorPM10:     nullable(run.IndoorPM10),
			OutdoorPM25:    nullable(run.OutdoorPM25),
			OutdoorPM10:    nullable(run.OutdoorPM10),
			AvgIndoorPM25:  ptr(run.AvgIndoorPM25),
			AvgIndoorPM10:  ptr(run.AvgIndoorPM10),
			AvgOutdoorPM25: ptr(run.AvgOutdoorPM25),
			AvgOutdoorPM10: ptr(run.AvgOutdoorPM10),
			TotalCost:      ptr(run.TotalCost),
			FilterReplaced: ptr(run.FilterReplaced),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func series(values []*float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = scalar(v)
	}
	return out
}

func scalar(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = ptr(v)
	}
	return out
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
