package report

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"iaq-analysis/internal/observability/metrics"
	"iaq-analysis/internal/pipeline"
)

const (
	summaryFile  = "summary.json"
	markdownFile = "report.md"
	pdfFile      = "efficacy_ranking.pdf"
	xlsxFile     = "analysis.xlsx"
	archiveFile  = "report.zip"
)

// Writer renders an analysis under <root>/<run_id>/ and bundles it into
// report.zip.
type Writer struct {
	root   string
	logger *log.Logger
}

// NewWriter constructs a Writer rooted at storageRoot.
func NewWriter(storageRoot string, logger *log.Logger) (*Writer, error) {
	if storageRoot == "" {
		return nil, errors.New("report: storage root required")
	}
	return &Writer{root: storageRoot, logger: logger}, nil
}

// Dir returns the report directory for a run.
func (w *Writer) Dir(runID string) string {
	return filepath.Join(w.root, runID)
}

// Write renders every report file and returns the archive path.
func (w *Writer) Write(ctx context.Context, result *pipeline.Result) (string, error) {
	if result == nil {
		return "", errors.New("report: nil result")
	}
	if result.RunID == "" {
		return "", errors.New("report: run id required")
	}
	outDir := w.Dir(result.RunID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}

	tables := outputTables(result)
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := writeCSV(outDir, table); err != nil {
			return "", fmt.Errorf("report: %s: %w", table.Name, err)
		}
		metrics.IncReportFile("csv")
	}

	if err := writeSummaryJSON(outDir, buildSummary(result)); err != nil {
		return "", fmt.Errorf("report: summary: %w", err)
	}
	metrics.IncReportFile("json")

	if err := os.WriteFile(filepath.Join(outDir, markdownFile), []byte(renderMarkdown(result)), 0o644); err != nil {
		return "", fmt.Errorf("report: markdown: %w", err)
	}
	metrics.IncReportFile("md")

	pdf, err := BuildRankingPDF(result)
	if err != nil {
		return "", fmt.Errorf("report: pdf: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, pdfFile), pdf, 0o644); err != nil {
		return "", err
	}
	metrics.IncReportFile("pdf")

	workbook, err := BuildWorkbook(result)
	if err != nil {
		return "", fmt.Errorf("report: xlsx: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, xlsxFile), workbook, 0o644); err != nil {
		return "", err
	}
	metrics.IncReportFile("xlsx")

	entries := make([]string, 0, len(tables)+4)
	for _, table := range tables {
		entries = append(entries, table.Name+".csv")
	}
	entries = append(entries, summaryFile, markdownFile, pdfFile, xlsxFile)
	archivePath, err := writeArchive(outDir, entries)
	if err != nil {
		return "", fmt.Errorf("report: archive: %w", err)
	}
	metrics.IncReportFile("zip")

	if w.logger != nil {
		w.logger.Printf("report: wrote run_id=%s dir=%s files=%d", result.RunID, outDir, len(entries)+1)
	}
	return archivePath, nil
}

func outputTables(result *pipeline.Result) []tableData {
	return []tableData{
		healthTable(result.Health),
		costTable(result.Cost),
		tradeoffTable(result.Tradeoff),
		efficacyTable(result.Efficacy),
		rangeTable(result.RangeTable),
		eventTable(result.Events),
	}
}

func writeCSV(outDir string, table tableData) error {
	file, err := os.Create(filepath.Join(outDir, table.Name+".csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(table.Header); err != nil {
		return err
	}
	record := make([]string, len(table.Header))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = formatCell(row[i])
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeArchive(outDir string, entries []string) (string, error) {
	archivePath := filepath.Join(outDir, archiveFile)
	file, err := os.Create(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	for _, name := range entries {
		path := filepath.Join(outDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		fw, err := zipWriter.Create(name)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		if _, err := fw.Write(data); err != nil {
			return "", err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return "", err
	}
	return archivePath, nil
}
