package report

import (
	"bytes"
	"fmt"
	"math"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"iaq-analysis/internal/pipeline"
)

// BuildRankingPDF renders the efficacy ranking with its best/worst case spread.
func BuildRankingPDF(result *pipeline.Result) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Filtration Efficacy Ranking")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", result.RunID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", formatTime(result.FinishedAt)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Scenario runs: %d  Configurations: %d", result.Runs, result.Configurations))
	pdf.Ln(5)
	w := result.Weights
	pdf.Cell(0, 6, fmt.Sprintf("Weights: PM2.5 %.2f  PM10 %.2f  Cost %.2f  AQI-hours %.2f", w.PM25, w.PM10, w.CostEffectiveness, w.AQIHours))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(15, 6, "Rank", "1", 0, "C", false, 0, "")
	pdf.CellFormat(90, 6, "Configuration", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Mean", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Best case", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Worst case", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Range", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range result.Efficacy {
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", row.Rank), "1", 0, "C", false, 0, "")
		pdf.CellFormat(90, 6, row.Configuration().String(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmtNum(row.MeanScore), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmtNum(row.BestCaseScore), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmtNum(row.WorstCaseScore), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmtNum(row.ScoreRange), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildWorkbook renders a summary sheet plus one sheet per output table.
func BuildWorkbook(result *pipeline.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	_ = f.SetCellValue(summarySheet, "A1", "IAQ Filtration Analysis")
	_ = f.SetCellValue(summarySheet, "A3", "Run")
	_ = f.SetCellValue(summarySheet, "B3", result.RunID)
	_ = f.SetCellValue(summarySheet, "A4", "Started")
	_ = f.SetCellValue(summarySheet, "B4", formatTime(result.StartedAt))
	_ = f.SetCellValue(summarySheet, "A5", "Scenario runs")
	_ = f.SetCellValue(summarySheet, "B5", result.Runs)
	_ = f.SetCellValue(summarySheet, "A6", "Configurations")
	_ = f.SetCellValue(summarySheet, "B6", result.Configurations)
	_ = f.SetCellValue(summarySheet, "A7", "Weight PM2.5")
	_ = f.SetCellValue(summarySheet, "B7", result.Weights.PM25)
	_ = f.SetCellValue(summarySheet, "A8", "Weight PM10")
	_ = f.SetCellValue(summarySheet, "B8", result.Weights.PM10)
	_ = f.SetCellValue(summarySheet, "A9", "Weight cost-effectiveness")
	_ = f.SetCellValue(summarySheet, "B9", result.Weights.CostEffectiveness)
	_ = f.SetCellValue(summarySheet, "A10", "Weight AQI-hours")
	_ = f.SetCellValue(summarySheet, "B10", result.Weights.AQIHours)

	for _, table := range outputTables(result) {
		if _, err := f.NewSheet(table.Name); err != nil {
			return nil, err
		}
		for col, name := range table.Header {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(table.Name, cell, name)
		}
		for i, row := range table.Rows {
			for col, value := range row {
				cell, err := excelize.CoordinatesToCellName(col+1, i+2)
				if err != nil {
					return nil, err
				}
				_ = f.SetCellValue(table.Name, cell, sheetValue(value))
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sheetValue writes non-finite floats as text; spreadsheet numbers cannot hold them.
func sheetValue(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return formatFloat(f)
	}
	return v
}
