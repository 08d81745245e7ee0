package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"userapi_tester/internal/config"
	"userapi_tester/internal/model"
)

const (
	// Excel
	defaultSheetNameFormat = "Report_%s"
	timeFormat             = "2006-01-02_15-04-05"
	minColumn              = 'A'
	maxColumn              = 'F'
	defaultColumnWidth     = 24

	// styles
	patternType  = "pattern"
	patternValue = 1
	bugBgColor   = "FF5900"
	passBgColor  = "C6EFCE"
)

var excelHeaders = []string{
	"Test", "Timestamp", "Expected", "Actual", "Status", "Bug Description",
}

type Reporter struct {
	config config.Report
	runID  string
	out    io.Writer
}

func New(cfg config.Report, runID string) *Reporter {
	return &Reporter{config: cfg, runID: runID, out: os.Stdout}
}

// WithOutput redirects the console summary.
func (r *Reporter) WithOutput(w io.Writer) *Reporter {
	r.out = w
	return r
}

// GenerateReport prints the summary and persists every configured report.
// Any write failure is returned.
func (r *Reporter) GenerateReport(bundle model.ReportBundle, duration time.Duration) error {
	r.PrintSummary(bundle, duration)

	if err := r.Save(bundle); err != nil {
		return err
	}
	if r.config.ExcelPath != "" {
		if err := r.SaveExcel(bundle, duration); err != nil {
			return err
		}
	}
	return nil
}

// Save writes all records and the bugs-only subset as indented JSON,
// replacing existing files. The output directory must already exist.
func (r *Reporter) Save(bundle model.ReportBundle) error {
	dir := r.config.OutputDir
	if dir == "" {
		dir = "."
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s: %w", dir, errNotDir)
	}

	if err := writeJSON(filepath.Join(dir, r.config.ResultsFile), nonNil(bundle.All)); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, r.config.BugsFile), nonNil(bundle.Bugs)); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "💾 Results saved to %s\n", dir)
	return nil
}

var errNotDir = errors.New("not a directory")

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func nonNil(records []model.CheckRecord) []model.CheckRecord {
	if records == nil {
		return []model.CheckRecord{}
	}
	return records
}

// SaveExcel appends a timestamped sheet to the workbook at ExcelPath,
// creating the workbook when it does not exist yet.
func (r *Reporter) SaveExcel(bundle model.ReportBundle, duration time.Duration) error {
	path := r.config.ExcelPath
	f, created, err := openWorkbook(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sheetName := fmt.Sprintf(defaultSheetNameFormat, time.Now().Format(timeFormat))
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if created {
		// drop the empty default sheet of a fresh workbook
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("delete default sheet: %w", err)
		}
	}
	index, err := f.GetSheetIndex(sheetName)
	if err != nil {
		return fmt.Errorf("find sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for col := minColumn; col <= maxColumn; col++ {
		colName := string(col)
		if err := f.SetColWidth(sheetName, colName, colName, defaultColumnWidth); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	for i, header := range excelHeaders {
		cell := fmt.Sprintf("%c1", minColumn+i)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}
	for i, rec := range bundle.All {
		if err := writeRecord(f, sheetName, i+2, rec, styles); err != nil {
			return err
		}
	}

	summaryRow := len(bundle.All) + 3
	if err := r.writeSummary(f, sheetName, summaryRow, bundle, duration); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save excel report %s: %w", path, err)
	}

	fmt.Fprintf(r.out, "📊 Excel report saved to sheet %s of %s\n", sheetName, path)
	return nil
}

func openWorkbook(path string) (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(path)
	if err == nil {
		return f, false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}
	return nil, false, fmt.Errorf("open excel report %s: %w", path, err)
}

type rowStyles struct {
	bug  int
	pass int
}

func newStyles(f *excelize.File) (rowStyles, error) {
	bug, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: patternType, Pattern: patternValue, Color: []string{bugBgColor}},
	})
	if err != nil {
		return rowStyles{}, fmt.Errorf("create style: %w", err)
	}
	pass, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: patternType, Pattern: patternValue, Color: []string{passBgColor}},
	})
	if err != nil {
		return rowStyles{}, fmt.Errorf("create style: %w", err)
	}
	return rowStyles{bug: bug, pass: pass}, nil
}

func writeRecord(f *excelize.File, sheet string, row int, rec model.CheckRecord, styles rowStyles) error {
	description := ""
	if rec.Description != nil {
		description = *rec.Description
	}
	cells := []interface{}{
		rec.Name,
		rec.Timestamp,
		rec.Expected,
		rec.Actual,
		string(rec.Verdict),
		description,
	}

	style := styles.pass
	if rec.IsBug() {
		style = styles.bug
	}
	for i, cell := range cells {
		cellName := fmt.Sprintf("%c%d", minColumn+i, row)
		if err := f.SetCellValue(sheet, cellName, cell); err != nil {
			return fmt.Errorf("write cell %s: %w", cellName, err)
		}
	}
	first := fmt.Sprintf("%c%d", minColumn, row)
	last := fmt.Sprintf("%c%d", maxColumn, row)
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return fmt.Errorf("style row %d: %w", row, err)
	}
	return nil
}

func (r *Reporter) writeSummary(f *excelize.File, sheet string, startRow int, bundle model.ReportBundle, duration time.Duration) error {
	lines := []string{
		"Summary",
		fmt.Sprintf("Run ID: %s", r.runID),
		fmt.Sprintf("Total duration: %.3fs", duration.Seconds()),
		fmt.Sprintf("Total tests: %d", len(bundle.All)),
		fmt.Sprintf("Bugs found: %d", len(bundle.Bugs)),
		fmt.Sprintf("Passed: %d", bundle.Passed()),
	}
	for i, line := range lines {
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", startRow+i), line); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

// PrintSummary prints the end-of-run block. A BUG counts as a failed test.
func (r *Reporter) PrintSummary(bundle model.ReportBundle, duration time.Duration) {
	fmt.Fprintf(r.out, "✅ Tests finished in %.2fs\n", duration.Seconds())
	fmt.Fprintf(r.out, "📊 Total tests: %d\n", len(bundle.All))
	fmt.Fprintf(r.out, "🐛 Bugs found: %d\n", len(bundle.Bugs))
	fmt.Fprintf(r.out, "✅ Tests passed: %d\n", bundle.Passed())
	if len(bundle.Bugs) > 0 {
		fmt.Fprintf(r.out, "\033[31m❌ Tests failed: %d\033[0m\n", len(bundle.Bugs))
	} else {
		fmt.Fprintf(r.out, "❌ Tests failed: %d\n", len(bundle.Bugs))
	}
}
