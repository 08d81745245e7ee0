package reporter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"userapi_tester/internal/config"
	"userapi_tester/internal/model"
)

func sampleBundle() model.ReportBundle {
	desc := "Usuários devem ter todos os campos <obrigatórios>"
	return model.NewReportBundle([]model.CheckRecord{
		{Name: "Health Check", Timestamp: "2024-01-15T10:30:00Z", Expected: "200 OK", Actual: "200 OK", Verdict: model.VerdictPass},
		{Name: "GET Users - Required Fields", Timestamp: "2024-01-15T10:30:01Z", Expected: "All fields present",
			Actual: "Missing fields: age", Verdict: model.VerdictBug, Description: &desc},
		{Name: "Root Endpoint", Timestamp: "2024-01-15T10:30:02Z", Expected: "200 OK", Actual: "200 OK", Verdict: model.VerdictPass},
	})
}

func reportConfig(dir string) config.Report {
	return config.Report{
		OutputDir:   dir,
		ResultsFile: "test-results.json",
		BugsFile:    "bugs-found.json",
	}
}

func TestSave_WritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	rep := New(reportConfig(dir), "run-1").WithOutput(&out)

	require.NoError(t, rep.Save(sampleBundle()))

	raw, err := os.ReadFile(filepath.Join(dir, "test-results.json"))
	require.NoError(t, err)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(raw, &all))
	require.Len(t, all, 3)
	assert.Equal(t, "Health Check", all[0]["test_name"])
	assert.Equal(t, "PASS", all[0]["status"])
	assert.Nil(t, all[0]["bug_description"])
	assert.Contains(t, all[0], "bug_description")

	// unicode and angle brackets stay literal, two-space indent
	text := string(raw)
	assert.Contains(t, text, "Usuários devem ter todos os campos <obrigatórios>")
	assert.NotContains(t, text, `\u`)
	assert.True(t, strings.HasPrefix(text, "[\n  {\n    \"test_name\""))

	raw, err = os.ReadFile(filepath.Join(dir, "bugs-found.json"))
	require.NoError(t, err)
	var bugs []map[string]any
	require.NoError(t, json.Unmarshal(raw, &bugs))
	require.Len(t, bugs, 1)
	assert.Equal(t, "GET Users - Required Fields", bugs[0]["test_name"])
	assert.Equal(t, "BUG", bugs[0]["status"])

	assert.Contains(t, out.String(), "Results saved to "+dir)
}

func TestSave_EmptyBugsIsArray(t *testing.T) {
	dir := t.TempDir()
	rep := New(reportConfig(dir), "run-1").WithOutput(&bytes.Buffer{})

	require.NoError(t, rep.Save(model.NewReportBundle(nil)))

	raw, err := os.ReadFile(filepath.Join(dir, "bugs-found.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(raw))
}

func TestSave_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test-results.json")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 10000)), 0o644))

	rep := New(reportConfig(dir), "run-1").WithOutput(&bytes.Buffer{})
	require.NoError(t, rep.Save(sampleBundle()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))
}

func TestSave_MissingDirectoryFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	rep := New(reportConfig(dir), "run-1").WithOutput(&bytes.Buffer{})

	err := rep.Save(sampleBundle())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSave_OutputDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	err := New(reportConfig(file), "run-1").WithOutput(&bytes.Buffer{}).Save(sampleBundle())
	assert.ErrorIs(t, err, errNotDir)
}

func TestGenerateReport_Excel(t *testing.T) {
	dir := t.TempDir()
	cfg := reportConfig(dir)
	cfg.ExcelPath = filepath.Join(dir, "report.xlsx")

	var out bytes.Buffer
	rep := New(cfg, "run-42").WithOutput(&out)
	require.NoError(t, rep.GenerateReport(sampleBundle(), 1500*time.Millisecond))

	f, err := excelize.OpenFile(cfg.ExcelPath)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Len(t, sheets, 1)
	assert.True(t, strings.HasPrefix(sheets[0], "Report_"))

	rows, err := f.GetRows(sheets[0])
	require.NoError(t, err)
	assert.Equal(t, excelHeaders, rows[0])
	assert.Equal(t, "Health Check", rows[1][0])
	assert.Equal(t, "BUG", rows[2][4])
	assert.Equal(t, "Usuários devem ter todos os campos <obrigatórios>", rows[2][5])

	var summary []string
	for _, row := range rows[5:] {
		if len(row) > 0 {
			summary = append(summary, row[0])
		}
	}
	assert.Contains(t, summary, "Run ID: run-42")
	assert.Contains(t, summary, "Bugs found: 1")
	assert.Contains(t, summary, "Passed: 2")

	assert.Contains(t, out.String(), "Total tests: 3")
	assert.Contains(t, out.String(), "Bugs found: 1")
}

func TestSaveExcel_AppendsSheet(t *testing.T) {
	dir := t.TempDir()
	cfg := reportConfig(dir)
	cfg.ExcelPath = filepath.Join(dir, "report.xlsx")

	existing := excelize.NewFile()
	require.NoError(t, existing.SetCellValue("Sheet1", "A1", "cases"))
	require.NoError(t, existing.SaveAs(cfg.ExcelPath))
	require.NoError(t, existing.Close())

	rep := New(cfg, "run-1").WithOutput(&bytes.Buffer{})
	require.NoError(t, rep.SaveExcel(sampleBundle(), time.Second))

	f, err := excelize.OpenFile(cfg.ExcelPath)
	require.NoError(t, err)
	defer f.Close()
	sheets := f.GetSheetList()
	require.Len(t, sheets, 2)
	assert.Equal(t, "Sheet1", sheets[0])
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	New(reportConfig("."), "run-1").WithOutput(&out).PrintSummary(sampleBundle(), 2*time.Second)

	text := out.String()
	assert.Contains(t, text, "Tests finished in 2.00s")
	assert.Contains(t, text, "📊 Total tests: 3")
	assert.Contains(t, text, "🐛 Bugs found: 1")
	assert.Contains(t, text, "✅ Tests passed: 2")
	assert.Contains(t, text, "Tests failed: 1")
}
