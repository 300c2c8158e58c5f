package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

const moduleFieldMap = `
product_type: Module
fields:
  ProdMfr: mfr
  ProdModelNumber: model
  ElectRating.0.PowerDC: pmax
fixed:
  ElectRating.0.RatingCondition: STC
`

const moduleFeed = `[
  {"mfr": "Acme", "model": "M100", "pmax": 400},
  {"mfr": "Acme", "model": "M200", "pmax": "lots"},
  {"mfr": "Acme", "model": "M100", "pmax": 410}
]`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.Execute()
	return out.String(), err
}

func TestSync_DryRun(t *testing.T) {
	dir := writeFiles(t, map[string]string{"feed.json": moduleFeed, "map.yaml": moduleFieldMap})
	reportPath := filepath.Join(dir, "report.csv")

	out, err := execute(t, "sync",
		"--dataset", "vendor-modules",
		"--source", filepath.Join(dir, "feed.json"),
		"--map", filepath.Join(dir, "map.yaml"),
		"--report", reportPath,
	)
	require.NoError(t, err)

	var report models.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.DryRun)
	assert.Equal(t, models.ProductTypeModule, report.ProductType)
	assert.Equal(t, 3, report.Received)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.RejectedValidation)
	assert.Equal(t, 1, report.Superseded)

	f, err := os.Open(reportPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"superseded", "rejected_validation", "created"}, []string{rows[1][2], rows[2][2], rows[3][2]})
}

func TestSync_RejectsMismatchedType(t *testing.T) {
	dir := writeFiles(t, map[string]string{"feed.json": moduleFeed, "map.yaml": moduleFieldMap})

	_, err := execute(t, "sync",
		"--dataset", "vendor-modules",
		"--source", filepath.Join(dir, "feed.json"),
		"--map", filepath.Join(dir, "map.yaml"),
		"--type", "Battery",
	)
	assert.ErrorContains(t, err, "not Battery")
}

func TestSync_RequiresFlags(t *testing.T) {
	_, err := execute(t, "sync", "--dataset", "x")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	dir := writeFiles(t, map[string]string{"feed.json": moduleFeed, "map.yaml": moduleFieldMap})

	out, err := execute(t, "fingerprint",
		"--source", filepath.Join(dir, "feed.json"),
		"--map", filepath.Join(dir, "map.yaml"),
	)
	require.NoError(t, err)
	assert.Contains(t, out, "NATURAL KEY")
	assert.Contains(t, out, "ACME/M100")
	assert.NotContains(t, out, "M200")
}

func TestSourceExt(t *testing.T) {
	assert.Equal(t, ".xlsx", sourceExt("/data/PV_Module_List.XLSX"))
	assert.Equal(t, ".json", sourceExt("https://example.com/feed.json?token=abc"))
	assert.Equal(t, ".xlsx", sourceExt("s3://cec/lists/batteries.xlsx"))
	assert.Equal(t, "", sourceExt("feed"))
}

func TestNewReader_Errors(t *testing.T) {
	_, _, err := newReader(sourceOptions{location: "feed.csv"}, "")
	assert.ErrorContains(t, err, "unsupported source format")

	_, _, err = newReader(sourceOptions{location: "feed.json"}, "")
	assert.ErrorContains(t, err, "--map is required")

	_, _, err = newReader(sourceOptions{location: "inverters.xlsx"}, models.ProductTypeInverter)
	assert.ErrorContains(t, err, "--map is required")

	_, pt, err := newReader(sourceOptions{location: "batteries.xlsx"}, models.ProductTypeBattery)
	require.NoError(t, err)
	assert.Equal(t, models.ProductTypeBattery, pt)
}
