package sources

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/staging"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/taxonomy"
)

// workbook builds an in-memory xlsx with skip preamble rows followed by rows.
func workbook(t *testing.T, skip int, rows ...[]any) *bytes.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i := 0; i < skip; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(sheet, cell, "preamble"))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, skip+i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func moduleRow(mfr, model, cert, pmax, tech, bipv string) []any {
	row := make([]any, 37)
	for i := range row {
		row[i] = ""
	}
	row[0] = mfr
	row[1] = model
	row[2] = "Mono PERC module"
	row[3] = cert
	row[4] = pmax
	row[5] = "366.2"
	row[7] = "No Information Submitted"
	row[10] = tech
	row[11] = "1.95"
	row[12] = "72"
	row[13] = "1"
	row[14] = bipv
	row[15] = "10.2"
	row[16] = "49.5"
	row[17] = "9.7"
	row[18] = "41.3"
	row[31] = "0.992"
	row[32] = "1.956"
	row[35] = "2023-07-01"
	return row
}

func TestExcelReader_CECModules(t *testing.T) {
	columns, err := ColumnMapFile("cec_modules")
	require.NoError(t, err)

	src := workbook(t, 18,
		moduleRow("Acme Solar", "M400", "UL 61730, UL 1703", "400", "Mono-c-Si", "N"),
		nil,
		moduleRow("Zed Power", "Z1", "UL 61730", "320", "Thin Film", "Y"),
	)

	records, err := NewExcelReader(columns).Read(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, records, 2)

	rec := records[0]
	assert.Equal(t, "Acme Solar", rec["ProdMfr"])
	assert.Equal(t, "M400", rec["ProdModelNumber"])
	assert.Equal(t, "UL61730", rec["ProdCertification.0.CertificationStandard"])
	assert.Equal(t, "UL1703", rec["ProdCertification.1.CertificationStandard"])
	assert.Equal(t, "UL", rec["ProdCertification.1.CertificationAgency"])
	assert.Equal(t, "STC", rec["ElectRating.0.RatingCondition"])
	assert.Equal(t, "PTC", rec["ElectRating.1.RatingCondition"])
	assert.Equal(t, "MonoSi", rec["CellTechnologyType"])
	assert.Equal(t, "false", rec["IsBIPV"])
	assert.NotContains(t, rec, "ProdCertification.10.CertificationDate")
	assert.NotContains(t, rec, "ElectRating.2.RatingCondition")

	catalog, err := taxonomy.Default()
	require.NoError(t, err)
	validator := staging.NewValidator(catalog, models.ProductTypeModule)
	for _, rec := range records {
		result := validator.Validate(rec)
		assert.True(t, result.Valid, "%v", result.Errors)
	}
}

func TestExcelReader_CECBatteries(t *testing.T) {
	columns, err := ColumnMapFile("cec_batteries")
	require.NoError(t, err)

	src := workbook(t, 12, []any{
		"Acme Storage", "Acme", "B10", "Lithium Iron Phosphate", "Home battery",
		"UL", "2022-03-15", "Ed. 3 : 2022", "10.1", "5",
		"90%", "", "", "", "2022-04-01", "",
	})

	records, err := NewExcelReader(columns).Read(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "LiFePO4", records[0]["BatteryChemistryType"])
	assert.Equal(t, "UL1973", records[0]["ProdCertification.0.CertificationStandard"])
	assert.NotContains(t, records[0], "Brand")

	catalog, err := taxonomy.Default()
	require.NoError(t, err)
	result := staging.NewValidator(catalog, models.ProductTypeBattery).Validate(records[0])
	assert.True(t, result.Valid, "%v", result.Errors)
}

func TestExcelReader_ShortSheet(t *testing.T) {
	columns, err := ColumnMapFile("cec_batteries")
	require.NoError(t, err)

	records, err := NewExcelReader(columns).Read(context.Background(), workbook(t, 5))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExcelReader_NotAWorkbook(t *testing.T) {
	columns, err := ColumnMapFile("cec_batteries")
	require.NoError(t, err)

	_, err = NewExcelReader(columns).Read(context.Background(), bytes.NewReader([]byte("not a zip")))
	assert.Error(t, err)
}
