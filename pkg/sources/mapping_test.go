package sources

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

func TestColumnMapFile_Builtin(t *testing.T) {
	modules, err := ColumnMapFile("cec_modules")
	require.NoError(t, err)
	assert.Equal(t, models.ProductTypeModule, modules.Type())
	assert.Equal(t, 18, modules.SkipRows)
	assert.Len(t, modules.Columns, 37)

	batteries, err := ColumnMapFile("cec_batteries")
	require.NoError(t, err)
	assert.Equal(t, models.ProductTypeBattery, batteries.Type())
	assert.Equal(t, 12, batteries.SkipRows)
	assert.Len(t, batteries.Columns, 16)
}

func TestLoadColumnMap_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown product type", "product_type: Turbine\n"},
		{"unknown converter", "product_type: Module\ncolumns:\n  - {field: IsBIPV, convert: nope}\n"},
		{"split without position", "product_type: Module\ncolumns:\n  - {field: SourceCountry.0, split: ','}\n"},
		{"missing manufacturer table", "product_type: Module\nmanufacturers: no_such_table\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadColumnMap(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestColumnMap_Record(t *testing.T) {
	m, err := LoadColumnMap(strings.NewReader(`
product_type: Module
fixed:
  IsCECListed: "true"
columns:
  - {field: ProdMfr}
  - {field: ProdModelNumber}
  - {header: Ignored}
  - field: "ProdCertification.#.CertificationStandard"
    convert: certification_standard
    split: ","
    with: {CertificationAgency: UL}
  - {field: CellTechnologyType, convert: cell_technology}
  - field: ElectRating.1.PowerDC
    with: {RatingCondition: PTC}
  - {field: ProdCertification.10.CertificationDate}
`))
	require.NoError(t, err)

	rec := m.Record([]string{" Acme ", "M100", "whatever", "UL 61730, UL 1703", "Mono-c-Si", "", "No Information Submitted"})
	assert.Equal(t, models.RawRecord{
		"ProdMfr":                                 "Acme",
		"ProdModelNumber":                         "M100",
		"ProdCertification.0.CertificationStandard": "UL61730",
		"ProdCertification.0.CertificationAgency":   "UL",
		"ProdCertification.1.CertificationStandard": "UL1703",
		"ProdCertification.1.CertificationAgency":   "UL",
		"CellTechnologyType":                        "MonoSi",
		"IsCECListed":                               "true",
	}, rec)

	assert.Nil(t, m.Record([]string{"", "", "x"}))
	assert.Nil(t, m.Record(nil))
}

func TestColumnMap_UnknownEnumPassesThrough(t *testing.T) {
	m, err := LoadColumnMap(strings.NewReader("product_type: Module\ncolumns:\n  - {field: CellTechnologyType, convert: cell_technology}\n"))
	require.NoError(t, err)
	assert.Equal(t, "Perovskite", m.Record([]string{"Perovskite"})["CellTechnologyType"])
}
