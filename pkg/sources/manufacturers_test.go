package sources

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManufacturerTable_HanwhaAliases(t *testing.T) {
	table, err := ManufacturerTableFile("cec")
	require.NoError(t, err)

	names := []string{
		"Hanwha Q-Cells",
		"Hanwha Q CELLS",
		"Hanwha Q CELLS (Qidong)",
		"Hanwha Q CELLS (Qidong) Co., Ltd.",
		"hanwha  q cells  (qidong) co., ltd.",
		"Hanwha SolarOne (Qidong)",
	}
	for _, name := range names {
		code, ok := table.Code(name)
		require.True(t, ok, name)
		assert.Equal(t, "HANWHA_Q_CELLS", code, name)
	}

	code, ok := table.Code("LG Energy Solution, Ltd.")
	require.True(t, ok)
	assert.Equal(t, "LG_ELECTRONICS", code)

	code, ok = table.Code("Sunpower")
	require.True(t, ok)
	assert.Equal(t, "SUNPOWER", code)

	_, ok = table.Code("Acme Solar")
	assert.False(t, ok)
}

func TestLoadManufacturerTable(t *testing.T) {
	table, err := LoadManufacturerTable(strings.NewReader(`
name: test
manufacturers:
  - {name: Acme Solar, code: acme, aliases: [Acme Solar GmbH]}
  - {name: Zed Energy}
`))
	require.NoError(t, err)

	code, _ := table.Code("Acme Solar GmbH")
	assert.Equal(t, "ACME", code)
	code, _ = table.Code("Zed Energy")
	assert.Equal(t, "ZED_ENERGY", code)

	var nilTable *ManufacturerTable
	_, ok := nilTable.Code("Acme Solar")
	assert.False(t, ok)
}

func TestLoadManufacturerTable_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"conflicting alias", "manufacturers:\n  - {name: Acme, aliases: [Zed]}\n  - {name: Zed Energy, aliases: [Zed]}\n"},
		{"no code", "manufacturers:\n  - {name: '---'}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManufacturerTable(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestColumnMap_SetsManufacturerCode(t *testing.T) {
	m, err := ColumnMapFile("cec_modules")
	require.NoError(t, err)

	cells := make([]string, len(m.Columns))
	cells[0] = "Hanwha Q CELLS (Qidong) Co., Ltd."
	cells[1] = "Q.PEAK DUO ML-G10+ 400"
	rec := m.Record(cells)
	assert.Equal(t, "HANWHA_Q_CELLS", rec["ProdMfrCode"])

	cells[0] = "Hanwha Q CELLS"
	assert.Equal(t, "HANWHA_Q_CELLS", m.Record(cells)["ProdMfrCode"])

	cells[0] = "Acme Solar"
	_, ok := m.Record(cells)["ProdMfrCode"]
	assert.False(t, ok)
}
