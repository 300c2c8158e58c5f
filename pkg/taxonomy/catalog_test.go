package taxonomy

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

func defaultCatalogForTest(t *testing.T) *FileCatalog {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "ElectRating.#.PowerDC", CanonicalName("ElectRating.0.PowerDC"))
	assert.Equal(t, "ElectRating.#.PowerDC", CanonicalName("ElectRating.12.PowerDC"))
	assert.Equal(t, "SourceCountry.#", CanonicalName("SourceCountry.3"))
	assert.Equal(t, "ProdMfr", CanonicalName(" ProdMfr "))
}

func TestFileCatalog_Lookup(t *testing.T) {
	c := defaultCatalogForTest(t)

	t.Run("indexed field", func(t *testing.T) {
		def, err := c.Lookup("ElectRating.1.PowerDC")
		require.NoError(t, err)
		assert.Equal(t, DatatypeDecimal, def.Datatype)
		assert.Equal(t, "W", def.Unit)
		assert.Nil(t, def.AllowedValues)
	})

	t.Run("enumeration", func(t *testing.T) {
		def, err := c.Lookup("CellTechnologyType")
		require.NoError(t, err)
		assert.Contains(t, def.AllowedValues, "MonoSi")
		assert.True(t, def.AppliesTo(models.ProductTypeModule))
		assert.False(t, def.AppliesTo(models.ProductTypeBattery))
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := c.Lookup("NotAField")
		assert.ErrorIs(t, err, ErrUnknownField)
	})
}

func TestFileCatalog_Validate(t *testing.T) {
	c := defaultCatalogForTest(t)

	tests := []struct {
		field string
		value any
		want  bool
	}{
		{"ElectRating.0.PowerDC", "350.5", true},
		{"ElectRating.0.PowerDC", 350.5, true},
		{"ElectRating.0.PowerDC", "three hundred", false},
		{"ElectRating.0.PowerDC", "-1", false},
		{"CellsInSeries", "60", true},
		{"CellsInSeries", "60.5", false},
		{"IsBIPV", "Y", true},
		{"IsBIPV", "maybe", false},
		{"CellTechnologyType", "monosi", true},
		{"CellTechnologyType", "Mono-c-Si", false},
		{"SourceCountry.0", "US", true},
		{"SourceCountry.0", "USA", false},
		{"ProdCertification.0.CertificationDate", "2021-03-04", true},
		{"ProdCertification.0.CertificationDate", "03/04/2021", true},
		{"ProdCertification.0.CertificationDate", "last spring", false},
		{"ProdDatasheetURL", "https://example.com/sheet.pdf", true},
		{"ProdDatasheetURL", "not a url", false},
		{"ProdID", "0b7c3f0e-52f4-4a59-8f0a-7b8b1b2d5e11", true},
		{"ProdID", "1234", false},
		{"Unknown", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Validate(tt.field, tt.value), "value %v", tt.value)
		})
	}
}

func TestFileCatalog_Coerce(t *testing.T) {
	c := defaultCatalogForTest(t)

	v, err := c.Coerce("ElectRating.0.PowerDC", " 400.10 ")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("400.1").Equal(v.(decimal.Decimal)))

	v, err = c.Coerce("CellsInSeries", 72.0)
	require.NoError(t, err)
	assert.Equal(t, int64(72), v)

	v, err = c.Coerce("Description", "  High   efficiency\tpanel ")
	require.NoError(t, err)
	assert.Equal(t, "High efficiency panel", v)

	v, err = c.Coerce("ProdCertification.0.CertificationDate", "2020/01/31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), v)

	v, err = c.Coerce("BatteryChemistryType", "lifepo4")
	require.NoError(t, err)
	assert.Equal(t, "LiFePO4", v)
}

func TestFileCatalog_Required(t *testing.T) {
	c := defaultCatalogForTest(t)
	assert.Equal(t, []string{"ProdMfr", "ProdModelNumber"}, c.Required(models.ProductTypeModule))
}

func TestLoad(t *testing.T) {
	t.Run("missing version", func(t *testing.T) {
		_, err := Load(strings.NewReader("fields: []\n"))
		assert.ErrorIs(t, err, ErrCatalogUnavailable)
	})

	t.Run("unknown datatype", func(t *testing.T) {
		_, err := Load(strings.NewReader("version: v1\nfields:\n  - name: A\n    datatype: Blob\n"))
		assert.Error(t, err)
	})

	t.Run("duplicate field", func(t *testing.T) {
		_, err := Load(strings.NewReader("version: v1\nfields:\n  - name: A\n    datatype: String\n  - name: A\n    datatype: String\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile("/nonexistent/catalog.yaml")
		assert.ErrorIs(t, err, ErrCatalogUnavailable)
	})
}
