package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Acme", "ACME"},
		{"legal suffix", "Acme Solar, Inc.", "ACME_SOLAR"},
		{"stacked suffixes", "Sun Power Co. Ltd", "SUN_POWER"},
		{"punctuation", "Hanwha Q-CELLS", "HANWHA_Q_CELLS"},
		{"only suffix kept", "Company", "COMPANY"},
		{"long name", "The Extraordinarily Long Named Photovoltaic Manufacturer", "THE_EXTRAORDINARILY_LONG_NAMED_P"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntityCode(tt.in))
		})
	}
}

func TestProdCode(t *testing.T) {
	assert.Equal(t, "ACME-M100", ProdCode("ACME", "M100"))
	assert.Equal(t, "ACME-Q_PEAK_DUO_ML_G10_400", ProdCode("ACME", "Q.PEAK DUO ML-G10+400"))
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "acme solar", ApplyChain("  Acme   Solar ", "collapse_whitespace", "lowercase"))
	assert.Equal(t, "unchanged", ApplyChain("unchanged", "no_such_normalizer"))

	fn, ok := Get("uppercase")
	assert.True(t, ok)
	assert.Equal(t, "ABC", fn("abc"))
}

func TestNextProdCode(t *testing.T) {
	used := map[string]bool{}
	taken := func(code string) bool { return used[code] }

	assert.Equal(t, "ACME-M_100", NextProdCode("ACME-M_100", taken))

	used["ACME-M_100"] = true
	assert.Equal(t, "ACME-M_100-2", NextProdCode("ACME-M_100", taken))

	used["ACME-M_100-2"] = true
	used["ACME-M_100-4"] = true
	assert.Equal(t, "ACME-M_100-3", NextProdCode("ACME-M_100", taken))
}
