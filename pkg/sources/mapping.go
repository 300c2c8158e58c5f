// Package sources reads source documents into raw records keyed by taxonomy
// field name.
package sources

import (
	"embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

//go:embed maps/*.yaml
var builtinMaps embed.FS

// absentValues are cell contents meaning "no data".
var absentValues = map[string]bool{
	"":                         true,
	"No Information Submitted": true,
	"N/A":                      true,
}

// converters map CEC spellings to taxonomy values. Values without an entry
// pass through unchanged for the validator to judge.
var converters = map[string]map[string]string{
	"cell_technology": {
		"Mono-c-Si":  "MonoSi",
		"Multi-c-Si": "PolySi",
		"Thin Film":  "ThinFilm",
		"CdTe":       "CdTe",
		"CIGS":       "CIGS",
	},
	"certification_standard": {
		"UL 1703":  "UL1703",
		"UL1703":   "UL1703",
		"UL 1741":  "UL1741",
		"UL 61730": "UL61730",
		"UL61730":  "UL61730",
		"UL61731":  "UL61730",
	},
	"battery_chemistry": {
		"Lithium-Ion":            "LiIon",
		"Lithium Ion":            "LiIon",
		"Lithium Iron":           "LiFePO4",
		"Lithium iron phosphate": "LiFePO4",
		"Lithium Iron Phosphate": "LiFePO4",
	},
	"battery_standard": {
		"Ed. 2 : 2018": "UL1973",
		"Ed. 3 : 2022": "UL1973",
	},
	"yes_no": {
		"Y": "true",
		"N": "false",
	},
}

// Column maps one source column to a taxonomy field. A column without a
// field is dropped.
type Column struct {
	Header  string `yaml:"header"`
	Field   string `yaml:"field"`
	Convert string `yaml:"convert"`
	// Split breaks a cell into several list entries. Field must carry a '#'
	// for the list position; entries are numbered from Start.
	Split string `yaml:"split"`
	Start int    `yaml:"start"`
	// With sets sibling members of the same list entry whenever the column
	// has a value, e.g. the rating condition of a rating column.
	With map[string]string `yaml:"with"`
}

// ColumnMap describes one tabular source layout.
type ColumnMap struct {
	Name        string            `yaml:"name"`
	ProductType string            `yaml:"product_type"`
	Sheet       string            `yaml:"sheet"`
	SkipRows    int               `yaml:"skip_rows"`
	Fixed       map[string]string `yaml:"fixed"`
	Columns     []Column          `yaml:"columns"`
	// Manufacturers names a manufacturer table (built-in name or path) that
	// sets ProdMfrCode from the ProdMfr value.
	Manufacturers string `yaml:"manufacturers"`

	mfrs *ManufacturerTable
}

// LoadColumnMap reads a YAML column map.
func LoadColumnMap(r io.Reader) (*ColumnMap, error) {
	var m ColumnMap
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode column map: %w", err)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	if m.Manufacturers != "" {
		mfrs, err := ManufacturerTableFile(m.Manufacturers)
		if err != nil {
			return nil, fmt.Errorf("column map %s: %w", m.Name, err)
		}
		m.mfrs = mfrs
	}
	return &m, nil
}

// ColumnMapFile loads a column map from disk, or a built-in one by name
// (cec_modules, cec_batteries).
func ColumnMapFile(nameOrPath string) (*ColumnMap, error) {
	if f, err := builtinMaps.Open("maps/" + nameOrPath + ".yaml"); err == nil {
		defer f.Close()
		return LoadColumnMap(f)
	}
	f, err := os.Open(nameOrPath)
	if err != nil {
		return nil, fmt.Errorf("open column map: %w", err)
	}
	defer f.Close()
	return LoadColumnMap(f)
}

func (m *ColumnMap) check() error {
	if _, err := models.ParseProductType(m.ProductType); err != nil {
		return fmt.Errorf("column map %s: %w", m.Name, err)
	}
	for i, c := range m.Columns {
		if c.Convert != "" {
			if _, ok := converters[c.Convert]; !ok {
				return fmt.Errorf("column map %s: column %d has unknown converter %q", m.Name, i, c.Convert)
			}
		}
		if c.Split != "" && !strings.Contains(c.Field, "#") {
			return fmt.Errorf("column map %s: split column %d needs a '#' in its field", m.Name, i)
		}
	}
	return nil
}

// Type returns the product type the map produces.
func (m *ColumnMap) Type() models.ProductType {
	pt, _ := models.ParseProductType(m.ProductType)
	return pt
}

// Record builds a raw record from one row of cells. It returns nil for a row
// without any mapped value.
func (m *ColumnMap) Record(cells []string) models.RawRecord {
	rec := models.RawRecord{}
	for i, c := range m.Columns {
		if c.Field == "" || i >= len(cells) {
			continue
		}
		raw := strings.TrimSpace(cells[i])
		if absentValues[raw] {
			continue
		}

		if c.Split == "" {
			rec[c.Field] = convert(c.Convert, raw)
			setSiblings(rec, c.Field, c.With)
			continue
		}

		n := c.Start
		for _, part := range strings.Split(raw, c.Split) {
			part = strings.TrimSpace(part)
			if absentValues[part] {
				continue
			}
			field := strings.Replace(c.Field, "#", strconv.Itoa(n), 1)
			rec[field] = convert(c.Convert, part)
			setSiblings(rec, field, c.With)
			n++
		}
	}
	if len(rec) == 0 {
		return nil
	}

	for field, value := range m.Fixed {
		if _, ok := rec[field]; !ok {
			rec[field] = value
		}
	}
	if _, ok := rec["ProdMfrCode"]; !ok {
		if name, _ := rec["ProdMfr"].(string); name != "" {
			if code, ok := m.mfrs.Code(name); ok {
				rec["ProdMfrCode"] = code
			}
		}
	}
	return rec
}

func convert(name, value string) string {
	if name == "" {
		return value
	}
	if v, ok := converters[name][value]; ok {
		return v
	}
	return value
}

func setSiblings(rec models.RawRecord, field string, with map[string]string) {
	if len(with) == 0 {
		return
	}
	prefix := field[:strings.LastIndex(field, ".")+1]
	for member, value := range with {
		rec[prefix+member] = value
	}
}
