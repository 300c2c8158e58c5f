package sources

import (
	"embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/normalizers"
)

//go:embed manufacturers/*.yaml
var builtinManufacturers embed.FS

// Manufacturer is one company and the names sources list it under.
type Manufacturer struct {
	Name    string   `yaml:"name"`
	Code    string   `yaml:"code"`
	Aliases []string `yaml:"aliases"`
}

// ManufacturerTable resolves manufacturer names to entity codes.
type ManufacturerTable struct {
	Name          string         `yaml:"name"`
	Manufacturers []Manufacturer `yaml:"manufacturers"`

	codes map[string]string
}

// LoadManufacturerTable reads a YAML manufacturer table. Two entries may not
// claim the same name.
func LoadManufacturerTable(r io.Reader) (*ManufacturerTable, error) {
	var t ManufacturerTable
	if err := yaml.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode manufacturer table: %w", err)
	}

	t.codes = map[string]string{}
	for i, m := range t.Manufacturers {
		code := strings.ToUpper(strings.TrimSpace(m.Code))
		if code == "" {
			code = normalizers.EntityCode(m.Name)
		}
		if code == "" {
			return nil, fmt.Errorf("manufacturer table %s: entry %d has neither a code nor a usable name", t.Name, i)
		}
		t.Manufacturers[i].Code = code

		for _, name := range append([]string{m.Name}, m.Aliases...) {
			key := manufacturerKey(name)
			if key == "" {
				continue
			}
			if other, dup := t.codes[key]; dup && other != code {
				return nil, fmt.Errorf("manufacturer table %s: %q maps to both %s and %s", t.Name, name, other, code)
			}
			t.codes[key] = code
		}
	}
	return &t, nil
}

// ManufacturerTableFile loads a built-in table by name (cec) or a table file.
func ManufacturerTableFile(nameOrPath string) (*ManufacturerTable, error) {
	if f, err := builtinManufacturers.Open("manufacturers/" + nameOrPath + ".yaml"); err == nil {
		defer f.Close()
		return LoadManufacturerTable(f)
	}
	f, err := os.Open(nameOrPath)
	if err != nil {
		return nil, fmt.Errorf("open manufacturer table: %w", err)
	}
	defer f.Close()
	return LoadManufacturerTable(f)
}

// Code returns the entity code for a manufacturer name. Case and whitespace
// runs are ignored.
func (t *ManufacturerTable) Code(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	code, ok := t.codes[manufacturerKey(name)]
	return code, ok
}

func manufacturerKey(name string) string {
	return normalizers.Lowercase(normalizers.CollapseWhitespace(name))
}
