// Package taxonomy exposes the versioned field vocabulary product records are
// validated against. The catalog is read-only once loaded.
package taxonomy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

//go:embed ob_products.yaml
var defaultCatalog []byte

var (
	ErrUnknownField       = errors.New("unknown taxonomy field")
	ErrCatalogUnavailable = errors.New("taxonomy catalog unavailable")
)

type Datatype string

const (
	DatatypeString   Datatype = "String"
	DatatypeDecimal  Datatype = "Decimal"
	DatatypeInteger  Datatype = "Integer"
	DatatypeBoolean  Datatype = "Boolean"
	DatatypeDate     Datatype = "Date"
	DatatypeDateTime Datatype = "DateTime"
	DatatypeURL      Datatype = "URL"
	DatatypeUUID     Datatype = "UUID"
)

// FieldDefinition describes one taxonomy field.
type FieldDefinition struct {
	Name          string               `yaml:"name" json:"name"`
	Datatype      Datatype             `yaml:"datatype" json:"datatype"`
	Unit          string               `yaml:"unit,omitempty" json:"unit,omitempty"`
	AllowedValues []string             `yaml:"allowed_values,omitempty" json:"allowed_values,omitempty"`
	Pattern       string               `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Minimum       *float64             `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	ProductTypes  []models.ProductType `yaml:"product_types,omitempty" json:"product_types,omitempty"`
	Required      bool                 `yaml:"required,omitempty" json:"required,omitempty"`
	Description   string               `yaml:"description,omitempty" json:"description,omitempty"`

	pattern *regexp.Regexp
	minimum *decimal.Decimal
}

// AppliesTo reports whether the field may appear on records of product type pt.
func (d *FieldDefinition) AppliesTo(pt models.ProductType) bool {
	return len(d.ProductTypes) == 0 || slices.Contains(d.ProductTypes, pt)
}

type document struct {
	Version string            `yaml:"version"`
	Fields  []FieldDefinition `yaml:"fields"`
}

// Catalog is the read-only contract the loader validates against.
type Catalog interface {
	Version() string
	Lookup(field string) (*FieldDefinition, error)
	Validate(field string, value any) bool
	Coerce(field string, value any) (any, error)
	Required(pt models.ProductType) []string
}

// FileCatalog is a Catalog parsed from a YAML document.
type FileCatalog struct {
	version string
	fields  map[string]*FieldDefinition
	order   []string
}

// Default returns the catalog compiled into the binary.
func Default() (*FileCatalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

func LoadFile(path string) (*FileCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*FileCatalog, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse catalog: %v", ErrCatalogUnavailable, err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("%w: catalog has no version", ErrCatalogUnavailable)
	}

	c := &FileCatalog{
		version: doc.Version,
		fields:  make(map[string]*FieldDefinition, len(doc.Fields)),
	}
	for i := range doc.Fields {
		def := doc.Fields[i]
		if def.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if _, dup := c.fields[def.Name]; dup {
			return nil, fmt.Errorf("field %s is defined twice", def.Name)
		}
		switch def.Datatype {
		case DatatypeString, DatatypeDecimal, DatatypeInteger, DatatypeBoolean,
			DatatypeDate, DatatypeDateTime, DatatypeURL, DatatypeUUID:
		default:
			return nil, fmt.Errorf("field %s has unknown datatype %q", def.Name, def.Datatype)
		}
		if def.Pattern != "" {
			re, err := regexp.Compile(def.Pattern)
			if err != nil {
				return nil, fmt.Errorf("field %s has invalid pattern: %w", def.Name, err)
			}
			def.pattern = re
		}
		if def.Minimum != nil {
			m := decimal.NewFromFloat(*def.Minimum)
			def.minimum = &m
		}
		c.fields[def.Name] = &def
		c.order = append(c.order, def.Name)
	}

	return c, nil
}

func (c *FileCatalog) Version() string {
	return c.version
}

// Lookup resolves a record field name, including list positions such as
// "ElectRating.2.PowerDC", to its definition.
func (c *FileCatalog) Lookup(field string) (*FieldDefinition, error) {
	def, ok := c.fields[CanonicalName(field)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return def, nil
}

func (c *FileCatalog) Validate(field string, value any) bool {
	_, err := c.Coerce(field, value)
	return err == nil
}

func (c *FileCatalog) Coerce(field string, value any) (any, error) {
	def, err := c.Lookup(field)
	if err != nil {
		return nil, err
	}
	return Coerce(def, value)
}

// Required lists the required fields for product type pt in catalog order.
func (c *FileCatalog) Required(pt models.ProductType) []string {
	var required []string
	for _, name := range c.order {
		def := c.fields[name]
		if def.Required && def.AppliesTo(pt) {
			required = append(required, name)
		}
	}
	return required
}

// CanonicalName replaces list positions in a dotted field name with '#'.
func CanonicalName(field string) string {
	parts := strings.Split(strings.TrimSpace(field), ".")
	for i, p := range parts {
		if p != "" && strings.Trim(p, "0123456789") == "" {
			parts[i] = "#"
		}
	}
	return strings.Join(parts, ".")
}
