package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jmespath/go-jmespath"
	"gopkg.in/yaml.v3"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

// FieldMap describes a JSON source: Items selects the array of products
// and Fields maps each taxonomy field to a JMESPath expression evaluated
// against one item.
type FieldMap struct {
	Name        string            `yaml:"name"`
	ProductType string            `yaml:"product_type"`
	Items       string            `yaml:"items"`
	Fields      map[string]string `yaml:"fields"`
	Fixed       map[string]string `yaml:"fixed"`
}

func LoadFieldMap(r io.Reader) (*FieldMap, error) {
	var m FieldMap
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode field map: %w", err)
	}
	if _, err := models.ParseProductType(m.ProductType); err != nil {
		return nil, fmt.Errorf("field map %s: %w", m.Name, err)
	}
	return &m, nil
}

type compiledField struct {
	field string
	expr  *jmespath.JMESPath
}

// JSONReader extracts records from a JSON document with JMESPath.
type JSONReader struct {
	items  *jmespath.JMESPath
	fields []compiledField
	fixed  map[string]string
}

var _ Reader = (*JSONReader)(nil)

// NewJSONReader compiles every expression of m up front.
func NewJSONReader(m *FieldMap) (*JSONReader, error) {
	items := m.Items
	if items == "" {
		items = "@"
	}
	itemsExpr, err := jmespath.Compile(items)
	if err != nil {
		return nil, fmt.Errorf("compile items expression %q: %w", items, err)
	}

	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]compiledField, 0, len(names))
	for _, name := range names {
		expr, err := jmespath.Compile(m.Fields[name])
		if err != nil {
			return nil, fmt.Errorf("compile expression for %s: %w", name, err)
		}
		fields = append(fields, compiledField{field: name, expr: expr})
	}

	return &JSONReader{items: itemsExpr, fields: fields, fixed: m.Fixed}, nil
}

func (r *JSONReader) Read(ctx context.Context, src io.Reader) ([]models.RawRecord, error) {
	_, span := tracing.StartSpan(ctx, "sources.JSONReader.Read")
	defer span.End()

	body, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read json source: %w", err)
	}

	// numbers stay json.Number so decimals keep their precision
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json source: %w", err)
	}

	selected, err := r.items.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	items, ok := selected.([]any)
	if !ok {
		return nil, fmt.Errorf("items expression selected %T, not an array", selected)
	}

	records := make([]models.RawRecord, 0, len(items))
	for i, item := range items {
		rec := models.RawRecord{}
		for _, f := range r.fields {
			v, err := f.expr.Search(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: evaluate %s: %w", i, f.field, err)
			}
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok && absentValues[s] {
				continue
			}
			rec[f.field] = v
		}
		for field, value := range r.fixed {
			if _, ok := rec[field]; !ok {
				rec[field] = value
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
