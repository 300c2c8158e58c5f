package staging

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/taxonomy"
)

// ValidationResult is the outcome of checking one raw record against the catalog.
type ValidationResult struct {
	Valid  bool
	Errors []syncerrors.FieldError
	// Values holds the coerced value of every present, valid field.
	Values map[string]any
}

func (r *ValidationResult) addError(field string, value any, format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, syncerrors.FieldError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

// Validator checks raw records against a taxonomy catalog for one product type.
type Validator struct {
	catalog     taxonomy.Catalog
	productType models.ProductType
}

func NewValidator(catalog taxonomy.Catalog, productType models.ProductType) *Validator {
	return &Validator{catalog: catalog, productType: productType}
}

// Validate checks every present field of raw. Empty values count as absent.
func (v *Validator) Validate(raw models.RawRecord) ValidationResult {
	result := ValidationResult{Valid: true, Values: map[string]any{}}

	fields := make([]string, 0, len(raw))
	for field := range raw {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := raw[field]
		if isEmpty(value) {
			continue
		}

		def, err := v.catalog.Lookup(field)
		if err != nil {
			if errors.Is(err, taxonomy.ErrUnknownField) {
				result.addError(field, value, "is not a taxonomy field")
			} else {
				result.addError(field, value, "could not be looked up: %v", err)
			}
			continue
		}
		if !def.AppliesTo(v.productType) {
			result.addError(field, value, "does not apply to %s products", v.productType)
			continue
		}

		coerced, err := taxonomy.Coerce(def, value)
		if err != nil {
			result.addError(field, value, "is invalid: %v", err)
			continue
		}
		result.Values[strings.TrimSpace(field)] = coerced
	}

	for _, required := range v.catalog.Required(v.productType) {
		if _, ok := result.Values[required]; ok {
			continue
		}
		if isEmpty(raw[required]) {
			result.addError(required, nil, "is required")
		}
	}

	if pt, ok := result.Values["ProdType"].(string); ok {
		parsed, err := models.ParseProductType(pt)
		if err != nil || parsed != v.productType {
			result.addError("ProdType", pt, "does not match the dataset product type %s", v.productType)
		}
	}

	return result
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}
