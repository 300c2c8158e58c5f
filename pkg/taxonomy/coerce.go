package taxonomy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	time.DateOnly,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Coerce converts a raw source value into the canonical Go value for def:
// string, decimal.Decimal, int64, bool or time.Time.
func Coerce(def *FieldDefinition, value any) (any, error) {
	switch def.Datatype {
	case DatatypeString:
		return coerceString(def, value)
	case DatatypeDecimal:
		d, err := toDecimal(value)
		if err != nil {
			return nil, err
		}
		return d, checkMinimum(def, d)
	case DatatypeInteger:
		d, err := toDecimal(value)
		if err != nil {
			return nil, err
		}
		if !d.IsInteger() {
			return nil, fmt.Errorf("expected an integer, got %s", d.String())
		}
		if err := checkMinimum(def, d); err != nil {
			return nil, err
		}
		return d.IntPart(), nil
	case DatatypeBoolean:
		return toBool(value)
	case DatatypeDate:
		t, err := toTime(value)
		if err != nil {
			return nil, err
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case DatatypeDateTime:
		t, err := toTime(value)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case DatatypeURL:
		s, err := toText(value)
		if err != nil {
			return nil, err
		}
		u, err := url.ParseRequestURI(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid URL %q", s)
		}
		return u.String(), nil
	case DatatypeUUID:
		s, err := toText(value)
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q", s)
		}
		return id.String(), nil
	}
	return nil, fmt.Errorf("unsupported datatype %s", def.Datatype)
}

func coerceString(def *FieldDefinition, value any) (string, error) {
	s, err := toText(value)
	if err != nil {
		return "", err
	}
	s = strings.Join(strings.Fields(s), " ")

	if len(def.AllowedValues) > 0 {
		for _, allowed := range def.AllowedValues {
			if strings.EqualFold(allowed, s) {
				return allowed, nil
			}
		}
		return "", fmt.Errorf("value %q is not one of %s", s, strings.Join(def.AllowedValues, ", "))
	}
	if def.pattern != nil && !def.pattern.MatchString(s) {
		return "", fmt.Errorf("value %q does not match %s", s, def.Pattern)
	}
	return s, nil
}

func checkMinimum(def *FieldDefinition, d decimal.Decimal) error {
	if def.minimum != nil && d.LessThan(*def.minimum) {
		return fmt.Errorf("value %s is below the minimum %s", d.String(), def.minimum.String())
	}
	return nil
}

// toText accepts strings and scalars that have an unambiguous text form.
func toText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", fmt.Errorf("value is empty")
		}
		return s, nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("expected text, got %T", value)
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("expected a number, got %q", v)
		}
		return d, nil
	}
	return decimal.Decimal{}, fmt.Errorf("expected a number, got %T", value)
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case int64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case json.Number:
		return toBool(v.String())
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
		return false, fmt.Errorf("expected a boolean, got %q", v)
	}
	return false, fmt.Errorf("expected a boolean, got %v", value)
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("expected a date, got %q", v)
	}
	return time.Time{}, fmt.Errorf("expected a date, got %T", value)
}
