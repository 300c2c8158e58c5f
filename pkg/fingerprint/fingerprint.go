package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places numerics are rendered with.
const Precision = 6

// Generate creates a deterministic fingerprint for record data: a SHA-256 of
// its canonical form. Map key order, whitespace runs, string case and numeric
// formatting do not affect the result.
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions creates a fingerprint excluding specified fields.
// Exclusions are dot-notation paths; excluding a parent excludes its children.
func GenerateWithExclusions(data map[string]any, excludeFields map[string]bool) string {
	var b strings.Builder
	canonicalize(&b, data, excludeFields, "")

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// Canonicalize returns the canonical string a fingerprint is computed over.
func Canonicalize(data any) string {
	var b strings.Builder
	canonicalize(&b, data, nil, "")
	return b.String()
}

func canonicalize(b *strings.Builder, data any, excludeFields map[string]bool, currentPath string) {
	switch v := data.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		canonicalizeMap(b, v, excludeFields, currentPath)
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalize(b, item, excludeFields, currentPath)
		}
		b.WriteByte(']')
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		canonicalize(b, items, excludeFields, currentPath)
	case string:
		writeJSON(b, NormalizeString(v))
	case *string:
		if v == nil {
			b.WriteString("null")
			return
		}
		writeJSON(b, NormalizeString(*v))
	case bool:
		writeJSON(b, v)
	case time.Time:
		writeJSON(b, formatTime(v))
	case *time.Time:
		if v == nil {
			b.WriteString("null")
			return
		}
		writeJSON(b, formatTime(*v))
	case decimal.NullDecimal:
		if !v.Valid {
			b.WriteString("null")
			return
		}
		b.WriteString(v.Decimal.StringFixed(Precision))
	default:
		if d, ok := toDecimal(v); ok {
			b.WriteString(d.StringFixed(Precision))
			return
		}
		writeJSON(b, v)
	}
}

func canonicalizeMap(b *strings.Builder, m map[string]any, excludeFields map[string]bool, currentPath string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	first := true
	for _, k := range keys {
		fieldPath := k
		if currentPath != "" {
			fieldPath = currentPath + "." + k
		}
		if shouldExcludeField(fieldPath, excludeFields) {
			continue
		}

		if !first {
			b.WriteByte(',')
		}
		first = false
		writeJSON(b, k)
		b.WriteByte(':')
		canonicalize(b, m[k], excludeFields, fieldPath)
	}
	b.WriteByte('}')
}

// NormalizeString collapses whitespace runs and lowercases s.
func NormalizeString(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Decimal{}, false
		}
		return *n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	}
	return decimal.Decimal{}, false
}

func formatTime(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339Nano)
}

func writeJSON(b *strings.Builder, v any) {
	out, _ := json.Marshal(v)
	b.Write(out)
}

// shouldExcludeField checks exact matches and parent-object prefixes.
func shouldExcludeField(fieldPath string, excludeFields map[string]bool) bool {
	if excludeFields == nil {
		return false
	}
	if excludeFields[fieldPath] {
		return true
	}
	for excluded := range excludeFields {
		if strings.HasPrefix(fieldPath, excluded+".") {
			return true
		}
	}
	return false
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}
