// Package normalizers provides the string normalizations applied to source
// values before they are validated and staged.
package normalizers

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register("trim", Trim)
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("alphanumeric", Alphanumeric)
	Register("entity_code", EntityCode)
	Register("model_code", ModelCode)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave it unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// CollapseWhitespace trims and replaces every whitespace run with one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Alphanumeric keeps only letters and digits
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var (
	nonCodeChars  = regexp.MustCompile(`[^0-9A-Za-z]`)
	underscoreRun = regexp.MustCompile(`_+`)
	legalSuffixes = []string{"inc", "llc", "ltd", "co", "corp", "corporation", "gmbh", "ag", "sa", "limited", "company"}
)

const maxEntityCodeLength = 32

// EntityCode derives a stable manufacturer identifier from a display name:
// "Acme Solar, Inc." becomes "ACME_SOLAR".
func EntityCode(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	for len(words) > 1 && isLegalSuffix(words[len(words)-1]) {
		words = words[:len(words)-1]
	}

	code := strings.ToUpper(strings.Join(words, "_"))
	code = nonCodeChars.ReplaceAllString(code, "_")
	code = underscoreRun.ReplaceAllString(code, "_")
	if len(code) > maxEntityCodeLength {
		code = strings.TrimRight(code[:maxEntityCodeLength], "_")
	}
	return code
}

func isLegalSuffix(word string) bool {
	for _, s := range legalSuffixes {
		if word == s {
			return true
		}
	}
	return false
}

// ModelCode replaces every character outside [0-9A-Za-z] with '_'.
func ModelCode(model string) string {
	return nonCodeChars.ReplaceAllString(strings.TrimSpace(model), "_")
}

// ProdCode builds the registry product code "ENTITY-model".
func ProdCode(entityCode, model string) string {
	return entityCode + "-" + ModelCode(model)
}

// NextProdCode returns code when it is free, otherwise the first free
// "code-N" with N starting at 2.
func NextProdCode(code string, taken func(string) bool) string {
	if !taken(code) {
		return code
	}
	for n := 2; ; n++ {
		candidate := code + "-" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}
