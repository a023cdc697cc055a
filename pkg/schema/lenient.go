package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// LenientEnum matches value against allowed enum members, tolerating case,
// surrounding whitespace, and separator (space/hyphen/underscore) variants.
// Falls back to def when no member matches.
func LenientEnum(value any, allowed []string, def string) string {
	s, ok := stringify(value)
	if !ok {
		return def
	}
	key := normalizeToken(s)
	for _, a := range allowed {
		if normalizeToken(a) == key {
			return a
		}
	}
	return def
}

// LenientArray wraps a singleton into a one-element slice and replaces nil
// with an empty slice. Existing slices pass through.
func LenientArray(value any) []any {
	switch v := value.(type) {
	case nil:
		return []any{}
	case []any:
		if v == nil {
			return []any{}
		}
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{value}
	}
}

var nonIDChars = regexp.MustCompile(`[^a-z0-9-]+`)
var dashRuns = regexp.MustCompile(`-{2,}`)

// LenientID lower-cases and kebab-normalises an identifier: separators become
// hyphens, any other non-alphanumeric character is dropped, hyphen runs
// collapse. Returns def for values that normalise to nothing.
func LenientID(value any, def string) string {
	s, ok := stringify(value)
	if !ok {
		return def
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	s = nonIDChars.ReplaceAllString(s, "")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return def
	}
	return s
}

// LenientPath normalises separators and sandboxes the result via
// SanitizePath. Returns def when the value is absent or sanitises to nothing.
func LenientPath(value any, def string) string {
	s, ok := stringify(value)
	if !ok {
		return def
	}
	s = SanitizePath(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	return s
}

// stringify renders scalar values as strings. Maps, slices, and nil are not
// stringified.
func stringify(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return fmt.Sprintf("%t", v), true
	case float64:
		return trimFloat(v), true
	case float32:
		return trimFloat(float64(v)), true
	case int:
		return fmt.Sprintf("%d", v), true
	case int64:
		return fmt.Sprintf("%d", v), true
	default:
		return "", false
	}
}

// trimFloat renders whole floats without a decimal point (JSON numbers
// unmarshal as float64).
func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", f), "0"), ".")
}
