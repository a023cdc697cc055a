package schema

import (
	"fmt"
	"sort"
	"strings"
)

// maxCoerceDepth bounds recursion over the parsed JSON tree. LLM output is
// adversarially weird but never legitimately this deep.
const maxCoerceDepth = 50

// Field tables drive the coercions. Keys are stored in folded form (lower,
// separators removed) so snake_case and camelCase both hit.

var booleanFields = fieldSet(
	"enabled", "disabled", "required", "optional", "active", "visible",
	"success", "approved", "responsive", "interactive", "darkMode",
	"needsApproval", "hasFailures", "isComplete", "requiresDesign",
	"stylesheetApproved", "screensApproved",
)

var colourFields = fieldSet(
	"color", "colour", "backgroundColor", "textColor", "borderColor",
	"primaryColor", "secondaryColor", "accentColor", "surfaceColor",
	"errorColor", "warningColor", "successColor",
)

var arrayFields = fieldSet(
	"tags", "examples", "targets", "options", "features", "requirements",
	"screens", "components", "pages", "sections", "artifacts", "errors",
	"languages", "frameworks", "suggestNext", "skipAgents", "nextSteps",
	"stylePackages", "rejectedStyles",
)

var fontFamilyFields = fieldSet(
	"fontFamily", "fonts", "typography", "headingFont", "bodyFont", "monoFont",
)

var cssValueFields = fieldSet(
	"width", "height", "margin", "padding", "gap", "spacing", "fontSize",
	"borderRadius", "borderWidth", "maxWidth", "minWidth", "maxHeight",
	"minHeight", "letterSpacing", "top", "right", "bottom", "left",
)

// unitlessFields keep bare numeric strings instead of gaining a px suffix.
var unitlessFields = fieldSet(
	"lineHeight", "zIndex", "opacity", "fontWeight", "flexGrow", "flexShrink",
	"order", "scale",
)

func fieldSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[foldKey(n)] = true
	}
	return set
}

// foldKey lowers a field name and removes separators so "font_family",
// "fontFamily", and "font-family" all fold to "fontfamily".
func foldKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	k = strings.ReplaceAll(k, "-", "")
	return k
}

// Coerce applies the field-directed repairs to a parsed JSON tree and returns
// the repaired tree. The input is not mutated. Coerce never fails: anything
// it cannot repair passes through for the strict validator to judge.
func Coerce(value any) any {
	return coerceValue("", value, 0)
}

func coerceValue(key string, value any, depth int) any {
	if depth > maxCoerceDepth {
		return value
	}

	folded := foldKey(key)
	switch {
	case booleanFields[folded]:
		value = coerceBool(value)
	case colourFields[folded]:
		value = coerceColour(value)
	case fontFamilyFields[folded]:
		value = coerceFontFamily(value)
	case cssValueFields[folded]:
		value = coerceCSSValue(value, false)
	case unitlessFields[folded]:
		value = coerceCSSValue(value, true)
	case arrayFields[folded]:
		value = coerceArray(value)
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = coerceValue(k, item, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = coerceValue(key, item, depth+1)
		}
		return out
	default:
		return value
	}
}

// coerceBool accepts the spellings LLMs produce for booleans. Unrecognised
// values pass through unchanged.
func coerceBool(value any) any {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1", "on":
			return true
		case "false", "no", "n", "0", "off":
			return false
		}
	case float64:
		if v == 1 {
			return true
		}
		if v == 0 {
			return false
		}
	case int:
		if v == 1 {
			return true
		}
		if v == 0 {
			return false
		}
	}
	return value
}

// coerceColour unwraps nested colour objects like {"primary": "#0a0a0a"} to
// the scalar value. Plain strings pass through.
func coerceColour(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	for _, k := range []string{"primary", "value", "hex", "default"} {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return value
}

// coerceArray accepts an array as-is, converts an object into
// [{name: key, ...fields}] entries (sorted by key for determinism), and
// wraps a scalar into a one-element array.
func coerceArray(value any) any {
	switch v := value.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			entry := map[string]any{"name": k}
			if fields, ok := v[k].(map[string]any); ok {
				for fk, fv := range fields {
					if fk != "name" {
						entry[fk] = fv
					}
				}
			} else if v[k] != nil {
				entry["value"] = v[k]
			}
			out = append(out, entry)
		}
		return out
	default:
		return []any{value}
	}
}

// coerceFontFamily flattens whatever shape the LLM chose for a font stack
// into comma-joined strings with a generic fallback family appended.
func coerceFontFamily(value any) any {
	switch v := value.(type) {
	case string:
		return joinFontStack([]string{v})
	case []any:
		var names []string
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				names = append(names, s)
			}
		}
		return joinFontStack(names)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = coerceFontFamily(item)
		}
		return out
	default:
		return value
	}
}

func joinFontStack(names []string) string {
	cleaned := make([]string, 0, len(names))
	hasFallback := false
	mono := false
	for _, n := range names {
		n = strings.Trim(strings.TrimSpace(n), `"'`)
		if n == "" {
			continue
		}
		lower := strings.ToLower(n)
		if lower == "sans-serif" || lower == "serif" || lower == "monospace" {
			hasFallback = true
		}
		if strings.Contains(lower, "mono") || strings.Contains(lower, "code") ||
			strings.Contains(lower, "courier") || strings.Contains(lower, "consolas") {
			mono = true
		}
		cleaned = append(cleaned, n)
	}
	if len(cleaned) == 0 {
		return "sans-serif"
	}
	if !hasFallback {
		if mono {
			cleaned = append(cleaned, "monospace")
		} else {
			cleaned = append(cleaned, "sans-serif")
		}
	}
	return strings.Join(cleaned, ", ")
}

// coerceCSSValue renders bare numbers as CSS lengths ("16" → "16px", zero →
// "0"). Unit-less properties keep plain numeric strings. Strings with units
// already present pass through.
func coerceCSSValue(value any, unitless bool) any {
	var num float64
	switch v := value.(type) {
	case float64:
		num = v
	case int:
		num = float64(v)
	case string:
		return value
	default:
		return value
	}

	rendered := trimFloat(num)
	if unitless {
		return rendered
	}
	if num == 0 {
		return "0"
	}
	return fmt.Sprintf("%spx", rendered)
}
