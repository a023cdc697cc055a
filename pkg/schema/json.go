package schema

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no parseable JSON value can be recovered from
// the text.
var ErrNoJSON = errors.New("no JSON value found in text")

// ExtractJSON recovers a JSON document from raw LLM text. Tiers, most to
// least strict:
//
//  1. the trimmed text parses as-is
//  2. the body of a ``` or ```json fence parses
//  3. the outermost balanced {...} or [...] parses
//  4. any of the above after trailing-comma repair
//
// Returns the JSON substring that parsed.
func ExtractJSON(text string) (string, error) {
	candidates := extractCandidates(text)
	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			return c, nil
		}
	}
	// Repair pass: trailing commas are the dominant LLM syntax error.
	for _, c := range candidates {
		repaired := RepairTrailingCommas(c)
		if repaired != c && json.Valid([]byte(repaired)) {
			return repaired, nil
		}
	}
	return "", ErrNoJSON
}

// ExtractJSONMap extracts and unmarshals a JSON object from raw LLM text.
func ExtractJSONMap(text string) (map[string]any, error) {
	doc, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, ErrNoJSON
	}
	return out, nil
}

func extractCandidates(text string) []string {
	var candidates []string
	trimmed := strings.TrimSpace(text)
	if trimmed != "" {
		candidates = append(candidates, trimmed)
	}
	if fenced := extractFenced(trimmed); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if balanced := extractBalanced(trimmed); balanced != "" {
		candidates = append(candidates, balanced)
	}
	return candidates
}

// extractFenced returns the body of the first code fence, tolerating a
// language tag after the opening backticks.
func extractFenced(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		firstLine := strings.TrimSpace(rest[:nl])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}[]") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// extractBalanced returns the first balanced top-level JSON object or array,
// tracking string and escape state so braces inside strings don't count.
func extractBalanced(text string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if text[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// characters inside strings are inert
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// RepairTrailingCommas removes commas that directly precede a closing brace
// or bracket, the most common malformation in LLM JSON. String contents are
// left untouched.
func RepairTrailingCommas(doc string) string {
	var b strings.Builder
	b.Grow(len(doc))
	inString := false
	escaped := false
	for i := 0; i < len(doc); i++ {
		c := doc[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == ',':
			// Look past whitespace for a closer.
			j := i + 1
			for j < len(doc) && (doc[j] == ' ' || doc[j] == '\t' || doc[j] == '\n' || doc[j] == '\r') {
				j++
			}
			if j < len(doc) && (doc[j] == '}' || doc[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
