// Package schema repairs and normalises LLM-produced values before strict
// validation, and sanitises externally supplied strings. All functions are
// best-effort and never panic: callers re-validate with strict schemas after
// coercion.
package schema

import (
	"regexp"
	"strings"
)

// sanitizeMaxPasses bounds the fixpoint loop in SanitizePath. Real inputs
// converge in one or two passes; the bound guards pathological nesting like
// "....//....//".
const sanitizeMaxPasses = 10

var schemePrefixRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://`)

// SanitizePath normalises a path so it cannot escape the artifact sandbox:
// NUL bytes removed, backslashes become slashes, "scheme://" prefixes and
// leading slashes are stripped, and every "../" segment (and a trailing "..")
// is removed. The result never contains "..", never starts with "/", and
// SanitizePath is idempotent.
func SanitizePath(p string) string {
	for range sanitizeMaxPasses {
		next := sanitizeOnce(p)
		if next == p {
			return p
		}
		p = next
	}
	return p
}

func sanitizeOnce(p string) string {
	p = strings.ReplaceAll(p, "\x00", "")
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	for schemePrefixRE.MatchString(p) {
		p = schemePrefixRE.ReplaceAllString(p, "")
	}
	for strings.Contains(p, "../") {
		p = strings.ReplaceAll(p, "../", "")
	}
	p = strings.TrimSuffix(p, "..")
	p = strings.TrimLeft(p, "/")
	return p
}
