package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean relative path", "src/app/main.css", "src/app/main.css"},
		{"parent traversal", "../etc/passwd", "etc/passwd"},
		{"nested traversal", "a/../../b/c", "a/b/c"},
		{"leading slash", "/etc/passwd", "etc/passwd"},
		{"double leading slash", "//etc/passwd", "etc/passwd"},
		{"backslashes", `src\components\App.tsx`, "src/components/App.tsx"},
		{"windows traversal", `..\..\secret.txt`, "secret.txt"},
		{"scheme prefix", "https://evil.example/payload.js", "evil.example/payload.js"},
		{"file scheme", "file:///etc/shadow", "etc/shadow"},
		{"nul bytes", "a\x00b/c.txt", "ab/c.txt"},
		{"trailing dotdot", "src/..", "src/"},
		{"only dotdot", "..", ""},
		{"interleaved dots", "....//....//etc", "etc"},
		{"scheme behind slash", "/https://evil.example/x", "evil.example/x"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePath(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Sanitised paths never contain traversal segments, never start with a slash,
// and never contain NUL, for any input.
func TestSanitizePathSafety(t *testing.T) {
	inputs := []string{
		"../etc/passwd", "..\\..\\x", "////a", "a/../b/../../c",
		"http://h/../../x", "\x00\x00..", "..", "a/..", "...///...",
		strings.Repeat("../", 100) + "deep",
	}
	for _, in := range inputs {
		got := SanitizePath(in)
		assert.NotContains(t, got, "..", "input %q", in)
		assert.False(t, strings.HasPrefix(got, "/"), "input %q → %q", in, got)
		assert.NotContains(t, got, "\x00", "input %q", in)
	}
}

func TestSanitizePathIdempotent(t *testing.T) {
	inputs := []string{
		"../etc/passwd", "/a/b", `c:\x\y`, "https://host/p", "a/../b",
		"normal/path.txt", "", "..", "....//etc", "/https://nested/x",
	}
	for _, in := range inputs {
		once := SanitizePath(in)
		twice := SanitizePath(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}
