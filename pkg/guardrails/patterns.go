package guardrails

import (
	"regexp"
	"strings"
)

// Confidence grades how certain a secret-pattern match is. High-confidence
// matches block on their own; medium matches block in aggregate.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// OWASPSeverity grades an OWASP-pattern finding.
type OWASPSeverity string

const (
	OWASPLow      OWASPSeverity = "low"
	OWASPMedium   OWASPSeverity = "medium"
	OWASPHigh     OWASPSeverity = "high"
	OWASPCritical OWASPSeverity = "critical"
)

// secretPattern is one entry of the compiled secret catalogue.
type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	confidence Confidence
}

// owaspPattern is one entry of the compiled OWASP catalogue.
type owaspPattern struct {
	name     string
	regex    *regexp.Regexp
	severity OWASPSeverity
}

// secretPatterns is the built-in secret catalogue, compiled once at package
// init. Order is stable so findings report deterministically.
var secretPatterns = []secretPattern{
	{"AWS Access Key ID", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), ConfidenceHigh},
	{"AWS Secret Access Key", regexp.MustCompile(`(?i)aws[_\-. ]{0,10}(?:secret|access)?[_\-. ]{0,10}key['":\s=]{1,5}[0-9A-Za-z/+]{40}\b`), ConfidenceMedium},
	{"Anthropic API key", regexp.MustCompile(`\bsk-ant-[A-Za-z0-9\-_]{20,}`), ConfidenceHigh},
	{"OpenAI API key", regexp.MustCompile(`\bsk-(?:proj-)?[A-Za-z0-9]{32,}\b`), ConfidenceMedium},
	{"GitHub token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`), ConfidenceHigh},
	{"Stripe live key", regexp.MustCompile(`\b[sp]k_live_[A-Za-z0-9]{24,}\b`), ConfidenceHigh},
	{"Stripe test key", regexp.MustCompile(`\b[sp]k_test_[A-Za-z0-9]{24,}\b`), ConfidenceLow},
	{"Azure storage key", regexp.MustCompile(`(?i)(?:azure|account)[_\-. ]{0,10}key['":\s=]{1,5}[A-Za-z0-9+/]{60,}={0,2}`), ConfidenceMedium},
	{"GCP API key", regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`), ConfidenceHigh},
	{"JWT", regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}\b`), ConfidenceMedium},
	{"Slack token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}\b`), ConfidenceHigh},
	{"Discord webhook", regexp.MustCompile(`discord(?:app)?\.com/api/webhooks/\d+/[\w\-]+`), ConfidenceHigh},
	{"Database URL with credentials", regexp.MustCompile(`\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?)://[^\s:@/]+:[^\s@/]+@[^\s/"']+`), ConfidenceHigh},
	{"Private key block", regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`), ConfidenceHigh},
	{"Generic credential assignment", regexp.MustCompile(`(?i)\b(?:api[_\-]?key|auth[_\-]?token|secret|password|passwd)\b["'\s:=]{1,5}["']?[A-Za-z0-9_\-/+.]{16,}`), ConfidenceLow},
}

// owaspPatterns is the built-in OWASP catalogue. Patterns target generated
// code, so they look for sink shapes rather than runtime behaviour.
var owaspPatterns = []owaspPattern{
	{"SQL built by string concatenation", regexp.MustCompile(`(?i)\b(?:select|insert|update|delete)\b[^;\n]{0,120}["'` + "`" + `]\s*\+\s*\w`), OWASPHigh},
	{"SQL built by string formatting", regexp.MustCompile(`(?i)(?:query|execute)[^(\n]{0,20}\(\s*(?:f["']|["'][^"']*%s)`), OWASPHigh},
	{"XSS sink", regexp.MustCompile(`(?i)(?:\.innerHTML\s*=|document\.write\s*\(|dangerouslySetInnerHTML)`), OWASPHigh},
	{"Command built from input", regexp.MustCompile(`(?i)(?:os\.system|subprocess\.(?:call|run|Popen)|child_process\.exec(?:Sync)?|shell_exec)\s*\([^)\n]*(?:\+|\$\{|%s)`), OWASPCritical},
	{"Path traversal sequence", regexp.MustCompile(`\.\./\.\./`), OWASPMedium},
	{"Weak hash algorithm", regexp.MustCompile(`(?i)(?:\bmd5\s*\(|\bsha1\s*\(|crypto/md5|crypto/sha1|hashlib\.(?:md5|sha1))`), OWASPMedium},
	{"Hardcoded credential", regexp.MustCompile(`(?i)\b(?:password|passwd|secret)\s*[:=]\s*["'][^"'\n]{4,}["']`), OWASPHigh},
	{"Dynamic code evaluation", regexp.MustCompile(`(?i)\beval\s*\(`), OWASPHigh},
	{"TLS verification disabled", regexp.MustCompile(`(?i)(?:InsecureSkipVerify\s*:\s*true|verify\s*=\s*False|rejectUnauthorized\s*:\s*false)`), OWASPMedium},
	{"Permissive CORS", regexp.MustCompile(`(?i)Access-Control-Allow-Origin['"\s:]+\*`), OWASPLow},
}

// promptInjectionPatterns catch role-override and system-extraction phrases.
var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(?:all\s+|any\s+)?(?:previous|prior|above)\s+(?:instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)disregard\s+(?:all\s+)?(?:the\s+)?(?:previous|prior|above|your)\s+(?:instructions|rules|guidelines)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(?:a|an|the)\b`),
	regexp.MustCompile(`(?i)pretend\s+(?:that\s+)?(?:you\s+are|to\s+be)\b`),
	regexp.MustCompile(`(?i)act\s+as\s+(?:if\s+you\s+(?:are|were)|an?\s+unrestricted)`),
	regexp.MustCompile(`(?i)(?:reveal|show|print|repeat|output)\s+(?:me\s+)?your\s+(?:system\s+)?(?:prompt|instructions)`),
	regexp.MustCompile(`(?i)what\s+(?:is|are)\s+your\s+(?:system\s+)?(?:prompt|instructions)`),
	regexp.MustCompile(`(?i)\bjailbreak\b|\bDAN\s+mode\b`),
	regexp.MustCompile(`(?i)\boverride\s+(?:your\s+)?(?:safety|security)\s+(?:rules|settings|guidelines)`),
}

// piiPatterns detect personally identifiable information in inputs.
var piiPatterns = []struct {
	name  string
	regex *regexp.Regexp
}{
	{"US Social Security Number", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"Payment card number", regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`)},
	{"Phone number", regexp.MustCompile(`\b(?:\+?1[\-. ]?)?\(?\d{3}\)?[\-. ]\d{3}[\-. ]\d{4}\b`)},
	{"Email address", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{"Street address", regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z][A-Za-z .]{2,30}\s(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr)\b`)},
	{"Passport number", regexp.MustCompile(`(?i)\bpassport\s*(?:no\.?|number|#)?\s*[:\s]\s*[A-Z0-9]{6,9}\b`)},
	{"Date of birth", regexp.MustCompile(`(?i)\b(?:dob|date\s+of\s+birth)\b\s*[:\s]\s*\d{1,4}[\-/]\d{1,2}[\-/]\d{1,4}`)},
}

// maliciousPatterns detect weaponisation, hacking, malware, and
// social-engineering requests.
var maliciousPatterns = []struct {
	name  string
	regex *regexp.Regexp
}{
	{"Weaponisation request", regexp.MustCompile(`(?i)\b(?:build|make|construct|synthesi[sz]e)\b.{0,40}\b(?:bomb|explosive|nerve\s+agent|bioweapon)\b`)},
	{"Unauthorised access request", regexp.MustCompile(`(?i)\b(?:hack|break)\s+into\b|\bbypass\b.{0,30}\b(?:authentication|login|2fa|mfa)\b`)},
	{"Exploit development request", regexp.MustCompile(`(?i)\bexploit\b.{0,30}\bvulnerabilit|\bzero[\- ]day\b.{0,20}\b(?:exploit|attack)\b`)},
	{"Malware request", regexp.MustCompile(`(?i)\b(?:write|create|generate|build)\b.{0,40}\b(?:malware|ransomware|keylogger|botnet|trojan|rootkit)\b`)},
	{"Social engineering request", regexp.MustCompile(`(?i)\bphishing\s+(?:email|page|site|campaign)\b|\bcredential\s+harvest`)},
}

// MaskValue masks a matched value to at most four leading and four trailing
// characters. Values of eight characters or fewer are fully masked.
func MaskValue(v string) string {
	if len(v) <= 8 {
		return "***"
	}
	return v[:4] + "***" + v[len(v)-4:]
}

// lineOf returns the 1-based line number containing byte offset idx.
func lineOf(content string, idx int) int {
	if idx > len(content) {
		idx = len(content)
	}
	return 1 + strings.Count(content[:idx], "\n")
}
