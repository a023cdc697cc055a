package models

// GuardrailSeverity distinguishes blocking violations from advisory warnings.
type GuardrailSeverity string

// Guardrail severities.
const (
	SeverityError   GuardrailSeverity = "error"
	SeverityWarning GuardrailSeverity = "warning"
)

// GuardrailViolation is one finding from a guardrail check. MaskedValue shows
// at most four leading and four trailing characters of the matched content.
type GuardrailViolation struct {
	GuardrailID string            `json:"guardrail_id"`
	Severity    GuardrailSeverity `json:"severity"`
	Message     string            `json:"message"`
	Type        string            `json:"type,omitempty"`
	Line        int               `json:"line,omitempty"`
	MaskedValue string            `json:"masked_value,omitempty"`
}

// GuardrailResult is the outcome of running a guardrail chain over content.
type GuardrailResult struct {
	Valid      bool                 `json:"valid"`
	Violations []GuardrailViolation `json:"violations,omitempty"`
	Warnings   []GuardrailViolation `json:"warnings,omitempty"`
}
