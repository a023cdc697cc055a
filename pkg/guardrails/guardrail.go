// Package guardrails validates content flowing into and out of agent
// executions. An Engine holds ordered input and output chains; each guardrail
// inspects content and reports a verdict. Detection only: callers decide what
// to do with a blocked result, and masking for logs goes through MaskSecrets.
package guardrails

import (
	"context"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// Builtin guardrail IDs. The protected ones cannot be disabled or removed.
const (
	GuardrailPromptInjection  = "builtin:prompt-injection"
	GuardrailPII              = "builtin:pii-detection"
	GuardrailMaliciousContent = "builtin:malicious-content"
	GuardrailInputLength      = "builtin:input-length"
	GuardrailRateLimit        = "builtin:rate-limit"
	GuardrailSecretDetection  = "builtin:secret-detection"
	GuardrailOWASPDetection   = "builtin:owasp-detection"
)

// OutputType tags the kind of content an output guardrail sees.
type OutputType string

const (
	OutputTypeCode OutputType = "code"
	OutputTypeText OutputType = "text"
	OutputTypeFile OutputType = "file"
)

// Context carries request metadata into a guardrail check. TenantID is
// required for the rate guardrail; ServerID selects per-server masking rules
// for content attributed to a tool server.
type Context struct {
	TenantID   string
	AgentType  models.AgentType
	OutputType OutputType
	ServerID   string
}

// Verdict is one guardrail's judgement of a piece of content. Findings carry
// per-match detail and may be present on an OK verdict, in which case the
// engine surfaces them as warnings.
type Verdict struct {
	OK       bool
	Message  string
	Findings []models.GuardrailViolation
}

// Pass is the verdict for clean content.
func Pass() Verdict { return Verdict{OK: true} }

// Guardrail is one validator in a chain. Validate must not retain content
// and must be safe for concurrent use. A returned error means the guardrail
// itself failed, which the engine records as a violation in strict mode and
// a warning otherwise.
type Guardrail interface {
	ID() string
	Severity() models.GuardrailSeverity

	// AppliesTo restricts which output types the guardrail sees.
	// Nil means all content.
	AppliesTo() []OutputType

	Validate(ctx context.Context, content string, gctx Context) (Verdict, error)
}

// FuncGuardrail adapts a plain function into a Guardrail, mainly for custom
// registrations and tests.
type FuncGuardrail struct {
	GuardrailID string
	Sev         models.GuardrailSeverity
	Types       []OutputType
	Fn          func(ctx context.Context, content string, gctx Context) (Verdict, error)
}

func (f *FuncGuardrail) ID() string                         { return f.GuardrailID }
func (f *FuncGuardrail) Severity() models.GuardrailSeverity { return f.Sev }
func (f *FuncGuardrail) AppliesTo() []OutputType            { return f.Types }

func (f *FuncGuardrail) Validate(ctx context.Context, content string, gctx Context) (Verdict, error) {
	return f.Fn(ctx, content, gctx)
}
