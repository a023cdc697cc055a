package guardrails

import (
	"context"
	"fmt"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// Blocking thresholds for the secret detector. One high-confidence match or
// an accumulation of medium-confidence matches blocks the output.
const (
	secretBlockHighCount   = 1
	secretBlockMediumCount = 3
)

// secretGuardrail scans output for credential material. Protected.
type secretGuardrail struct{}

func (secretGuardrail) ID() string                         { return GuardrailSecretDetection }
func (secretGuardrail) Severity() models.GuardrailSeverity { return models.SeverityError }
func (secretGuardrail) AppliesTo() []OutputType            { return nil }

func (secretGuardrail) Validate(_ context.Context, content string, _ Context) (Verdict, error) {
	var (
		findings []models.GuardrailViolation
		high     int
		medium   int
	)
	for _, p := range secretPatterns {
		for _, loc := range p.regex.FindAllStringIndex(content, -1) {
			switch p.confidence {
			case ConfidenceHigh:
				high++
			case ConfidenceMedium:
				medium++
			}
			findings = append(findings, models.GuardrailViolation{
				Message:     fmt.Sprintf("%s (confidence %s)", p.name, p.confidence),
				Type:        p.name,
				Line:        lineOf(content, loc[0]),
				MaskedValue: MaskValue(content[loc[0]:loc[1]]),
			})
		}
	}
	if len(findings) == 0 {
		return Pass(), nil
	}
	if high >= secretBlockHighCount || medium >= secretBlockMediumCount {
		return Verdict{
			Message:  fmt.Sprintf("secret material detected: %d high, %d medium confidence", high, medium),
			Findings: findings,
		}, nil
	}
	// Low-confidence or sparse medium matches surface as warnings.
	return Verdict{OK: true, Findings: findings}, nil
}

// owaspGuardrail scans generated code for insecure sink shapes. Protected.
type owaspGuardrail struct{}

func (owaspGuardrail) ID() string                         { return GuardrailOWASPDetection }
func (owaspGuardrail) Severity() models.GuardrailSeverity { return models.SeverityError }

func (owaspGuardrail) AppliesTo() []OutputType {
	return []OutputType{OutputTypeCode, OutputTypeFile}
}

func (owaspGuardrail) Validate(_ context.Context, content string, _ Context) (Verdict, error) {
	var (
		findings []models.GuardrailViolation
		blocking int
	)
	for _, p := range owaspPatterns {
		for _, loc := range p.regex.FindAllStringIndex(content, -1) {
			if p.severity == OWASPCritical || p.severity == OWASPHigh {
				blocking++
			}
			findings = append(findings, models.GuardrailViolation{
				Message:     fmt.Sprintf("%s (severity %s)", p.name, p.severity),
				Type:        p.name,
				Line:        lineOf(content, loc[0]),
				MaskedValue: MaskValue(content[loc[0]:loc[1]]),
			})
		}
	}
	if len(findings) == 0 {
		return Pass(), nil
	}
	if blocking > 0 {
		return Verdict{
			Message:  fmt.Sprintf("insecure code patterns detected: %d blocking finding(s)", blocking),
			Findings: findings,
		}, nil
	}
	return Verdict{OK: true, Findings: findings}, nil
}

// serverMaskingGuardrail flags content matching masking rules declared on
// the tool server the content came from. Advisory: callers mask via
// Engine.MaskSecrets before persisting or logging.
type serverMaskingGuardrail struct {
	rules []serverMaskRule
}

func (g *serverMaskingGuardrail) ID() string                         { return "builtin:server-masking" }
func (g *serverMaskingGuardrail) Severity() models.GuardrailSeverity { return models.SeverityWarning }
func (g *serverMaskingGuardrail) AppliesTo() []OutputType            { return nil }

func (g *serverMaskingGuardrail) Validate(_ context.Context, content string, gctx Context) (Verdict, error) {
	if gctx.ServerID == "" {
		return Pass(), nil
	}
	var findings []models.GuardrailViolation
	for _, r := range g.rules {
		if r.serverID != gctx.ServerID {
			continue
		}
		for _, loc := range r.regex.FindAllStringIndex(content, -1) {
			findings = append(findings, models.GuardrailViolation{
				Message:     fmt.Sprintf("server masking rule matched: %s", r.description),
				Type:        "server_masking",
				Line:        lineOf(content, loc[0]),
				MaskedValue: MaskValue(content[loc[0]:loc[1]]),
			})
		}
	}
	if len(findings) == 0 {
		return Pass(), nil
	}
	return Verdict{Message: "content requires masking", Findings: findings}, nil
}
