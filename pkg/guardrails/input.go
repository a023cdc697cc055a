package guardrails

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// promptInjectionGuardrail blocks role-override and system-prompt-extraction
// phrasing in user input. Protected.
type promptInjectionGuardrail struct{}

func (promptInjectionGuardrail) ID() string                         { return GuardrailPromptInjection }
func (promptInjectionGuardrail) Severity() models.GuardrailSeverity { return models.SeverityError }
func (promptInjectionGuardrail) AppliesTo() []OutputType            { return nil }

func (promptInjectionGuardrail) Validate(_ context.Context, content string, _ Context) (Verdict, error) {
	var findings []models.GuardrailViolation
	for _, re := range promptInjectionPatterns {
		loc := re.FindStringIndex(content)
		if loc == nil {
			continue
		}
		findings = append(findings, models.GuardrailViolation{
			Message:     "input contains prompt-injection phrasing",
			Type:        "prompt_injection",
			Line:        lineOf(content, loc[0]),
			MaskedValue: MaskValue(content[loc[0]:loc[1]]),
		})
	}
	if len(findings) > 0 {
		return Verdict{Message: "prompt injection detected", Findings: findings}, nil
	}
	return Pass(), nil
}

// piiGuardrail flags personally identifiable information in input. Advisory:
// the user is describing their own data, so findings surface as warnings.
type piiGuardrail struct{}

func (piiGuardrail) ID() string                         { return GuardrailPII }
func (piiGuardrail) Severity() models.GuardrailSeverity { return models.SeverityWarning }
func (piiGuardrail) AppliesTo() []OutputType            { return nil }

func (piiGuardrail) Validate(_ context.Context, content string, _ Context) (Verdict, error) {
	var findings []models.GuardrailViolation
	for _, p := range piiPatterns {
		for _, loc := range p.regex.FindAllStringIndex(content, -1) {
			match := content[loc[0]:loc[1]]
			if p.name == "Payment card number" && !plausibleCardNumber(match) {
				continue
			}
			findings = append(findings, models.GuardrailViolation{
				Message:     fmt.Sprintf("input contains %s", strings.ToLower(p.name)),
				Type:        "pii",
				Line:        lineOf(content, loc[0]),
				MaskedValue: MaskValue(match),
			})
		}
	}
	if len(findings) > 0 {
		return Verdict{Message: "personally identifiable information detected", Findings: findings}, nil
	}
	return Pass(), nil
}

// plausibleCardNumber keeps only digit runs of card-number length. The regex
// alone also matches long numeric IDs; this trims the worst of them.
func plausibleCardNumber(match string) bool {
	digits := 0
	for _, r := range match {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 13 && digits <= 19
}

// maliciousContentGuardrail blocks weaponisation, intrusion, malware, and
// social-engineering requests.
type maliciousContentGuardrail struct{}

func (maliciousContentGuardrail) ID() string                         { return GuardrailMaliciousContent }
func (maliciousContentGuardrail) Severity() models.GuardrailSeverity { return models.SeverityError }
func (maliciousContentGuardrail) AppliesTo() []OutputType            { return nil }

func (maliciousContentGuardrail) Validate(_ context.Context, content string, _ Context) (Verdict, error) {
	var findings []models.GuardrailViolation
	for _, p := range maliciousPatterns {
		loc := p.regex.FindStringIndex(content)
		if loc == nil {
			continue
		}
		findings = append(findings, models.GuardrailViolation{
			Message:     strings.ToLower(p.name),
			Type:        "malicious_content",
			Line:        lineOf(content, loc[0]),
			MaskedValue: MaskValue(content[loc[0]:loc[1]]),
		})
	}
	if len(findings) > 0 {
		return Verdict{Message: "malicious content detected", Findings: findings}, nil
	}
	return Pass(), nil
}

// lengthGuardrail bounds input size: non-blank after trimming, at most max
// characters.
type lengthGuardrail struct {
	max int
}

func newLengthGuardrail(max int) *lengthGuardrail {
	return &lengthGuardrail{max: max}
}

func (g *lengthGuardrail) ID() string                         { return GuardrailInputLength }
func (g *lengthGuardrail) Severity() models.GuardrailSeverity { return models.SeverityError }
func (g *lengthGuardrail) AppliesTo() []OutputType            { return nil }

func (g *lengthGuardrail) Validate(_ context.Context, content string, _ Context) (Verdict, error) {
	if strings.TrimSpace(content) == "" {
		return Verdict{Message: "input is empty"}, nil
	}
	if len(content) > g.max {
		return Verdict{Message: fmt.Sprintf("input length %d exceeds maximum %d", len(content), g.max)}, nil
	}
	return Pass(), nil
}

// rateGuardrail enforces a per-tenant sliding one-minute window over input
// validations. Windows are pruned lazily on each check.
type rateGuardrail struct {
	mu     sync.Mutex
	limit  int
	clk    clock.PassiveClock
	window map[string][]time.Time
}

func newRateGuardrail(limit int, clk clock.PassiveClock) *rateGuardrail {
	return &rateGuardrail{
		limit:  limit,
		clk:    clk,
		window: make(map[string][]time.Time),
	}
}

func (g *rateGuardrail) ID() string                         { return GuardrailRateLimit }
func (g *rateGuardrail) Severity() models.GuardrailSeverity { return models.SeverityError }
func (g *rateGuardrail) AppliesTo() []OutputType            { return nil }

func (g *rateGuardrail) Validate(_ context.Context, _ string, gctx Context) (Verdict, error) {
	if gctx.TenantID == "" {
		return Pass(), nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clk.Now()
	cutoff := now.Add(-time.Minute)
	kept := g.window[gctx.TenantID][:0]
	for _, t := range g.window[gctx.TenantID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= g.limit {
		g.window[gctx.TenantID] = kept
		return Verdict{Message: fmt.Sprintf("rate limit exceeded: %d inputs in the last minute (limit %d)", len(kept), g.limit)}, nil
	}
	g.window[gctx.TenantID] = append(kept, now)
	return Pass(), nil
}
