package guardrails

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"k8s.io/utils/clock"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// protectedIDs cannot be disabled or removed.
var protectedIDs = map[string]bool{
	GuardrailPromptInjection: true,
	GuardrailSecretDetection: true,
	GuardrailOWASPDetection:  true,
}

// serverMaskRule is a compiled per-server masking pattern from the tool
// server registry.
type serverMaskRule struct {
	serverID    string
	description string
	regex       *regexp.Regexp
	replacement string
}

// Engine runs ordered guardrail chains over inputs and outputs. Chains are
// fixed at seal time; validation itself takes only read locks and is safe
// for concurrent sessions.
type Engine struct {
	mu     sync.RWMutex
	sealed bool

	enabled       bool
	strict        bool
	logViolations bool

	input    []Guardrail
	output   []Guardrail
	ids      map[string]bool
	disabled map[string]bool

	serverRules []serverMaskRule

	logger *slog.Logger
}

// NewEngine builds an engine with the builtin guardrail chains, applies the
// configured disabled list, compiles per-server masking rules from the tool
// server registry, and seals. A protected ID in cfg.Disabled fails the build.
func NewEngine(cfg *config.GuardrailsConfig, maxInputLen int, servers *config.MCPServerRegistry, clk clock.PassiveClock, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if maxInputLen <= 0 {
		maxInputLen = config.DefaultMaxInputLength
	}
	ratePerMinute := config.DefaultRateLimitPerMinute
	if cfg != nil && cfg.RateLimitPerMinute > 0 {
		ratePerMinute = cfg.RateLimitPerMinute
	}

	e := &Engine{
		enabled:       cfg.GuardrailsEnabled(),
		strict:        cfg.StrictModeEnabled(),
		logViolations: cfg == nil || cfg.LogViolations == nil || *cfg.LogViolations,
		ids:           make(map[string]bool),
		disabled:      make(map[string]bool),
		logger:        logger.With("component", "guardrails"),
	}

	inputChain := []Guardrail{
		&promptInjectionGuardrail{},
		&piiGuardrail{},
		&maliciousContentGuardrail{},
		newLengthGuardrail(maxInputLen),
		newRateGuardrail(ratePerMinute, clk),
	}
	for _, g := range inputChain {
		if err := e.RegisterInput(g); err != nil {
			return nil, err
		}
	}
	outputChain := []Guardrail{
		&secretGuardrail{},
		&owaspGuardrail{},
	}
	for _, g := range outputChain {
		if err := e.RegisterOutput(g); err != nil {
			return nil, err
		}
	}

	e.serverRules = compileServerRules(servers, logger)
	if len(e.serverRules) > 0 {
		if err := e.RegisterOutput(&serverMaskingGuardrail{rules: e.serverRules}); err != nil {
			return nil, err
		}
	}

	if cfg != nil {
		for _, id := range cfg.Disabled {
			if err := e.Disable(id); err != nil {
				return nil, fmt.Errorf("guardrails config: %w", err)
			}
		}
	}

	e.Seal()
	return e, nil
}

// compileServerRules compiles masking patterns declared on tool servers.
// Invalid patterns are logged and skipped rather than failing startup.
func compileServerRules(servers *config.MCPServerRegistry, logger *slog.Logger) []serverMaskRule {
	if servers == nil {
		return nil
	}
	var rules []serverMaskRule
	for id, server := range servers.GetAll() {
		if server == nil || server.Masking == nil || !server.Masking.Enabled {
			continue
		}
		for _, p := range server.Masking.Patterns {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				logger.Warn("skipping invalid masking pattern",
					"server_id", id,
					"description", p.Description,
					"error", err)
				continue
			}
			rules = append(rules, serverMaskRule{
				serverID:    id,
				description: p.Description,
				regex:       re,
				replacement: p.Replacement,
			})
		}
	}
	return rules
}

// RegisterInput appends a guardrail to the input chain. Fails once sealed.
func (e *Engine) RegisterInput(g Guardrail) error {
	return e.register(&e.input, g)
}

// RegisterOutput appends a guardrail to the output chain. Fails once sealed.
func (e *Engine) RegisterOutput(g Guardrail) error {
	return e.register(&e.output, g)
}

func (e *Engine) register(chain *[]Guardrail, g Guardrail) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return fmt.Errorf("register guardrail %q: %w", g.ID(), ErrEngineSealed)
	}
	if e.ids[g.ID()] {
		return fmt.Errorf("register guardrail %q: %w", g.ID(), ErrDuplicateGuardrail)
	}
	e.ids[g.ID()] = true
	*chain = append(*chain, g)
	return nil
}

// Disable switches a registered guardrail off. Protected IDs are rejected,
// and nothing can change after seal.
func (e *Engine) Disable(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return fmt.Errorf("disable guardrail %q: %w", id, ErrEngineSealed)
	}
	if protectedIDs[id] {
		return fmt.Errorf("disable guardrail %q: %w", id, ErrProtectedGuardrail)
	}
	if !e.ids[id] {
		return fmt.Errorf("disable guardrail %q: %w", id, ErrUnknownGuardrail)
	}
	e.disabled[id] = true
	return nil
}

// Remove drops a registered guardrail from its chain. Protected IDs are
// rejected, and nothing can change after seal.
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return fmt.Errorf("remove guardrail %q: %w", id, ErrEngineSealed)
	}
	if protectedIDs[id] {
		return fmt.Errorf("remove guardrail %q: %w", id, ErrProtectedGuardrail)
	}
	if !e.ids[id] {
		return fmt.Errorf("remove guardrail %q: %w", id, ErrUnknownGuardrail)
	}
	e.input = removeFromChain(e.input, id)
	e.output = removeFromChain(e.output, id)
	delete(e.ids, id)
	delete(e.disabled, id)
	return nil
}

func removeFromChain(chain []Guardrail, id string) []Guardrail {
	out := chain[:0]
	for _, g := range chain {
		if g.ID() != id {
			out = append(out, g)
		}
	}
	return out
}

// Seal freezes the engine. Sealing twice is a no-op.
func (e *Engine) Seal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sealed = true
}

// Sealed reports whether the engine has been sealed.
func (e *Engine) Sealed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sealed
}

// ValidateInput runs the input chain over user-supplied content.
func (e *Engine) ValidateInput(ctx context.Context, content string, gctx Context) *models.GuardrailResult {
	e.mu.RLock()
	chain := e.input
	e.mu.RUnlock()
	return e.run(ctx, chain, content, gctx)
}

// ValidateOutput runs the output chain over agent-produced content.
func (e *Engine) ValidateOutput(ctx context.Context, content string, gctx Context) *models.GuardrailResult {
	e.mu.RLock()
	chain := e.output
	e.mu.RUnlock()
	return e.run(ctx, chain, content, gctx)
}

func (e *Engine) run(ctx context.Context, chain []Guardrail, content string, gctx Context) *models.GuardrailResult {
	result := &models.GuardrailResult{Valid: true}
	if !e.enabled {
		return result
	}

	for _, g := range chain {
		if e.isDisabled(g.ID()) {
			continue
		}
		if !appliesTo(g, gctx.OutputType) {
			continue
		}

		verdict, err := e.safeValidate(ctx, g, content, gctx)
		if err != nil {
			failure := models.GuardrailViolation{
				GuardrailID: g.ID(),
				Severity:    models.SeverityError,
				Message:     fmt.Sprintf("guardrail failed: %v", err),
			}
			if e.strict {
				result.Valid = false
				result.Violations = append(result.Violations, failure)
				e.logResult(g.ID(), gctx, result)
				return result
			}
			failure.Severity = models.SeverityWarning
			result.Warnings = append(result.Warnings, failure)
			continue
		}

		if verdict.OK {
			result.Warnings = append(result.Warnings, stamp(g.ID(), models.SeverityWarning, verdict)...)
			continue
		}

		if g.Severity() == models.SeverityError {
			result.Valid = false
			result.Violations = append(result.Violations, stamp(g.ID(), models.SeverityError, verdict)...)
			if e.strict {
				e.logResult(g.ID(), gctx, result)
				return result
			}
		} else {
			result.Warnings = append(result.Warnings, stamp(g.ID(), models.SeverityWarning, verdict)...)
		}
	}

	if !result.Valid || len(result.Warnings) > 0 {
		e.logResult("", gctx, result)
	}
	return result
}

// safeValidate shields the chain from guardrail panics.
func (e *Engine) safeValidate(ctx context.Context, g Guardrail, content string, gctx Context) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in guardrail %s: %v", g.ID(), r)
		}
	}()
	return g.Validate(ctx, content, gctx)
}

// stamp converts a verdict into violations attributed to guardrailID. When
// the verdict carries no findings the message becomes a single violation.
func stamp(guardrailID string, sev models.GuardrailSeverity, v Verdict) []models.GuardrailViolation {
	if len(v.Findings) == 0 {
		if v.OK {
			return nil
		}
		return []models.GuardrailViolation{{
			GuardrailID: guardrailID,
			Severity:    sev,
			Message:     v.Message,
		}}
	}
	out := make([]models.GuardrailViolation, 0, len(v.Findings))
	for _, f := range v.Findings {
		f.GuardrailID = guardrailID
		f.Severity = sev
		out = append(out, f)
	}
	return out
}

// logResult logs violations with masked values only. Raw content never
// reaches the log stream.
func (e *Engine) logResult(shortCircuitID string, gctx Context, result *models.GuardrailResult) {
	if !e.logViolations {
		return
	}
	attrs := []any{
		"tenant_id", gctx.TenantID,
		"agent_type", string(gctx.AgentType),
		"valid", result.Valid,
		"violations", len(result.Violations),
		"warnings", len(result.Warnings),
	}
	if shortCircuitID != "" {
		attrs = append(attrs, "short_circuit", shortCircuitID)
	}
	for _, v := range result.Violations {
		attrs = append(attrs, "violation", fmt.Sprintf("%s: %s %s", v.GuardrailID, v.Type, v.MaskedValue))
	}
	if result.Valid {
		e.logger.Debug("guardrail warnings", attrs...)
		return
	}
	e.logger.Warn("guardrail violation", attrs...)
}

func (e *Engine) isDisabled(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.disabled[id]
}

func appliesTo(g Guardrail, t OutputType) bool {
	types := g.AppliesTo()
	if len(types) == 0 || t == "" {
		return true
	}
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// MaskSecrets rewrites secret matches in content for safe logging or
// notification. Builtin patterns mask to at most four leading and trailing
// characters; per-server rules apply their configured replacement.
func (e *Engine) MaskSecrets(content string) string {
	for _, p := range secretPatterns {
		content = p.regex.ReplaceAllStringFunc(content, MaskValue)
	}
	for _, r := range e.serverRules {
		content = r.regex.ReplaceAllString(content, r.replacement)
	}
	return content
}

// InputChainIDs returns the input chain IDs in registration order,
// excluding disabled guardrails.
func (e *Engine) InputChainIDs() []string {
	return e.chainIDs(e.input)
}

// OutputChainIDs returns the output chain IDs in registration order,
// excluding disabled guardrails.
func (e *Engine) OutputChainIDs() []string {
	return e.chainIDs(e.output)
}

func (e *Engine) chainIDs(chain []Guardrail) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(chain))
	for _, g := range chain {
		if !e.disabled[g.ID()] {
			ids = append(ids, g.ID())
		}
	}
	return ids
}
