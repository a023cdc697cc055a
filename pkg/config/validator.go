package config

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/dpmorgan-gotribe/agentflow/pkg/schema"
)

// ConfigValidator validates configuration comprehensively with clear error
// messages (fail-fast, stops at the first error).
type ConfigValidator struct {
	cfg      *Config
	validate *validator.Validate
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateAll performs comprehensive validation. Order: orchestrator bounds →
// context budgets → LLM providers → skills → MCP servers, so dependencies are
// checked before dependents.
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateOrchestrator(); err != nil {
		return fmt.Errorf("orchestrator validation failed: %w", err)
	}
	if err := v.validateContext(); err != nil {
		return fmt.Errorf("context validation failed: %w", err)
	}
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}
	if err := v.validateSkills(); err != nil {
		return fmt.Errorf("skill validation failed: %w", err)
	}
	if err := v.validateMCPServers(); err != nil {
		return fmt.Errorf("MCP server validation failed: %w", err)
	}
	return nil
}

func (v *ConfigValidator) validateOrchestrator() error {
	o := v.cfg.Orchestrator
	if err := v.validate.Struct(o); err != nil {
		return NewValidationError("orchestrator", "bounds", "", err)
	}
	if o.MaxIterations < 1 {
		return NewValidationError("orchestrator", "bounds", "max_iterations", fmt.Errorf("must be at least 1"))
	}
	if o.MaxTokenBudget < 1 {
		return NewValidationError("orchestrator", "bounds", "max_token_budget", fmt.Errorf("must be positive"))
	}
	if o.TimeoutMs < 1000 {
		return NewValidationError("orchestrator", "bounds", "timeout_ms", fmt.Errorf("must be at least 1000"))
	}
	return nil
}

func (v *ConfigValidator) validateContext() error {
	if len(v.cfg.Context.Budgets) == 0 {
		return NewValidationError("context", "budgets", "", fmt.Errorf("budget table is empty"))
	}
	if _, ok := v.cfg.Context.Budgets[DefaultBudgetKey]; !ok {
		return NewValidationError("context", "budgets", DefaultBudgetKey, fmt.Errorf("default budget row is required"))
	}

	for agentType, row := range v.cfg.Context.Budgets {
		if row.TotalTokens < 100 {
			return NewValidationError("budget", agentType, "total_tokens", fmt.Errorf("must be at least 100"))
		}
		if agentType != DefaultBudgetKey {
			if _, ok := schema.NormalizeAgentType(agentType); !ok {
				return NewValidationError("budget", agentType, "", fmt.Errorf("unknown agent type"))
			}
		}

		sum := 0.0
		if row.Sources.Lessons {
			sum += row.Allocation.Lessons
		}
		if row.Sources.Code {
			sum += row.Allocation.Code
		}
		if row.Sources.History {
			sum += row.Allocation.History
		}
		if sum <= 0 {
			return NewValidationError("budget", agentType, "allocation", fmt.Errorf("no share assigned to any enabled source"))
		}
		// Shares are renormalised at retrieval; a sum far above 1 is still a
		// config mistake worth rejecting.
		if sum > 1.0+1e-9 && math.Abs(sum-1.0) > 0.25 {
			return NewValidationError("budget", agentType, "allocation", fmt.Errorf("shares sum to %.2f, expected at most 1.0", sum))
		}
	}

	if v.cfg.Context.ReservedSystemTokens < 0 {
		return NewValidationError("context", "reserved_system_tokens", "", fmt.Errorf("must be non-negative"))
	}
	return nil
}

func (v *ConfigValidator) validateLLMProviders() error {
	if len(v.cfg.LLMProviders) == 0 {
		return NewValidationError("llm_provider", "", "", fmt.Errorf("at least one provider required"))
	}
	if _, ok := v.cfg.LLMProviders[v.cfg.DefaultLLMProvider]; !ok {
		return NewValidationError("llm_provider", v.cfg.DefaultLLMProvider, "",
			fmt.Errorf("default provider not defined: %w", ErrLLMProviderNotFound))
	}
	for name, p := range v.cfg.LLMProviders {
		if err := v.validate.Struct(p); err != nil {
			return NewValidationError("llm_provider", name, "", err)
		}
		if p.Backend == "anthropic" && p.APIKeyEnv == "" {
			return NewValidationError("llm_provider", name, "api_key_env", fmt.Errorf("required for anthropic backend"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateSkills() error {
	// Per-skill semantic validation ran at Register time; here we check the
	// cross-skill shape before the registry is sealed.
	for _, skill := range v.cfg.SkillRegistry.All() {
		for _, agent := range skill.ApplicableAgents {
			if !agent.IsValid() {
				return NewValidationError("skill", skill.ID, "applicable_agents", fmt.Errorf("unknown agent type: %s", agent))
			}
		}
		if skill.TokenBudget < 0 {
			return NewValidationError("skill", skill.ID, "token_budget", fmt.Errorf("must be non-negative"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateMCPServers() error {
	for id, server := range v.cfg.MCPServerRegistry.GetAll() {
		if !server.Transport.Type.IsValid() {
			return NewValidationError("mcp_server", id, "transport.type", fmt.Errorf("invalid transport: %s", server.Transport.Type))
		}
		switch server.Transport.Type {
		case TransportTypeStdio:
			if server.Transport.Command == "" {
				return NewValidationError("mcp_server", id, "transport.command", fmt.Errorf("required for stdio transport"))
			}
		case TransportTypeHTTP, TransportTypeSSE:
			if server.Transport.URL == "" {
				return NewValidationError("mcp_server", id, "transport.url", fmt.Errorf("required for %s transport", server.Transport.Type))
			}
		}
		if server.Masking != nil {
			for i, p := range server.Masking.Patterns {
				if p.Pattern == "" || p.Replacement == "" {
					return NewValidationError("mcp_server", id,
						fmt.Sprintf("masking.patterns[%d]", i), fmt.Errorf("pattern and replacement are required"))
				}
			}
		}
	}
	return nil
}
