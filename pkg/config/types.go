package config

import "github.com/dpmorgan-gotribe/agentflow/pkg/models"

// Shared types used across configuration structs

// OrchestratorConfig bounds a single orchestration run. Zero values are
// filled from builtin defaults during load.
type OrchestratorConfig struct {
	MaxIterations       int `yaml:"max_iterations,omitempty" validate:"omitempty,min=1"`
	MaxTokenBudget      int `yaml:"max_token_budget,omitempty" validate:"omitempty,min=1"`
	TimeoutMs           int `yaml:"timeout_ms,omitempty" validate:"omitempty,min=1000"`
	MaxRetries          int `yaml:"max_retries,omitempty" validate:"omitempty,min=0"`
	MaxFailuresPerAgent int `yaml:"max_failures_per_agent,omitempty" validate:"omitempty,min=1"`

	// MaxInputLength bounds the user prompt before classification.
	MaxInputLength int `yaml:"max_input_length,omitempty" validate:"omitempty,min=1"`

	// AgentTimeoutMs bounds a single agent execution inside a dispatch.
	AgentTimeoutMs int `yaml:"agent_timeout_ms,omitempty" validate:"omitempty,min=1000"`
}

// RetentionConfig bounds how long terminal sessions stay addressable in
// memory. Pruned sessions lose their event replay history as well. Zero
// values are filled from builtin defaults during load.
type RetentionConfig struct {
	SessionTTLMinutes    int `yaml:"session_ttl_minutes,omitempty" validate:"omitempty,min=1"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds,omitempty" validate:"omitempty,min=1"`
}

// GuardrailsConfig controls the guardrail engine.
type GuardrailsConfig struct {
	Enabled       *bool `yaml:"enabled,omitempty"`
	StrictMode    *bool `yaml:"strict_mode,omitempty"`
	LogViolations *bool `yaml:"log_violations,omitempty"`

	// Disabled lists guardrail IDs to switch off. Protected builtin IDs
	// cannot be disabled; the engine rejects attempts at seal time.
	Disabled []string `yaml:"disabled,omitempty"`

	// RateLimitPerMinute caps inputs per tenant for the rate guardrail.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute,omitempty" validate:"omitempty,min=1"`
}

// StrictModeEnabled reports the effective strict-mode setting (default true).
func (g *GuardrailsConfig) StrictModeEnabled() bool {
	return g == nil || g.StrictMode == nil || *g.StrictMode
}

// GuardrailsEnabled reports the effective enabled setting (default true).
func (g *GuardrailsConfig) GuardrailsEnabled() bool {
	return g == nil || g.Enabled == nil || *g.Enabled
}

// SourceToggles enables context sources for one agent type.
type SourceToggles struct {
	Lessons bool `yaml:"lessons" json:"lessons"`
	Code    bool `yaml:"code" json:"code"`
	History bool `yaml:"history" json:"history"`
}

// SourceAllocation splits an agent's context budget across sources.
// Shares are renormalised over the sources active for a given request.
type SourceAllocation struct {
	Lessons float64 `yaml:"lessons" json:"lessons" validate:"min=0,max=1"`
	Code    float64 `yaml:"code" json:"code" validate:"min=0,max=1"`
	History float64 `yaml:"history" json:"history" validate:"min=0,max=1"`
}

// AgentBudgetConfig is one row of the per-agent context budget table.
type AgentBudgetConfig struct {
	TotalTokens int              `yaml:"total_tokens" validate:"required,min=100"`
	Sources     SourceToggles    `yaml:"sources"`
	Allocation  SourceAllocation `yaml:"allocation"`
}

// ContextConfig configures the context manager.
type ContextConfig struct {
	// Budgets maps agent types to their retrieval budget rows. Merged over
	// the builtin table; the "default" key applies to unlisted agents.
	Budgets map[string]AgentBudgetConfig `yaml:"budgets,omitempty"`

	// ReservedSystemTokens are subtracted from every budget before packing.
	ReservedSystemTokens int `yaml:"reserved_system_tokens,omitempty" validate:"omitempty,min=0"`

	CacheTTLSeconds int `yaml:"cache_ttl_seconds,omitempty" validate:"omitempty,min=1"`
	CacheMaxEntries int `yaml:"cache_max_entries,omitempty" validate:"omitempty,min=1"`
	CacheMaxBytes   int `yaml:"cache_max_bytes,omitempty" validate:"omitempty,min=1024"`
}

// SkillsConfig controls skill-pack loading and injection.
type SkillsConfig struct {
	// Packs lists YAML skill-pack files, relative to the config directory.
	Packs []string `yaml:"packs,omitempty"`

	// DisableBuiltins skips the builtin skill pack entirely.
	DisableBuiltins bool `yaml:"disable_builtins,omitempty"`

	// InjectionFormat is the default prompt format: markdown, xml, or plain.
	InjectionFormat string `yaml:"injection_format,omitempty" validate:"omitempty,oneof=markdown xml plain"`
}

// SkillPackFile is the on-disk YAML shape of a skill pack.
type SkillPackFile struct {
	Name   string         `yaml:"name"`
	Skills []models.Skill `yaml:"skills"`
}

// LLMProviderConfig describes one completion provider.
type LLMProviderConfig struct {
	Backend     string  `yaml:"backend" validate:"required,oneof=anthropic scripted"`
	Model       string  `yaml:"model,omitempty"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" validate:"omitempty,min=1"`
	Temperature float64 `yaml:"temperature,omitempty" validate:"omitempty,min=0,max=2"`

	// Retry/breaker middleware knobs.
	MaxRetries       int `yaml:"max_retries,omitempty" validate:"omitempty,min=0"`
	BreakerThreshold int `yaml:"breaker_threshold,omitempty" validate:"omitempty,min=1"`
}

// TransportType defines tool server transport types.
type TransportType string

const (
	// TransportTypeStdio uses subprocess communication via stdin/stdout.
	TransportTypeStdio TransportType = "stdio"
	// TransportTypeHTTP uses HTTP JSON-RPC.
	TransportTypeHTTP TransportType = "http"
	// TransportTypeSSE uses Server-Sent Events.
	TransportTypeSSE TransportType = "sse"
)

// IsValid checks if the transport type is valid.
func (t TransportType) IsValid() bool {
	return t == TransportTypeStdio || t == TransportTypeHTTP || t == TransportTypeSSE
}

// TransportConfig defines tool server transport configuration.
type TransportConfig struct {
	Type TransportType `yaml:"type" validate:"required"`

	// For stdio transport
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// For http/sse transport
	URL         string `yaml:"url,omitempty"`
	BearerToken string `yaml:"bearer_token,omitempty"`
	Timeout     int    `yaml:"timeout,omitempty"` // In seconds
}

// MCPServerConfig defines one entry of the sealed tool-server registry.
// Agents receive the server list as dispatch constraints; the masking rules
// feed the output guardrails for content attributed to that server.
type MCPServerConfig struct {
	Transport    TransportConfig `yaml:"transport" validate:"required"`
	Instructions string          `yaml:"instructions,omitempty"`
	Masking      *MaskingConfig  `yaml:"masking,omitempty"`
}

// MaskingConfig names extra secret patterns applied to content from a server.
type MaskingConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Patterns []MaskingPattern `yaml:"patterns,omitempty"`
}

// MaskingPattern is a regex-based masking rule.
type MaskingPattern struct {
	Pattern     string `yaml:"pattern" validate:"required"`
	Replacement string `yaml:"replacement" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// SlackConfig holds optional Slack notification settings.
type SlackConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// NotificationsEnabled reports whether Slack notifications are on. Default
// off: notifications require explicit opt-in plus a token.
func (s *SlackConfig) NotificationsEnabled() bool {
	return s != nil && s.Enabled != nil && *s.Enabled
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Backend string `yaml:"backend,omitempty" validate:"omitempty,oneof=memory pgvector"`
	// DatabaseURLEnv names the env var holding the pgvector connection URL.
	DatabaseURLEnv string `yaml:"database_url_env,omitempty"`
	Dimensions     int    `yaml:"dimensions,omitempty" validate:"omitempty,min=1"`
}

// BoolPtr returns a pointer to b. Convenience for *bool struct fields.
func BoolPtr(b bool) *bool { return &b }
