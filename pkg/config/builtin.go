package config

import (
	"sync"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// Builtin defaults. User configuration merges over these; see loader.go.

// Default orchestrator bounds.
const (
	DefaultMaxIterations       = 20
	DefaultMaxTokenBudget      = 200_000
	DefaultTimeoutMs           = 600_000
	DefaultMaxRetries          = 3
	DefaultMaxFailuresPerAgent = 3
	DefaultMaxInputLength      = 20_000
	DefaultAgentTimeoutMs      = 120_000
)

// Default context manager settings.
const (
	DefaultReservedSystemTokens = 500
	DefaultCacheTTLSeconds      = 300
	DefaultCacheMaxEntries      = 1024
	DefaultCacheMaxBytes        = 32 << 20
)

// DefaultRateLimitPerMinute caps per-tenant inputs for the rate guardrail.
const DefaultRateLimitPerMinute = 60

// Default retention bounds for terminal sessions held in memory.
const (
	DefaultSessionTTLMinutes    = 720
	DefaultSweepIntervalSeconds = 300
)

// DefaultBudgetKey is the budget-table row applied to agent types without an
// explicit entry.
const DefaultBudgetKey = "default"

// BuiltinConfig carries every built-in default merged under user config.
type BuiltinConfig struct {
	Orchestrator OrchestratorConfig
	Guardrails   GuardrailsConfig
	Context      ContextConfig
	LLMProviders map[string]LLMProviderConfig
	MCPServers   map[string]MCPServerConfig
	Skills       []models.Skill

	DefaultLLMProvider   string
	DefaultInjectFormat  string
	DefaultVectorBackend string
}

var (
	builtinOnce   sync.Once
	builtinConfig *BuiltinConfig
)

// GetBuiltinConfig returns the built-in configuration singleton.
func GetBuiltinConfig() *BuiltinConfig {
	builtinOnce.Do(func() {
		builtinConfig = &BuiltinConfig{
			Orchestrator: OrchestratorConfig{
				MaxIterations:       DefaultMaxIterations,
				MaxTokenBudget:      DefaultMaxTokenBudget,
				TimeoutMs:           DefaultTimeoutMs,
				MaxRetries:          DefaultMaxRetries,
				MaxFailuresPerAgent: DefaultMaxFailuresPerAgent,
				MaxInputLength:      DefaultMaxInputLength,
				AgentTimeoutMs:      DefaultAgentTimeoutMs,
			},
			Guardrails: GuardrailsConfig{
				Enabled:            BoolPtr(true),
				StrictMode:         BoolPtr(true),
				LogViolations:      BoolPtr(true),
				RateLimitPerMinute: DefaultRateLimitPerMinute,
			},
			Context: ContextConfig{
				Budgets:              builtinBudgets(),
				ReservedSystemTokens: DefaultReservedSystemTokens,
				CacheTTLSeconds:      DefaultCacheTTLSeconds,
				CacheMaxEntries:      DefaultCacheMaxEntries,
				CacheMaxBytes:        DefaultCacheMaxBytes,
			},
			LLMProviders: map[string]LLMProviderConfig{
				"default": {
					Backend:          "anthropic",
					Model:            "claude-sonnet-4-5",
					APIKeyEnv:        "ANTHROPIC_API_KEY",
					MaxTokens:        8192,
					MaxRetries:       DefaultMaxRetries,
					BreakerThreshold: 5,
				},
			},
			MCPServers: map[string]MCPServerConfig{
				"project-files": {
					Transport: TransportConfig{
						Type:    TransportTypeStdio,
						Command: "npx",
						Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "."},
					},
					Instructions: "Read project files to ground design and code decisions.",
					Masking: &MaskingConfig{
						Enabled: true,
						Patterns: []MaskingPattern{
							{
								Pattern:     `(?i)(api[_-]?key|secret|token)["\s:=]+[A-Za-z0-9_\-]{8,}`,
								Replacement: "$1=***MASKED***",
								Description: "Generic credential assignments in file content",
							},
						},
					},
				},
			},
			Skills: builtinSkills(),

			DefaultLLMProvider:   "default",
			DefaultInjectFormat:  "markdown",
			DefaultVectorBackend: "memory",
		}
	})
	return builtinConfig
}

// builtinBudgets is the per-agent context budget table. Allocation shares are
// renormalised at retrieval time over the sources active for the request.
func builtinBudgets() map[string]AgentBudgetConfig {
	return map[string]AgentBudgetConfig{
		string(models.AgentAnalyst): {
			TotalTokens: 8000,
			Sources:     SourceToggles{Lessons: true, Code: true, History: true},
			Allocation:  SourceAllocation{Lessons: 0.5, Code: 0.2, History: 0.3},
		},
		string(models.AgentArchitect): {
			TotalTokens: 8000,
			Sources:     SourceToggles{Lessons: true, Code: true, History: true},
			Allocation:  SourceAllocation{Lessons: 0.4, Code: 0.4, History: 0.2},
		},
		string(models.AgentUIDesigner): {
			TotalTokens: 6000,
			Sources:     SourceToggles{Lessons: true, Code: true, History: true},
			Allocation:  SourceAllocation{Lessons: 0.6, Code: 0.2, History: 0.2},
		},
		string(models.AgentProjectManager): {
			TotalTokens: 4000,
			Sources:     SourceToggles{Lessons: true, Code: false, History: true},
			Allocation:  SourceAllocation{Lessons: 0.4, Code: 0, History: 0.6},
		},
		string(models.AgentReviewer): {
			TotalTokens: 8000,
			Sources:     SourceToggles{Lessons: true, Code: true, History: true},
			Allocation:  SourceAllocation{Lessons: 0.2, Code: 0.6, History: 0.2},
		},
		string(models.AgentFrontendDev): {
			TotalTokens: 10000,
			Sources:     SourceToggles{Lessons: true, Code: true, History: true},
			Allocation:  SourceAllocation{Lessons: 0.3, Code: 0.5, History: 0.2},
		},
		string(models.AgentBackendDev): {
			TotalTokens: 10000,
			Sources:     SourceToggles{Lessons: true, Code: true, History: true},
			Allocation:  SourceAllocation{Lessons: 0.3, Code: 0.5, History: 0.2},
		},
		string(models.AgentTester): {
			TotalTokens: 6000,
			Sources:     SourceToggles{Lessons: true, Code: true, History: false},
			Allocation:  SourceAllocation{Lessons: 0.3, Code: 0.7, History: 0},
		},
		DefaultBudgetKey: {
			TotalTokens: 6000,
			Sources:     SourceToggles{Lessons: true, Code: true, History: true},
			Allocation:  SourceAllocation{Lessons: 0.4, Code: 0.3, History: 0.3},
		},
	}
}

// builtinSkills is the skill pack shipped with the binary. User packs merge
// on top; IDs here are stable and referenced by defaults and tests.
func builtinSkills() []models.Skill {
	return []models.Skill{
		{
			ID:          "secure-output-handling",
			Category:    "security",
			Tags:        []string{"secrets", "output"},
			Priority:    models.PriorityCritical,
			TokenBudget: 220,
			Instructions: "Never include credentials, API keys, tokens, or connection " +
				"strings in generated content. Reference configuration by environment " +
				"variable name instead of value.",
			ApplicableAgents: []models.AgentType{
				models.AgentFrontendDev, models.AgentBackendDev,
				models.AgentArchitect, models.AgentReviewer,
			},
		},
		{
			ID:          "input-validation",
			Category:    "security",
			Tags:        []string{"validation", "injection"},
			Priority:    models.PriorityCritical,
			TokenBudget: 260,
			Instructions: "Validate and encode all external input at trust boundaries. " +
				"Use parameterised queries; never interpolate user input into SQL, " +
				"shell commands, or HTML.",
			ApplicableAgents: []models.AgentType{models.AgentBackendDev, models.AgentFrontendDev},
		},
		{
			ID:          "pii-handling",
			Category:    "compliance",
			Tags:        []string{"pii", "privacy"},
			Priority:    models.PriorityCritical,
			TokenBudget: 200,
			Instructions: "Treat names, emails, phone numbers, and government IDs as PII. " +
				"Do not echo PII into artifacts, logs, or examples.",
			ApplicableAgents: []models.AgentType{models.AgentAnalyst, models.AgentBackendDev},
		},
		{
			ID:          "requirements-elicitation",
			Category:    "analysis",
			Tags:        []string{"requirements", "scoping"},
			Priority:    models.PriorityHigh,
			TokenBudget: 420,
			Instructions: "Decompose the request into user goals, functional requirements, " +
				"and constraints. Surface ambiguities explicitly instead of guessing. " +
				"For design-flavoured tasks, propose distinct visual directions as named " +
				"style packages.",
			Examples:         []string{"Goal: self-serve onboarding → requirements: signup, email verification, guided first project."},
			ApplicableAgents: []models.AgentType{models.AgentAnalyst},
		},
		{
			ID:          "semantic-markup",
			Category:    "coding",
			Tags:        []string{"html", "structure"},
			Priority:    models.PriorityMedium,
			TokenBudget: 300,
			Instructions: "Use semantic HTML elements (header, nav, main, article, footer) " +
				"over generic divs. Headings form a strict hierarchy.",
			ApplicableAgents: []models.AgentType{models.AgentUIDesigner, models.AgentFrontendDev},
		},
		{
			ID:          "responsive-design",
			Category:    "ui",
			Tags:        []string{"css", "layout", "responsive"},
			Priority:    models.PriorityHigh,
			TokenBudget: 380,
			Instructions: "Design mobile-first. Express layout with flex/grid and relative " +
				"units; reserve fixed pixel values for borders and hairlines.",
			Requires:         []string{"semantic-markup"},
			ApplicableAgents: []models.AgentType{models.AgentUIDesigner, models.AgentFrontendDev},
		},
		{
			ID:          "accessibility",
			Category:    "ui",
			Tags:        []string{"a11y", "wcag"},
			Priority:    models.PriorityHigh,
			TokenBudget: 360,
			Instructions: "Meet WCAG AA: 4.5:1 text contrast, visible focus states, labels " +
				"on every control, alt text on informative images.",
			Requires:         []string{"semantic-markup"},
			ApplicableAgents: []models.AgentType{models.AgentUIDesigner, models.AgentFrontendDev},
		},
		{
			ID:          "component-structure",
			Category:    "coding",
			Tags:        []string{"components", "architecture"},
			Priority:    models.PriorityMedium,
			TokenBudget: 340,
			Instructions: "Keep components single-purpose with typed props. Lift shared " +
				"state to the nearest common ancestor; avoid prop drilling past two levels.",
			Conditions:       models.SkillConditions{Frameworks: []string{"react", "vue", "svelte"}},
			ApplicableAgents: []models.AgentType{models.AgentFrontendDev},
		},
		{
			ID:          "rest-conventions",
			Category:    "api",
			Tags:        []string{"rest", "http"},
			Priority:    models.PriorityMedium,
			TokenBudget: 320,
			Instructions: "Resource-oriented paths, plural nouns, standard verbs. Errors " +
				"return a consistent JSON envelope with a machine-readable code.",
			ApplicableAgents: []models.AgentType{models.AgentBackendDev, models.AgentArchitect},
		},
		{
			ID:          "schema-design",
			Category:    "database",
			Tags:        []string{"sql", "modelling"},
			Priority:    models.PriorityMedium,
			TokenBudget: 320,
			Instructions: "Normalise to third normal form unless a measured read path " +
				"justifies denormalisation. Every table gets created_at and a surrogate key.",
			ApplicableAgents: []models.AgentType{models.AgentBackendDev, models.AgentArchitect},
		},
		{
			ID:          "test-coverage",
			Category:    "testing",
			Tags:        []string{"tests", "coverage"},
			Priority:    models.PriorityHigh,
			TokenBudget: 300,
			Instructions: "Cover each public behaviour with at least one test, including " +
				"one failure path. Prefer table-driven cases over copy-pasted asserts.",
			ApplicableAgents: []models.AgentType{models.AgentTester, models.AgentReviewer},
		},
		{
			ID:          "adr-style",
			Category:    "documentation",
			Tags:        []string{"adr", "decisions"},
			Priority:    models.PriorityLow,
			TokenBudget: 240,
			Instructions: "Record significant design decisions as short ADRs: context, " +
				"decision, consequences.",
			ApplicableAgents: []models.AgentType{models.AgentArchitect},
		},
	}
}
