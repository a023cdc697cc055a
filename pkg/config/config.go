package config

// Config is the umbrella configuration object returned by Initialize() and
// threaded through the application. Registries are sealed before it is
// handed out.
type Config struct {
	configDir string

	Orchestrator OrchestratorConfig
	Guardrails   GuardrailsConfig
	Context      ContextConfig
	Skills       SkillsConfig
	VectorStore  VectorStoreConfig
	Slack        *SlackConfig

	LLMProviders       map[string]LLMProviderConfig
	DefaultLLMProvider string

	SkillRegistry     *SkillRegistry
	MCPServerRegistry *MCPServerRegistry
}

// Stats contains statistics about loaded configuration.
type Stats struct {
	Skills       int
	MCPServers   int
	LLMProviders int
	BudgetRows   int
}

// Stats returns configuration statistics for logging and the system handler.
func (c *Config) Stats() Stats {
	s := Stats{
		LLMProviders: len(c.LLMProviders),
		BudgetRows:   len(c.Context.Budgets),
	}
	if c.SkillRegistry != nil {
		s.Skills = c.SkillRegistry.Len()
	}
	if c.MCPServerRegistry != nil {
		s.MCPServers = c.MCPServerRegistry.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetLLMProvider retrieves a provider configuration by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderConfig, error) {
	p, ok := c.LLMProviders[name]
	if !ok {
		return LLMProviderConfig{}, NewValidationError("llm_provider", name, "", ErrLLMProviderNotFound)
	}
	return p, nil
}

// BudgetFor returns the context budget row for an agent type, falling back
// to the default row.
func (c *Config) BudgetFor(agentType string) (AgentBudgetConfig, bool) {
	if row, ok := c.Context.Budgets[agentType]; ok {
		return row, true
	}
	row, ok := c.Context.Budgets[DefaultBudgetKey]
	return row, ok
}
