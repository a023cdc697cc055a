package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the primary configuration file inside the config dir.
const ConfigFileName = "agentflow.yaml"

// AgentflowYAMLConfig represents the complete agentflow.yaml file structure.
type AgentflowYAMLConfig struct {
	Orchestrator *OrchestratorConfig          `yaml:"orchestrator"`
	Guardrails   *GuardrailsConfig            `yaml:"guardrails"`
	Context      *ContextConfig               `yaml:"context"`
	Skills       *SkillsConfig                `yaml:"skills"`
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
	MCPServers   map[string]MCPServerConfig   `yaml:"mcp_servers"`
	VectorStore  *VectorStoreConfig           `yaml:"vector_store"`
	Slack        *SlackConfig                 `yaml:"slack"`

	// DefaultLLMProvider names the provider used when a component does not
	// pick one explicitly.
	DefaultLLMProvider string `yaml:"default_llm_provider,omitempty"`
}

// Initialize loads, merges, validates, and seals the configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load agentflow.yaml from configDir (missing file → pure builtins)
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Merge user configuration over builtin defaults
//  4. Load skill packs (builtin pack + files named in skills.packs)
//  5. Build and seal the skill and MCP server registries
//  6. Validate everything fail-fast
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if err := cfg.SkillRegistry.Seal(); err != nil {
		return nil, fmt.Errorf("sealing skill registry: %w", err)
	}
	cfg.MCPServerRegistry.Seal()

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"skills", stats.Skills,
		"mcp_servers", stats.MCPServers,
		"llm_providers", stats.LLMProviders,
		"budget_rows", stats.BudgetRows)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	fileCfg, err := loadYAMLFile(configDir)
	if err != nil {
		return nil, err
	}
	builtin := GetBuiltinConfig()

	// Merge scalars and tables: user value wins, builtin fills gaps.
	orch := builtin.Orchestrator
	if fileCfg.Orchestrator != nil {
		if err := mergo.Merge(&orch, *fileCfg.Orchestrator, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging orchestrator config: %w", err)
		}
	}

	guardrails := builtin.Guardrails
	if fileCfg.Guardrails != nil {
		if err := mergo.Merge(&guardrails, *fileCfg.Guardrails, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging guardrails config: %w", err)
		}
	}

	contextCfg := builtin.Context
	if fileCfg.Context != nil {
		if err := mergo.Merge(&contextCfg, *fileCfg.Context, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging context config: %w", err)
		}
		// mergo merges map values shallowly; user budget rows replace
		// builtin rows of the same key outright.
		for agentType, row := range fileCfg.Context.Budgets {
			contextCfg.Budgets[agentType] = row
		}
	}

	providers := make(map[string]LLMProviderConfig, len(builtin.LLMProviders))
	for name, p := range builtin.LLMProviders {
		providers[name] = p
	}
	for name, p := range fileCfg.LLMProviders {
		providers[name] = p
	}

	servers := make(map[string]*MCPServerConfig, len(builtin.MCPServers))
	for id, s := range builtin.MCPServers {
		copied := s
		servers[id] = &copied
	}
	for id, s := range fileCfg.MCPServers {
		copied := s
		servers[id] = &copied
	}

	skillsCfg := SkillsConfig{InjectionFormat: builtin.DefaultInjectFormat}
	if fileCfg.Skills != nil {
		if err := mergo.Merge(&skillsCfg, *fileCfg.Skills, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging skills config: %w", err)
		}
	}

	skillRegistry := NewSkillRegistry()
	if !skillsCfg.DisableBuiltins {
		for _, skill := range builtin.Skills {
			if err := skillRegistry.Register(skill); err != nil {
				return nil, fmt.Errorf("registering builtin skill: %w", err)
			}
		}
	}
	for _, packFile := range skillsCfg.Packs {
		if err := loadSkillPack(skillRegistry, configDir, packFile); err != nil {
			return nil, err
		}
	}

	vectorStore := VectorStoreConfig{Backend: builtin.DefaultVectorBackend}
	if fileCfg.VectorStore != nil {
		if err := mergo.Merge(&vectorStore, *fileCfg.VectorStore, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging vector store config: %w", err)
		}
	}

	defaultProvider := fileCfg.DefaultLLMProvider
	if defaultProvider == "" {
		defaultProvider = builtin.DefaultLLMProvider
	}

	return &Config{
		configDir:          configDir,
		Orchestrator:       orch,
		Guardrails:         guardrails,
		Context:            contextCfg,
		Skills:             skillsCfg,
		LLMProviders:       providers,
		DefaultLLMProvider: defaultProvider,
		VectorStore:        vectorStore,
		Slack:              fileCfg.Slack,
		SkillRegistry:      skillRegistry,
		MCPServerRegistry:  NewMCPServerRegistry(servers),
	}, nil
}

// loadYAMLFile reads and parses agentflow.yaml. A missing file is not an
// error: the builtin defaults alone form a valid configuration.
func loadYAMLFile(configDir string) (*AgentflowYAMLConfig, error) {
	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("No configuration file found, using builtin defaults", "path", path)
		return &AgentflowYAMLConfig{}, nil
	}
	if err != nil {
		return nil, NewLoadError(ConfigFileName, err)
	}

	data = ExpandEnv(data)

	var fileCfg AgentflowYAMLConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, NewLoadError(ConfigFileName, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &fileCfg, nil
}

// loadSkillPack reads one skill-pack YAML file and registers its skills.
func loadSkillPack(registry *SkillRegistry, configDir, packFile string) error {
	path := packFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(configDir, packFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return NewLoadError(packFile, err)
	}

	data = ExpandEnv(data)

	var pack SkillPackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return NewLoadError(packFile, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	for _, skill := range pack.Skills {
		if err := registry.Register(skill); err != nil {
			return NewLoadError(packFile, err)
		}
	}
	slog.Info("Loaded skill pack", "pack", pack.Name, "file", packFile, "skills", len(pack.Skills))
	return nil
}

// ExpandEnv expands environment variables in YAML content using Go template
// syntax ({{.VAR_NAME}}). Dollar-sign syntax is deliberately not used: config
// values legitimately contain $ in regex patterns and passwords. Missing
// variables expand to empty strings; validation catches required fields left
// empty. Malformed templates pass through unexpanded.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
