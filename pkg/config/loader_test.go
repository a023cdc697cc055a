package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// writeConfig writes agentflow.yaml (and optional extra files) into a temp
// config dir and returns the dir.
func writeConfig(t *testing.T, yamlBody string, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yamlBody), 0o644))
	for name, body := range extra {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestInitializeDefaultsOnly(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxIterations, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, DefaultMaxTokenBudget, cfg.Orchestrator.MaxTokenBudget)
	assert.Equal(t, DefaultTimeoutMs, cfg.Orchestrator.TimeoutMs)
	assert.True(t, cfg.Guardrails.StrictModeEnabled())
	assert.True(t, cfg.SkillRegistry.Sealed())
	assert.True(t, cfg.MCPServerRegistry.Sealed())
	assert.Greater(t, cfg.SkillRegistry.Len(), 0, "builtin skill pack loads by default")

	row, ok := cfg.BudgetFor("analyst")
	require.True(t, ok)
	assert.Equal(t, 8000, row.TotalTokens)

	row, ok = cfg.BudgetFor("never-heard-of-it")
	require.True(t, ok, "unknown agents fall back to the default row")
	assert.Equal(t, 6000, row.TotalTokens)
}

func TestInitializeUserOverrides(t *testing.T) {
	dir := writeConfig(t, `
orchestrator:
  max_iterations: 5
  max_token_budget: 5000
guardrails:
  strict_mode: false
context:
  budgets:
    analyst:
      total_tokens: 2000
      sources: {lessons: true, code: false, history: false}
      allocation: {lessons: 1.0, code: 0, history: 0}
`, nil)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 5000, cfg.Orchestrator.MaxTokenBudget)
	assert.Equal(t, DefaultTimeoutMs, cfg.Orchestrator.TimeoutMs, "unset fields keep builtin values")
	assert.False(t, cfg.Guardrails.StrictModeEnabled())

	row, ok := cfg.BudgetFor("analyst")
	require.True(t, ok)
	assert.Equal(t, 2000, row.TotalTokens)
	assert.False(t, row.Sources.Code)

	// Other builtin rows survive the merge.
	row, ok = cfg.BudgetFor("architect")
	require.True(t, ok)
	assert.Equal(t, 8000, row.TotalTokens)
}

func TestInitializeSkillPack(t *testing.T) {
	dir := writeConfig(t, `
skills:
  packs: [team-skills.yaml]
`, map[string]string{
		"team-skills.yaml": `
name: team
skills:
  - id: team-branding
    category: ui
    priority: high
    token_budget: 150
    instructions: Use the corporate palette.
    applicable_agents: [ui_designer]
`,
	})

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, cfg.SkillRegistry.Has("team-branding"))

	skill, err := cfg.SkillRegistry.Get("team-branding")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, skill.Priority)
	assert.Equal(t, []models.AgentType{models.AgentUIDesigner}, skill.ApplicableAgents)
}

func TestInitializeRejectsBadSkillPack(t *testing.T) {
	dir := writeConfig(t, `
skills:
  packs: [bad.yaml]
`, map[string]string{
		"bad.yaml": `
name: bad
skills:
  - id: cyclic-x
    category: coding
    priority: low
    token_budget: 10
    instructions: x
    requires: [cyclic-x]
`,
	})

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSelfDependency)
}

func TestInitializeRejectsInvalidBudget(t *testing.T) {
	dir := writeConfig(t, `
context:
  budgets:
    analyst:
      total_tokens: 2000
      sources: {lessons: true, code: true, history: false}
      allocation: {lessons: 0, code: 0, history: 1.0}
`, nil)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AGENTFLOW_TEST_TOKEN", "tok-123")

	out := ExpandEnv([]byte("token: {{.AGENTFLOW_TEST_TOKEN}}"))
	assert.Equal(t, "token: tok-123", string(out))

	// Missing variables collapse to empty.
	out = ExpandEnv([]byte("value: {{.AGENTFLOW_TEST_MISSING_VAR}}"))
	assert.Equal(t, "value: ", string(out))

	// Dollar signs in regex patterns survive untouched.
	out = ExpandEnv([]byte(`pattern: "^secret.*$"`))
	assert.Equal(t, `pattern: "^secret.*$"`, string(out))
}

func TestInitializeInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "orchestrator: [not: a: map", nil)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}
