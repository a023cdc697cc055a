package schema

import (
	"strings"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// agentAliases maps human-friendly synonyms the LLM tends to emit onto
// canonical agent types. Keys are in normalised form (lower, underscores).
var agentAliases = map[string]models.AgentType{
	"analyst":           models.AgentAnalyst,
	"business_analyst":  models.AgentAnalyst,
	"researcher":        models.AgentAnalyst,
	"research":          models.AgentAnalyst,
	"architect":         models.AgentArchitect,
	"system_architect":  models.AgentArchitect,
	"architecture":      models.AgentArchitect,
	"ui_designer":       models.AgentUIDesigner,
	"uidesigner":        models.AgentUIDesigner,
	"designer":          models.AgentUIDesigner,
	"ui":                models.AgentUIDesigner,
	"ux_designer":       models.AgentUIDesigner,
	"project_manager":   models.AgentProjectManager,
	"projectmanager":    models.AgentProjectManager,
	"pm":                models.AgentProjectManager,
	"planner":           models.AgentProjectManager,
	"reviewer":          models.AgentReviewer,
	"code_reviewer":     models.AgentReviewer,
	"review":            models.AgentReviewer,
	"frontend_dev":      models.AgentFrontendDev,
	"frontend_developer": models.AgentFrontendDev,
	"front_end_dev":     models.AgentFrontendDev,
	"frontend":          models.AgentFrontendDev,
	"backend_dev":       models.AgentBackendDev,
	"backend_developer": models.AgentBackendDev,
	"back_end_dev":      models.AgentBackendDev,
	"backend":           models.AgentBackendDev,
	"tester":            models.AgentTester,
	"qa":                models.AgentTester,
	"quality_assurance": models.AgentTester,
	"test_engineer":     models.AgentTester,
	"orchestrator":      models.AgentOrchestrator,
}

// NormalizeAgentType maps a raw agent name (any casing, spaces or hyphens)
// onto its canonical type. ok is false for unknown names.
func NormalizeAgentType(raw string) (models.AgentType, bool) {
	key := normalizeToken(raw)
	if key == "" {
		return "", false
	}
	t, ok := agentAliases[key]
	return t, ok
}

// NormalizeAgentList converts a routing-hint value parsed from LLM JSON into
// canonical agent types. Accepts a single string, []string, or []any; unknown
// names are dropped and duplicates removed, preserving first-seen order.
func NormalizeAgentList(value any) []models.AgentType {
	var raw []string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		raw = []string{v}
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []models.AgentType:
		for _, t := range v {
			raw = append(raw, string(t))
		}
	default:
		return nil
	}

	seen := make(map[models.AgentType]bool, len(raw))
	out := make([]models.AgentType, 0, len(raw))
	for _, name := range raw {
		t, ok := NormalizeAgentType(name)
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// normalizeToken lowers, trims, and converts separators to underscores.
func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}
