package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/schema"
)

var (
	// ErrNoTargets is returned when a dispatch decision names no usable agent.
	ErrNoTargets = errors.New("decision: dispatch without targets")
	// ErrNoApprovalConfig is returned when an approval decision carries no
	// usable approval type.
	ErrNoApprovalConfig = errors.New("decision: approval without config")
)

var decisionActions = []string{
	string(models.ActionDispatch),
	string(models.ActionParallelDispatch),
	string(models.ActionApproval),
	string(models.ActionWait),
	string(models.ActionComplete),
	string(models.ActionFail),
}

var approvalTypes = []string{
	string(models.ApprovalStyleSelection),
	string(models.ApprovalDesignReview),
}

// ParseDecision extracts a Decision from raw LLM text. Parsing is lenient:
// fenced or embedded JSON is located, trailing commas repaired, enum values
// normalised, agent aliases resolved, and unknown agents dropped. Decisions
// that survive parsing are structurally valid but not yet gate-checked.
func ParseDecision(text string) (*models.Decision, error) {
	m, err := schema.ExtractJSONMap(text)
	if err != nil {
		return nil, fmt.Errorf("decision: %w", err)
	}

	d := &models.Decision{
		Reasoning: stringField(m, "reasoning", "reason", "thinking"),
		Error:     stringField(m, "error"),
		Summary:   stringField(m, "summary"),
	}
	d.Action = models.DecisionAction(schema.LenientEnum(firstField(m, "action"), decisionActions, ""))
	d.Targets = parseTargets(m)
	d.ApprovalConfig = parseApprovalConfig(firstField(m, "approvalConfig", "approval_config", "approval"))

	// Infer the action when the model omitted it but the shape is obvious.
	if d.Action == "" {
		switch {
		case d.ApprovalConfig != nil:
			d.Action = models.ActionApproval
		case len(d.Targets) > 1:
			d.Action = models.ActionParallelDispatch
		case len(d.Targets) == 1:
			d.Action = models.ActionDispatch
		case d.Error != "":
			d.Action = models.ActionFail
		default:
			return nil, fmt.Errorf("decision: no recognisable action")
		}
	}

	switch d.Action {
	case models.ActionDispatch, models.ActionParallelDispatch:
		if len(d.Targets) == 0 {
			return nil, ErrNoTargets
		}
		if d.Action == models.ActionDispatch {
			d.Targets = d.Targets[:1]
		}
	case models.ActionApproval:
		if d.ApprovalConfig == nil || d.ApprovalConfig.Type == "" {
			return nil, ErrNoApprovalConfig
		}
	}
	return d, nil
}

// MarshalDecision renders a decision in the canonical wire form. The output
// round-trips through ParseDecision unchanged.
func MarshalDecision(d *models.Decision) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("decision: marshal: %w", err)
	}
	return string(raw), nil
}

var specialActionPattern = regexp.MustCompile(`\b(COMPLETE|PAUSE|ESCALATE|ABORT)\b`)

// ParseSpecialAction scans a reasoning string for an orchestrator-directed
// instruction. Only upper-case whole words count; the first match wins.
func ParseSpecialAction(reasoning string) models.SpecialAction {
	match := specialActionPattern.FindString(reasoning)
	if match == "" {
		return models.SpecialNone
	}
	return models.SpecialAction(match)
}

// parseTargets reads the target list from any of the spellings models emit:
// a "targets" object array, an "agents" name array, or a single "nextAgent".
func parseTargets(m map[string]any) []models.Target {
	var targets []models.Target

	for _, item := range schema.LenientArray(firstField(m, "targets")) {
		obj, ok := item.(map[string]any)
		if !ok {
			// Bare string inside targets.
			if agent, valid := schema.NormalizeAgentType(fmt.Sprintf("%v", item)); valid {
				targets = append(targets, models.Target{AgentID: agent})
			}
			continue
		}
		agent, valid := schema.NormalizeAgentType(stringField(obj, "agentId", "agent_id", "agent", "id"))
		if !valid {
			continue
		}
		targets = append(targets, models.Target{
			AgentID:     agent,
			Priority:    intField(obj, "priority"),
			ExecutionID: stringField(obj, "executionId", "execution_id"),
			StyleHint:   stringField(obj, "styleHint", "style_hint", "style"),
		})
	}
	if len(targets) > 0 {
		return targets
	}

	for _, a := range schema.NormalizeAgentList(firstField(m, "agents")) {
		targets = append(targets, models.Target{AgentID: a})
	}
	if len(targets) > 0 {
		return targets
	}

	if agent, valid := schema.NormalizeAgentType(stringField(m, "nextAgent", "next_agent", "agent")); valid {
		targets = append(targets, models.Target{AgentID: agent})
	}
	return targets
}

func parseApprovalConfig(value any) *models.ApprovalConfig {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	cfg := &models.ApprovalConfig{
		Type:          models.ApprovalType(schema.LenientEnum(firstField(obj, "type"), approvalTypes, "")),
		Description:   stringField(obj, "description", "message"),
		MaxIterations: intField(obj, "maxIterations", "max_iterations"),
	}
	for _, opt := range schema.LenientArray(firstField(obj, "options")) {
		if s := strings.TrimSpace(fmt.Sprintf("%v", opt)); s != "" {
			cfg.Options = append(cfg.Options, s)
		}
	}
	if cfg.Type == "" && cfg.Description == "" && len(cfg.Options) == 0 {
		return nil
	}
	return cfg
}

func firstField(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func stringField(m map[string]any, keys ...string) string {
	v := firstField(m, keys...)
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64, int, bool:
		return fmt.Sprintf("%v", s)
	default:
		return ""
	}
}

func intField(m map[string]any, keys ...string) int {
	switch v := firstField(m, keys...).(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return 0
}
