package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

func TestParseDecisionCanonical(t *testing.T) {
	d, err := ParseDecision(`{
		"reasoning": "research first",
		"action": "dispatch",
		"targets": [{"agentId": "analyst", "priority": 1}]
	}`)
	require.NoError(t, err)
	assert.Equal(t, "research first", d.Reasoning)
	assert.Equal(t, models.ActionDispatch, d.Action)
	require.Len(t, d.Targets, 1)
	assert.Equal(t, models.AgentAnalyst, d.Targets[0].AgentID)
	assert.Equal(t, 1, d.Targets[0].Priority)
}

func TestParseDecisionRoundTrip(t *testing.T) {
	original := &models.Decision{
		Reasoning: "fan out the style competition",
		Action:    models.ActionParallelDispatch,
		Targets: []models.Target{
			{AgentID: models.AgentUIDesigner, StyleHint: "style-id-1", ExecutionID: "exec-1"},
			{AgentID: models.AgentUIDesigner, StyleHint: "style-id-2", ExecutionID: "exec-2"},
		},
		Summary: "competition round",
	}

	wire, err := MarshalDecision(original)
	require.NoError(t, err)
	parsed, err := ParseDecision(wire)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseDecisionApprovalRoundTrip(t *testing.T) {
	original := &models.Decision{
		Reasoning: "need a style pick",
		Action:    models.ActionApproval,
		ApprovalConfig: &models.ApprovalConfig{
			Type:          models.ApprovalStyleSelection,
			Description:   "Choose a style",
			Options:       []string{"style-id-1", "style-id-2"},
			MaxIterations: 5,
		},
	}

	wire, err := MarshalDecision(original)
	require.NoError(t, err)
	parsed, err := ParseDecision(wire)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseDecisionLenient(t *testing.T) {
	// Fenced output, sloppy enum, agent alias, trailing comma.
	text := "Here is my decision:\n```json\n" +
		`{
		"reasoning": "ship it",
		"action": " Parallel Dispatch ",
		"targets": [
			{"agent": "Frontend Developer"},
			{"agent": "backend-dev"},
		]
	}` + "\n```"

	d, err := ParseDecision(text)
	require.NoError(t, err)
	assert.Equal(t, models.ActionParallelDispatch, d.Action)
	require.Len(t, d.Targets, 2)
	assert.Equal(t, models.AgentFrontendDev, d.Targets[0].AgentID)
	assert.Equal(t, models.AgentBackendDev, d.Targets[1].AgentID)
}

func TestParseDecisionSingularNextAgent(t *testing.T) {
	d, err := ParseDecision(`{"reasoning": "next", "nextAgent": "architect"}`)
	require.NoError(t, err)
	assert.Equal(t, models.ActionDispatch, d.Action)
	require.Len(t, d.Targets, 1)
	assert.Equal(t, models.AgentArchitect, d.Targets[0].AgentID)
}

func TestParseDecisionAgentsArray(t *testing.T) {
	d, err := ParseDecision(`{"action": "parallel_dispatch", "agents": ["ui-designer", "pm", "nonsense"]}`)
	require.NoError(t, err)
	require.Len(t, d.Targets, 2)
	assert.Equal(t, models.AgentUIDesigner, d.Targets[0].AgentID)
	assert.Equal(t, models.AgentProjectManager, d.Targets[1].AgentID)
}

func TestParseDecisionInfersApproval(t *testing.T) {
	d, err := ParseDecision(`{
		"reasoning": "pause for the user",
		"approvalConfig": {"type": "design review", "maxIterations": 3}
	}`)
	require.NoError(t, err)
	assert.Equal(t, models.ActionApproval, d.Action)
	require.NotNil(t, d.ApprovalConfig)
	assert.Equal(t, models.ApprovalDesignReview, d.ApprovalConfig.Type)
	assert.Equal(t, 3, d.ApprovalConfig.MaxIterations)
}

func TestParseDecisionDropsExtraDispatchTargets(t *testing.T) {
	d, err := ParseDecision(`{"action": "dispatch", "targets": [{"agentId": "analyst"}, {"agentId": "architect"}]}`)
	require.NoError(t, err)
	require.Len(t, d.Targets, 1)
	assert.Equal(t, models.AgentAnalyst, d.Targets[0].AgentID)
}

func TestParseDecisionErrors(t *testing.T) {
	_, err := ParseDecision("no json here")
	assert.Error(t, err)

	_, err = ParseDecision(`{"action": "dispatch", "targets": []}`)
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = ParseDecision(`{"action": "dispatch", "targets": [{"agentId": "not_an_agent"}]}`)
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = ParseDecision(`{"action": "approval"}`)
	assert.ErrorIs(t, err, ErrNoApprovalConfig)
}

func TestParseSpecialAction(t *testing.T) {
	assert.Equal(t, models.SpecialComplete, ParseSpecialAction("Everything finished. COMPLETE"))
	assert.Equal(t, models.SpecialPause, ParseSpecialAction("PAUSE until the user weighs in"))
	assert.Equal(t, models.SpecialEscalate, ParseSpecialAction("must ESCALATE to a human"))
	assert.Equal(t, models.SpecialAbort, ParseSpecialAction("unrecoverable, ABORT now"))
	assert.Equal(t, models.SpecialNone, ParseSpecialAction("just keep going"))
	// Lower-case words are prose, not instructions.
	assert.Equal(t, models.SpecialNone, ParseSpecialAction("the task is complete"))
}
