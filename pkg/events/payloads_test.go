package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// Dashboard clients key on these field names; renaming any of them is a
// breaking protocol change.

func marshalToMap(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestSessionStatusPayload_WireFormat(t *testing.T) {
	m := marshalToMap(t, SessionStatusPayload{
		Type:        EventTypeSessionStatus,
		SessionID:   "sess-1",
		Phase:       models.PhaseDesigning,
		DesignPhase: models.DesignStylesheet,
		Iteration:   2,
		TokensUsed:  500,
		Timestamp:   "2026-01-02T15:04:05.999Z",
	})

	assert.Equal(t, "session.status", m["type"])
	assert.Equal(t, "sess-1", m["session_id"])
	assert.Equal(t, "designing", m["phase"])
	assert.Equal(t, "stylesheet", m["design_phase"])
	assert.Equal(t, float64(2), m["iteration"])
	assert.Equal(t, float64(500), m["tokens_used"])
	assert.Equal(t, "2026-01-02T15:04:05.999Z", m["timestamp"])
}

func TestAgentStatusPayload_WireFormat(t *testing.T) {
	m := marshalToMap(t, AgentStatusPayload{
		Type:        EventTypeAgentStatus,
		SessionID:   "sess-1",
		Agent:       "ui_designer",
		ExecutionID: "exec-7",
		Status:      AgentStatusBlocked,
		DurationMs:  250,
		TokensUsed:  321,
		Detail:      "Output blocked by guardrail",
	})

	assert.Equal(t, "agent.status", m["type"])
	assert.Equal(t, "ui_designer", m["agent"])
	assert.Equal(t, "exec-7", m["execution_id"])
	assert.Equal(t, "blocked", m["status"])
	assert.Equal(t, float64(250), m["duration_ms"])
	assert.Equal(t, "Output blocked by guardrail", m["detail"])
}

func TestAgentStatusPayload_OmitsEmptyOptionals(t *testing.T) {
	m := marshalToMap(t, AgentStatusPayload{
		Type:      EventTypeAgentStatus,
		SessionID: "sess-1",
		Agent:     "analyst",
		Status:    AgentStatusStarted,
	})

	assert.NotContains(t, m, "execution_id")
	assert.NotContains(t, m, "duration_ms")
	assert.NotContains(t, m, "tokens_used")
	assert.NotContains(t, m, "detail")
}

func TestApprovalRequiredPayload_WireFormat(t *testing.T) {
	m := marshalToMap(t, ApprovalRequiredPayload{
		Type:      EventTypeApprovalRequired,
		SessionID: "sess-1",
		Approval: &models.ApprovalRequest{
			Type:           models.ApprovalDesignReview,
			Description:    "Review the proposed screens",
			IterationCount: 1,
			MaxIterations:  3,
		},
	})

	assert.Equal(t, "approval.required", m["type"])
	approval, ok := m["approval"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "design_review", approval["type"])
	assert.Equal(t, float64(3), approval["max_iterations"])
}

func TestSessionProgressPayload_WireFormat(t *testing.T) {
	m := marshalToMap(t, SessionProgressPayload{
		Type:      EventTypeSessionProgress,
		SessionID: "sess-1",
		Phase:     models.PhaseTesting,
		Iteration: 6,
		Message:   "Dispatching tester",
	})

	assert.Equal(t, "session.progress", m["type"])
	assert.Equal(t, "testing", m["phase"])
	assert.Equal(t, "Dispatching tester", m["message"])
}
