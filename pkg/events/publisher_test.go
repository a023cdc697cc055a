package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

func newTestPublisher() (*Publisher, *Bus, *collectSink) {
	bus := NewBus(testLogger())
	sink := &collectSink{}
	bus.AddSink(sink.fn)
	return NewPublisher(bus), bus, sink
}

func TestPublisher_SessionStatusDualPublish(t *testing.T) {
	pub, bus, sink := newTestPublisher()

	err := pub.PublishSessionStatus("sess-1", SessionStatusPayload{
		SessionID:   "sess-1",
		Phase:       models.PhaseBuilding,
		DesignPhase: models.DesignComplete,
		Iteration:   4,
		TokensUsed:  1234,
	})
	require.NoError(t, err)

	got := sink.all()
	require.Len(t, got, 2)

	// Recorded copy on the session channel carries a seq.
	assert.Equal(t, "session:sess-1", got[0].channel)
	assert.Equal(t, EventTypeSessionStatus, got[0].payload["type"])
	assert.Equal(t, "building", got[0].payload["phase"])
	assert.Contains(t, got[0].payload, "seq")

	// Transient mirror on the global channel does not.
	assert.Equal(t, GlobalSessionsChannel, got[1].channel)
	assert.Equal(t, EventTypeSessionStatus, got[1].payload["type"])
	assert.NotContains(t, got[1].payload, "seq")

	// Only the session channel records history.
	assert.Equal(t, 1, bus.ChannelDepth("session:sess-1"))
	assert.Equal(t, 0, bus.ChannelDepth(GlobalSessionsChannel))
}

func TestPublisher_ForcesPayloadType(t *testing.T) {
	pub, _, sink := newTestPublisher()

	// A caller-supplied wrong type is overwritten.
	err := pub.PublishAgentStatus("sess-1", AgentStatusPayload{
		Type:      "bogus",
		SessionID: "sess-1",
		Agent:     "reviewer",
		Status:    AgentStatusFailed,
		Detail:    "completion failed",
	})
	require.NoError(t, err)

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, EventTypeAgentStatus, got[0].payload["type"])
	assert.Equal(t, "reviewer", got[0].payload["agent"])
	assert.Equal(t, AgentStatusFailed, got[0].payload["status"])
}

func TestPublisher_ApprovalRequired(t *testing.T) {
	pub, bus, sink := newTestPublisher()

	err := pub.PublishApprovalRequired("sess-2", ApprovalRequiredPayload{
		SessionID: "sess-2",
		Approval: &models.ApprovalRequest{
			Type:          models.ApprovalStyleSelection,
			Description:   "Choose a style package",
			Options:       []string{"style-a", "style-b"},
			MaxIterations: 5,
		},
	})
	require.NoError(t, err)

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, "session:sess-2", got[0].channel)
	assert.Equal(t, EventTypeApprovalRequired, got[0].payload["type"])

	approval, ok := got[0].payload["approval"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "style_selection", approval["type"])
	assert.Equal(t, []any{"style-a", "style-b"}, approval["options"])

	assert.Equal(t, 1, bus.ChannelDepth("session:sess-2"))
}

func TestPublisher_SessionProgressIsTransient(t *testing.T) {
	pub, bus, sink := newTestPublisher()

	err := pub.PublishSessionProgress(SessionProgressPayload{
		SessionID: "sess-3",
		Phase:     models.PhaseAnalyzing,
		Iteration: 1,
		Message:   "Dispatching analyst",
	})
	require.NoError(t, err)

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, GlobalSessionsChannel, got[0].channel)
	assert.Equal(t, EventTypeSessionProgress, got[0].payload["type"])
	assert.Equal(t, 0, bus.ChannelDepth(GlobalSessionsChannel))
}
