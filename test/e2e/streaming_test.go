package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// TestWebSocketStreaming watches a run from two angles: a live monitor on
// the global sessions channel, and a late subscriber to the session channel
// that relies entirely on catch-up replay.
func TestWebSocketStreaming(t *testing.T) {
	p := NewScriptedProvider()
	p.AddRouted(RouteClassify, classification(t, false))
	p.AddRouted(RouteDecision, dispatchDecision(t, "analyst"))
	p.AddRouted(RouteDecision, completeDecision(t, "analysis done"))
	p.AddRouted("analyst", completedEnvelope(t))

	app := NewTestApp(t, WithProvider(p))

	monitor := app.WSConnect(t)
	monitor.Subscribe(t, "sessions")

	result := app.StartOrchestration(t, map[string]any{
		"input": "Summarise the flaky checkout test failures",
	})
	require.Equal(t, models.PhaseComplete, result.Phase)

	// The monitor saw the mirrored status stream end in complete.
	_, err := monitor.WaitForEvent(func(e WSEvent) bool {
		return e.Type == "session.status" &&
			e.Parsed["session_id"] == result.SessionID &&
			e.Parsed["phase"] == "complete"
	}, 5*time.Second)
	require.NoError(t, err)

	// Iteration heartbeats are transient and global only.
	progress := monitor.EventsByType("session.progress")
	require.NotEmpty(t, progress)
	require.Equal(t, result.SessionID, progress[0].Parsed["session_id"])

	// A late subscriber gets the session's recorded history replayed.
	late := app.WSConnect(t)
	late.Subscribe(t, "session:"+result.SessionID)

	started, err := late.WaitForEvent(func(e WSEvent) bool {
		return e.Type == "agent.status" &&
			e.Parsed["agent"] == "analyst" &&
			e.Parsed["status"] == "started"
	}, 5*time.Second)
	require.NoError(t, err)

	completed, err := late.WaitForEvent(func(e WSEvent) bool {
		return e.Type == "agent.status" &&
			e.Parsed["agent"] == "analyst" &&
			e.Parsed["status"] == "completed"
	}, 5*time.Second)
	require.NoError(t, err)

	// Replayed events carry their record sequence in order.
	startedSeq, ok := started.Parsed["seq"].(float64)
	require.True(t, ok, "replayed event missing seq: %s", started.Raw)
	completedSeq, ok := completed.Parsed["seq"].(float64)
	require.True(t, ok, "replayed event missing seq: %s", completed.Raw)
	require.Less(t, startedSeq, completedSeq)

	statuses := late.EventsByType("session.status")
	require.NotEmpty(t, statuses)

	// Progress heartbeats are not recorded, so replay never includes them.
	require.Empty(t, late.EventsByType("session.progress"))
}
