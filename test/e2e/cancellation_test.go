package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// TestCancelActiveRun cancels a session while an agent call is in flight.
// The blocked completion aborts with the run context and the session lands
// in failed with the cancellation recorded.
func TestCancelActiveRun(t *testing.T) {
	blocked := make(chan struct{}, 1)

	p := NewScriptedProvider()
	p.AddRouted(RouteClassify, classification(t, false))
	p.AddRouted(RouteDecision, dispatchDecision(t, "analyst"))
	p.AddRouted("analyst", ScriptEntry{BlockUntilCancelled: true, OnBlock: blocked})

	app := NewTestApp(t, WithProvider(p))

	resultCh := app.startAsync(map[string]any{
		"input": "Generate a migration plan for the inventory service",
	})

	select {
	case <-blocked:
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for the analyst call to start")
	}

	list := app.ListOrchestrations(t)
	require.Equal(t, 1, list.Count)
	sessionID := list.Sessions[0].SessionID
	require.NotEqual(t, models.PhaseComplete, list.Sessions[0].Phase)
	require.NotEqual(t, models.PhaseFailed, list.Sessions[0].Phase)

	cancel := app.CancelSession(t, sessionID)
	require.Equal(t, "Session cancellation requested", cancel.Message)

	var res asyncResult
	select {
	case res = <-resultCh:
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for the cancelled run to return")
	}
	require.NoError(t, res.err)
	require.Equal(t, models.PhaseFailed, res.result.Phase)
	require.Equal(t, "session cancelled", res.result.LastError)

	state := app.GetState(t, sessionID)
	require.Equal(t, models.PhaseFailed, state.State.Phase)
	require.Empty(t, state.State.CompletedAgents)

	// A second cancel hits a terminal session and is rejected.
	app.doJSON(t, http.MethodDelete, "/api/v1/orchestrations/"+sessionID,
		nil, http.StatusConflict, nil)
}
