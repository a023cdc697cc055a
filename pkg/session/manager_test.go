package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

func testAuth(sessionID string) models.AuthContext {
	return models.AuthContext{
		TenantID:  "tenant-a",
		UserID:    "user-1",
		SessionID: sessionID,
	}
}

func newTestManager(t *testing.T) (*Manager, *clocktesting.FakeClock) {
	t.Helper()
	clk := clocktesting.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewManager(clk), clk
}

func TestManagerCreateAndGet(t *testing.T) {
	mgr, clk := newTestManager(t)

	sess, err := mgr.Create("proj-1", "build a landing page", testAuth("sess-1"), config.OrchestratorConfig{MaxIterations: 20})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, models.PhaseAnalyzing, sess.Phase())
	assert.Equal(t, models.DesignResearch, sess.StateSnapshot().DesignPhase)
	assert.Equal(t, clk.Now(), sess.Snapshot().StartedAt)

	got, err := mgr.Get("sess-1")
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = mgr.Get("sess-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerCreateRejectsDuplicateID(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Create("proj-1", "first", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)

	_, err = mgr.Create("proj-1", "second", testAuth("sess-1"), config.OrchestratorConfig{})
	assert.ErrorIs(t, err, ErrExists)
}

func TestManagerCreateValidatesAuth(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Create("proj-1", "input", models.AuthContext{UserID: "u", SessionID: "s"}, config.OrchestratorConfig{})
	assert.Error(t, err)
}

func TestManagerTenantIsolation(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Create("proj-1", "input", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)

	// Cross-tenant lookup must not reveal existence.
	_, err = mgr.GetForTenant("sess-1", "tenant-b")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := mgr.GetForTenant("sess-1", "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)

	other := testAuth("sess-2")
	other.TenantID = "tenant-b"
	_, err = mgr.Create("proj-2", "input", other, config.OrchestratorConfig{})
	require.NoError(t, err)

	listed := mgr.List("tenant-a")
	require.Len(t, listed, 1)
	assert.Equal(t, "sess-1", listed[0].ID)
}

func TestManagerListOrdersNewestFirst(t *testing.T) {
	mgr, clk := newTestManager(t)

	_, err := mgr.Create("proj-1", "first", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)
	clk.Step(time.Minute)
	_, err = mgr.Create("proj-1", "second", testAuth("sess-2"), config.OrchestratorConfig{})
	require.NoError(t, err)

	listed := mgr.List("tenant-a")
	require.Len(t, listed, 2)
	assert.Equal(t, "sess-2", listed[0].ID)
	assert.Equal(t, "sess-1", listed[1].ID)
}

func TestManagerCancel(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.Create("proj-1", "input", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)

	// No cancel function registered yet.
	assert.False(t, mgr.Cancel("sess-1"))

	ctx, cancel := context.WithCancel(context.Background())
	sess.SetCancel(cancel)

	assert.True(t, mgr.Cancel("sess-1"))
	assert.Error(t, ctx.Err())
	assert.Equal(t, models.PhaseFailed, sess.Phase())

	// Second cancel is a no-op.
	assert.False(t, mgr.Cancel("sess-1"))
	assert.False(t, mgr.Cancel("sess-unknown"))
}

func TestManagerDeleteCancelsAndRemoves(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.Create("proj-1", "input", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sess.SetCancel(cancel)

	mgr.Delete("sess-1")
	assert.Error(t, ctx.Err())
	_, err = mgr.Get("sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, mgr.Count())
}

func TestSessionSnapshotIsDeepCopy(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.Create("proj-1", "input", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)

	sess.AppendOutput(models.AgentOutput{AgentID: models.AgentAnalyst, Success: true})
	sess.RecordStylePackages([]models.StylePackage{{ID: "style-modern", Name: "Modern"}})

	snap := sess.Snapshot()
	snap.Outputs[0].AgentID = models.AgentReviewer
	snap.State.StylePackages[0].ID = "mutated"
	snap.State.CompletedAgents = append(snap.State.CompletedAgents, models.AgentTester)

	fresh := sess.Snapshot()
	assert.Equal(t, models.AgentAnalyst, fresh.Outputs[0].AgentID)
	assert.Equal(t, "style-modern", fresh.State.StylePackages[0].ID)
	assert.Empty(t, fresh.State.CompletedAgents)
}

func TestSessionTokenAccounting(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.Create("proj-1", "input", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)

	assert.Equal(t, 100, sess.AddTokens(100))
	assert.Equal(t, 250, sess.AddTokens(150))
	assert.Equal(t, 250, sess.Tokens())
}

func TestSessionFailureCountResetsOnSuccess(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.Create("proj-1", "input", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)

	assert.Equal(t, 1, sess.RecordFailure("boom"))
	assert.Equal(t, 2, sess.RecordFailure("boom again"))
	assert.Equal(t, "boom again", sess.LastFailure())

	sess.MarkCompleted(models.AgentAnalyst)
	assert.Zero(t, sess.StateSnapshot().FailureCount)
	assert.True(t, sess.Completed(models.AgentAnalyst))

	// Deduplicated.
	sess.MarkCompleted(models.AgentAnalyst)
	assert.Len(t, sess.StateSnapshot().CompletedAgents, 1)
}

func TestSessionDesignPhaseProgression(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.Create("proj-1", "input", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)
	assert.Equal(t, models.DesignResearch, sess.StateSnapshot().DesignPhase)

	sess.RecordStylePackages([]models.StylePackage{{ID: "style-a"}, {ID: "style-b"}})
	assert.Equal(t, models.DesignStylesheet, sess.StateSnapshot().DesignPhase)

	// Rejection stays in the same sub-phase and counts an iteration.
	assert.Equal(t, 1, sess.RejectStyle("style-a"))
	state := sess.StateSnapshot()
	assert.Equal(t, models.DesignStylesheet, state.DesignPhase)
	assert.Equal(t, []string{"style-a"}, state.RejectedStyles)

	sess.ApproveStylesheet("style-b")
	state = sess.StateSnapshot()
	assert.True(t, state.StylesheetApproved)
	assert.Equal(t, "style-b", state.SelectedStyleID)
	assert.Equal(t, models.DesignScreens, state.DesignPhase)

	sess.ApproveScreens()
	state = sess.StateSnapshot()
	assert.True(t, state.ScreensApproved)
	assert.Equal(t, models.DesignComplete, state.DesignPhase)
}

func TestSessionApprovalLifecycle(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.Create("proj-1", "input", testAuth("sess-1"), config.OrchestratorConfig{})
	require.NoError(t, err)

	req := &models.ApprovalRequest{
		Type:        models.ApprovalStyleSelection,
		Description: "Pick a style",
		Options:     []string{"style-a", "style-b"},
	}
	sess.Suspend(req)
	assert.Equal(t, models.PhasePaused, sess.Phase())
	require.NotNil(t, sess.PendingApproval())
	assert.Equal(t, models.ApprovalStyleSelection, sess.PendingApproval().Type)

	sess.SetApprovalResponse(models.ApprovalResponse{Approved: true, SelectedOption: "style-a"})
	assert.Nil(t, sess.PendingApproval())

	resp := sess.TakeApprovalResponse()
	require.NotNil(t, resp)
	assert.True(t, resp.Approved)
	assert.Equal(t, "style-a", resp.SelectedOption)

	// Consumed exactly once.
	assert.Nil(t, sess.TakeApprovalResponse())
}
