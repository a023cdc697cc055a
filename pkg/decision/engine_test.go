package decision

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	content string
	usage   llm.TokenUsage
	err     error
}

func (f *fakeProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content, Usage: f.usage}, nil
}

func testAuth() models.AuthContext {
	return models.AuthContext{TenantID: "tenant-a", UserID: "user-1", SessionID: "sess-1"}
}

func TestDecideParsesProviderAnswer(t *testing.T) {
	provider := &fakeProvider{
		content: `{"reasoning": "start with research", "action": "dispatch", "targets": [{"agentId": "analyst"}]}`,
		usage:   llm.TokenUsage{InputTokens: 90, OutputTokens: 30},
	}
	engine := NewEngine(provider, "", testLogger())

	d, err := engine.Decide(context.Background(), ThinkingContext{UserInput: "build something"}, testAuth())
	require.NoError(t, err)
	assert.Equal(t, models.ActionDispatch, d.Action)
	require.Len(t, d.Targets, 1)
	assert.Equal(t, models.AgentAnalyst, d.Targets[0].AgentID)
	assert.Equal(t, 120, d.TokensUsed)
}

func TestDecidePropagatesProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("transport down")}
	engine := NewEngine(provider, "", testLogger())

	_, err := engine.Decide(context.Background(), ThinkingContext{}, testAuth())
	assert.Error(t, err)
}

func TestDecideFallsBackOnGarbage(t *testing.T) {
	provider := &fakeProvider{content: "I am not JSON at all"}
	engine := NewEngine(provider, "", testLogger())

	tc := ThinkingContext{
		Classification:  models.TaskClassification{RequiresDesign: false},
		CompletedAgents: []models.AgentType{models.AgentAnalyst},
	}
	d, err := engine.Decide(context.Background(), tc, testAuth())
	require.NoError(t, err)
	assert.Equal(t, models.ActionDispatch, d.Action)
	require.Len(t, d.Targets, 1)
	assert.Equal(t, models.AgentArchitect, d.Targets[0].AgentID)
	// Estimated cost still charged.
	assert.Positive(t, d.TokensUsed)
}

func TestFallbackLadders(t *testing.T) {
	engine := NewEngine(&fakeProvider{}, "", testLogger())

	tests := []struct {
		name      string
		tc        ThinkingContext
		want      models.AgentType
		completes bool
	}{
		{
			name: "design flow starts with analyst",
			tc:   ThinkingContext{Classification: models.TaskClassification{RequiresDesign: true}},
			want: models.AgentAnalyst,
		},
		{
			name: "design flow reaches ui_designer",
			tc: ThinkingContext{
				Classification:  models.TaskClassification{RequiresDesign: true},
				CompletedAgents: []models.AgentType{models.AgentAnalyst, models.AgentArchitect},
			},
			want: models.AgentUIDesigner,
		},
		{
			name: "non-design flow ends with reviewer",
			tc: ThinkingContext{
				CompletedAgents: []models.AgentType{models.AgentAnalyst, models.AgentArchitect},
			},
			want: models.AgentReviewer,
		},
		{
			name: "all done completes",
			tc: ThinkingContext{
				CompletedAgents: []models.AgentType{models.AgentAnalyst, models.AgentArchitect, models.AgentReviewer},
			},
			completes: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Fallback(tt.tc)
			if tt.completes {
				assert.Equal(t, models.ActionComplete, d.Action)
				return
			}
			assert.Equal(t, models.ActionDispatch, d.Action)
			require.Len(t, d.Targets, 1)
			assert.Equal(t, tt.want, d.Targets[0].AgentID)
		})
	}
}

func TestEnforceGatesUIDesignerWithoutPackages(t *testing.T) {
	var buf bytes.Buffer
	engine := NewEngine(&fakeProvider{}, "", slog.New(slog.NewTextHandler(&buf, nil)))

	proposed := &models.Decision{
		Action:     models.ActionDispatch,
		Targets:    []models.Target{{AgentID: models.AgentUIDesigner}},
		TokensUsed: 77,
	}
	tc := ThinkingContext{
		DesignPhase:        models.DesignScreens,
		StylesheetApproved: false,
	}

	corrected := engine.EnforceGates(proposed, tc)
	assert.Equal(t, models.ActionDispatch, corrected.Action)
	require.Len(t, corrected.Targets, 1)
	assert.Equal(t, models.AgentAnalyst, corrected.Targets[0].AgentID)
	assert.Equal(t, 77, corrected.TokensUsed)
	assert.Contains(t, buf.String(), "Phase gate enforcement")
}

func TestEnforceGatesScreensRequireStyleApproval(t *testing.T) {
	engine := NewEngine(&fakeProvider{}, "", testLogger())

	proposed := &models.Decision{
		Action:  models.ActionDispatch,
		Targets: []models.Target{{AgentID: models.AgentUIDesigner}},
	}
	tc := ThinkingContext{
		StylePackages: []models.StylePackage{
			{ID: "style-id-1"}, {ID: "style-id-2"}, {ID: "style-id-3"},
		},
		StyleIteration: 1,
	}

	corrected := engine.EnforceGates(proposed, tc)
	assert.Equal(t, models.ActionApproval, corrected.Action)
	require.NotNil(t, corrected.ApprovalConfig)
	assert.Equal(t, models.ApprovalStyleSelection, corrected.ApprovalConfig.Type)
	assert.Equal(t, []string{"style-id-1", "style-id-2", "style-id-3"}, corrected.ApprovalConfig.Options)
	assert.Equal(t, 5, corrected.ApprovalConfig.MaxIterations)
}

func TestEnforceGatesCompetitionDispatchAllowed(t *testing.T) {
	engine := NewEngine(&fakeProvider{}, "", testLogger())

	proposed := &models.Decision{
		Action: models.ActionParallelDispatch,
		Targets: []models.Target{
			{AgentID: models.AgentUIDesigner, StyleHint: "style-id-1"},
			{AgentID: models.AgentUIDesigner, StyleHint: "style-id-2"},
		},
	}
	tc := ThinkingContext{
		StylePackages: []models.StylePackage{{ID: "style-id-1"}, {ID: "style-id-2"}},
	}

	assert.Same(t, proposed, engine.EnforceGates(proposed, tc))
}

func TestEnforceGatesApprovedScreensDispatchAllowed(t *testing.T) {
	engine := NewEngine(&fakeProvider{}, "", testLogger())

	proposed := &models.Decision{
		Action:  models.ActionDispatch,
		Targets: []models.Target{{AgentID: models.AgentUIDesigner}},
	}
	tc := ThinkingContext{
		StylePackages:      []models.StylePackage{{ID: "style-id-1"}},
		StylesheetApproved: true,
		SelectedStyleID:    "style-id-1",
	}

	assert.Same(t, proposed, engine.EnforceGates(proposed, tc))
}

func TestEnforceGatesProjectManagerNeedsScreenApproval(t *testing.T) {
	engine := NewEngine(&fakeProvider{}, "", testLogger())

	proposed := &models.Decision{
		Action:  models.ActionDispatch,
		Targets: []models.Target{{AgentID: models.AgentProjectManager}},
	}

	corrected := engine.EnforceGates(proposed, ThinkingContext{StylesheetApproved: true})
	assert.Equal(t, models.ActionApproval, corrected.Action)
	require.NotNil(t, corrected.ApprovalConfig)
	assert.Equal(t, models.ApprovalDesignReview, corrected.ApprovalConfig.Type)
	assert.Equal(t, 3, corrected.ApprovalConfig.MaxIterations)

	allowed := engine.EnforceGates(proposed, ThinkingContext{ScreensApproved: true})
	assert.Same(t, proposed, allowed)
}

func TestEnforceGatesIgnoresNonDispatchActions(t *testing.T) {
	engine := NewEngine(&fakeProvider{}, "", testLogger())

	complete := &models.Decision{Action: models.ActionComplete}
	assert.Same(t, complete, engine.EnforceGates(complete, ThinkingContext{}))

	approval := &models.Decision{
		Action:         models.ActionApproval,
		ApprovalConfig: &models.ApprovalConfig{Type: models.ApprovalStyleSelection},
	}
	assert.Same(t, approval, engine.EnforceGates(approval, ThinkingContext{}))
}
