package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider returns queued responses or errors in order, then repeats
// the last entry.
type scriptedProvider struct {
	mu      sync.Mutex
	calls   int
	entries []scriptEntry
}

type scriptEntry struct {
	content string
	usage   llm.TokenUsage
	err     error
}

func (p *scriptedProvider) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.entries) {
		idx = len(p.entries) - 1
	}
	p.calls++
	entry := p.entries[idx]
	if entry.err != nil {
		return nil, entry.err
	}
	return &llm.CompletionResponse{Content: entry.content, Usage: entry.usage}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testDeps(provider llm.CompletionProvider) Deps {
	return Deps{
		Provider: provider,
		Config:   config.OrchestratorConfig{MaxRetries: 2},
		Clock:    clocktesting.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Logger:   testLogger(),
		NewID: func() func() string {
			n := 0
			return func() string {
				n++
				return fmt.Sprintf("id-%d", n)
			}
		}(),
	}
}

func testRequest() *models.AgentRequest {
	return &models.AgentRequest{
		ExecutionID:  "exec-1",
		TaskAnalysis: "build a landing page",
		Auth:         models.AuthContext{TenantID: "tenant-a", UserID: "user-1", SessionID: "sess-1"},
	}
}

func newTestWorker(t *testing.T, agentType models.AgentType, provider llm.CompletionProvider) *BaseWorker {
	t.Helper()
	role, ok := RoleFor(agentType)
	require.True(t, ok)
	w := NewBaseWorker(role, testDeps(provider))
	w.retryBackoff = time.Millisecond
	return w
}

func TestExecuteSuccess(t *testing.T) {
	provider := &scriptedProvider{entries: []scriptEntry{{
		content: `{
			"result": {"analysis": "a plan"},
			"artifacts": [{"path": "docs/research.md", "content": "notes"}],
			"routingHints": {"suggestNext": ["architect"], "isComplete": false}
		}`,
		usage: llm.TokenUsage{InputTokens: 200, OutputTokens: 100},
	}}}
	w := newTestWorker(t, models.AgentAnalyst, provider)

	out, err := w.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.AgentAnalyst, out.AgentID)
	assert.Equal(t, "exec-1", out.ExecutionID)
	assert.Equal(t, "a plan", out.Result["analysis"])
	require.Len(t, out.Artifacts, 1)
	assert.Equal(t, "docs/research.md", out.Artifacts[0].Path)
	assert.Equal(t, "id-1", out.Artifacts[0].ID)
	assert.Equal(t, []models.AgentType{models.AgentArchitect}, out.RoutingHints.SuggestNext)
	assert.Equal(t, 300, out.Metrics.TokensUsed)
	assert.Zero(t, out.Metrics.RetryCount)
	assert.Empty(t, out.Errors)
}

func TestExecuteSanitizesArtifactPaths(t *testing.T) {
	provider := &scriptedProvider{entries: []scriptEntry{{
		content: `{
			"result": {},
			"artifacts": [
				{"path": "../etc/passwd", "content": "nope"},
				{"path": "/srv/app/main.go", "content": "code"},
				{"path": "....", "content": "dropped"}
			]
		}`,
	}}}
	w := newTestWorker(t, models.AgentBackendDev, provider)

	out, err := w.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, out.Artifacts, 2)
	assert.Equal(t, "etc/passwd", out.Artifacts[0].Path)
	assert.Equal(t, "srv/app/main.go", out.Artifacts[1].Path)
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	provider := &scriptedProvider{entries: []scriptEntry{
		{err: errors.New("connection reset")},
		{content: `{"result": {"analysis": "ok"}}`},
	}}
	w := newTestWorker(t, models.AgentAnalyst, provider)

	out, err := w.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Metrics.RetryCount)
	assert.Equal(t, 2, provider.callCount())
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	provider := &scriptedProvider{entries: []scriptEntry{
		{err: errors.New("401 unauthorized")},
	}}
	w := newTestWorker(t, models.AgentAnalyst, provider)

	out, err := w.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, 1, provider.callCount())
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "completion_failed", out.Errors[0].Code)
	assert.True(t, out.RoutingHints.HasFailures)
}

func TestExecuteGivesUpAfterMaxRetries(t *testing.T) {
	provider := &scriptedProvider{entries: []scriptEntry{
		{err: errors.New("503 service unavailable")},
	}}
	w := newTestWorker(t, models.AgentAnalyst, provider)

	out, err := w.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, out.Success)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, 3, provider.callCount())
	assert.Equal(t, 2, out.Metrics.RetryCount)
}

func TestExecuteMapsContextErrors(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w := newTestWorker(t, models.AgentAnalyst, &scriptedProvider{entries: []scriptEntry{{content: "{}"}}})

		out, err := w.Execute(ctx, testRequest())
		require.NoError(t, err)
		assert.False(t, out.Success)
		require.Len(t, out.Errors, 1)
		assert.Equal(t, "cancelled", out.Errors[0].Code)
	})

	t.Run("timed out", func(t *testing.T) {
		provider := &scriptedProvider{entries: []scriptEntry{
			{err: fmt.Errorf("completion: %w", context.DeadlineExceeded)},
		}}
		w := newTestWorker(t, models.AgentAnalyst, provider)

		out, err := w.Execute(context.Background(), testRequest())
		require.NoError(t, err)
		assert.False(t, out.Success)
		require.Len(t, out.Errors, 1)
		assert.Equal(t, "timed_out", out.Errors[0].Code)
	})
}

func TestExecuteRejectsMalformedOutput(t *testing.T) {
	provider := &scriptedProvider{entries: []scriptEntry{
		{content: "I refuse to answer in JSON."},
	}}
	w := newTestWorker(t, models.AgentAnalyst, provider)

	out, err := w.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, out.Success)
	// Malformed output is not worth re-asking for.
	assert.Equal(t, 1, provider.callCount())
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "invalid_output", out.Errors[0].Code)
	assert.False(t, out.Errors[0].Retryable)
}

func TestExecuteGeneratesExecutionID(t *testing.T) {
	provider := &scriptedProvider{entries: []scriptEntry{{content: `{"result": {}}`}}}
	w := newTestWorker(t, models.AgentAnalyst, provider)

	req := testRequest()
	req.ExecutionID = ""
	out, err := w.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "id-1", out.ExecutionID)
}

func TestExecuteEstimatesTokensWithoutUsage(t *testing.T) {
	provider := &scriptedProvider{entries: []scriptEntry{{content: `{"result": {}}`}}}
	w := newTestWorker(t, models.AgentAnalyst, provider)

	out, err := w.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Positive(t, out.Metrics.TokensUsed)
}

func TestExecuteFillsDefaultRouting(t *testing.T) {
	provider := &scriptedProvider{entries: []scriptEntry{{content: `{"result": {"analysis": "x"}}`}}}
	w := newTestWorker(t, models.AgentAnalyst, provider)

	out, err := w.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, []models.AgentType{models.AgentArchitect}, out.RoutingHints.SuggestNext)
}

func TestBuildWorkersCoversAllRoles(t *testing.T) {
	workers := BuildWorkers(testDeps(&scriptedProvider{entries: []scriptEntry{{content: "{}"}}}))

	expected := []models.AgentType{
		models.AgentAnalyst, models.AgentArchitect, models.AgentUIDesigner,
		models.AgentProjectManager, models.AgentReviewer,
		models.AgentFrontendDev, models.AgentBackendDev, models.AgentTester,
	}
	require.Len(t, workers, len(expected))
	for _, agentType := range expected {
		w, ok := workers[agentType]
		require.True(t, ok, "missing worker %s", agentType)
		assert.Equal(t, agentType, w.Type())
	}
}

func TestBuildUserMessageSections(t *testing.T) {
	role, _ := RoleFor(models.AgentUIDesigner)
	req := testRequest()
	req.StyleHint = "style-modern"
	req.ContextItems = []models.ContextItem{
		{Type: models.ContextLesson, Content: "prefer system fonts", Relevance: 0.91},
	}
	req.PreviousOutputs = []models.AgentOutput{
		{AgentID: models.AgentAnalyst, Success: true, Artifacts: []models.Artifact{{Path: "docs/research.md"}}},
	}
	req.Constraints = map[string]any{"framework": "react"}

	msg := buildUserMessage(role, req)
	assert.Contains(t, msg, "## Task")
	assert.Contains(t, msg, "build a landing page")
	assert.Contains(t, msg, `style package "style-modern"`)
	assert.Contains(t, msg, "prefer system fonts")
	assert.Contains(t, msg, "docs/research.md")
	assert.Contains(t, msg, "framework: react")
}
