package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/api"
	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/orchestrator"
)

// ────────────────────────────────────────────────────────────
// HTTP client helpers
// ────────────────────────────────────────────────────────────

// StartOrchestration posts an orchestration request and returns the kernel
// result. Blocks until the run finishes or suspends, like a real client.
func (app *TestApp) StartOrchestration(t *testing.T, body map[string]any) *orchestrator.Result {
	t.Helper()
	var result orchestrator.Result
	app.doJSON(t, http.MethodPost, "/api/v1/orchestrations", body, http.StatusOK, &result)
	return &result
}

// Resume posts an approval response for a paused session.
func (app *TestApp) Resume(t *testing.T, sessionID string, resp models.ApprovalResponse) *orchestrator.Result {
	t.Helper()
	var result orchestrator.Result
	app.doJSON(t, http.MethodPost, "/api/v1/orchestrations/"+sessionID+"/resume", resp, http.StatusOK, &result)
	return &result
}

// GetState fetches the session state snapshot.
func (app *TestApp) GetState(t *testing.T, sessionID string) *api.StateResponse {
	t.Helper()
	var state api.StateResponse
	app.doJSON(t, http.MethodGet, "/api/v1/orchestrations/"+sessionID+"/state", nil, http.StatusOK, &state)
	return &state
}

// GetTokens fetches the session token usage.
func (app *TestApp) GetTokens(t *testing.T, sessionID string) *api.TokensResponse {
	t.Helper()
	var tokens api.TokensResponse
	app.doJSON(t, http.MethodGet, "/api/v1/orchestrations/"+sessionID+"/tokens", nil, http.StatusOK, &tokens)
	return &tokens
}

// ListOrchestrations lists the test tenant's sessions.
func (app *TestApp) ListOrchestrations(t *testing.T) *api.OrchestrationListResponse {
	t.Helper()
	var list api.OrchestrationListResponse
	app.doJSON(t, http.MethodGet, "/api/v1/orchestrations", nil, http.StatusOK, &list)
	return &list
}

// CancelSession requests cancellation of a session.
func (app *TestApp) CancelSession(t *testing.T, sessionID string) *api.CancelResponse {
	t.Helper()
	var resp api.CancelResponse
	app.doJSON(t, http.MethodDelete, "/api/v1/orchestrations/"+sessionID, nil, http.StatusOK, &resp)
	return &resp
}

// GetMetrics fetches the Prometheus exposition text.
func (app *TestApp) GetMetrics(t *testing.T) string {
	t.Helper()
	resp, err := http.Get(app.BaseURL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

// doJSON performs a request as the test tenant, asserts the status, and
// decodes the response body into out when non-nil.
func (app *TestApp) doJSON(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	app.doJSONAs(t, TestTenant, method, path, body, wantStatus, out)
}

// doJSONAs is doJSON with an explicit tenant header. An empty tenant sends no
// identity at all.
func (app *TestApp) doJSONAs(t *testing.T, tenant, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "%s %s: unexpected status, body: %s", method, path, data)
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out), "%s %s: decoding body %s", method, path, data)
	}
}

// asyncResult carries one background orchestration outcome.
type asyncResult struct {
	result *orchestrator.Result
	err    error
}

// startAsync posts an orchestration from a background goroutine. Failures
// surface on the returned channel so the test goroutine owns all assertions.
func (app *TestApp) startAsync(body map[string]any) <-chan asyncResult {
	ch := make(chan asyncResult, 1)
	go func() {
		data, err := json.Marshal(body)
		if err != nil {
			ch <- asyncResult{err: err}
			return
		}
		req, err := http.NewRequestWithContext(context.Background(),
			http.MethodPost, app.BaseURL+"/api/v1/orchestrations", bytes.NewReader(data))
		if err != nil {
			ch <- asyncResult{err: err}
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", TestTenant)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			ch <- asyncResult{err: err}
			return
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			ch <- asyncResult{err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
			return
		}
		var result orchestrator.Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			ch <- asyncResult{err: err}
			return
		}
		ch <- asyncResult{result: &result}
	}()
	return ch
}

// ────────────────────────────────────────────────────────────
// Script builders
// ────────────────────────────────────────────────────────────

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// classification builds a classify-route entry.
func classification(t *testing.T, requiresDesign bool) ScriptEntry {
	t.Helper()
	return ScriptEntry{Content: mustJSON(t, map[string]any{
		"task_type":       "feature",
		"requires_design": requiresDesign,
		"complexity":      "medium",
		"summary":         "scripted classification",
	})}
}

// decisionEntry builds a decision-route entry from raw decision fields.
func decisionEntry(t *testing.T, fields map[string]any) ScriptEntry {
	t.Helper()
	if _, ok := fields["reasoning"]; !ok {
		fields["reasoning"] = "scripted decision"
	}
	return ScriptEntry{Content: mustJSON(t, fields)}
}

// dispatchDecision dispatches the given agents; more than one agent becomes
// a parallel dispatch.
func dispatchDecision(t *testing.T, agents ...string) ScriptEntry {
	t.Helper()
	targets := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		targets = append(targets, map[string]any{"agentId": a})
	}
	action := "dispatch"
	if len(agents) > 1 {
		action = "parallel_dispatch"
	}
	return decisionEntry(t, map[string]any{"action": action, "targets": targets})
}

// styledTarget pairs an agent with the style package it must explore.
type styledTarget struct {
	Agent string
	Hint  string
}

// competitionDecision builds a parallel dispatch whose targets carry style
// hints.
func competitionDecision(t *testing.T, targets ...styledTarget) ScriptEntry {
	t.Helper()
	ts := make([]map[string]any, 0, len(targets))
	for _, st := range targets {
		ts = append(ts, map[string]any{"agentId": st.Agent, "styleHint": st.Hint})
	}
	return decisionEntry(t, map[string]any{"action": "parallel_dispatch", "targets": ts})
}

// approvalDecision suspends the run on a human checkpoint.
func approvalDecision(t *testing.T, approvalType, description string, options []string) ScriptEntry {
	t.Helper()
	cfg := map[string]any{"type": approvalType, "description": description}
	if len(options) > 0 {
		cfg["options"] = options
	}
	return decisionEntry(t, map[string]any{"action": "approval", "approvalConfig": cfg})
}

// completeDecision ends the run.
func completeDecision(t *testing.T, summary string) ScriptEntry {
	t.Helper()
	return decisionEntry(t, map[string]any{"action": "complete", "summary": summary})
}

// envelopeOpts shapes one scripted worker answer. Nil fields get minimal
// defaults; Hints defaults to isComplete=true so happy paths synthesize to
// full completion.
type envelopeOpts struct {
	Result    map[string]any
	Artifacts []map[string]any
	Hints     map[string]any
	Usage     llm.TokenUsage
}

// agentEnvelope builds a worker output envelope entry.
func agentEnvelope(t *testing.T, opts envelopeOpts) ScriptEntry {
	t.Helper()
	result := opts.Result
	if result == nil {
		result = map[string]any{"notes": "scripted output"}
	}
	hints := opts.Hints
	if hints == nil {
		hints = map[string]any{"isComplete": true}
	}
	body := map[string]any{"result": result, "routingHints": hints}
	if len(opts.Artifacts) > 0 {
		body["artifacts"] = opts.Artifacts
	}
	return ScriptEntry{Content: mustJSON(t, body), Usage: opts.Usage}
}

// completedEnvelope is the minimal successful worker answer.
func completedEnvelope(t *testing.T) ScriptEntry {
	t.Helper()
	return agentEnvelope(t, envelopeOpts{})
}

// artifact builds one artifact object for an envelope.
func artifact(path, content string) map[string]any {
	return map[string]any{"path": path, "type": "file", "content": content}
}
