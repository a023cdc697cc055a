package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/retrieval"
	"github.com/dpmorgan-gotribe/agentflow/pkg/session"
)

// previousOutputsTail bounds how many prior outputs ride along on each
// dispatch as inter-agent context.
const previousOutputsTail = 5

// indexedOutput pairs an agent output with its original target index so a
// parallel batch can be reassembled in decision order.
type indexedOutput struct {
	index int
	out   *models.AgentOutput
}

// dispatch fans the decision's targets out to workers, one goroutine per
// target, and assembles the outputs in target order regardless of completion
// order. A single-target dispatch takes the same path with a batch of one.
// Every target yields exactly one output envelope; workers that cannot run
// yield a failure envelope so the batch is never short.
func (k *Kernel) dispatch(ctx context.Context, sess *session.Session, d *models.Decision) []*models.AgentOutput {
	targets := d.Targets
	if len(targets) == 0 {
		return nil
	}

	// 1. Launch one goroutine per target
	results := make(chan indexedOutput, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(idx int, target models.Target) {
			defer wg.Done()
			results <- indexedOutput{index: idx, out: k.executeTarget(ctx, sess, target)}
		}(i, t)
	}

	// 2. Wait for the whole batch; a straggler never leaks into the next
	// iteration
	wg.Wait()
	close(results)

	// 3. Reassemble in target order
	batch := make([]*models.AgentOutput, len(targets))
	for res := range results {
		batch[res.index] = res.out
	}
	return batch
}

// executeTarget runs one agent under its own timeout. Worker errors are
// invariant violations and come back as failure envelopes like any other
// failed execution.
func (k *Kernel) executeTarget(ctx context.Context, sess *session.Session, t models.Target) *models.AgentOutput {
	worker, ok := k.workers[t.AgentID]
	if !ok {
		return k.failureOutput(t, k.newID(), "unknown_agent",
			fmt.Sprintf("no worker registered for agent %q", string(t.AgentID)))
	}

	req := k.buildRequest(ctx, sess, t)
	k.publishAgentStarted(sess, t.AgentID, req.ExecutionID)

	timeoutMs := sess.Config.AgentTimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = config.DefaultAgentTimeoutMs
	}
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	out, err := worker.Execute(execCtx, req)
	if err != nil || out == nil {
		msg := "agent returned no output"
		if err != nil {
			msg = err.Error()
		}
		return k.failureOutput(t, req.ExecutionID, "execution_failed", msg)
	}
	return out
}

// buildRequest assembles the work unit for one target: the retrieved context
// bundle within the agent's budget row, the tail of prior outputs, and the
// constraints derived from the classification. Retrieval is fail-open; an
// agent runs with whatever context could be gathered.
func (k *Kernel) buildRequest(ctx context.Context, sess *session.Session, t models.Target) *models.AgentRequest {
	snap := sess.Snapshot()

	execID := t.ExecutionID
	if execID == "" {
		execID = k.newID()
	}

	req := &models.AgentRequest{
		ExecutionID:     execID,
		TaskAnalysis:    snap.UserInput,
		PreviousOutputs: outputsTail(snap.Outputs, previousOutputsTail),
		Constraints:     constraintsFor(snap.Classification, k.cfg),
		Auth:            snap.Auth,
		StyleHint:       t.StyleHint,
	}

	include := retrieval.Include{Lessons: true, Code: true, History: true}
	budget := 0
	if row, ok := k.cfg.BudgetFor(string(t.AgentID)); ok {
		include = retrieval.Include{
			Lessons: row.Sources.Lessons,
			Code:    row.Sources.Code,
			History: row.Sources.History,
		}
		budget = row.TotalTokens
	}

	bundle, err := k.retrieval.Retrieve(ctx, retrieval.Request{
		Query:       snap.UserInput,
		TaskID:      snap.ID,
		ProjectID:   snap.ProjectID,
		AgentType:   t.AgentID,
		TenantID:    snap.Auth.TenantID,
		TokenBudget: budget,
		Include:     include,
	})
	if err != nil {
		k.logger.Warn("Context retrieval failed, dispatching without context",
			"session_id", snap.ID,
			"agent", string(t.AgentID),
			"error", err)
	} else {
		req.ContextItems = bundle.Items
	}
	return req
}

// failureOutput builds the envelope for a dispatch that never produced one.
func (k *Kernel) failureOutput(t models.Target, execID, code, msg string) *models.AgentOutput {
	return &models.AgentOutput{
		AgentID:      t.AgentID,
		ExecutionID:  execID,
		Timestamp:    k.clk.Now(),
		Success:      false,
		RoutingHints: models.RoutingHints{HasFailures: true},
		Errors:       []models.AgentError{{Code: code, Message: msg}},
	}
}

// constraintsFor carries classification facts and the sealed tool-server IDs
// into the agent prompt.
func constraintsFor(tc models.TaskClassification, cfg *config.Config) map[string]any {
	constraints := make(map[string]any)
	if tc.TaskType != "" {
		constraints["task_type"] = tc.TaskType
	}
	if tc.ProjectType != "" {
		constraints["project_type"] = tc.ProjectType
	}
	if len(tc.Languages) > 0 {
		constraints["language"] = tc.Languages[0]
	}
	if len(tc.Frameworks) > 0 {
		constraints["framework"] = tc.Frameworks[0]
	}
	if cfg.MCPServerRegistry != nil {
		servers := cfg.MCPServerRegistry.GetAll()
		if len(servers) > 0 {
			ids := make([]string, 0, len(servers))
			for id := range servers {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			constraints["tool_servers"] = strings.Join(ids, ", ")
		}
	}
	if len(constraints) == 0 {
		return nil
	}
	return constraints
}
