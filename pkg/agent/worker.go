package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/skills"
)

const (
	workerMaxTokens           = 8192
	defaultWorkerRetryBackoff = 200 * time.Millisecond

	// skillBudgetTokens caps the prompt fragment rendered from selected
	// skills. Critical skills are emitted past the cap regardless.
	skillBudgetTokens = 1500
)

// Error codes recorded in AgentError envelopes.
const (
	errCodeCompletion    = "completion_failed"
	errCodeTimedOut      = "timed_out"
	errCodeCancelled     = "cancelled"
	errCodeInvalidOutput = "invalid_output"
)

const outputFormatInstructions = `## Output Format

Respond with a single JSON object and nothing else:

{
  "result": { "...": "role-specific fields" },
  "artifacts": [{"path": "relative/path.ext", "type": "file", "content": "..."}],
  "routingHints": {
    "suggestNext": [], "skipAgents": [],
    "needsApproval": false, "isComplete": false, "notes": ""
  }
}

Artifact paths are project-relative. Never use absolute paths or "..".`

// BaseWorker is the shared agent implementation: it builds the prompt for
// its role, calls the completion provider with bounded retries, and parses
// the answer into the output envelope. Execution failures are recorded in
// the envelope; the returned error is reserved for invariant violations.
type BaseWorker struct {
	role Role
	deps Deps

	// retryBackoff is the initial retry interval. Tests shrink it.
	retryBackoff time.Duration
}

// NewBaseWorker creates a worker for one role.
func NewBaseWorker(role Role, deps Deps) *BaseWorker {
	deps.fill()
	return &BaseWorker{
		role:         role,
		deps:         deps,
		retryBackoff: defaultWorkerRetryBackoff,
	}
}

// Type returns the worker's agent type.
func (w *BaseWorker) Type() models.AgentType {
	return w.role.Type
}

// Execute runs one dispatch: prompt, completion with retry, parse, sanitise.
func (w *BaseWorker) Execute(ctx context.Context, req *models.AgentRequest) (*models.AgentOutput, error) {
	if req == nil {
		return nil, fmt.Errorf("agent %s: nil request", w.role.Type)
	}

	started := w.deps.Clock.Now()
	execID := req.ExecutionID
	if execID == "" {
		execID = w.deps.NewID()
	}
	logger := w.deps.Logger.With(
		"agent", string(w.role.Type),
		"tenant_id", req.Auth.TenantID,
		"session_id", req.Auth.SessionID,
		"execution_id", execID)

	out := &models.AgentOutput{
		AgentID:     w.role.Type,
		ExecutionID: execID,
		Timestamp:   started,
	}

	system := w.buildSystemPrompt(req)
	user := buildUserMessage(w.role, req)

	resp, attempts, err := w.complete(ctx, system, user, logger)
	out.Metrics.RetryCount = attempts - 1
	out.Metrics.DurationMs = int(w.deps.Clock.Since(started).Milliseconds())
	if err != nil {
		return w.failed(out, logger, classifyError(err), err), nil
	}

	out.Metrics.TokensUsed = resp.Usage.Total()
	out.Metrics.InputTokens = resp.Usage.InputTokens
	out.Metrics.OutputTokens = resp.Usage.OutputTokens
	if out.Metrics.TokensUsed == 0 {
		out.Metrics.TokensUsed = models.EstimateTokens(system) + models.EstimateTokens(user) + models.EstimateTokens(resp.Content)
	}

	if err := w.parseResponse(resp.Content, out, logger); err != nil {
		// Malformed output is not retried; re-asking the model costs budget
		// with no evidence it helps.
		return w.failed(out, logger, errCodeInvalidOutput, err), nil
	}

	out.Success = true
	logger.Info("Agent execution completed",
		"duration_ms", out.Metrics.DurationMs,
		"tokens_used", out.Metrics.TokensUsed,
		"artifacts", len(out.Artifacts),
		"retries", out.Metrics.RetryCount)
	return out, nil
}

// complete calls the provider, retrying transient failures up to the
// configured MaxRetries. Returns the attempt count alongside the response.
func (w *BaseWorker) complete(ctx context.Context, system, user string, logger *slog.Logger) (*llm.CompletionResponse, int, error) {
	var (
		resp     *llm.CompletionResponse
		lastErr  error
		attempts int
	)

	operation := func() error {
		attempts++
		r, err := w.deps.Provider.Complete(ctx, llm.CompletionRequest{
			System:    system,
			Messages:  []llm.Message{{Role: llm.RoleUser, Content: user}},
			MaxTokens: workerMaxTokens,
		})
		if err != nil {
			lastErr = err
			if !llm.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			logger.Warn("Agent completion failed, will retry",
				"attempt", attempts,
				"max_retries", w.deps.Config.MaxRetries,
				"error", err)
			return err
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.retryBackoff
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(w.deps.Config.MaxRetries)), ctx))
	if err != nil {
		if lastErr != nil {
			return nil, attempts, lastErr
		}
		return nil, attempts, err
	}
	return resp, attempts, nil
}

// parseResponse fills result, artifacts, and routing hints from LLM text.
func (w *BaseWorker) parseResponse(content string, out *models.AgentOutput, logger *slog.Logger) error {
	envelope, err := ParseEnvelope(content, w.deps.NewID)
	if err != nil {
		return err
	}

	out.Result = envelope.Result
	out.Artifacts = envelope.Artifacts
	out.RoutingHints = envelope.Hints

	if len(out.RoutingHints.SuggestNext) == 0 && len(w.role.DefaultNext) > 0 {
		out.RoutingHints.SuggestNext = append([]models.AgentType(nil), w.role.DefaultNext...)
	}

	for _, key := range w.role.ResultKeys {
		if !hasFoldedKey(out.Result, key) {
			logger.Debug("Agent result missing expected field", "field", key)
		}
	}
	return nil
}

func (w *BaseWorker) buildSystemPrompt(req *models.AgentRequest) string {
	var sb strings.Builder
	sb.WriteString(w.role.Instructions)
	sb.WriteString("\n\n")

	if w.deps.Selector != nil && w.deps.Injector != nil {
		selection := w.deps.Selector.Select(skills.Criteria{
			AgentType: w.role.Type,
			Tags:      w.role.SkillTags,
			Language:  constraintString(req.Constraints, "language"),
			Framework: constraintString(req.Constraints, "framework"),
			MaxTokens: skillBudgetTokens,
		})
		if len(selection.Skills) > 0 {
			injection := w.deps.Injector.Inject(selection.Skills, skills.InjectOptions{
				Format:          skills.FormatMarkdown,
				GroupByCategory: true,
				MaxTokens:       skillBudgetTokens,
			})
			sb.WriteString(injection.Content)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString(outputFormatInstructions)
	return sb.String()
}

func (w *BaseWorker) failed(out *models.AgentOutput, logger *slog.Logger, code string, err error) *models.AgentOutput {
	out.Success = false
	out.Errors = append(out.Errors, models.AgentError{
		Code:      code,
		Message:   err.Error(),
		Retryable: code == errCodeCompletion,
	})
	out.RoutingHints.HasFailures = true
	logger.Warn("Agent execution failed",
		"code", code,
		"duration_ms", out.Metrics.DurationMs,
		"retries", out.Metrics.RetryCount,
		"error", err)
	return out
}

// classifyError maps a completion failure onto an envelope error code. Uses
// errors.Is on the error itself so a concurrent context expiry does not
// misclassify an unrelated failure.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errCodeTimedOut
	case errors.Is(err, context.Canceled):
		return errCodeCancelled
	default:
		return errCodeCompletion
	}
}

// buildUserMessage renders the request into the worker's user prompt.
func buildUserMessage(role Role, req *models.AgentRequest) string {
	var sb strings.Builder

	sb.WriteString("## Task\n\n")
	sb.WriteString(req.TaskAnalysis)
	sb.WriteString("\n\n")

	if req.StyleHint != "" {
		sb.WriteString("## Style Competition\n")
		fmt.Fprintf(&sb, "Explore style package %q only.\n\n", req.StyleHint)
	}

	if len(req.ContextItems) > 0 {
		sb.WriteString("## Retrieved Context\n\n")
		for _, item := range req.ContextItems {
			fmt.Fprintf(&sb, "### %s (relevance %.2f)\n%s\n\n", item.Type, item.Relevance, item.Content)
		}
	}

	if len(req.PreviousOutputs) > 0 {
		sb.WriteString("## Previous Agent Outputs\n\n")
		for _, prev := range req.PreviousOutputs {
			status := "succeeded"
			if !prev.Success {
				status = "failed"
			}
			fmt.Fprintf(&sb, "### %s (%s)\n", prev.AgentID, status)
			for _, a := range prev.Artifacts {
				fmt.Fprintf(&sb, "- artifact: %s\n", a.Path)
			}
			if notes := prev.RoutingHints.Notes; notes != "" {
				fmt.Fprintf(&sb, "- notes: %s\n", notes)
			}
			sb.WriteString("\n")
		}
	}

	if len(req.Constraints) > 0 {
		sb.WriteString("## Constraints\n")
		for _, key := range sortedKeys(req.Constraints) {
			fmt.Fprintf(&sb, "- %s: %v\n", key, req.Constraints[key])
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Produce your %s output now.", role.Type)
	return sb.String()
}

func constraintString(constraints map[string]any, key string) string {
	if constraints == nil {
		return ""
	}
	if s, ok := constraints[key].(string); ok {
		return s
	}
	return ""
}
