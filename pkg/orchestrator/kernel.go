// Package orchestrator implements the decision loop at the centre of
// agentflow. The kernel classifies the user request once, then iterates:
// ask the decision engine for the next action, dispatch the targeted agents,
// screen their outputs through the guardrail chains, and fold everything into
// a synthesis when the loop stops. The kernel is the only writer of session
// state; collaborators see snapshots.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/dpmorgan-gotribe/agentflow/pkg/agent"
	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/decision"
	"github.com/dpmorgan-gotribe/agentflow/pkg/events"
	"github.com/dpmorgan-gotribe/agentflow/pkg/guardrails"
	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
	"github.com/dpmorgan-gotribe/agentflow/pkg/metrics"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/notify"
	"github.com/dpmorgan-gotribe/agentflow/pkg/retrieval"
	"github.com/dpmorgan-gotribe/agentflow/pkg/session"
	"github.com/dpmorgan-gotribe/agentflow/pkg/synthesis"
)

// recentOutputsTail bounds how many prior outputs feed the decision context.
const recentOutputsTail = 5

var (
	// ErrInputRejected is returned when the input guardrail chain blocks the
	// user request. No session is created.
	ErrInputRejected = errors.New("orchestrator: input rejected by guardrails")

	// ErrInvalidOption is returned when an approval response selects an
	// option the pending request does not offer. The session stays paused.
	ErrInvalidOption = errors.New("orchestrator: selected option is not available")
)

// Request starts one orchestration run.
type Request struct {
	ProjectID string
	UserInput string
	Auth      models.AuthContext

	// Config overrides the server-wide orchestrator bounds for this run.
	// Zero-valued fields keep the configured values.
	Config *config.OrchestratorConfig
}

// Result is what a run returns to the caller: the synthesis for terminal
// sessions, or the approval request a paused session is waiting on.
type Result struct {
	SessionID  string                  `json:"session_id"`
	Phase      models.Phase            `json:"phase"`
	Synthesis  *models.SynthesisResult `json:"synthesis,omitempty"`
	Approval   *models.ApprovalRequest `json:"approval,omitempty"`
	TokensUsed int                     `json:"tokens_used"`
	Iterations int                     `json:"iterations"`
	LastError  string                  `json:"last_error,omitempty"`
}

// Deps carries the kernel's collaborators. Sessions through Config are
// required and New panics when one is missing; the rest default or are
// nil-safe.
type Deps struct {
	Sessions   *session.Manager
	Workers    map[models.AgentType]agent.Agent
	Decider    *decision.Engine
	Guardrails *guardrails.Engine
	Retrieval  *retrieval.Manager
	Synth      *synthesis.Synthesizer
	Provider   llm.CompletionProvider
	Config     *config.Config

	// Model overrides the provider default for the classification call.
	Model  string
	Clock  clock.PassiveClock
	Events *events.Publisher
	Notify *notify.Service
	Logger *slog.Logger

	// NewID generates execution IDs. Defaults to random UUIDs.
	NewID func() string
}

// Kernel runs orchestration sessions. One kernel serves every session; all
// per-run state lives on the Session itself.
type Kernel struct {
	sessions   *session.Manager
	workers    map[models.AgentType]agent.Agent
	decider    *decision.Engine
	guardrails *guardrails.Engine
	retrieval  *retrieval.Manager
	synth      *synthesis.Synthesizer
	provider   llm.CompletionProvider
	cfg        *config.Config
	model      string
	clk        clock.PassiveClock
	events     *events.Publisher
	notify     *notify.Service
	logger     *slog.Logger
	newID      func() string
}

// New creates the orchestration kernel.
func New(deps Deps) *Kernel {
	if deps.Sessions == nil {
		panic("orchestrator.New: Sessions must not be nil")
	}
	if len(deps.Workers) == 0 {
		panic("orchestrator.New: Workers must not be empty")
	}
	if deps.Decider == nil {
		panic("orchestrator.New: Decider must not be nil")
	}
	if deps.Guardrails == nil {
		panic("orchestrator.New: Guardrails must not be nil")
	}
	if deps.Retrieval == nil {
		panic("orchestrator.New: Retrieval must not be nil")
	}
	if deps.Synth == nil {
		panic("orchestrator.New: Synth must not be nil")
	}
	if deps.Provider == nil {
		panic("orchestrator.New: Provider must not be nil")
	}
	if deps.Config == nil {
		panic("orchestrator.New: Config must not be nil")
	}

	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Kernel{
		sessions:   deps.Sessions,
		workers:    deps.Workers,
		decider:    deps.Decider,
		guardrails: deps.Guardrails,
		retrieval:  deps.Retrieval,
		synth:      deps.Synth,
		provider:   deps.Provider,
		cfg:        deps.Config,
		model:      deps.Model,
		clk:        clk,
		events:     deps.Events,
		notify:     deps.Notify,
		logger:     logger.With("component", "orchestrator"),
		newID:      newID,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Entry points
// ─────────────────────────────────────────────────────────────────────────────

// Orchestrate runs one session from user input to a terminal phase or an
// approval suspension. The returned Result carries the synthesis for terminal
// runs and the pending approval for paused ones.
func (k *Kernel) Orchestrate(ctx context.Context, req Request) (*Result, error) {
	// 1. Caller identity; every downstream call is tenant-scoped
	if err := req.Auth.Validate(); err != nil {
		return nil, err
	}

	logger := k.logger.With(
		"session_id", req.Auth.SessionID,
		"tenant_id", req.Auth.TenantID,
		"project_id", req.ProjectID)

	// 2. Bound the prompt before anything touches it
	cfg := k.effectiveConfig(req.Config, logger)
	input := strings.TrimSpace(req.UserInput)
	if input == "" {
		return nil, models.ErrEmptyInput
	}
	if len(input) > cfg.MaxInputLength {
		return nil, fmt.Errorf("%w: %d > %d", models.ErrInputTooLong, len(input), cfg.MaxInputLength)
	}

	// 3. Input guardrails; a block is terminal for the request
	verdict := k.guardrails.ValidateInput(ctx, input, guardrails.Context{
		TenantID:   req.Auth.TenantID,
		AgentType:  models.AgentOrchestrator,
		OutputType: guardrails.OutputTypeText,
	})
	if !verdict.Valid {
		metrics.RecordGuardrailBlock("input")
		logger.Warn("Input blocked by guardrails", "guardrails", violationIDs(verdict))
		return nil, fmt.Errorf("%w: %s", ErrInputRejected, violationIDs(verdict))
	}

	// 4. One classification call; failures degrade to the keyword heuristic
	classification, classifyTokens := k.classify(ctx, input, logger)

	// 5. Register the session
	sess, err := k.sessions.Create(req.ProjectID, input, req.Auth, cfg)
	if err != nil {
		return nil, err
	}
	sess.SetClassification(classification)
	sess.AddTokens(classifyTokens)

	metrics.RecordSessionStarted()
	logger.Info("Orchestration started",
		"task_type", classification.TaskType,
		"requires_design", classification.RequiresDesign,
		"complexity", classification.Complexity,
		"classify_tokens", classifyTokens)
	k.publishStatus(sess)

	// 6. Enter the decision loop, cancellable out-of-band via Cancel
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.SetCancel(cancel)

	return k.runLoop(runCtx, sess, logger), nil
}

// Resume continues a paused session with the caller's approval response. On
// approval the corresponding design flag is set; on rejection the style
// iteration advances and the loop re-enters the same sub-phase, failing the
// session once the rejection ceiling is hit. The response also feeds the next
// decision context so the engine sees the feedback.
func (k *Kernel) Resume(ctx context.Context, sessionID, tenantID string, resp models.ApprovalResponse) (*Result, error) {
	sess, err := k.sessions.GetForTenant(sessionID, tenantID)
	if err != nil {
		return nil, err
	}
	if sess.Phase() != models.PhasePaused {
		return nil, fmt.Errorf("%w: %s", session.ErrNotPaused, sessionID)
	}

	logger := k.logger.With("session_id", sess.ID, "tenant_id", tenantID, "project_id", sess.ProjectID)

	// 1. Validate the response against the pending request. A bad option
	// leaves the session paused and retryable.
	approval := sess.PendingApproval()
	approvalType := models.ApprovalType("pause")
	if approval != nil {
		approvalType = approval.Type
	}
	if approval != nil && resp.Approved && approval.Type == models.ApprovalStyleSelection {
		if resp.SelectedOption == "" && len(approval.Options) == 1 {
			resp.SelectedOption = approval.Options[0]
		}
		if len(approval.Options) > 0 && !containsOption(approval.Options, resp.SelectedOption) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOption, resp.SelectedOption)
		}
	}

	logger.Info("Resuming session",
		"approval_type", string(approvalType),
		"approved", resp.Approved,
		"selected_option", resp.SelectedOption)
	metrics.RecordSessionResumed(string(approvalType), resp.Approved)

	// 2. Stage the response for the next decision context and apply it to
	// the design state machine
	sess.SetApprovalResponse(resp)
	if approval != nil {
		if exhausted, msg := k.applyApproval(sess, approval, resp); exhausted {
			logger.Warn("Approval iterations exhausted", "approval_type", string(approval.Type))
			return k.finalize(sess, models.PhaseFailed, msg), nil
		}
	}

	// 3. Leave paused and re-enter the loop
	k.restorePhase(sess)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.SetCancel(cancel)

	return k.runLoop(runCtx, sess, logger), nil
}

// Cancel aborts a tenant's session. Idempotent: cancelling a terminal session
// reports false. An active run observes the cancelled context and finalizes
// itself; a paused session is failed directly.
func (k *Kernel) Cancel(sessionID, tenantID string) (bool, error) {
	sess, err := k.sessions.GetForTenant(sessionID, tenantID)
	if err != nil {
		return false, err
	}
	if phase := sess.Phase(); phase.IsTerminal() && phase != models.PhasePaused {
		return false, nil
	}
	if sess.Cancel() {
		k.logger.Info("Session cancel requested", "session_id", sessionID, "tenant_id", tenantID)
		return true, nil
	}

	// No active run to unwind (paused, or crashed before the loop).
	sess.SetLastError("session cancelled")
	sess.SetPhase(models.PhaseFailed)
	metrics.RecordSessionTerminal(string(models.PhaseFailed), k.clk.Since(sess.StartedAt))
	k.publishStatus(sess)
	k.logger.Info("Paused session cancelled", "session_id", sessionID, "tenant_id", tenantID)
	return true, nil
}

// GetCurrentState returns the state snapshot of a tenant's session.
func (k *Kernel) GetCurrentState(sessionID, tenantID string) (session.State, error) {
	sess, err := k.sessions.GetForTenant(sessionID, tenantID)
	if err != nil {
		return session.State{}, err
	}
	return sess.StateSnapshot(), nil
}

// GetCurrentTokenUsage returns the tokens charged against a tenant's session
// so far.
func (k *Kernel) GetCurrentTokenUsage(sessionID, tenantID string) (int, error) {
	sess, err := k.sessions.GetForTenant(sessionID, tenantID)
	if err != nil {
		return 0, err
	}
	return sess.Tokens(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Decision loop
// ─────────────────────────────────────────────────────────────────────────────

// runLoop drives a session until a terminal phase or an approval suspension.
// It owns every loop bound: the iteration cap, the token budget, the wall
// clock timeout, and the consecutive-failure circuit. Exhausting iterations
// or budget is not an error; the loop stops and synthesizes what it has.
func (k *Kernel) runLoop(ctx context.Context, sess *session.Session, logger *slog.Logger) *Result {
	cfg := sess.Config
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond

	for {
		// 1. Cancellation wins over every other check
		if ctx.Err() != nil {
			logger.Info("Session cancelled")
			return k.finalize(sess, models.PhaseFailed, "session cancelled")
		}

		// 2. Wall-clock timeout
		if k.clk.Since(sess.StartedAt) > timeout {
			logger.Warn("Session timed out", "timeout_ms", cfg.TimeoutMs)
			return k.finalize(sess, models.PhaseFailed, "session timed out")
		}

		// 3. Budget gate before any new spend
		if sess.Tokens() >= cfg.MaxTokenBudget {
			logger.Info("Token budget exhausted",
				"tokens_used", sess.Tokens(), "budget", cfg.MaxTokenBudget)
			return k.finalize(sess, models.PhaseComplete, "")
		}

		// 4. Iteration cap
		iteration := sess.NextIteration()
		if iteration > cfg.MaxIterations {
			logger.Info("Iteration cap reached", "max_iterations", cfg.MaxIterations)
			return k.finalize(sess, models.PhaseComplete, "")
		}
		k.publishProgress(sess, "deciding next action")

		// 5. Ask the decision engine. Provider errors count toward the
		// failure circuit; the charge lands even when the loop stops next.
		tc := k.buildThinkingContext(sess)
		d, err := k.decider.Decide(ctx, tc, sess.Auth)
		if err != nil {
			failures := sess.RecordFailure(fmt.Sprintf("decision failed: %v", err))
			logger.Warn("Decision engine error", "failures", failures, "error", err)
			if failures >= cfg.MaxFailuresPerAgent {
				return k.finalize(sess, models.PhaseFailed, sess.LastFailure())
			}
			continue
		}
		sess.AddTokens(d.TokensUsed)
		metrics.RecordDecision(string(d.Action), d.TokensUsed)
		logger.Debug("Decision",
			"iteration", iteration,
			"action", string(d.Action),
			"targets", len(d.Targets),
			"tokens", d.TokensUsed)

		// 6. Orchestrator-directed special actions
		if act, ok := specialAction(d); ok {
			switch act {
			case models.SpecialComplete:
				return k.finalize(sess, models.PhaseComplete, "")
			case models.SpecialPause:
				return k.pause(sess, logger)
			case models.SpecialEscalate, models.SpecialAbort:
				return k.finalize(sess, models.PhaseFailed,
					fmt.Sprintf("orchestrator requested %s", string(act)))
			default:
				logger.Warn("Orchestrator target carried no special action, skipping iteration")
				continue
			}
		}

		switch d.Action {
		case models.ActionComplete:
			return k.finalize(sess, models.PhaseComplete, "")
		case models.ActionFail:
			msg := d.Error
			if msg == "" {
				msg = "decision engine failed the session"
			}
			return k.finalize(sess, models.PhaseFailed, msg)
		case models.ActionWait:
			logger.Debug("Decision requested wait", "iteration", iteration)
			continue
		case models.ActionApproval:
			return k.suspend(ctx, sess, d)
		}

		// 7. No new dispatch once the budget is crossed; the decision charge
		// above may have been the spend that crossed it
		if sess.Tokens() >= cfg.MaxTokenBudget {
			logger.Info("Token budget exhausted after decision",
				"tokens_used", sess.Tokens(), "budget", cfg.MaxTokenBudget)
			return k.finalize(sess, models.PhaseComplete, "")
		}

		// 8. Dispatch the batch and screen each output
		batch := k.dispatch(ctx, sess, d)
		progressed, failure := k.recordBatch(ctx, sess, batch, logger)
		if !progressed {
			failures := sess.RecordFailure(failure)
			logger.Warn("Dispatch made no progress", "failures", failures, "reason", failure)
			if failures >= cfg.MaxFailuresPerAgent {
				return k.finalize(sess, models.PhaseFailed, sess.LastFailure())
			}
			continue
		}

		// 9. Phase moves forward only
		k.updatePhase(sess)
	}
}

// recordBatch screens each output through the output guardrail chain and
// appends the clean ones to the session in target order. Blocked outputs
// never enter the session record; their token cost is still charged. A batch
// counts as progress when at least one output succeeded.
func (k *Kernel) recordBatch(ctx context.Context, sess *session.Session, batch []*models.AgentOutput, logger *slog.Logger) (bool, string) {
	progressed := false
	var firstFailure string

	for _, out := range batch {
		sess.AddTokens(out.Metrics.TokensUsed)
		duration := time.Duration(out.Metrics.DurationMs) * time.Millisecond

		if blocked, reason := k.screenOutput(ctx, sess, out); blocked {
			metrics.RecordGuardrailBlock("output")
			metrics.RecordAgentExecution(string(out.AgentID), events.AgentStatusBlocked, duration, out.Metrics.TokensUsed)
			// Reason names guardrail IDs only; content stays out of logs.
			logger.Warn("Agent output blocked by guardrails",
				"agent", string(out.AgentID),
				"execution_id", out.ExecutionID,
				"guardrails", reason)
			k.publishAgentTerminal(sess, out, events.AgentStatusBlocked, reason)
			if firstFailure == "" {
				firstFailure = fmt.Sprintf("%s output blocked by guardrails: %s", out.AgentID, reason)
			}
			continue
		}

		sess.AppendOutput(*out)
		if out.Success {
			progressed = true
			sess.MarkCompleted(out.AgentID)
			if pkgs := agent.StylePackagesFromOutput(out); len(pkgs) > 0 {
				sess.RecordStylePackages(pkgs)
				logger.Info("Style packages recorded", "agent", string(out.AgentID), "count", len(pkgs))
			}
			metrics.RecordAgentExecution(string(out.AgentID), events.AgentStatusCompleted, duration, out.Metrics.TokensUsed)
			k.publishAgentTerminal(sess, out, events.AgentStatusCompleted, "")
			continue
		}

		detail := firstErrorMessage(out)
		metrics.RecordAgentExecution(string(out.AgentID), events.AgentStatusFailed, duration, out.Metrics.TokensUsed)
		k.publishAgentTerminal(sess, out, events.AgentStatusFailed, detail)
		if firstFailure == "" {
			firstFailure = fmt.Sprintf("%s: %s", out.AgentID, detail)
		}
	}

	if !progressed && firstFailure == "" {
		firstFailure = "dispatch made no progress"
	}
	return progressed, firstFailure
}

// screenOutput runs the output guardrail chain over everything a successful
// agent produced: the serialized result object as text and each artifact as
// code. The first violating chunk blocks the whole output.
func (k *Kernel) screenOutput(ctx context.Context, sess *session.Session, out *models.AgentOutput) (bool, string) {
	if !out.Success {
		return false, ""
	}
	gctx := guardrails.Context{
		TenantID:  sess.Auth.TenantID,
		AgentType: out.AgentID,
	}

	if len(out.Result) > 0 {
		gctx.OutputType = guardrails.OutputTypeText
		if r := k.guardrails.ValidateOutput(ctx, resultText(out.Result), gctx); !r.Valid {
			return true, violationIDs(r)
		}
	}
	for _, artifact := range out.Artifacts {
		gctx.OutputType = guardrails.OutputTypeCode
		if r := k.guardrails.ValidateOutput(ctx, artifact.Content, gctx); !r.Valid {
			return true, violationIDs(r)
		}
	}
	return false, ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Suspension and termination
// ─────────────────────────────────────────────────────────────────────────────

// suspend pauses the session on a human checkpoint and returns the pending
// request to the caller. The run resumes through Resume.
func (k *Kernel) suspend(ctx context.Context, sess *session.Session, d *models.Decision) *Result {
	cfg := d.ApprovalConfig
	if cfg == nil {
		cfg = &models.ApprovalConfig{Type: models.ApprovalDesignReview}
	}

	req := &models.ApprovalRequest{
		Type:           cfg.Type,
		Description:    cfg.Description,
		Options:        append([]string(nil), cfg.Options...),
		IterationCount: sess.StateSnapshot().StyleIteration,
		MaxIterations:  cfg.MaxIterations,
	}
	if req.MaxIterations == 0 {
		req.MaxIterations = decision.MaxIterationsFor(req.Type)
	}
	if len(req.Options) == 0 && req.Type == models.ApprovalStyleSelection {
		for _, pkg := range sess.StateSnapshot().StylePackages {
			req.Options = append(req.Options, pkg.ID)
		}
	}
	sess.SetCancel(nil)
	sess.Suspend(req)

	metrics.RecordSessionSuspended(string(req.Type))
	k.logger.Info("Session suspended for approval",
		"session_id", sess.ID,
		"approval_type", string(req.Type),
		"options", len(req.Options),
		"iteration", req.IterationCount)
	k.publishApproval(sess, req)
	k.publishStatus(sess)
	k.notify.NotifyApprovalRequired(ctx, notify.ApprovalInput{
		SessionID: sess.ID,
		ProjectID: sess.ProjectID,
		Approval:  req,
	})
	return k.result(sess)
}

// pause handles an orchestrator PAUSE with no approval request attached: the
// session leaves the loop and waits for the caller to resume with feedback.
func (k *Kernel) pause(sess *session.Session, logger *slog.Logger) *Result {
	sess.SetCancel(nil)
	sess.SetPhase(models.PhasePaused)
	metrics.RecordSessionSuspended("pause")
	logger.Info("Session paused by orchestrator decision")
	k.publishStatus(sess)
	return k.result(sess)
}

// applyApproval moves the design state machine for one approval response.
// Returns exhausted=true when a rejection hits the iteration ceiling.
func (k *Kernel) applyApproval(sess *session.Session, approval *models.ApprovalRequest, resp models.ApprovalResponse) (bool, string) {
	if resp.Approved {
		switch approval.Type {
		case models.ApprovalStyleSelection:
			sess.ApproveStylesheet(resp.SelectedOption)
		case models.ApprovalDesignReview:
			sess.ApproveScreens()
		}
		return false, ""
	}

	iteration := sess.RejectStyle(resp.SelectedOption)
	ceiling := approval.MaxIterations
	if ceiling == 0 {
		ceiling = decision.MaxIterationsFor(approval.Type)
	}
	if iteration >= ceiling {
		return true, fmt.Sprintf("%s rejected %d times", string(approval.Type), iteration)
	}
	return false, ""
}

// finalize moves the session to its terminal phase, folds the recorded
// outputs into the synthesis, and emits the terminal event, metric, and
// notification. Every loop exit except a pause lands here, so even failed
// sessions carry a best-effort synthesis.
func (k *Kernel) finalize(sess *session.Session, phase models.Phase, errMsg string) *Result {
	sess.SetCancel(nil)
	if errMsg != "" {
		sess.SetLastError(errMsg)
	}
	sess.SetPhase(phase)

	outputs := sess.OutputsSnapshot()
	synth := k.synth.Synthesize(outputs)
	k.appendPendingAgents(sess, synth)
	sess.SetSynthesis(synth)

	metrics.RecordSessionTerminal(string(phase), k.clk.Since(sess.StartedAt))
	k.publishStatus(sess)
	k.logger.Info("Orchestration finished",
		"session_id", sess.ID,
		"phase", string(phase),
		"iterations", sess.StateSnapshot().IterationCount,
		"tokens_used", sess.Tokens(),
		"outputs", len(outputs),
		"completion_pct", synth.CompletionStatus)

	// The run context may already be cancelled; delivery gets its own.
	k.notify.NotifyTerminal(context.Background(), notify.TerminalInput{
		SessionID:     sess.ID,
		ProjectID:     sess.ProjectID,
		Phase:         phase,
		CompletionPct: synth.CompletionStatus,
		Summary:       strings.Join(synth.Summary, "; "),
		ErrorMessage:  errMsg,
		TokensUsed:    sess.Tokens(),
	})
	return k.result(sess)
}

// appendPendingAgents records mandatory agents that never ran so a
// budget-terminated synthesis names the remaining work.
func (k *Kernel) appendPendingAgents(sess *session.Session, synth *models.SynthesisResult) {
	snap := sess.Snapshot()
	completed := make(map[models.AgentType]bool, len(snap.State.CompletedAgents))
	for _, a := range snap.State.CompletedAgents {
		completed[a] = true
	}

	var pending []models.AgentType
	for _, a := range decision.MandatoryAgents(snap.Classification) {
		if !completed[a] {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		return
	}
	sess.SetPendingAgents(pending)

	seen := make(map[string]bool, len(synth.NextSteps))
	for _, step := range synth.NextSteps {
		seen[step] = true
	}
	for _, a := range pending {
		step := fmt.Sprintf("Run %s", string(a))
		if !seen[step] {
			synth.NextSteps = append(synth.NextSteps, step)
		}
	}
}

// result snapshots the session into the caller-facing shape.
func (k *Kernel) result(sess *session.Session) *Result {
	snap := sess.Snapshot()
	return &Result{
		SessionID:  snap.ID,
		Phase:      snap.State.Phase,
		Synthesis:  snap.Synthesis,
		Approval:   snap.Approval,
		TokensUsed: snap.TokensUsed,
		Iterations: snap.State.IterationCount,
		LastError:  snap.LastError,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Phase movement
// ─────────────────────────────────────────────────────────────────────────────

// phaseRank orders the forward-only build phases.
var phaseRank = map[models.Phase]int{
	models.PhaseAnalyzing: 0,
	models.PhaseDesigning: 1,
	models.PhaseBuilding:  2,
	models.PhaseTesting:   3,
	models.PhaseReviewing: 4,
}

// updatePhase advances the session phase from the completed-agent set. The
// phase only ever moves forward; terminal phases are never overwritten.
func (k *Kernel) updatePhase(sess *session.Session) {
	cur := sess.Phase()
	if cur.IsTerminal() {
		return
	}
	next := targetPhase(sess.Snapshot())
	if phaseRank[next] > phaseRank[cur] {
		sess.SetPhase(next)
		k.publishStatus(sess)
	}
}

// restorePhase recomputes the active phase when a paused session re-enters
// the loop. The forward-only rule does not apply; paused sits outside the
// phase ladder.
func (k *Kernel) restorePhase(sess *session.Session) {
	sess.SetPhase(targetPhase(sess.Snapshot()))
	k.publishStatus(sess)
}

// targetPhase derives the phase implied by the work completed so far.
func targetPhase(snap session.Session) models.Phase {
	completed := make(map[models.AgentType]bool, len(snap.State.CompletedAgents))
	for _, a := range snap.State.CompletedAgents {
		completed[a] = true
	}

	switch {
	case completed[models.AgentTester] || completed[models.AgentReviewer]:
		return models.PhaseReviewing
	case completed[models.AgentFrontendDev] || completed[models.AgentBackendDev]:
		return models.PhaseTesting
	case completed[models.AgentProjectManager]:
		return models.PhaseBuilding
	case completed[models.AgentArchitect]:
		if snap.Classification.RequiresDesign && !snap.State.ScreensApproved {
			return models.PhaseDesigning
		}
		return models.PhaseBuilding
	case completed[models.AgentAnalyst], completed[models.AgentUIDesigner]:
		if snap.Classification.RequiresDesign && !snap.State.ScreensApproved {
			return models.PhaseDesigning
		}
		return models.PhaseBuilding
	default:
		return models.PhaseAnalyzing
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// buildThinkingContext assembles the decision input from a session snapshot.
// A staged approval response feeds exactly one context.
func (k *Kernel) buildThinkingContext(sess *session.Session) decision.ThinkingContext {
	snap := sess.Snapshot()
	return decision.ThinkingContext{
		UserInput:          snap.UserInput,
		Classification:     snap.Classification,
		Phase:              snap.State.Phase,
		DesignPhase:        snap.State.DesignPhase,
		IterationCount:     snap.State.IterationCount,
		CompletedAgents:    snap.State.CompletedAgents,
		RecentOutputs:      outputsTail(snap.Outputs, recentOutputsTail),
		StylePackages:      snap.State.StylePackages,
		RejectedStyles:     snap.State.RejectedStyles,
		SelectedStyleID:    snap.State.SelectedStyleID,
		StylesheetApproved: snap.State.StylesheetApproved,
		ScreensApproved:    snap.State.ScreensApproved,
		StyleIteration:     snap.State.StyleIteration,
		ApprovalResponse:   sess.TakeApprovalResponse(),
		LastError:          snap.LastError,
	}
}

// effectiveConfig merges per-request overrides onto the configured bounds.
func (k *Kernel) effectiveConfig(override *config.OrchestratorConfig, logger *slog.Logger) config.OrchestratorConfig {
	eff := k.cfg.Orchestrator
	if override == nil {
		return eff
	}
	if err := mergo.Merge(&eff, *override, mergo.WithOverride); err != nil {
		logger.Warn("Failed to merge config overrides, using server config", "error", err)
		return k.cfg.Orchestrator
	}
	return eff
}

// specialAction reports the orchestrator-directed instruction carried by a
// decision that targets the orchestrator pseudo-agent.
func specialAction(d *models.Decision) (models.SpecialAction, bool) {
	if d.Action != models.ActionDispatch && d.Action != models.ActionParallelDispatch {
		return models.SpecialNone, false
	}
	for _, t := range d.Targets {
		if t.AgentID == models.AgentOrchestrator {
			return decision.ParseSpecialAction(d.Reasoning), true
		}
	}
	return models.SpecialNone, false
}

func containsOption(options []string, option string) bool {
	for _, o := range options {
		if o == option {
			return true
		}
	}
	return false
}

func violationIDs(result *models.GuardrailResult) string {
	ids := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		ids = append(ids, v.GuardrailID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}

func firstErrorMessage(out *models.AgentOutput) string {
	if len(out.Errors) > 0 {
		return out.Errors[0].Message
	}
	return "agent reported failure"
}

// resultText renders a result object for guardrail screening. Marshal cannot
// realistically fail on a decoded JSON map; the fallback keeps screening on.
func resultText(result map[string]any) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(raw)
}

func outputsTail(outputs []models.AgentOutput, n int) []models.AgentOutput {
	if len(outputs) <= n {
		return outputs
	}
	return outputs[len(outputs)-n:]
}

// ─────────────────────────────────────────────────────────────────────────────
// Event emission (nil-safe)
// ─────────────────────────────────────────────────────────────────────────────

func (k *Kernel) timestamp() string {
	return k.clk.Now().UTC().Format(time.RFC3339Nano)
}

func (k *Kernel) publishStatus(sess *session.Session) {
	if k.events == nil {
		return
	}
	snap := sess.Snapshot()
	_ = k.events.PublishSessionStatus(snap.ID, events.SessionStatusPayload{
		SessionID:   snap.ID,
		Phase:       snap.State.Phase,
		DesignPhase: snap.State.DesignPhase,
		Iteration:   snap.State.IterationCount,
		TokensUsed:  snap.TokensUsed,
		Timestamp:   k.timestamp(),
	})
}

func (k *Kernel) publishProgress(sess *session.Session, message string) {
	if k.events == nil {
		return
	}
	_ = k.events.PublishSessionProgress(events.SessionProgressPayload{
		SessionID: sess.ID,
		Phase:     sess.Phase(),
		Iteration: sess.StateSnapshot().IterationCount,
		Message:   message,
		Timestamp: k.timestamp(),
	})
}

func (k *Kernel) publishAgentStarted(sess *session.Session, agentType models.AgentType, execID string) {
	if k.events == nil {
		return
	}
	_ = k.events.PublishAgentStatus(sess.ID, events.AgentStatusPayload{
		SessionID:   sess.ID,
		Agent:       agentType,
		ExecutionID: execID,
		Status:      events.AgentStatusStarted,
		Timestamp:   k.timestamp(),
	})
}

func (k *Kernel) publishAgentTerminal(sess *session.Session, out *models.AgentOutput, status, detail string) {
	if k.events == nil {
		return
	}
	_ = k.events.PublishAgentStatus(sess.ID, events.AgentStatusPayload{
		SessionID:   sess.ID,
		Agent:       out.AgentID,
		ExecutionID: out.ExecutionID,
		Status:      status,
		DurationMs:  out.Metrics.DurationMs,
		TokensUsed:  out.Metrics.TokensUsed,
		Detail:      detail,
		Timestamp:   k.timestamp(),
	})
}

func (k *Kernel) publishApproval(sess *session.Session, req *models.ApprovalRequest) {
	if k.events == nil {
		return
	}
	_ = k.events.PublishApprovalRequired(sess.ID, events.ApprovalRequiredPayload{
		SessionID: sess.ID,
		Approval:  req,
		Timestamp: k.timestamp(),
	})
}
