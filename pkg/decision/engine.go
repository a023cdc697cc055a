package decision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
	"github.com/dpmorgan-gotribe/agentflow/pkg/metrics"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

const (
	decisionMaxTokens = 2048

	// Approval iteration ceilings per sub-phase.
	maxStyleIterations  = 5
	maxReviewIterations = 3
)

// Engine asks the completion provider for the next routing action, parses it
// leniently, and corrects it against the phase state machine. Every decision
// returned by Decide is gate-checked.
type Engine struct {
	provider llm.CompletionProvider
	model    string
	logger   *slog.Logger
}

// NewEngine creates a decision engine on top of a completion provider. An
// empty model defers to the provider's default.
func NewEngine(provider llm.CompletionProvider, model string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		provider: provider,
		model:    model,
		logger:   logger.With("component", "decision_engine"),
	}
}

// Decide produces the next gate-checked decision for the session. Provider
// errors are returned to the caller (they count toward the failure circuit);
// parse failures degrade to the deterministic fallback policy.
func (e *Engine) Decide(ctx context.Context, tc ThinkingContext, auth models.AuthContext) (*models.Decision, error) {
	system, user := buildMessages(tc)

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		System:    system,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: user}},
		Model:     e.model,
		MaxTokens: decisionMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("decision: complete: %w", err)
	}

	tokens := resp.Usage.Total()
	if tokens == 0 {
		tokens = models.EstimateTokens(system) + models.EstimateTokens(user) + models.EstimateTokens(resp.Content)
	}

	d, parseErr := ParseDecision(resp.Content)
	if parseErr != nil {
		e.logger.Warn("Decision parse failed, using fallback policy",
			"tenant_id", auth.TenantID,
			"session_id", auth.SessionID,
			"error", parseErr)
		d = e.Fallback(tc)
	}
	d.TokensUsed = tokens
	return e.EnforceGates(d, tc), nil
}

// EnforceGates inspects a proposed dispatch and rewrites it when it would
// violate the design-phase gates. Corrections are logged at warn level with
// the original action; the caller never sees the violating decision.
func (e *Engine) EnforceGates(d *models.Decision, tc ThinkingContext) *models.Decision {
	if d.Action != models.ActionDispatch && d.Action != models.ActionParallelDispatch {
		return d
	}

	for _, t := range d.Targets {
		switch t.AgentID {
		case models.AgentUIDesigner:
			if len(tc.StylePackages) == 0 {
				return e.correct(d, &models.Decision{
					Reasoning: "Style research must produce style packages before any design work",
					Action:    models.ActionDispatch,
					Targets:   []models.Target{{AgentID: models.AgentAnalyst}},
				}, "ui_designer requires style packages; routing to analyst for style research")
			}
			// Competition dispatches carry a style hint and are exempt.
			if !tc.StylesheetApproved && t.StyleHint == "" {
				return e.correct(d, &models.Decision{
					Reasoning: "Screen design requires an approved stylesheet",
					Action:    models.ActionApproval,
					ApprovalConfig: &models.ApprovalConfig{
						Type:          models.ApprovalStyleSelection,
						Description:   "Select a style package to continue the design",
						Options:       tc.StylePackageIDs(),
						MaxIterations: maxStyleIterations,
					},
				}, "screen design requires an approved stylesheet; requesting style selection")
			}
		case models.AgentProjectManager:
			if !tc.ScreensApproved {
				return e.correct(d, &models.Decision{
					Reasoning: "Planning requires approved screen designs",
					Action:    models.ActionApproval,
					ApprovalConfig: &models.ApprovalConfig{
						Type:          models.ApprovalDesignReview,
						Description:   "Review and approve the screen designs to continue",
						MaxIterations: maxReviewIterations,
					},
				}, "project_manager requires approved screens; requesting design review")
			}
		}
	}
	return d
}

func (e *Engine) correct(original, corrected *models.Decision, reason string) *models.Decision {
	corrected.TokensUsed = original.TokensUsed
	metrics.RecordGateCorrection()
	e.logger.Warn("Phase gate enforcement",
		"original_action", string(original.Action),
		"original_targets", targetNames(original.Targets),
		"corrected_action", string(corrected.Action),
		"reason", reason)
	return corrected
}

// MandatoryAgents returns the agents every run of this classification must
// complete, in dispatch order. Design tasks route through the designer and
// planner; everything else ends at review.
func MandatoryAgents(c models.TaskClassification) []models.AgentType {
	if c.RequiresDesign {
		return []models.AgentType{models.AgentAnalyst, models.AgentArchitect, models.AgentUIDesigner, models.AgentProjectManager}
	}
	return []models.AgentType{models.AgentAnalyst, models.AgentArchitect, models.AgentReviewer}
}

// MaxIterationsFor returns the approval iteration ceiling for the checkpoint
// type.
func MaxIterationsFor(t models.ApprovalType) int {
	if t == models.ApprovalDesignReview {
		return maxReviewIterations
	}
	return maxStyleIterations
}

// Fallback picks the next uncompleted mandatory agent deterministically. It
// is used whenever the LLM's answer cannot be parsed. Gates still apply to
// the result, so the ladder only names dispatch targets.
func (e *Engine) Fallback(tc ThinkingContext) *models.Decision {
	completed := tc.CompletedSet()

	for _, agent := range MandatoryAgents(tc.Classification) {
		if completed[agent] {
			continue
		}
		return &models.Decision{
			Reasoning: fmt.Sprintf("Fallback policy: %s has not completed yet", agent),
			Action:    models.ActionDispatch,
			Targets:   []models.Target{{AgentID: agent}},
		}
	}
	return &models.Decision{
		Reasoning: "Fallback policy: all mandatory agents have completed",
		Action:    models.ActionComplete,
		Summary:   "All mandatory agents have completed",
	}
}

func targetNames(targets []models.Target) string {
	if len(targets) == 0 {
		return "none"
	}
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t.AgentID)
	}
	return strings.Join(names, ",")
}
