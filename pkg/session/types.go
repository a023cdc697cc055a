// Package session holds the in-memory state of orchestration runs. A Session
// is mutated only by the orchestration kernel; everything else reads
// snapshots. The Manager is the process-wide registry keyed by session ID and
// owns the cancel functions used for out-of-band cancellation.
package session

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// State is the progress snapshot of one orchestration run. Phase and
// DesignPhase advance monotonically; the only backward movement is a style
// rejection re-entering the same design sub-phase.
type State struct {
	Phase           models.Phase       `json:"phase"`
	DesignPhase     models.DesignPhase `json:"design_phase"`
	CompletedAgents []models.AgentType `json:"completed_agents,omitempty"`
	PendingAgents   []models.AgentType `json:"pending_agents,omitempty"`

	// FailureCount counts consecutive failed dispatches; reset on success.
	FailureCount   int `json:"failure_count"`
	IterationCount int `json:"iteration_count"`

	StylesheetApproved bool                  `json:"stylesheet_approved"`
	ScreensApproved    bool                  `json:"screens_approved"`
	SelectedStyleID    string                `json:"selected_style_id,omitempty"`
	StyleIteration     int                   `json:"style_iteration"`
	RejectedStyles     []string              `json:"rejected_styles,omitempty"`
	StylePackages      []models.StylePackage `json:"style_packages,omitempty"`
}

// clone deep-copies the state.
func (s State) clone() State {
	out := s
	out.CompletedAgents = append([]models.AgentType(nil), s.CompletedAgents...)
	out.PendingAgents = append([]models.AgentType(nil), s.PendingAgents...)
	out.RejectedStyles = append([]string(nil), s.RejectedStyles...)
	out.StylePackages = append([]models.StylePackage(nil), s.StylePackages...)
	return out
}

// Session is one orchestration run. All exported mutators are thread-safe;
// readers get deep copies so kernel writes never race a snapshot holder.
type Session struct {
	ID             string                    `json:"id"`
	ProjectID      string                    `json:"project_id"`
	Auth           models.AuthContext        `json:"auth"`
	UserInput      string                    `json:"user_input"`
	Classification models.TaskClassification `json:"classification"`
	Config         config.OrchestratorConfig `json:"config"`

	State      State                `json:"state"`
	Outputs    []models.AgentOutput `json:"outputs,omitempty"`
	TokensUsed int                  `json:"tokens_used"`
	StartedAt  time.Time            `json:"started_at"`
	UpdatedAt  time.Time            `json:"updated_at"`

	// Approval is set while the session is paused waiting for the caller.
	Approval *models.ApprovalRequest `json:"approval,omitempty"`
	// Synthesis is the final result, set once the session is terminal.
	Synthesis *models.SynthesisResult `json:"synthesis,omitempty"`
	LastError string                  `json:"last_error,omitempty"`

	mu    sync.RWMutex
	clk   clock.PassiveClock
	canc  context.CancelFunc
	reply *models.ApprovalResponse // pending approval response, consumed once
}

func (s *Session) touch() {
	s.UpdatedAt = s.clk.Now()
}

// Snapshot returns a deep copy safe to hand to handlers and events.
func (s *Session) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Session{
		ID:             s.ID,
		ProjectID:      s.ProjectID,
		Auth:           s.Auth,
		UserInput:      s.UserInput,
		Classification: s.Classification,
		Config:         s.Config,
		State:          s.State.clone(),
		TokensUsed:     s.TokensUsed,
		StartedAt:      s.StartedAt,
		UpdatedAt:      s.UpdatedAt,
		LastError:      s.LastError,
	}
	out.Outputs = append([]models.AgentOutput(nil), s.Outputs...)
	if s.Approval != nil {
		approval := *s.Approval
		out.Approval = &approval
	}
	if s.Synthesis != nil {
		synthesis := *s.Synthesis
		out.Synthesis = &synthesis
	}
	return out
}

// StateSnapshot returns a deep copy of just the state.
func (s *Session) StateSnapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State.clone()
}

// Phase returns the current orchestration phase.
func (s *Session) Phase() models.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State.Phase
}

// SetPhase moves the session to the given phase.
func (s *Session) SetPhase(p models.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State.Phase = p
	s.touch()
}

// SetClassification stores the task classification produced before the loop.
func (s *Session) SetClassification(tc models.TaskClassification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Classification = tc
	s.touch()
}

// Tokens returns the accumulated token usage.
func (s *Session) Tokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TokensUsed
}

// AddTokens charges n tokens against the session and returns the new total.
func (s *Session) AddTokens(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokensUsed += n
	s.touch()
	return s.TokensUsed
}

// NextIteration increments and returns the iteration counter.
func (s *Session) NextIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State.IterationCount++
	s.touch()
	return s.State.IterationCount
}

// AppendOutput records one agent output in decision order.
func (s *Session) AppendOutput(out models.AgentOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outputs = append(s.Outputs, out)
	s.touch()
}

// OutputsSnapshot returns a copy of the recorded outputs.
func (s *Session) OutputsSnapshot() []models.AgentOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AgentOutput(nil), s.Outputs...)
}

// MarkCompleted adds the agent to the completed set (deduplicated) and
// resets the consecutive-failure counter.
func (s *Session) MarkCompleted(agent models.AgentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.State.CompletedAgents {
		if a == agent {
			s.State.FailureCount = 0
			return
		}
	}
	s.State.CompletedAgents = append(s.State.CompletedAgents, agent)
	s.State.FailureCount = 0
	s.touch()
}

// Completed reports whether the agent has completed successfully.
func (s *Session) Completed(agent models.AgentType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.State.CompletedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

// SetPendingAgents records the agents that never ran before the session
// reached a terminal state.
func (s *Session) SetPendingAgents(agents []models.AgentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State.PendingAgents = append([]models.AgentType(nil), agents...)
	s.touch()
}

// RecordFailure increments the consecutive-failure counter, stores the
// message, and returns the new count.
func (s *Session) RecordFailure(msg string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State.FailureCount++
	s.LastError = msg
	s.touch()
	return s.State.FailureCount
}

// LastFailure returns the most recent failure message.
func (s *Session) LastFailure() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastError
}

// SetLastError records a terminal error message without touching the
// consecutive-failure counter.
func (s *Session) SetLastError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = msg
	s.touch()
}

// RecordStylePackages stores the style candidates produced during research
// and advances the design sub-phase to stylesheet.
func (s *Session) RecordStylePackages(pkgs []models.StylePackage) {
	if len(pkgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State.StylePackages = append(s.State.StylePackages, pkgs...)
	if s.State.DesignPhase == models.DesignResearch {
		s.State.DesignPhase = models.DesignStylesheet
	}
	s.touch()
}

// ApproveStylesheet marks the style competition as resolved and advances the
// design sub-phase to screens.
func (s *Session) ApproveStylesheet(styleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State.StylesheetApproved = true
	s.State.SelectedStyleID = styleID
	if s.State.DesignPhase == models.DesignResearch || s.State.DesignPhase == models.DesignStylesheet {
		s.State.DesignPhase = models.DesignScreens
	}
	s.touch()
}

// ApproveScreens marks the screen review as approved and completes the
// design sub-phase.
func (s *Session) ApproveScreens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State.ScreensApproved = true
	s.State.DesignPhase = models.DesignComplete
	s.touch()
}

// RejectStyle records a rejected option, bumps the style iteration, and
// returns the new iteration count. The design sub-phase is unchanged: the
// competition re-runs within the same phase.
func (s *Session) RejectStyle(optionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if optionID != "" {
		s.State.RejectedStyles = append(s.State.RejectedStyles, optionID)
	}
	s.State.StyleIteration++
	s.touch()
	return s.State.StyleIteration
}

// Suspend stores the approval request and pauses the session.
func (s *Session) Suspend(req *models.ApprovalRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Approval = req
	s.State.Phase = models.PhasePaused
	s.touch()
}

// PendingApproval returns the approval request the session is paused on.
func (s *Session) PendingApproval() *models.ApprovalRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Approval == nil {
		return nil
	}
	approval := *s.Approval
	return &approval
}

// SetApprovalResponse stages a caller response for the next decision context
// and clears the stored request.
func (s *Session) SetApprovalResponse(resp models.ApprovalResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = &resp
	s.Approval = nil
	s.touch()
}

// TakeApprovalResponse returns the staged response and clears it. The
// response feeds exactly one decision context.
func (s *Session) TakeApprovalResponse() *models.ApprovalResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := s.reply
	s.reply = nil
	return resp
}

// SetSynthesis stores the final synthesis result.
func (s *Session) SetSynthesis(result *models.SynthesisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Synthesis = result
	s.touch()
}

// SetCancel stores the cancel function for the session's active run.
func (s *Session) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canc = cancel
}

// Cancel cancels the active run. Idempotent; reports whether a cancel
// function was present.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canc == nil {
		return false
	}
	s.canc()
	s.canc = nil
	s.State.Phase = models.PhaseFailed
	s.touch()
	return true
}
