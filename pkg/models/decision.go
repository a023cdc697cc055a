package models

// DecisionAction is the routing action proposed by the decision engine.
type DecisionAction string

// Decision actions.
const (
	ActionDispatch         DecisionAction = "dispatch"
	ActionParallelDispatch DecisionAction = "parallel_dispatch"
	ActionApproval         DecisionAction = "approval"
	ActionWait             DecisionAction = "wait"
	ActionComplete         DecisionAction = "complete"
	ActionFail             DecisionAction = "fail"
)

// IsValid reports whether a is a recognised decision action.
func (a DecisionAction) IsValid() bool {
	switch a {
	case ActionDispatch, ActionParallelDispatch, ActionApproval, ActionWait, ActionComplete, ActionFail:
		return true
	}
	return false
}

// Target is one agent dispatch inside a decision.
type Target struct {
	AgentID     AgentType `json:"agentId"`
	Priority    int       `json:"priority,omitempty"`
	ExecutionID string    `json:"executionId,omitempty"`
	StyleHint   string    `json:"styleHint,omitempty"`
}

// Decision is the structured next step proposed each loop iteration.
// Targets is populated for dispatch and parallel_dispatch, ApprovalConfig for
// approval, Error for fail.
type Decision struct {
	Reasoning      string          `json:"reasoning"`
	Action         DecisionAction  `json:"action"`
	Targets        []Target        `json:"targets,omitempty"`
	ApprovalConfig *ApprovalConfig `json:"approvalConfig,omitempty"`
	Error          string          `json:"error,omitempty"`
	Summary        string          `json:"summary,omitempty"`

	// TokensUsed is the cost of producing this decision. Not part of the
	// wire format; filled in by the engine after the LLM call.
	TokensUsed int `json:"-"`
}

// ApprovalType distinguishes the two human checkpoints in the design flow.
type ApprovalType string

// Approval types.
const (
	ApprovalStyleSelection ApprovalType = "style_selection"
	ApprovalDesignReview   ApprovalType = "design_review"
)

// ApprovalConfig describes the approval a decision asks for.
type ApprovalConfig struct {
	Type          ApprovalType `json:"type"`
	Description   string       `json:"description,omitempty"`
	Options       []string     `json:"options,omitempty"`
	MaxIterations int          `json:"maxIterations,omitempty"`
}

// ApprovalRequest is persisted on a paused session and surfaced to the caller.
type ApprovalRequest struct {
	Type           ApprovalType `json:"type"`
	Description    string       `json:"description,omitempty"`
	Options        []string     `json:"options,omitempty"`
	IterationCount int          `json:"iteration_count"`
	MaxIterations  int          `json:"max_iterations"`
}

// ApprovalResponse is supplied by the caller when resuming a paused session.
type ApprovalResponse struct {
	Approved       bool   `json:"approved"`
	SelectedOption string `json:"selected_option,omitempty"`
	Feedback       string `json:"feedback,omitempty"`
}

// SpecialAction is an orchestrator-directed instruction parsed from a
// decision's reasoning when the target agent is the orchestrator itself.
type SpecialAction string

// Special actions.
const (
	SpecialNone     SpecialAction = ""
	SpecialComplete SpecialAction = "COMPLETE"
	SpecialPause    SpecialAction = "PAUSE"
	SpecialEscalate SpecialAction = "ESCALATE"
	SpecialAbort    SpecialAction = "ABORT"
)

// TaskClassification is the schema-validated result of the single
// classification call made before the decision loop starts.
type TaskClassification struct {
	TaskType       string   `json:"task_type"`
	RequiresDesign bool     `json:"requires_design"`
	Complexity     string   `json:"complexity"`
	Summary        string   `json:"summary,omitempty"`
	Languages      []string `json:"languages,omitempty"`
	Frameworks     []string `json:"frameworks,omitempty"`
	ProjectType    string   `json:"project_type,omitempty"`
}
