package models

import "time"

// AgentType identifies a specialised worker role.
type AgentType string

// Known agent types. The orchestrator itself is addressable as a pseudo-agent
// so the decision engine can signal special actions (COMPLETE, PAUSE, ...).
const (
	AgentAnalyst        AgentType = "analyst"
	AgentArchitect      AgentType = "architect"
	AgentUIDesigner     AgentType = "ui_designer"
	AgentProjectManager AgentType = "project_manager"
	AgentReviewer       AgentType = "reviewer"
	AgentFrontendDev    AgentType = "frontend_dev"
	AgentBackendDev     AgentType = "backend_dev"
	AgentTester         AgentType = "tester"
	AgentOrchestrator   AgentType = "orchestrator"
)

// KnownAgentTypes lists every dispatchable agent type (excludes orchestrator).
var KnownAgentTypes = []AgentType{
	AgentAnalyst,
	AgentArchitect,
	AgentUIDesigner,
	AgentProjectManager,
	AgentReviewer,
	AgentFrontendDev,
	AgentBackendDev,
	AgentTester,
}

// IsValid reports whether t is a recognised agent type (orchestrator included).
func (t AgentType) IsValid() bool {
	if t == AgentOrchestrator {
		return true
	}
	for _, known := range KnownAgentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AgentRequest is the immutable work unit handed to one agent dispatch.
type AgentRequest struct {
	ExecutionID     string         `json:"execution_id"`
	TaskAnalysis    string         `json:"task_analysis"`
	ContextItems    []ContextItem  `json:"context_items,omitempty"`
	PreviousOutputs []AgentOutput  `json:"previous_outputs,omitempty"`
	Constraints     map[string]any `json:"constraints,omitempty"`
	Auth            AuthContext    `json:"auth"`

	// StyleHint names the style package a ui_designer explores during the
	// style competition. Empty for screen-design dispatches.
	StyleHint string `json:"style_hint,omitempty"`
}

// AgentOutput is the result envelope every agent returns.
type AgentOutput struct {
	AgentID      AgentType      `json:"agent_id"`
	ExecutionID  string         `json:"execution_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Success      bool           `json:"success"`
	Result       map[string]any `json:"result,omitempty"`
	Artifacts    []Artifact     `json:"artifacts,omitempty"`
	RoutingHints RoutingHints   `json:"routing_hints"`
	Metrics      OutputMetrics  `json:"metrics"`
	Errors       []AgentError   `json:"errors,omitempty"`
}

// RoutingHints are the inter-agent signals carried inside each output and
// aggregated by the synthesiser.
type RoutingHints struct {
	SuggestNext   []AgentType `json:"suggest_next,omitempty"`
	SkipAgents    []AgentType `json:"skip_agents,omitempty"`
	NeedsApproval bool        `json:"needs_approval,omitempty"`
	HasFailures   bool        `json:"has_failures,omitempty"`
	IsComplete    bool        `json:"is_complete,omitempty"`
	BlockedBy     string      `json:"blocked_by,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

// OutputMetrics records the cost of one agent execution.
type OutputMetrics struct {
	TokensUsed   int `json:"tokens_used"`
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	DurationMs   int `json:"duration_ms"`
	RetryCount   int `json:"retry_count,omitempty"`
}

// AgentError is a recoverable error recorded inside an output envelope.
type AgentError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Artifact is a named content blob produced by an agent. Path is stored in
// sanitised form only.
type Artifact struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Path     string         `json:"path"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
