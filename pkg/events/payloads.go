package events

import (
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// SessionStatusPayload is the payload for session.status events.
// Published on every phase transition and once per loop iteration so
// clients can track token spend without polling.
type SessionStatusPayload struct {
	Type        string             `json:"type"`       // always EventTypeSessionStatus
	SessionID   string             `json:"session_id"` // session UUID
	Phase       models.Phase       `json:"phase"`
	DesignPhase models.DesignPhase `json:"design_phase"`
	Iteration   int                `json:"iteration"`
	TokensUsed  int                `json:"tokens_used"`
	Timestamp   string             `json:"timestamp"` // RFC3339Nano
}

// AgentStatusPayload is the payload for agent.status events.
// One "started" event per dispatched execution, followed by a terminal
// event (completed, failed, or blocked when a guardrail rejected the output).
type AgentStatusPayload struct {
	Type        string           `json:"type"`       // always EventTypeAgentStatus
	SessionID   string           `json:"session_id"` // owning session UUID
	Agent       models.AgentType `json:"agent"`
	ExecutionID string           `json:"execution_id,omitempty"`
	Status      string           `json:"status"` // started, completed, failed, blocked
	DurationMs  int              `json:"duration_ms,omitempty"`
	TokensUsed  int              `json:"tokens_used,omitempty"`
	Detail      string           `json:"detail,omitempty"` // failure or block reason
	Timestamp   string           `json:"timestamp"`        // RFC3339Nano
}

// ApprovalRequiredPayload is the payload for approval.required events.
// Published when the loop suspends on a style_selection or design_review
// checkpoint; the client answers through the resume endpoint.
type ApprovalRequiredPayload struct {
	Type      string                  `json:"type"`       // always EventTypeApprovalRequired
	SessionID string                  `json:"session_id"` // suspended session UUID
	Approval  *models.ApprovalRequest `json:"approval"`
	Timestamp string                  `json:"timestamp"` // RFC3339Nano
}

// SessionProgressPayload is the payload for session.progress transient
// events. Broadcast to the global sessions channel for activity panels.
type SessionProgressPayload struct {
	Type      string       `json:"type"`       // always EventTypeSessionProgress
	SessionID string       `json:"session_id"` // active session UUID
	Phase     models.Phase `json:"phase"`
	Iteration int          `json:"iteration"`
	Message   string       `json:"message"`
	Timestamp string       `json:"timestamp"` // RFC3339Nano
}
