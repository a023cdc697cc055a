// Package events provides real-time event delivery for orchestration
// sessions: an in-process bus fans typed payloads out to WebSocket clients
// and keeps a bounded per-channel replay buffer for catchup.
//
// ════════════════════════════════════════════════════════════════
// Event Lifecycle Patterns
// ════════════════════════════════════════════════════════════════
//
// Recorded events (session.status, agent.status, approval.required) are
// appended to the channel's replay buffer before broadcast. A client that
// subscribes late, or reconnects with a last_seq position, receives the
// missed events via catchup. The buffer is bounded; when a client has
// missed more events than the buffer holds, a catchup.overflow message
// tells it to do a full REST reload instead.
//
// Transient events (session.progress) are broadcast only. They exist for
// live display and are lost on disconnect; the recorded events carry all
// state a client needs to reconstruct the session.
//
// Channel layout:
//
//	session:{id}  — everything about one session (recorded + transient)
//	sessions      — global mirror of session.status plus progress ticks,
//	                consumed by list views that watch all sessions
//
// ════════════════════════════════════════════════════════════════
package events

// Recorded event types (replay buffer + broadcast).
const (
	// Session lifecycle: phase and token movement each loop iteration.
	EventTypeSessionStatus = "session.status"

	// Agent execution lifecycle: one event per started/finished execution.
	EventTypeAgentStatus = "agent.status"

	// A session suspended on a human checkpoint.
	EventTypeApprovalRequired = "approval.required"
)

// Agent execution status values (used in AgentStatusPayload.Status).
const (
	AgentStatusStarted   = "started"
	AgentStatusCompleted = "completed"
	AgentStatusFailed    = "failed"
	AgentStatusBlocked   = "blocked"
)

// Transient event types (broadcast only, no replay).
const (
	// Orchestration loop heartbeat for live progress display.
	EventTypeSessionProgress = "session.progress"
)

// GlobalSessionsChannel is the channel for cross-session status events.
// Session list views subscribe to this for real-time updates.
const GlobalSessionsChannel = "sessions"

// SessionChannel returns the channel name for a specific session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action  string `json:"action"`            // "subscribe", "unsubscribe", "catchup", "ping"
	Channel string `json:"channel,omitempty"` // Channel name (e.g., "session:abc-123")
	LastSeq *int   `json:"last_seq,omitempty"`
}
