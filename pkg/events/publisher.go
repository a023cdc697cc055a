package events

import (
	"log/slog"
)

// Publisher publishes orchestration events for WebSocket delivery.
//
// Each public method accepts a specific typed payload struct — see
// payloads.go. Internally, payloads are routed to the appropriate channel
// (derived from sessionID) via the in-process Bus: recorded events land in
// the replay buffer, transient events are broadcast only.
type Publisher struct {
	bus *Bus
}

// NewPublisher creates a Publisher over the given bus.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus}
}

// PublishSessionStatus records a session.status event on the session channel
// and mirrors a transient copy to the global sessions channel. Both publishes
// are best-effort: if the recorded one fails, the transient one is still
// attempted. Returns the first error encountered (if any).
func (p *Publisher) PublishSessionStatus(sessionID string, payload SessionStatusPayload) error {
	payload.Type = EventTypeSessionStatus

	var firstErr error
	if err := p.bus.Publish(SessionChannel(sessionID), payload); err != nil {
		slog.Warn("Failed to publish session status to session channel",
			"session_id", sessionID, "phase", payload.Phase, "error", err)
		firstErr = err
	}

	if err := p.bus.Transient(GlobalSessionsChannel, payload); err != nil {
		slog.Warn("Failed to publish session status to global channel",
			"session_id", sessionID, "phase", payload.Phase, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// PublishAgentStatus records an agent.status event on the session channel.
// Fired once when an execution starts and once when it reaches a terminal
// status (completed, failed, blocked).
func (p *Publisher) PublishAgentStatus(sessionID string, payload AgentStatusPayload) error {
	payload.Type = EventTypeAgentStatus
	return p.bus.Publish(SessionChannel(sessionID), payload)
}

// PublishApprovalRequired records an approval.required event on the session
// channel. Fired when the loop suspends on a human checkpoint.
func (p *Publisher) PublishApprovalRequired(sessionID string, payload ApprovalRequiredPayload) error {
	payload.Type = EventTypeApprovalRequired
	return p.bus.Publish(SessionChannel(sessionID), payload)
}

// PublishSessionProgress broadcasts a session.progress transient event to
// the global sessions channel for activity panels. Not recorded.
func (p *Publisher) PublishSessionProgress(payload SessionProgressPayload) error {
	payload.Type = EventTypeSessionProgress
	return p.bus.Transient(GlobalSessionsChannel, payload)
}
