// Package metrics defines Prometheus metrics for the orchestration kernel.
//
// All metrics are registered with the default registry so they are served
// by the /metrics endpoint without extra wiring.
//
// Metric naming follows Prometheus conventions:
//   - agentflow_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SessionsStartedTotal counts orchestration sessions accepted for processing.
	SessionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentflow_sessions_started_total",
			Help: "Total number of orchestration sessions started.",
		},
	)

	// SessionsTerminalTotal counts sessions reaching a terminal phase.
	SessionsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentflow_sessions_terminal_total",
			Help: "Total number of sessions by terminal phase.",
		},
		[]string{"phase"},
	)

	// SessionDurationSeconds is a histogram of wall-clock session duration.
	SessionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentflow_session_duration_seconds",
			Help:    "Duration of orchestration sessions in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
	)

	// DecisionsTotal counts decision loop outcomes by action.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentflow_decisions_total",
			Help: "Total decisions produced by the decision engine, by action.",
		},
		[]string{"action"},
	)

	// GateCorrectionsTotal counts decisions rewritten by phase gates.
	GateCorrectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentflow_gate_corrections_total",
			Help: "Total decisions corrected by phase gate enforcement.",
		},
	)

	// AgentExecutionsTotal counts agent executions by agent and terminal status.
	AgentExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentflow_agent_executions_total",
			Help: "Total agent executions by agent and status.",
		},
		[]string{"agent", "status"},
	)

	// AgentDurationSeconds is a histogram of agent execution duration by agent.
	AgentDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentflow_agent_duration_seconds",
			Help:    "Duration of agent executions in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"agent"},
	)

	// TokensUsedTotal counts tokens charged against session budgets.
	TokensUsedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentflow_tokens_used_total",
			Help: "Total tokens consumed, by consumer.",
		},
		[]string{"consumer"},
	)

	// ApprovalsTotal counts approval checkpoint traffic by type and outcome.
	ApprovalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentflow_approvals_total",
			Help: "Total approval checkpoints by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// GuardrailBlocksTotal counts content blocked by guardrails.
	GuardrailBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentflow_guardrail_blocks_total",
			Help: "Total content blocked by guardrails, by direction.",
		},
		[]string{"direction"},
	)

	// ActiveSessions is the number of sessions currently in a non-terminal phase.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentflow_active_sessions",
			Help: "Number of orchestration sessions currently active.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStartedTotal,
		SessionsTerminalTotal,
		SessionDurationSeconds,
		DecisionsTotal,
		GateCorrectionsTotal,
		AgentExecutionsTotal,
		AgentDurationSeconds,
		TokensUsedTotal,
		ApprovalsTotal,
		GuardrailBlocksTotal,
		ActiveSessions,
	)
}

// Approval outcomes.
const (
	ApprovalRequested = "requested"
	ApprovalApproved  = "approved"
	ApprovalRejected  = "rejected"
)

// RecordSessionStarted records an accepted session.
func RecordSessionStarted() {
	SessionsStartedTotal.Inc()
	ActiveSessions.Inc()
}

// RecordSessionTerminal records a session reaching a terminal phase.
func RecordSessionTerminal(phase string, duration time.Duration) {
	SessionsTerminalTotal.WithLabelValues(phase).Inc()
	SessionDurationSeconds.Observe(duration.Seconds())
	ActiveSessions.Dec()
}

// RecordSessionSuspended records a session pausing on a human checkpoint.
// Paused sessions still count as active: the gauge tracks every session
// between start and terminal, so a cancel-while-paused decrements it exactly
// once through RecordSessionTerminal.
func RecordSessionSuspended(approvalType string) {
	ApprovalsTotal.WithLabelValues(approvalType, ApprovalRequested).Inc()
}

// RecordSessionResumed records an approval response re-entering the loop.
func RecordSessionResumed(approvalType string, approved bool) {
	outcome := ApprovalApproved
	if !approved {
		outcome = ApprovalRejected
	}
	ApprovalsTotal.WithLabelValues(approvalType, outcome).Inc()
}

// RecordDecision records one decision loop outcome.
func RecordDecision(action string, tokens int) {
	DecisionsTotal.WithLabelValues(action).Inc()
	if tokens > 0 {
		TokensUsedTotal.WithLabelValues("decision_engine").Add(float64(tokens))
	}
}

// RecordGateCorrection records a decision rewritten by phase gate enforcement.
func RecordGateCorrection() {
	GateCorrectionsTotal.Inc()
}

// RecordAgentExecution records one finished agent execution.
func RecordAgentExecution(agent, status string, duration time.Duration, tokens int) {
	AgentExecutionsTotal.WithLabelValues(agent, status).Inc()
	AgentDurationSeconds.WithLabelValues(agent).Observe(duration.Seconds())
	if tokens > 0 {
		TokensUsedTotal.WithLabelValues(agent).Add(float64(tokens))
	}
}

// RecordGuardrailBlock records content blocked by a guardrail chain.
func RecordGuardrailBlock(direction string) {
	GuardrailBlocksTotal.WithLabelValues(direction).Inc()
}
