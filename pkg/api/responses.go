package api

import (
	"time"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/session"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StateResponse is returned by GET /api/v1/orchestrations/:id/state. Approval
// is set while the session is paused, Synthesis once it is terminal.
type StateResponse struct {
	SessionID  string                  `json:"session_id"`
	ProjectID  string                  `json:"project_id,omitempty"`
	State      session.State           `json:"state"`
	TokensUsed int                     `json:"tokens_used"`
	Approval   *models.ApprovalRequest `json:"approval,omitempty"`
	Synthesis  *models.SynthesisResult `json:"synthesis,omitempty"`
	LastError  string                  `json:"last_error,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// TokensResponse is returned by GET /api/v1/orchestrations/:id/tokens.
type TokensResponse struct {
	SessionID      string `json:"session_id"`
	TokensUsed     int    `json:"tokens_used"`
	MaxTokenBudget int    `json:"max_token_budget"`
}

// CancelResponse is returned by DELETE /api/v1/orchestrations/:id.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// OrchestrationSummary is one row of GET /api/v1/orchestrations.
type OrchestrationSummary struct {
	SessionID  string       `json:"session_id"`
	ProjectID  string       `json:"project_id,omitempty"`
	Phase      models.Phase `json:"phase"`
	TokensUsed int          `json:"tokens_used"`
	Iterations int          `json:"iterations"`
	StartedAt  time.Time    `json:"started_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// OrchestrationListResponse is returned by GET /api/v1/orchestrations.
type OrchestrationListResponse struct {
	Sessions []OrchestrationSummary `json:"sessions"`
	Count    int                    `json:"count"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status               string             `json:"status"`
	Version              string             `json:"version"`
	Configuration        ConfigurationStats `json:"configuration"`
	ActiveSessions       int                `json:"active_sessions"`
	WebSocketConnections int                `json:"websocket_connections"`
}

// ConfigurationStats contains counts of loaded configuration items.
type ConfigurationStats struct {
	Skills       int `json:"skills"`
	MCPServers   int `json:"mcp_servers"`
	LLMProviders int `json:"llm_providers"`
	BudgetRows   int `json:"budget_rows"`
}
