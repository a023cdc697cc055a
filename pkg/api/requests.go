package api

import (
	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
)

// OrchestrationRequest is the HTTP request body for POST /api/v1/orchestrations.
// The override fields bound this run only; zero values keep the server-wide
// configuration.
type OrchestrationRequest struct {
	ProjectID string `json:"project_id,omitempty"`
	Input     string `json:"input" binding:"required"`

	MaxIterations  int `json:"max_iterations,omitempty"`
	MaxTokenBudget int `json:"max_token_budget,omitempty"`
	TimeoutMs      int `json:"timeout_ms,omitempty"`
}

// overrides returns the per-run orchestrator config, or nil when the request
// carries none.
func (r *OrchestrationRequest) overrides() *config.OrchestratorConfig {
	if r.MaxIterations == 0 && r.MaxTokenBudget == 0 && r.TimeoutMs == 0 {
		return nil
	}
	return &config.OrchestratorConfig{
		MaxIterations:  r.MaxIterations,
		MaxTokenBudget: r.MaxTokenBudget,
		TimeoutMs:      r.TimeoutMs,
	}
}
