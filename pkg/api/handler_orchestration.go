package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/orchestrator"
)

// createOrchestrationHandler handles POST /api/v1/orchestrations.
// Runs the orchestration synchronously and returns the kernel Result: the
// synthesis for terminal runs, the pending approval for paused ones. Live
// progress is available on /api/v1/ws while the request is in flight.
func (s *Server) createOrchestrationHandler(c *gin.Context) {
	var req OrchestrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "input field is required"})
		return
	}

	result, err := s.orch.Orchestrate(c.Request.Context(), orchestrator.Request{
		ProjectID: req.ProjectID,
		UserInput: req.Input,
		Auth:      authFrom(c),
		Config:    req.overrides(),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// resumeOrchestrationHandler handles POST /api/v1/orchestrations/:id/resume.
// The body is the approval response for the checkpoint the session is paused
// on. Blocks until the loop suspends again or finishes.
func (s *Server) resumeOrchestrationHandler(c *gin.Context) {
	var resp models.ApprovalResponse
	if err := c.ShouldBindJSON(&resp); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := s.orch.Resume(c.Request.Context(), c.Param("id"), authFrom(c).TenantID, resp)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// getOrchestrationStateHandler handles GET /api/v1/orchestrations/:id/state.
func (s *Server) getOrchestrationStateHandler(c *gin.Context) {
	sess, err := s.sessions.GetForTenant(c.Param("id"), authFrom(c).TenantID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	snap := sess.Snapshot()
	c.JSON(http.StatusOK, &StateResponse{
		SessionID:  snap.ID,
		ProjectID:  snap.ProjectID,
		State:      snap.State,
		TokensUsed: snap.TokensUsed,
		Approval:   snap.Approval,
		Synthesis:  snap.Synthesis,
		LastError:  snap.LastError,
		StartedAt:  snap.StartedAt,
		UpdatedAt:  snap.UpdatedAt,
	})
}

// getOrchestrationTokensHandler handles GET /api/v1/orchestrations/:id/tokens.
func (s *Server) getOrchestrationTokensHandler(c *gin.Context) {
	sess, err := s.sessions.GetForTenant(c.Param("id"), authFrom(c).TenantID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	snap := sess.Snapshot()
	c.JSON(http.StatusOK, &TokensResponse{
		SessionID:      snap.ID,
		TokensUsed:     snap.TokensUsed,
		MaxTokenBudget: snap.Config.MaxTokenBudget,
	})
}

// cancelOrchestrationHandler handles DELETE /api/v1/orchestrations/:id.
// An active run observes the cancellation and finalizes itself; a paused
// session fails directly. Terminal sessions are not cancellable.
func (s *Server) cancelOrchestrationHandler(c *gin.Context) {
	sessionID := c.Param("id")

	cancelled, err := s.orch.Cancel(sessionID, authFrom(c).TenantID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session is not in a cancellable state"})
		return
	}

	c.JSON(http.StatusOK, &CancelResponse{
		SessionID: sessionID,
		Message:   "Session cancellation requested",
	})
}

// listOrchestrationsHandler handles GET /api/v1/orchestrations.
// Returns the tenant's sessions, newest first.
func (s *Server) listOrchestrationsHandler(c *gin.Context) {
	sessions := s.sessions.List(authFrom(c).TenantID)

	summaries := make([]OrchestrationSummary, 0, len(sessions))
	for _, snap := range sessions {
		summaries = append(summaries, OrchestrationSummary{
			SessionID:  snap.ID,
			ProjectID:  snap.ProjectID,
			Phase:      snap.State.Phase,
			TokensUsed: snap.TokensUsed,
			Iterations: snap.State.IterationCount,
			StartedAt:  snap.StartedAt,
			UpdatedAt:  snap.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, &OrchestrationListResponse{
		Sessions: summaries,
		Count:    len(summaries),
	})
}
