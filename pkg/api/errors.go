package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/orchestrator"
	"github.com/dpmorgan-gotribe/agentflow/pkg/session"
)

// mapKernelError maps kernel and session errors to an HTTP status and a
// client-safe message. Guardrail rejections keep their message: it names
// guardrail IDs, never the content that tripped them.
func mapKernelError(err error) (int, string) {
	if errors.Is(err, models.ErrEmptyInput) {
		return http.StatusBadRequest, "input must not be empty"
	}
	if errors.Is(err, models.ErrInputTooLong) {
		return http.StatusRequestEntityTooLarge, "input exceeds the maximum length"
	}
	if errors.Is(err, orchestrator.ErrInputRejected) {
		return http.StatusBadRequest, err.Error()
	}
	if errors.Is(err, orchestrator.ErrInvalidOption) {
		return http.StatusBadRequest, err.Error()
	}
	if errors.Is(err, models.ErrMissingTenantID) ||
		errors.Is(err, models.ErrMissingUserID) ||
		errors.Is(err, models.ErrMissingSessionID) {
		return http.StatusUnauthorized, "caller identity is incomplete"
	}
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound, "session not found"
	}
	if errors.Is(err, session.ErrExists) {
		return http.StatusConflict, "session already exists"
	}
	if errors.Is(err, session.ErrNotPaused) {
		return http.StatusConflict, "session is not waiting on an approval"
	}

	// Unexpected error
	slog.Error("Unexpected kernel error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}

// abortWithError writes the mapped error response and stops the handler chain.
func abortWithError(c *gin.Context, err error) {
	status, msg := mapKernelError(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}
