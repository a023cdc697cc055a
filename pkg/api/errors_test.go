package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/orchestrator"
	"github.com/dpmorgan-gotribe/agentflow/pkg/session"
)

func TestMapKernelError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "empty input maps to 400",
			err:        models.ErrEmptyInput,
			expectCode: http.StatusBadRequest,
			expectMsg:  "input must not be empty",
		},
		{
			name:       "oversized input maps to 413",
			err:        fmt.Errorf("%w: 30000 > 20000", models.ErrInputTooLong),
			expectCode: http.StatusRequestEntityTooLarge,
			expectMsg:  "maximum length",
		},
		{
			name:       "guardrail rejection maps to 400 with guardrail ids",
			err:        fmt.Errorf("%w: prompt_injection", orchestrator.ErrInputRejected),
			expectCode: http.StatusBadRequest,
			expectMsg:  "prompt_injection",
		},
		{
			name:       "invalid option maps to 400",
			err:        fmt.Errorf("%w: %q", orchestrator.ErrInvalidOption, "style_z"),
			expectCode: http.StatusBadRequest,
			expectMsg:  "not available",
		},
		{
			name:       "missing tenant maps to 401",
			err:        fmt.Errorf("auth context: %w", models.ErrMissingTenantID),
			expectCode: http.StatusUnauthorized,
			expectMsg:  "caller identity",
		},
		{
			name:       "not found maps to 404",
			err:        fmt.Errorf("%w: sess-1", session.ErrNotFound),
			expectCode: http.StatusNotFound,
			expectMsg:  "session not found",
		},
		{
			name:       "duplicate session maps to 409",
			err:        session.ErrExists,
			expectCode: http.StatusConflict,
			expectMsg:  "already exists",
		},
		{
			name:       "not paused maps to 409",
			err:        fmt.Errorf("%w: sess-1", session.ErrNotPaused),
			expectCode: http.StatusConflict,
			expectMsg:  "not waiting on an approval",
		},
		{
			name:       "unknown error maps to 500",
			err:        errors.New("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := mapKernelError(tt.err)
			assert.Equal(t, tt.expectCode, code)
			assert.Contains(t, msg, tt.expectMsg)
		})
	}
}
