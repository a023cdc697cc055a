package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/orchestrator"
)

func TestAuthContextRequiresTenant(t *testing.T) {
	called := false
	s, _ := newTestServer(t, &stubOrchestrator{
		orchestrateFn: func(context.Context, orchestrator.Request) (*orchestrator.Result, error) {
			called = true
			return &orchestrator.Result{}, nil
		},
	})

	rec := doJSONAs(t, s, http.MethodPost, "/api/v1/orchestrations",
		OrchestrationRequest{Input: "build something"}, "", "user-1")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var res ErrorResponse
	decodeBody(t, rec, &res)
	assert.Contains(t, res.Error, "X-Tenant-ID")
	assert.False(t, called, "handler must not run without a tenant")
}

func TestAuthContextDefaultsUser(t *testing.T) {
	var got models.AuthContext
	s, _ := newTestServer(t, &stubOrchestrator{
		orchestrateFn: func(_ context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
			got = req.Auth
			return &orchestrator.Result{SessionID: req.Auth.SessionID}, nil
		},
	})

	rec := doJSONAs(t, s, http.MethodPost, "/api/v1/orchestrations",
		OrchestrationRequest{Input: "build something"}, "tenant-a", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant-a", got.TenantID)
	assert.Equal(t, anonymousUser, got.UserID)
}

func TestAuthContextGeneratesSessionIDs(t *testing.T) {
	var ids []string
	s, _ := newTestServer(t, &stubOrchestrator{
		orchestrateFn: func(_ context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
			ids = append(ids, req.Auth.SessionID)
			return &orchestrator.Result{SessionID: req.Auth.SessionID}, nil
		},
	})

	for i := 0; i < 2; i++ {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/orchestrations",
			OrchestrationRequest{Input: "build something"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEmpty(t, ids[1])
	assert.NotEqual(t, ids[0], ids[1], "every run gets a fresh session id")
}
