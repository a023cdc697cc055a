package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, &stubOrchestrator{})

	// No identity headers: /health is unauthenticated.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res HealthResponse
	decodeBody(t, rec, &res)
	assert.Equal(t, "healthy", res.Status)
	assert.NotEmpty(t, res.Version)
	assert.Zero(t, res.ActiveSessions)
	assert.Zero(t, res.WebSocketConnections)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &stubOrchestrator{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentflow_sessions_started_total")
}
