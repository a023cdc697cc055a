package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dpmorgan-gotribe/agentflow/pkg/version"
)

// healthHandler handles GET /health.
// Returns a minimal, safe response suitable for unauthenticated access. Only
// in-process components are reported; LLM providers are excluded so an
// upstream outage does not make the platform restart this service.
func (s *Server) healthHandler(c *gin.Context) {
	stats := s.cfg.Stats()

	connections := 0
	if s.connManager != nil {
		connections = s.connManager.ActiveConnections()
	}

	c.JSON(http.StatusOK, &HealthResponse{
		Status:  "healthy",
		Version: version.GitCommit,
		Configuration: ConfigurationStats{
			Skills:       stats.Skills,
			MCPServers:   stats.MCPServers,
			LLMProviders: stats.LLMProviders,
			BudgetRows:   stats.BudgetRows,
		},
		ActiveSessions:       s.sessions.Count(),
		WebSocketConnections: connections,
	})
}
