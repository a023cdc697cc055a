// Package api exposes the orchestration kernel over HTTP. The surface is
// deliberately small: one resource (orchestrations) with synchronous create
// and resume, read endpoints for state and token usage, cancellation, and a
// WebSocket event stream for live watching.
//
// Create and resume block until the run reaches a terminal phase or suspends
// on an approval; the response body is the kernel Result either way. Clients
// that want live progress subscribe to /api/v1/ws instead of polling.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/events"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/orchestrator"
	"github.com/dpmorgan-gotribe/agentflow/pkg/session"
)

// Orchestrator is the kernel surface the HTTP layer drives. Satisfied by
// *orchestrator.Kernel.
type Orchestrator interface {
	Orchestrate(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	Resume(ctx context.Context, sessionID, tenantID string, resp models.ApprovalResponse) (*orchestrator.Result, error)
	Cancel(sessionID, tenantID string) (bool, error)
}

// Server is the HTTP server for the orchestration API.
type Server struct {
	cfg         *config.Config
	orch        Orchestrator
	sessions    *session.Manager
	connManager *events.ConnectionManager

	engine  *gin.Engine
	httpSrv *http.Server
}

// NewServer creates the API server. The session manager serves the read
// endpoints; all mutations go through the orchestrator.
func NewServer(cfg *config.Config, orch Orchestrator, sessions *session.Manager, connManager *events.ConnectionManager) *Server {
	s := &Server{
		cfg:         cfg,
		orch:        orch,
		sessions:    sessions,
		connManager: connManager,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	// Unauthenticated operational endpoints.
	r.GET("/health", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(s.authContext())
	{
		v1.POST("/orchestrations", s.createOrchestrationHandler)
		v1.GET("/orchestrations", s.listOrchestrationsHandler)
		v1.GET("/orchestrations/:id/state", s.getOrchestrationStateHandler)
		v1.GET("/orchestrations/:id/tokens", s.getOrchestrationTokensHandler)
		v1.POST("/orchestrations/:id/resume", s.resumeOrchestrationHandler)
		v1.DELETE("/orchestrations/:id", s.cancelOrchestrationHandler)
		v1.GET("/ws", s.wsHandler)
	}

	return r
}

// Handler returns the configured HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves HTTP on addr and blocks until the server stops. Create and
// resume hold their connection for the whole run, so no write timeout is set;
// the orchestrator's own session timeout bounds the work.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
