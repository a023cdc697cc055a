package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// ApprovalInput contains data for an approval checkpoint notification.
type ApprovalInput struct {
	SessionID string
	ProjectID string
	Approval  *models.ApprovalRequest
}

// TerminalInput contains data for a terminal session notification.
type TerminalInput struct {
	SessionID     string
	ProjectID     string
	Phase         models.Phase // complete or failed
	CompletionPct int
	Summary       string
	ErrorMessage  string
	TokensUsed    int
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NotifyApprovalRequired announces a paused session waiting on a human
// checkpoint. Fail-open: errors are logged, never returned.
func (s *Service) NotifyApprovalRequired(ctx context.Context, input ApprovalInput) {
	if s == nil {
		return
	}

	blocks := BuildApprovalMessage(input, s.dashboardURL)
	if _, err := s.client.PostMessage(ctx, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("Failed to send approval notification",
			"session_id", input.SessionID,
			"error", err)
	}
}

// NotifyTerminal sends a terminal status notification.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyTerminal(ctx context.Context, input TerminalInput) {
	if s == nil {
		return
	}

	blocks := BuildTerminalMessage(input, s.dashboardURL)
	if _, err := s.client.PostMessage(ctx, blocks, "", 10*time.Second); err != nil {
		s.logger.Error("Failed to send terminal notification",
			"session_id", input.SessionID,
			"phase", input.Phase,
			"error", err)
	}
}
