// Package models contains the shared domain types exchanged between the
// orchestration kernel, the decision engine, agents, and the synthesiser.
package models

import "fmt"

// AuthContext identifies the caller of an orchestration run. Every retrieval,
// cache key, and vector-store query is scoped by TenantID.
type AuthContext struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Validate returns an error unless all three identifiers are present.
func (a AuthContext) Validate() error {
	if a.TenantID == "" {
		return fmt.Errorf("auth context: %w", ErrMissingTenantID)
	}
	if a.UserID == "" {
		return fmt.Errorf("auth context: %w", ErrMissingUserID)
	}
	if a.SessionID == "" {
		return fmt.Errorf("auth context: %w", ErrMissingSessionID)
	}
	return nil
}
