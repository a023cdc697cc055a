package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"k8s.io/utils/clock"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

var (
	// ErrNotFound is returned when a session ID is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned when a session ID is already registered.
	ErrExists = errors.New("session already exists")
	// ErrNotPaused is returned when a resume targets a session that is not
	// waiting on an approval.
	ErrNotPaused = errors.New("session is not paused")
)

// Manager is the process-wide session registry. Sessions are keyed by the
// caller-supplied session ID from the auth context, which is what makes
// resume and cancel addressable across requests.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	clk      clock.PassiveClock
}

// NewManager creates an empty session registry.
func NewManager(clk clock.PassiveClock) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		clk:      clk,
	}
}

// Create registers a new session for the given run. The session ID is taken
// from the auth context so callers can address the run immediately.
func (m *Manager) Create(projectID, userInput string, auth models.AuthContext, cfg config.OrchestratorConfig) (*Session, error) {
	if err := auth.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth context: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[auth.SessionID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, auth.SessionID)
	}

	now := m.clk.Now()
	sess := &Session{
		ID:        auth.SessionID,
		ProjectID: projectID,
		Auth:      auth,
		UserInput: userInput,
		Config:    cfg,
		State: State{
			Phase:       models.PhaseAnalyzing,
			DesignPhase: models.DesignResearch,
		},
		StartedAt: now,
		UpdatedAt: now,
		clk:       m.clk,
	}
	m.sessions[auth.SessionID] = sess
	return sess, nil
}

// Get retrieves the live session for the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// GetForTenant returns the session only if it belongs to the tenant.
// Cross-tenant lookups report not-found rather than existence.
func (m *Manager) GetForTenant(id, tenantID string) (*Session, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.Auth.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// Cancel cancels the session's active run. Reports whether anything was
// cancelled; unknown IDs return false.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return sess.Cancel()
}

// Delete removes the session from the registry, cancelling it first.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		sess.Cancel()
	}
}

// List returns snapshots of the tenant's sessions, newest first with ID as
// tiebreaker.
func (m *Manager) List(tenantID string) []Session {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		live = append(live, sess)
	}
	m.mu.RUnlock()

	out := make([]Session, 0, len(live))
	for _, sess := range live {
		snap := sess.Snapshot()
		if snap.Auth.TenantID != tenantID {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
