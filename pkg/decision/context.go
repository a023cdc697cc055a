// Package decision proposes the next routing action for an orchestration
// session and guarantees the proposal conforms to the phase state machine.
// The LLM suggests; the gate enforcer corrects. Callers only ever see
// gate-checked decisions.
package decision

import (
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// ThinkingContext is everything the engine considers for one decision. It is
// assembled fresh each iteration from the session snapshot; the engine never
// touches the session itself.
type ThinkingContext struct {
	UserInput      string
	Classification models.TaskClassification

	Phase           models.Phase
	DesignPhase     models.DesignPhase
	IterationCount  int
	CompletedAgents []models.AgentType

	// RecentOutputs carries the tail of the session's outputs, newest last.
	RecentOutputs []models.AgentOutput

	StylePackages      []models.StylePackage
	RejectedStyles     []string
	SelectedStyleID    string
	StylesheetApproved bool
	ScreensApproved    bool
	StyleIteration     int

	// ApprovalResponse is present for exactly one decision after a resume.
	ApprovalResponse *models.ApprovalResponse

	// LastError is the most recent dispatch failure, if any.
	LastError string
}

// CompletedSet returns the completed agents as a lookup set.
func (tc ThinkingContext) CompletedSet() map[models.AgentType]bool {
	set := make(map[models.AgentType]bool, len(tc.CompletedAgents))
	for _, a := range tc.CompletedAgents {
		set[a] = true
	}
	return set
}

// StylePackageIDs returns the IDs of all known style packages in order.
func (tc ThinkingContext) StylePackageIDs() []string {
	ids := make([]string, 0, len(tc.StylePackages))
	for _, p := range tc.StylePackages {
		ids = append(ids, p.ID)
	}
	return ids
}
