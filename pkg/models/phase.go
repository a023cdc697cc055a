package models

// Phase is the high-level orchestration phase of a session.
type Phase string

// Orchestration phases. Complete, Failed, and Paused are terminal for the
// loop; Paused sessions can be resumed with an approval response.
const (
	PhaseAnalyzing Phase = "analyzing"
	PhaseDesigning Phase = "designing"
	PhaseBuilding  Phase = "building"
	PhaseTesting   Phase = "testing"
	PhaseReviewing Phase = "reviewing"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhasePaused    Phase = "paused"
)

// IsTerminal reports whether the phase ends the decision loop.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhasePaused
}

// DesignPhase is the separately tracked design sub-phase.
type DesignPhase string

// Design sub-phases, advancing research → stylesheet → screens → complete.
// The only backward movement is a rejection re-entering the same phase.
const (
	DesignResearch   DesignPhase = "research"
	DesignStylesheet DesignPhase = "stylesheet"
	DesignScreens    DesignPhase = "screens"
	DesignComplete   DesignPhase = "complete"
)

// Next returns the design phase that follows p, or p itself when terminal.
func (p DesignPhase) Next() DesignPhase {
	switch p {
	case DesignResearch:
		return DesignStylesheet
	case DesignStylesheet:
		return DesignScreens
	case DesignScreens:
		return DesignComplete
	default:
		return p
	}
}

// StylePackage is a candidate visual design produced during the style
// competition and offered for user selection.
type StylePackage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PreviewPath string `json:"preview_path,omitempty"`
}
