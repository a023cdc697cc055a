package models

// ConflictType classifies a synthesis conflict.
type ConflictType string

// Conflict types.
const (
	ConflictFile    ConflictType = "file_conflict"
	ConflictRouting ConflictType = "routing_conflict"
)

// ConflictSeverity grades a synthesis conflict.
type ConflictSeverity string

// Conflict severities.
const (
	ConflictSeverityLow    ConflictSeverity = "low"
	ConflictSeverityMedium ConflictSeverity = "medium"
	ConflictSeverityHigh   ConflictSeverity = "high"
)

// Conflict is a contradiction detected across agent outputs.
type Conflict struct {
	Type        ConflictType     `json:"type"`
	Severity    ConflictSeverity `json:"severity"`
	Description string           `json:"description"`
	Path        string           `json:"path,omitempty"`
	Agents      []AgentType      `json:"agents,omitempty"`
}

// MergedArtifact is an artifact after last-writer-wins merging across outputs.
type MergedArtifact struct {
	Artifact
	ProducedBy  AgentType `json:"produced_by"`
	Overwritten bool      `json:"overwritten,omitempty"`
}

// SynthesisResult folds all agent outputs of a session into one summary.
type SynthesisResult struct {
	Summary          []string                  `json:"summary"`
	Conflicts        []Conflict                `json:"conflicts,omitempty"`
	NextSteps        []string                  `json:"next_steps,omitempty"`
	CompletionStatus int                       `json:"completion_status"`
	MergedArtifacts  map[string]MergedArtifact `json:"merged_artifacts,omitempty"`
	TotalTokens      int                       `json:"total_tokens"`
	TotalDurationMs  int                       `json:"total_duration_ms"`
}
