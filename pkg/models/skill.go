package models

// SkillPriority orders skills for conflict resolution and budget application.
type SkillPriority string

// Skill priorities, highest first. Critical skills bypass token budgets.
const (
	PriorityCritical SkillPriority = "critical"
	PriorityHigh     SkillPriority = "high"
	PriorityMedium   SkillPriority = "medium"
	PriorityLow      SkillPriority = "low"
)

// Weight returns the numeric ordering weight of the priority. Unknown
// priorities sort last.
func (p SkillPriority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether p is a recognised priority.
func (p SkillPriority) IsValid() bool {
	return p.Weight() > 0
}

// SkillConditions restrict a skill to matching project contexts. Empty slices
// mean "applies to all".
type SkillConditions struct {
	Languages    []string `json:"languages,omitempty" yaml:"languages,omitempty"`
	Frameworks   []string `json:"frameworks,omitempty" yaml:"frameworks,omitempty"`
	ProjectTypes []string `json:"project_types,omitempty" yaml:"project_types,omitempty"`
}

// Skill is a reusable instruction block injected into agent prompts.
// Immutable once the registry is sealed.
type Skill struct {
	ID               string          `json:"id" yaml:"id"`
	Category         string          `json:"category" yaml:"category"`
	Tags             []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority         SkillPriority   `json:"priority" yaml:"priority"`
	TokenBudget      int             `json:"token_budget" yaml:"token_budget"`
	Instructions     string          `json:"instructions" yaml:"instructions"`
	Examples         []string        `json:"examples,omitempty" yaml:"examples,omitempty"`
	Requires         []string        `json:"requires,omitempty" yaml:"requires,omitempty"`
	Conflicts        []string        `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	ApplicableAgents []AgentType     `json:"applicable_agents,omitempty" yaml:"applicable_agents,omitempty"`
	Conditions       SkillConditions `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}
