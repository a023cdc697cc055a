package config

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// largeSkillBudgetWarn is the per-skill token budget above which registration
// logs a warning.
const largeSkillBudgetWarn = 10_000

// SkillRegistry stores skills with inverted indices by category, applicable
// agent, and tag. Registration is validated; once sealed, all mutations fail
// with ErrRegistrySealed and reads are lock-free by contract (no concurrent
// writers can exist).
type SkillRegistry struct {
	mu     sync.RWMutex
	sealed bool

	skills     map[string]*models.Skill
	byCategory map[string][]string
	byAgent    map[models.AgentType][]string
	byTag      map[string][]string
}

// NewSkillRegistry creates an empty, unsealed skill registry.
func NewSkillRegistry() *SkillRegistry {
	return &SkillRegistry{
		skills:     make(map[string]*models.Skill),
		byCategory: make(map[string][]string),
		byAgent:    make(map[models.AgentType][]string),
		byTag:      make(map[string][]string),
	}
}

// Register validates and adds a skill. Duplicate IDs, self-dependencies, and
// overlapping requires/conflicts are hard errors. Oversized budgets and
// complex skills without examples log warnings but register fine.
func (r *SkillRegistry) Register(skill models.Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register skill %q: %w", skill.ID, ErrRegistrySealed)
	}
	if skill.ID == "" {
		return NewValidationError("skill", skill.ID, "id", fmt.Errorf("id is required"))
	}
	if _, exists := r.skills[skill.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSkill, skill.ID)
	}
	if !skill.Priority.IsValid() {
		return NewValidationError("skill", skill.ID, "priority", fmt.Errorf("invalid priority: %s", skill.Priority))
	}
	for _, req := range skill.Requires {
		if req == skill.ID {
			return fmt.Errorf("%w: %s", ErrSelfDependency, skill.ID)
		}
	}
	conflictSet := make(map[string]bool, len(skill.Conflicts))
	for _, c := range skill.Conflicts {
		conflictSet[c] = true
	}
	for _, req := range skill.Requires {
		if conflictSet[req] {
			return fmt.Errorf("%w: %s and %s", ErrDependencyConflict, skill.ID, req)
		}
	}

	if skill.TokenBudget > largeSkillBudgetWarn {
		slog.Warn("Skill has a very large token budget",
			"skill_id", skill.ID, "token_budget", skill.TokenBudget)
	}
	if len(skill.Requires) >= 3 && len(skill.Examples) == 0 {
		slog.Warn("Complex skill registered without examples", "skill_id", skill.ID)
	}

	stored := skill
	r.skills[skill.ID] = &stored
	r.byCategory[skill.Category] = append(r.byCategory[skill.Category], skill.ID)
	for _, agent := range skill.ApplicableAgents {
		r.byAgent[agent] = append(r.byAgent[agent], skill.ID)
	}
	for _, tag := range skill.Tags {
		r.byTag[tag] = append(r.byTag[tag], skill.ID)
	}
	return nil
}

// Seal freezes the registry. Dependency references are resolved and the
// requires-graph is checked to be a DAG; sealing fails on dangling references
// or cycles. Sealing twice is a no-op.
func (r *SkillRegistry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil
	}
	for id, skill := range r.skills {
		for _, req := range skill.Requires {
			if _, ok := r.skills[req]; !ok {
				return NewValidationError("skill", id, "requires",
					fmt.Errorf("%w: %s", ErrSkillNotFound, req))
			}
		}
	}
	if cycle := r.findCycle(); cycle != "" {
		return fmt.Errorf("%w: involving %s", ErrDependencyCycle, cycle)
	}
	r.sealed = true
	return nil
}

// findCycle runs an iterative depth-first traversal over the requires-graph
// with a three-colour visit set. Returns a skill on a cycle, or "".
func (r *SkillRegistry) findCycle() string {
	const (
		white = 0 // unvisited
		grey  = 1 // on stack
		black = 2 // done
	)
	colour := make(map[string]int, len(r.skills))

	ids := make([]string, 0, len(r.skills))
	for id := range r.skills {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string) string
	visit = func(id string) string {
		colour[id] = grey
		for _, req := range r.skills[id].Requires {
			switch colour[req] {
			case grey:
				return req
			case white:
				if hit := visit(req); hit != "" {
					return hit
				}
			}
		}
		colour[id] = black
		return ""
	}

	for _, id := range ids {
		if colour[id] == white {
			if hit := visit(id); hit != "" {
				return hit
			}
		}
	}
	return ""
}

// Sealed reports whether the registry has been sealed.
func (r *SkillRegistry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get returns the skill with the given ID.
func (r *SkillRegistry) Get(id string) (*models.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.skills[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}
	copied := *skill
	return &copied, nil
}

// Has reports whether a skill with the given ID exists.
func (r *SkillRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.skills[id]
	return ok
}

// Len returns the number of registered skills.
func (r *SkillRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// ForAgent returns copies of all skills applicable to the given agent type,
// in stable (sorted by ID) order.
func (r *SkillRegistry) ForAgent(agent models.AgentType) []models.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copySkills(r.byAgent[agent])
}

// ByCategory returns copies of all skills in the given category.
func (r *SkillRegistry) ByCategory(category string) []models.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copySkills(r.byCategory[category])
}

// ByTag returns copies of all skills carrying the given tag.
func (r *SkillRegistry) ByTag(tag string) []models.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copySkills(r.byTag[tag])
}

// All returns copies of every registered skill, sorted by ID.
func (r *SkillRegistry) All() []models.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.skills))
	for id := range r.skills {
		ids = append(ids, id)
	}
	return r.copySkills(ids)
}

func (r *SkillRegistry) copySkills(ids []string) []models.Skill {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	out := make([]models.Skill, 0, len(sorted))
	for _, id := range sorted {
		if skill, ok := r.skills[id]; ok {
			out = append(out, *skill)
		}
	}
	return out
}

// Reset unseals and empties the registry. Test use only.
func (r *SkillRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = false
	r.skills = make(map[string]*models.Skill)
	r.byCategory = make(map[string][]string)
	r.byAgent = make(map[models.AgentType][]string)
	r.byTag = make(map[string][]string)
}
