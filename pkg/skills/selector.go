// Package skills selects and formats the skill set injected into an agent's
// prompt: applicability filtering, dependency closure, conflict resolution,
// and token-budget application over the sealed skill registry.
package skills

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// Criteria describes what the caller needs skills for.
type Criteria struct {
	AgentType   models.AgentType
	Category    string
	Tags        []string
	Language    string
	Framework   string
	ProjectType string
	RequiredIDs []string
	ExcludeIDs  []string

	// MaxTokens caps the selection budget. Zero means unlimited; critical
	// skills are included regardless of any cap.
	MaxTokens int
}

// Exclusion records why a candidate skill was left out.
type Exclusion struct {
	SkillID string `json:"skill_id"`
	Reason  string `json:"reason"`
}

// Selection is the result of Select: the ordered skill set plus accounting.
type Selection struct {
	Skills      []models.Skill
	TotalTokens int
	Excluded    []Exclusion
}

// Selector chooses skills from the sealed registry.
type Selector struct {
	registry *config.SkillRegistry
	logger   *slog.Logger
}

// NewSelector creates a selector over the given registry.
func NewSelector(registry *config.SkillRegistry, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{registry: registry, logger: logger}
}

// Select runs the selection algorithm:
//
//  1. start from skills applicable to the agent type
//  2. filter by exclusions, category, tags, and conditions
//  3. add explicit required IDs present in the registry
//  4. include dependencies depth-first before each requiring skill
//  5. resolve conflicts greedily in priority order
//  6. apply the token budget; critical skills always make the cut
func (s *Selector) Select(criteria Criteria) Selection {
	var sel Selection

	candidates := s.registry.ForAgent(criteria.AgentType)
	exclude := make(map[string]bool, len(criteria.ExcludeIDs))
	for _, id := range criteria.ExcludeIDs {
		exclude[id] = true
	}

	filtered := make([]models.Skill, 0, len(candidates))
	for _, skill := range candidates {
		if exclude[skill.ID] {
			sel.Excluded = append(sel.Excluded, Exclusion{skill.ID, "explicitly excluded"})
			continue
		}
		if criteria.Category != "" && skill.Category != criteria.Category {
			sel.Excluded = append(sel.Excluded, Exclusion{skill.ID, fmt.Sprintf("category %s does not match %s", skill.Category, criteria.Category)})
			continue
		}
		if len(criteria.Tags) > 0 && !hasAnyTag(skill.Tags, criteria.Tags) {
			sel.Excluded = append(sel.Excluded, Exclusion{skill.ID, "no matching tag"})
			continue
		}
		if reason := conditionMismatch(skill.Conditions, criteria); reason != "" {
			sel.Excluded = append(sel.Excluded, Exclusion{skill.ID, reason})
			continue
		}
		filtered = append(filtered, skill)
	}

	// Explicit requirements join the pool even if applicability filtered
	// them out; unknown IDs are recorded, not errors.
	inPool := make(map[string]bool, len(filtered))
	for _, skill := range filtered {
		inPool[skill.ID] = true
	}
	for _, id := range criteria.RequiredIDs {
		if inPool[id] {
			continue
		}
		skill, err := s.registry.Get(id)
		if err != nil {
			sel.Excluded = append(sel.Excluded, Exclusion{id, "required skill not in registry"})
			continue
		}
		filtered = append(filtered, *skill)
		inPool[id] = true
	}

	// Dependency closure: depth-first, prerequisites ahead of dependents.
	// The registry guarantees the requires-graph is a DAG at seal time.
	ordered := s.withDependencies(filtered, &sel)

	// Conflict resolution in priority order (stable on registration order
	// within equal priority, which copySkills normalises to ID order).
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Weight() > ordered[j].Priority.Weight()
	})

	included := make([]models.Skill, 0, len(ordered))
	includedIDs := make(map[string]bool, len(ordered))
	conflictsWithIncluded := func(skill models.Skill) string {
		for _, c := range skill.Conflicts {
			if includedIDs[c] {
				return c
			}
		}
		for _, already := range included {
			for _, c := range already.Conflicts {
				if c == skill.ID {
					return already.ID
				}
			}
		}
		return ""
	}
	for _, skill := range ordered {
		if includedIDs[skill.ID] {
			continue
		}
		if other := conflictsWithIncluded(skill); other != "" {
			sel.Excluded = append(sel.Excluded, Exclusion{skill.ID, fmt.Sprintf("conflicts with %s", other)})
			continue
		}
		included = append(included, skill)
		includedIDs[skill.ID] = true
	}

	// Budget application. Critical skills are unconditional: the selection
	// may exceed MaxTokens by exactly their cost.
	final := included[:0:0]
	budgetUsed := 0
	for _, skill := range included {
		if skill.Priority == models.PriorityCritical {
			final = append(final, skill)
			sel.TotalTokens += skill.TokenBudget
			continue
		}
		if criteria.MaxTokens > 0 && budgetUsed+skill.TokenBudget > criteria.MaxTokens {
			sel.Excluded = append(sel.Excluded, Exclusion{skill.ID, "over token budget"})
			continue
		}
		budgetUsed += skill.TokenBudget
		sel.TotalTokens += skill.TokenBudget
		final = append(final, skill)
	}

	sel.Skills = final
	s.logger.Debug("Skill selection complete",
		"agent_type", criteria.AgentType,
		"selected", len(final),
		"excluded", len(sel.Excluded),
		"tokens", sel.TotalTokens)
	return sel
}

// withDependencies expands the pool with required skills, depth-first so
// every prerequisite precedes its dependents in the returned order.
func (s *Selector) withDependencies(pool []models.Skill, sel *Selection) []models.Skill {
	var ordered []models.Skill
	visited := make(map[string]bool, len(pool))

	var visit func(skill models.Skill)
	visit = func(skill models.Skill) {
		if visited[skill.ID] {
			return
		}
		visited[skill.ID] = true
		for _, reqID := range skill.Requires {
			req, err := s.registry.Get(reqID)
			if err != nil {
				// Unreachable after Seal, but selection must not panic.
				sel.Excluded = append(sel.Excluded, Exclusion{reqID, "dependency missing from registry"})
				continue
			}
			visit(*req)
		}
		ordered = append(ordered, skill)
	}

	for _, skill := range pool {
		visit(skill)
	}
	return ordered
}

func hasAnyTag(skillTags, wanted []string) bool {
	for _, w := range wanted {
		for _, t := range skillTags {
			if t == w {
				return true
			}
		}
	}
	return false
}

// conditionMismatch returns a reason when the skill declares conditions the
// criteria do not satisfy. Empty condition lists match everything.
func conditionMismatch(cond models.SkillConditions, criteria Criteria) string {
	if len(cond.Languages) > 0 && !containsFold(cond.Languages, criteria.Language) {
		return fmt.Sprintf("language %q not in skill conditions", criteria.Language)
	}
	if len(cond.Frameworks) > 0 && !containsFold(cond.Frameworks, criteria.Framework) {
		return fmt.Sprintf("framework %q not in skill conditions", criteria.Framework)
	}
	if len(cond.ProjectTypes) > 0 && !containsFold(cond.ProjectTypes, criteria.ProjectType) {
		return fmt.Sprintf("project type %q not in skill conditions", criteria.ProjectType)
	}
	return ""
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
