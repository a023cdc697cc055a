// Package synthesis folds the outputs of an orchestration run into a single
// result: per-agent summaries, conflict detection, artifact merging, and a
// completion percentage.
package synthesis

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/schema"
)

// Synthesizer reduces agent outputs. It is stateless apart from the logger.
type Synthesizer struct {
	logger *slog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{logger: logger.With("component", "synthesizer")}
}

// Synthesize aggregates the outputs of one session into a SynthesisResult.
// Outputs are processed in the order they were recorded, which is decision
// order, so artifact merging is deterministic.
func (s *Synthesizer) Synthesize(outputs []models.AgentOutput) *models.SynthesisResult {
	result := &models.SynthesisResult{
		Summary:          s.summarize(outputs),
		NextSteps:        s.determineNextSteps(outputs),
		CompletionStatus: s.calculateCompletion(outputs),
		MergedArtifacts:  s.mergeArtifacts(outputs),
		TotalTokens:      TotalTokens(outputs),
		TotalDurationMs:  TotalDuration(outputs),
	}
	result.Conflicts = append(result.Conflicts, s.detectFileConflicts(outputs)...)
	result.Conflicts = append(result.Conflicts, s.detectRoutingConflicts(outputs)...)

	s.logger.Debug("Synthesized agent outputs",
		"outputs", len(outputs),
		"conflicts", len(result.Conflicts),
		"artifacts", len(result.MergedArtifacts),
		"completion", result.CompletionStatus)
	return result
}

// summarize produces one human-readable line per output.
func (s *Synthesizer) summarize(outputs []models.AgentOutput) []string {
	summary := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if out.Success {
			summary = append(summary, fmt.Sprintf("%s: Completed in %dms, %d artifacts, %d tokens",
				out.AgentID, out.Metrics.DurationMs, len(out.Artifacts), out.Metrics.TokensUsed))
			continue
		}
		summary = append(summary, fmt.Sprintf("%s: Failed: %s", out.AgentID, firstError(out)))
	}
	return summary
}

// detectFileConflicts reports every sanitised artifact path produced by two
// or more distinct agents.
func (s *Synthesizer) detectFileConflicts(outputs []models.AgentOutput) []models.Conflict {
	producers := make(map[string]map[models.AgentType]struct{})
	for _, out := range outputs {
		for _, artifact := range out.Artifacts {
			path := schema.SanitizePath(artifact.Path)
			if path == "" {
				continue
			}
			if producers[path] == nil {
				producers[path] = make(map[models.AgentType]struct{})
			}
			producers[path][out.AgentID] = struct{}{}
		}
	}

	var conflicts []models.Conflict
	for path, agents := range producers {
		if len(agents) < 2 {
			continue
		}
		conflicts = append(conflicts, models.Conflict{
			Type:        models.ConflictFile,
			Severity:    models.ConflictSeverityMedium,
			Description: fmt.Sprintf("artifact %q produced by %d agents", path, len(agents)),
			Path:        path,
			Agents:      sortedAgents(agents),
		})
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return conflicts
}

// detectRoutingConflicts reports agents that are simultaneously suggested
// and skipped anywhere across the outputs.
func (s *Synthesizer) detectRoutingConflicts(outputs []models.AgentOutput) []models.Conflict {
	suggested := make(map[models.AgentType]struct{})
	skipped := make(map[models.AgentType]struct{})
	for _, out := range outputs {
		for _, a := range out.RoutingHints.SuggestNext {
			suggested[a] = struct{}{}
		}
		for _, a := range out.RoutingHints.SkipAgents {
			skipped[a] = struct{}{}
		}
	}

	contested := make(map[models.AgentType]struct{})
	for a := range suggested {
		if _, ok := skipped[a]; ok {
			contested[a] = struct{}{}
		}
	}
	if len(contested) == 0 {
		return nil
	}
	agents := sortedAgents(contested)
	return []models.Conflict{{
		Type:        models.ConflictRouting,
		Severity:    models.ConflictSeverityLow,
		Description: fmt.Sprintf("%d agent(s) both suggested and skipped", len(agents)),
		Agents:      agents,
	}}
}

// determineNextSteps suggests follow-up work: the union of routing hints,
// approval and failure remediation, and finalization once everything reports
// complete.
func (s *Synthesizer) determineNextSteps(outputs []models.AgentOutput) []string {
	var steps []string
	seen := make(map[models.AgentType]struct{})
	needsApproval := false
	failed := 0
	allComplete := len(outputs) > 0

	for _, out := range outputs {
		for _, a := range out.RoutingHints.SuggestNext {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			steps = append(steps, string(a))
		}
		if out.RoutingHints.NeedsApproval {
			needsApproval = true
		}
		if !out.Success {
			failed++
		}
		if !out.RoutingHints.IsComplete {
			allComplete = false
		}
	}

	if needsApproval {
		steps = append(steps, "Obtain user approval")
	}
	if failed > 0 {
		steps = append(steps, fmt.Sprintf("Fix %d failed agent(s)", failed))
	}
	if allComplete {
		steps = append(steps, "finalize")
	}
	return steps
}

// calculateCompletion weights each output (1.0 success+complete, 0.5 success
// only, 0 failure) and returns a rounded percentage.
func (s *Synthesizer) calculateCompletion(outputs []models.AgentOutput) int {
	if len(outputs) == 0 {
		return 0
	}
	var completed float64
	for _, out := range outputs {
		switch {
		case out.Success && out.RoutingHints.IsComplete:
			completed += 1.0
		case out.Success:
			completed += 0.5
		}
	}
	return int(math.Round(100 * completed / float64(len(outputs))))
}

// mergeArtifacts merges artifacts keyed by sanitised path with
// last-writer-wins semantics. Replaced entries are marked overwritten.
func (s *Synthesizer) mergeArtifacts(outputs []models.AgentOutput) map[string]models.MergedArtifact {
	merged := make(map[string]models.MergedArtifact)
	for _, out := range outputs {
		for _, artifact := range out.Artifacts {
			path := schema.SanitizePath(artifact.Path)
			if path == "" {
				continue
			}
			entry := models.MergedArtifact{
				Artifact:   artifact,
				ProducedBy: out.AgentID,
			}
			entry.Path = path
			if prev, ok := merged[path]; ok {
				entry.Overwritten = true
				s.logger.Warn("Artifact overwritten during merge",
					"path", path,
					"previous_agent", prev.ProducedBy,
					"new_agent", out.AgentID)
			}
			merged[path] = entry
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// HasBlockingFailures reports whether any output failed or is explicitly
// blocked on another agent.
func HasBlockingFailures(outputs []models.AgentOutput) bool {
	for _, out := range outputs {
		if !out.Success || out.RoutingHints.BlockedBy != "" {
			return true
		}
	}
	return false
}

// IsComplete reports whether every output succeeded and declared itself
// complete. Empty output sets are not complete.
func IsComplete(outputs []models.AgentOutput) bool {
	if len(outputs) == 0 {
		return false
	}
	for _, out := range outputs {
		if !out.Success || !out.RoutingHints.IsComplete {
			return false
		}
	}
	return true
}

// TotalTokens sums token usage across outputs.
func TotalTokens(outputs []models.AgentOutput) int {
	total := 0
	for _, out := range outputs {
		total += out.Metrics.TokensUsed
	}
	return total
}

// TotalDuration sums execution duration across outputs in milliseconds.
func TotalDuration(outputs []models.AgentOutput) int {
	total := 0
	for _, out := range outputs {
		total += out.Metrics.DurationMs
	}
	return total
}

func firstError(out models.AgentOutput) string {
	if len(out.Errors) > 0 {
		return out.Errors[0].Message
	}
	return "unknown error"
}

func sortedAgents(set map[models.AgentType]struct{}) []models.AgentType {
	agents := make([]models.AgentType, 0, len(set))
	for a := range set {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i] < agents[j] })
	return agents
}
