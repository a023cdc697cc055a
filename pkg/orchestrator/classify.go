package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/schema"
)

const classifyMaxTokens = 1024

const classifyInstructions = `You classify a software build request before any work is routed. Respond with a single JSON object and nothing else:

{
  "task_type": "feature | bugfix | refactor | design | research | migration",
  "requires_design": true,
  "complexity": "simple | medium | complex",
  "summary": "one sentence restating the request",
  "languages": ["typescript"],
  "frameworks": ["react"],
  "project_type": "web_app | api | cli | library | mobile"
}

requires_design is true only when the request needs visual design work: pages, screens, layouts, styling. Refactors, bug fixes, and pure API work do not.`

var (
	classifyTaskTypes    = []string{"feature", "bugfix", "refactor", "design", "research", "migration"}
	classifyComplexities = []string{"simple", "medium", "complex"}
	classifyProjectTypes = []string{"web_app", "api", "cli", "library", "mobile"}

	// designTermsRe matches whole words that signal visual design work.
	designTermsRe = regexp.MustCompile(`(?i)\b(design|ui|ux|page|pages|screen|screens|landing|website|frontend|dashboard|interface|style|styles|styling|mockup|layout)\b`)
)

// classify makes the single classification call that precedes the decision
// loop. Provider and parse failures degrade to the keyword heuristic so a
// session always starts with a usable classification.
func (k *Kernel) classify(ctx context.Context, userInput string, logger *slog.Logger) (models.TaskClassification, int) {
	resp, err := k.provider.Complete(ctx, llm.CompletionRequest{
		System:    classifyInstructions,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: userInput}},
		Model:     k.model,
		MaxTokens: classifyMaxTokens,
	})
	if err != nil {
		logger.Warn("Classification call failed, using heuristic", "error", err)
		return heuristicClassification(userInput), 0
	}

	tokens := resp.Usage.Total()
	if tokens == 0 {
		tokens = models.EstimateTokens(classifyInstructions) +
			models.EstimateTokens(userInput) +
			models.EstimateTokens(resp.Content)
	}

	tc, err := parseClassification(resp.Content)
	if err != nil {
		logger.Warn("Classification parse failed, using heuristic", "error", err)
		return heuristicClassification(userInput), tokens
	}
	return tc, tokens
}

// parseClassification reads the classification leniently: the JSON object is
// located anywhere in the text, field-coerced, and enum values normalised
// with defaults for anything unrecognised.
func parseClassification(text string) (models.TaskClassification, error) {
	raw, err := schema.ExtractJSONMap(text)
	if err != nil {
		return models.TaskClassification{}, fmt.Errorf("classification: %w", err)
	}
	m, ok := schema.Coerce(raw).(map[string]any)
	if !ok {
		return models.TaskClassification{}, fmt.Errorf("classification: not a JSON object")
	}

	tc := models.TaskClassification{
		TaskType:    schema.LenientEnum(field(m, "task_type", "taskType"), classifyTaskTypes, "feature"),
		Complexity:  schema.LenientEnum(field(m, "complexity"), classifyComplexities, "medium"),
		ProjectType: schema.LenientEnum(field(m, "project_type", "projectType"), classifyProjectTypes, ""),
	}
	if b, ok := field(m, "requires_design", "requiresDesign").(bool); ok {
		tc.RequiresDesign = b
	}
	if s, ok := field(m, "summary").(string); ok {
		tc.Summary = strings.TrimSpace(s)
	}
	tc.Languages = stringList(field(m, "languages"))
	tc.Frameworks = stringList(field(m, "frameworks"))
	if tc.TaskType == "design" {
		tc.RequiresDesign = true
	}
	return tc, nil
}

// heuristicClassification is the deterministic fallback when the
// classification call is unusable. It keeps sessions moving: a refactor
// stays out of the design flow, a landing page goes in.
func heuristicClassification(userInput string) models.TaskClassification {
	lower := strings.ToLower(userInput)

	taskType := "feature"
	switch {
	case strings.Contains(lower, "refactor"):
		taskType = "refactor"
	case strings.Contains(lower, "migrat"):
		taskType = "migration"
	case strings.Contains(lower, "fix") || strings.Contains(lower, "bug"):
		taskType = "bugfix"
	case strings.Contains(lower, "research") || strings.Contains(lower, "investigate"):
		taskType = "research"
	}

	requiresDesign := false
	if taskType == "feature" && designTermsRe.MatchString(userInput) {
		requiresDesign = true
	}

	complexity := "medium"
	switch {
	case len(userInput) < 120:
		complexity = "simple"
	case len(userInput) > 800:
		complexity = "complex"
	}

	return models.TaskClassification{
		TaskType:       taskType,
		RequiresDesign: requiresDesign,
		Complexity:     complexity,
	}
}

// field returns the first present key, trying the given spellings in order.
func field(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
