package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/schema"
)

// Envelope is the parsed shape of a worker's LLM answer.
type Envelope struct {
	Result    map[string]any
	Artifacts []models.Artifact
	Hints     models.RoutingHints
}

// ParseEnvelope extracts the output envelope from raw LLM text: locate the
// JSON, coerce field types, sanitise artifact paths, normalise agent names
// in routing hints. Artifacts without an ID get one from newID.
func ParseEnvelope(content string, newID func() string) (*Envelope, error) {
	m, err := schema.ExtractJSONMap(content)
	if err != nil {
		return nil, fmt.Errorf("agent output: %w", err)
	}
	coerced, ok := schema.Coerce(m).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("agent output: not a JSON object")
	}

	env := &Envelope{
		Artifacts: parseArtifacts(envelopeField(coerced, "artifacts"), newID),
		Hints:     parseHints(envelopeField(coerced, "routingHints", "routing_hints", "hints")),
	}

	if result, ok := envelopeField(coerced, "result", "output").(map[string]any); ok {
		env.Result = result
	} else {
		// No envelope wrapper: treat the remaining fields as the result.
		env.Result = make(map[string]any, len(coerced))
		for k, v := range coerced {
			switch foldedKey(k) {
			case "artifacts", "routinghints", "hints":
				continue
			}
			env.Result[k] = v
		}
	}
	return env, nil
}

// parseArtifacts reads the artifact list, sanitising every path and dropping
// entries whose path sanitises to nothing.
func parseArtifacts(value any, newID func() string) []models.Artifact {
	var artifacts []models.Artifact
	for _, item := range schema.LenientArray(value) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		path := schema.LenientPath(envelopeField(obj, "path", "file", "filename"), "")
		if path == "" {
			continue
		}
		artifact := models.Artifact{
			ID:      schema.LenientID(envelopeField(obj, "id"), ""),
			Type:    schema.LenientEnum(envelopeField(obj, "type"), []string{"file", "document", "config", "stylesheet", "preview"}, "file"),
			Path:    path,
			Content: stringValue(envelopeField(obj, "content", "body")),
		}
		if artifact.ID == "" {
			artifact.ID = newID()
		}
		if meta, ok := envelopeField(obj, "metadata", "meta").(map[string]any); ok {
			artifact.Metadata = meta
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts
}

// parseHints reads routing hints with agent-name normalisation. Unknown
// agent names are dropped.
func parseHints(value any) models.RoutingHints {
	obj, ok := value.(map[string]any)
	if !ok {
		return models.RoutingHints{}
	}
	return models.RoutingHints{
		SuggestNext:   schema.NormalizeAgentList(envelopeField(obj, "suggestNext", "suggest_next", "next")),
		SkipAgents:    schema.NormalizeAgentList(envelopeField(obj, "skipAgents", "skip_agents", "skip")),
		NeedsApproval: boolValue(envelopeField(obj, "needsApproval", "needs_approval")),
		HasFailures:   boolValue(envelopeField(obj, "hasFailures", "has_failures")),
		IsComplete:    boolValue(envelopeField(obj, "isComplete", "is_complete", "complete")),
		BlockedBy:     stringValue(envelopeField(obj, "blockedBy", "blocked_by")),
		Notes:         stringValue(envelopeField(obj, "notes", "note")),
	}
}

// StylePackagesFromOutput extracts the style packages an analyst proposed,
// normalising IDs to kebab case. Packages without a usable ID are dropped.
func StylePackagesFromOutput(out *models.AgentOutput) []models.StylePackage {
	if out == nil || out.Result == nil {
		return nil
	}
	var packages []models.StylePackage
	for _, item := range schema.LenientArray(envelopeField(out.Result, "stylePackages", "style_packages", "styles")) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := schema.LenientID(envelopeField(obj, "id", "styleId", "style_id"), "")
		if id == "" {
			continue
		}
		packages = append(packages, models.StylePackage{
			ID:          id,
			Name:        stringValue(envelopeField(obj, "name", "title")),
			Description: stringValue(envelopeField(obj, "description", "summary")),
			PreviewPath: schema.LenientPath(envelopeField(obj, "previewPath", "preview_path", "preview"), ""),
		})
	}
	return packages
}

// envelopeField looks a key up under any of the given spellings, then by
// folded-key match as a last resort.
func envelopeField(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[foldedKey(k)] = true
	}
	for k, v := range m {
		if want[foldedKey(k)] {
			return v
		}
	}
	return nil
}

func hasFoldedKey(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	return envelopeField(m, key) != nil
}

func foldedKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	k = strings.ReplaceAll(k, "-", "")
	return k
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
