package skills

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// InjectionFormat selects the prompt fragment syntax.
type InjectionFormat string

const (
	FormatMarkdown InjectionFormat = "markdown"
	FormatXML      InjectionFormat = "xml"
	FormatPlain    InjectionFormat = "plain"
)

// categoryOrder fixes the rendering order when grouping by category.
// Categories outside this list render after it, alphabetically.
var categoryOrder = []string{
	"security", "coding", "testing", "compliance", "api",
	"database", "devops", "documentation", "analysis", "ui",
}

// InjectOptions controls formatting of a selection into prompt text.
type InjectOptions struct {
	Format          InjectionFormat
	GroupByCategory bool
	IncludeExamples bool

	// MaxTokens caps the rendered fragment. Non-critical skills that would
	// push past the cap are skipped; critical skills are always emitted.
	MaxTokens int
}

// Injection is the rendered prompt fragment plus accounting.
type Injection struct {
	Content    string
	TokenCount int
	SkillCount int
	SkippedIDs []string
}

// Injector renders selected skills into a prompt fragment.
type Injector struct {
	logger *slog.Logger
}

// NewInjector creates an injector.
func NewInjector(logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{logger: logger}
}

// Inject formats the selection. Unknown formats fall back to markdown.
func (in *Injector) Inject(skills []models.Skill, opts InjectOptions) Injection {
	format := opts.Format
	switch format {
	case FormatMarkdown, FormatXML, FormatPlain:
	default:
		format = FormatMarkdown
	}

	// Budget pass runs before rendering so grouped output never contains
	// half a category header for a skipped skill.
	var (
		kept    []models.Skill
		skipped []string
		used    int
	)
	for _, skill := range skills {
		fragment := renderSkill(skill, format, opts.IncludeExamples)
		cost := models.EstimateTokens(fragment)
		if skill.Priority != models.PriorityCritical && opts.MaxTokens > 0 && used+cost > opts.MaxTokens {
			skipped = append(skipped, skill.ID)
			continue
		}
		used += cost
		kept = append(kept, skill)
	}

	var content string
	if opts.GroupByCategory {
		content = renderGrouped(kept, format, opts.IncludeExamples)
	} else {
		content = renderFlat(kept, format, opts.IncludeExamples)
	}

	inj := Injection{
		Content:    content,
		TokenCount: models.EstimateTokens(content),
		SkillCount: len(kept),
		SkippedIDs: skipped,
	}
	if len(skipped) > 0 {
		in.logger.Debug("Skills skipped during injection", "skipped", skipped, "max_tokens", opts.MaxTokens)
	}
	return inj
}

func renderFlat(skills []models.Skill, format InjectionFormat, examples bool) string {
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	switch format {
	case FormatXML:
		b.WriteString("<skills>\n")
		for _, s := range skills {
			b.WriteString(renderSkill(s, format, examples))
		}
		b.WriteString("</skills>\n")
	case FormatPlain:
		for _, s := range skills {
			b.WriteString(renderSkill(s, format, examples))
		}
	default:
		b.WriteString("## Skills\n\n")
		for _, s := range skills {
			b.WriteString(renderSkill(s, format, examples))
		}
	}
	return b.String()
}

func renderGrouped(skills []models.Skill, format InjectionFormat, examples bool) string {
	if len(skills) == 0 {
		return ""
	}
	byCategory := make(map[string][]models.Skill)
	for _, s := range skills {
		byCategory[s.Category] = append(byCategory[s.Category], s)
	}

	known := make(map[string]bool, len(categoryOrder))
	var categories []string
	for _, c := range categoryOrder {
		known[c] = true
		if len(byCategory[c]) > 0 {
			categories = append(categories, c)
		}
	}
	var extra []string
	for c := range byCategory {
		if !known[c] {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	categories = append(categories, extra...)

	var b strings.Builder
	switch format {
	case FormatXML:
		b.WriteString("<skills>\n")
		for _, c := range categories {
			fmt.Fprintf(&b, "<category name=%q>\n", c)
			for _, s := range byCategory[c] {
				b.WriteString(renderSkill(s, format, examples))
			}
			b.WriteString("</category>\n")
		}
		b.WriteString("</skills>\n")
	case FormatPlain:
		for _, c := range categories {
			fmt.Fprintf(&b, "=== %s ===\n", strings.ToUpper(c))
			for _, s := range byCategory[c] {
				b.WriteString(renderSkill(s, format, examples))
			}
		}
	default:
		b.WriteString("## Skills\n\n")
		for _, c := range categories {
			fmt.Fprintf(&b, "### %s\n\n", titleCase(c))
			for _, s := range byCategory[c] {
				b.WriteString(renderSkill(s, format, examples))
			}
		}
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func renderSkill(s models.Skill, format InjectionFormat, examples bool) string {
	var b strings.Builder
	switch format {
	case FormatXML:
		fmt.Fprintf(&b, "<skill id=%q priority=%q>\n", s.ID, s.Priority)
		fmt.Fprintf(&b, "<instructions>%s</instructions>\n", s.Instructions)
		if examples && len(s.Examples) > 0 {
			b.WriteString("<examples>\n")
			for _, ex := range s.Examples {
				fmt.Fprintf(&b, "<example>%s</example>\n", ex)
			}
			b.WriteString("</examples>\n")
		}
		b.WriteString("</skill>\n")
	case FormatPlain:
		fmt.Fprintf(&b, "SKILL %s [%s]\n%s\n", s.ID, s.Priority, s.Instructions)
		if examples && len(s.Examples) > 0 {
			for _, ex := range s.Examples {
				fmt.Fprintf(&b, "  example: %s\n", ex)
			}
		}
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "#### %s (%s)\n\n%s\n\n", s.ID, s.Priority, s.Instructions)
		if examples && len(s.Examples) > 0 {
			b.WriteString("Examples:\n")
			for _, ex := range s.Examples {
				fmt.Fprintf(&b, "- %s\n", ex)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
