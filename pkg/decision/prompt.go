package decision

import (
	"fmt"
	"strings"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

const decisionInstructions = `## Orchestration Decision Instructions

You are the routing brain of a multi-agent build pipeline. Each turn you see
the session state and decide the single next action.

Available agents: analyst, architect, ui_designer, project_manager, reviewer,
frontend_dev, backend_dev, tester.

Phase state machine:
- Orchestration phase: analyzing -> designing -> building -> testing -> reviewing -> complete.
- Design sub-phase: research -> stylesheet -> screens -> complete.

Hard rules (violations are corrected by the runtime):
1. ui_designer may not run before the analyst has produced style packages.
2. ui_designer may not produce screens before the user approved a stylesheet.
   Style competition dispatches carry a styleHint and are exempt.
3. project_manager may not run before the user approved the screens.

Respond with a single JSON object and nothing else:

{
  "reasoning": "why this action",
  "action": "dispatch | parallel_dispatch | approval | wait | complete | fail",
  "targets": [{"agentId": "analyst", "styleHint": "", "priority": 0}],
  "approvalConfig": {"type": "style_selection | design_review", "description": "", "options": [], "maxIterations": 0},
  "error": "",
  "summary": ""
}

Use "complete" once every required agent has finished. Use "fail" with an
error message when no forward progress is possible. To issue a special
instruction, target the orchestrator and put COMPLETE, PAUSE, ESCALATE, or
ABORT in the reasoning.`

const decisionTask = `## Your Task

Decide the next action. Output only the JSON object.`

// buildMessages renders the system and user prompt for one decision.
func buildMessages(tc ThinkingContext) (string, string) {
	var sb strings.Builder

	sb.WriteString("## Request\n\n")
	sb.WriteString(tc.UserInput)
	sb.WriteString("\n\n")

	sb.WriteString("## Task Classification\n")
	fmt.Fprintf(&sb, "- Type: %s\n", valueOr(tc.Classification.TaskType, "unknown"))
	fmt.Fprintf(&sb, "- Complexity: %s\n", valueOr(tc.Classification.Complexity, "unknown"))
	fmt.Fprintf(&sb, "- Requires design: %t\n", tc.Classification.RequiresDesign)
	if tc.Classification.Summary != "" {
		fmt.Fprintf(&sb, "- Summary: %s\n", tc.Classification.Summary)
	}
	sb.WriteString("\n")

	sb.WriteString("## Session State\n")
	fmt.Fprintf(&sb, "- Phase: %s\n", tc.Phase)
	fmt.Fprintf(&sb, "- Design phase: %s\n", tc.DesignPhase)
	fmt.Fprintf(&sb, "- Iteration: %d\n", tc.IterationCount)
	fmt.Fprintf(&sb, "- Completed agents: %s\n", agentList(tc.CompletedAgents))
	fmt.Fprintf(&sb, "- Stylesheet approved: %t\n", tc.StylesheetApproved)
	fmt.Fprintf(&sb, "- Screens approved: %t\n", tc.ScreensApproved)
	if tc.SelectedStyleID != "" {
		fmt.Fprintf(&sb, "- Selected style: %s\n", tc.SelectedStyleID)
	}
	if len(tc.RejectedStyles) > 0 {
		fmt.Fprintf(&sb, "- Rejected styles: %s\n", strings.Join(tc.RejectedStyles, ", "))
	}
	sb.WriteString("\n")

	if len(tc.StylePackages) > 0 {
		sb.WriteString("## Style Packages\n")
		for _, p := range tc.StylePackages {
			fmt.Fprintf(&sb, "- %s: %s\n", p.ID, valueOr(p.Name, p.ID))
		}
		sb.WriteString("\n")
	}

	if tc.ApprovalResponse != nil {
		sb.WriteString("## Approval Response\n")
		fmt.Fprintf(&sb, "- Approved: %t\n", tc.ApprovalResponse.Approved)
		if tc.ApprovalResponse.SelectedOption != "" {
			fmt.Fprintf(&sb, "- Selected option: %s\n", tc.ApprovalResponse.SelectedOption)
		}
		if tc.ApprovalResponse.Feedback != "" {
			fmt.Fprintf(&sb, "- Feedback: %s\n", tc.ApprovalResponse.Feedback)
		}
		sb.WriteString("\n")
	}

	if len(tc.RecentOutputs) > 0 {
		sb.WriteString("## Recent Agent Outputs\n")
		for _, out := range tc.RecentOutputs {
			status := "ok"
			if !out.Success {
				status = "failed"
			}
			fmt.Fprintf(&sb, "- %s: %s, %d artifacts", out.AgentID, status, len(out.Artifacts))
			if len(out.RoutingHints.SuggestNext) > 0 {
				fmt.Fprintf(&sb, ", suggests %s", agentList(out.RoutingHints.SuggestNext))
			}
			if out.RoutingHints.IsComplete {
				sb.WriteString(", reports complete")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if tc.LastError != "" {
		sb.WriteString("## Last Error\n")
		sb.WriteString(tc.LastError)
		sb.WriteString("\n\n")
	}

	sb.WriteString(decisionTask)
	return decisionInstructions, sb.String()
}

func agentList(agents []models.AgentType) string {
	if len(agents) == 0 {
		return "none"
	}
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
