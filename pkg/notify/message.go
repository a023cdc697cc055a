package notify

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

const maxBlockTextLength = 2900

var phaseEmoji = map[models.Phase]string{
	models.PhaseComplete: ":white_check_mark:",
	models.PhaseFailed:   ":x:",
}

var phaseLabel = map[models.Phase]string{
	models.PhaseComplete: "Orchestration Complete",
	models.PhaseFailed:   "Orchestration Failed",
}

var approvalLabel = map[models.ApprovalType]string{
	models.ApprovalStyleSelection: "Style Selection",
	models.ApprovalDesignReview:   "Design Review",
}

func sessionURL(sessionID, dashboardURL string) string {
	return fmt.Sprintf("%s/sessions/%s", dashboardURL, sessionID)
}

// BuildApprovalMessage creates Block Kit blocks for an approval checkpoint
// notification.
func BuildApprovalMessage(input ApprovalInput, dashboardURL string) []goslack.Block {
	label := "Approval"
	if input.Approval != nil {
		if l, ok := approvalLabel[input.Approval.Type]; ok {
			label = l
		}
	}

	header := fmt.Sprintf(":raised_hand: *%s required* — session is paused until you respond.", label)
	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if input.Approval != nil {
		var body strings.Builder
		if input.Approval.Description != "" {
			body.WriteString(input.Approval.Description)
		}
		if len(input.Approval.Options) > 0 {
			body.WriteString("\n*Options:*")
			for _, opt := range input.Approval.Options {
				body.WriteString("\n• `" + opt + "`")
			}
		}
		if body.Len() > 0 {
			blocks = append(blocks, goslack.NewSectionBlock(
				goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(body.String()), false, false),
				nil, nil,
			))
		}
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "Review in Dashboard", false, false))
	btn.URL = sessionURL(input.SessionID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// BuildTerminalMessage creates Block Kit blocks for a terminal session
// notification.
func BuildTerminalMessage(input TerminalInput, dashboardURL string) []goslack.Block {
	emoji := phaseEmoji[input.Phase]
	if emoji == "" {
		emoji = ":question:"
	}
	label := phaseLabel[input.Phase]
	if label == "" {
		label = "Orchestration " + string(input.Phase)
	}
	if input.Phase == models.PhaseComplete && input.CompletionPct < 100 {
		label += fmt.Sprintf(" (%d%%)", input.CompletionPct)
	}

	var blocks []goslack.Block

	headerText := fmt.Sprintf("%s *%s*", emoji, label)
	if input.Phase != models.PhaseComplete && input.ErrorMessage != "" {
		headerText += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(input.ErrorMessage))
	}
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
		nil, nil,
	))

	if input.Summary != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.Summary), false, false),
			nil, nil,
		))
	}

	buttonText := "View Results"
	if input.Phase != models.PhaseComplete {
		buttonText = "View Details"
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, buttonText, false, false))
	btn.URL = sessionURL(input.SessionID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view full results in dashboard)_"
}
