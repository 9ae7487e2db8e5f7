package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

// SeverityEmoji returns the emoji prefix for a given resource-guard state.
func SeverityEmoji(state string) string {
	switch state {
	case "down":
		return "🔴"
	case "degraded":
		return "🟡"
	default:
		return "⚪"
	}
}

// ResourceIssueBlocks builds Slack Block Kit blocks for a resource-guard
// critical notification. There are no interactive elements — nothing in
// this process consumes Slack's interaction callbacks.
func ResourceIssueBlocks(issue ResourceIssue) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType,
			fmt.Sprintf("%s %s critical", SeverityEmoji("down"), issue.Component), true, false),
	)

	section := goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("*%s*\n%s\nFree: %.1f%%", issue.Code, truncate(issue.Message, 500), issue.FreePct),
			false, false),
		nil, nil,
	)

	return []goslack.Block{header, section}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
