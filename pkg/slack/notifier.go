package slack

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts resource-guard critical notifications to one configured
// Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier. If botToken is empty, the notifier
// will be a noop (logging only) — Slack is an optional external
// collaborator, never a hard dependency.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// IsEnabled returns true if the notifier has a valid Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyCritical posts a resource-guard critical notification to the
// configured channel. Callers are responsible for rate limiting; this
// method posts unconditionally every time it's called.
func (n *Notifier) NotifyCritical(ctx context.Context, issue ResourceIssue) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping resource issue post",
			"code", issue.Code,
			"component", issue.Component,
		)
		return nil
	}

	blocks := ResourceIssueBlocks(issue)
	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(fmt.Sprintf("%s %s critical: %s", SeverityEmoji("down"), issue.Component, issue.Message), false),
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, opts...)
	if err != nil {
		return fmt.Errorf("posting resource issue to slack: %w", err)
	}

	n.logger.Info("posted resource issue to slack", "code", issue.Code, "component", issue.Component)
	return nil
}
