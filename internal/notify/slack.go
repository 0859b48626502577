package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
)

// Notifier receives generation-complete events. Deliveries are best-effort:
// implementations log failures but never surface them to the caller.
type Notifier interface {
	PlanGenerated(ctx context.Context, issueKey, title string, testCount int, provider string)
}

// slackAPI is the slice of the Slack client the notifier uses.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts generation notices to a Slack channel.
type SlackNotifier struct {
	api     slackAPI
	channel string
	logger  *slog.Logger
}

// NewSlack creates a notifier posting to the given channel.
func NewSlack(token, channel string, logger *slog.Logger) *SlackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{
		api:     slack.New(token),
		channel: channel,
		logger:  logger,
	}
}

// PlanGenerated posts a short summary of the generated plan.
func (n *SlackNotifier) PlanGenerated(ctx context.Context, issueKey, title string, testCount int, provider string) {
	text := fmt.Sprintf("Test plan generated for %s: %q (%d test cases, %s provider)",
		issueKey, title, testCount, provider)

	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("slack notification failed", "issue", issueKey, "error", err)
		return
	}
	n.logger.Debug("slack notification sent", "issue", issueKey, "channel", n.channel)
}
