package slack

import (
	"fmt"

	"github.com/slack-go/slack"
	"github.com/stagehand-dev/stagehand/pkg/param"
	"github.com/stagehand-dev/stagehand/pkg/slack/types"
)

var (
	slackClient *slack.Client
)

// SendNotificationToSlack posts a block-formatted message to the
// configured channel. Unconfigured Slack is a silent no-op so worker
// deployments without a token keep working.
func SendNotificationToSlack(e types.SlackNotification) error {
	if e == nil {
		return nil
	}
	if param.Get().SlackToken == "" || param.Get().SlackChannel == "" {
		return nil
	}

	if slackClient == nil {
		slackClient = slack.New(param.Get().SlackToken)
	}

	headerSection := slack.NewSectionBlock(e.GetHeader(), nil, nil)
	fieldsSection := slack.NewSectionBlock(nil, e.GetTextBlockObjects(), nil)

	blocks := make([]slack.Block, 0)
	blocks = append(blocks, *headerSection)
	blocks = append(blocks, *fieldsSection)

	msg := slack.NewBlockMessage(blocks...)

	_, _, err := slackClient.PostMessage(param.Get().SlackChannel, slack.MsgOptionBlocks(msg.Msg.Blocks.BlockSet...))
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}

	return nil
}
