package types

import (
	"fmt"

	"github.com/slack-go/slack"
)

type TurnFailed struct {
	WorkflowID string
	ProjectID  string
	Error      string
}

func (e TurnFailed) GetHeader() *slack.TextBlockObject {
	return slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Stagehand Turn Failed* in project %s", e.ProjectID), false, false)
}

func (e TurnFailed) GetTextBlockObjects() []*slack.TextBlockObject {
	return []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Workflow:* %s", e.WorkflowID), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Error:* %s", e.Error), false, false),
	}
}

var _ SlackNotification = (*TurnFailed)(nil)
