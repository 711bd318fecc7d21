package types

import (
	"fmt"

	"github.com/slack-go/slack"
)

type WorkflowCompleted struct {
	WorkflowID string
	ProjectID  string
	Summary    string
}

func (e WorkflowCompleted) GetHeader() *slack.TextBlockObject {
	return slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Stagehand Workflow Completed* in project %s", e.ProjectID), false, false)
}

func (e WorkflowCompleted) GetTextBlockObjects() []*slack.TextBlockObject {
	blocks := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Workflow:* %s", e.WorkflowID), false, false),
	}
	if e.Summary != "" {
		blocks = append(blocks, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Summary:* %s", e.Summary), false, false))
	}
	return blocks
}

var _ SlackNotification = (*WorkflowCompleted)(nil)
