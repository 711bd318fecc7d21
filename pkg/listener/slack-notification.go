package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stagehand-dev/stagehand/pkg/slack"
	slacktypes "github.com/stagehand-dev/stagehand/pkg/slack/types"
)

type slackNotificationPayload struct {
	NotificationType string `json:"notificationType"`
	WorkflowID       string `json:"workflowId"`
	ProjectID        string `json:"projectId"`
	Summary          string `json:"summary,omitempty"`
	Error            string `json:"error,omitempty"`
}

func handleSlackNotification(ctx context.Context, payload string) error {
	var p slackNotificationPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("failed to unmarshal slack notification payload: %w", err)
	}

	var notification slacktypes.SlackNotification
	switch p.NotificationType {
	case "workflow_completed":
		notification = slacktypes.WorkflowCompleted{
			WorkflowID: p.WorkflowID,
			ProjectID:  p.ProjectID,
			Summary:    p.Summary,
		}
	case "turn_failed":
		notification = slacktypes.TurnFailed{
			WorkflowID: p.WorkflowID,
			ProjectID:  p.ProjectID,
			Error:      p.Error,
		}
	default:
		return fmt.Errorf("unknown slack notification type: %s", p.NotificationType)
	}

	if err := slack.SendNotificationToSlack(notification); err != nil {
		return fmt.Errorf("failed to send notification to slack: %w", err)
	}

	return nil
}
