package types

import (
	workflowtypes "github.com/stagehand-dev/stagehand/pkg/workflow/types"
)

var _ Event = WorkflowStatusEvent{}

type WorkflowStatusEvent struct {
	WorkflowID string                       `json:"workflowId"`
	Status     workflowtypes.WorkflowStatus `json:"status"`
}

func (e WorkflowStatusEvent) GetMessageData() (map[string]interface{}, error) {
	return map[string]interface{}{
		"workflowId": e.WorkflowID,
		"eventType":  "workflow-status",
		"status":     e.Status,
	}, nil
}

func (e WorkflowStatusEvent) GetChannelName() string {
	return e.WorkflowID
}
