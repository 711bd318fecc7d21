package types

import (
	workflowtypes "github.com/stagehand-dev/stagehand/pkg/workflow/types"
)

var _ Event = StepUpdatedEvent{}

type StepUpdatedEvent struct {
	WorkflowID string              `json:"workflowId"`
	Step       *workflowtypes.Step `json:"step"`
}

func (e StepUpdatedEvent) GetMessageData() (map[string]interface{}, error) {
	return map[string]interface{}{
		"workflowId": e.WorkflowID,
		"eventType":  "step-updated",
		"step":       e.Step,
	}, nil
}

func (e StepUpdatedEvent) GetChannelName() string {
	return e.WorkflowID
}
