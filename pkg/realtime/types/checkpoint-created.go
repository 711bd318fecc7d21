package types

import "time"

var _ Event = CheckpointCreatedEvent{}

type CheckpointCreatedEvent struct {
	WorkflowID   string    `json:"workflowId"`
	CheckpointID string    `json:"checkpointId"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (e CheckpointCreatedEvent) GetMessageData() (map[string]interface{}, error) {
	return map[string]interface{}{
		"workflowId":   e.WorkflowID,
		"eventType":    "checkpoint-created",
		"checkpointId": e.CheckpointID,
		"note":         e.Note,
		"createdAt":    e.CreatedAt,
	}, nil
}

func (e CheckpointCreatedEvent) GetChannelName() string {
	return e.WorkflowID
}
