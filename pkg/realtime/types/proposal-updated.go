package types

import (
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
)

var _ Event = ProposalUpdatedEvent{}

type ProposalUpdatedEvent struct {
	WorkflowID string                   `json:"workflowId"`
	Proposal   *workspacetypes.Proposal `json:"proposal"`
}

func (e ProposalUpdatedEvent) GetMessageData() (map[string]interface{}, error) {
	return map[string]interface{}{
		"workflowId": e.WorkflowID,
		"eventType":  "proposal-updated",
		"proposal":   e.Proposal,
	}, nil
}

func (e ProposalUpdatedEvent) GetChannelName() string {
	return e.WorkflowID
}
