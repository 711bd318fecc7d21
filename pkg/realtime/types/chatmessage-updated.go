package types

import (
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
)

var _ Event = ChatMessageUpdatedEvent{}

type ChatMessageUpdatedEvent struct {
	ProjectID   string               `json:"projectId"`
	ChatMessage *workspacetypes.Chat `json:"chatMessage"`
}

func (e ChatMessageUpdatedEvent) GetMessageData() (map[string]interface{}, error) {
	return map[string]interface{}{
		"projectId":   e.ProjectID,
		"eventType":   "chatmessage-updated",
		"chatMessage": e.ChatMessage,
	}, nil
}

func (e ChatMessageUpdatedEvent) GetChannelName() string {
	return e.ProjectID
}
