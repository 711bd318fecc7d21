package listener

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stagehand-dev/stagehand/pkg/param"
	workflowtypes "github.com/stagehand-dev/stagehand/pkg/workflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnFailedPayloadIsHandled(t *testing.T) {
	// Unconfigured Slack makes the send a no-op, so the handler exercises
	// the full dispatch path without a network call.
	param.Set(param.Params{})

	wf := &workflowtypes.Workflow{ID: "wf-1"}
	encoded, err := turnFailedPayload(wf, "proj-1", errors.New("provider unreachable"))
	require.NoError(t, err)

	var p slackNotificationPayload
	require.NoError(t, json.Unmarshal(encoded, &p))
	assert.Equal(t, "turn_failed", p.NotificationType)
	assert.Equal(t, "wf-1", p.WorkflowID)
	assert.Equal(t, "proj-1", p.ProjectID)
	assert.Equal(t, "provider unreachable", p.Error)

	require.NoError(t, handleSlackNotification(context.Background(), string(encoded)))
}

func TestHandleSlackNotificationRejectsUnknownType(t *testing.T) {
	param.Set(param.Params{})

	payload := `{"notificationType": "mystery", "workflowId": "wf-1"}`
	err := handleSlackNotification(context.Background(), payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown slack notification type")
}
