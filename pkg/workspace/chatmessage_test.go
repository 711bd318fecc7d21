package workspace

import (
	"context"
	"testing"

	"github.com/stagehand-dev/stagehand/pkg/persistence"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessageLifecycle(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	project, err := CreateProject(ctx, "demo")
	require.NoError(t, err)

	first, err := CreateChatMessage(ctx, project.ID, "wf1", "add a service", workspacetypes.ChatMessageFromPersonaOperator)
	require.NoError(t, err)
	second, err := CreateChatMessage(ctx, project.ID, "wf1", "now expose it", workspacetypes.ChatMessageFromPersonaOperator)
	require.NoError(t, err)

	// Streaming deltas accumulate, the final response replaces them.
	require.NoError(t, AppendChatMessageResponse(ctx, first.ID, "Work"))
	require.NoError(t, AppendChatMessageResponse(ctx, first.ID, "ing..."))

	got, err := GetChatMessage(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Working...", got.Response)

	require.NoError(t, SetChatMessageResponse(ctx, first.ID, "Done."))

	messages, err := ListChatMessages(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, first.ID, messages[0].ID)
	assert.Equal(t, "Done.", messages[0].Response)
	assert.Equal(t, second.ID, messages[1].ID)
}

func TestGetProjectRoundTrip(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	created, err := CreateProject(ctx, "console-target")
	require.NoError(t, err)

	got, err := GetProject(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "console-target", got.Name)

	_, err = GetProject(ctx, "missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestUnpooledSessionRunsQueries(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	conn := persistence.MustGetUnpooledPostgresSession()
	defer conn.Close(ctx)

	var one int
	require.NoError(t, conn.QueryRow(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}
