package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stagehand-dev/stagehand/pkg/llm"
	llmtypes "github.com/stagehand-dev/stagehand/pkg/llm/types"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCall returns each response in order, failing the test if the
// model is called more times than responses were scripted.
func scriptedCall(t *testing.T, responses ...string) func(context.Context, llm.ProviderConfig, string, []llmtypes.Message, time.Duration) (string, error) {
	t.Helper()
	i := 0
	return func(context.Context, llm.ProviderConfig, string, []llmtypes.Message, time.Duration) (string, error) {
		require.Less(t, i, len(responses), "model called more times than scripted")
		r := responses[i]
		i++
		return r, nil
	}
}

func testOptions(t *testing.T, responses ...string) Options {
	return Options{
		AutoChain: true,
		CallFn:    scriptedCall(t, responses...),
		ContextFn: func(projectID string, action llmtypes.Action) (string, error) {
			return `{"ok": true}`, nil
		},
		DocumentFn: func(projectID, path string) (*workspacetypes.Document, error) {
			return &workspacetypes.Document{Path: path, Content: "line one\nline two\n"}, nil
		},
	}
}

func TestRunTurnCompletion(t *testing.T) {
	opts := testOptions(t, `<stagehandAction name="complete">{"summary": "all done"}</stagehandAction>`)

	state := &TaskState{}
	result, err := RunTurn(context.Background(), opts, state, "finish up")
	require.NoError(t, err)

	assert.True(t, result.Done)
	require.Len(t, result.Proposals, 1)
	assert.Equal(t, workspacetypes.ProposalTypeCompletion, result.Proposals[0].Type)
	assert.Equal(t, "all done", result.Proposals[0].Summary)

	// user message + assistant action
	assert.Len(t, state.Messages, 2)
	assert.Equal(t, 1, state.Turns)
}

func TestRunTurnAutoChainsReadOnlyOnce(t *testing.T) {
	opts := testOptions(t,
		`<stagehandAction name="get_document">{"path": "values.yaml"}</stagehandAction>`,
		`<stagehandAction name="complete">{"summary": "done"}</stagehandAction>`,
	)

	var contextCalls int
	opts.ContextFn = func(projectID string, action llmtypes.Action) (string, error) {
		contextCalls++
		assert.Equal(t, "get_document", action.Name)
		return `{"content": "replicas: 3"}`, nil
	}

	state := &TaskState{}
	result, err := RunTurn(context.Background(), opts, state, "what are the replicas?")
	require.NoError(t, err)

	assert.Equal(t, 1, contextCalls)
	assert.True(t, result.Done)
	assert.Equal(t, 2, state.Turns)

	// The tool result was injected for the second model call.
	var sawToolResult bool
	for _, m := range state.Messages {
		if m.Role == llmtypes.RoleUser && strings.HasPrefix(m.Content, llm.ToolResultPrefix) {
			sawToolResult = true
			assert.Contains(t, m.Content, "get_document")
		}
	}
	assert.True(t, sawToolResult)
}

func TestRunTurnSecondReadOnlyReturnsToCaller(t *testing.T) {
	opts := testOptions(t,
		`<stagehandAction name="get_document">{"path": "a.yaml"}</stagehandAction>`,
		`<stagehandAction name="get_document">{"path": "b.yaml"}</stagehandAction>`,
	)

	state := &TaskState{}
	result, err := RunTurn(context.Background(), opts, state, "look around")
	require.NoError(t, err)

	// The chain budget is spent, so the second read-only action comes back
	// unexecuted for the caller to decide.
	assert.False(t, result.Done)
	require.NotNil(t, result.Action)
	assert.Equal(t, "get_document", result.Action.Name)
	assert.Empty(t, result.Proposals)
}

func TestRunTurnFallbackOnUnusableResponse(t *testing.T) {
	opts := testOptions(t, "I think we should consider several approaches here.")

	state := &TaskState{}
	result, err := RunTurn(context.Background(), opts, state, "do something")
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	assert.True(t, result.Proposals[0].Fallback)
	assert.Equal(t, workspacetypes.ProposalTypeCompletion, result.Proposals[0].Type)
	assert.Equal(t, 1, state.Fallbacks)
}

func TestRunTurnSecondFallbackExhaustsProtocol(t *testing.T) {
	opts := testOptions(t, "still no action")

	state := &TaskState{Fallbacks: 1}
	_, err := RunTurn(context.Background(), opts, state, "try again")
	require.ErrorIs(t, err, ErrProtocolExhausted)

	// State is untouched on failure.
	assert.Empty(t, state.Messages)
}

func TestRunTurnProviderErrorLeavesStateUntouched(t *testing.T) {
	opts := testOptions(t)
	opts.CallFn = func(context.Context, llm.ProviderConfig, string, []llmtypes.Message, time.Duration) (string, error) {
		return "", errors.New("connection reset")
	}

	state := &TaskState{Turns: 3}
	_, err := RunTurn(context.Background(), opts, state, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider call failed")

	assert.Equal(t, 3, state.Turns)
	assert.Empty(t, state.Messages)
}

func TestRunTurnTurnLimit(t *testing.T) {
	opts := testOptions(t)
	opts.MaxTurns = 3

	state := &TaskState{Turns: 3}
	_, err := RunTurn(context.Background(), opts, state, "hello")
	require.ErrorIs(t, err, ErrTurnLimit)
}

func TestRunTurnEditActionProducesDraft(t *testing.T) {
	opts := testOptions(t,
		`<stagehandAction name="edit_document">{"path": "notes.md", "edits": [{"startLine": 0, "startChar": 0, "endLine": 1, "endChar": 0, "newText": "LINE ONE\n"}]}</stagehandAction>`,
	)

	state := &TaskState{}
	result, err := RunTurn(context.Background(), opts, state, "capitalize the first line")
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	draft := result.Proposals[0]
	assert.Equal(t, workspacetypes.ProposalTypeEdit, draft.Type)
	require.Len(t, draft.FileChanges, 1)

	fc := draft.FileChanges[0]
	assert.Equal(t, "notes.md", fc.Path)
	assert.Equal(t, "line one\nline two\n", fc.BaseText)
	require.Len(t, fc.Edits, 1)

	proposed, err := fc.Proposed()
	require.NoError(t, err)
	assert.Equal(t, "LINE ONE\nline two\n", proposed)
}

func TestRunTurnPlanUpdate(t *testing.T) {
	opts := testOptions(t,
		`<stagehandAction name="update_plan">{"steps": ["read config", "edit config"], "currentStep": 0}</stagehandAction>`,
	)

	state := &TaskState{}
	result, err := RunTurn(context.Background(), opts, state, "make a plan")
	require.NoError(t, err)

	require.NotNil(t, result.PlanUpdate)
	assert.Equal(t, []string{"read config", "edit config"}, result.PlanUpdate.Steps)
	assert.Equal(t, 0, result.PlanUpdate.CurrentStep)
	assert.False(t, result.Done)
}

func TestRunTurnContextFnErrorIsFedBack(t *testing.T) {
	opts := testOptions(t,
		`<stagehandAction name="get_document">{"path": "missing.yaml"}</stagehandAction>`,
		`<stagehandAction name="complete">{}</stagehandAction>`,
	)
	opts.ContextFn = func(projectID string, action llmtypes.Action) (string, error) {
		return "", errors.New("document not found")
	}

	state := &TaskState{}
	_, err := RunTurn(context.Background(), opts, state, "read it")
	require.NoError(t, err)

	var sawError bool
	for _, m := range state.Messages {
		if strings.Contains(m.Content, "document not found") {
			sawError = true
		}
	}
	assert.True(t, sawError)
}
