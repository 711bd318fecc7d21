package workflow

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/testhelpers"
	workflowtypes "github.com/stagehand-dev/stagehand/pkg/workflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("STAGEHAND_INTEGRATION") == "" {
		t.Skip("set STAGEHAND_INTEGRATION to run postgres integration tests")
	}

	ctx := context.Background()
	container, err := testhelpers.CreatePostgresContainer(ctx, testhelpers.CreatePostgresContainerOpts{
		CreateSchema: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	require.NoError(t, persistence.InitPostgres(persistence.PostgresOpts{URI: container.ConnectionString}))
}

func TestWorkflowLifecycle(t *testing.T) {
	setupPostgres(t)
	ctx := context.Background()

	wf, err := CreateWorkflow(ctx, "project-1")
	require.NoError(t, err)
	assert.Equal(t, workflowtypes.WorkflowStatusExecuting, wf.Status)
	assert.Equal(t, 0, wf.CurrentStep)

	loaded, err := GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, loaded.ID)
	assert.Equal(t, "project-1", loaded.ProjectID)
	assert.Empty(t, loaded.Steps)

	require.NoError(t, SetStatus(ctx, wf.ID, workflowtypes.WorkflowStatusPaused))
	require.NoError(t, SetContext(ctx, wf.ID, `{"turns": 2}`))
	require.NoError(t, SetCurrentStep(ctx, wf.ID, 1))

	loaded, err = GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, workflowtypes.WorkflowStatusPaused, loaded.Status)
	assert.Equal(t, `{"turns": 2}`, loaded.Context)
	assert.Equal(t, 1, loaded.CurrentStep)
}

func TestGetWorkflowNotFound(t *testing.T) {
	setupPostgres(t)

	_, err := GetWorkflow(context.Background(), "nope")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestSetStatusOnMissingWorkflowIsNoOp(t *testing.T) {
	setupPostgres(t)

	require.NoError(t, SetStatus(context.Background(), "nope", workflowtypes.WorkflowStatusFailed))
}

func TestAppendStepAssignsSequentialIndexes(t *testing.T) {
	setupPostgres(t)
	ctx := context.Background()

	wf, err := CreateWorkflow(ctx, "project-1")
	require.NoError(t, err)

	tool := "edit_document"
	first, err := AppendStep(ctx, wf.ID, nil, &tool)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, workflowtypes.StepStatusPending, first.Status)

	second, err := AppendStep(ctx, wf.ID, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 1, second.Index)

	loaded, err := GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, first.ID, loaded.Steps[0].ID)
	assert.Equal(t, second.ID, loaded.Steps[1].ID)
}

func TestAppendStepMissingWorkflowIsNoOp(t *testing.T) {
	setupPostgres(t)

	step, err := AppendStep(context.Background(), "nope", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, step)
}

func TestUpdateStep(t *testing.T) {
	setupPostgres(t)
	ctx := context.Background()

	wf, err := CreateWorkflow(ctx, "project-1")
	require.NoError(t, err)

	step, err := AppendStep(ctx, wf.ID, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, step)

	status := workflowtypes.StepStatusExecuting
	proposalID := "prop-1"
	updated, err := UpdateStep(ctx, wf.ID, step.ID, workflowtypes.StepPatch{
		Status:     &status,
		ProposalID: &proposalID,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, workflowtypes.StepStatusExecuting, updated.Status)
	require.NotNil(t, updated.ProposalID)
	assert.Equal(t, "prop-1", *updated.ProposalID)
	assert.True(t, updated.UpdatedAt.After(time.Time{}))

	// Fields left out of the patch are untouched.
	failed := workflowtypes.StepStatusFailed
	stepErr := "provider timeout"
	updated, err = UpdateStep(ctx, wf.ID, step.ID, workflowtypes.StepPatch{
		Status: &failed,
		Error:  &stepErr,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "prop-1", *updated.ProposalID)
	assert.Equal(t, "provider timeout", *updated.Error)
}

func TestUpdateStepMissingIsNoOp(t *testing.T) {
	setupPostgres(t)

	status := workflowtypes.StepStatusCompleted
	step, err := UpdateStep(context.Background(), "nope", "nope", workflowtypes.StepPatch{Status: &status})
	require.NoError(t, err)
	assert.Nil(t, step)
}
