package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	workflowtypes "github.com/stagehand-dev/stagehand/pkg/workflow/types"
	"github.com/tuvistavie/securerandom"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// CreateWorkflow makes a new workflow for the project. New workflows start
// executing immediately; the planning status is only entered when the model
// declares a step list up front.
func CreateWorkflow(ctx context.Context, projectID string) (*workflowtypes.Workflow, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	id, err := securerandom.Hex(12)
	if err != nil {
		return nil, fmt.Errorf("failed to generate workflow id: %w", err)
	}

	now := time.Now()
	query := `INSERT INTO workflow (id, project_id, status, current_step, context, created_at, updated_at)
VALUES ($1, $2, $3, 0, '', $4, $4)`
	if _, err := conn.Exec(ctx, query, id, projectID, workflowtypes.WorkflowStatusExecuting, now); err != nil {
		return nil, fmt.Errorf("failed to insert workflow: %w", err)
	}

	return &workflowtypes.Workflow{
		ID:        id,
		ProjectID: projectID,
		Status:    workflowtypes.WorkflowStatusExecuting,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func GetWorkflow(ctx context.Context, id string) (*workflowtypes.Workflow, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `SELECT id, project_id, status, current_step, context, created_at, updated_at, last_checkpointed_message_at
FROM workflow WHERE id = $1`

	var w workflowtypes.Workflow
	row := conn.QueryRow(ctx, query, id)
	if err := row.Scan(&w.ID, &w.ProjectID, &w.Status, &w.CurrentStep, &w.Context, &w.CreatedAt, &w.UpdatedAt, &w.LastCheckpointedMessageAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	steps, err := listSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Steps = steps

	return &w, nil
}

// SetStatus moves the workflow to status. A missing workflow is a no-op so
// approval callbacks racing with expiry do not error.
func SetStatus(ctx context.Context, workflowID string, status workflowtypes.WorkflowStatus) error {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `UPDATE workflow SET status = $1, updated_at = now() WHERE id = $2`
	if _, err := conn.Exec(ctx, query, status, workflowID); err != nil {
		return fmt.Errorf("failed to set workflow status: %w", err)
	}
	return nil
}

// SetCurrentStep records which step the orchestration loop is on.
func SetCurrentStep(ctx context.Context, workflowID string, index int) error {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `UPDATE workflow SET current_step = $1, updated_at = now() WHERE id = $2`
	if _, err := conn.Exec(ctx, query, index, workflowID); err != nil {
		return fmt.Errorf("failed to set current step: %w", err)
	}
	return nil
}

// SetContext replaces the workflow's opaque context blob.
func SetContext(ctx context.Context, workflowID string, blob string) error {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `UPDATE workflow SET context = $1, updated_at = now() WHERE id = $2`
	if _, err := conn.Exec(ctx, query, blob, workflowID); err != nil {
		return fmt.Errorf("failed to set workflow context: %w", err)
	}
	return nil
}

// SetLastCheckpointedMessageAt records the message timestamp the most
// recent automatic checkpoint covered, so reprocessed notifications do not
// create duplicates.
func SetLastCheckpointedMessageAt(ctx context.Context, workflowID string, at time.Time) error {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `UPDATE workflow SET last_checkpointed_message_at = $1, updated_at = now() WHERE id = $2`
	if _, err := conn.Exec(ctx, query, at, workflowID); err != nil {
		return fmt.Errorf("failed to set last checkpointed message at: %w", err)
	}
	return nil
}
