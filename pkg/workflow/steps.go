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

// AppendStep adds a step at the end of the workflow. Index assignment is
// serialized on the workflow row so concurrent appends never collide. A
// missing workflow returns (nil, nil).
func AppendStep(ctx context.Context, workflowID string, proposalID *string, toolName *string) (*workflowtypes.Step, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin append step tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var workflowExists string
	row := tx.QueryRow(ctx, `SELECT id FROM workflow WHERE id = $1 FOR UPDATE`, workflowID)
	if err := row.Scan(&workflowExists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock workflow: %w", err)
	}

	var index int
	row = tx.QueryRow(ctx, `SELECT COUNT(*) FROM workflow_step WHERE workflow_id = $1`, workflowID)
	if err := row.Scan(&index); err != nil {
		return nil, fmt.Errorf("failed to count steps: %w", err)
	}

	id, err := securerandom.Hex(12)
	if err != nil {
		return nil, fmt.Errorf("failed to generate step id: %w", err)
	}

	now := time.Now()
	query := `INSERT INTO workflow_step (id, workflow_id, step_index, status, proposal_id, tool_name, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`
	if _, err := tx.Exec(ctx, query, id, workflowID, index, workflowtypes.StepStatusPending, proposalID, toolName, now); err != nil {
		return nil, fmt.Errorf("failed to insert step: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit append step: %w", err)
	}

	return &workflowtypes.Step{
		ID:         id,
		WorkflowID: workflowID,
		Index:      index,
		Status:     workflowtypes.StepStatusPending,
		ProposalID: proposalID,
		ToolName:   toolName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// UpdateStep merges the patch into the step. Missing workflow or step is a
// no-op returning (nil, nil).
func UpdateStep(ctx context.Context, workflowID string, stepID string, patch workflowtypes.StepPatch) (*workflowtypes.Step, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `UPDATE workflow_step SET
status = COALESCE($1, status),
proposal_id = COALESCE($2, proposal_id),
error = COALESCE($3, error),
updated_at = now()
WHERE id = $4 AND workflow_id = $5
RETURNING id, workflow_id, step_index, status, proposal_id, tool_name, error, created_at, updated_at`

	var s workflowtypes.Step
	row := conn.QueryRow(ctx, query, patch.Status, patch.ProposalID, patch.Error, stepID, workflowID)
	if err := row.Scan(&s.ID, &s.WorkflowID, &s.Index, &s.Status, &s.ProposalID, &s.ToolName, &s.Error, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update step: %w", err)
	}

	return &s, nil
}

func listSteps(ctx context.Context, workflowID string) ([]workflowtypes.Step, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `SELECT id, workflow_id, step_index, status, proposal_id, tool_name, error, created_at, updated_at
FROM workflow_step WHERE workflow_id = $1 ORDER BY step_index`

	rows, err := conn.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []workflowtypes.Step
	for rows.Next() {
		var s workflowtypes.Step
		if err := rows.Scan(&s.ID, &s.WorkflowID, &s.Index, &s.Status, &s.ProposalID, &s.ToolName, &s.Error, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, s)
	}

	return steps, rows.Err()
}
