package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
	"github.com/tuvistavie/securerandom"
)

var ErrProposalNotFound = errors.New("proposal not found")

// CreateProposal persists a new pending proposal and its "created" event.
func CreateProposal(ctx context.Context, workflowID string, messageID string, proposalType workspacetypes.ProposalType, fallback bool, fileChanges []workspacetypes.FileChange, payload map[string]interface{}, summary string) (*workspacetypes.Proposal, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	id, err := securerandom.Hex(12)
	if err != nil {
		return nil, fmt.Errorf("failed to generate proposal id: %w", err)
	}

	fileChangesJSON, err := json.Marshal(fileChanges)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file changes: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin create proposal tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO proposal (id, workflow_id, message_id, proposal_type, status, fallback, file_changes, payload, summary, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.Exec(ctx, query, id, workflowID, messageID, proposalType, workspacetypes.ProposalStatusPending, fallback, fileChangesJSON, payloadJSON, summary, now); err != nil {
		return nil, fmt.Errorf("failed to insert proposal: %w", err)
	}

	event, err := insertProposalEvent(ctx, tx, id, workspacetypes.ProposalEventCreated, "")
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit create proposal: %w", err)
	}

	return &workspacetypes.Proposal{
		ID:          id,
		WorkflowID:  workflowID,
		MessageID:   messageID,
		Type:        proposalType,
		Status:      workspacetypes.ProposalStatusPending,
		Fallback:    fallback,
		FileChanges: fileChanges,
		Payload:     payload,
		Summary:     summary,
		CreatedAt:   now,
		Events:      []workspacetypes.ProposalEvent{*event},
	}, nil
}

func GetProposal(ctx context.Context, id string) (*workspacetypes.Proposal, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `SELECT id, workflow_id, message_id, proposal_type, status, fallback, file_changes, payload, summary, created_at, applied_at
FROM proposal WHERE id = $1`

	var p workspacetypes.Proposal
	var fileChangesJSON, payloadJSON []byte
	row := conn.QueryRow(ctx, query, id)
	if err := row.Scan(&p.ID, &p.WorkflowID, &p.MessageID, &p.Type, &p.Status, &p.Fallback, &fileChangesJSON, &payloadJSON, &p.Summary, &p.CreatedAt, &p.AppliedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	if len(fileChangesJSON) > 0 {
		if err := json.Unmarshal(fileChangesJSON, &p.FileChanges); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file changes: %w", err)
		}
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &p.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	events, err := listProposalEvents(ctx, conn.Conn(), id)
	if err != nil {
		return nil, err
	}
	p.Events = events

	return &p, nil
}

// AppendProposalEvent adds an event to the proposal's ordered log.
func AppendProposalEvent(ctx context.Context, proposalID string, kind string, detail string) (*workspacetypes.ProposalEvent, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	return insertProposalEvent(ctx, conn, proposalID, kind, detail)
}

// MarkProposalApplied transitions the proposal to applied. Applying twice
// is an error; applied proposals are immutable apart from their event log.
func MarkProposalApplied(ctx context.Context, proposalID string) error {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `UPDATE proposal SET status = $1, applied_at = $2 WHERE id = $3 AND status = $4`
	tag, err := conn.Exec(ctx, query, workspacetypes.ProposalStatusApplied, time.Now(), proposalID, workspacetypes.ProposalStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark proposal applied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("proposal %s is not pending", proposalID)
	}

	if _, err := insertProposalEvent(ctx, conn, proposalID, workspacetypes.ProposalEventApplied, ""); err != nil {
		return err
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertProposalEvent(ctx context.Context, conn execer, proposalID string, kind string, detail string) (*workspacetypes.ProposalEvent, error) {
	id, err := securerandom.Hex(12)
	if err != nil {
		return nil, fmt.Errorf("failed to generate event id: %w", err)
	}

	now := time.Now()
	query := `INSERT INTO proposal_event (id, proposal_id, kind, detail, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := conn.Exec(ctx, query, id, proposalID, kind, detail, now); err != nil {
		return nil, fmt.Errorf("failed to insert proposal event: %w", err)
	}

	return &workspacetypes.ProposalEvent{
		ID:         id,
		ProposalID: proposalID,
		Kind:       kind,
		Detail:     detail,
		CreatedAt:  now,
	}, nil
}

func listProposalEvents(ctx context.Context, conn *pgx.Conn, proposalID string) ([]workspacetypes.ProposalEvent, error) {
	query := `SELECT id, proposal_id, kind, detail, created_at FROM proposal_event WHERE proposal_id = $1 ORDER BY created_at`

	rows, err := conn.Query(ctx, query, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposal events: %w", err)
	}
	defer rows.Close()

	var events []workspacetypes.ProposalEvent
	for rows.Next() {
		var e workspacetypes.ProposalEvent
		if err := rows.Scan(&e.ID, &e.ProposalID, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan proposal event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
