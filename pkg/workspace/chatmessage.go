package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
	"github.com/tuvistavie/securerandom"
)

var ErrChatMessageNotFound = errors.New("chat message not found")

func CreateChatMessage(ctx context.Context, projectID string, workflowID string, prompt string, persona workspacetypes.ChatMessageFromPersona) (*workspacetypes.Chat, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	id, err := securerandom.Hex(12)
	if err != nil {
		return nil, fmt.Errorf("failed to generate chat message id: %w", err)
	}

	now := time.Now()
	query := `INSERT INTO chat_message (id, project_id, workflow_id, prompt, response, created_at, message_from_persona)
VALUES ($1, $2, $3, $4, '', $5, $6)`
	if _, err := conn.Exec(ctx, query, id, projectID, workflowID, prompt, now, persona); err != nil {
		return nil, fmt.Errorf("failed to insert chat message: %w", err)
	}

	return &workspacetypes.Chat{
		ID:                 id,
		ProjectID:          projectID,
		WorkflowID:         workflowID,
		Prompt:             prompt,
		CreatedAt:          now,
		MessageFromPersona: &persona,
	}, nil
}

func GetChatMessage(ctx context.Context, id string) (*workspacetypes.Chat, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `SELECT id, project_id, workflow_id, prompt, response, created_at, responded_at, message_from_persona
FROM chat_message WHERE id = $1`

	var c workspacetypes.Chat
	row := conn.QueryRow(ctx, query, id)
	if err := row.Scan(&c.ID, &c.ProjectID, &c.WorkflowID, &c.Prompt, &c.Response, &c.CreatedAt, &c.RespondedAt, &c.MessageFromPersona); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatMessageNotFound
		}
		return nil, fmt.Errorf("failed to get chat message: %w", err)
	}

	return &c, nil
}

// ListChatMessages returns the project's conversation oldest first.
func ListChatMessages(ctx context.Context, projectID string) ([]workspacetypes.Chat, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `SELECT id, project_id, workflow_id, prompt, response, created_at, responded_at, message_from_persona
FROM chat_message WHERE project_id = $1 ORDER BY created_at`

	rows, err := conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []workspacetypes.Chat
	for rows.Next() {
		var c workspacetypes.Chat
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.WorkflowID, &c.Prompt, &c.Response, &c.CreatedAt, &c.RespondedAt, &c.MessageFromPersona); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, c)
	}

	return messages, rows.Err()
}

func SetChatMessageResponse(ctx context.Context, id string, response string) error {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `UPDATE chat_message SET response = $1, responded_at = $2 WHERE id = $3`
	if _, err := conn.Exec(ctx, query, response, time.Now(), id); err != nil {
		return fmt.Errorf("failed to set chat message response: %w", err)
	}
	return nil
}

// AppendChatMessageResponse adds a delta to the stored response, used while
// a reply is still streaming.
func AppendChatMessageResponse(ctx context.Context, id string, delta string) error {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `UPDATE chat_message SET response = response || $1 WHERE id = $2`
	if _, err := conn.Exec(ctx, query, delta, id); err != nil {
		return fmt.Errorf("failed to append chat message response: %w", err)
	}
	return nil
}
