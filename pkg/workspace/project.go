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

var ErrProjectNotFound = errors.New("project not found")

func CreateProject(ctx context.Context, name string) (*workspacetypes.Project, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	id, err := securerandom.Hex(12)
	if err != nil {
		return nil, fmt.Errorf("failed to generate project id: %w", err)
	}

	now := time.Now()
	query := `INSERT INTO project (id, name, created_at, last_updated_at) VALUES ($1, $2, $3, $3)`
	if _, err := conn.Exec(ctx, query, id, name, now); err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}

	return &workspacetypes.Project{
		ID:            id,
		Name:          name,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}, nil
}

func GetProject(ctx context.Context, id string) (*workspacetypes.Project, error) {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	query := `SELECT id, name, created_at, last_updated_at FROM project WHERE id = $1`

	var p workspacetypes.Project
	row := conn.QueryRow(ctx, query, id)
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.LastUpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &p, nil
}

func TouchProject(ctx context.Context, id string) error {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	if _, err := conn.Exec(ctx, `UPDATE project SET last_updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to touch project: %w", err)
	}
	return nil
}
