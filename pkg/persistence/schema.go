package persistence

import (
	"context"
	"fmt"
)

// Schema is the full worker schema. Statements are idempotent so bootstrap
// can run against an existing database.
const Schema = `
CREATE TABLE IF NOT EXISTS project (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	last_updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	status TEXT NOT NULL,
	current_step INTEGER NOT NULL DEFAULT 0,
	context TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	last_checkpointed_message_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS workflow_step (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	status TEXT NOT NULL,
	proposal_id TEXT,
	tool_name TEXT,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (workflow_id, step_index)
);

CREATE TABLE IF NOT EXISTS proposal (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	proposal_type TEXT NOT NULL,
	status TEXT NOT NULL,
	fallback BOOLEAN NOT NULL DEFAULT FALSE,
	file_changes JSONB,
	payload JSONB,
	summary TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	applied_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS proposal_event (
	id TEXT PRIMARY KEY,
	proposal_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS proposal_event_proposal_idx ON proposal_event (proposal_id, created_at);

CREATE TABLE IF NOT EXISTS chat_message (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	workflow_id TEXT,
	prompt TEXT NOT NULL,
	response TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	responded_at TIMESTAMPTZ,
	message_from_persona TEXT
);

CREATE TABLE IF NOT EXISTS work_queue (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	processing_started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
);

CREATE INDEX IF NOT EXISTS work_queue_channel_idx ON work_queue (channel, created_at) WHERE completed_at IS NULL;
`

// Bootstrap applies the schema to the connected database.
func Bootstrap(ctx context.Context) error {
	conn := MustGetPooledPostgresSession()
	defer conn.Release()

	if _, err := conn.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
