package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stagehand-dev/stagehand/pkg/checkpoint"
	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/realtime"
	realtimetypes "github.com/stagehand-dev/stagehand/pkg/realtime/types"
	"github.com/stagehand-dev/stagehand/pkg/workflow"
	"github.com/stagehand-dev/stagehand/pkg/workspace"
	"go.uber.org/zap"
)

type createCheckpointPayload struct {
	WorkflowID       string `json:"workflowId"`
	ProjectID        string `json:"projectId"`
	ProposalID       string `json:"proposalId,omitempty"`
	Note             string `json:"note,omitempty"`
	IncludeWorkspace bool   `json:"includeWorkspace"`
}

// handleCreateCheckpointNotification snapshots the workflow's state and
// optionally its project tree. Automatic checkpoints triggered by a
// proposal are deduplicated against the message timestamp already covered,
// since queue retries may deliver the same request twice.
func handleCreateCheckpointNotification(ctx context.Context, payload string) error {
	var p createCheckpointPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("failed to unmarshal create checkpoint payload: %w", err)
	}

	wf, err := workflow.GetWorkflow(ctx, p.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to get workflow: %w", err)
	}

	opts := checkpoint.CreateOptions{
		WorkflowID:       p.WorkflowID,
		Note:             p.Note,
		ProposalID:       p.ProposalID,
		IncludeWorkspace: p.IncludeWorkspace,
		WorkspacePath:    workspace.ProjectDir(p.ProjectID),
	}

	var state json.RawMessage
	if wf.Context != "" {
		state = json.RawMessage(wf.Context)
	}
	opts.State = state

	if p.ProposalID != "" {
		proposal, err := workspace.GetProposal(ctx, p.ProposalID)
		if err != nil {
			return fmt.Errorf("failed to get proposal: %w", err)
		}

		message, err := workspace.GetChatMessage(ctx, proposal.MessageID)
		if err == nil {
			if wf.LastCheckpointedMessageAt != nil && !message.CreatedAt.After(*wf.LastCheckpointedMessageAt) {
				logger.Info("checkpoint already covers this message, skipping",
					zap.String("workflowID", p.WorkflowID),
					zap.String("messageID", message.ID))
				return nil
			}
			opts.MessageAt = &message.CreatedAt
		}
	}

	summary, err := checkpointManager.Create(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}

	if opts.MessageAt != nil {
		if err := workflow.SetLastCheckpointedMessageAt(ctx, p.WorkflowID, *opts.MessageAt); err != nil {
			logger.Errorf("failed to record checkpointed message timestamp: %v", err)
		}
	}

	logger.Info("checkpoint created",
		zap.String("checkpointID", summary.ID),
		zap.String("workflowID", p.WorkflowID),
		zap.Int("fileCount", summary.FileCount))

	if err := realtime.SendEvent(ctx, realtimetypes.CheckpointCreatedEvent{
		WorkflowID:   p.WorkflowID,
		CheckpointID: summary.ID,
		Note:         summary.Note,
		CreatedAt:    summary.CreatedAt,
	}); err != nil {
		logger.Errorf("failed to send checkpoint event: %v", err)
	}

	return nil
}
