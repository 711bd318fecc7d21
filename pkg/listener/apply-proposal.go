package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/merge"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/realtime"
	realtimetypes "github.com/stagehand-dev/stagehand/pkg/realtime/types"
	"github.com/stagehand-dev/stagehand/pkg/workflow"
	workflowtypes "github.com/stagehand-dev/stagehand/pkg/workflow/types"
	"github.com/stagehand-dev/stagehand/pkg/workspace"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
	"go.uber.org/zap"
)

type applyProposalPayload struct {
	ProjectID  string `json:"projectId"`
	ProposalID string `json:"proposalId"`
}

// handleApplyProposalNotification commits an approved proposal: freshness
// check, splice, step bookkeeping, then an automatic checkpoint.
func handleApplyProposalNotification(ctx context.Context, payload string) error {
	var p applyProposalPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("failed to unmarshal apply proposal payload: %w", err)
	}

	proposal, err := workspace.GetProposal(ctx, p.ProposalID)
	if err != nil {
		return fmt.Errorf("failed to get proposal: %w", err)
	}

	step, err := findStepForProposal(ctx, proposal)
	if err != nil {
		logger.Errorf("failed to find step for proposal %s: %v", proposal.ID, err)
	}

	if step != nil {
		markStep(ctx, proposal.WorkflowID, step.ID, workflowtypes.StepStatusExecuting, nil)
	}

	if err := applyByType(ctx, p.ProjectID, proposal); err != nil {
		errText := err.Error()
		if step != nil {
			markStep(ctx, proposal.WorkflowID, step.ID, workflowtypes.StepStatusFailed, &errText)
		}

		var stale *merge.StaleError
		if errors.As(err, &stale) {
			// The approval no longer matches reality. Surface it and let
			// the approval layer re-propose; retrying will not help.
			logger.Warn("proposal is stale",
				zap.String("proposalID", proposal.ID),
				zap.String("path", stale.Path))
			sendProposalEvent(ctx, proposal)
			return nil
		}
		return fmt.Errorf("failed to apply proposal: %w", err)
	}

	if step != nil {
		markStep(ctx, proposal.WorkflowID, step.ID, workflowtypes.StepStatusCompleted, nil)
	}

	// Reload so the event carries the applied status and event log.
	if updated, err := workspace.GetProposal(ctx, proposal.ID); err == nil {
		proposal = updated
	}
	sendProposalEvent(ctx, proposal)

	enqueueAutoCheckpoint(ctx, p.ProjectID, proposal)

	return nil
}

// applyByType executes the proposal's durable change. Completion proposals
// carry no change; they just close the loop.
func applyByType(ctx context.Context, projectID string, proposal *workspacetypes.Proposal) error {
	switch proposal.Type {
	case workspacetypes.ProposalTypeEdit:
		return workspace.CommitProposal(ctx, projectID, proposal)

	case workspacetypes.ProposalTypeObject:
		op := workspace.ObjectOp{}
		encoded, err := json.Marshal(proposal.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode object op: %w", err)
		}
		if err := json.Unmarshal(encoded, &op); err != nil {
			return fmt.Errorf("failed to decode object op: %w", err)
		}
		if err := workspace.ApplyObjectOp(projectID, op); err != nil {
			return err
		}
		return workspace.MarkProposalApplied(ctx, proposal.ID)

	case workspacetypes.ProposalTypeAsset:
		return applyAssetProposal(ctx, projectID, proposal)

	case workspacetypes.ProposalTypeCompletion:
		return workspace.MarkProposalApplied(ctx, proposal.ID)

	default:
		return fmt.Errorf("unknown proposal type %q", proposal.Type)
	}
}

// applyAssetProposal appends the referenced asset to the target document,
// creating it when absent.
func applyAssetProposal(ctx context.Context, projectID string, proposal *workspacetypes.Proposal) error {
	assetID, _ := proposal.Payload["assetId"].(string)
	if assetID == "" {
		query, _ := proposal.Payload["query"].(string)
		assets, err := workspace.FindAssets(query)
		if err != nil {
			return err
		}
		if len(assets) == 0 {
			return fmt.Errorf("no asset matches %q", query)
		}
		assetID = assets[0].ID
	}

	asset, err := workspace.GetAsset(assetID)
	if err != nil {
		return err
	}

	path, _ := proposal.Payload["path"].(string)
	if path == "" {
		path = assetID
	}

	content := asset.Content
	if doc, err := workspace.GetDocument(projectID, path); err == nil {
		content = doc.Content + "\n" + asset.Content
	}
	if err := workspace.WriteDocument(projectID, path, content); err != nil {
		return err
	}

	return workspace.MarkProposalApplied(ctx, proposal.ID)
}

func findStepForProposal(ctx context.Context, proposal *workspacetypes.Proposal) (*workflowtypes.Step, error) {
	wf, err := workflow.GetWorkflow(ctx, proposal.WorkflowID)
	if err != nil {
		return nil, err
	}
	for i := range wf.Steps {
		if wf.Steps[i].ProposalID != nil && *wf.Steps[i].ProposalID == proposal.ID {
			return &wf.Steps[i], nil
		}
	}
	return nil, nil
}

func markStep(ctx context.Context, workflowID, stepID string, status workflowtypes.StepStatus, errText *string) {
	step, err := workflow.UpdateStep(ctx, workflowID, stepID, workflowtypes.StepPatch{
		Status: &status,
		Error:  errText,
	})
	if err != nil {
		logger.Errorf("failed to update step %s: %v", stepID, err)
		return
	}
	if step == nil {
		return
	}
	if err := realtime.SendEvent(ctx, realtimetypes.StepUpdatedEvent{
		WorkflowID: workflowID,
		Step:       step,
	}); err != nil {
		logger.Errorf("failed to send step event: %v", err)
	}
}

func sendProposalEvent(ctx context.Context, proposal *workspacetypes.Proposal) {
	if err := realtime.SendEvent(ctx, realtimetypes.ProposalUpdatedEvent{
		WorkflowID: proposal.WorkflowID,
		Proposal:   proposal,
	}); err != nil {
		logger.Errorf("failed to send proposal event: %v", err)
	}
}

func enqueueAutoCheckpoint(ctx context.Context, projectID string, proposal *workspacetypes.Proposal) {
	payload := map[string]interface{}{
		"workflowId":       proposal.WorkflowID,
		"projectId":        projectID,
		"proposalId":       proposal.ID,
		"note":             fmt.Sprintf("after applying proposal %s", proposal.ID),
		"includeWorkspace": true,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("failed to encode checkpoint payload: %v", err)
		return
	}
	if err := persistence.EnqueueWork(ctx, "create_checkpoint", encoded); err != nil {
		logger.Errorf("failed to enqueue checkpoint: %v", err)
	}
}
