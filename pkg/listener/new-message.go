package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stagehand-dev/stagehand/pkg/agent"
	"github.com/stagehand-dev/stagehand/pkg/llm"
	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/realtime"
	realtimetypes "github.com/stagehand-dev/stagehand/pkg/realtime/types"
	"github.com/stagehand-dev/stagehand/pkg/workflow"
	workflowtypes "github.com/stagehand-dev/stagehand/pkg/workflow/types"
	"github.com/stagehand-dev/stagehand/pkg/workspace"
	"go.uber.org/zap"
)

type newMessagePayload struct {
	ProjectID  string `json:"projectId"`
	WorkflowID string `json:"workflowId"`
	MessageID  string `json:"messageId"`
	Mode       string `json:"mode,omitempty"`
}

// handleNewMessageNotification runs one turn sequence for an incoming user
// message: call the model, extract the action, persist whatever proposals
// or plan updates come out, and report progress on the workflow's channel.
func handleNewMessageNotification(ctx context.Context, payload string) error {
	var p newMessagePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("failed to unmarshal new message payload: %w", err)
	}

	message, err := workspace.GetChatMessage(ctx, p.MessageID)
	if err != nil {
		return fmt.Errorf("failed to get chat message: %w", err)
	}

	// Workflows are created lazily on the first message of a conversation.
	var wf *workflowtypes.Workflow
	if p.WorkflowID != "" {
		wf, err = workflow.GetWorkflow(ctx, p.WorkflowID)
		if err != nil {
			return fmt.Errorf("failed to get workflow: %w", err)
		}
	} else {
		wf, err = workflow.CreateWorkflow(ctx, p.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to create workflow: %w", err)
		}
		logger.Info("created workflow for conversation",
			zap.String("workflowID", wf.ID),
			zap.String("projectID", p.ProjectID))
	}

	state := agent.TaskState{}
	if wf.Context != "" {
		if err := json.Unmarshal([]byte(wf.Context), &state); err != nil {
			return fmt.Errorf("failed to decode workflow context: %w", err)
		}
	}

	opts := agent.Options{
		ProjectID: p.ProjectID,
		Provider:  llm.ProviderConfig{},
		Mode:      p.Mode,
		AutoChain: true,
		Streamer: func(kind, data string) {
			realtime.Bus().Push(wf.ID, kind, data)
			// Deltas also accumulate on the message row so a reader
			// joining mid-turn sees the partial response.
			if kind == "delta" {
				if err := workspace.AppendChatMessageResponse(ctx, p.MessageID, data); err != nil {
					logger.Errorf("failed to append chat message response: %v", err)
				}
			}
		},
	}

	result, err := agent.RunTurn(ctx, opts, &state, message.Prompt)
	if err != nil {
		if statusErr := workflow.SetStatus(ctx, wf.ID, workflowtypes.WorkflowStatusFailed); statusErr != nil {
			logger.Errorf("failed to mark workflow failed: %v", statusErr)
		}
		notifyTurnFailed(ctx, wf, p.ProjectID, err)
		return fmt.Errorf("turn sequence failed: %w", err)
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode task state: %w", err)
	}
	if err := workflow.SetContext(ctx, wf.ID, string(stateJSON)); err != nil {
		return err
	}

	if result.PlanUpdate != nil {
		if err := applyPlanUpdate(ctx, wf, result.PlanUpdate); err != nil {
			return err
		}
	}

	for _, draft := range result.Proposals {
		proposal, err := workspace.CreateProposal(ctx, wf.ID, p.MessageID, draft.Type, draft.Fallback, draft.FileChanges, draft.Payload, draft.Summary)
		if err != nil {
			return fmt.Errorf("failed to persist proposal: %w", err)
		}

		toolName := string(draft.Type)
		if result.Action != nil {
			toolName = result.Action.Name
		}
		step, err := workflow.AppendStep(ctx, wf.ID, &proposal.ID, &toolName)
		if err != nil {
			return fmt.Errorf("failed to append step: %w", err)
		}

		if err := realtime.SendEvent(ctx, realtimetypes.ProposalUpdatedEvent{
			WorkflowID: wf.ID,
			Proposal:   proposal,
		}); err != nil {
			logger.Errorf("failed to send proposal event: %v", err)
		}
		if step != nil {
			if err := realtime.SendEvent(ctx, realtimetypes.StepUpdatedEvent{
				WorkflowID: wf.ID,
				Step:       step,
			}); err != nil {
				logger.Errorf("failed to send step event: %v", err)
			}
		}
	}

	if err := workspace.SetChatMessageResponse(ctx, p.MessageID, result.RawText); err != nil {
		return err
	}
	message.Response = result.RawText
	if err := realtime.SendEvent(ctx, realtimetypes.ChatMessageUpdatedEvent{
		ProjectID:   p.ProjectID,
		ChatMessage: message,
	}); err != nil {
		logger.Errorf("failed to send chat message event: %v", err)
	}

	if result.Done {
		if err := workflow.SetStatus(ctx, wf.ID, workflowtypes.WorkflowStatusCompleted); err != nil {
			return err
		}
		if err := realtime.SendEvent(ctx, realtimetypes.WorkflowStatusEvent{
			WorkflowID: wf.ID,
			Status:     workflowtypes.WorkflowStatusCompleted,
		}); err != nil {
			logger.Errorf("failed to send workflow status event: %v", err)
		}
		notifyWorkflowCompleted(ctx, wf, p.ProjectID)
	}

	return nil
}

// applyPlanUpdate appends steps for newly declared plan entries and moves
// the cursor. Existing steps are never renumbered.
func applyPlanUpdate(ctx context.Context, wf *workflowtypes.Workflow, update *agent.PlanUpdate) error {
	if len(update.Steps) > 0 && wf.Status == workflowtypes.WorkflowStatusExecuting {
		if err := workflow.SetStatus(ctx, wf.ID, workflowtypes.WorkflowStatusPlanning); err != nil {
			return err
		}
	}

	for i := len(wf.Steps); i < len(update.Steps); i++ {
		toolName := update.Steps[i]
		step, err := workflow.AppendStep(ctx, wf.ID, nil, &toolName)
		if err != nil {
			return fmt.Errorf("failed to append plan step: %w", err)
		}
		if step != nil {
			if err := realtime.SendEvent(ctx, realtimetypes.StepUpdatedEvent{
				WorkflowID: wf.ID,
				Step:       step,
			}); err != nil {
				logger.Errorf("failed to send step event: %v", err)
			}
		}
	}

	return workflow.SetCurrentStep(ctx, wf.ID, update.CurrentStep)
}

func turnFailedPayload(wf *workflowtypes.Workflow, projectID string, turnErr error) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"notificationType": "turn_failed",
		"workflowId":       wf.ID,
		"projectId":        projectID,
		"error":            turnErr.Error(),
	})
}

func notifyTurnFailed(ctx context.Context, wf *workflowtypes.Workflow, projectID string, turnErr error) {
	encoded, err := turnFailedPayload(wf, projectID, turnErr)
	if err != nil {
		logger.Errorf("failed to encode slack payload: %v", err)
		return
	}
	if err := persistence.EnqueueWork(ctx, "slack_notification", encoded); err != nil {
		logger.Errorf("failed to enqueue slack notification: %v", err)
	}
}

func notifyWorkflowCompleted(ctx context.Context, wf *workflowtypes.Workflow, projectID string) {
	payload := map[string]interface{}{
		"notificationType": "workflow_completed",
		"workflowId":       wf.ID,
		"projectId":        projectID,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("failed to encode slack payload: %v", err)
		return
	}
	if err := persistence.EnqueueWork(ctx, "slack_notification", encoded); err != nil {
		logger.Errorf("failed to enqueue slack notification: %v", err)
	}
}
