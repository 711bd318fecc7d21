package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stagehand-dev/stagehand/pkg/checkpoint"
	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/param"
)

var checkpointManager *checkpoint.Manager

// StartListeners subscribes the worker to its channels and blocks until
// ctx is done.
func StartListeners(ctx context.Context) error {
	checkpointManager = checkpoint.NewManager(param.Get().DataDir)

	l := NewListener()

	l.AddHandler(ctx, "new_message", 5, time.Second*120, func(notification *pgconn.Notification) error {
		if err := handleNewMessageNotification(ctx, notification.Payload); err != nil {
			logger.Error(fmt.Errorf("failed to handle new message notification: %w", err))
			return fmt.Errorf("failed to handle new message notification: %w", err)
		}
		return nil
	}, newMessageLockKeyExtractor)

	l.AddHandler(ctx, "apply_proposal", 10, time.Minute*10, func(notification *pgconn.Notification) error {
		if err := handleApplyProposalNotification(ctx, notification.Payload); err != nil {
			logger.Error(fmt.Errorf("failed to handle apply proposal notification: %w", err))
			return fmt.Errorf("failed to handle apply proposal notification: %w", err)
		}
		return nil
	}, applyProposalLockKeyExtractor)

	l.AddHandler(ctx, "create_checkpoint", 5, time.Minute*5, func(notification *pgconn.Notification) error {
		if err := handleCreateCheckpointNotification(ctx, notification.Payload); err != nil {
			logger.Error(fmt.Errorf("failed to handle create checkpoint notification: %w", err))
			return fmt.Errorf("failed to handle create checkpoint notification: %w", err)
		}
		return nil
	}, checkpointLockKeyExtractor)

	l.AddHandler(ctx, "slack_notification", 2, time.Second*30, func(notification *pgconn.Notification) error {
		if err := handleSlackNotification(ctx, notification.Payload); err != nil {
			logger.Error(fmt.Errorf("failed to handle slack notification: %w", err))
			return fmt.Errorf("failed to handle slack notification: %w", err)
		}
		return nil
	}, nil)

	if err := l.Start(ctx); err != nil {
		return err
	}
	defer l.Stop(ctx)

	<-ctx.Done()

	return nil
}

// newMessageLockKeyExtractor serializes message handling per workflow so
// turn sequences in one conversation never interleave.
func newMessageLockKeyExtractor(payload []byte) (string, error) {
	return stringField(payload, "workflowId")
}

func applyProposalLockKeyExtractor(payload []byte) (string, error) {
	return stringField(payload, "proposalId")
}

func checkpointLockKeyExtractor(payload []byte) (string, error) {
	return stringField(payload, "workflowId")
}

func stringField(payload []byte, field string) (string, error) {
	var payloadMap map[string]interface{}
	if err := json.Unmarshal(payload, &payloadMap); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	value, ok := payloadMap[field].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%s not found in payload", field)
	}
	return value, nil
}
