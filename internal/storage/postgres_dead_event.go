package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// SaveDeadWebhookEvent parks an event whose DLQ retries ran out.
func (r *PostgresRepo) SaveDeadWebhookEvent(ctx context.Context, event model.DeadWebhookEvent) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	event.WorkspaceID = workspaceID

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&event).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveDeadWebhookEvent Commit", operation)
	observer.ObserveDbOperationDuration("save", "dead_webhook_event", workspaceID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save dead webhook event after retries",
			zap.String("source_subject", event.SourceSubject),
			zap.String("workspace_id", event.WorkspaceID),
			zap.Error(commitErr))
		return commitErr
	}

	logger.FromContext(ctx).Info("Parked dead webhook event",
		zap.Uint("event_id", event.ID),
		zap.String("source_subject", event.SourceSubject))
	return nil
}
