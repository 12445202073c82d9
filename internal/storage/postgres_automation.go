package storage

import (
	"context"
	"errors"
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

// --- Automation Repository Methods ---

// FindActiveAutomationsByColumn loads the active rules bound to a column.
func (r *PostgresRepo) FindActiveAutomationsByColumn(ctx context.Context, columnID string) ([]model.Automation, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var automations []model.Automation
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("column_id = ? AND workspace_id = ? AND active = ?", columnID, workspaceID, true).
			Find(&automations)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindActiveAutomationsByColumn", operation)
	observer.ObserveDbOperationDuration("find_active_by_column", "automation", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to load automations by column after retries",
			zap.String("column_id", columnID),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	if automations == nil {
		return []model.Automation{}, nil
	}
	return automations, nil
}

// ClaimAutomationExecution inserts the idempotency guard row before any
// action runs. A wrapped ErrDuplicate means another evaluation already
// claimed the firing and the caller must skip.
func (r *PostgresRepo) ClaimAutomationExecution(ctx context.Context, execution model.AutomationExecution) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	execution.WorkspaceID = workspaceID

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&execution).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ClaimAutomationExecution", operation)
	observer.ObserveDbOperationDuration("claim_execution", "automation", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil && !errors.Is(commitErr, apperrors.ErrDuplicate) {
		logger.FromContext(ctx).Error("Failed to claim automation execution after retries",
			zap.String("automation_id", execution.AutomationID),
			zap.String("card_id", execution.CardID),
			zap.Error(commitErr))
	}
	return commitErr
}

// FindFunnelSteps loads a funnel's steps in send order.
func (r *PostgresRepo) FindFunnelSteps(ctx context.Context, funnelID string) ([]model.FunnelStep, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var steps []model.FunnelStep
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("funnel_id = ? AND workspace_id = ?", funnelID, workspaceID).
			Order("step_order ASC").
			Find(&steps)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindFunnelSteps", operation)
	observer.ObserveDbOperationDuration("find_funnel_steps", "automation", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to load funnel steps after retries",
			zap.String("funnel_id", funnelID),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	if steps == nil {
		return []model.FunnelStep{}, nil
	}
	return steps, nil
}
