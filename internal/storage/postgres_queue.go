package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// --- Queue Repository Methods ---

// FindQueueByID finds a queue by its ID.
func (r *PostgresRepo) FindQueueByID(ctx context.Context, id string) (*model.Queue, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var queue model.Queue
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).First(&queue)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: queue_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindQueueByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "queue", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find queue by ID after retries",
			zap.String("queue_id", id),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &queue, nil
}

// FindActiveQueueMembers loads active queue members ordered by position.
func (r *PostgresRepo) FindActiveQueueMembers(ctx context.Context, queueID string) ([]model.QueueUser, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var members []model.QueueUser
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("queue_id = ? AND status = ?", queueID, model.QueueUserStatusActive).
			Order("order_position ASC").
			Find(&members)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindActiveQueueMembers", operation)
	observer.ObserveDbOperationDuration("find_active_members", "queue", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to load active queue members after retries",
			zap.String("queue_id", queueID),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	if members == nil {
		return []model.QueueUser{}, nil
	}
	return members, nil
}

// AdvanceSequentialIndex rotates the queue cursor with a single conditional
// UPDATE and returns the new index. Two concurrent distributions against
// the same queue therefore never observe the same cursor value.
func (r *PostgresRepo) AdvanceSequentialIndex(ctx context.Context, queueID string, memberCount int) (int, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if memberCount <= 0 {
		return 0, fmt.Errorf("%w: member count must be positive", apperrors.ErrBadRequest)
	}

	namer := r.db.NamingStrategy
	queueTable := model.Queue{}.TableName(namer)

	var newIndex int
	operation := func() error {
		updateSQL := fmt.Sprintf(`
			UPDATE %s
			SET last_assigned_user_index = (last_assigned_user_index + 1) %% ?,
			    updated_at = ?
			WHERE id = ? AND workspace_id = ?
			RETURNING last_assigned_user_index`, queueTable)

		result := r.db.WithContext(ctx).Raw(updateSQL, memberCount, utils.Now(), queueID, workspaceID).Scan(&newIndex)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: queue_id %s", apperrors.ErrNotFound, queueID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AdvanceSequentialIndex", operation)
	observer.ObserveDbOperationDuration("advance_sequential_index", "queue", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to advance sequential queue index after retries",
			zap.String("queue_id", queueID),
			zap.Int("member_count", memberCount),
			zap.Error(commitErr))
		return 0, commitErr
	}
	return newIndex, nil
}
