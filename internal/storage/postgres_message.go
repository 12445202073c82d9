package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// --- Message Repository Methods ---

// SaveMessage inserts a message row. A duplicate external_id surfaces as a
// wrapped ErrDuplicate; the unique index is the system's only hard
// concurrency guarantee for webhook retries.
func (r *PostgresRepo) SaveMessage(ctx context.Context, message model.Message) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if workspaceID != message.WorkspaceID {
		return fmt.Errorf("%w: message WorkspaceID %s does not match tenant ID %s", apperrors.ErrBadRequest, message.WorkspaceID, workspaceID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&message).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMessage", operation)
	observer.ObserveDbOperationDuration("save", "message", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil {
		if !errors.Is(commitErr, apperrors.ErrDuplicate) {
			logger.FromContext(ctx).Error("Failed to save message after retries", zap.Error(commitErr))
		}
		return commitErr
	}
	return nil
}

// SaveMessageWithTouch inserts the message and bumps the conversation's
// last_activity_at in one transaction.
func (r *PostgresRepo) SaveMessageWithTouch(ctx context.Context, message model.Message) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if workspaceID != message.WorkspaceID {
		return fmt.Errorf("%w: message WorkspaceID %s does not match tenant ID %s", apperrors.ErrBadRequest, message.WorkspaceID, workspaceID)
	}

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		if createErr := tx.Create(&message).Error; createErr != nil {
			txErr = checkConstraintViolation(createErr)
			return txErr
		}

		touchResult := tx.Model(&model.Conversation{}).
			Where("id = ? AND workspace_id = ?", message.ConversationID, workspaceID).
			Updates(map[string]interface{}{
				"last_activity_at": utils.Now(),
				"updated_at":       utils.Now(),
			})
		if touchResult.Error != nil {
			txErr = checkConstraintViolation(touchResult.Error)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit message transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMessageWithTouch Commit", operation)
	observer.ObserveDbOperationDuration("save_with_touch", "message", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil {
		if !errors.Is(commitErr, apperrors.ErrDuplicate) {
			logger.FromContext(ctx).Error("Failed to save message with conversation touch after retries", zap.Error(commitErr))
		}
		return commitErr
	}
	return nil
}

// FindMessageByExternalID finds a message by its provider message id.
func (r *PostgresRepo) FindMessageByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var message model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).Where("external_id = ? AND workspace_id = ?", externalID, workspaceID).First(&message)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: external_id %s: %w", apperrors.ErrNotFound, externalID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByExternalID", operation)
	observer.ObserveDbOperationDuration("find_by_external_id", "message", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find message by external ID after retries",
			zap.String("external_id", externalID),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &message, nil
}

// ApplyMessageAck updates status and the matching receipt timestamp by
// external id. A missing row surfaces as ErrNotFound; acks never create
// message rows.
func (r *PostgresRepo) ApplyMessageAck(ctx context.Context, externalID, status string, at time.Time, meta datatypes.JSON) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": utils.Now(),
	}
	switch status {
	case model.MessageStatusDelivered:
		updates["delivered_at"] = at
	case model.MessageStatusRead:
		updates["read_at"] = at
	}
	if meta != nil {
		updates["last_metadata"] = meta
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("external_id = ? AND workspace_id = ?", externalID, workspaceID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: external_id %s", apperrors.ErrNotFound, externalID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ApplyMessageAck", operation)
	observer.ObserveDbOperationDuration("apply_ack", "message", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil && !errors.Is(commitErr, apperrors.ErrNotFound) {
		logger.FromContext(ctx).Error("Failed to apply message ack after retries",
			zap.String("external_id", externalID),
			zap.String("status", status),
			zap.Error(commitErr))
	}
	return commitErr
}

// ReconcileMessageSend records the outcome of an outbound transport call.
// The provider message id overwrites external_id for future ack correlation
// when the engine's response carries one.
func (r *PostgresRepo) ReconcileMessageSend(ctx context.Context, id, status, providerMessageID string, meta datatypes.JSON) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": utils.Now(),
	}
	if providerMessageID != "" {
		updates["external_id"] = providerMessageID
	}
	if meta != nil {
		updates["metadata"] = meta
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("id = ? AND workspace_id = ?", id, workspaceID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: message_id %s", apperrors.ErrNotFound, id)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ReconcileMessageSend", operation)
	observer.ObserveDbOperationDuration("reconcile_send", "message", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to reconcile outbound send after retries",
			zap.String("message_id", id),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// CountInboundMessagesSince counts contact-sent messages on a conversation
// created at or after the given instant.
func (r *PostgresRepo) CountInboundMessagesSince(ctx context.Context, conversationID string, since time.Time) (int64, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var count int64
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("conversation_id = ? AND workspace_id = ? AND sender_type = ? AND created_at >= ?",
				conversationID, workspaceID, model.SenderTypeContact, since).
			Count(&count)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "CountInboundMessagesSince", operation)
	observer.ObserveDbOperationDuration("count_inbound_since", "message", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to count inbound messages after retries",
			zap.String("conversation_id", conversationID),
			zap.Time("since", since),
			zap.Error(findErr))
		return 0, findErr
	}
	return count, nil
}
