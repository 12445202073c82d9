package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// --- Pipeline Repository Methods ---

// FindOpenCardsByContact loads the contact's open pipeline cards.
func (r *PostgresRepo) FindOpenCardsByContact(ctx context.Context, contactID string) ([]model.PipelineCard, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var cards []model.PipelineCard
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("contact_id = ? AND workspace_id = ? AND status = ?", contactID, workspaceID, model.CardStatusOpen).
			Find(&cards)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindOpenCardsByContact", operation)
	observer.ObserveDbOperationDuration("find_open_by_contact", "pipeline_card", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to load open cards by contact after retries",
			zap.String("contact_id", contactID),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	if cards == nil {
		return []model.PipelineCard{}, nil
	}
	return cards, nil
}

// ColumnEntryAt returns when the card most recently entered the column, or
// nil when no move history exists. Automation triggers fall back to card
// creation time in that case.
func (r *PostgresRepo) ColumnEntryAt(ctx context.Context, cardID, columnID string) (*time.Time, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var event model.CardColumnEvent
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("card_id = ? AND column_id = ?", cardID, columnID).
			Order("created_at DESC").
			First(&event)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: card %s column %s: %w", apperrors.ErrNotFound, cardID, columnID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ColumnEntryAt", operation)
	observer.ObserveDbOperationDuration("column_entry_at", "pipeline_card", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, nil
		}
		loggerCtx.Error("Failed to resolve column entry date after retries",
			zap.String("card_id", cardID),
			zap.String("column_id", columnID),
			zap.Error(findErr))
		return nil, findErr
	}
	entry := event.CreatedAt
	return &entry, nil
}

// MoveCard updates the card's column and records the move event in one
// transaction.
func (r *PostgresRepo) MoveCard(ctx context.Context, cardID, fromColumnID, toColumnID, movedBy string) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
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

		result := tx.Model(&model.PipelineCard{}).
			Where("id = ? AND workspace_id = ?", cardID, workspaceID).
			Updates(map[string]interface{}{
				"column_id":  toColumnID,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			txErr = checkConstraintViolation(result.Error)
			return txErr
		}
		if result.RowsAffected == 0 {
			txErr = fmt.Errorf("%w: card_id %s", apperrors.ErrNotFound, cardID)
			return txErr
		}

		event := model.CardColumnEvent{
			ID:           uuid.New().String(),
			WorkspaceID:  workspaceID,
			CardID:       cardID,
			ColumnID:     toColumnID,
			FromColumnID: fromColumnID,
			MovedBy:      movedBy,
		}
		if createErr := tx.Create(&event).Error; createErr != nil {
			txErr = checkConstraintViolation(createErr)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit card move transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MoveCard Commit", operation)
	observer.ObserveDbOperationDuration("move_card", "pipeline_card", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to move pipeline card after retries",
			zap.String("card_id", cardID),
			zap.String("to_column_id", toColumnID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
