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

// --- Conversation Repository Methods ---

// SaveConversation inserts a new conversation row.
func (r *PostgresRepo) SaveConversation(ctx context.Context, conversation model.Conversation) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if workspaceID != conversation.WorkspaceID {
		return fmt.Errorf("%w: conversation WorkspaceID %s does not match tenant ID %s", apperrors.ErrBadRequest, conversation.WorkspaceID, workspaceID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&conversation).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveConversation", operation)
	observer.ObserveDbOperationDuration("save", "conversation", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save conversation after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindConversationByID finds a conversation by its ID.
func (r *PostgresRepo) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var conversation model.Conversation
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).First(&conversation)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: conversation_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConversationByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "conversation", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find conversation by ID after retries",
			zap.String("conversation_id", id),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &conversation, nil
}

// FindLatestConversationByContact returns the most recent conversation for
// the contact regardless of status. Resolution reuses this row rather than
// requiring an open one.
func (r *PostgresRepo) FindLatestConversationByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var conversation model.Conversation
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("contact_id = ? AND workspace_id = ?", contactID, workspaceID).
			Order("created_at DESC").
			First(&conversation)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: contact_id %s: %w", apperrors.ErrNotFound, contactID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindLatestConversationByContact", operation)
	observer.ObserveDbOperationDuration("find_latest_by_contact", "conversation", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find latest conversation by contact after retries",
			zap.String("contact_id", contactID),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &conversation, nil
}

// UpdateConversationConnection re-links a conversation to the instance that
// most recently received a message for it.
func (r *PostgresRepo) UpdateConversationConnection(ctx context.Context, conversationID, connectionID string) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ? AND workspace_id = ?", conversationID, workspaceID).
			Updates(map[string]interface{}{
				"connection_id": connectionID,
				"updated_at":    utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation_id %s", apperrors.ErrNotFound, conversationID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateConversationConnection", operation)
	observer.ObserveDbOperationDuration("update_connection", "conversation", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update conversation connection after retries",
			zap.String("conversation_id", conversationID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// SetConversationAgentActive toggles the AI agent flag on a conversation.
func (r *PostgresRepo) SetConversationAgentActive(ctx context.Context, conversationID string, active bool) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ? AND workspace_id = ?", conversationID, workspaceID).
			Updates(map[string]interface{}{
				"agente_ativo": active,
				"updated_at":   utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation_id %s", apperrors.ErrNotFound, conversationID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SetConversationAgentActive", operation)
	observer.ObserveDbOperationDuration("set_agent_active", "conversation", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to toggle conversation agent flag after retries",
			zap.String("conversation_id", conversationID),
			zap.Bool("active", active),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// AssignConversation persists the distribution result and its audit row in
// one transaction so an observer never sees an assignment without history.
func (r *PostgresRepo) AssignConversation(ctx context.Context, conversation model.Conversation, audit model.ConversationAssignment) error {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if workspaceID != conversation.WorkspaceID {
		return fmt.Errorf("%w: conversation WorkspaceID %s does not match tenant ID %s", apperrors.ErrBadRequest, conversation.WorkspaceID, workspaceID)
	}
	audit.WorkspaceID = workspaceID

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

		result := tx.Model(&model.Conversation{}).
			Where("id = ? AND workspace_id = ?", conversation.ID, workspaceID).
			Updates(map[string]interface{}{
				"assigned_user_id": conversation.AssignedUserID,
				"assigned_at":      conversation.AssignedAt,
				"queue_id":         conversation.QueueID,
				"status":           model.ConversationStatusOpen,
				"agente_ativo":     conversation.AgentActive,
				"updated_at":       utils.Now(),
			})
		if result.Error != nil {
			txErr = checkConstraintViolation(result.Error)
			return txErr
		}
		if result.RowsAffected == 0 {
			txErr = fmt.Errorf("%w: conversation_id %s", apperrors.ErrNotFound, conversation.ID)
			return txErr
		}

		if createErr := tx.Create(&audit).Error; createErr != nil {
			txErr = checkConstraintViolation(createErr)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit assignment transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AssignConversation Commit", operation)
	observer.ObserveDbOperationDuration("assign", "conversation", workspaceID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to assign conversation after retries",
			zap.String("conversation_id", conversation.ID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
