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

// --- Connection Repository Methods ---

// FindConnectionByID finds a provider connection by its ID.
func (r *PostgresRepo) FindConnectionByID(ctx context.Context, id string) (*model.Connection, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var connection model.Connection
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).First(&connection)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: connection_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConnectionByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "connection", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find connection by ID after retries",
			zap.String("connection_id", id),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &connection, nil
}

// FindConnectionByInstanceName resolves the connection matching a webhook's
// instance identifier.
func (r *PostgresRepo) FindConnectionByInstanceName(ctx context.Context, instanceName string) (*model.Connection, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var connection model.Connection
	operation := func() error {
		result := r.db.WithContext(ctx).Where("instance_name = ? AND workspace_id = ?", instanceName, workspaceID).First(&connection)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: instance %s: %w", apperrors.ErrNotFound, instanceName, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConnectionByInstanceName", operation)
	observer.ObserveDbOperationDuration("find_by_instance", "connection", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find connection by instance name after retries",
			zap.String("instance_name", instanceName),
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &connection, nil
}

// FindWorkspaceSettings loads the typed settings row for the tenant.
// Absence is reported as ErrNotFound; callers decide whether the missing
// configuration is terminal for their operation.
func (r *PostgresRepo) FindWorkspaceSettings(ctx context.Context) (*model.WorkspaceSettings, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var settings model.WorkspaceSettings
	operation := func() error {
		result := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).First(&settings)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: workspace %s settings: %w", apperrors.ErrNotFound, workspaceID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindWorkspaceSettings", operation)
	observer.ObserveDbOperationDuration("find_settings", "workspace", workspaceID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to load workspace settings after retries",
			zap.String("workspace_id", workspaceID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &settings, nil
}
