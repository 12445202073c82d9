package storage

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
)

// Manager hands out one PostgresRepo per workspace. Each workspace lives in
// its own Postgres schema, so a repo created for one tenant must never serve
// another.
type Manager struct {
	dsn         string
	autoMigrate bool

	mu    sync.RWMutex
	repos map[string]*PostgresRepo
}

// NewManager creates a repository manager. Repos are connected lazily on
// first use per workspace.
func NewManager(dsn string, autoMigrate bool) *Manager {
	return &Manager{
		dsn:         dsn,
		autoMigrate: autoMigrate,
		repos:       make(map[string]*PostgresRepo),
	}
}

// Get returns the workspace's repository, connecting and migrating its
// schema on first access.
func (m *Manager) Get(ctx context.Context, workspaceID string) (*PostgresRepo, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace ID is required", apperrors.ErrBadRequest)
	}

	m.mu.RLock()
	repo, ok := m.repos[workspaceID]
	m.mu.RUnlock()
	if ok {
		return repo, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if repo, ok = m.repos[workspaceID]; ok {
		return repo, nil
	}

	logger.FromContext(ctx).Info("Connecting workspace repository",
		zap.String("workspace_id", workspaceID),
		zap.String("schema", SchemaName(workspaceID)))

	repo, err := NewPostgresRepo(m.dsn, m.autoMigrate, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository for workspace %s: %w", workspaceID, err)
	}
	m.repos[workspaceID] = repo
	return repo, nil
}

// Ping verifies every connected workspace repository. Workspaces that have
// not been touched yet connect lazily and are not checked.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for workspaceID, repo := range m.repos {
		if err := repo.Ping(ctx); err != nil {
			return fmt.Errorf("workspace %s database unreachable: %w", workspaceID, err)
		}
	}
	return nil
}

// CloseAll closes every connected workspace repository.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for workspaceID, repo := range m.repos {
		if err := repo.Close(ctx); err != nil {
			logger.FromContext(ctx).Warn("Failed to close workspace repository",
				zap.String("workspace_id", workspaceID),
				zap.Error(err))
		}
	}
	m.repos = make(map[string]*PostgresRepo)
}
