package usecase

import (
	"context"
	"fmt"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/cache"
	"gitlab.com/vantio/api/wa-crm-relay/internal/forwarder"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/storage"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
)

// AutomationJob describes one detached automation evaluation request.
type AutomationJob struct {
	WorkspaceID    string
	ContactID      string
	ConversationID string
}

// AutomationTrigger enqueues automation evaluation detached from the ingest
// path. Implemented by the AutomationEngine's worker pool.
type AutomationTrigger interface {
	Enqueue(job AutomationJob)
}

// RelayService implements webhook ingestion, the send gateway and quick
// conversation creation on top of per-workspace repositories.
type RelayService struct {
	repos       storage.RepoProvider
	engine      forwarder.Client
	settings    *cache.SettingsCache
	connections *cache.ConnectionCache
	automation  AutomationTrigger
}

// NewRelayService creates a new relay service. The automation trigger is
// attached separately because the engine needs the service for sends.
func NewRelayService(
	repos storage.RepoProvider,
	engine forwarder.Client,
	settings *cache.SettingsCache,
	connections *cache.ConnectionCache,
) *RelayService {
	return &RelayService{
		repos:       repos,
		engine:      engine,
		settings:    settings,
		connections: connections,
	}
}

// AttachAutomation wires the automation trigger after construction.
func (s *RelayService) AttachAutomation(trigger AutomationTrigger) {
	s.automation = trigger
}

// classifyRepoError wraps a repository error for the consumer's ack decision:
// transient infrastructure failures are retryable, everything else is fatal.
func classifyRepoError(err error, message string) error {
	if apperrors.IsDatabaseError(err) || apperrors.IsTimeoutError(err) {
		return apperrors.NewRetryable(err, message)
	}
	return apperrors.NewFatal(err, message)
}

// workspaceSettings returns the settings row for the workspace in context,
// consulting the TTL cache before Postgres.
func (s *RelayService) workspaceSettings(ctx context.Context, repos *storage.RepoSet) (*model.WorkspaceSettings, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	if s.settings != nil {
		if cached, found := s.settings.Get(workspaceID); found {
			return cached, nil
		}
	}

	settings, err := repos.Settings.FindByWorkspace(ctx)
	if err != nil {
		return nil, err
	}

	if s.settings != nil {
		s.settings.Set(workspaceID, settings)
	}
	return settings, nil
}

// connectionByInstance resolves the provider connection behind an instance
// name, consulting the TTL cache before Postgres.
func (s *RelayService) connectionByInstance(ctx context.Context, repos *storage.RepoSet, instanceName string) (*model.Connection, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	if s.connections != nil {
		if cached, found := s.connections.Get(workspaceID, instanceName); found {
			return cached, nil
		}
	}

	connection, err := repos.Connections.FindByInstanceName(ctx, instanceName)
	if err != nil {
		return nil, err
	}

	if s.connections != nil {
		s.connections.Set(workspaceID, instanceName, connection)
	}
	return connection, nil
}
