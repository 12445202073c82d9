package storage

import (
	"context"

	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
)

// RepoSet bundles the per-workspace repositories handed to the service layer.
// All repositories in a set share one PostgresRepo connection.
type RepoSet struct {
	Contacts      ContactRepo
	Conversations ConversationRepo
	Messages      MessageRepo
	Queues        QueueRepo
	Connections   ConnectionRepo
	Settings      SettingsRepo
	Pipelines     PipelineRepo
	Automations   AutomationRepo
	DeadEvents    DeadEventRepo
}

// RepoProvider resolves the repository set for the workspace carried in the
// context.
type RepoProvider interface {
	Repos(ctx context.Context) (*RepoSet, error)
}

var _ RepoProvider = (*Manager)(nil)

// Repos resolves the workspace connection and wraps it in adapters.
func (m *Manager) Repos(ctx context.Context) (*RepoSet, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	repo, err := m.Get(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	return &RepoSet{
		Contacts:      NewContactRepoAdapter(repo),
		Conversations: NewConversationRepoAdapter(repo),
		Messages:      NewMessageRepoAdapter(repo),
		Queues:        NewQueueRepoAdapter(repo),
		Connections:   NewConnectionRepoAdapter(repo),
		Settings:      NewSettingsRepoAdapter(repo),
		Pipelines:     NewPipelineRepoAdapter(repo),
		Automations:   NewAutomationRepoAdapter(repo),
		DeadEvents:    NewDeadEventRepoAdapter(repo),
	}, nil
}
