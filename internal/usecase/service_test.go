package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	fwdmock "gitlab.com/vantio/api/wa-crm-relay/internal/forwarder/mock"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/storage"
	storagemock "gitlab.com/vantio/api/wa-crm-relay/internal/storage/mock"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
)

const testWorkspaceID = "workspace-test-123"

// fixedRepoProvider hands the same mock repo set to every call.
type fixedRepoProvider struct {
	set *storage.RepoSet
}

func (p *fixedRepoProvider) Repos(ctx context.Context) (*storage.RepoSet, error) {
	return p.set, nil
}

// testRepos bundles the typed mocks behind a RepoSet.
type testRepos struct {
	contacts      *storagemock.ContactRepoMock
	conversations *storagemock.ConversationRepoMock
	messages      *storagemock.MessageRepoMock
	queues        *storagemock.QueueRepoMock
	connections   *storagemock.ConnectionRepoMock
	settings      *storagemock.SettingsRepoMock
	pipelines     *storagemock.PipelineRepoMock
	automations   *storagemock.AutomationRepoMock
	deadEvents    *storagemock.DeadEventRepoMock
}

func newTestRepos() *testRepos {
	return &testRepos{
		contacts:      new(storagemock.ContactRepoMock),
		conversations: new(storagemock.ConversationRepoMock),
		messages:      new(storagemock.MessageRepoMock),
		queues:        new(storagemock.QueueRepoMock),
		connections:   new(storagemock.ConnectionRepoMock),
		settings:      new(storagemock.SettingsRepoMock),
		pipelines:     new(storagemock.PipelineRepoMock),
		automations:   new(storagemock.AutomationRepoMock),
		deadEvents:    new(storagemock.DeadEventRepoMock),
	}
}

func (r *testRepos) set() *storage.RepoSet {
	return &storage.RepoSet{
		Contacts:      r.contacts,
		Conversations: r.conversations,
		Messages:      r.messages,
		Queues:        r.queues,
		Connections:   r.connections,
		Settings:      r.settings,
		Pipelines:     r.pipelines,
		Automations:   r.automations,
		DeadEvents:    r.deadEvents,
	}
}

func newTestService(t *testing.T) (*RelayService, *testRepos, *fwdmock.ClientMock) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	repos := newTestRepos()
	engine := new(fwdmock.ClientMock)
	svc := NewRelayService(&fixedRepoProvider{set: repos.set()}, engine, nil, nil)
	return svc, repos, engine
}

func workspaceContext() context.Context {
	return tenant.WithWorkspaceID(context.Background(), testWorkspaceID)
}

func notFoundErr(entity string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrNotFound, entity)
}

func duplicateErr(entity string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrDuplicate, entity)
}

func databaseErr() error {
	return fmt.Errorf("%w: connection refused", apperrors.ErrDatabase)
}

func testSettings() *model.WorkspaceSettings {
	return &model.WorkspaceSettings{
		ID:               "settings-1",
		WorkspaceID:      testWorkspaceID,
		EngineWebhookURL: "https://engine.example/hook",
	}
}

func testConnection(queueID string) *model.Connection {
	return &model.Connection{
		ID:           "conn-1",
		WorkspaceID:  testWorkspaceID,
		InstanceName: "instance-a",
		Provider:     model.ProviderEvolution,
		BaseURL:      "https://provider.example",
		APIKey:       "secret-key",
		QueueID:      queueID,
	}
}

func upsertPayload(externalID, remoteJid string, fromMe bool) *model.WebhookPayload {
	return &model.WebhookPayload{
		Event:    "MESSAGES_UPSERT",
		Instance: "instance-a",
		Data: model.WebhookData{
			Key: model.MessageKey{
				RemoteJid: remoteJid,
				FromMe:    fromMe,
				ID:        externalID,
			},
			Message:  &model.WebhookMessage{Conversation: "hello there"},
			PushName: "Alice",
		},
	}
}

func testLastMetadata() *model.LastMetadata {
	return &model.LastMetadata{
		MessageID:      "msg-1",
		MessageSubject: "v1.webhooks.messages.upsert." + testWorkspaceID,
		WorkspaceID:    testWorkspaceID,
	}
}

// expectNoWrites asserts that no repository mutation was attempted.
func (r *testRepos) expectNoWrites(t *testing.T) {
	r.contacts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	r.conversations.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	r.messages.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	r.messages.AssertNotCalled(t, "SaveWithTouch", mock.Anything, mock.Anything)
	r.conversations.AssertNotCalled(t, "Assign", mock.Anything, mock.Anything, mock.Anything)
}
