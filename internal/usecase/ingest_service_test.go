package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

func TestProcessUpsert_NewContactAndConversation(t *testing.T) {
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	repos.messages.On("FindByExternalID", mock.Anything, "EXT-1").Return(nil, notFoundErr("message"))
	repos.connections.On("FindByInstanceName", mock.Anything, "instance-a").Return(testConnection(""), nil)
	repos.contacts.On("FindByPhone", mock.Anything, "628123456789").Return(nil, notFoundErr("contact"))
	repos.contacts.On("Save", mock.Anything, mock.MatchedBy(func(c model.Contact) bool {
		return c.Phone == "628123456789" && c.Name == "Alice" && c.WorkspaceID == testWorkspaceID
	})).Return(nil)
	repos.conversations.On("FindLatestByContact", mock.Anything, mock.Anything).Return(nil, notFoundErr("conversation"))
	repos.conversations.On("Save", mock.Anything, mock.MatchedBy(func(c model.Conversation) bool {
		return c.Status == model.ConversationStatusOpen && c.ConnectionID == "conn-1" && !c.AgentActive
	})).Return(nil)
	repos.messages.On("SaveWithTouch", mock.Anything, mock.MatchedBy(func(m model.Message) bool {
		return m.ExternalID == "EXT-1" &&
			m.SenderType == model.SenderTypeContact &&
			m.Status == model.MessageStatusReceived &&
			m.MessageType == model.MessageTypeText &&
			m.Content == "hello there"
	})).Return(nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(testSettings(), nil)
	engine.On("ForwardEvent", mock.Anything, "https://engine.example/hook", mock.MatchedBy(func(p *model.ForwardPayload) bool {
		return p.EventType == "upsert" &&
			p.MessageDirection == model.DirectionInbound &&
			p.PhoneNumber == "628123456789" &&
			p.ProcessedData.MessageID != ""
	})).Return(nil)

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "628123456789@s.whatsapp.net", false), testLastMetadata())

	require.NoError(t, err)
	repos.messages.AssertExpectations(t)
	repos.contacts.AssertExpectations(t)
	repos.conversations.AssertExpectations(t)
	engine.AssertExpectations(t)
}

func TestProcessUpsert_DuplicateShortCircuits(t *testing.T) {
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	existing := &model.Message{ID: "msg-existing", ExternalID: "EXT-1"}
	repos.messages.On("FindByExternalID", mock.Anything, "EXT-1").Return(existing, nil)

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "628123456789@s.whatsapp.net", false), testLastMetadata())

	require.NoError(t, err)
	repos.expectNoWrites(t)
	repos.contacts.AssertNotCalled(t, "FindByPhone", mock.Anything, mock.Anything)
	engine.AssertNotCalled(t, "ForwardEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessUpsert_GroupJIDExcluded(t *testing.T) {
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "12036302@g.us", false), testLastMetadata())

	require.NoError(t, err)
	repos.expectNoWrites(t)
	repos.messages.AssertNotCalled(t, "FindByExternalID", mock.Anything, mock.Anything)
	engine.AssertNotCalled(t, "ForwardEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessUpsert_BroadcastExcluded(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "status@broadcast", false), testLastMetadata())

	require.NoError(t, err)
	repos.expectNoWrites(t)
}

func TestProcessUpsert_UnknownInstanceDropped(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	repos.messages.On("FindByExternalID", mock.Anything, "EXT-1").Return(nil, notFoundErr("message"))
	repos.connections.On("FindByInstanceName", mock.Anything, "instance-a").Return(nil, notFoundErr("connection"))

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "628123456789@s.whatsapp.net", false), testLastMetadata())

	require.NoError(t, err)
	repos.expectNoWrites(t)
}

func TestProcessUpsert_ConcurrentDuplicateInsertIsSuccess(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	contact := &model.Contact{ID: "contact-1", Phone: "628123456789"}
	conversation := &model.Conversation{ID: "conv-1", ContactID: "contact-1", ConnectionID: "conn-1"}

	repos.messages.On("FindByExternalID", mock.Anything, "EXT-1").Return(nil, notFoundErr("message"))
	repos.connections.On("FindByInstanceName", mock.Anything, "instance-a").Return(testConnection(""), nil)
	repos.contacts.On("FindByPhone", mock.Anything, "628123456789").Return(contact, nil)
	repos.conversations.On("FindLatestByContact", mock.Anything, "contact-1").Return(conversation, nil)
	repos.messages.On("SaveWithTouch", mock.Anything, mock.Anything).Return(duplicateErr("message"))

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "628123456789@s.whatsapp.net", false), testLastMetadata())

	require.NoError(t, err)
}

func TestProcessUpsert_DatabaseErrorIsRetryable(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	repos.messages.On("FindByExternalID", mock.Anything, "EXT-1").Return(nil, databaseErr())

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "628123456789@s.whatsapp.net", false), testLastMetadata())

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestProcessUpsert_FromMePersistsOutboundEcho(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	contact := &model.Contact{ID: "contact-1", Phone: "628123456789"}
	conversation := &model.Conversation{ID: "conv-1", ContactID: "contact-1", ConnectionID: "conn-1"}

	repos.messages.On("FindByExternalID", mock.Anything, "EXT-1").Return(nil, notFoundErr("message"))
	repos.connections.On("FindByInstanceName", mock.Anything, "instance-a").Return(testConnection(""), nil)
	repos.contacts.On("FindByPhone", mock.Anything, "628123456789").Return(contact, nil)
	repos.conversations.On("FindLatestByContact", mock.Anything, "contact-1").Return(conversation, nil)
	repos.messages.On("SaveWithTouch", mock.Anything, mock.MatchedBy(func(m model.Message) bool {
		return m.SenderType == model.SenderTypeAgent && m.Status == model.MessageStatusSent
	})).Return(nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(nil, notFoundErr("settings"))

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "628123456789@s.whatsapp.net", true), testLastMetadata())

	require.NoError(t, err)
	repos.messages.AssertExpectations(t)
}

func TestProcessUpsert_ForwardFailureDoesNotFailIngestion(t *testing.T) {
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	contact := &model.Contact{ID: "contact-1", Phone: "628123456789"}
	conversation := &model.Conversation{ID: "conv-1", ContactID: "contact-1", ConnectionID: "conn-1"}

	repos.messages.On("FindByExternalID", mock.Anything, "EXT-1").Return(nil, notFoundErr("message"))
	repos.connections.On("FindByInstanceName", mock.Anything, "instance-a").Return(testConnection(""), nil)
	repos.contacts.On("FindByPhone", mock.Anything, "628123456789").Return(contact, nil)
	repos.conversations.On("FindLatestByContact", mock.Anything, "contact-1").Return(conversation, nil)
	repos.messages.On("SaveWithTouch", mock.Anything, mock.Anything).Return(nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(testSettings(), nil)
	engine.On("ForwardEvent", mock.Anything, mock.Anything, mock.Anything).Return(notFoundErr("transport"))

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "628123456789@s.whatsapp.net", false), testLastMetadata())

	require.NoError(t, err)
}

func TestProcessUpsert_RelinksConnectionOnInstanceChange(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	contact := &model.Contact{ID: "contact-1", Phone: "628123456789"}
	conversation := &model.Conversation{ID: "conv-1", ContactID: "contact-1", ConnectionID: "conn-old"}

	repos.messages.On("FindByExternalID", mock.Anything, "EXT-1").Return(nil, notFoundErr("message"))
	repos.connections.On("FindByInstanceName", mock.Anything, "instance-a").Return(testConnection(""), nil)
	repos.contacts.On("FindByPhone", mock.Anything, "628123456789").Return(contact, nil)
	repos.conversations.On("FindLatestByContact", mock.Anything, "contact-1").Return(conversation, nil)
	repos.conversations.On("UpdateConnection", mock.Anything, "conv-1", "conn-1").Return(nil)
	repos.messages.On("SaveWithTouch", mock.Anything, mock.Anything).Return(nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(nil, notFoundErr("settings"))

	err := svc.ProcessUpsert(ctx, upsertPayload("EXT-1", "628123456789@s.whatsapp.net", false), testLastMetadata())

	require.NoError(t, err)
	repos.conversations.AssertCalled(t, "UpdateConnection", mock.Anything, "conv-1", "conn-1")
}

func TestProcessUpdate_DeliveredAck(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	ack := 2
	payload := &model.WebhookPayload{
		Event:    "MESSAGES_UPDATE",
		Instance: "instance-a",
		Data: model.WebhookData{
			Key: model.MessageKey{RemoteJid: "628123456789@s.whatsapp.net", FromMe: true, ID: "EXT-1"},
			Ack: &ack,
		},
	}

	repos.messages.On("ApplyAck", mock.Anything, "EXT-1", model.MessageStatusDelivered, mock.AnythingOfType("time.Time"), mock.Anything).Return(nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(nil, notFoundErr("settings"))

	err := svc.ProcessUpdate(ctx, payload, testLastMetadata())

	require.NoError(t, err)
	repos.messages.AssertExpectations(t)
}

func TestProcessUpdate_StringFormAck(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	payload := &model.WebhookPayload{
		Event:    "MESSAGES_UPDATE",
		Instance: "instance-a",
		Data: model.WebhookData{
			Key:    model.MessageKey{RemoteJid: "628123456789@s.whatsapp.net", FromMe: true, ID: "EXT-1"},
			Status: "READ",
		},
	}

	repos.messages.On("ApplyAck", mock.Anything, "EXT-1", model.MessageStatusRead, mock.AnythingOfType("time.Time"), mock.Anything).Return(nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(nil, notFoundErr("settings"))

	err := svc.ProcessUpdate(ctx, payload, testLastMetadata())

	require.NoError(t, err)
}

func TestProcessUpdate_UnknownAckLevelIgnored(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	ack := 7
	payload := &model.WebhookPayload{
		Event:    "MESSAGES_UPDATE",
		Instance: "instance-a",
		Data: model.WebhookData{
			Key: model.MessageKey{ID: "EXT-1"},
			Ack: &ack,
		},
	}

	err := svc.ProcessUpdate(ctx, payload, testLastMetadata())

	require.NoError(t, err)
	repos.messages.AssertNotCalled(t, "ApplyAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessUpdate_AckForUnknownMessageDropped(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	ack := 3
	payload := &model.WebhookPayload{
		Event:    "MESSAGES_UPDATE",
		Instance: "instance-a",
		Data: model.WebhookData{
			Key: model.MessageKey{ID: "EXT-unknown"},
			Ack: &ack,
		},
	}

	repos.messages.On("ApplyAck", mock.Anything, "EXT-unknown", model.MessageStatusRead, mock.AnythingOfType("time.Time"), mock.Anything).Return(notFoundErr("message"))

	err := svc.ProcessUpdate(ctx, payload, testLastMetadata())

	require.NoError(t, err)
}

func TestProcessUpdate_UsesMessageTimestamp(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	ack := 2
	ts := int64(1_700_000_000)
	payload := &model.WebhookPayload{
		Event:    "MESSAGES_UPDATE",
		Instance: "instance-a",
		Data: model.WebhookData{
			Key:              model.MessageKey{ID: "EXT-1"},
			Ack:              &ack,
			MessageTimestamp: ts,
		},
	}

	repos.messages.On("ApplyAck", mock.Anything, "EXT-1", model.MessageStatusDelivered, mock.MatchedBy(func(at time.Time) bool {
		return at.Unix() == ts
	}), mock.Anything).Return(nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(nil, notFoundErr("settings"))

	err := svc.ProcessUpdate(ctx, payload, testLastMetadata())

	require.NoError(t, err)
	repos.messages.AssertExpectations(t)
}
