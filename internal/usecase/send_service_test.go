package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

func sendRequest() *model.SendMessageRequest {
	return &model.SendMessageRequest{
		Content:         "hello from agent",
		MessageType:     model.MessageTypeText,
		ClientMessageID: "client-msg-1",
	}
}

func sendFixtures(repos *testRepos) {
	conversation := &model.Conversation{ID: "conv-1", WorkspaceID: testWorkspaceID, ContactID: "contact-1", ConnectionID: "conn-1"}
	contact := &model.Contact{ID: "contact-1", Phone: "628123456789"}

	repos.conversations.On("FindByID", mock.Anything, "conv-1").Return(conversation, nil)
	repos.contacts.On("FindByID", mock.Anything, "contact-1").Return(contact, nil)
	repos.connections.On("FindByID", mock.Anything, "conn-1").Return(testConnection(""), nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(testSettings(), nil)
}

func TestSendMessage_Success(t *testing.T) {
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	sendFixtures(repos)
	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(nil, notFoundErr("message"))
	repos.messages.On("SaveWithTouch", mock.Anything, mock.MatchedBy(func(m model.Message) bool {
		return m.Status == model.MessageStatusSending &&
			m.SenderType == model.SenderTypeAgent &&
			m.ExternalID == "client-msg-1"
	})).Return(nil)
	engine.On("SendMessage", mock.Anything, "https://engine.example/hook", mock.MatchedBy(func(r *model.SendRequest) bool {
		return r.Direction == model.DirectionOutbound &&
			r.PhoneNumber == "628123456789" &&
			r.InstanceName == "instance-a" &&
			r.ProviderBaseURL == "https://provider.example" &&
			r.ProviderAPIKey == "secret-key"
	})).Return(&model.SendResponse{
		Success: true,
		Key:     &model.MessageKey{ID: "PROVIDER-XYZ"},
	}, nil)
	repos.messages.On("ReconcileSend", mock.Anything, mock.Anything, model.MessageStatusSent, "PROVIDER-XYZ", mock.Anything).Return(nil)

	message, err := svc.SendMessage(ctx, "conv-1", sendRequest())

	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusSent, message.Status)
	assert.Equal(t, "PROVIDER-XYZ", message.ExternalID)
	repos.messages.AssertExpectations(t)
	engine.AssertExpectations(t)
}

func TestSendMessage_DuplicateClientIDReturnsExisting(t *testing.T) {
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	existing := &model.Message{ID: "msg-1", ExternalID: "client-msg-1", Status: model.MessageStatusSent}
	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(existing, nil)

	message, err := svc.SendMessage(ctx, "conv-1", sendRequest())

	require.NoError(t, err)
	assert.Equal(t, "msg-1", message.ID)
	engine.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	repos.messages.AssertNotCalled(t, "SaveWithTouch", mock.Anything, mock.Anything)
}

func TestSendMessage_MissingConversationIs404(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(nil, notFoundErr("message"))
	repos.conversations.On("FindByID", mock.Anything, "conv-missing").Return(nil, notFoundErr("conversation"))

	_, err := svc.SendMessage(ctx, "conv-missing", sendRequest())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSendMessage_MissingSettingsIs424(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	conversation := &model.Conversation{ID: "conv-1", ContactID: "contact-1", ConnectionID: "conn-1"}
	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(nil, notFoundErr("message"))
	repos.conversations.On("FindByID", mock.Anything, "conv-1").Return(conversation, nil)
	repos.contacts.On("FindByID", mock.Anything, "contact-1").Return(&model.Contact{ID: "contact-1"}, nil)
	repos.connections.On("FindByID", mock.Anything, "conn-1").Return(testConnection(""), nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(nil, notFoundErr("settings"))

	_, err := svc.SendMessage(ctx, "conv-1", sendRequest())

	assert.ErrorIs(t, err, apperrors.ErrDependencyMissing)
	repos.messages.AssertNotCalled(t, "SaveWithTouch", mock.Anything, mock.Anything)
}

func TestSendMessage_NoConnectionIs424(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	conversation := &model.Conversation{ID: "conv-1", ContactID: "contact-1", ConnectionID: ""}
	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(nil, notFoundErr("message"))
	repos.conversations.On("FindByID", mock.Anything, "conv-1").Return(conversation, nil)
	repos.contacts.On("FindByID", mock.Anything, "contact-1").Return(&model.Contact{ID: "contact-1"}, nil)

	_, err := svc.SendMessage(ctx, "conv-1", sendRequest())

	assert.ErrorIs(t, err, apperrors.ErrDependencyMissing)
}

func TestSendMessage_MissingProviderCredentialsIs424(t *testing.T) {
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	conversation := &model.Conversation{ID: "conv-1", ContactID: "contact-1", ConnectionID: "conn-1"}
	bare := &model.Connection{ID: "conn-1", WorkspaceID: testWorkspaceID, InstanceName: "instance-a", Provider: model.ProviderEvolution}
	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(nil, notFoundErr("message"))
	repos.conversations.On("FindByID", mock.Anything, "conv-1").Return(conversation, nil)
	repos.contacts.On("FindByID", mock.Anything, "contact-1").Return(&model.Contact{ID: "contact-1"}, nil)
	repos.connections.On("FindByID", mock.Anything, "conn-1").Return(bare, nil)

	_, err := svc.SendMessage(ctx, "conv-1", sendRequest())

	assert.ErrorIs(t, err, apperrors.ErrDependencyMissing)
	engine.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	repos.messages.AssertNotCalled(t, "SaveWithTouch", mock.Anything, mock.Anything)
}

func TestSendMessage_TransportFailureMarksFailed(t *testing.T) {
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	sendFixtures(repos)
	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(nil, notFoundErr("message"))
	repos.messages.On("SaveWithTouch", mock.Anything, mock.Anything).Return(nil)
	engine.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.NewRetryable(apperrors.ErrTransport, "engine unreachable"))
	repos.messages.On("ReconcileSend", mock.Anything, mock.Anything, model.MessageStatusFailed, "", mock.Anything).Return(nil)

	message, err := svc.SendMessage(ctx, "conv-1", sendRequest())

	require.Error(t, err)
	assert.Equal(t, model.MessageStatusFailed, message.Status)
	repos.messages.AssertExpectations(t)
}

func TestSendMessage_EngineRejectionMarksFailed(t *testing.T) {
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	sendFixtures(repos)
	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(nil, notFoundErr("message"))
	repos.messages.On("SaveWithTouch", mock.Anything, mock.Anything).Return(nil)
	engine.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.SendResponse{Success: false, Error: "instance offline"}, nil)
	repos.messages.On("ReconcileSend", mock.Anything, mock.Anything, model.MessageStatusFailed, "", mock.Anything).Return(nil)

	message, err := svc.SendMessage(ctx, "conv-1", sendRequest())

	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.Equal(t, model.MessageStatusFailed, message.Status)
}

func TestSendMessage_ConcurrentAckRace(t *testing.T) {
	// The sending row is persisted before the transport call, so a
	// concurrent inbound ack insert race resolves to exactly one row.
	svc, repos, engine := newTestService(t)
	ctx := workspaceContext()

	winner := &model.Message{ID: "msg-winner", ExternalID: "client-msg-1", Status: model.MessageStatusDelivered}
	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(nil, notFoundErr("message")).Once()
	sendFixtures(repos)
	repos.messages.On("SaveWithTouch", mock.Anything, mock.Anything).Return(duplicateErr("message"))
	repos.messages.On("FindByExternalID", mock.Anything, "client-msg-1").Return(winner, nil).Once()

	message, err := svc.SendMessage(ctx, "conv-1", sendRequest())

	require.NoError(t, err)
	assert.Equal(t, "msg-winner", message.ID)
	engine.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_ValidationFailure(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := workspaceContext()

	_, err := svc.SendMessage(ctx, "conv-1", &model.SendMessageRequest{Content: "hi"})

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestQuickConversation_CreatesContactAndConversation(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	repos.contacts.On("FindByPhone", mock.Anything, "5511999998888").Return(nil, notFoundErr("contact"))
	repos.contacts.On("Save", mock.Anything, mock.MatchedBy(func(c model.Contact) bool {
		return c.Phone == "5511999998888" && c.Name == "Bob"
	})).Return(nil)
	repos.conversations.On("FindLatestByContact", mock.Anything, mock.Anything).Return(nil, notFoundErr("conversation"))
	repos.conversations.On("Save", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.QuickConversation(ctx, &model.QuickConversationRequest{
		Phone: "+55 11 99999-8888",
		Name:  "Bob",
	})

	require.NoError(t, err)
	assert.True(t, result.ContactCreated)
	assert.True(t, result.ConversationCreated)
	assert.NotEmpty(t, result.ContactID)
	assert.NotEmpty(t, result.ConversationID)
}

func TestQuickConversation_ReusesExistingRows(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	contact := &model.Contact{ID: "contact-1", Phone: "5511999998888"}
	conversation := &model.Conversation{ID: "conv-1", ContactID: "contact-1"}
	repos.contacts.On("FindByPhone", mock.Anything, "5511999998888").Return(contact, nil)
	repos.conversations.On("FindLatestByContact", mock.Anything, "contact-1").Return(conversation, nil)

	result, err := svc.QuickConversation(ctx, &model.QuickConversationRequest{Phone: "5511999998888"})

	require.NoError(t, err)
	assert.False(t, result.ContactCreated)
	assert.False(t, result.ConversationCreated)
	assert.Equal(t, "conv-1", result.ConversationID)
}

func TestQuickConversation_DistributesWhenConnectionHasQueue(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := workspaceContext()

	repos.connections.On("FindByID", mock.Anything, "conn-1").Return(testConnection("queue-1"), nil)
	repos.contacts.On("FindByPhone", mock.Anything, "5511999998888").Return(&model.Contact{ID: "contact-1"}, nil)
	repos.conversations.On("FindLatestByContact", mock.Anything, "contact-1").Return(nil, notFoundErr("conversation"))
	repos.conversations.On("Save", mock.Anything, mock.Anything).Return(nil)

	queue := &model.Queue{ID: "queue-1", DistributionType: model.DistributionOrdered}
	repos.queues.On("FindByID", mock.Anything, "queue-1").Return(queue, nil)
	repos.queues.On("ActiveMembers", mock.Anything, "queue-1").Return(queueMembers(), nil)
	repos.conversations.On("Assign", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := svc.QuickConversation(ctx, &model.QuickConversationRequest{
		Phone:        "5511999998888",
		ConnectionID: "conn-1",
	})

	require.NoError(t, err)
	assert.True(t, result.ConversationCreated)
	repos.conversations.AssertCalled(t, "Assign", mock.Anything, mock.Anything, mock.Anything)
}

func TestQuickConversation_EmptyPhoneRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := workspaceContext()

	_, err := svc.QuickConversation(ctx, &model.QuickConversationRequest{Phone: "---"})

	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}
