package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

// --- ContactRepo Mock ---

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *ContactRepoMock) Save(ctx context.Context, contact model.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ContactRepoMock) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// FindByPhone mocks the FindByPhone method
func (m *ContactRepoMock) FindByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// AddTag mocks the AddTag method
func (m *ContactRepoMock) AddTag(ctx context.Context, tag model.ContactTag) error {
	args := m.Called(ctx, tag)
	return args.Error(0)
}

// Close mocks the Close method
func (m *ContactRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ConversationRepo Mock ---

// ConversationRepoMock mocks the ConversationRepo interface
type ConversationRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *ConversationRepoMock) Save(ctx context.Context, conversation model.Conversation) error {
	args := m.Called(ctx, conversation)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ConversationRepoMock) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// FindLatestByContact mocks the FindLatestByContact method
func (m *ConversationRepoMock) FindLatestByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// UpdateConnection mocks the UpdateConnection method
func (m *ConversationRepoMock) UpdateConnection(ctx context.Context, conversationID, connectionID string) error {
	args := m.Called(ctx, conversationID, connectionID)
	return args.Error(0)
}

// SetAgentActive mocks the SetAgentActive method
func (m *ConversationRepoMock) SetAgentActive(ctx context.Context, conversationID string, active bool) error {
	args := m.Called(ctx, conversationID, active)
	return args.Error(0)
}

// Assign mocks the Assign method
func (m *ConversationRepoMock) Assign(ctx context.Context, conversation model.Conversation, audit model.ConversationAssignment) error {
	args := m.Called(ctx, conversation, audit)
	return args.Error(0)
}

// Close mocks the Close method
func (m *ConversationRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *MessageRepoMock) Save(ctx context.Context, message model.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// SaveWithTouch mocks the SaveWithTouch method
func (m *MessageRepoMock) SaveWithTouch(ctx context.Context, message model.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// FindByExternalID mocks the FindByExternalID method
func (m *MessageRepoMock) FindByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// ApplyAck mocks the ApplyAck method
func (m *MessageRepoMock) ApplyAck(ctx context.Context, externalID, status string, at time.Time, meta datatypes.JSON) error {
	args := m.Called(ctx, externalID, status, at, meta)
	return args.Error(0)
}

// ReconcileSend mocks the ReconcileSend method
func (m *MessageRepoMock) ReconcileSend(ctx context.Context, id, status, providerMessageID string, meta datatypes.JSON) error {
	args := m.Called(ctx, id, status, providerMessageID, meta)
	return args.Error(0)
}

// CountInboundSince mocks the CountInboundSince method
func (m *MessageRepoMock) CountInboundSince(ctx context.Context, conversationID string, since time.Time) (int64, error) {
	args := m.Called(ctx, conversationID, since)
	return args.Get(0).(int64), args.Error(1)
}

// Close mocks the Close method
func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- QueueRepo Mock ---

// QueueRepoMock mocks the QueueRepo interface
type QueueRepoMock struct {
	mock.Mock
}

// FindByID mocks the FindByID method
func (m *QueueRepoMock) FindByID(ctx context.Context, id string) (*model.Queue, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Queue), args.Error(1)
}

// ActiveMembers mocks the ActiveMembers method
func (m *QueueRepoMock) ActiveMembers(ctx context.Context, queueID string) ([]model.QueueUser, error) {
	args := m.Called(ctx, queueID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QueueUser), args.Error(1)
}

// AdvanceSequentialIndex mocks the AdvanceSequentialIndex method
func (m *QueueRepoMock) AdvanceSequentialIndex(ctx context.Context, queueID string, memberCount int) (int, error) {
	args := m.Called(ctx, queueID, memberCount)
	return args.Int(0), args.Error(1)
}

// Close mocks the Close method
func (m *QueueRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ConnectionRepo Mock ---

// ConnectionRepoMock mocks the ConnectionRepo interface
type ConnectionRepoMock struct {
	mock.Mock
}

// FindByID mocks the FindByID method
func (m *ConnectionRepoMock) FindByID(ctx context.Context, id string) (*model.Connection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

// FindByInstanceName mocks the FindByInstanceName method
func (m *ConnectionRepoMock) FindByInstanceName(ctx context.Context, instanceName string) (*model.Connection, error) {
	args := m.Called(ctx, instanceName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

// Close mocks the Close method
func (m *ConnectionRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- SettingsRepo Mock ---

// SettingsRepoMock mocks the SettingsRepo interface
type SettingsRepoMock struct {
	mock.Mock
}

// FindByWorkspace mocks the FindByWorkspace method
func (m *SettingsRepoMock) FindByWorkspace(ctx context.Context) (*model.WorkspaceSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkspaceSettings), args.Error(1)
}

// Close mocks the Close method
func (m *SettingsRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- PipelineRepo Mock ---

// PipelineRepoMock mocks the PipelineRepo interface
type PipelineRepoMock struct {
	mock.Mock
}

// FindOpenCardsByContact mocks the FindOpenCardsByContact method
func (m *PipelineRepoMock) FindOpenCardsByContact(ctx context.Context, contactID string) ([]model.PipelineCard, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PipelineCard), args.Error(1)
}

// ColumnEntryAt mocks the ColumnEntryAt method
func (m *PipelineRepoMock) ColumnEntryAt(ctx context.Context, cardID, columnID string) (*time.Time, error) {
	args := m.Called(ctx, cardID, columnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

// MoveCard mocks the MoveCard method
func (m *PipelineRepoMock) MoveCard(ctx context.Context, cardID, fromColumnID, toColumnID, movedBy string) error {
	args := m.Called(ctx, cardID, fromColumnID, toColumnID, movedBy)
	return args.Error(0)
}

// Close mocks the Close method
func (m *PipelineRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- AutomationRepo Mock ---

// AutomationRepoMock mocks the AutomationRepo interface
type AutomationRepoMock struct {
	mock.Mock
}

// FindActiveByColumn mocks the FindActiveByColumn method
func (m *AutomationRepoMock) FindActiveByColumn(ctx context.Context, columnID string) ([]model.Automation, error) {
	args := m.Called(ctx, columnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Automation), args.Error(1)
}

// ClaimExecution mocks the ClaimExecution method
func (m *AutomationRepoMock) ClaimExecution(ctx context.Context, execution model.AutomationExecution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

// FindFunnelSteps mocks the FindFunnelSteps method
func (m *AutomationRepoMock) FindFunnelSteps(ctx context.Context, funnelID string) ([]model.FunnelStep, error) {
	args := m.Called(ctx, funnelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FunnelStep), args.Error(1)
}

// Close mocks the Close method
func (m *AutomationRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- DeadEventRepo Mock ---

// DeadEventRepoMock mocks the DeadEventRepo interface
type DeadEventRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *DeadEventRepoMock) Save(ctx context.Context, event model.DeadWebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// Close mocks the Close method
func (m *DeadEventRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
