package storage

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

// ContactRepoAdapter adapts the PostgresRepo to the ContactRepo interface
type ContactRepoAdapter struct {
	postgres *PostgresRepo
}

// NewContactRepoAdapter creates a new contact repository adapter
func NewContactRepoAdapter(postgres *PostgresRepo) ContactRepo {
	return &ContactRepoAdapter{postgres: postgres}
}

// Save saves a contact
func (a *ContactRepoAdapter) Save(ctx context.Context, contact model.Contact) error {
	return a.postgres.SaveContact(ctx, contact)
}

// FindByID finds a contact by ID
func (a *ContactRepoAdapter) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	return a.postgres.FindContactByID(ctx, id)
}

// FindByPhone finds a contact by phone number
func (a *ContactRepoAdapter) FindByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	return a.postgres.FindContactByPhone(ctx, phone)
}

// AddTag attaches a tag to a contact
func (a *ContactRepoAdapter) AddTag(ctx context.Context, tag model.ContactTag) error {
	return a.postgres.AddContactTag(ctx, tag)
}

func (a *ContactRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ConversationRepoAdapter adapts the PostgresRepo to the ConversationRepo interface
type ConversationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewConversationRepoAdapter creates a new conversation repository adapter
func NewConversationRepoAdapter(postgres *PostgresRepo) ConversationRepo {
	return &ConversationRepoAdapter{postgres: postgres}
}

// Save saves a conversation
func (a *ConversationRepoAdapter) Save(ctx context.Context, conversation model.Conversation) error {
	return a.postgres.SaveConversation(ctx, conversation)
}

// FindByID finds a conversation by ID
func (a *ConversationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.FindConversationByID(ctx, id)
}

// FindLatestByContact finds the contact's most recent conversation
func (a *ConversationRepoAdapter) FindLatestByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	return a.postgres.FindLatestConversationByContact(ctx, contactID)
}

// UpdateConnection repoints a conversation at another provider connection
func (a *ConversationRepoAdapter) UpdateConnection(ctx context.Context, conversationID, connectionID string) error {
	return a.postgres.UpdateConversationConnection(ctx, conversationID, connectionID)
}

// SetAgentActive toggles the AI agent flag on a conversation
func (a *ConversationRepoAdapter) SetAgentActive(ctx context.Context, conversationID string, active bool) error {
	return a.postgres.SetConversationAgentActive(ctx, conversationID, active)
}

// Assign persists the distribution result and its audit row atomically
func (a *ConversationRepoAdapter) Assign(ctx context.Context, conversation model.Conversation, audit model.ConversationAssignment) error {
	return a.postgres.AssignConversation(ctx, conversation, audit)
}

func (a *ConversationRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

// Save saves a message
func (a *MessageRepoAdapter) Save(ctx context.Context, message model.Message) error {
	return a.postgres.SaveMessage(ctx, message)
}

// SaveWithTouch saves a message and bumps the conversation activity timestamp
func (a *MessageRepoAdapter) SaveWithTouch(ctx context.Context, message model.Message) error {
	return a.postgres.SaveMessageWithTouch(ctx, message)
}

// FindByExternalID finds a message by provider message id
func (a *MessageRepoAdapter) FindByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	return a.postgres.FindMessageByExternalID(ctx, externalID)
}

// ApplyAck updates delivery status by provider message id
func (a *MessageRepoAdapter) ApplyAck(ctx context.Context, externalID, status string, at time.Time, meta datatypes.JSON) error {
	return a.postgres.ApplyMessageAck(ctx, externalID, status, at, meta)
}

// ReconcileSend records the outcome of an outbound transport call
func (a *MessageRepoAdapter) ReconcileSend(ctx context.Context, id, status, providerMessageID string, meta datatypes.JSON) error {
	return a.postgres.ReconcileMessageSend(ctx, id, status, providerMessageID, meta)
}

// CountInboundSince counts contact-sent messages since an instant
func (a *MessageRepoAdapter) CountInboundSince(ctx context.Context, conversationID string, since time.Time) (int64, error) {
	return a.postgres.CountInboundMessagesSince(ctx, conversationID, since)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// QueueRepoAdapter adapts the PostgresRepo to the QueueRepo interface
type QueueRepoAdapter struct {
	postgres *PostgresRepo
}

// NewQueueRepoAdapter creates a new queue repository adapter
func NewQueueRepoAdapter(postgres *PostgresRepo) QueueRepo {
	return &QueueRepoAdapter{postgres: postgres}
}

// FindByID finds a queue by ID
func (a *QueueRepoAdapter) FindByID(ctx context.Context, id string) (*model.Queue, error) {
	return a.postgres.FindQueueByID(ctx, id)
}

// ActiveMembers loads active queue members ordered by position
func (a *QueueRepoAdapter) ActiveMembers(ctx context.Context, queueID string) ([]model.QueueUser, error) {
	return a.postgres.FindActiveQueueMembers(ctx, queueID)
}

// AdvanceSequentialIndex atomically rotates the queue cursor
func (a *QueueRepoAdapter) AdvanceSequentialIndex(ctx context.Context, queueID string, memberCount int) (int, error) {
	return a.postgres.AdvanceSequentialIndex(ctx, queueID, memberCount)
}

func (a *QueueRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ConnectionRepoAdapter adapts the PostgresRepo to the ConnectionRepo interface
type ConnectionRepoAdapter struct {
	postgres *PostgresRepo
}

// NewConnectionRepoAdapter creates a new connection repository adapter
func NewConnectionRepoAdapter(postgres *PostgresRepo) ConnectionRepo {
	return &ConnectionRepoAdapter{postgres: postgres}
}

// FindByID finds a connection by ID
func (a *ConnectionRepoAdapter) FindByID(ctx context.Context, id string) (*model.Connection, error) {
	return a.postgres.FindConnectionByID(ctx, id)
}

// FindByInstanceName finds a connection by provider instance name
func (a *ConnectionRepoAdapter) FindByInstanceName(ctx context.Context, instanceName string) (*model.Connection, error) {
	return a.postgres.FindConnectionByInstanceName(ctx, instanceName)
}

func (a *ConnectionRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// SettingsRepoAdapter adapts the PostgresRepo to the SettingsRepo interface
type SettingsRepoAdapter struct {
	postgres *PostgresRepo
}

// NewSettingsRepoAdapter creates a new settings repository adapter
func NewSettingsRepoAdapter(postgres *PostgresRepo) SettingsRepo {
	return &SettingsRepoAdapter{postgres: postgres}
}

// FindByWorkspace loads the tenant's settings row
func (a *SettingsRepoAdapter) FindByWorkspace(ctx context.Context) (*model.WorkspaceSettings, error) {
	return a.postgres.FindWorkspaceSettings(ctx)
}

func (a *SettingsRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// PipelineRepoAdapter adapts the PostgresRepo to the PipelineRepo interface
type PipelineRepoAdapter struct {
	postgres *PostgresRepo
}

// NewPipelineRepoAdapter creates a new pipeline repository adapter
func NewPipelineRepoAdapter(postgres *PostgresRepo) PipelineRepo {
	return &PipelineRepoAdapter{postgres: postgres}
}

// FindOpenCardsByContact loads the contact's open cards
func (a *PipelineRepoAdapter) FindOpenCardsByContact(ctx context.Context, contactID string) ([]model.PipelineCard, error) {
	return a.postgres.FindOpenCardsByContact(ctx, contactID)
}

// ColumnEntryAt resolves when a card entered a column
func (a *PipelineRepoAdapter) ColumnEntryAt(ctx context.Context, cardID, columnID string) (*time.Time, error) {
	return a.postgres.ColumnEntryAt(ctx, cardID, columnID)
}

// MoveCard moves a card and records the move event atomically
func (a *PipelineRepoAdapter) MoveCard(ctx context.Context, cardID, fromColumnID, toColumnID, movedBy string) error {
	return a.postgres.MoveCard(ctx, cardID, fromColumnID, toColumnID, movedBy)
}

func (a *PipelineRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// AutomationRepoAdapter adapts the PostgresRepo to the AutomationRepo interface
type AutomationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewAutomationRepoAdapter creates a new automation repository adapter
func NewAutomationRepoAdapter(postgres *PostgresRepo) AutomationRepo {
	return &AutomationRepoAdapter{postgres: postgres}
}

// FindActiveByColumn loads active automations bound to a column
func (a *AutomationRepoAdapter) FindActiveByColumn(ctx context.Context, columnID string) ([]model.Automation, error) {
	return a.postgres.FindActiveAutomationsByColumn(ctx, columnID)
}

// ClaimExecution inserts the idempotency guard row
func (a *AutomationRepoAdapter) ClaimExecution(ctx context.Context, execution model.AutomationExecution) error {
	return a.postgres.ClaimAutomationExecution(ctx, execution)
}

// FindFunnelSteps loads a funnel's steps in send order
func (a *AutomationRepoAdapter) FindFunnelSteps(ctx context.Context, funnelID string) ([]model.FunnelStep, error) {
	return a.postgres.FindFunnelSteps(ctx, funnelID)
}

func (a *AutomationRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// --- DeadEventRepo Adapter ---

// DeadEventRepoAdapter adapts the PostgresRepo to the DeadEventRepo interface
type DeadEventRepoAdapter struct {
	postgres *PostgresRepo
}

// NewDeadEventRepoAdapter creates a new dead event repository adapter
func NewDeadEventRepoAdapter(postgres *PostgresRepo) DeadEventRepo {
	return &DeadEventRepoAdapter{postgres: postgres}
}

// Save parks an event whose DLQ retries ran out
func (a *DeadEventRepoAdapter) Save(ctx context.Context, event model.DeadWebhookEvent) error {
	return a.postgres.SaveDeadWebhookEvent(ctx, event)
}

// Close closes the repository
func (a *DeadEventRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// Ensure adapters implement the interfaces
var _ ContactRepo = (*ContactRepoAdapter)(nil)
var _ ConversationRepo = (*ConversationRepoAdapter)(nil)
var _ MessageRepo = (*MessageRepoAdapter)(nil)
var _ QueueRepo = (*QueueRepoAdapter)(nil)
var _ ConnectionRepo = (*ConnectionRepoAdapter)(nil)
var _ SettingsRepo = (*SettingsRepoAdapter)(nil)
var _ PipelineRepo = (*PipelineRepoAdapter)(nil)
var _ AutomationRepo = (*AutomationRepoAdapter)(nil)
var _ DeadEventRepo = (*DeadEventRepoAdapter)(nil)
