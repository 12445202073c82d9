package storage

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

// ContactRepo defines contact storage operations
type ContactRepo interface {
	Save(ctx context.Context, contact model.Contact) error
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	FindByPhone(ctx context.Context, phone string) (*model.Contact, error)
	AddTag(ctx context.Context, tag model.ContactTag) error
	Close(ctx context.Context) error
}

// ConversationRepo defines conversation storage operations
type ConversationRepo interface {
	Save(ctx context.Context, conversation model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindLatestByContact(ctx context.Context, contactID string) (*model.Conversation, error)
	UpdateConnection(ctx context.Context, conversationID, connectionID string) error
	SetAgentActive(ctx context.Context, conversationID string, active bool) error
	// Assign persists the distribution result and its audit row atomically.
	Assign(ctx context.Context, conversation model.Conversation, audit model.ConversationAssignment) error
	Close(ctx context.Context) error
}

// MessageRepo defines message storage operations
type MessageRepo interface {
	Save(ctx context.Context, message model.Message) error
	// SaveWithTouch inserts the message and bumps the conversation's
	// last_activity_at in one transaction.
	SaveWithTouch(ctx context.Context, message model.Message) error
	FindByExternalID(ctx context.Context, externalID string) (*model.Message, error)
	// ApplyAck updates status and the matching receipt timestamp by external id.
	ApplyAck(ctx context.Context, externalID, status string, at time.Time, meta datatypes.JSON) error
	// ReconcileSend records the outcome of an outbound transport call.
	ReconcileSend(ctx context.Context, id, status, providerMessageID string, meta datatypes.JSON) error
	CountInboundSince(ctx context.Context, conversationID string, since time.Time) (int64, error)
	Close(ctx context.Context) error
}

// QueueRepo defines queue storage operations
type QueueRepo interface {
	FindByID(ctx context.Context, id string) (*model.Queue, error)
	ActiveMembers(ctx context.Context, queueID string) ([]model.QueueUser, error)
	// AdvanceSequentialIndex atomically rotates the queue cursor and returns
	// the new index.
	AdvanceSequentialIndex(ctx context.Context, queueID string, memberCount int) (int, error)
	Close(ctx context.Context) error
}

// ConnectionRepo defines provider connection storage operations
type ConnectionRepo interface {
	FindByID(ctx context.Context, id string) (*model.Connection, error)
	FindByInstanceName(ctx context.Context, instanceName string) (*model.Connection, error)
	Close(ctx context.Context) error
}

// SettingsRepo defines workspace settings storage operations
type SettingsRepo interface {
	FindByWorkspace(ctx context.Context) (*model.WorkspaceSettings, error)
	Close(ctx context.Context) error
}

// PipelineRepo defines pipeline card storage operations
type PipelineRepo interface {
	FindOpenCardsByContact(ctx context.Context, contactID string) ([]model.PipelineCard, error)
	// ColumnEntryAt returns when the card most recently entered the column,
	// or nil when no move history exists.
	ColumnEntryAt(ctx context.Context, cardID, columnID string) (*time.Time, error)
	// MoveCard updates the card's column and records the move event atomically.
	MoveCard(ctx context.Context, cardID, fromColumnID, toColumnID, movedBy string) error
	Close(ctx context.Context) error
}

// AutomationRepo defines automation rule storage operations
type AutomationRepo interface {
	FindActiveByColumn(ctx context.Context, columnID string) ([]model.Automation, error)
	// ClaimExecution inserts the idempotency guard row. A wrapped
	// apperrors.ErrDuplicate means another evaluation already fired.
	ClaimExecution(ctx context.Context, execution model.AutomationExecution) error
	FindFunnelSteps(ctx context.Context, funnelID string) ([]model.FunnelStep, error)
	Close(ctx context.Context) error
}

// DeadEventRepo defines dead webhook event storage operations
type DeadEventRepo interface {
	Save(ctx context.Context, event model.DeadWebhookEvent) error
	Close(ctx context.Context) error
}
