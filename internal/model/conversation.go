package model

import (
	"time"

	"gorm.io/gorm/schema"
)

const (
	ConversationStatusOpen   = "open"
	ConversationStatusClosed = "closed"
)

// Assignment audit actions.
const (
	AssignmentActionAssign        = "assign"
	AssignmentActionTransfer      = "transfer"
	AssignmentActionQueueTransfer = "queue_transfer"
)

// Conversation represents a chat thread between a workspace and a contact.
// The intended invariant is at most one open conversation per
// (workspace_id, contact_id); resolution reuses the most recent row.
type Conversation struct {
	ID             string     `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID    string     `json:"workspace_id" gorm:"column:workspace_id;index" validate:"required"`
	ContactID      string     `json:"contact_id" gorm:"column:contact_id;index:idx_conversations_workspace_contact" validate:"required"`
	ConnectionID   string     `json:"connection_id,omitempty" gorm:"column:connection_id;index"`
	Status         string     `json:"status" gorm:"type:text;default:open"`
	AssignedUserID string     `json:"assigned_user_id,omitempty" gorm:"column:assigned_user_id;index"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty" gorm:"column:assigned_at"`
	QueueID        string     `json:"queue_id,omitempty" gorm:"column:queue_id;index"`
	AgentActive    bool       `json:"agente_ativo" gorm:"column:agente_ativo;default:false"` // AI agent toggle
	LastActivityAt time.Time  `json:"last_activity_at,omitempty" gorm:"column:last_activity_at;index"`
	CreatedAt      time.Time  `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Conversation model, respecting the Namer.
func (Conversation) TableName(namer schema.Namer) string {
	return namer.TableName("conversations")
}

// ConversationAssignment is an append-only audit row recording one
// (re)assignment event. Rows are never updated or deleted.
type ConversationAssignment struct {
	ID             string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID    string    `json:"workspace_id" gorm:"column:workspace_id;index"`
	ConversationID string    `json:"conversation_id" gorm:"column:conversation_id;index" validate:"required"`
	FromUserID     string    `json:"from_user,omitempty" gorm:"column:from_user"`
	ToUserID       string    `json:"to_user,omitempty" gorm:"column:to_user"`
	FromQueueID    string    `json:"from_queue,omitempty" gorm:"column:from_queue"`
	ToQueueID      string    `json:"to_queue,omitempty" gorm:"column:to_queue"`
	Action         string    `json:"action" gorm:"type:text" validate:"required,oneof=assign transfer queue_transfer"`
	ChangedBy      string    `json:"changed_by,omitempty" gorm:"column:changed_by"`
	CreatedAt      time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the ConversationAssignment model, respecting the Namer.
func (ConversationAssignment) TableName(namer schema.Namer) string {
	return namer.TableName("conversation_assignments")
}
