package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// PipelineColumn is a kanban column within a workspace pipeline.
type PipelineColumn struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID string    `json:"workspace_id" gorm:"column:workspace_id;index" validate:"required"`
	PipelineID  string    `json:"pipeline_id,omitempty" gorm:"column:pipeline_id;index"`
	Name        string    `json:"name,omitempty" gorm:"type:text"`
	Position    int       `json:"position" gorm:"column:position;default:0"`
	CreatedAt   time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the PipelineColumn model, respecting the Namer.
func (PipelineColumn) TableName(namer schema.Namer) string {
	return namer.TableName("pipeline_columns")
}

// Card statuses.
const (
	CardStatusOpen   = "open"
	CardStatusClosed = "closed"
)

// PipelineCard tracks a conversation through pipeline columns.
type PipelineCard struct {
	ID             string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID    string    `json:"workspace_id" gorm:"column:workspace_id;index" validate:"required"`
	ContactID      string    `json:"contact_id" gorm:"column:contact_id;index" validate:"required"`
	ConversationID string    `json:"conversation_id,omitempty" gorm:"column:conversation_id;index"`
	ColumnID       string    `json:"column_id" gorm:"column:column_id;index" validate:"required"`
	Status         string    `json:"status,omitempty" gorm:"type:text;default:open"`
	CreatedAt      time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the PipelineCard model, respecting the Namer.
func (PipelineCard) TableName(namer schema.Namer) string {
	return namer.TableName("pipeline_cards")
}

// CardColumnEvent records a card entering a column. The most recent row for
// (card, column) defines the column entry date used by automation triggers;
// card creation time is the fallback when no row exists.
type CardColumnEvent struct {
	ID           string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID  string    `json:"workspace_id" gorm:"column:workspace_id;index"`
	CardID       string    `json:"card_id" gorm:"column:card_id;index:idx_card_column_events_card_column" validate:"required"`
	ColumnID     string    `json:"column_id" gorm:"column:column_id;index:idx_card_column_events_card_column" validate:"required"`
	FromColumnID string    `json:"from_column_id,omitempty" gorm:"column:from_column_id"`
	MovedBy      string    `json:"moved_by,omitempty" gorm:"column:moved_by"`
	CreatedAt    time.Time `json:"created_at,omitempty" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for the CardColumnEvent model, respecting the Namer.
func (CardColumnEvent) TableName(namer schema.Namer) string {
	return namer.TableName("card_column_events")
}
