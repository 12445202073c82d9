package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Connection providers.
const (
	ProviderEvolution = "evolution"
	ProviderZAPI      = "zapi"
)

// Connection represents a provisioned WhatsApp provider instance bound to a
// workspace. InstanceName matches the `instance` field on inbound webhooks.
type Connection struct {
	ID           string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID  string    `json:"workspace_id" gorm:"column:workspace_id;index" validate:"required"`
	InstanceName string    `json:"instance_name" gorm:"column:instance_name;uniqueIndex" validate:"required"`
	Provider     string    `json:"provider,omitempty" gorm:"type:text;default:evolution"`
	BaseURL      string    `json:"base_url,omitempty" gorm:"column:base_url"`
	APIKey       string    `json:"-" gorm:"column:api_key"`
	QueueID      string    `json:"queue_id,omitempty" gorm:"column:queue_id"` // Default distribution queue
	Status       string    `json:"status,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Connection model, respecting the Namer.
func (Connection) TableName(namer schema.Namer) string {
	return namer.TableName("connections")
}

// WorkspaceSettings holds per-workspace relay configuration as a typed row.
// Absence of a required field is a terminal configuration error for the
// operation that needs it.
type WorkspaceSettings struct {
	ID               string         `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID      string         `json:"workspace_id" gorm:"column:workspace_id;uniqueIndex" validate:"required"`
	EngineWebhookURL string         `json:"engine_webhook_url,omitempty" gorm:"column:engine_webhook_url"`
	DefaultQueueID   string         `json:"default_queue_id,omitempty" gorm:"column:default_queue_id"`
	Extra            datatypes.JSON `json:"extra,omitempty" gorm:"type:jsonb;column:extra"`
	CreatedAt        time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the WorkspaceSettings model, respecting the Namer.
func (WorkspaceSettings) TableName(namer schema.Namer) string {
	return namer.TableName("workspace_settings")
}
