package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Automation triggers.
const (
	TriggerMessageReceived = "message_received"
)

// Automation action types.
const (
	ActionSendMessage  = "send_message"
	ActionSendFunnel   = "send_funnel"
	ActionChangeColumn = "change_column"
	ActionAddTag       = "add_tag"
	ActionAddAgent     = "add_agent"
	ActionRemoveAgent  = "remove_agent"
)

// Automation is a column-bound rule evaluated against inbound message counts.
// Actions is an ordered JSON list of AutomationAction objects.
type Automation struct {
	ID               string         `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID      string         `json:"workspace_id" gorm:"column:workspace_id;index" validate:"required"`
	ColumnID         string         `json:"column_id" gorm:"column:column_id;index" validate:"required"`
	TriggerType      string         `json:"trigger_type" gorm:"column:trigger_type;default:message_received"`
	MessageThreshold int            `json:"message_threshold" gorm:"column:message_threshold;default:1"`
	Actions          datatypes.JSON `json:"actions,omitempty" gorm:"type:jsonb;column:actions"`
	Active           bool           `json:"active" gorm:"column:active;default:true;index"`
	CreatedAt        time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Automation model, respecting the Namer.
func (Automation) TableName(namer schema.Namer) string {
	return namer.TableName("automations")
}

// AutomationAction is one step of an automation's ordered action list,
// decoded from the Actions JSON column.
type AutomationAction struct {
	Type     string `json:"type" validate:"required,oneof=send_message send_funnel change_column add_tag add_agent remove_agent"`
	Content  string `json:"content,omitempty"`   // send_message text
	FunnelID string `json:"funnel_id,omitempty"` // send_funnel reference
	ColumnID string `json:"column_id,omitempty"` // change_column target
	Tag      string `json:"tag,omitempty"`       // add_tag label
}

// AutomationExecution is the idempotency guard: its unique index ensures an
// automation fires at most once per (card, column, automation, trigger).
// The row is inserted before actions run; a duplicate insert means another
// evaluation already claimed the firing.
type AutomationExecution struct {
	ID           string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID  string    `json:"workspace_id" gorm:"column:workspace_id;index"`
	CardID       string    `json:"card_id" gorm:"column:card_id;uniqueIndex:idx_automation_executions_guard" validate:"required"`
	ColumnID     string    `json:"column_id" gorm:"column:column_id;uniqueIndex:idx_automation_executions_guard" validate:"required"`
	AutomationID string    `json:"automation_id" gorm:"column:automation_id;uniqueIndex:idx_automation_executions_guard" validate:"required"`
	TriggerType  string    `json:"trigger_type" gorm:"column:trigger_type;uniqueIndex:idx_automation_executions_guard"`
	ExecutedAt   time.Time `json:"executed_at,omitempty" gorm:"column:executed_at;autoCreateTime"`
}

// TableName specifies the table name for the AutomationExecution model, respecting the Namer.
func (AutomationExecution) TableName(namer schema.Namer) string {
	return namer.TableName("automation_executions")
}

// FunnelStep is one ordered step of a funnel sequence. DelaySeconds is
// honored before sending the next step, not before the first.
type FunnelStep struct {
	ID           string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID  string    `json:"workspace_id" gorm:"column:workspace_id;index"`
	FunnelID     string    `json:"funnel_id" gorm:"column:funnel_id;index" validate:"required"`
	StepOrder    int       `json:"step_order" gorm:"column:step_order;default:0"`
	MessageType  string    `json:"message_type,omitempty" gorm:"column:message_type;default:text"`
	Content      string    `json:"content,omitempty" gorm:"type:text"`
	FileURL      string    `json:"file_url,omitempty" gorm:"column:file_url"`
	DelaySeconds int       `json:"delay_seconds" gorm:"column:delay_seconds;default:0"`
	CreatedAt    time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the FunnelStep model, respecting the Namer.
func (FunnelStep) TableName(namer schema.Namer) string {
	return namer.TableName("funnel_steps")
}
