package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Distribution strategies. Labels are persisted verbatim in queue rows.
const (
	DistributionRandom     = "aleatoria"
	DistributionSequential = "sequencial"
	DistributionOrdered    = "ordenada"
	DistributionNone       = "nao_distribuir"
)

// QueueUser statuses.
const (
	QueueUserStatusActive   = "active"
	QueueUserStatusInactive = "inactive"
)

// Queue holds a workspace's distribution policy. LastAssignedUserIndex is
// advanced only by the sequential strategy, via a single atomic update.
type Queue struct {
	ID                    string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID           string    `json:"workspace_id" gorm:"column:workspace_id;index" validate:"required"`
	Name                  string    `json:"name,omitempty" gorm:"type:text"`
	DistributionType      string    `json:"distribution_type" gorm:"column:distribution_type;default:nao_distribuir" validate:"omitempty,oneof=aleatoria sequencial ordenada nao_distribuir"`
	LastAssignedUserIndex int       `json:"last_assigned_user_index" gorm:"column:last_assigned_user_index;default:0"`
	AIAgentID             string    `json:"ai_agent_id,omitempty" gorm:"column:ai_agent_id"`
	CreatedAt             time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt             time.Time `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Queue model, respecting the Namer.
func (Queue) TableName(namer schema.Namer) string {
	return namer.TableName("queues")
}

// QueueUser is an ordered queue membership row. Selection filters to active
// members and orders by OrderPosition.
type QueueUser struct {
	ID            string    `json:"id" gorm:"primaryKey;type:text"`
	QueueID       string    `json:"queue_id" gorm:"column:queue_id;uniqueIndex:idx_queue_users_queue_user" validate:"required"`
	UserID        string    `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_queue_users_queue_user" validate:"required"`
	OrderPosition int       `json:"order_position" gorm:"column:order_position;default:0"`
	Status        string    `json:"status,omitempty" gorm:"type:text;default:active"`
	CreatedAt     time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the QueueUser model, respecting the Namer.
func (QueueUser) TableName(namer schema.Namer) string {
	return namer.TableName("queue_users")
}
