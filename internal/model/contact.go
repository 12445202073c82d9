package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Contact represents a WhatsApp contact in the PostgreSQL database.
// Identity is the canonical digit-only phone within a workspace.
type Contact struct {
	ID          string         `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID string         `json:"workspace_id" gorm:"column:workspace_id;uniqueIndex:idx_contacts_workspace_phone" validate:"required"`
	Phone       string         `json:"phone" gorm:"type:text;uniqueIndex:idx_contacts_workspace_phone" validate:"required"` // Canonical digits only
	Name        string         `json:"name,omitempty" gorm:"type:text"`
	Avatar      string         `json:"avatar,omitempty" gorm:"type:text"` // URL or reference to profile picture
	ExtraInfo   datatypes.JSON `json:"extra_info,omitempty" gorm:"type:jsonb;column:extra_info"`
	CreatedAt   time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Contact model, respecting the Namer.
func (Contact) TableName(namer schema.Namer) string {
	return namer.TableName("contacts")
}

// ContactTag links a tag label to a contact. The unique index makes tag
// insertion idempotent; a duplicate insert means the tag was already applied.
type ContactTag struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID string    `json:"workspace_id" gorm:"column:workspace_id;index"`
	ContactID   string    `json:"contact_id" gorm:"column:contact_id;uniqueIndex:idx_contact_tags_contact_tag" validate:"required"`
	Tag         string    `json:"tag" gorm:"type:text;uniqueIndex:idx_contact_tags_contact_tag" validate:"required"`
	CreatedAt   time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the ContactTag model, respecting the Namer.
func (ContactTag) TableName(namer schema.Namer) string {
	return namer.TableName("contact_tags")
}
