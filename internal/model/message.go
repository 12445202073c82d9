package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Sender types.
const (
	SenderTypeContact = "contact"
	SenderTypeAgent   = "agent"
)

// Message statuses. Outbound rows walk sending -> sent -> delivered -> read,
// or land on failed. Inbound rows start directly at received.
const (
	MessageStatusSending   = "sending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
	MessageStatusReceived  = "received"
)

// Message types classified from the provider payload shape.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeDocument = "document"
	MessageTypeFile     = "file" // fallback for unknown payload shapes
)

// Message represents a single chat message. ExternalID carries the provider
// message id and is the deduplication key for webhook retries.
type Message struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID    string         `json:"workspace_id" gorm:"column:workspace_id;index" validate:"required"`
	ConversationID string         `json:"conversation_id" gorm:"column:conversation_id;index" validate:"required"`
	ExternalID     string         `json:"external_id" gorm:"column:external_id;uniqueIndex" validate:"required"`
	Content        string         `json:"content,omitempty" gorm:"type:text"`
	MessageType    string         `json:"message_type,omitempty" gorm:"column:message_type"`
	SenderType     string         `json:"sender_type" gorm:"column:sender_type" validate:"required,oneof=contact agent"`
	Status         string         `json:"status,omitempty" gorm:"column:status;index"`
	FileURL        string         `json:"file_url,omitempty" gorm:"column:file_url"`
	FileName       string         `json:"file_name,omitempty" gorm:"column:file_name"`
	MimeType       string         `json:"mime_type,omitempty" gorm:"column:mime_type"`
	Metadata       datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;column:metadata"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty" gorm:"column:delivered_at"`
	ReadAt         *time.Time     `json:"read_at,omitempty" gorm:"column:read_at"`
	CreatedAt      time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime;index"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
	LastMetadata   datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the table name for the Message model, respecting the Namer.
func (Message) TableName(namer schema.Namer) string {
	return namer.TableName("messages")
}

// MessageAckFields returns column names touched by an ack reconciliation.
func MessageAckFields() []string {
	return []string{
		"status", "delivered_at", "read_at", "last_metadata",
	}
}

// AckStatus resolves a provider acknowledgment level (numeric or string form)
// to the message status it maps to. The second return reports whether the
// level is recognized; unrecognized levels must be logged and ignored.
func AckStatus(level int, name string) (string, bool) {
	switch {
	case level == 1 || name == "SERVER_ACK":
		return MessageStatusSent, true
	case level == 2 || name == "DELIVERY_ACK":
		return MessageStatusDelivered, true
	case level == 3 || name == "READ":
		return MessageStatusRead, true
	default:
		return "", false
	}
}
