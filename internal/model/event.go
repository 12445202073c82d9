package model

import (
	"strings"
	"time"
)

// EventType represents different types of events
type EventType string

// Common event type constants (with versioning). Published subjects append
// the workspace id as the final token, e.g. v1.webhooks.messages.upsert.<ws>.
const (
	V1MessagesUpsert EventType = "v1.webhooks.messages.upsert"
	V1MessagesUpdate EventType = "v1.webhooks.messages.update"
)

// MapToBaseEventType attempts to map an input string (potentially with extra identifiers)
// back to a known base EventType constant.
// It returns the mapped EventType and true if successful, or an empty EventType ("")
// and false if no mapping is found.
func MapToBaseEventType(input string) (EventType, bool) {
	// First, check if the input string *directly* matches a known EventType value.
	switch EventType(input) {
	case V1MessagesUpsert, V1MessagesUpdate:
		return EventType(input), true // Direct match found
	}

	// If no direct match, try stripping the last component after the final dot.
	lastDotIndex := strings.LastIndex(input, ".")

	// Ensure a dot exists and it's not the first character.
	if lastDotIndex <= 0 {
		return "", false
	}

	// Extract the base part of the string before the last dot.
	base := input[:lastDotIndex]

	switch EventType(base) {
	case V1MessagesUpsert:
		return V1MessagesUpsert, true
	case V1MessagesUpdate:
		return V1MessagesUpdate, true
	default:
		return "", false
	}
}

// Subject returns the full publish subject for a workspace.
func (e EventType) Subject(workspaceID string) string {
	return string(e) + "." + workspaceID
}

// GetVersion extracts the version from an event type
// Returns the version string (e.g., "v1") or an empty string if no version specified
func (e EventType) GetVersion() string {
	parts := strings.SplitN(string(e), ".", 2)
	if len(parts) < 2 {
		return ""
	}

	if len(parts[0]) >= 2 && parts[0][0] == 'v' {
		return parts[0]
	}

	return ""
}

// GetBaseType returns the event type without the version prefix
// For example: "v1.webhooks.messages.upsert" -> "webhooks.messages.upsert"
func (e EventType) GetBaseType() EventType {
	version := e.GetVersion()
	if version == "" {
		return e
	}

	return EventType(strings.TrimPrefix(string(e), version+"."))
}

// MessageMetadata carries NATS delivery metadata alongside a consumed event.
type MessageMetadata struct {
	ConsumerSequence uint64
	StreamSequence   uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	Domain           string
	MessageID        string
	MessageSubject   string
	WorkspaceID      string
}

// ToLastMetadata converts MessageMetadata to LastMetadata
func (e MessageMetadata) ToLastMetadata() *LastMetadata {
	return &LastMetadata{
		ConsumerSequence: int64(e.ConsumerSequence),
		StreamSequence:   int64(e.StreamSequence),
		Stream:           e.Stream,
		Consumer:         e.Consumer,
		Domain:           e.Domain,
		MessageID:        e.MessageID,
		MessageSubject:   e.MessageSubject,
		WorkspaceID:      e.WorkspaceID,
	}
}

// LastMetadata represents the delivery metadata of the last event applied to a row.
type LastMetadata struct {
	ConsumerSequence int64  `json:"consumer_sequence"`
	StreamSequence   int64  `json:"stream_sequence"`
	Stream           string `json:"stream"`
	Consumer         string `json:"consumer"`
	Domain           string `json:"domain"`
	MessageID        string `json:"message_id"`
	MessageSubject   string `json:"message_subject"`
	WorkspaceID      string `json:"workspace_id"`
}
