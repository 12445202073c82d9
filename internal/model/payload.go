package model

import (
	"strings"
)

// Provider event names after normalization.
const (
	EventMessagesUpsert = "messages.upsert"
	EventMessagesUpdate = "messages.update"
)

// Message directions on the forwarded payload.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// --- Inbound Webhook Payload --- //

// WebhookPayload is the provider webhook envelope as received on the HTTP
// ingress and republished verbatim onto the stream.
type WebhookPayload struct {
	Event    string      `json:"event" validate:"required"`
	Instance string      `json:"instance" validate:"required"`
	Data     WebhookData `json:"data" validate:"required"`
}

// WebhookData carries the message key, body and optional receipt fields.
type WebhookData struct {
	Key              MessageKey      `json:"key"`
	Message          *WebhookMessage `json:"message,omitempty"`
	PushName         string          `json:"pushName,omitempty"`
	Ack              *int            `json:"ack,omitempty"`    // numeric receipt level 0-4
	Status           string          `json:"status,omitempty"` // string receipt form, e.g. DELIVERY_ACK
	MessageTimestamp int64           `json:"messageTimestamp,omitempty"`
}

// MessageKey identifies a provider message.
type MessageKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// WebhookMessage is the raw provider message body. Exactly one sub-object is
// expected to be populated; classification inspects which one.
type WebhookMessage struct {
	Conversation        string         `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedText  `json:"extendedTextMessage,omitempty"`
	ImageMessage        *MediaEnvelope `json:"imageMessage,omitempty"`
	VideoMessage        *MediaEnvelope `json:"videoMessage,omitempty"`
	AudioMessage        *MediaEnvelope `json:"audioMessage,omitempty"`
	DocumentMessage     *MediaEnvelope `json:"documentMessage,omitempty"`
}

// ExtendedText is the quoted/link-preview text variant.
type ExtendedText struct {
	Text string `json:"text"`
}

// MediaEnvelope holds the media fields common to image/video/audio/document bodies.
type MediaEnvelope struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Caption  string `json:"caption,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// MessageContent is the classified message body: a typed variant decoded
// from the wire shape instead of ad hoc property probing.
type MessageContent struct {
	Type     string
	Text     string
	FileURL  string
	FileName string
	MimeType string
}

// Classify resolves the populated sub-object into a typed variant. Unknown
// shapes fall back to a generic file label with empty text content.
func (m *WebhookMessage) Classify() MessageContent {
	switch {
	case m == nil:
		return MessageContent{Type: MessageTypeFile}
	case m.Conversation != "":
		return MessageContent{Type: MessageTypeText, Text: m.Conversation}
	case m.ExtendedTextMessage != nil:
		return MessageContent{Type: MessageTypeText, Text: m.ExtendedTextMessage.Text}
	case m.ImageMessage != nil:
		return mediaContent(MessageTypeImage, m.ImageMessage)
	case m.VideoMessage != nil:
		return mediaContent(MessageTypeVideo, m.VideoMessage)
	case m.AudioMessage != nil:
		return mediaContent(MessageTypeAudio, m.AudioMessage)
	case m.DocumentMessage != nil:
		return mediaContent(MessageTypeDocument, m.DocumentMessage)
	default:
		return MessageContent{Type: MessageTypeFile}
	}
}

func mediaContent(kind string, env *MediaEnvelope) MessageContent {
	return MessageContent{
		Type:     kind,
		Text:     env.Caption,
		FileURL:  env.URL,
		FileName: env.FileName,
		MimeType: env.MimeType,
	}
}

// NormalizeEventName lowercases a provider event name and converts the
// underscore form to the dotted form, e.g. MESSAGES_UPSERT -> messages.upsert.
func NormalizeEventName(event string) string {
	return strings.ReplaceAll(strings.ToLower(event), "_", ".")
}

// IsAck reports whether the payload is a pure receipt (delivery/read ack)
// rather than a message body.
func (d *WebhookData) IsAck() bool {
	return d.Ack != nil || d.Status != ""
}

// AckLevel returns the numeric receipt level, or -1 when only the string
// form is present.
func (d *WebhookData) AckLevel() int {
	if d.Ack != nil {
		return *d.Ack
	}
	return -1
}

// --- Forwarded Payload (relay -> workflow engine) --- //

// ProcessedData carries the locally resolved identifiers attached to a
// forwarded webhook.
type ProcessedData struct {
	ContactID      string `json:"contact_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	ConnectionID   string `json:"connection_id,omitempty"`
	QueueID        string `json:"queue_id,omitempty"`
	AssignedUserID string `json:"assigned_user_id,omitempty"`
}

// ForwardPayload is the JSON superset of the inbound payload sent to the
// workflow engine after ingestion.
type ForwardPayload struct {
	WebhookPayload
	WorkspaceID      string        `json:"workspace_id"`
	ProcessedData    ProcessedData `json:"processed_data"`
	EventType        string        `json:"event_type"` // upsert or update
	MessageDirection string        `json:"message_direction"`
	PhoneNumber      string        `json:"phone_number"` // normalized
}

// --- Outbound Send (gateway -> workflow engine) --- //

// SendRequest is the transport payload for an agent-originated send.
type SendRequest struct {
	Direction       string `json:"direction"` // always outbound
	ExternalID      string `json:"external_id"`
	PhoneNumber     string `json:"phone_number"`
	MessageType     string `json:"message_type"`
	Content         string `json:"content"`
	FileURL         string `json:"file_url,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	MimeType        string `json:"mime_type,omitempty"`
	WorkspaceID     string `json:"workspace_id"`
	ConnectionID    string `json:"connection_id"`
	ConversationID  string `json:"conversation_id"`
	InstanceName    string `json:"instance_name"`
	ProviderBaseURL string `json:"provider_base_url,omitempty"`
	ProviderAPIKey  string `json:"provider_api_key,omitempty"`
}

// SendResponse is the workflow engine's reply to a send request. The
// provider message id may arrive under key.id or evolution_key_id.
type SendResponse struct {
	Success        bool        `json:"success"`
	Key            *MessageKey `json:"key,omitempty"`
	EvolutionKeyID string      `json:"evolution_key_id,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// ProviderMessageID returns the provider message id carried by the response,
// or empty when neither field is present.
func (r *SendResponse) ProviderMessageID() string {
	if r.Key != nil && r.Key.ID != "" {
		return r.Key.ID
	}
	return r.EvolutionKeyID
}

// --- Sync HTTP API payloads --- //

// SendMessageRequest is the caller-facing body for the send gateway.
// ClientMessageID is the client-generated idempotency token.
type SendMessageRequest struct {
	Content         string `json:"content" validate:"required"`
	MessageType     string `json:"message_type,omitempty" validate:"omitempty,oneof=text image video audio document file"`
	FileURL         string `json:"file_url,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	MimeType        string `json:"mime_type,omitempty"`
	ClientMessageID string `json:"client_message_id" validate:"required"`
}

// QuickConversationRequest creates a contact and conversation for a raw
// phone number without waiting for an inbound message.
type QuickConversationRequest struct {
	Phone        string `json:"phone" validate:"required"`
	Name         string `json:"name,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}
