package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookMessage_Classify(t *testing.T) {
	tests := []struct {
		name     string
		message  *WebhookMessage
		expected MessageContent
	}{
		{
			name:     "plain conversation text",
			message:  &WebhookMessage{Conversation: "hello"},
			expected: MessageContent{Type: MessageTypeText, Text: "hello"},
		},
		{
			name:     "extended text",
			message:  &WebhookMessage{ExtendedTextMessage: &ExtendedText{Text: "quoted reply"}},
			expected: MessageContent{Type: MessageTypeText, Text: "quoted reply"},
		},
		{
			name: "image with caption",
			message: &WebhookMessage{ImageMessage: &MediaEnvelope{
				URL:      "https://cdn.example.com/img.jpg",
				MimeType: "image/jpeg",
				Caption:  "look at this",
			}},
			expected: MessageContent{
				Type:     MessageTypeImage,
				Text:     "look at this",
				FileURL:  "https://cdn.example.com/img.jpg",
				MimeType: "image/jpeg",
			},
		},
		{
			name:     "video",
			message:  &WebhookMessage{VideoMessage: &MediaEnvelope{URL: "https://cdn.example.com/v.mp4", MimeType: "video/mp4"}},
			expected: MessageContent{Type: MessageTypeVideo, FileURL: "https://cdn.example.com/v.mp4", MimeType: "video/mp4"},
		},
		{
			name:     "audio",
			message:  &WebhookMessage{AudioMessage: &MediaEnvelope{URL: "https://cdn.example.com/a.ogg", MimeType: "audio/ogg"}},
			expected: MessageContent{Type: MessageTypeAudio, FileURL: "https://cdn.example.com/a.ogg", MimeType: "audio/ogg"},
		},
		{
			name: "document with file name",
			message: &WebhookMessage{DocumentMessage: &MediaEnvelope{
				URL:      "https://cdn.example.com/d.pdf",
				MimeType: "application/pdf",
				FileName: "invoice.pdf",
			}},
			expected: MessageContent{
				Type:     MessageTypeDocument,
				FileURL:  "https://cdn.example.com/d.pdf",
				FileName: "invoice.pdf",
				MimeType: "application/pdf",
			},
		},
		{
			name:     "unknown shape falls back to file",
			message:  &WebhookMessage{},
			expected: MessageContent{Type: MessageTypeFile},
		},
		{
			name:     "nil message falls back to file",
			message:  nil,
			expected: MessageContent{Type: MessageTypeFile},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.message.Classify())
		})
	}
}

func TestNormalizeEventName(t *testing.T) {
	assert.Equal(t, "messages.upsert", NormalizeEventName("MESSAGES_UPSERT"))
	assert.Equal(t, "messages.update", NormalizeEventName("messages.update"))
	assert.Equal(t, "messages.update", NormalizeEventName("Messages_Update"))
}

func TestWebhookData_IsAck(t *testing.T) {
	ack := 2
	assert.True(t, (&WebhookData{Ack: &ack}).IsAck())
	assert.True(t, (&WebhookData{Status: "DELIVERY_ACK"}).IsAck())
	assert.False(t, (&WebhookData{Message: &WebhookMessage{Conversation: "hi"}}).IsAck())
}

func TestWebhookData_AckLevel(t *testing.T) {
	three := 3
	assert.Equal(t, 3, (&WebhookData{Ack: &three}).AckLevel())
	assert.Equal(t, -1, (&WebhookData{Status: "READ"}).AckLevel())
}

func TestSendResponse_ProviderMessageID(t *testing.T) {
	assert.Equal(t, "ABC123", (&SendResponse{Key: &MessageKey{ID: "ABC123"}}).ProviderMessageID())
	assert.Equal(t, "XYZ789", (&SendResponse{EvolutionKeyID: "XYZ789"}).ProviderMessageID())
	assert.Equal(t, "", (&SendResponse{Success: true}).ProviderMessageID())
}

func TestWebhookPayload_Decode(t *testing.T) {
	raw := `{
		"event": "messages.upsert",
		"instance": "inst_main",
		"data": {
			"key": {"remoteJid": "5511999998888@s.whatsapp.net", "fromMe": false, "id": "3EB0A"},
			"message": {"conversation": "oi"},
			"pushName": "Maria",
			"messageTimestamp": 1725148800
		}
	}`

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	assert.Equal(t, "messages.upsert", payload.Event)
	assert.Equal(t, "inst_main", payload.Instance)
	assert.Equal(t, "3EB0A", payload.Data.Key.ID)
	assert.False(t, payload.Data.IsAck())
	assert.Equal(t, MessageTypeText, payload.Data.Message.Classify().Type)
}
