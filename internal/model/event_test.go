package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapToBaseEventType(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		expected   EventType
		expectedOk bool
	}{
		{
			name:       "direct upsert match",
			input:      "v1.webhooks.messages.upsert",
			expected:   V1MessagesUpsert,
			expectedOk: true,
		},
		{
			name:       "upsert with workspace suffix",
			input:      "v1.webhooks.messages.upsert.ws_abc123",
			expected:   V1MessagesUpsert,
			expectedOk: true,
		},
		{
			name:       "update with workspace suffix",
			input:      "v1.webhooks.messages.update.ws_abc123",
			expected:   V1MessagesUpdate,
			expectedOk: true,
		},
		{
			name:       "unknown subject",
			input:      "v1.webhooks.chats.upsert.ws_abc123",
			expected:   "",
			expectedOk: false,
		},
		{
			name:       "no dots",
			input:      "garbage",
			expected:   "",
			expectedOk: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := MapToBaseEventType(tc.input)
			assert.Equal(t, tc.expectedOk, ok)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestEventType_Subject(t *testing.T) {
	assert.Equal(t, "v1.webhooks.messages.upsert.ws_42", V1MessagesUpsert.Subject("ws_42"))
}

func TestEventType_GetVersion(t *testing.T) {
	assert.Equal(t, "v1", V1MessagesUpsert.GetVersion())
	assert.Equal(t, "", EventType("webhooks.messages.upsert").GetVersion())
}

func TestMessageMetadata_ToLastMetadata(t *testing.T) {
	meta := MessageMetadata{
		ConsumerSequence: 7,
		StreamSequence:   11,
		Stream:           "webhook_stream",
		Consumer:         "webhook_consumer",
		MessageSubject:   "v1.webhooks.messages.upsert.ws_42",
		WorkspaceID:      "ws_42",
	}

	last := meta.ToLastMetadata()
	assert.Equal(t, int64(7), last.ConsumerSequence)
	assert.Equal(t, int64(11), last.StreamSequence)
	assert.Equal(t, "webhook_stream", last.Stream)
	assert.Equal(t, "ws_42", last.WorkspaceID)
}
