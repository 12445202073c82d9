package forwarder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
)

func newTestClient(t *testing.T) *EngineClient {
	logger.Log = zaptest.NewLogger(t).Named("test")
	return NewEngineClient(2*time.Second, 0)
}

func TestEngineClient_ForwardEvent_Success(t *testing.T) {
	client := newTestClient(t)

	var received model.ForwardPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	payload := &model.ForwardPayload{
		WorkspaceID:      "ws-1",
		EventType:        "upsert",
		MessageDirection: model.DirectionInbound,
		PhoneNumber:      "628123456789",
	}
	payload.Event = model.EventMessagesUpsert
	payload.Instance = "instance-a"

	err := client.ForwardEvent(context.Background(), server.URL, payload)
	assert.NoError(t, err)
	assert.Equal(t, "ws-1", received.WorkspaceID)
	assert.Equal(t, model.EventMessagesUpsert, received.Event)
	assert.Equal(t, model.DirectionInbound, received.MessageDirection)
}

func TestEngineClient_ForwardEvent_EngineError(t *testing.T) {
	client := newTestClient(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := client.ForwardEvent(context.Background(), server.URL, &model.ForwardPayload{WorkspaceID: "ws-1"})
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestEngineClient_ForwardEvent_MissingURL(t *testing.T) {
	client := newTestClient(t)

	err := client.ForwardEvent(context.Background(), "", &model.ForwardPayload{WorkspaceID: "ws-1"})
	assert.ErrorIs(t, err, apperrors.ErrDependencyMissing)
}

func TestEngineClient_SendMessage_DecodesProviderKey(t *testing.T) {
	client := newTestClient(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.DirectionOutbound, req.Direction)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.SendResponse{
			Success: true,
			Key:     &model.MessageKey{ID: "PROVIDER-XYZ", RemoteJid: "628123@s.whatsapp.net"},
		})
	}))
	defer server.Close()

	resp, err := client.SendMessage(context.Background(), server.URL, &model.SendRequest{
		Direction:   model.DirectionOutbound,
		WorkspaceID: "ws-1",
		PhoneNumber: "628123456789",
		Content:     "hello",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "PROVIDER-XYZ", resp.ProviderMessageID())
}

func TestEngineClient_SendMessage_RejectionIsNotAnError(t *testing.T) {
	client := newTestClient(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.SendResponse{Success: false, Error: "instance offline"})
	}))
	defer server.Close()

	resp, err := client.SendMessage(context.Background(), server.URL, &model.SendRequest{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "instance offline", resp.Error)
}

func TestEngineClient_SendMessage_TransportFailure(t *testing.T) {
	client := newTestClient(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := client.SendMessage(context.Background(), server.URL, &model.SendRequest{WorkspaceID: "ws-1"})
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}
