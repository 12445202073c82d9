package handler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/ingestion/handler"
	handlermock "gitlab.com/vantio/api/wa-crm-relay/internal/ingestion/handler/mock"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
)

func setupHandlerTest(t *testing.T) (*handlermock.IngestServiceMock, *handler.WebhookHandler) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	service := new(handlermock.IngestServiceMock)
	return service, handler.NewWebhookHandler(service)
}

func upsertMetadata() *model.MessageMetadata {
	return &model.MessageMetadata{
		MessageID:      "msg-1",
		MessageSubject: "v1.webhooks.messages.upsert.ws-1",
		WorkspaceID:    "ws-1",
	}
}

func TestWebhookHandler_HandleEvent_Upsert(t *testing.T) {
	service, h := setupHandlerTest(t)

	raw := []byte(`{
		"event": "MESSAGES_UPSERT",
		"instance": "instance-a",
		"data": {
			"key": {"remoteJid": "628123456789@s.whatsapp.net", "fromMe": false, "id": "ABC123"},
			"message": {"conversation": "hello"},
			"pushName": "Alice"
		}
	}`)

	service.On("ProcessUpsert", mock.Anything, mock.MatchedBy(func(p *model.WebhookPayload) bool {
		return p.Instance == "instance-a" && p.Data.Key.ID == "ABC123"
	}), mock.MatchedBy(func(md *model.LastMetadata) bool {
		return md.WorkspaceID == "ws-1"
	})).Return(nil)

	err := h.HandleEvent(context.Background(), model.V1MessagesUpsert, upsertMetadata(), raw)

	assert.NoError(t, err)
	service.AssertExpectations(t)
}

func TestWebhookHandler_HandleEvent_Update(t *testing.T) {
	service, h := setupHandlerTest(t)

	raw := []byte(`{
		"event": "MESSAGES_UPDATE",
		"instance": "instance-a",
		"data": {
			"key": {"remoteJid": "628123456789@s.whatsapp.net", "fromMe": true, "id": "ABC123"},
			"status": "DELIVERY_ACK"
		}
	}`)

	service.On("ProcessUpdate", mock.Anything, mock.MatchedBy(func(p *model.WebhookPayload) bool {
		return p.Data.Status == "DELIVERY_ACK"
	}), mock.Anything).Return(nil)

	err := h.HandleEvent(context.Background(), model.V1MessagesUpdate, upsertMetadata(), raw)

	assert.NoError(t, err)
	service.AssertExpectations(t)
}

func TestWebhookHandler_HandleEvent_MalformedJSONIsFatal(t *testing.T) {
	service, h := setupHandlerTest(t)

	err := h.HandleEvent(context.Background(), model.V1MessagesUpsert, upsertMetadata(), []byte(`{not json`))

	assert.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	service.AssertNotCalled(t, "ProcessUpsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookHandler_HandleEvent_UpsertMissingEventIsFatal(t *testing.T) {
	service, h := setupHandlerTest(t)

	raw := []byte(`{"instance": "instance-a", "data": {"key": {"id": "ABC123"}}}`)

	err := h.HandleEvent(context.Background(), model.V1MessagesUpsert, upsertMetadata(), raw)

	assert.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	service.AssertNotCalled(t, "ProcessUpsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookHandler_HandleEvent_UpdateWithoutKeyIsFatal(t *testing.T) {
	service, h := setupHandlerTest(t)

	raw := []byte(`{"event": "MESSAGES_UPDATE", "instance": "instance-a", "data": {"status": "READ"}}`)

	err := h.HandleEvent(context.Background(), model.V1MessagesUpdate, upsertMetadata(), raw)

	assert.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	service.AssertNotCalled(t, "ProcessUpdate", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookHandler_HandleEvent_UnsupportedTypeIsFatal(t *testing.T) {
	service, h := setupHandlerTest(t)

	err := h.HandleEvent(context.Background(), model.EventType("v1.webhooks.other"), upsertMetadata(), []byte(`{}`))

	assert.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	service.AssertNotCalled(t, "ProcessUpsert", mock.Anything, mock.Anything, mock.Anything)
	service.AssertNotCalled(t, "ProcessUpdate", mock.Anything, mock.Anything, mock.Anything)
}
