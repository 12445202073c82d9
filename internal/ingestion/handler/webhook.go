package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/internal/validator"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
)

// IngestService defines the interface for webhook event processing
type IngestService interface {
	ProcessUpsert(ctx context.Context, payload *model.WebhookPayload, metadata *model.LastMetadata) error
	ProcessUpdate(ctx context.Context, payload *model.WebhookPayload, metadata *model.LastMetadata) error
}

// WebhookHandler decodes webhook events from the stream and hands them to
// the ingest service.
type WebhookHandler struct {
	service IngestService
}

// NewWebhookHandler creates a new webhook event handler
func NewWebhookHandler(service IngestService) *WebhookHandler {
	return &WebhookHandler{
		service: service,
	}
}

// HandleEvent processes webhook events
func (h *WebhookHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	// Generate request ID
	requestID := uuid.NewString()
	ctx = tenant.WithRequestID(ctx, requestID)

	log := logger.FromContext(ctx)
	log.Info("Processing webhook event", zap.String("type", string(eventType)))

	lastMetadata := metadata.ToLastMetadata()
	switch eventType {
	case model.V1MessagesUpsert:
		return h.handleUpsert(ctx, lastMetadata, rawEvent)
	case model.V1MessagesUpdate:
		return h.handleUpdate(ctx, lastMetadata, rawEvent)
	default:
		unsupportedErr := fmt.Errorf("unsupported webhook event type: %s", eventType)
		log.Error("Unsupported webhook event type", zap.String("eventType", string(eventType)))
		return apperrors.NewFatal(unsupportedErr, "unsupported webhook event type")
	}
}

// handleUpsert processes messages.upsert events
func (h *WebhookHandler) handleUpsert(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var payload model.WebhookPayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal webhook upsert payload", zap.Error(err))
		return apperrors.NewFatal(err, "failed to unmarshal webhook upsert payload")
	}

	if err := validator.Validate(&payload); err != nil {
		log.Error("Webhook upsert validation failed", zap.Error(err))
		return apperrors.NewFatal(err, "webhook upsert payload invalid")
	}

	log.Info("Processing message upsert",
		zap.String("instance", payload.Instance),
		zap.String("provider_message_id", payload.Data.Key.ID))
	return h.service.ProcessUpsert(ctx, &payload, metadata)
}

// handleUpdate processes messages.update events (delivery and read receipts)
func (h *WebhookHandler) handleUpdate(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var payload model.WebhookPayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal webhook update payload", zap.Error(err))
		return apperrors.NewFatal(err, "failed to unmarshal webhook update payload")
	}

	if payload.Data.Key.ID == "" {
		validationErr := fmt.Errorf("message key id is required for update")
		log.Error("Webhook update validation failed", zap.Error(validationErr))
		return apperrors.NewFatal(validationErr, "message key id is required for update")
	}

	log.Info("Processing message update",
		zap.String("instance", payload.Instance),
		zap.String("provider_message_id", payload.Data.Key.ID))
	return h.service.ProcessUpdate(ctx, &payload, metadata)
}
