package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/storage"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/internal/validator"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// SendMessage performs an agent-originated send through the workflow engine.
// The message row is persisted with status=sending before the transport call
// so a concurrent inbound ack always finds a row to update, then reconciled
// to sent or failed from the engine's reply.
func (s *RelayService) SendMessage(ctx context.Context, conversationID string, request *model.SendMessageRequest) (*model.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", apperrors.ErrBadRequest)
	}
	if err := validator.Validate(request); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	repos, err := s.repos.Repos(ctx)
	if err != nil {
		return nil, err
	}

	// Client idempotency token: a retry of an already-accepted send returns
	// the existing row unchanged.
	if existing, findErr := repos.Messages.FindByExternalID(ctx, request.ClientMessageID); findErr == nil {
		logger.FromContext(ctx).Info("Duplicate client message id, returning existing row",
			zap.String("client_message_id", request.ClientMessageID),
			zap.String("message_id", existing.ID))
		return existing, nil
	} else if !apperrors.IsNotFoundError(findErr) {
		return nil, findErr
	}

	conversation, err := repos.Conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	contact, err := repos.Contacts.FindByID(ctx, conversation.ContactID)
	if err != nil {
		return nil, err
	}

	if conversation.ConnectionID == "" {
		return nil, fmt.Errorf("%w: conversation has no provider connection", apperrors.ErrDependencyMissing)
	}
	connection, err := repos.Connections.FindByID(ctx, conversation.ConnectionID)
	if err != nil {
		return nil, err
	}
	if connection.BaseURL == "" || connection.APIKey == "" {
		return nil, fmt.Errorf("%w: connection provider credentials not configured", apperrors.ErrDependencyMissing)
	}

	settings, err := s.workspaceSettings(ctx, repos)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: workspace settings not configured", apperrors.ErrDependencyMissing)
		}
		return nil, err
	}
	if settings.EngineWebhookURL == "" {
		return nil, fmt.Errorf("%w: engine webhook URL not configured", apperrors.ErrDependencyMissing)
	}

	return s.dispatchOutbound(ctx, repos, conversation, contact, connection, settings, outboundMessage{
		Content:         request.Content,
		MessageType:     request.MessageType,
		FileURL:         request.FileURL,
		FileName:        request.FileName,
		MimeType:        request.MimeType,
		ClientMessageID: request.ClientMessageID,
	})
}

// outboundMessage is the resolved send input shared by the gateway and the
// automation engine.
type outboundMessage struct {
	Content         string
	MessageType     string
	FileURL         string
	FileName        string
	MimeType        string
	ClientMessageID string
}

// dispatchOutbound persists the sending row, invokes the engine and
// reconciles the outcome.
func (s *RelayService) dispatchOutbound(ctx context.Context, repos *storage.RepoSet, conversation *model.Conversation, contact *model.Contact, connection *model.Connection, settings *model.WorkspaceSettings, out outboundMessage) (*model.Message, error) {
	log := logger.FromContext(ctx)
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	messageType := out.MessageType
	if messageType == "" {
		messageType = model.MessageTypeText
	}

	message := model.Message{
		ID:             uuid.NewString(),
		WorkspaceID:    workspaceID,
		ConversationID: conversation.ID,
		ExternalID:     out.ClientMessageID,
		Content:        out.Content,
		MessageType:    messageType,
		SenderType:     model.SenderTypeAgent,
		Status:         model.MessageStatusSending,
		FileURL:        out.FileURL,
		FileName:       out.FileName,
		MimeType:       out.MimeType,
	}

	if err := repos.Messages.SaveWithTouch(ctx, message); err != nil {
		if apperrors.IsDuplicateError(err) {
			// Concurrent double-submit; return the winner's row.
			existing, findErr := repos.Messages.FindByExternalID(ctx, out.ClientMessageID)
			if findErr != nil {
				return nil, findErr
			}
			return existing, nil
		}
		return nil, err
	}

	sendReq := &model.SendRequest{
		Direction:       model.DirectionOutbound,
		ExternalID:      out.ClientMessageID,
		PhoneNumber:     contact.Phone,
		MessageType:     messageType,
		Content:         out.Content,
		FileURL:         out.FileURL,
		FileName:        out.FileName,
		MimeType:        out.MimeType,
		WorkspaceID:     workspaceID,
		ConnectionID:    connection.ID,
		ConversationID:  conversation.ID,
		InstanceName:    connection.InstanceName,
		ProviderBaseURL: connection.BaseURL,
		ProviderAPIKey:  connection.APIKey,
	}

	response, err := s.engine.SendMessage(ctx, settings.EngineWebhookURL, sendReq)
	if err != nil {
		s.reconcileFailedSend(ctx, repos, &message, err.Error())
		return &message, err
	}
	if !response.Success {
		s.reconcileFailedSend(ctx, repos, &message, response.Error)
		return &message, fmt.Errorf("%w: engine rejected send: %s", apperrors.ErrTransport, response.Error)
	}

	providerMessageID := response.ProviderMessageID()
	meta := datatypes.JSON(utils.MustMarshalJSON(map[string]string{
		"provider_message_id": providerMessageID,
	}))
	if err := repos.Messages.ReconcileSend(ctx, message.ID, model.MessageStatusSent, providerMessageID, meta); err != nil {
		// The transport already succeeded; report the row as sent and log
		// the reconcile failure for the next ack to repair.
		log.Error("Failed to reconcile sent message", zap.Error(err), zap.String("message_id", message.ID))
	}
	message.Status = model.MessageStatusSent
	if providerMessageID != "" {
		message.ExternalID = providerMessageID
	}

	log.Info("Outbound message sent",
		zap.String("message_id", message.ID),
		zap.String("provider_message_id", providerMessageID))
	return &message, nil
}

func (s *RelayService) reconcileFailedSend(ctx context.Context, repos *storage.RepoSet, message *model.Message, cause string) {
	meta := datatypes.JSON(utils.MustMarshalJSON(map[string]string{"error": cause}))
	if err := repos.Messages.ReconcileSend(ctx, message.ID, model.MessageStatusFailed, "", meta); err != nil {
		logger.FromContext(ctx).Error("Failed to mark message as failed",
			zap.Error(err), zap.String("message_id", message.ID))
	}
	message.Status = model.MessageStatusFailed
}

// QuickConversationResult reports the ids resolved by QuickConversation and
// whether each row was newly created.
type QuickConversationResult struct {
	ContactID           string `json:"contact_id"`
	ConversationID      string `json:"conversation_id"`
	ContactCreated      bool   `json:"contact_created"`
	ConversationCreated bool   `json:"conversation_created"`
}

// QuickConversation creates (or reuses) a contact and conversation for a raw
// phone number without waiting for an inbound message. Distribution runs if
// the conversation is new and the connection carries a default queue.
func (s *RelayService) QuickConversation(ctx context.Context, request *model.QuickConversationRequest) (*QuickConversationResult, error) {
	if err := validator.Validate(request); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	phone := utils.NormalizePhone(request.Phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone yields no digits after normalization", apperrors.ErrBadRequest)
	}

	repos, err := s.repos.Repos(ctx)
	if err != nil {
		return nil, err
	}

	var connection *model.Connection
	if request.ConnectionID != "" {
		connection, err = repos.Connections.FindByID(ctx, request.ConnectionID)
		if err != nil {
			return nil, err
		}
	}

	contact, contactCreated, err := s.resolveContact(ctx, repos, phone, request.Name)
	if err != nil {
		return nil, err
	}

	connectionID := ""
	if connection != nil {
		connectionID = connection.ID
	}
	conversation, conversationCreated, err := s.resolveConversation(ctx, repos, contact.ID, connectionID)
	if err != nil {
		return nil, err
	}

	if conversationCreated && connection != nil && connection.QueueID != "" {
		s.distributeConversation(ctx, repos, conversation, connection.QueueID)
	}

	logger.FromContext(ctx).Info("Quick conversation resolved",
		zap.String("contact_id", contact.ID),
		zap.String("conversation_id", conversation.ID),
		zap.Bool("contact_created", contactCreated),
		zap.Bool("conversation_created", conversationCreated))

	return &QuickConversationResult{
		ContactID:           contact.ID,
		ConversationID:      conversation.ID,
		ContactCreated:      contactCreated,
		ConversationCreated: conversationCreated,
	}, nil
}
