package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/internal/storage"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// ProcessUpsert ingests a messages.upsert event: dedup by provider message
// id, classify, resolve contact and conversation, persist, then fan out to
// distribution, engine forwarding and automation. Forward and distribution
// failures never fail ingestion.
func (s *RelayService) ProcessUpsert(ctx context.Context, payload *model.WebhookPayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return apperrors.NewFatal(err, "workspace missing from context")
	}

	remoteJid := payload.Data.Key.RemoteJid

	// Non-1:1 chats are excluded entirely, before any row is written.
	if utils.IsGroupJID(remoteJid) {
		log.Debug("Skipping group message", zap.String("remote_jid", remoteJid))
		observer.IncEventsSkipped(workspaceID, "group_jid")
		return nil
	}
	if utils.IsBroadcastJID(remoteJid) {
		log.Debug("Skipping broadcast message", zap.String("remote_jid", remoteJid))
		observer.IncEventsSkipped(workspaceID, "broadcast_jid")
		return nil
	}

	phone := utils.NormalizePhone(remoteJid)
	if phone == "" {
		log.Warn("Empty phone after normalization, dropping event", zap.String("remote_jid", remoteJid))
		observer.IncEventsSkipped(workspaceID, "empty_phone")
		return nil
	}

	repos, err := s.repos.Repos(ctx)
	if err != nil {
		return classifyRepoError(err, "failed to resolve workspace repositories")
	}

	// Dedup before any side effect: a provider retry must not re-run contact
	// creation or distribution.
	externalID := payload.Data.Key.ID
	if existing, findErr := repos.Messages.FindByExternalID(ctx, externalID); findErr == nil {
		log.Info("Duplicate provider message id, skipping",
			zap.String("external_id", externalID),
			zap.String("message_id", existing.ID))
		observer.IncEventsSkipped(workspaceID, "duplicate")
		return nil
	} else if !apperrors.IsNotFoundError(findErr) {
		return classifyRepoError(findErr, "failed to check message dedup key")
	}

	connection, err := s.connectionByInstance(ctx, repos, payload.Instance)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			log.Warn("Webhook for unknown instance, dropping", zap.String("instance", payload.Instance))
			observer.IncEventsSkipped(workspaceID, "unknown_instance")
			return nil
		}
		return classifyRepoError(err, "failed to resolve connection")
	}

	contact, _, err := s.resolveContact(ctx, repos, phone, payload.Data.PushName)
	if err != nil {
		return classifyRepoError(err, "failed to resolve contact")
	}

	conversation, conversationCreated, err := s.resolveConversation(ctx, repos, contact.ID, connection.ID)
	if err != nil {
		return classifyRepoError(err, "failed to resolve conversation")
	}

	direction := model.DirectionInbound
	senderType := model.SenderTypeContact
	status := model.MessageStatusReceived
	if payload.Data.Key.FromMe {
		direction = model.DirectionOutbound
		senderType = model.SenderTypeAgent
		status = model.MessageStatusSent
	}

	content := payload.Data.Message.Classify()
	message := model.Message{
		ID:             uuid.NewString(),
		WorkspaceID:    workspaceID,
		ConversationID: conversation.ID,
		ExternalID:     externalID,
		Content:        content.Text,
		MessageType:    content.Type,
		SenderType:     senderType,
		Status:         status,
		FileURL:        content.FileURL,
		FileName:       content.FileName,
		MimeType:       content.MimeType,
		LastMetadata:   datatypes.JSON(utils.MustMarshalJSON(metadata)),
	}
	if payload.Data.MessageTimestamp > 0 {
		message.CreatedAt = utils.UnixToTime(payload.Data.MessageTimestamp)
	}

	if err := repos.Messages.SaveWithTouch(ctx, message); err != nil {
		if apperrors.IsDuplicateError(err) {
			// Lost the insert race to a concurrent delivery; the winner's row stands.
			log.Info("Concurrent duplicate insert, skipping", zap.String("external_id", externalID))
			observer.IncEventsSkipped(workspaceID, "duplicate")
			return nil
		}
		return classifyRepoError(err, "failed to persist message")
	}

	log.Info("Message ingested",
		zap.String("message_id", message.ID),
		zap.String("conversation_id", conversation.ID),
		zap.String("contact_id", contact.ID),
		zap.String("direction", direction),
		zap.String("message_type", content.Type),
		zap.Bool("conversation_created", conversationCreated))

	// Distribution runs once, at conversation creation, and is best-effort.
	if conversationCreated && connection.QueueID != "" {
		s.distributeConversation(ctx, repos, conversation, connection.QueueID)
	}

	s.forwardWebhook(ctx, repos, payload, &model.ForwardPayload{
		WorkspaceID:      workspaceID,
		EventType:        "upsert",
		MessageDirection: direction,
		PhoneNumber:      phone,
		ProcessedData: model.ProcessedData{
			ContactID:      contact.ID,
			ConversationID: conversation.ID,
			MessageID:      message.ID,
			ConnectionID:   connection.ID,
			QueueID:        conversation.QueueID,
			AssignedUserID: conversation.AssignedUserID,
		},
	})

	if direction == model.DirectionInbound && s.automation != nil {
		s.automation.Enqueue(AutomationJob{
			WorkspaceID:    workspaceID,
			ContactID:      contact.ID,
			ConversationID: conversation.ID,
		})
	}

	return nil
}

// ProcessUpdate ingests a messages.update event: map the ack level to a
// message status and reconcile the matching row by provider message id.
// Unknown levels and unknown ids are logged and dropped.
func (s *RelayService) ProcessUpdate(ctx context.Context, payload *model.WebhookPayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return apperrors.NewFatal(err, "workspace missing from context")
	}

	status, recognized := model.AckStatus(payload.Data.AckLevel(), payload.Data.Status)
	if !recognized {
		log.Warn("Unrecognized ack level, ignoring",
			zap.Int("ack", payload.Data.AckLevel()),
			zap.String("status", payload.Data.Status))
		observer.IncEventsSkipped(workspaceID, "unknown_ack_level")
		return nil
	}

	repos, err := s.repos.Repos(ctx)
	if err != nil {
		return classifyRepoError(err, "failed to resolve workspace repositories")
	}

	at := utils.Now()
	if payload.Data.MessageTimestamp > 0 {
		at = utils.UnixToTime(payload.Data.MessageTimestamp)
	}

	externalID := payload.Data.Key.ID
	meta := datatypes.JSON(utils.MustMarshalJSON(metadata))
	if err := repos.Messages.ApplyAck(ctx, externalID, status, at, meta); err != nil {
		if apperrors.IsNotFoundError(err) {
			// Pure acks never create rows; an unmatched id is dropped.
			log.Info("Ack for unknown message id, dropping", zap.String("external_id", externalID))
			observer.IncEventsSkipped(workspaceID, "ack_unknown_message")
			return nil
		}
		return classifyRepoError(err, "failed to apply message ack")
	}

	log.Info("Message ack applied",
		zap.String("external_id", externalID),
		zap.String("status", status))

	s.forwardWebhook(ctx, repos, payload, &model.ForwardPayload{
		WorkspaceID:      workspaceID,
		EventType:        "update",
		MessageDirection: model.DirectionOutbound,
		PhoneNumber:      utils.NormalizePhone(payload.Data.Key.RemoteJid),
	})

	return nil
}

// resolveContact finds or creates the contact for a canonical phone. The
// display name is used only at creation, never to overwrite an existing name.
func (s *RelayService) resolveContact(ctx context.Context, repos *storage.RepoSet, phone, displayName string) (*model.Contact, bool, error) {
	contact, err := repos.Contacts.FindByPhone(ctx, phone)
	if err == nil {
		return contact, false, nil
	}
	if !apperrors.IsNotFoundError(err) {
		return nil, false, err
	}

	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	name := displayName
	if name == "" {
		name = phone
	}
	created := model.Contact{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Phone:       phone,
		Name:        name,
	}
	if err := repos.Contacts.Save(ctx, created); err != nil {
		if apperrors.IsDuplicateError(err) {
			// Concurrent creation: re-read the winner.
			existing, findErr := repos.Contacts.FindByPhone(ctx, phone)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return &created, true, nil
}

// resolveConversation reuses the contact's most recent conversation
// regardless of status, re-linking the connection when the instance changed.
// On miss it creates an open conversation bound to the given connection.
func (s *RelayService) resolveConversation(ctx context.Context, repos *storage.RepoSet, contactID, connectionID string) (*model.Conversation, bool, error) {
	conversation, err := repos.Conversations.FindLatestByContact(ctx, contactID)
	if err == nil {
		if connectionID != "" && conversation.ConnectionID != connectionID {
			if updateErr := repos.Conversations.UpdateConnection(ctx, conversation.ID, connectionID); updateErr != nil {
				return nil, false, updateErr
			}
			conversation.ConnectionID = connectionID
		}
		return conversation, false, nil
	}
	if !apperrors.IsNotFoundError(err) {
		return nil, false, err
	}

	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	created := model.Conversation{
		ID:             uuid.NewString(),
		WorkspaceID:    workspaceID,
		ContactID:      contactID,
		ConnectionID:   connectionID,
		Status:         model.ConversationStatusOpen,
		AgentActive:    false,
		LastActivityAt: utils.Now(),
	}
	if err := repos.Conversations.Save(ctx, created); err != nil {
		return nil, false, err
	}
	return &created, true, nil
}

// forwardWebhook delivers the enriched payload to the workspace's engine
// webhook. Best-effort: the message row is already persisted, so failures
// are logged and counted but never returned.
func (s *RelayService) forwardWebhook(ctx context.Context, repos *storage.RepoSet, original *model.WebhookPayload, forward *model.ForwardPayload) {
	log := logger.FromContext(ctx)

	settings, err := s.workspaceSettings(ctx, repos)
	if err != nil {
		log.Warn("Workspace settings unavailable, skipping engine forward", zap.Error(err))
		observer.IncForwardRequest(forward.WorkspaceID, "skipped")
		return
	}
	if settings.EngineWebhookURL == "" {
		log.Warn("Engine webhook URL not configured, skipping forward")
		observer.IncForwardRequest(forward.WorkspaceID, "skipped")
		return
	}

	forward.WebhookPayload = *original
	if err := s.engine.ForwardEvent(ctx, settings.EngineWebhookURL, forward); err != nil {
		log.Warn("Engine forward failed", zap.Error(err))
	}
}
