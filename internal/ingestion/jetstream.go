package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/config"
	"gitlab.com/vantio/api/wa-crm-relay/internal/jetstream"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// AckNakAction represents the decision made after processing a message
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // Message processed successfully, ACK it
	ActionNak                          // Terminal NAK (metadata failure, DLQ failure)
	ActionNakDelay                     // Retryable error, NAK with calculated delay
	ActionDLQ                          // Max retries reached or fatal error, publish to DLQ then ACK
)

const webhookConsumerType = "webhook"

// workspaceFromSubject extracts the workspace id from a published subject.
// Subjects carry the workspace as the final token, e.g.
// v1.webhooks.messages.upsert.<workspace>.
func workspaceFromSubject(subject string) string {
	lastDotIndex := strings.LastIndex(subject, ".")
	if lastDotIndex <= 0 || lastDotIndex == len(subject)-1 {
		return ""
	}
	if _, found := model.MapToBaseEventType(subject[:lastDotIndex]); !found {
		return ""
	}
	return subject[lastDotIndex+1:]
}

// determineAckNakAction decides the fate of a message based on processing result and metadata.
// It returns the action to take (ACK, NAK, NAK_DELAY, DLQ) and the delay duration if applicable.
func determineAckNakAction(
	processingErr error,
	metadata *nats.MsgMetadata,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {

	if processingErr == nil {
		return ActionAck, 0
	}

	isRetryable := apperrors.IsRetryable(processingErr)
	numDelivered := metadata.NumDelivered

	// Max retries or a fatal error both park the message.
	if numDelivered >= uint64(maxDeliver) || !isRetryable {
		return ActionDLQ, 0
	}

	// Retryable with attempts remaining: NAK with exponential delay.
	attempt := numDelivered
	delay = nakBaseDelay
	if attempt > 1 {
		delay = nakBaseDelay * (1 << (attempt - 1))
	}
	if delay > nakMaxDelay {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

// WebhookConsumer consumes the webhook stream for all workspaces. The
// workspace id is carried in the subject, so a single durable consumer
// serves every tenant.
type WebhookConsumer struct {
	client        jetstream.ClientInterface
	router        RouterInterface
	cfg           config.ConsumerNatsConfig
	dlqSubject    string
	sub           *nats.Subscription
	filterSubject string
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWebhookConsumer creates the webhook stream consumer
func NewWebhookConsumer(client jetstream.ClientInterface, router RouterInterface, cfg config.ConsumerNatsConfig, dlqSubject string) *WebhookConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithLogger(ctx, logger.Log.With(zap.String("consumer", cfg.Consumer)))

	return &WebhookConsumer{
		client:     client,
		router:     router,
		cfg:        cfg,
		dlqSubject: dlqSubject,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Setup configures the NATS stream and consumer for webhook events
func (c *WebhookConsumer) Setup() error {
	log := logger.FromContext(c.ctx)
	log.Info("Setting up WebhookConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	maxAgeRetention := time.Duration(c.cfg.MaxAge*24) * time.Hour

	streamCfg := &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  c.cfg.SubjectList,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAgeRetention,
	}

	if err := c.client.SetupStream(c.ctx, streamCfg); err != nil {
		log.Error("Failed to setup webhook stream", zap.Error(err), zap.String("stream", c.cfg.Stream))
		return fmt.Errorf("failed to setup webhook stream '%s': %w", c.cfg.Stream, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        c.cfg.Consumer,
		DeliverGroup:   c.cfg.QueueGroup,
		FilterSubjects: c.cfg.SubjectList,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     c.cfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
		DeliverPolicy:  nats.DeliverAllPolicy,
	}
	if len(c.cfg.SubjectList) > 0 {
		c.filterSubject = c.cfg.SubjectList[0]
	}

	if err := c.client.SetupConsumer(c.ctx, c.cfg.Stream, consumerCfg); err != nil {
		log.Error("Failed to setup webhook consumer", zap.Error(err), zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))
		return fmt.Errorf("failed to setup webhook consumer '%s' for stream '%s': %w", c.cfg.Consumer, c.cfg.Stream, err)
	}

	log.Info("WebhookConsumer setup complete")
	return nil
}

// Start subscribes to the NATS stream
func (c *WebhookConsumer) Start() error {
	log := logger.FromContext(c.ctx)
	log.Info("Starting WebhookConsumer subscription...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	sub, err := c.client.SubscribePush(c.filterSubject, c.cfg.Consumer, c.cfg.QueueGroup, c.cfg.Stream, c.handleMessage)
	if err != nil {
		log.Error("Failed to subscribe webhook consumer", zap.Error(err),
			zap.String("stream", c.cfg.Stream),
			zap.String("consumer", c.cfg.Consumer),
			zap.String("group", c.cfg.QueueGroup),
		)
		return fmt.Errorf("failed to subscribe webhook consumer '%s': %w", c.cfg.Consumer, err)
	}
	c.sub = sub
	log.Info("WebhookConsumer subscribed successfully")
	return nil
}

// Stop unsubscribes and cleans up resources
func (c *WebhookConsumer) Stop() {
	log := logger.FromContext(c.ctx)
	log.Info("Stopping WebhookConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining webhook subscription", zap.Error(err))
		}
		log.Info("Webhook subscription drained")
	}
	if c.cancel != nil {
		c.cancel()
	}
	log.Info("WebhookConsumer stopped")
}

// handleMessage is the core message processing logic for the webhook stream
func (c *WebhookConsumer) handleMessage(msg *nats.Msg) {
	startTime := utils.Now()
	var processingErr error

	eventType, found := model.MapToBaseEventType(msg.Subject)
	workspaceID := workspaceFromSubject(msg.Subject)

	defer func() {
		// Observe duration regardless of outcome
		observer.ObserveEventProcessingDuration(string(eventType), workspaceID, webhookConsumerType, time.Since(startTime))

		if r := recover(); r != nil {
			logFromCtx := logger.FromContext(c.ctx)
			logFromCtx.Error("[panic] Recovered from panic in message handler",
				zap.Any("panic", r),
				zap.String("subject", msg.Subject),
				zap.Duration("duration", time.Since(startTime)),
				zap.Stack("stack"),
			)
			observer.IncEventsFailed(string(eventType), workspaceID, webhookConsumerType)
			observer.IncEventProcessingAction(string(eventType), workspaceID, webhookConsumerType, "panic_nak", "panic")
			if nakErr := msg.Nak(); nakErr != nil {
				logFromCtx.Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	msgCtx := c.ctx
	logFromCtx := logger.FromContext(msgCtx)

	var msgID string
	if msg.Header != nil {
		msgID = msg.Header.Get("Nats-Msg-Id")
	}

	if !found || workspaceID == "" {
		logFromCtx.Warn("Unknown event subject", zap.String("subject", msg.Subject))
		if nakErr := msg.Nak(); nakErr != nil {
			logFromCtx.Error("Failed to NAK message for unknown subject", zap.Error(nakErr))
		}
		observer.IncEventProcessingAction(string(eventType), workspaceID, webhookConsumerType, "nak_unknown_type", "unknown_event_type")
		return
	}

	metadata, err := msg.Metadata()
	if err != nil {
		logFromCtx.Error("Failed to read message metadata", zap.Error(err), zap.Duration("duration", time.Since(startTime)))
		if nakErr := msg.Nak(); nakErr != nil {
			logFromCtx.Error("Failed to NAK message", zap.Error(nakErr))
		}
		observer.IncEventProcessingAction(string(eventType), workspaceID, webhookConsumerType, "nak_metadata_error", "metadata")
		return
	}
	if msgID == "" {
		msgID = fmt.Sprintf("msg-%d", metadata.Sequence.Stream)
	}

	internalMetadata := &model.MessageMetadata{
		StreamSequence:   metadata.Sequence.Stream,
		ConsumerSequence: metadata.Sequence.Consumer,
		NumDelivered:     metadata.NumDelivered,
		NumPending:       metadata.NumPending,
		Timestamp:        metadata.Timestamp,
		Stream:           metadata.Stream,
		Consumer:         metadata.Consumer,
		Domain:           metadata.Domain,
		MessageID:        msgID,
		MessageSubject:   msg.Subject,
		WorkspaceID:      workspaceID,
	}

	observer.IncEventsReceived(string(eventType), workspaceID, webhookConsumerType)

	msgCtx = logger.WithLogger(msgCtx, logFromCtx.With(
		zap.String("nats_message_id", msgID),
		zap.Uint64("stream_sequence", internalMetadata.StreamSequence),
		zap.Uint64("consumer_sequence", internalMetadata.ConsumerSequence),
		zap.String("subject", msg.Subject),
		zap.String("workspace_id", workspaceID),
	))

	routingStartTime := utils.Now()
	processingErr = c.router.Route(msgCtx, internalMetadata, msg.Data)
	observer.ObserveEventRoutingDuration(string(eventType), workspaceID, webhookConsumerType, time.Since(routingStartTime))

	enhancedLog := logger.FromContext(msgCtx)

	action, nakDelay := determineAckNakAction(processingErr, metadata, c.cfg.MaxDeliver, c.cfg.NakBaseDelay, c.cfg.NakMaxDelay)

	errorType := "none"
	if processingErr != nil {
		errorType = observer.SanitizeErrorType(processingErr.Error())
	}

	switch action {
	case ActionAck:
		enhancedLog.Info("Successfully processed message", zap.Duration("duration", time.Since(startTime)))
		observer.IncEventsProcessed(string(eventType), workspaceID, webhookConsumerType)
		observer.IncEventProcessingAction(string(eventType), workspaceID, webhookConsumerType, "ack_success", errorType)
		if ackErr := msg.Ack(); ackErr != nil {
			enhancedLog.Error("Failed to ACK message after successful processing", zap.Error(ackErr))
		}

	case ActionNak:
		enhancedLog.Error("NAKing message immediately", zap.Error(processingErr), zap.Duration("duration", time.Since(startTime)))
		observer.IncEventsFailed(string(eventType), workspaceID, webhookConsumerType)
		observer.IncEventProcessingAction(string(eventType), workspaceID, webhookConsumerType, "nak_terminal", errorType)
		if nakErr := msg.Nak(); nakErr != nil {
			enhancedLog.Error("Failed to NAK message", zap.Error(nakErr))
		}

	case ActionNakDelay:
		enhancedLog.Info("NAKing message with delay for redelivery (retryable error)",
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
			zap.Duration("nak_delay", nakDelay),
			zap.Duration("duration", time.Since(startTime)),
		)
		observer.IncEventsFailed(string(eventType), workspaceID, webhookConsumerType)
		observer.IncEventProcessingAction(string(eventType), workspaceID, webhookConsumerType, "nak_retry", errorType)
		if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
			enhancedLog.Error("Failed to NAK message with delay", zap.Error(nakErr))
		}

	case ActionDLQ:
		c.publishToDLQ(msgCtx, msg, metadata, eventType, workspaceID, msgID, processingErr, errorType, startTime)
	}
}

// publishToDLQ parks a failed message on the DLQ subject and ACKs the
// original only when the publish succeeded.
func (c *WebhookConsumer) publishToDLQ(ctx context.Context, msg *nats.Msg, metadata *nats.MsgMetadata, eventType model.EventType, workspaceID, msgID string, processingErr error, errorType string, startTime time.Time) {
	log := logger.FromContext(ctx)

	isRetryable := apperrors.IsRetryable(processingErr)
	logReason := "max delivery attempts reached"
	if !isRetryable {
		logReason = "fatal error encountered"
	}
	log.Warn(fmt.Sprintf("Sending message to DLQ: %s", logReason),
		zap.Error(processingErr),
		zap.Uint64("num_delivered", metadata.NumDelivered),
		zap.Int("max_deliver", c.cfg.MaxDeliver),
		zap.Bool("is_retryable", isRetryable),
		zap.Duration("duration", time.Since(startTime)),
	)
	observer.IncEventsFailed(string(eventType), workspaceID, webhookConsumerType)

	var errorTypeString string
	if isRetryable {
		errorTypeString = "retryable"
	} else if apperrors.IsFatal(processingErr) {
		errorTypeString = "fatal"
	} else {
		log.Warn("Error reaching DLQ is not explicitly Fatal or Retryable, classifying as fatal", zap.Error(processingErr))
		errorTypeString = "fatal"
	}

	dlqPayload := model.DLQPayload{
		SourceSubject:   msg.Subject,
		WorkspaceID:     workspaceID,
		OriginalPayload: json.RawMessage(msg.Data),
		Error:           processingErr.Error(),
		ErrorType:       errorTypeString,
		RetryCount:      metadata.NumDelivered,
		MaxRetry:        c.cfg.MaxDeliver,
		Timestamp:       time.Now().UTC(),
	}

	dlqData, marshalErr := json.Marshal(dlqPayload)
	if marshalErr != nil {
		log.Error("Failed to marshal DLQ payload, NAKing original message without delay",
			zap.Error(marshalErr),
			zap.String("dlq_subject", c.dlqSubject+"."+workspaceID),
		)
		observer.IncEventProcessingAction(string(eventType), workspaceID, webhookConsumerType, "nak_dlq_marshal_fail", "dlq_marshal_fail")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error("Failed to NAK message after DLQ marshal error", zap.Error(nakErr))
		}
		return
	}

	dlqHeaders := make(map[string]string)
	if msgID != "" {
		dlqHeaders["Original-Nats-Msg-Id"] = msgID
	}

	dlqFullSubject := fmt.Sprintf("%s.%s", c.dlqSubject, workspaceID)
	if publishErr := c.client.Publish(dlqFullSubject, dlqData, dlqHeaders); publishErr != nil {
		log.Error("Failed to publish message to DLQ, NAKing original message without delay",
			zap.Error(publishErr),
			zap.String("dlq_subject", dlqFullSubject),
		)
		observer.IncEventProcessingAction(string(eventType), workspaceID, webhookConsumerType, "nak_dlq_publish_fail", "dlq_publish_fail")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error("Failed to NAK message after DLQ publish error", zap.Error(nakErr))
		}
		return
	}

	log.Info("Message published to DLQ", zap.String("dlq_subject", dlqFullSubject))
	observer.IncEventProcessingAction(string(eventType), workspaceID, webhookConsumerType, "dlq_published_ack_success", errorType)
	if ackErr := msg.Ack(); ackErr != nil {
		log.Error("Failed to ACK message after successful DLQ publish", zap.Error(ackErr))
	}
}
