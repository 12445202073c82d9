package dlqworker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/vantio/api/wa-crm-relay/internal/config"
	"gitlab.com/vantio/api/wa-crm-relay/internal/ingestion"
	internal_js "gitlab.com/vantio/api/wa-crm-relay/internal/jetstream"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/internal/storage"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
)

const (
	defaultMsgChanCap = 100
	fetchBatchSize    = 10
	fetchMaxWait      = 5 * time.Second
	taskTimeout       = 1 * time.Minute
)

// Worker replays webhook events that exhausted their consumer retries. Each
// replay routes the original payload through the same ingestion pipeline; an
// event that keeps failing past the retry budget lands in the
// dead_webhook_events table of its workspace.
type Worker struct {
	cfg    *config.Config
	logger *zap.Logger
	js     internal_js.ClientInterface
	pool   *ants.Pool
	router ingestion.RouterInterface
	repos  storage.RepoProvider
	msgCh  chan *nats.Msg
	stopWg sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker creates the DLQ worker and provisions its stream and durable
// pull consumer.
func NewWorker(cfg *config.Config, log *zap.Logger, jsClient internal_js.ClientInterface, router ingestion.RouterInterface, repos storage.RepoProvider) (*Worker, error) {
	pool, err := ants.NewPool(cfg.NATS.DLQWorkers,
		ants.WithLogger(newAntsLoggerAdapter(log.Named("ants_pool"))),
		ants.WithPanicHandler(func(err interface{}) {
			log.Error("Worker panic caught", zap.Any("error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	setupCtx := context.Background()
	dlqStreamName := cfg.NATS.DLQStream
	dlqSubject := cfg.NATS.DLQSubject + ".>"

	dlqStreamCfg := &nats.StreamConfig{
		Name:      dlqStreamName,
		Subjects:  []string{dlqSubject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(cfg.NATS.DLQMaxAgeDays) * 24 * time.Hour,
	}
	if err := jsClient.SetupStream(setupCtx, dlqStreamCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup DLQ stream '%s': %w", dlqStreamName, err)
	}
	log.Info("DLQ Stream setup complete", zap.String("stream", dlqStreamName))

	dlqConsumerCfg := &nats.ConsumerConfig{
		Durable:       dlqDurableName(cfg.NATS.DLQSubject),
		FilterSubject: dlqSubject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    cfg.NATS.DLQMaxDeliver,
		AckWait:       cfg.NATS.DLQAckWait,
		MaxAckPending: cfg.NATS.DLQMaxAckPending,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}
	if err := jsClient.SetupConsumer(setupCtx, dlqStreamName, dlqConsumerCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup DLQ consumer '%s' for stream '%s': %w", dlqConsumerCfg.Durable, dlqStreamName, err)
	}
	log.Info("DLQ Consumer setup complete", zap.String("consumer", dlqConsumerCfg.Durable))

	worker := &Worker{
		cfg:    cfg,
		logger: log.Named("dlq_worker"),
		js:     jsClient,
		pool:   pool,
		router: router,
		repos:  repos,
		msgCh:  make(chan *nats.Msg, defaultMsgChanCap),
	}

	worker.logger.Info("DLQ Worker initialized", zap.Int("pool_size", cfg.NATS.DLQWorkers))
	return worker, nil
}

// dlqDurableName derives a valid durable name from the DLQ subject.
func dlqDurableName(dlqSubject string) string {
	return strings.ReplaceAll(dlqSubject, ".", "_") + "_worker_consumer"
}

// Start begins the DLQ processing loops (fetcher and dispatcher). Blocks
// until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	derivedCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.logger.Info("Starting DLQ worker...")

	durableName := dlqDurableName(w.cfg.NATS.DLQSubject)
	subSubject := w.cfg.NATS.DLQSubject + ".>"

	sub, err := w.js.SubscribePull(w.cfg.NATS.DLQStream, subSubject, durableName)
	if err != nil {
		w.logger.Error("Failed to create DLQ pull subscription", zap.Error(err))
		cancel()
		return fmt.Errorf("failed to create DLQ pull subscription: %w", err)
	}

	w.stopWg.Add(1)
	go w.fetchMessages(derivedCtx, sub)

	w.stopWg.Add(1)
	go w.dispatchMessages(derivedCtx)

	w.logger.Info("DLQ worker started successfully")

	<-derivedCtx.Done()
	w.logger.Info("DLQ worker context cancelled, initiating shutdown...")
	return nil
}

// Stop gracefully shuts down the DLQ worker.
func (w *Worker) Stop() {
	w.logger.Info("Stopping DLQ worker...")
	if w.cancel != nil {
		w.cancel()
	}

	w.stopWg.Wait()
	close(w.msgCh)
	w.pool.Release()
	w.logger.Info("DLQ worker stopped successfully")
}

// fetchMessages pulls messages from the JetStream subscription and sends them to msgCh.
func (w *Worker) fetchMessages(ctx context.Context, sub *nats.Subscription) {
	defer w.stopWg.Done()
	w.logger.Info("Starting DLQ message fetcher loop...")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Fetcher loop stopping due to context cancellation")
			return
		default:
			observer.IncDlqFetchRequest()
			msgs, err := sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
			if err != nil {
				if err == context.Canceled || err == nats.ErrTimeout || err == nats.ErrConnectionClosed {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				observer.IncDlqFetchError()
				w.logger.Error("Fetcher loop error retrieving messages", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}

			for _, msg := range msgs {
				select {
				case w.msgCh <- msg:
				case <-ctx.Done():
					w.logger.Info("Fetcher loop stopping while sending to channel")
					return
				}
			}
		}
	}
}

// dispatchMessages reads messages from msgCh and submits them to the worker pool.
func (w *Worker) dispatchMessages(ctx context.Context) {
	defer w.stopWg.Done()
	w.logger.Info("Starting DLQ message dispatcher loop...")

	for {
		observer.SetDlqQueueLength(len(w.msgCh))
		observer.SetDlqWorkersActive(w.pool.Running())

		select {
		case <-ctx.Done():
			w.logger.Info("Dispatcher loop stopping due to context cancellation")
			return
		case msg, ok := <-w.msgCh:
			if !ok {
				w.logger.Info("Message channel closed, dispatcher loop stopping")
				return
			}
			currentMsg := msg
			err := w.pool.Submit(func() {
				taskCtx, taskCancel := context.WithTimeout(context.Background(), taskTimeout)
				defer taskCancel()
				w.handleWithRetry(taskCtx, currentMsg)
			})
			if err != nil {
				w.logger.Error("Failed to submit task to ants pool", zap.Error(err))
				if nakErr := currentMsg.NakWithDelay(5 * time.Second); nakErr != nil {
					w.logger.Error("Failed to NAK message after pool submission error", zap.Error(nakErr))
					observer.IncDlqAckFailure(workspaceFromDlqData(currentMsg.Data))
				}
			} else {
				observer.IncDlqTasksSubmitted(workspaceFromDlqData(currentMsg.Data))
			}
		}
	}
}

func workspaceFromDlqData(data []byte) string {
	var payload model.DLQPayload
	_ = json.Unmarshal(data, &payload)
	return payload.WorkspaceID
}

// handleWithRetry replays a single dead-lettered event with backoff logic.
func (w *Worker) handleWithRetry(ctx context.Context, msg *nats.Msg) {
	startTime := time.Now()
	var workspaceID string
	defer func() {
		observer.ObserveDlqProcessingDuration(workspaceID, time.Since(startTime))
	}()

	meta, err := msg.Metadata()
	if err != nil {
		w.logger.Error("Failed to get message metadata", zap.Error(err))
		if ackErr := msg.Term(); ackErr != nil {
			w.logger.Error("Failed to terminate message after metadata error", zap.Error(ackErr))
		}
		observer.IncDlqAckFailure(workspaceID)
		return
	}

	var payload model.DLQPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		w.logger.Error("Failed to unmarshal DLQ payload",
			zap.Error(err),
			zap.Uint64("sequence", meta.Sequence.Stream),
			zap.String("subject", msg.Subject),
		)
		if ackErr := msg.Term(); ackErr != nil {
			w.logger.Error("Failed to terminate message after unmarshal error", zap.Error(ackErr))
		}
		observer.IncDlqAckFailure(workspaceID)
		return
	}
	workspaceID = payload.WorkspaceID

	w.logger.Info("Processing DLQ message",
		zap.String("source_subject", payload.SourceSubject),
		zap.String("workspace_id", workspaceID),
		zap.Uint64("num_delivered", meta.NumDelivered),
		zap.Uint64("payload_retry_count", payload.RetryCount))

	routerMetadata := &model.MessageMetadata{
		MessageSubject:   payload.SourceSubject,
		WorkspaceID:      payload.WorkspaceID,
		StreamSequence:   meta.Sequence.Stream,
		ConsumerSequence: meta.Sequence.Consumer,
		Timestamp:        meta.Timestamp,
		NumDelivered:     meta.NumDelivered,
	}
	handlerCtx := tenant.WithWorkspaceID(ctx, payload.WorkspaceID)
	handlerCtx = logger.WithLogger(handlerCtx, w.logger.With(
		zap.String("original_subject", payload.SourceSubject),
		zap.String("workspace_id", payload.WorkspaceID),
	))

	processingErr := w.router.Route(handlerCtx, routerMetadata, payload.OriginalPayload)

	if processingErr != nil {
		w.logger.Warn("Failed to replay event from DLQ",
			zap.String("source_subject", payload.SourceSubject),
			zap.Uint64("num_delivered", meta.NumDelivered),
			zap.Error(processingErr))

		if int(meta.NumDelivered) >= w.cfg.NATS.DLQMaxDeliver {
			w.persistDeadEvent(handlerCtx, msg, payload, processingErr)
			return
		}

		delay := calculateBackoffDelay(int(meta.NumDelivered), w.cfg.NATS.DLQBaseDelayMinutes, w.cfg.NATS.DLQMaxDelayMinutes)
		w.logger.Info("Retrying DLQ message with backoff",
			zap.String("source_subject", payload.SourceSubject),
			zap.Uint64("attempt", meta.NumDelivered),
			zap.Duration("delay", delay))

		if nakErr := msg.NakWithDelay(delay); nakErr != nil {
			w.logger.Error("Failed to NAK message with delay", zap.Error(nakErr))
			observer.IncDlqAckFailure(payload.WorkspaceID)
		} else {
			observer.IncDlqTaskRetry(payload.WorkspaceID)
		}
		return
	}

	w.logger.Info("Successfully replayed event from DLQ",
		zap.String("source_subject", payload.SourceSubject),
		zap.Uint64("attempt", meta.NumDelivered))
	if ackErr := msg.Ack(); ackErr != nil {
		w.logger.Error("Failed to ACK successfully replayed message", zap.Error(ackErr))
		observer.IncDlqAckFailure(payload.WorkspaceID)
	} else {
		observer.IncDlqAckSuccess(payload.WorkspaceID)
	}
}

// persistDeadEvent records a permanently failed event in the workspace's
// dead_webhook_events table, then terminates the message either way: a
// replay budget this exhausted must not keep cycling through the stream.
func (w *Worker) persistDeadEvent(ctx context.Context, msg *nats.Msg, payload model.DLQPayload, processingErr error) {
	w.logger.Warn("Replay budget exhausted, persisting dead event",
		zap.String("source_subject", payload.SourceSubject),
		zap.Uint64("retry_count", payload.RetryCount))

	deadEvent := model.DeadWebhookEvent{
		WorkspaceID:     payload.WorkspaceID,
		SourceSubject:   payload.SourceSubject,
		LastError:       processingErr.Error(),
		RetryCount:      int(payload.RetryCount),
		EventTimestamp:  payload.Timestamp,
		DLQPayload:      datatypes.JSON(msg.Data),
		OriginalPayload: datatypes.JSON(payload.OriginalPayload),
	}

	repos, err := w.repos.Repos(ctx)
	if err == nil {
		err = repos.DeadEvents.Save(ctx, deadEvent)
	}
	if err != nil {
		w.logger.Error("Failed to save dead event, terminating message anyway",
			zap.Error(err),
			zap.String("source_subject", payload.SourceSubject))
		if termErr := msg.Term(); termErr != nil {
			w.logger.Error("Failed to terminate message after persistence failure", zap.Error(termErr))
		}
		observer.IncDlqAckFailure(payload.WorkspaceID)
		return
	}

	if termErr := msg.Term(); termErr != nil {
		w.logger.Error("Failed to terminate message after max retries", zap.Error(termErr))
	}
	observer.IncDlqTasksDropped(payload.WorkspaceID)
}

// calculateBackoffDelay calculates the delay based on retry count.
func calculateBackoffDelay(retryCount int, baseDelayMinutes, maxDelayMinutes int) time.Duration {
	baseDelay := time.Duration(baseDelayMinutes) * time.Minute
	maxDelay := time.Duration(maxDelayMinutes) * time.Minute

	if retryCount <= 0 {
		return baseDelay
	}

	delay := baseDelay * time.Duration(1<<uint(retryCount-1))

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// --- Ants Logger Adapter ---

type antsLoggerAdapter struct {
	logger *zap.Logger
}

func newAntsLoggerAdapter(logger *zap.Logger) *antsLoggerAdapter {
	return &antsLoggerAdapter{logger: logger}
}

func (a *antsLoggerAdapter) Printf(format string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
