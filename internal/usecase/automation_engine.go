package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/config"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/internal/storage"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// AutomationEngine evaluates column automations on a detached worker pool.
// Evaluation is triggered per inbound message and scoped to the contact's
// open pipeline cards. The execution guard row is claimed before any action
// runs, so an automation fires at most once per (card, column, automation).
type AutomationEngine struct {
	svc  *RelayService
	pool *ants.PoolWithFunc
}

var _ AutomationTrigger = (*AutomationEngine)(nil)

// NewAutomationEngine creates the engine and its worker pool.
func NewAutomationEngine(svc *RelayService, cfg config.AutomationWorkerPoolConfig) (*AutomationEngine, error) {
	engine := &AutomationEngine{svc: svc}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, engine.evaluate,
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithNonblocking(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create automation worker pool: %w", err)
	}
	engine.pool = pool
	return engine, nil
}

// Enqueue submits an evaluation job. Pool saturation drops the job with a
// logged warning; the next inbound message re-triggers evaluation.
func (e *AutomationEngine) Enqueue(job AutomationJob) {
	observer.IncAutomationTasksSubmitted(job.WorkspaceID)
	observer.SetAutomationQueueLength(e.pool.Waiting())

	if err := e.pool.Invoke(job); err != nil {
		logger.Log.Warn("Failed to submit automation job",
			zap.Error(err),
			zap.String("workspace_id", job.WorkspaceID),
			zap.String("conversation_id", job.ConversationID))
		observer.IncAutomationTasksProcessed(job.WorkspaceID, "dropped")
	}
}

// Stop releases the worker pool.
func (e *AutomationEngine) Stop() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// evaluate runs one job on the pool. The context is rebuilt from the job:
// evaluation outlives the ingest request that triggered it.
func (e *AutomationEngine) evaluate(payload interface{}) {
	job, ok := payload.(AutomationJob)
	if !ok {
		logger.Log.Error("Automation pool received unexpected payload type")
		return
	}

	startTime := utils.Now()
	status := "success"
	defer func() {
		observer.ObserveAutomationProcessingDuration(job.WorkspaceID, time.Since(startTime))
		observer.IncAutomationTasksProcessed(job.WorkspaceID, status)
	}()

	ctx := tenant.WithWorkspaceID(context.Background(), job.WorkspaceID)
	ctx = logger.WithLogger(ctx, logger.Log.With(
		zap.String("workspace_id", job.WorkspaceID),
		zap.String("contact_id", job.ContactID),
		zap.String("conversation_id", job.ConversationID),
	))
	log := logger.FromContext(ctx)
	defer utils.RecoverWithLog(ctx, "automation evaluation")

	repos, err := e.svc.repos.Repos(ctx)
	if err != nil {
		log.Error("Failed to resolve repositories for automation run", zap.Error(err))
		status = "error"
		return
	}

	cards, err := repos.Pipelines.FindOpenCardsByContact(ctx, job.ContactID)
	if err != nil {
		log.Error("Failed to load open cards", zap.Error(err))
		status = "error"
		return
	}
	if len(cards) == 0 {
		return
	}

	iter.ForEach(cards, func(card *model.PipelineCard) {
		e.evaluateCard(ctx, repos, job, card)
	})
}

// evaluateCard checks every active automation bound to the card's current
// column against the inbound-message threshold.
func (e *AutomationEngine) evaluateCard(ctx context.Context, repos *storage.RepoSet, job AutomationJob, card *model.PipelineCard) {
	log := logger.FromContext(ctx).With(
		zap.String("card_id", card.ID),
		zap.String("column_id", card.ColumnID),
	)

	automations, err := repos.Automations.FindActiveByColumn(ctx, card.ColumnID)
	if err != nil {
		log.Error("Failed to load column automations", zap.Error(err))
		return
	}

	for i := range automations {
		automation := &automations[i]
		if automation.TriggerType != model.TriggerMessageReceived {
			continue
		}
		e.evaluateAutomation(ctx, repos, job, card, automation, log)
	}
}

func (e *AutomationEngine) evaluateAutomation(ctx context.Context, repos *storage.RepoSet, job AutomationJob, card *model.PipelineCard, automation *model.Automation, log *zap.Logger) {
	log = log.With(zap.String("automation_id", automation.ID))

	// Column entry date from move history; card creation is the fallback
	// for cards that never moved.
	entryAt, err := repos.Pipelines.ColumnEntryAt(ctx, card.ID, card.ColumnID)
	if err != nil {
		log.Error("Failed to resolve column entry date", zap.Error(err))
		return
	}
	since := card.CreatedAt
	if entryAt != nil {
		since = *entryAt
	}

	count, err := repos.Messages.CountInboundSince(ctx, job.ConversationID, since)
	if err != nil {
		log.Error("Failed to count inbound messages", zap.Error(err))
		return
	}

	threshold := automation.MessageThreshold
	if threshold <= 0 {
		threshold = 1
	}
	if count < int64(threshold) {
		log.Debug("Threshold not reached",
			zap.Int64("count", count),
			zap.Int("threshold", threshold))
		return
	}

	// Claim the guard before running anything. Losing the claim means
	// another evaluation already fired this automation.
	execution := model.AutomationExecution{
		ID:           uuid.NewString(),
		WorkspaceID:  job.WorkspaceID,
		CardID:       card.ID,
		ColumnID:     card.ColumnID,
		AutomationID: automation.ID,
		TriggerType:  automation.TriggerType,
	}
	if err := repos.Automations.ClaimExecution(ctx, execution); err != nil {
		if apperrors.IsDuplicateError(err) {
			log.Debug("Automation already fired for this card and column")
			return
		}
		log.Error("Failed to claim automation execution", zap.Error(err))
		return
	}

	observer.IncAutomationExecutions(job.WorkspaceID)
	log.Info("Automation fired",
		zap.Int64("inbound_count", count),
		zap.Int("threshold", threshold))

	var actions []model.AutomationAction
	if len(automation.Actions) > 0 {
		if err := json.Unmarshal(automation.Actions, &actions); err != nil {
			log.Error("Failed to decode automation actions", zap.Error(err))
			return
		}
	}

	for i := range actions {
		// Per-action isolation: a failed action is logged and the rest of
		// the list still runs.
		if err := e.executeAction(ctx, repos, job, card, automation, &actions[i]); err != nil {
			log.Error("Automation action failed",
				zap.Error(err),
				zap.Int("action_index", i),
				zap.String("action_type", actions[i].Type))
		}
	}
}

func (e *AutomationEngine) executeAction(ctx context.Context, repos *storage.RepoSet, job AutomationJob, card *model.PipelineCard, automation *model.Automation, action *model.AutomationAction) error {
	switch action.Type {
	case model.ActionSendMessage:
		return e.sendAutomationMessage(ctx, repos, job, model.MessageTypeText, action.Content, "")

	case model.ActionSendFunnel:
		return e.sendFunnel(ctx, repos, job, action.FunnelID)

	case model.ActionChangeColumn:
		if action.ColumnID == "" {
			return fmt.Errorf("%w: change_column action without target column", apperrors.ErrBadRequest)
		}
		return repos.Pipelines.MoveCard(ctx, card.ID, card.ColumnID, action.ColumnID, "automation:"+automation.ID)

	case model.ActionAddTag:
		tag := model.ContactTag{
			ID:          uuid.NewString(),
			WorkspaceID: job.WorkspaceID,
			ContactID:   job.ContactID,
			Tag:         action.Tag,
		}
		if err := repos.Contacts.AddTag(ctx, tag); err != nil {
			if apperrors.IsDuplicateError(err) {
				// Tag already present counts as success.
				return nil
			}
			return err
		}
		return nil

	case model.ActionAddAgent:
		return repos.Conversations.SetAgentActive(ctx, job.ConversationID, true)

	case model.ActionRemoveAgent:
		return repos.Conversations.SetAgentActive(ctx, job.ConversationID, false)

	default:
		return fmt.Errorf("%w: unknown automation action type %q", apperrors.ErrBadRequest, action.Type)
	}
}

// sendAutomationMessage sends a text (or funnel step) through the regular
// outbound dispatch path with a generated idempotency token.
func (e *AutomationEngine) sendAutomationMessage(ctx context.Context, repos *storage.RepoSet, job AutomationJob, messageType, content, fileURL string) error {
	conversation, err := repos.Conversations.FindByID(ctx, job.ConversationID)
	if err != nil {
		return err
	}
	contact, err := repos.Contacts.FindByID(ctx, job.ContactID)
	if err != nil {
		return err
	}
	if conversation.ConnectionID == "" {
		return fmt.Errorf("%w: conversation has no provider connection", apperrors.ErrDependencyMissing)
	}
	connection, err := repos.Connections.FindByID(ctx, conversation.ConnectionID)
	if err != nil {
		return err
	}
	if connection.BaseURL == "" || connection.APIKey == "" {
		return fmt.Errorf("%w: connection provider credentials not configured", apperrors.ErrDependencyMissing)
	}
	settings, err := e.svc.workspaceSettings(ctx, repos)
	if err != nil {
		return err
	}
	if settings.EngineWebhookURL == "" {
		return fmt.Errorf("%w: engine webhook URL not configured", apperrors.ErrDependencyMissing)
	}

	if messageType == "" {
		messageType = model.MessageTypeText
		if fileURL != "" {
			messageType = model.MessageTypeFile
		}
	}

	_, err = e.svc.dispatchOutbound(ctx, repos, conversation, contact, connection, settings, outboundMessage{
		Content:         content,
		MessageType:     messageType,
		FileURL:         fileURL,
		ClientMessageID: uuid.NewString(),
	})
	return err
}

// sendFunnel sends the funnel's ordered steps, honoring each step's delay
// before sending the next step, never before the first.
func (e *AutomationEngine) sendFunnel(ctx context.Context, repos *storage.RepoSet, job AutomationJob, funnelID string) error {
	if funnelID == "" {
		return fmt.Errorf("%w: send_funnel action without funnel id", apperrors.ErrBadRequest)
	}

	steps, err := repos.Automations.FindFunnelSteps(ctx, funnelID)
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx).With(zap.String("funnel_id", funnelID))
	for i := range steps {
		if i > 0 && steps[i-1].DelaySeconds > 0 {
			time.Sleep(time.Duration(steps[i-1].DelaySeconds) * time.Second)
		}
		if err := e.sendAutomationMessage(ctx, repos, job, steps[i].MessageType, steps[i].Content, steps[i].FileURL); err != nil {
			log.Error("Funnel step send failed",
				zap.Error(err),
				zap.Int("step_order", steps[i].StepOrder))
		}
	}
	return nil
}
