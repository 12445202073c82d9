package usecase

import (
	"context"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/storage"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// distributeConversation assigns a newly created conversation to a queue
// member according to the queue's distribution strategy. It runs once per
// conversation and is strictly best-effort: every failure is logged and
// swallowed so it can never fail the ingestion path.
func (s *RelayService) distributeConversation(ctx context.Context, repos *storage.RepoSet, conversation *model.Conversation, queueID string) {
	defer utils.RecoverWithLog(ctx, "queue distribution")
	log := logger.FromContext(ctx).With(
		zap.String("conversation_id", conversation.ID),
		zap.String("queue_id", queueID),
	)

	queue, err := repos.Queues.FindByID(ctx, queueID)
	if err != nil {
		log.Warn("Queue lookup failed, skipping distribution", zap.Error(err))
		return
	}

	if queue.DistributionType == model.DistributionNone {
		log.Debug("Queue does not distribute, leaving conversation unassigned")
		return
	}

	members, err := repos.Queues.ActiveMembers(ctx, queueID)
	if err != nil {
		log.Warn("Queue member lookup failed, skipping distribution", zap.Error(err))
		return
	}
	if len(members) == 0 {
		log.Warn("Queue has no active members, skipping distribution")
		return
	}

	var index int
	switch queue.DistributionType {
	case model.DistributionSequential:
		index, err = repos.Queues.AdvanceSequentialIndex(ctx, queueID, len(members))
		if err != nil {
			log.Warn("Failed to advance sequential cursor, skipping distribution", zap.Error(err))
			return
		}
	case model.DistributionRandom:
		index = rand.Intn(len(members))
	case model.DistributionOrdered:
		index = 0
	default:
		log.Warn("Unknown distribution type, skipping distribution",
			zap.String("distribution_type", queue.DistributionType))
		return
	}

	assignee := members[index]
	now := utils.Now()
	conversation.AssignedUserID = assignee.UserID
	conversation.AssignedAt = &now
	conversation.QueueID = queueID
	conversation.Status = model.ConversationStatusOpen
	conversation.AgentActive = queue.AIAgentID != ""

	audit := model.ConversationAssignment{
		ID:             uuid.NewString(),
		WorkspaceID:    conversation.WorkspaceID,
		ConversationID: conversation.ID,
		ToUserID:       assignee.UserID,
		ToQueueID:      queueID,
		Action:         model.AssignmentActionAssign,
		ChangedBy:      "system",
	}

	if err := repos.Conversations.Assign(ctx, *conversation, audit); err != nil {
		log.Warn("Failed to persist conversation assignment", zap.Error(err))
		return
	}

	log.Info("Conversation assigned",
		zap.String("assigned_user_id", assignee.UserID),
		zap.String("distribution_type", queue.DistributionType),
		zap.Int("member_index", index))
}
