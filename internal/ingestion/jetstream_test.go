package ingestion

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/config"
	clientmock "gitlab.com/vantio/api/wa-crm-relay/internal/jetstream/mock"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
)

func setupConsumerTest(t *testing.T) (*clientmock.ClientMock, *Router) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	return new(clientmock.ClientMock), NewRouter()
}

func webhookConsumerConfig() config.ConsumerNatsConfig {
	return config.ConsumerNatsConfig{
		Stream:       "webhook_stream",
		Consumer:     "webhook_consumer",
		QueueGroup:   "webhook_group",
		SubjectList:  []string{"v1.webhooks.>"},
		MaxAge:       1,
		MaxDeliver:   5,
		NakBaseDelay: time.Second,
		NakMaxDelay:  30 * time.Second,
	}
}

func TestWebhookConsumer_Setup(t *testing.T) {
	mockClient, router := setupConsumerTest(t)
	cfg := webhookConsumerConfig()

	consumer := NewWebhookConsumer(mockClient, router, cfg, "v1.dlq")

	mockClient.On("SetupStream", mock.Anything, mock.MatchedBy(func(sc *nats.StreamConfig) bool {
		return sc.Name == cfg.Stream &&
			assert.ElementsMatch(t, cfg.SubjectList, sc.Subjects) &&
			sc.Storage == nats.FileStorage &&
			sc.Retention == nats.LimitsPolicy &&
			sc.MaxAge == 24*time.Hour
	})).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, cfg.Stream, mock.MatchedBy(func(cc *nats.ConsumerConfig) bool {
		return cc.Durable == cfg.Consumer &&
			cc.DeliverGroup == cfg.QueueGroup &&
			assert.ElementsMatch(t, cfg.SubjectList, cc.FilterSubjects) &&
			cc.AckPolicy == nats.AckExplicitPolicy &&
			cc.MaxDeliver == cfg.MaxDeliver &&
			cc.DeliverPolicy == nats.DeliverAllPolicy
	})).Return(nil)

	err := consumer.Setup()

	assert.NoError(t, err)
	assert.Equal(t, "v1.webhooks.>", consumer.filterSubject)
	mockClient.AssertExpectations(t)
}

func TestWebhookConsumer_Setup_StreamError(t *testing.T) {
	mockClient, router := setupConsumerTest(t)
	cfg := webhookConsumerConfig()

	consumer := NewWebhookConsumer(mockClient, router, cfg, "v1.dlq")

	mockClient.On("SetupStream", mock.Anything, mock.Anything).Return(errors.New("stream boom"))

	err := consumer.Setup()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to setup webhook stream")
	mockClient.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookConsumer_Start(t *testing.T) {
	mockClient, router := setupConsumerTest(t)
	cfg := webhookConsumerConfig()

	consumer := NewWebhookConsumer(mockClient, router, cfg, "v1.dlq")
	consumer.filterSubject = "v1.webhooks.>"

	mockClient.On("SubscribePush", "v1.webhooks.>", cfg.Consumer, cfg.QueueGroup, cfg.Stream, mock.Anything).
		Return(&nats.Subscription{}, nil)

	err := consumer.Start()

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestWorkspaceFromSubject(t *testing.T) {
	testCases := []struct {
		name     string
		subject  string
		expected string
	}{
		{"upsert subject", "v1.webhooks.messages.upsert.ws-1", "ws-1"},
		{"update subject", "v1.webhooks.messages.update.tenant-abc", "tenant-abc"},
		{"bare event type without workspace", "v1.webhooks.messages.upsert", ""},
		{"unknown base", "v1.other.things.ws-1", ""},
		{"no dots", "plain", ""},
		{"trailing dot", "v1.webhooks.messages.upsert.", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, workspaceFromSubject(tc.subject))
		})
	}
}

func TestDetermineAckNakAction(t *testing.T) {
	baseDelay := time.Second
	maxDelay := 5 * time.Second
	maxDeliver := 5

	testCases := []struct {
		name          string
		err           error
		numDelivered  uint64
		expectedAct   AckNakAction
		expectedDelay time.Duration
	}{
		{"success acks", nil, 1, ActionAck, 0},
		{"retryable first attempt", apperrors.NewRetryable(errors.New("db down"), "db down"), 1, ActionNakDelay, time.Second},
		{"retryable second attempt doubles", apperrors.NewRetryable(errors.New("db down"), "db down"), 2, ActionNakDelay, 2 * time.Second},
		{"retryable third attempt", apperrors.NewRetryable(errors.New("db down"), "db down"), 3, ActionNakDelay, 4 * time.Second},
		{"retryable delay capped", apperrors.NewRetryable(errors.New("db down"), "db down"), 4, ActionNakDelay, 5 * time.Second},
		{"retryable at max deliver goes to dlq", apperrors.NewRetryable(errors.New("db down"), "db down"), 5, ActionDLQ, 0},
		{"fatal error goes to dlq immediately", apperrors.NewFatal(errors.New("bad json"), "bad json"), 1, ActionDLQ, 0},
		{"unwrapped error treated as fatal", errors.New("who knows"), 1, ActionDLQ, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			metadata := &nats.MsgMetadata{NumDelivered: tc.numDelivered}
			action, delay := determineAckNakAction(tc.err, metadata, maxDeliver, baseDelay, maxDelay)
			assert.Equal(t, tc.expectedAct, action)
			assert.Equal(t, tc.expectedDelay, delay)
		})
	}
}
