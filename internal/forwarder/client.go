package forwarder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
)

// Client is the outbound HTTP surface toward the workflow engine.
type Client interface {
	// ForwardEvent delivers an enriched webhook to the engine. Failures are
	// reported but never block ingestion.
	ForwardEvent(ctx context.Context, url string, payload *model.ForwardPayload) error

	// SendMessage performs a synchronous provider send through the engine.
	SendMessage(ctx context.Context, url string, request *model.SendRequest) (*model.SendResponse, error)
}

// EngineClient talks to the workflow engine over HTTP with retries on
// transport failures.
type EngineClient struct {
	http *resty.Client
}

var _ Client = (*EngineClient)(nil)

// NewEngineClient creates an engine client with the given per-request
// timeout and retry count.
func NewEngineClient(timeout time.Duration, retryCount int) *EngineClient {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &EngineClient{http: client}
}

// ForwardEvent posts the enriched payload to the workspace's engine webhook.
func (c *EngineClient) ForwardEvent(ctx context.Context, url string, payload *model.ForwardPayload) error {
	if url == "" {
		return fmt.Errorf("%w: engine webhook URL not configured", apperrors.ErrDependencyMissing)
	}

	startTime := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(url)
	observer.ObserveForwardDuration(payload.WorkspaceID, time.Since(startTime))

	if err != nil {
		observer.IncForwardRequest(payload.WorkspaceID, "error")
		return fmt.Errorf("%w: forward request failed: %w", apperrors.ErrTransport, err)
	}
	if resp.IsError() {
		observer.IncForwardRequest(payload.WorkspaceID, "error")
		return fmt.Errorf("%w: engine returned status %d: %s", apperrors.ErrTransport, resp.StatusCode(), resp.String())
	}

	observer.IncForwardRequest(payload.WorkspaceID, "success")
	logger.FromContext(ctx).Debug("Forwarded event to engine",
		zap.String("workspace_id", payload.WorkspaceID),
		zap.String("event_type", payload.EventType),
		zap.Int("status", resp.StatusCode()))
	return nil
}

// SendMessage posts an outbound send to the engine and decodes its reply.
// A decoded reply with success=false is returned to the caller, not as an
// error; only transport failures and non-2xx statuses are errors.
func (c *EngineClient) SendMessage(ctx context.Context, url string, request *model.SendRequest) (*model.SendResponse, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: engine webhook URL not configured", apperrors.ErrDependencyMissing)
	}

	var result model.SendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&result).
		Post(url)

	if err != nil {
		observer.IncOutboundSend(request.WorkspaceID, "transport_error")
		return nil, fmt.Errorf("%w: send request failed: %w", apperrors.ErrTransport, err)
	}
	if resp.IsError() {
		observer.IncOutboundSend(request.WorkspaceID, "transport_error")
		return nil, fmt.Errorf("%w: engine returned status %d: %s", apperrors.ErrTransport, resp.StatusCode(), resp.String())
	}

	if result.Success {
		observer.IncOutboundSend(request.WorkspaceID, "success")
	} else {
		observer.IncOutboundSend(request.WorkspaceID, "rejected")
	}
	logger.FromContext(ctx).Debug("Engine send completed",
		zap.String("workspace_id", request.WorkspaceID),
		zap.Bool("success", result.Success),
		zap.String("provider_message_id", result.ProviderMessageID()))
	return &result, nil
}
