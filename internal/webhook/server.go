package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"go.uber.org/zap"

	"gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/jetstream"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/tenant"
	"gitlab.com/vantio/api/wa-crm-relay/internal/usecase"
	"gitlab.com/vantio/api/wa-crm-relay/internal/validator"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// maxWebhookBodyBytes caps provider webhook bodies. Evolution payloads are a
// few KB; anything near the cap is malformed or hostile.
const maxWebhookBodyBytes = 1 << 20

const workspaceHeader = "X-Workspace-ID"

// GatewayService is the synchronous API surface backed by the relay service.
type GatewayService interface {
	SendMessage(ctx context.Context, conversationID string, request *model.SendMessageRequest) (*model.Message, error)
	QuickConversation(ctx context.Context, request *model.QuickConversationRequest) (*usecase.QuickConversationResult, error)
}

// Server is the public HTTP surface: the provider webhook ingress that
// republishes events onto JetStream, and the synchronous send gateway.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	publisher  jetstream.ClientInterface
	gateway    GatewayService
}

// NewServer creates the webhook HTTP server on the given port.
func NewServer(port int, publisher jetstream.ClientInterface, gateway GatewayService) *Server {
	server := &Server{
		router:    mux.NewRouter(),
		publisher: publisher,
		gateway:   gateway,
	}

	chain := alice.New(requestIDMiddleware, loggingMiddleware, recoveryMiddleware)

	server.router.Handle("/webhooks/evolution/{workspaceID}",
		chain.ThenFunc(server.handleProviderWebhook)).Methods(http.MethodPost)
	server.router.Handle("/v1/conversations/{conversationID}/messages",
		chain.ThenFunc(server.handleSendMessage)).Methods(http.MethodPost)
	server.router.Handle("/v1/conversations",
		chain.ThenFunc(server.handleQuickConversation)).Methods(http.MethodPost)

	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	utils.SafeGo(func() {
		logger.Log.Info("Starting webhook server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Webhook server error", zap.Error(err))
		}
	}, nil)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	logger.Log.Info("Stopping webhook server")
	return s.httpServer.Shutdown(ctx)
}

// handleProviderWebhook validates the provider envelope and republishes the
// raw body onto the stream. The provider retries on non-2xx, so unknown event
// kinds are acknowledged and dropped rather than rejected.
func (s *Server) handleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["workspaceID"]
	ctx := tenant.WithWorkspaceID(r.Context(), workspaceID)
	log := logger.FromContext(ctx).With(zap.String("workspace_id", workspaceID))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, fmt.Errorf("%w: failed to read body: %v", apperrors.ErrBadRequest, err))
		return
	}

	var payload model.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, fmt.Errorf("%w: malformed webhook payload: %v", apperrors.ErrBadRequest, err))
		return
	}
	if err := validator.Validate(&payload); err != nil {
		writeError(w, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	kind := model.NormalizeEventName(payload.Event)
	eventType, ok := model.MapToBaseEventType("v1.webhooks." + kind)
	if !ok {
		log.Info("Ignoring unsupported webhook event", zap.String("event", payload.Event))
		utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	subject := eventType.Subject(workspaceID)
	headers := map[string]string{"Nats-Msg-Id": dedupID(workspaceID, kind, &payload)}
	if err := s.publisher.Publish(subject, body, headers); err != nil {
		log.Error("Failed to publish webhook event", zap.Error(err), zap.String("subject", subject))
		writeError(w, fmt.Errorf("event broker unavailable: %w", err))
		return
	}

	log.Info("Webhook event accepted",
		zap.String("subject", subject),
		zap.String("provider_message_id", payload.Data.Key.ID))
	utils.WriteJSONResponse(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"subject": subject,
	})
}

// dedupID builds the JetStream dedup key. The provider message id is the
// natural idempotency key; a fresh uuid keeps acks without one from colliding.
func dedupID(workspaceID, kind string, payload *model.WebhookPayload) string {
	if payload.Data.Key.ID != "" {
		return workspaceID + "." + kind + "." + payload.Data.Key.ID
	}
	return uuid.NewString()
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx, err := workspaceFromHeader(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var request model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body: %v", apperrors.ErrBadRequest, err))
		return
	}

	message, err := s.gateway.SendMessage(ctx, mux.Vars(r)["conversationID"], &request)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, message)
}

func (s *Server) handleQuickConversation(w http.ResponseWriter, r *http.Request) {
	ctx, err := workspaceFromHeader(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var request model.QuickConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body: %v", apperrors.ErrBadRequest, err))
		return
	}

	result, err := s.gateway.QuickConversation(ctx, &request)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.ConversationCreated {
		status = http.StatusCreated
	}
	utils.WriteJSONResponse(w, status, result)
}

func workspaceFromHeader(r *http.Request) (context.Context, error) {
	workspaceID := r.Header.Get(workspaceHeader)
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: %s header is required", apperrors.ErrBadRequest, workspaceHeader)
	}
	return tenant.WithWorkspaceID(r.Context(), workspaceID), nil
}

// writeError maps the error taxonomy to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsBadRequestError(err), apperrors.IsValidationError(err):
		status = http.StatusBadRequest
	case apperrors.IsNotFoundError(err):
		status = http.StatusNotFound
	case apperrors.IsDependencyMissingError(err):
		status = http.StatusFailedDependency
	case apperrors.IsTransportError(err), apperrors.IsTimeoutError(err):
		status = http.StatusBadGateway
	}
	utils.WriteJSONResponse(w, status, map[string]string{"error": err.Error()})
}

// --- middleware --- //

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := tenant.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := utils.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		logger.FromContext(r.Context()).Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.FromContext(r.Context()).Error("Panic in HTTP handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path))
				utils.WriteJSONResponse(w, http.StatusInternalServerError,
					map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
