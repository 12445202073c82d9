package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/vantio/api/wa-crm-relay/internal/cache"
	"gitlab.com/vantio/api/wa-crm-relay/internal/config"
	"gitlab.com/vantio/api/wa-crm-relay/internal/dlqworker"
	"gitlab.com/vantio/api/wa-crm-relay/internal/forwarder"
	"gitlab.com/vantio/api/wa-crm-relay/internal/healthcheck"
	"gitlab.com/vantio/api/wa-crm-relay/internal/ingestion"
	"gitlab.com/vantio/api/wa-crm-relay/internal/ingestion/handler"
	"gitlab.com/vantio/api/wa-crm-relay/internal/jetstream"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/internal/observer"
	"gitlab.com/vantio/api/wa-crm-relay/internal/storage"
	"gitlab.com/vantio/api/wa-crm-relay/internal/usecase"
	"gitlab.com/vantio/api/wa-crm-relay/internal/webhook"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/logger"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting WA CRM Relay",
		zap.String("environment", cfg.Environment),
		zap.String("nats_url", cfg.NATS.URL),
		zap.Int("server_port", cfg.Server.Port),
	)

	// Per-workspace repository manager; workspaces connect lazily on first event.
	if cfg.Database.PostgresDSN == "" {
		logger.Log.Fatal("Postgres DSN is required")
	}
	repoManager := storage.NewManager(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)

	jsClient, err := initJetStreamClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	// Workflow engine forwarder and lookup caches
	engineClient := forwarder.NewEngineClient(cfg.Engine.Timeout, cfg.Engine.RetryCount)
	settingsCache := cache.NewSettingsCache(cfg.Cache.SettingsTTL, cfg.Cache.CleanupInterval)
	connectionCache := cache.NewConnectionCache(cfg.Cache.SettingsTTL, cfg.Cache.CleanupInterval)

	// Relay service and the automation pool. The engine needs the service for
	// outbound sends, so the trigger is attached after construction.
	service := usecase.NewRelayService(repoManager, engineClient, settingsCache, connectionCache)
	automationEngine, err := usecase.NewAutomationEngine(service, cfg.WorkerPools.Automation)
	if err != nil {
		logger.Log.Fatal("Failed to initialize automation worker pool", zap.Error(err))
	}
	service.AttachAutomation(automationEngine)

	// Event routing: both webhook kinds go through the same handler, which
	// dispatches on the resolved event type.
	webhookHandler := handler.NewWebhookHandler(service)
	router := ingestion.NewRouter()
	router.Register(model.V1MessagesUpsert, webhookHandler.HandleEvent)
	router.Register(model.V1MessagesUpdate, webhookHandler.HandleEvent)

	consumer := ingestion.NewWebhookConsumer(jsClient, router, cfg.NATS.Webhook, cfg.NATS.DLQSubject)
	if err := consumer.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up webhook consumer", zap.Error(err))
	}

	dlqWorker, err := dlqworker.NewWorker(cfg, logger.Log, jsClient, router, repoManager)
	if err != nil {
		logger.Log.Fatal("Failed to initialize DLQ Worker", zap.Error(err))
	}

	// Public HTTP surface: provider webhook ingress + send gateway.
	webhookServer := webhook.NewServer(cfg.Server.Port, jsClient, service)

	// Health, readiness and metrics on the ops port.
	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Metrics.Port), logger.Log)
	healthServer.RegisterReadinessCheck("database", repoManager.Ping)
	healthServer.RegisterReadinessCheck("nats", func(ctx context.Context) error {
		if status := jsClient.NatsConn().Status(); status != nats.CONNECTED {
			return fmt.Errorf("nats connection status: %s", status)
		}
		return nil
	})
	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Metrics.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled", zap.String("environment", cfg.Environment))
	}
	healthServer.Start()

	if err := consumer.Start(); err != nil {
		logger.Log.Fatal("Failed to start webhook consumer", zap.Error(err))
	}
	webhookServer.Start()

	// Start DLQ worker in a separate goroutine
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()
	sigChan := make(chan os.Signal, 1)
	go func() {
		if err := dlqWorker.Start(mainCtx); err != nil {
			logger.Log.Error("DLQ Worker failed to start or encountered an error, initiating shutdown...", zap.Error(err))
			mainCancel()
			select {
			case sigChan <- syscall.SIGTERM:
			default:
				logger.Log.Warn("Could not send SIGTERM to signal channel immediately")
			}
		}
	}()

	// Wait for termination signal
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(6)

	// Stop accepting new webhooks first so in-flight events can drain.
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping webhook server")
		start := time.Now()
		if err := webhookServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping webhook server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Webhook server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, shutdownPanicHandler(&wg, "webhook server"))

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping webhook consumer")
		start := time.Now()
		consumer.Stop()
		logger.Log.Info("[shutdown] Webhook consumer stopped", zap.Duration("duration", time.Since(start)))
	}, shutdownPanicHandler(&wg, "webhook consumer"))

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping DLQ worker")
		start := time.Now()
		dlqWorker.Stop()
		logger.Log.Info("[shutdown] DLQ worker stopped", zap.Duration("duration", time.Since(start)))
	}, shutdownPanicHandler(&wg, "DLQ worker"))

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping automation worker pool")
		start := time.Now()
		automationEngine.Stop()
		logger.Log.Info("[shutdown] Automation worker pool stopped", zap.Duration("duration", time.Since(start)))
	}, shutdownPanicHandler(&wg, "automation worker pool"))

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping health check server")
		start := time.Now()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Health check server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, shutdownPanicHandler(&wg, "health check server"))

	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing workspace database connections")
		pgStart := time.Now()
		repoManager.CloseAll(shutdownCtx)
		logger.Log.Info("[shutdown] Workspace database connections closed",
			zap.Duration("duration", time.Since(pgStart)))

		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsStart := time.Now()
		jsClient.Close()
		logger.Log.Info("[shutdown] JetStream connection closed",
			zap.Duration("duration", time.Since(jsStart)))
	}, shutdownPanicHandler(&wg, "database connections"))

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("WA CRM Relay shutdown complete")
}

func shutdownPanicHandler(wg *sync.WaitGroup, component string) utils.RecoverFn {
	return func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping "+component,
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	}
}

// initJetStreamClient initializes the JetStream client
func initJetStreamClient(url string) (*jetstream.Client, error) {
	client, err := jetstream.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream client: %w", err)
	}
	return client, nil
}
