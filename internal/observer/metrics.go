package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for standard event metrics
	eventProcessingLabels = []string{"event_type", "workspace_id", "consumer_type"}
	// Labels for tracking specific processing actions
	eventActionLabels = []string{"event_type", "workspace_id", "consumer_type", "action", "error_type"}

	// Standard Event Counters
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_crm_relay_events_received_total",
			Help: "Total number of webhook events received from NATS, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_crm_relay_events_processed_total",
			Help: "Total number of events successfully processed and acknowledged, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_crm_relay_events_failed_total",
			Help: "Total number of events that failed processing (resulting in Nack or error), labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_crm_relay_events_skipped_total",
			Help: "Total number of events intentionally skipped (duplicates, group chats, broadcasts).",
		},
		[]string{"workspace_id", "reason"},
	)

	// Histogram for Processing Duration
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_crm_relay_event_processing_duration_seconds",
			Help:    "Histogram of event processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventProcessingLabels,
	)

	// Histogram for Routing Duration
	EventRoutingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_crm_relay_event_routing_duration_seconds",
			Help:    "Histogram of event routing specific durations (time spent in router.Route).",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		eventProcessingLabels,
	)

	// Counter for Specific Actions
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_crm_relay_event_processing_actions_total",
			Help: "Total count of specific actions taken after event processing, labeled by error type.",
		},
		eventActionLabels,
	)

	// Global metrics instance
	Metrics *metricsStore
)

// Metrics related to forwarding and outbound sends
var (
	forwardLabels = []string{"workspace_id", "outcome"}

	forwardRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_crm_relay_forward_requests_total",
			Help: "Total number of forward requests sent to the workflow engine, labeled by outcome.",
		},
		forwardLabels,
	)
	forwardDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_crm_relay_forward_duration_seconds",
			Help:    "Histogram of workflow engine forward request durations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"workspace_id"},
	)
	outboundSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_crm_relay_outbound_sends_total",
			Help: "Total number of outbound send attempts, labeled by final status.",
		},
		[]string{"workspace_id", "status"},
	)
)

// Metrics related to DLQ processing
var (
	dlqFetchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlq_fetch_requests_total",
		Help: "Total number of fetch requests made to the DLQ stream.",
	})
	dlqFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlq_fetch_errors_total",
		Help: "Total number of errors encountered during DLQ fetch requests.",
	})
	dlqQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dlq_queue_length",
		Help: "Current number of messages waiting in the internal DLQ worker channel.",
	})
	dlqWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dlq_workers_active",
		Help: "Current number of active worker goroutines in the DLQ pool.",
	})

	// Labels for tenant-specific DLQ metrics
	dlqTenantLabels = []string{"workspace_id"}

	dlqTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_tasks_submitted_total",
			Help: "Total number of tasks submitted to the DLQ worker pool.",
		},
		dlqTenantLabels,
	)
	dlqProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dlq_processing_duration_seconds",
			Help:    "Histogram of processing durations for DLQ messages.",
			Buckets: prometheus.DefBuckets,
		},
		dlqTenantLabels,
	)
	dlqTaskRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_task_retries_total",
			Help: "Total number of retry attempts (NAKs with delay) for DLQ messages.",
		},
		dlqTenantLabels,
	)
	dlqAcksSuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_acks_success_total",
			Help: "Total number of successful acknowledgements (ACKs) for DLQ messages.",
		},
		dlqTenantLabels,
	)
	dlqAcksFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_acks_failure_total",
			Help: "Total number of failed acknowledgements (NAKs, Term) for DLQ messages (excluding retries).",
		},
		dlqTenantLabels,
	)
	dlqTasksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_tasks_dropped_total",
			Help: "Total number of DLQ messages dropped after exceeding max retries.",
		},
		dlqTenantLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "workspace_id", "status"}

	// Histogram for Database Operation Duration
	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_crm_relay_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// --- Automation Worker Pool Metrics ---
var (
	automationLabels       = []string{"workspace_id"}
	automationStatusLabels = []string{"workspace_id", "status"}

	automationTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_tasks_submitted_total",
			Help: "Total number of automation evaluation tasks submitted to the worker pool.",
		},
		automationLabels,
	)
	automationTasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_tasks_processed_total",
			Help: "Total number of automation tasks processed by the worker pool, labeled by final status.",
		},
		automationStatusLabels,
	)
	automationProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "automation_processing_duration_seconds",
			Help:    "Histogram of processing durations for automation tasks.",
			Buckets: prometheus.DefBuckets,
		},
		automationLabels,
	)
	automationQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "automation_queue_length",
		Help: "Approximate number of tasks waiting in the automation worker pool queue.",
	})
	automationExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_executions_total",
			Help: "Total number of automations that fired their action list.",
		},
		automationLabels,
	)
)

// metricsStore holds references to all Prometheus metrics.
type metricsStore struct{}

// InitMetrics initializes and registers the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	if !enabled {
		return
	}

	metricsEnabled = true

	// Metrics are auto-registered via promauto; the store exists for
	// potential future global setup.
	Metrics = &metricsStore{}
}

// IncEventsReceived increments the events received counter.
func IncEventsReceived(eventType, tenant, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

// IncEventsProcessed increments the events processed counter.
func IncEventsProcessed(eventType, tenant, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

// IncEventsFailed increments the events failed counter.
func IncEventsFailed(eventType, tenant, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

// IncEventsSkipped increments the skipped events counter for a given reason.
func IncEventsSkipped(tenant, reason string) {
	if !metricsEnabled {
		return
	}
	EventsSkippedTotal.WithLabelValues(sanitizeTenant(tenant), reason).Inc()
}

// sanitizeTenant ensures the tenant label is valid or returns a default value.
func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

// --- Forward / Outbound Metric Helpers ---

// IncForwardRequest increments the forward counter for the given outcome.
func IncForwardRequest(workspaceID, outcome string) {
	if Metrics != nil {
		forwardRequestsTotal.WithLabelValues(sanitizeTenant(workspaceID), outcome).Inc()
	}
}

// ObserveForwardDuration records the duration of a workflow engine call.
func ObserveForwardDuration(workspaceID string, duration time.Duration) {
	if Metrics != nil {
		forwardDurationSeconds.WithLabelValues(sanitizeTenant(workspaceID)).Observe(duration.Seconds())
	}
}

// IncOutboundSend increments the outbound send counter by final message status.
func IncOutboundSend(workspaceID, status string) {
	if Metrics != nil {
		outboundSendsTotal.WithLabelValues(sanitizeTenant(workspaceID), status).Inc()
	}
}

// --- DLQ Metric Helpers ---

// IncDlqFetchRequest increments the DLQ fetch request counter.
func IncDlqFetchRequest() {
	if Metrics != nil {
		dlqFetchRequestsTotal.Inc()
	}
}

// IncDlqFetchError increments the DLQ fetch error counter.
func IncDlqFetchError() {
	if Metrics != nil {
		dlqFetchErrorsTotal.Inc()
	}
}

// SetDlqQueueLength sets the current DLQ internal queue length.
func SetDlqQueueLength(length int) {
	if Metrics != nil {
		dlqQueueLength.Set(float64(length))
	}
}

// IncDlqTasksSubmitted increments the counter for tasks submitted to the pool.
func IncDlqTasksSubmitted(workspaceID string) {
	if Metrics != nil {
		dlqTasksSubmittedTotal.WithLabelValues(sanitizeTenant(workspaceID)).Inc()
	}
}

// SetDlqWorkersActive sets the current number of active DLQ workers.
func SetDlqWorkersActive(count int) {
	if Metrics != nil {
		dlqWorkersActive.Set(float64(count))
	}
}

// ObserveDlqProcessingDuration records the processing time for a DLQ message.
func ObserveDlqProcessingDuration(workspaceID string, duration time.Duration) {
	if Metrics != nil {
		dlqProcessingDurationSeconds.WithLabelValues(sanitizeTenant(workspaceID)).Observe(duration.Seconds())
	}
}

// IncDlqTaskRetry increments the counter for DLQ message retry attempts.
func IncDlqTaskRetry(workspaceID string) {
	if Metrics != nil {
		dlqTaskRetriesTotal.WithLabelValues(sanitizeTenant(workspaceID)).Inc()
	}
}

// IncDlqAckSuccess increments the counter for successful DLQ message ACKs.
func IncDlqAckSuccess(workspaceID string) {
	if Metrics != nil {
		dlqAcksSuccessTotal.WithLabelValues(sanitizeTenant(workspaceID)).Inc()
	}
}

// IncDlqAckFailure increments the counter for failed DLQ message ACKs/TERMs (non-retry).
func IncDlqAckFailure(workspaceID string) {
	if Metrics != nil {
		dlqAcksFailureTotal.WithLabelValues(sanitizeTenant(workspaceID)).Inc()
	}
}

// IncDlqTasksDropped increments the counter for DLQ messages dropped after max retries.
func IncDlqTasksDropped(workspaceID string) {
	if Metrics != nil {
		dlqTasksDroppedTotal.WithLabelValues(sanitizeTenant(workspaceID)).Inc()
	}
}

// --- Event Duration / Action Helpers ---

// ObserveEventProcessingDuration records the processing time for a specific event.
func ObserveEventProcessingDuration(eventType, tenant, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Observe(duration.Seconds())
}

// ObserveEventRoutingDuration records the routing time for a specific event.
func ObserveEventRoutingDuration(eventType, tenant, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventRoutingDurationSeconds.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Observe(duration.Seconds())
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, workspaceID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(workspaceID), status).Observe(duration.Seconds())
}

// IncEventProcessingAction increments the counter for a specific processing outcome.
func IncEventProcessingAction(eventType, tenant, consumerType, action, errorType string) {
	if !metricsEnabled {
		return
	}
	sanitizedErrorType := SanitizeErrorType(errorType)
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType, action, sanitizedErrorType).Inc()
}

// SanitizeErrorType maps specific errors or provides a default category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	// If no error (e.g., for success actions), return "none"
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

// Metrics for the load generator (cmd/tester)
var (
	loadgenLabels = []string{"subject", "workspace_id"}

	loadgenMessagesAttemptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_messages_attempted_total",
			Help: "Total number of messages the load generator attempted to publish.",
		},
		loadgenLabels,
	)
	loadgenMessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_messages_published_total",
			Help: "Total number of messages the load generator successfully published.",
		},
		loadgenLabels,
	)
	loadgenPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_publish_errors_total",
			Help: "Total number of load generator publish failures.",
		},
		loadgenLabels,
	)
)

// --- Load Generator Metric Helpers ---

// IncLoadgenMessagesAttempted increments the attempted publish counter.
func IncLoadgenMessagesAttempted(subject, workspaceID string) {
	if Metrics != nil {
		loadgenMessagesAttemptedTotal.WithLabelValues(subject, sanitizeTenant(workspaceID)).Inc()
	}
}

// IncLoadgenMessagesPublished increments the successful publish counter.
func IncLoadgenMessagesPublished(subject, workspaceID string) {
	if Metrics != nil {
		loadgenMessagesPublishedTotal.WithLabelValues(subject, sanitizeTenant(workspaceID)).Inc()
	}
}

// IncLoadgenPublishErrors increments the publish error counter.
func IncLoadgenPublishErrors(subject, workspaceID string) {
	if Metrics != nil {
		loadgenPublishErrorsTotal.WithLabelValues(subject, sanitizeTenant(workspaceID)).Inc()
	}
}

// --- Automation Metric Helpers ---

// IncAutomationTasksSubmitted increments the counter for submitted automation tasks.
func IncAutomationTasksSubmitted(workspaceID string) {
	if Metrics != nil {
		automationTasksSubmittedTotal.WithLabelValues(sanitizeTenant(workspaceID)).Inc()
	}
}

// IncAutomationTasksProcessed increments the counter for processed automation tasks by status.
func IncAutomationTasksProcessed(workspaceID, status string) {
	if Metrics != nil {
		automationTasksProcessedTotal.WithLabelValues(sanitizeTenant(workspaceID), status).Inc()
	}
}

// ObserveAutomationProcessingDuration records the processing time for an automation task.
func ObserveAutomationProcessingDuration(workspaceID string, duration time.Duration) {
	if Metrics != nil {
		automationProcessingDurationSeconds.WithLabelValues(sanitizeTenant(workspaceID)).Observe(duration.Seconds())
	}
}

// SetAutomationQueueLength sets the current automation queue length.
func SetAutomationQueueLength(length int) {
	if Metrics != nil {
		automationQueueLength.Set(float64(length))
	}
}

// IncAutomationExecutions increments the counter for fired automations.
func IncAutomationExecutions(workspaceID string) {
	if Metrics != nil {
		automationExecutionsTotal.WithLabelValues(sanitizeTenant(workspaceID)).Inc()
	}
}
