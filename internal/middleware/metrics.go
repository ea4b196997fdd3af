package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"chat_type"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_messages_processed_total",
		Help: "Total number of messages processed by outcome",
	}, []string{"outcome"})

	// Command metrics
	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	// Completion metrics
	aiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telegram_bot_ai_request_duration_seconds",
		Help:    "Duration of completion attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})

	aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_ai_requests_total",
		Help: "Total number of completion attempts",
	}, []string{"model", "status"})

	// Subscription cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telegram_bot_subscription_cache_hits_total",
		Help: "Total number of subscription cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telegram_bot_subscription_cache_misses_total",
		Help: "Total number of subscription cache misses",
	})

	subscriptionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telegram_bot_subscription_check_failures_total",
		Help: "Total number of failed live subscription checks",
	})

	// Gating metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telegram_bot_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	busyDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telegram_bot_busy_dropped_total",
		Help: "Total number of messages dropped while the user had a request in flight",
	})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_bot_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telegram_bot_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Active users gauge
	activeUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telegram_bot_active_users",
		Help: "Number of users with requests in the current rate window",
	})

	inFlightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telegram_bot_in_flight_requests",
		Help: "Number of users with a completion in flight",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(chatType string) {
	messagesReceived.WithLabelValues(chatType).Inc()
}

// RecordMessageProcessed records the pipeline outcome of a message
func (m *Metrics) RecordMessageProcessed(outcome string) {
	messagesProcessed.WithLabelValues(outcome).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordAIRequest records a single completion attempt
func (m *Metrics) RecordAIRequest(model, status string, duration time.Duration) {
	aiRequestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	aiRequestsTotal.WithLabelValues(model, status).Inc()
}

// RecordCacheHit records a subscription cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a subscription cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordSubscriptionFailure records a failed live membership lookup
func (m *Metrics) RecordSubscriptionFailure() {
	subscriptionFailures.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// RecordBusyDropped records a message dropped by the busy guard
func (m *Metrics) RecordBusyDropped() {
	busyDropped.Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetActiveUsers sets the number of active users
func (m *Metrics) SetActiveUsers(count float64) {
	activeUsers.Set(count)
}

// SetInFlight sets the number of in-flight completions
func (m *Metrics) SetInFlight(count float64) {
	inFlightRequests.Set(count)
}

// NewMetricsRouter builds the metrics and health routes.
func NewMetricsRouter(path string) *mux.Router {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler()).Methods(http.MethodGet)

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      NewMetricsRouter(path),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
