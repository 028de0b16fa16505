package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpulse_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderpulse_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpulse_mailbox_polls_total",
			Help: "Mailbox poll attempts by tenant and outcome",
		},
		[]string{"tenant_id", "outcome"},
	)

	messagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpulse_messages_ingested_total",
			Help: "Ingested messages by tenant and final status",
		},
		[]string{"tenant_id", "status"},
	)

	duplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderpulse_messages_duplicates_total",
			Help: "Messages skipped because their id was already ingested",
		},
	)

	notificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpulse_notifications_dispatched_total",
			Help: "Notification jobs created by tenant and channel",
		},
		[]string{"tenant_id", "channel"},
	)

	notificationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpulse_notifications_processed_total",
			Help: "Notification send outcomes by status and channel",
		},
		[]string{"status", "channel"},
	)

	notificationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderpulse_notification_latency_seconds",
			Help:    "Time from record creation to delivery",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"channel"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderpulse_notification_queue_depth",
			Help: "Jobs currently waiting in the dispatch queue",
		},
	)

	queueRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderpulse_notification_queue_rejections_total",
			Help: "Enqueue attempts rejected because the queue was full",
		},
	)

	fallbacksIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpulse_notification_fallbacks_total",
			Help: "Chat-to-SMS fallback jobs created by tenant",
		},
		[]string{"tenant_id"},
	)

	adminAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpulse_admin_alerts_total",
			Help: "Operator alerts emitted by kind",
		},
		[]string{"kind"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpulse_rate_limit_rejections_total",
			Help: "API requests rejected by rate limiter",
		},
		[]string{"tenant_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPoll records a mailbox poll outcome ("ok", "error", "escalated").
func RecordPoll(tenantID, outcome string) {
	pollsTotal.WithLabelValues(tenantID, outcome).Inc()
}

// RecordMessageIngested records a message reaching a pipeline status.
func RecordMessageIngested(tenantID, status string) {
	messagesIngested.WithLabelValues(tenantID, status).Inc()
}

// RecordDuplicateSkipped records an idempotent no-op ingest.
func RecordDuplicateSkipped() {
	duplicatesSkipped.Inc()
}

// RecordNotificationDispatched records a notification job creation.
func RecordNotificationDispatched(tenantID, channel string) {
	notificationsDispatched.WithLabelValues(tenantID, channel).Inc()
}

// RecordNotificationProcessed records a notification send outcome.
func RecordNotificationProcessed(status, channel string) {
	notificationsProcessed.WithLabelValues(status, channel).Inc()
}

// RecordNotificationLatency records end-to-end notification delivery time.
func RecordNotificationLatency(channel string, latency time.Duration) {
	notificationLatency.WithLabelValues(channel).Observe(latency.Seconds())
}

// SetQueueDepth sets the current dispatch queue depth.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// RecordQueueRejection records a full-queue enqueue rejection.
func RecordQueueRejection() {
	queueRejections.Inc()
}

// RecordFallbackIssued records a chat-to-SMS fallback.
func RecordFallbackIssued(tenantID string) {
	fallbacksIssued.WithLabelValues(tenantID).Inc()
}

// RecordAdminAlert records an operator alert by kind.
func RecordAdminAlert(kind string) {
	adminAlerts.WithLabelValues(kind).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(tenantID string) {
	rateLimitRejections.WithLabelValues(tenantID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
