package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the activity notifier
type PrometheusMetrics struct {
	// Activity event metrics
	EventsRecordedTotal  *prometheus.CounterVec
	EventsEvaluatedTotal *prometheus.CounterVec

	// Notification metrics
	NotificationsSentTotal      *prometheus.CounterVec
	NotificationFailuresTotal   *prometheus.CounterVec
	NotificationsThrottledTotal prometheus.Counter
	NotificationDuration        *prometheus.HistogramVec

	// Digest metrics
	DigestRunsTotal   *prometheus.CounterVec
	DigestRunDuration *prometheus.HistogramVec
	DigestWindowWidth *prometheus.HistogramVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec
	SettingsVersionConflicts  prometheus.Counter

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	GoroutineCount    prometheus.Gauge
	RulesConfigured   prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		EventsRecordedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_events_recorded_total",
				Help: "Total number of activity events recorded",
			},
			[]string{"action_type", "resource_type"},
		),

		EventsEvaluatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_events_evaluated_total",
				Help: "Total number of rule evaluations by outcome",
			},
			[]string{"outcome"},
		),

		NotificationsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "mode"},
		),

		NotificationFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_notification_failures_total",
				Help: "Total number of failed notification deliveries",
			},
			[]string{"channel", "mode"},
		),

		NotificationsThrottledTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notifier_notifications_throttled_total",
				Help: "Total number of notifications skipped due to throttling",
			},
		),

		NotificationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_notification_duration_seconds",
				Help:    "Time spent delivering individual notifications",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		DigestRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_digest_runs_total",
				Help: "Total number of digest runs by frequency and outcome",
			},
			[]string{"frequency", "outcome"},
		),

		DigestRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_digest_run_duration_seconds",
				Help:    "Time spent executing digest runs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"frequency"},
		),

		DigestWindowWidth: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_digest_window_seconds",
				Help:    "Width of the digest aggregation window",
				Buckets: []float64{3600, 21600, 86400, 259200, 604800, 2592000},
			},
			[]string{"frequency"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_database_operation_duration_seconds",
				Help:    "Time spent on database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		SettingsVersionConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notifier_settings_version_conflicts_total",
				Help: "Total number of optimistic-concurrency conflicts on settings saves",
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_http_request_duration_seconds",
				Help:    "Time spent handling HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notifier_component_health",
				Help: "Component health status (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_goroutines",
				Help: "Number of goroutines",
			},
		),

		RulesConfigured: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_rules_configured",
				Help: "Number of notification rules configured",
			},
		),
	}
}

// RecordEventRecorded increments the events recorded counter
func (m *PrometheusMetrics) RecordEventRecorded(actionType, resourceType string) {
	m.EventsRecordedTotal.WithLabelValues(actionType, resourceType).Inc()
}

// RecordEvaluation increments the evaluation counter with an outcome of
// "match", "no_match" or "disabled"
func (m *PrometheusMetrics) RecordEvaluation(outcome string) {
	m.EventsEvaluatedTotal.WithLabelValues(outcome).Inc()
}

// RecordNotificationSent records a successful notification delivery
func (m *PrometheusMetrics) RecordNotificationSent(channel, mode string, duration time.Duration) {
	m.NotificationsSentTotal.WithLabelValues(channel, mode).Inc()
	m.NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordNotificationFailure records a failed notification delivery
func (m *PrometheusMetrics) RecordNotificationFailure(channel, mode string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, mode).Inc()
}

// RecordNotificationThrottled records a throttled (skipped) notification
func (m *PrometheusMetrics) RecordNotificationThrottled() {
	m.NotificationsThrottledTotal.Inc()
}

// RecordDigestRun records a digest run with an outcome of "sent", "empty"
// or "error"
func (m *PrometheusMetrics) RecordDigestRun(frequency, outcome string, duration time.Duration, window time.Duration) {
	m.DigestRunsTotal.WithLabelValues(frequency, outcome).Inc()
	m.DigestRunDuration.WithLabelValues(frequency).Observe(duration.Seconds())
	if window > 0 {
		m.DigestWindowWidth.WithLabelValues(frequency).Observe(window.Seconds())
	}
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordVersionConflict records a settings save conflict
func (m *PrometheusMetrics) RecordVersionConflict() {
	m.SettingsVersionConflicts.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the uptime gauge
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates a component health gauge
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateGoroutineCount updates the goroutine gauge
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}

// UpdateRulesConfigured updates the configured rules gauge
func (m *PrometheusMetrics) UpdateRulesConfigured(count int) {
	m.RulesConfigured.Set(float64(count))
}
