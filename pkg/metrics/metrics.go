package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txconsole_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "txconsole_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

// Ledger source metrics
var (
	AdapterCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "txconsole_source_call_duration_seconds",
			Help:    "Latency of ledger adapter calls",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source", "op"},
	)

	AdapterCallErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txconsole_source_call_errors_total",
			Help: "Failed ledger adapter calls",
		},
		[]string{"source", "op"},
	)

	DegradedSources = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txconsole_degraded_sources_total",
			Help: "Ledger sources excluded from a merged result",
		},
		[]string{"source", "mode"},
	)

	MergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "txconsole_merge_duration_seconds",
			Help:    "Time to assemble one merged page",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Moderation metrics
var (
	ModerationActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txconsole_moderation_actions_total",
			Help: "Moderation actions by action, source and outcome",
		},
		[]string{"action", "source", "outcome"},
	)

	NotificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txconsole_notifications_total",
			Help: "Notification dispatch outcomes",
		},
		[]string{"event", "outcome"},
	)

	AuditEventsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txconsole_audit_events_total",
			Help: "Audit events by outcome",
		},
		[]string{"outcome"},
	)
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "txconsole_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "txconsole_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
	prometheus.MustRegister(AdapterCallDuration, AdapterCallErrors, DegradedSources, MergeDuration)
	prometheus.MustRegister(ModerationActions, NotificationsDispatched, AuditEventsWritten)
	prometheus.MustRegister(DBOpenConns, DBInUseConns)
}

// ObserveAdapterCall records one adapter round trip.
func ObserveAdapterCall(source, op string, took time.Duration, err error) {
	AdapterCallDuration.WithLabelValues(source, op).Observe(took.Seconds())
	if err != nil {
		AdapterCallErrors.WithLabelValues(source, op).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// moderationCounter mirrors ModerationActions on the OpenTelemetry meter.
var moderationCounter, _ = otel.Meter("txconsole").Int64Counter(
	"txconsole.moderation.actions",
	metric.WithDescription("Moderation actions by action, source and outcome"),
)

// ObserveModeration records a moderation action outcome.
func ObserveModeration(action, source string, err error) {
	ModerationActions.WithLabelValues(action, source, outcome(err)).Inc()
	if moderationCounter != nil {
		moderationCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("source", source),
			attribute.String("outcome", outcome(err)),
		))
	}
}

func ObserveNotification(event string, err error) {
	NotificationsDispatched.WithLabelValues(event, outcome(err)).Inc()
}

func ObserveAudit(err error) {
	AuditEventsWritten.WithLabelValues(outcome(err)).Inc()
}
