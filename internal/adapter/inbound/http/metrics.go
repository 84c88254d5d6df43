package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics exposed on /metrics. The composition
// root increments AuditAppendsTotal; MetricsMiddleware updates
// RequestsTotal and RequestDuration where it is installed. Nothing in this
// module updates the connection, tool-call, denial or quota collectors.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge
	ToolCallsTotal    *prometheus.CounterVec
	ToolCallDuration  *prometheus.HistogramVec
	PermissionDenials *prometheus.CounterVec
	QuotaDenialsTotal *prometheus.CounterVec
	AuditAppendsTotal prometheus.Counter
}

// NewMetrics creates and registers every metric with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "requests_total",
				Help:      "Total number of JSON-RPC requests processed, by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "toolgate",
				Name:      "request_duration_seconds",
				Help:      "Request dispatch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActiveConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "toolgate",
				Name:      "active_connections",
				Help:      "Number of currently open transport connections",
			},
		),
		ToolCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "tool_calls_total",
				Help:      "Total tool invocations, by tool name and outcome",
			},
			[]string{"tool", "outcome"}, // outcome=success/denied/timeout/error
		),
		ToolCallDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "toolgate",
				Name:      "tool_call_duration_seconds",
				Help:      "Tool invocation duration in seconds, by tool name",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		PermissionDenials: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "permission_denials_total",
				Help:      "Total authorization denials, by permission type",
			},
			[]string{"permission_type"},
		),
		QuotaDenialsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "quota_denials_total",
				Help:      "Total quota denials, by resource",
			},
			[]string{"resource"},
		),
		AuditAppendsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "audit_appends_total",
				Help:      "Total audit entries appended",
			},
		),
	}
}
