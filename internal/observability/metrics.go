package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "floodrisk"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk service.
type Metrics struct {
	// Telemetry metrics.
	TelemetryRequests *prometheus.CounterVec // labels: outcome={live,cached,stale,fallback}
	TelemetryCache    *prometheus.CounterVec // labels: result={hit,miss,expired}
	UpstreamRequests  *prometheus.CounterVec // labels: outcome={success,error,circuit_open}
	UpstreamDuration  prometheus.Histogram

	// Scoring and fusion metrics.
	Assessments    *prometheus.CounterVec // labels: level
	Overrides      *prometheus.CounterVec // labels: rule
	FusionFailures prometheus.Counter
	FusionDuration prometheus.Histogram

	// Alert metrics.
	AlertsSynthesized *prometheus.CounterVec // labels: kind
	AlertsPublished   *prometheus.CounterVec // labels: topic, outcome={success,error}

	// Tracking metrics.
	TrackingReports   *prometheus.CounterVec // labels: outcome={success,error,permission_denied}
	TrackingMode      prometheus.Gauge       // 0 idle, 1 normal, 2 high frequency
	PreferenceReverts prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.TelemetryRequests,
		m.TelemetryCache,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.Assessments,
		m.Overrides,
		m.FusionFailures,
		m.FusionDuration,
		m.AlertsSynthesized,
		m.AlertsPublished,
		m.TrackingReports,
		m.TrackingMode,
		m.PreferenceReverts,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TelemetryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_requests_total",
			Help:      "Telemetry fetches by how the sample was served.",
		}, []string{"outcome"}),
		TelemetryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_cache_total",
			Help:      "Telemetry cache lookups by result.",
		}, []string{"result"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_upstream_requests_total",
			Help:      "Weather provider requests by outcome.",
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_upstream_duration_seconds",
			Help:      "Weather provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3},
		}),
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_assessments_total",
			Help:      "Risk assessments by resulting level.",
		}, []string{"level"}),
		Overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_overrides_total",
			Help:      "Severity overrides applied by rule.",
		}, []string{"rule"}),
		FusionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fusion_member_failures_total",
			Help:      "Members whose risk could not be resolved during fusion.",
		}),
		FusionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fusion_duration_seconds",
			Help:      "Duration of fusing a whole safety circle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		AlertsSynthesized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_synthesized_total",
			Help:      "Alerts produced by synthesis passes, by kind.",
		}, []string{"kind"}),
		AlertsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "Alert messages handed to the broker, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		TrackingReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_reports_total",
			Help:      "Location reports by outcome.",
		}, []string{"outcome"}),
		TrackingMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracking_mode",
			Help:      "Current tracking mode: 0 idle, 1 normal, 2 high frequency.",
		}),
		PreferenceReverts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preference_reverts_total",
			Help:      "Optimistic preference changes reverted after a failed write.",
		}),
	}
}
