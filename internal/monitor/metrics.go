package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the snippet pipeline.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	PipelineErrors   *prometheus.CounterVec
	ActiveRuns       prometheus.Gauge
	TimeoutsTotal    *prometheus.CounterVec
	WorkspacesSwept  prometheus.Counter
	SuspiciousRuns   *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge
	SourceSizeBytes  prometheus.Histogram
	OutputSizeBytes  prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snippet",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by terminal status.",
			},
			[]string{"status"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "snippet",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),

		PipelineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snippet",
				Name:      "pipeline_errors_total",
				Help:      "Total pipeline errors by type.",
			},
			[]string{"type"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "snippet",
				Name:      "active_runs",
				Help:      "Number of runs currently in flight.",
			},
		),

		TimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snippet",
				Name:      "timeouts_total",
				Help:      "Total stage timeouts by stage.",
			},
			[]string{"stage"},
		),

		WorkspacesSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "snippet",
				Name:      "workspaces_swept_total",
				Help:      "Total orphaned workspace files removed by the sweeper.",
			},
		),

		SuspiciousRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snippet",
				Name:      "suspicious_runs_total",
				Help:      "Total runs flagged by the abuse detector, by pattern.",
			},
			[]string{"pattern"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "snippet",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		SourceSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "snippet",
				Name:      "source_size_bytes",
				Help:      "Size of submitted source in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "snippet",
				Name:      "output_size_bytes",
				Help:      "Size of captured run output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.RunsTotal,
		m.StageDuration,
		m.PipelineErrors,
		m.ActiveRuns,
		m.TimeoutsTotal,
		m.WorkspacesSwept,
		m.SuspiciousRuns,
		m.RequestsInFlight,
		m.SourceSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordRun records the terminal status of a completed run.
func (m *Metrics) RecordRun(status string) {
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RecordStage records the duration of a single pipeline stage.
func (m *Metrics) RecordStage(stage string, durationSec float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSec)
}

// RecordError records a pipeline error by type.
func (m *Metrics) RecordError(errType string) {
	m.PipelineErrors.WithLabelValues(errType).Inc()
}

// RecordTimeout records a stage timeout.
func (m *Metrics) RecordTimeout(stage string) {
	m.TimeoutsTotal.WithLabelValues(stage).Inc()
}

// RecordSuspicious records an abuse-detector finding by pattern name.
func (m *Metrics) RecordSuspicious(pattern string) {
	m.SuspiciousRuns.WithLabelValues(pattern).Inc()
}
