// Package metrics holds the Prometheus collectors for analysis runs and the
// HTTP server. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters, gauges and histograms
type Metrics struct {
	registry       *prometheus.Registry
	analysesTotal  *prometheus.CounterVec
	framesSampled  prometheus.Counter
	frameFailures  *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	overallScore   prometheus.Gauge
	activeAnalyses prometheus.Gauge
	requestsTotal  prometheus.Counter
	errorsTotal    prometheus.Counter
}

// New creates and registers the collectors on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	analysesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adattention_analyses_total",
		Help: "Analyses finished, by outcome",
	}, []string{"outcome"})
	framesSampled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adattention_frames_sampled_total",
		Help: "Frames emitted by the sampler",
	})
	frameFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adattention_frame_failures_total",
		Help: "Per-frame extraction failures, by signal",
	}, []string{"signal"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adattention_stage_duration_seconds",
		Help:    "Wall time per pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})
	overallScore := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adattention_last_overall_score",
		Help: "Overall attention score of the most recent analysis",
	})
	activeAnalyses := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adattention_active_analyses",
		Help: "Analyses currently running",
	})
	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adattention_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adattention_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		analysesTotal,
		framesSampled,
		frameFailures,
		stageDuration,
		overallScore,
		activeAnalyses,
		requestsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:       registry,
		analysesTotal:  analysesTotal,
		framesSampled:  framesSampled,
		frameFailures:  frameFailures,
		stageDuration:  stageDuration,
		overallScore:   overallScore,
		activeAnalyses: activeAnalyses,
		requestsTotal:  requestsTotal,
		errorsTotal:    errorsTotal,
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AnalysisStarted bumps the active gauge
func (m *Metrics) AnalysisStarted() {
	if m == nil {
		return
	}
	m.activeAnalyses.Inc()
}

// AnalysisFinished records the outcome ("ok", "error", "canceled") and, on
// success, the overall score.
func (m *Metrics) AnalysisFinished(outcome string, score float64) {
	if m == nil {
		return
	}
	m.activeAnalyses.Dec()
	m.analysesTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.overallScore.Set(score)
	}
}

// AddFramesSampled counts sampled frames
func (m *Metrics) AddFramesSampled(n int) {
	if m == nil {
		return
	}
	m.framesSampled.Add(float64(n))
}

// IncFrameFailure counts one failed frame for signal
func (m *Metrics) IncFrameFailure(signal string) {
	if m == nil {
		return
	}
	m.frameFailures.WithLabelValues(signal).Inc()
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncRequests increments the total request counter
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the current values in text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
