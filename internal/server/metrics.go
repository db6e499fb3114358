package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scanforge/serialscan/internal/pipeline"
	"github.com/scanforge/serialscan/internal/validator"
)

// Metrics holds the server's Prometheus instrumentation on a private
// registry so multiple servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived  prometheus.Counter
	framesDropped   prometheus.Counter
	sessionsStarted prometheus.Counter
	sessionOutcomes *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	stageLatency    *prometheus.GaugeVec
	wsConnections   prometheus.Gauge
}

// NewMetrics creates the instrument set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		framesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "serialscan_frames_received_total",
			Help: "Camera frames received across all sessions.",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "serialscan_frames_dropped_total",
			Help: "Frames dropped by admission control or full queues.",
		}),
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "serialscan_sessions_started_total",
			Help: "Scan sessions started.",
		}),
		sessionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "serialscan_session_outcomes_total",
			Help: "Terminal session decisions by level.",
		}, []string{"level"}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "serialscan_session_duration_seconds",
			Help:    "Wall-clock duration of a scan session.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}),
		stageLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "serialscan_stage_latency_ms",
			Help: "Rolling average per-stage latency of the last session.",
		}, []string{"stage"}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "serialscan_ws_connections",
			Help: "Open WebSocket scanning connections.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeSession records a finished session's outcome and counters.
func (m *Metrics) observeSession(result validator.Result, stats pipeline.StatsSnapshot, seconds float64) {
	m.sessionOutcomes.WithLabelValues(string(result.Level)).Inc()
	m.scanDuration.Observe(seconds)
	m.framesReceived.Add(float64(stats.FramesSeen))
	m.framesDropped.Add(float64(stats.FramesDropped))
	for stage, ms := range stats.StageAverages {
		m.stageLatency.WithLabelValues(stage).Set(ms)
	}
}
