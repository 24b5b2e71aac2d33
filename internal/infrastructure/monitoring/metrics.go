package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be constructed without a collector in tests.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Acquisition metrics
	FetchAttempts  *prometheus.CounterVec
	FetchBytes     prometheus.Counter
	StageDuration  *prometheus.HistogramVec
	Acquisitions   *prometheus.CounterVec
	ComponentState *prometheus.GaugeVec

	// Lifecycle metrics
	ProcessStarts       *prometheus.CounterVec
	EnvironmentsRunning prometheus.Gauge

	// Event metrics
	Subscribers     prometheus.Gauge
	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter

	startTime time.Time

	// Snapshot for the health endpoint
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health summary.
type Snapshot struct {
	TotalRequests       int64   `json:"total_requests"`
	TotalErrors         int64   `json:"total_errors"`
	AvgLatencyMS        float64 `json:"avg_latency_ms"`
	RunningEnvironments int64   `json:"running_environments"`
	Subscribers         int64   `json:"subscribers"`
	UptimeSeconds       float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a collector backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixos_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mixos_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mixos_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		FetchAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixos_fetch_attempts_total",
				Help: "Download attempts by outcome",
			},
			[]string{"outcome"},
		),
		FetchBytes: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mixos_fetch_bytes_total",
				Help: "Bytes written by successful and failed download attempts",
			},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mixos_stage_duration_seconds",
				Help:    "Archive staging duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 180, 600},
			},
			[]string{"mode", "outcome"},
		),
		Acquisitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixos_component_acquisitions_total",
				Help: "Component acquisitions by outcome",
			},
			[]string{"component", "outcome"},
		),
		ComponentState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mixos_component_progress_percent",
				Help: "Last reported acquisition progress per component",
			},
			[]string{"component"},
		),

		ProcessStarts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixos_process_starts_total",
				Help: "Backing process spawns by environment kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		EnvironmentsRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mixos_environments_running",
				Help: "Number of environments with a live backing process",
			},
		),

		Subscribers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mixos_event_subscribers",
				Help: "Number of attached event observers",
			},
		),
		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixos_events_published_total",
				Help: "Events published by type",
			},
			[]string{"type"},
		),
		EventsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mixos_event_evictions_total",
				Help: "Observers removed because they closed or stalled",
			},
		),
	}

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mixos_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition for this collector.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordFetchAttempt records one download attempt. Outcome is "success",
// "timeout", "error" or "cached".
func (m *Metrics) RecordFetchAttempt(outcome string, written int64) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(outcome).Inc()
	if written > 0 {
		m.FetchBytes.Add(float64(written))
	}
}

// RecordStage records an extraction or copy.
func (m *Metrics) RecordStage(mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(mode, outcome).Observe(duration.Seconds())
}

// RecordAcquisition records the terminal outcome of one component.
func (m *Metrics) RecordAcquisition(component, outcome string) {
	if m == nil {
		return
	}
	m.Acquisitions.WithLabelValues(component, outcome).Inc()
}

// SetComponentProgress records the latest progress percentage.
func (m *Metrics) SetComponentProgress(component string, progress int) {
	if m == nil {
		return
	}
	m.ComponentState.WithLabelValues(component).Set(float64(progress))
}

// RecordProcessStart records a spawn attempt.
func (m *Metrics) RecordProcessStart(kind, outcome string) {
	if m == nil {
		return
	}
	m.ProcessStarts.WithLabelValues(kind, outcome).Inc()
}

// IncRunning increments the running environments gauge.
func (m *Metrics) IncRunning() {
	if m == nil {
		return
	}
	m.EnvironmentsRunning.Inc()
	m.mu.Lock()
	m.snapshot.RunningEnvironments++
	m.mu.Unlock()
}

// DecRunning decrements the running environments gauge.
func (m *Metrics) DecRunning() {
	if m == nil {
		return
	}
	m.EnvironmentsRunning.Dec()
	m.mu.Lock()
	m.snapshot.RunningEnvironments--
	m.mu.Unlock()
}

// SetSubscribers sets the number of attached observers.
func (m *Metrics) SetSubscribers(count int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(count))
	m.mu.Lock()
	m.snapshot.Subscribers = int64(count)
	m.mu.Unlock()
}

// RecordPublish counts a published event.
func (m *Metrics) RecordPublish(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEviction counts an observer removed by the broadcaster.
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// GetSnapshot returns a copy of the summary values.
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgLatencyMS = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
