package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame outcomes recorded by the pacer
const (
	FrameAudio   = "audio"
	FrameSilence = "silence"
	FrameDropped = "dropped"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "media_bridge_active_sessions",
		Help: "Number of active media stream sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_bridge_sessions_total",
		Help: "Total number of media stream sessions accepted",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_bridge_session_duration_seconds",
		Help:    "Duration of media stream sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	sessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_bridge_sessions_closed_total",
		Help: "Sessions closed, by reason",
	}, []string{"reason"})

	authRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_bridge_auth_rejections_total",
		Help: "Capability token rejections, by cause",
	}, []string{"cause"})

	// Greeting metrics
	greetingLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_bridge_greeting_lookups_total",
		Help: "Agent greeting lookups, by source",
	}, []string{"source"}) // source: "agent" or "default"

	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_bridge_tts_requests_total",
		Help: "Total number of greeting synthesis requests",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_bridge_tts_latency_seconds",
		Help:    "Greeting synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	greetingFrames = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_bridge_greeting_frames",
		Help:    "Number of 20ms frames enqueued per greeting",
		Buckets: prometheus.ExponentialBuckets(25, 2, 8),
	})

	// Pacer metrics
	outboundFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_bridge_outbound_frames_total",
		Help: "Outbound frames by outcome",
	}, []string{"kind"}) // kind: audio, silence, dropped

	// Inbound metrics
	inboundDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_bridge_inbound_discarded_total",
		Help: "Inbound media frames not forwarded to the bridge, by reason",
	}, []string{"reason"})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_bridge_audio_bytes_total",
		Help: "Total µ-law audio bytes processed",
	}, []string{"direction"}) // direction: "inbound" or "outbound"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_bridge_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "media_bridge_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_bridge_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single media stream session
type Metrics struct {
	startTime    time.Time
	ttsStartTime time.Time
	mu           sync.Mutex
	ended        bool
}

// NewCallMetrics creates a new metrics tracker for a session
func NewCallMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordCallStart records the start of a session
func (m *Metrics) RecordCallStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordCallEnd records the end of a session; repeated calls are ignored
func (m *Metrics) RecordCallEnd(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true

	activeSessions.Dec()
	sessionsClosed.WithLabelValues(reason).Inc()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordAuthRejected records a capability token rejection
func (m *Metrics) RecordAuthRejected(cause string) {
	authRejections.WithLabelValues(cause).Inc()
}

// RecordGreetingSource records whether the greeting text came from the agent or the default
func (m *Metrics) RecordGreetingSource(source string) {
	greetingLookups.WithLabelValues(source).Inc()
}

// RecordTTSStart records the start of greeting synthesis
func (m *Metrics) RecordTTSStart() {
	m.mu.Lock()
	m.ttsStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTTSEnd records the end of greeting synthesis
func (m *Metrics) RecordTTSEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ttsStartTime.IsZero() {
		ttsLatency.Observe(time.Since(m.ttsStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	ttsRequests.WithLabelValues(status).Inc()
}

// RecordGreetingFrames records how many frames a greeting produced
func (m *Metrics) RecordGreetingFrames(n int) {
	greetingFrames.Observe(float64(n))
}

// RecordOutboundFrame records one pacer tick outcome
func (m *Metrics) RecordOutboundFrame(kind string) {
	outboundFrames.WithLabelValues(kind).Inc()
}

// RecordInboundDiscarded records an inbound media frame that was not forwarded
func (m *Metrics) RecordInboundDiscarded(reason string) {
	inboundDiscarded.WithLabelValues(reason).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
