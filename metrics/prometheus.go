package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"noise-lab/identity"
)

// Metrics contains all Prometheus metrics for the service
type Metrics struct {
	registry *prometheus.Registry

	// Frame metrics
	FramesProcessed    prometheus.Counter
	FramesRejected     *prometheus.CounterVec
	SilentFrames       prometheus.Counter
	MatchedFrames      prometheus.Counter
	ProcessingDuration prometheus.Histogram
	MatchConfidence    prometheus.Histogram

	// Model state
	ActiveIdentities  prometheus.Gauge
	PendingIdentities prometheus.Gauge
	Stability         prometheus.Gauge
	LifecycleEvents   *prometheus.CounterVec

	stateMu  sync.Mutex
	stateSeq uint64

	// Stream metrics
	ActiveStreams  *prometheus.GaugeVec
	StreamsOpened  *prometheus.CounterVec
	StreamDuration prometheus.Histogram

	// Journal metrics
	JournalWrites  prometheus.Counter
	JournalDropped prometheus.Counter
	JournalErrors  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics registers every metric on reg. A nil reg gets a fresh registry
// with the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "noiselab_frames_processed_total",
			Help: "Total number of frames run through the identity model",
		}),
		FramesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noiselab_frames_rejected_total",
			Help: "Total number of malformed frame payloads",
		}, []string{"reason"}),
		SilentFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "noiselab_silent_frames_total",
			Help: "Total number of frames at or below the energy floor",
		}),
		MatchedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "noiselab_matched_frames_total",
			Help: "Total number of frames matched to an active identity",
		}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "noiselab_frame_processing_duration_seconds",
			Help:    "Time spent extracting features and updating the model per frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
		}),
		MatchConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "noiselab_match_confidence",
			Help:    "Match confidence reported per non-silent frame",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		ActiveIdentities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "noiselab_active_identities",
			Help: "Current number of active identities",
		}),
		PendingIdentities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "noiselab_pending_identities",
			Help: "Current number of pending identities",
		}),
		Stability: factory.NewGauge(prometheus.GaugeOpts{
			Name: "noiselab_model_stability",
			Help: "Summed strength of all active identities",
		}),
		LifecycleEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noiselab_identity_events_total",
			Help: "Total number of identity lifecycle events",
		}, []string{"kind"}),

		ActiveStreams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "noiselab_active_streams",
			Help: "Current number of connected audio streams",
		}, []string{"transport"}),
		StreamsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noiselab_streams_opened_total",
			Help: "Total number of audio streams opened",
		}, []string{"transport"}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "noiselab_stream_duration_seconds",
			Help:    "Duration of audio streams in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		JournalWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "noiselab_journal_writes_total",
			Help: "Total number of lifecycle events written to the journal",
		}),
		JournalDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "noiselab_journal_dropped_total",
			Help: "Total number of lifecycle events dropped because the journal queue was full",
		}),
		JournalErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "noiselab_journal_errors_total",
			Help: "Total number of failed journal writes",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noiselab_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "noiselab_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noiselab_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFrame records one processed frame and the model state it left behind.
func (m *Metrics) RecordFrame(res identity.Result, silent bool, elapsed time.Duration) {
	m.FramesProcessed.Inc()
	m.ProcessingDuration.Observe(elapsed.Seconds())
	if silent {
		m.SilentFrames.Inc()
	} else {
		m.MatchConfidence.Observe(res.Confidence)
	}
	if res.MatchedID != "" {
		m.MatchedFrames.Inc()
	}
	m.publishState(res.Seq, res.ActiveCount, res.PendingCount, res.Stability)
}

// RecordRejectedFrame counts a payload that failed decoding
func (m *Metrics) RecordRejectedFrame(reason string) {
	m.FramesRejected.WithLabelValues(reason).Inc()
}

// Observe counts identity lifecycle events.
func (m *Metrics) Observe(e identity.Event) {
	m.LifecycleEvents.WithLabelValues(string(e.Kind)).Inc()
}

// RecordModelState refreshes the model gauges outside of frame processing,
// e.g. after an admin action.
func (m *Metrics) RecordModelState(status identity.Status) {
	var stability float64
	for _, a := range status.Active {
		stability += a.Strength
	}
	m.publishState(status.Seq, len(status.Active), len(status.Pending), stability)
}

// publishState sets the population gauges unless a later model state has
// already been published. Concurrent sessions finish frames out of order.
func (m *Metrics) publishState(seq uint64, active, pending int, stability float64) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if seq < m.stateSeq {
		return
	}
	m.stateSeq = seq
	m.ActiveIdentities.Set(float64(active))
	m.PendingIdentities.Set(float64(pending))
	m.Stability.Set(stability)
}

func (m *Metrics) RecordStreamOpened(transport string) {
	m.StreamsOpened.WithLabelValues(transport).Inc()
	m.ActiveStreams.WithLabelValues(transport).Inc()
}

func (m *Metrics) RecordStreamClosed(transport string, durationSeconds float64) {
	m.ActiveStreams.WithLabelValues(transport).Dec()
	m.StreamDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordJournalWrite() {
	m.JournalWrites.Inc()
}

func (m *Metrics) RecordJournalDropped() {
	m.JournalDropped.Inc()
}

func (m *Metrics) RecordJournalError() {
	m.JournalErrors.Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
