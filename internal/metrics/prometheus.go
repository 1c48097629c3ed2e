package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture agent. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsFailed  prometheus.Counter
	SessionDuration prometheus.Histogram

	// Segment metrics
	SegmentsSealed   prometheus.Counter
	SegmentDuration  prometheus.Histogram
	SegmentSize      prometheus.Histogram
	SegmentOutcomes  *prometheus.CounterVec
	InFlightSegments prometheus.Gauge

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  *prometheus.CounterVec
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter
	ThrottleWait           prometheus.Histogram
	RecommendedWait        prometheus.Gauge

	// Keep-awake metrics
	KeepAwakeAcquired *prometheus.CounterVec
	KeepAwakeActive   prometheus.Gauge

	// Summary metrics
	Summaries *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
	FeedClients         prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_active_sessions",
			Help: "Current number of recording sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_sessions_started_total",
			Help: "Total number of sessions that started recording",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_sessions_failed_total",
			Help: "Total number of sessions whose capture could not be acquired",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_session_duration_seconds",
			Help:    "Recorded duration of finished sessions",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10), // 30s to ~4 hours
		}),

		// Segment metrics
		SegmentsSealed: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_segments_sealed_total",
			Help: "Total number of sealed segments",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_segment_duration_seconds",
			Help:    "Audio duration of sealed segments",
			Buckets: prometheus.LinearBuckets(15, 15, 12), // 15s to 3 minutes
		}),
		SegmentSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_segment_size_bytes",
			Help:    "Payload size of sealed segments",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
		}),
		SegmentOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_segment_outcomes_total",
			Help: "Resolved segments by outcome",
		}, []string{"status"}),
		InFlightSegments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_inflight_segments",
			Help: "Segments handed to transcription whose outcome is pending",
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcription_requests_total",
			Help: "Total number of transcription attempts sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcription_successes_total",
			Help: "Total number of successful transcription attempts",
		}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_transcription_failures_total",
			Help: "Failed transcription attempts by error class",
		}, []string{"class"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_transcription_duration_seconds",
			Help:    "Duration of transcription attempts",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),
		TranscriptionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcription_retries_total",
			Help: "Total number of transcription retries",
		}),
		ThrottleWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_throttle_wait_seconds",
			Help:    "Time spent waiting between segment submissions",
			Buckets: prometheus.LinearBuckets(0, 15, 9),
		}),
		RecommendedWait: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_recommended_wait_seconds",
			Help: "Most recent recommended wait reported by the transcription service",
		}),

		// Keep-awake metrics
		KeepAwakeAcquired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_keep_awake_acquired_total",
			Help: "Keep-awake lease acquisitions by backend",
		}, []string{"backend"}),
		KeepAwakeActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_keep_awake_active",
			Help: "Currently held keep-awake leases",
		}),

		// Summary metrics
		Summaries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_summaries_total",
			Help: "Summary requests by result",
		}, []string{"result"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetscribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
		FeedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_feed_clients",
			Help: "Connected WebSocket feed clients",
		}),
	}
}

// RecordSessionStarted records a session entering recording
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionFailed records a session whose start was rejected
func (m *Metrics) RecordSessionFailed() {
	if m == nil {
		return
	}
	m.SessionsFailed.Inc()
}

// RecordSessionFinished records teardown of a recording session
func (m *Metrics) RecordSessionFinished(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSegmentSealed records a sealed segment handed to transcription
func (m *Metrics) RecordSegmentSealed(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.SegmentsSealed.Inc()
	m.SegmentDuration.Observe(durationSeconds)
	m.SegmentSize.Observe(float64(sizeBytes))
	m.InFlightSegments.Inc()
}

// RecordSegmentResolved records the outcome of an in-flight segment
func (m *Metrics) RecordSegmentResolved(status string) {
	if m == nil {
		return
	}
	m.SegmentOutcomes.WithLabelValues(status).Inc()
	m.InFlightSegments.Dec()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription attempt
func (m *Metrics) RecordTranscriptionFailure(class string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.WithLabelValues(class).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Inc()
}

// RecordThrottleWait records an inter-segment wait
func (m *Metrics) RecordThrottleWait(seconds float64) {
	if m == nil {
		return
	}
	m.ThrottleWait.Observe(seconds)
}

// SetRecommendedWait records the latest service hint
func (m *Metrics) SetRecommendedWait(seconds float64) {
	if m == nil {
		return
	}
	m.RecommendedWait.Set(seconds)
}

// RecordKeepAwakeAcquired records a lease acquisition
func (m *Metrics) RecordKeepAwakeAcquired(backend string) {
	if m == nil {
		return
	}
	m.KeepAwakeAcquired.WithLabelValues(backend).Inc()
	m.KeepAwakeActive.Inc()
}

// RecordKeepAwakeReleased records a lease release
func (m *Metrics) RecordKeepAwakeReleased() {
	if m == nil {
		return
	}
	m.KeepAwakeActive.Dec()
}

// RecordSummary records a summary request result
func (m *Metrics) RecordSummary(result string) {
	if m == nil {
		return
	}
	m.Summaries.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

// SetFeedClients sets the number of connected feed clients
func (m *Metrics) SetFeedClients(count int) {
	if m == nil {
		return
	}
	m.FeedClients.Set(float64(count))
}
