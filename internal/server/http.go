package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/meetscribe/internal/config"
	"github.com/skypro1111/meetscribe/internal/metrics"
	"github.com/skypro1111/meetscribe/internal/session"
	"github.com/skypro1111/meetscribe/internal/transcription"
)

const (
	serviceName    = "meetscribe"
	serviceVersion = "1.0.0"
)

// StatsProvider reports transcription client statistics
type StatsProvider interface {
	GetStats() transcription.ClientStats
}

// HTTPServer provides the agent API: session control, transcripts, the
// live event feed and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	sessions *session.Manager
	stats    StatsProvider
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	feedClients atomic.Int64
	startTime   time.Time
}

// NewHTTPServer creates a new HTTP API server. A nil gatherer serves the
// default Prometheus registry.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	sessions *session.Manager, stats StatsProvider, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:   logger,
		config:   appConfig,
		sessions: sessions,
		stats:    stats,
		metrics:  m,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024 * 16,
		},
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// Stop and summary requests may wait; the feed clears deadlines on upgrade.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))

	// Session control
	mux.HandleFunc("GET /sessions", h.withMetrics("/sessions", h.handleListSessions))
	mux.HandleFunc("POST /sessions", h.withMetrics("/sessions", h.handleCreateSession))
	mux.HandleFunc("GET /sessions/{id}", h.withMetrics("/sessions/{id}", h.handleGetSession))
	mux.HandleFunc("DELETE /sessions/{id}", h.withMetrics("/sessions/{id}", h.handleDeleteSession))
	mux.HandleFunc("POST /sessions/{id}/stop", h.withMetrics("/sessions/{id}/stop", h.handleStopSession))
	mux.HandleFunc("POST /sessions/{id}/mute", h.withMetrics("/sessions/{id}/mute", h.handleMute))
	mux.HandleFunc("POST /sessions/{id}/visibility", h.withMetrics("/sessions/{id}/visibility", h.handleVisibility))
	mux.HandleFunc("GET /sessions/{id}/transcript", h.withMetrics("/sessions/{id}/transcript", h.handleTranscript))
	mux.HandleFunc("GET /sessions/{id}/summary", h.withMetrics("/sessions/{id}/summary", h.handleGetSummary))
	mux.HandleFunc("POST /sessions/{id}/summary", h.withMetrics("/sessions/{id}/summary", h.handleRequestSummary))

	// Live event feed (hijacked, no metrics wrapper)
	mux.HandleFunc("GET /sessions/{id}/feed", h.handleFeed)

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	sessionStats := h.sessions.GetStats()
	transcriptionStats := h.stats.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"session_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": sessionStats.Active,
				"total_sessions":  sessionStats.Total,
			},
			"transcription": map[string]interface{}{
				"status":          "running",
				"total_requests":  transcriptionStats.TotalRequests,
				"success_rate":    transcriptionStats.SuccessRate,
				"active_requests": transcriptionStats.ActiveRequests,
			},
			"feed": map[string]interface{}{
				"clients": h.feedClients.Load(),
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	// Return sanitized configuration (API keys omitted)
	sanitizedConfig := map[string]interface{}{
		"capture": map[string]interface{}{
			"backend":           h.config.Capture.Backend,
			"sample_rate":       h.config.Capture.SampleRate,
			"frame_duration_ms": h.config.Capture.FrameDuration,
			"system_gain":       h.config.Capture.SystemGain,
			"max_lag_ms":        h.config.Capture.MaxLag,
			"probe_timeout":     h.config.Capture.ProbeTimeout,
		},
		"segments": map[string]interface{}{
			"interval": h.config.Segments.Interval,
		},
		"transcription": map[string]interface{}{
			"endpoint":        h.config.Transcription.Endpoint,
			"model":           h.config.Transcription.Model,
			"language":        h.config.Transcription.Language,
			"timeout":         h.config.Transcription.Timeout,
			"max_attempts":    h.config.Transcription.MaxAttempts,
			"initial_backoff": h.config.Transcription.InitialBackoff,
			"max_backoff":     h.config.Transcription.MaxBackoff,
			"default_wait_ms": h.config.Transcription.DefaultWaitMs,
			"min_wait_ms":     h.config.Transcription.MinWaitMs,
			"ordering":        h.config.Transcription.Ordering,
		},
		"keep_awake": map[string]interface{}{
			"enabled": h.config.KeepAwake.Enabled,
		},
		"summary": map[string]interface{}{
			"auto_summarize": h.config.Summary.AutoSummarize,
			"endpoint":       h.config.Summary.Endpoint,
			"model":          h.config.Summary.Model,
			"configured":     h.config.Summary.APIKey != "",
		},
		"sessions": map[string]interface{}{
			"max_active": h.config.Sessions.MaxActive,
			"retention":  h.config.Sessions.Retention,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":        time.Since(h.startTime).String(),
		"timestamp":     time.Now().UTC(),
		"sessions":      h.sessions.GetStats(),
		"transcription": h.stats.GetStats(),
		"feed_clients":  h.feedClients.Load(),
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "Meetscribe Recording Agent",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                            "API documentation",
			"GET /health":                      "Service health check",
			"GET /config":                      "Get agent configuration",
			"GET /stats":                       "Get agent statistics",
			"GET /metrics":                     "Prometheus metrics",
			"GET /sessions":                    "List sessions",
			"POST /sessions":                   "Start a recording session",
			"GET /sessions/{id}":               "Get session status",
			"DELETE /sessions/{id}":            "Stop and forget a session",
			"POST /sessions/{id}/stop":         "Stop recording",
			"POST /sessions/{id}/mute":         "Mute or unmute the microphone",
			"POST /sessions/{id}/visibility":   "Report agent visibility",
			"GET /sessions/{id}/transcript":    "Get the transcript as plain text",
			"GET /sessions/{id}/summary":       "Get the summary state",
			"POST /sessions/{id}/summary":      "Request a summary",
			"GET /sessions/{id}/feed":          "WebSocket feed of session events",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error":  msg,
		"status": status,
	})
}
