package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/meetscribe/internal/capture"
	"github.com/skypro1111/meetscribe/internal/config"
	"github.com/skypro1111/meetscribe/internal/lifecycle"
	"github.com/skypro1111/meetscribe/internal/metrics"
	"github.com/skypro1111/meetscribe/internal/session"
	"github.com/skypro1111/meetscribe/internal/summary"
	"github.com/skypro1111/meetscribe/internal/transcript"
	"github.com/skypro1111/meetscribe/internal/transcription"
)

// App holds the collaborators shared by every session
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Acquirer    capture.Acquirer
	Transcriber *transcription.Client
	Summarizer  *summary.Client // nil when no summary API key is configured
	Sessions    *session.Manager

	ordering transcript.Ordering
}

// New wires the application. reg receives the Prometheus collectors.
func New(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	acquirer, err := capture.NewAcquirer(cfg.Capture, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture backend: %w", err)
	}

	transcriber, err := transcription.NewClient(transcription.Config{
		Endpoint: cfg.Transcription.Endpoint,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription client: %w", err)
	}

	ordering, err := transcript.ParseOrdering(cfg.Transcription.Ordering)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics.NewMetrics(reg),
		Acquirer:    acquirer,
		Transcriber: transcriber,
		ordering:    ordering,
	}

	if cfg.Summary.APIKey != "" {
		a.Summarizer = summary.NewClient(cfg.Summary, logger)
	}

	a.Sessions = session.NewManager(logger, session.ManagerConfig{
		MaxActive: cfg.Sessions.MaxActive,
		Retention: cfg.Sessions.GetRetentionDuration(),
	}, a.NewSession)

	logger.Info("Application initialized",
		slog.String("capture_backend", cfg.Capture.Backend),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("ordering", string(ordering)),
		slog.Bool("summary_configured", a.Summarizer != nil),
		slog.Bool("keep_awake", cfg.KeepAwake.Enabled))

	return a, nil
}

// NewSession builds an idle session with its own capture manager, submission
// engine and keep-awake guard. It is the session manager's factory.
func (a *App) NewSession(id string, mode capture.Mode) (*session.Session, error) {
	logger := a.Logger.With(slog.String("session_id", id))

	source := capture.NewManager(a.Config.Capture, a.Acquirer, logger)
	guard := lifecycle.NewGuard(lifecycle.NewProviders(a.Config.KeepAwake, logger), logger, a.Metrics)

	var s *session.Session

	engineCfg := transcription.EngineConfigFrom(a.Config.Transcription)
	engineCfg.Logger = logger
	engineCfg.Metrics = a.Metrics
	engineCfg.OnStatus = func(number int, status transcription.Status, err error) {
		s.SegmentStatusChanged(number, status, err)
	}
	engine := transcription.NewEngine(a.Transcriber, engineCfg)

	opts := session.Options{
		ID:            id,
		Mode:          mode,
		Interval:      a.Config.Segments.GetIntervalDuration(),
		SampleRate:    a.Config.Capture.SampleRate,
		Ordering:      a.ordering,
		AutoSummarize: a.Config.Summary.AutoSummarize,
		Source:        source,
		Submitter:     engine,
		Guard:         guard,
		Logger:        a.Logger,
		Metrics:       a.Metrics,
	}
	if a.Summarizer != nil {
		opts.Summarizer = a.Summarizer
	}

	s = session.New(opts)
	return s, nil
}

// Close stops every session and releases shared clients
func (a *App) Close(ctx context.Context) {
	a.Sessions.Stop(ctx)

	if err := a.Transcriber.Close(); err != nil {
		a.Logger.Warn("Error closing transcription client", slog.String("error", err.Error()))
	}

	stats := a.Transcriber.GetStats()
	a.Logger.Info("Application stopped",
		slog.Uint64("total_transcription_requests", stats.TotalRequests),
		slog.Uint64("successful_transcriptions", stats.SuccessRequests),
		slog.Float64("transcription_success_rate", stats.SuccessRate))
}
