package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/skypro1111/meetscribe/internal/app"
	"github.com/skypro1111/meetscribe/internal/server"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recording agent with its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(deps)
		},
	}
}

func runServe(deps *Dependencies) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", deps.configPath()),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("capture_backend", cfg.Capture.Backend),
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Int("segment_interval", cfg.Segments.Interval),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.Int("max_attempts", cfg.Transcription.MaxAttempts),
		slog.String("ordering", cfg.Transcription.Ordering),
		slog.Bool("keep_awake", cfg.KeepAwake.Enabled),
		slog.Int("max_active_sessions", cfg.Sessions.MaxActive),
		slog.String("log_level", cfg.Logging.Level),
	)

	application, err := app.New(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, application.Sessions,
			application.Transcriber, application.Metrics, nil)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("starting HTTP server: %w", err)
		}
	} else {
		logger.Warn("HTTP API disabled, sessions can only be driven by the record command")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop sessions; a final segment still retrying is abandoned after the timeout
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	application.Close(stopCtx)

	logger.Info("Service stopped")
	return nil
}
