package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/skypro1111/meetscribe/internal/config"
)

// NewLogger creates and configures the structured logger based on configuration
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return slog.New(newHandler(cfg, openOutput(cfg.Output)))
}

func newHandler(cfg config.LoggingConfig, output io.Writer) slog.Handler {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if cfg.Format == "json" {
		return slog.NewJSONHandler(output, opts)
	}
	return slog.NewTextHandler(output, opts)
}

func openOutput(output string) io.Writer {
	switch output {
	case "stderr":
		return os.Stderr
	case "stdout", "":
		return os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", output, err)
			return os.Stderr
		}
		return file
	}
}
