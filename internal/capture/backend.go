package capture

import (
	"fmt"
	"log/slog"

	"github.com/skypro1111/meetscribe/internal/config"
)

// NewAcquirer returns the acquirer for the configured backend
func NewAcquirer(cfg config.CaptureConfig, logger *slog.Logger) (Acquirer, error) {
	switch cfg.Backend {
	case "", "ffmpeg":
		return NewFFmpegAcquirer(cfg, logger), nil
	case "portaudio":
		return newPortAudioAcquirer(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}
}

// PortAudioAvailable reports whether the portaudio backend is compiled in
func PortAudioAvailable() bool {
	return portAudioCompiled
}
