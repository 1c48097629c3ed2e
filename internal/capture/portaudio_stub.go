//go:build !portaudio

package capture

import (
	"fmt"
	"log/slog"

	"github.com/skypro1111/meetscribe/internal/config"
)

const portAudioCompiled = false

func newPortAudioAcquirer(config.CaptureConfig, *slog.Logger) (Acquirer, error) {
	return nil, fmt.Errorf("portaudio: %w (rebuild with -tags portaudio)", ErrBackendUnavailable)
}
