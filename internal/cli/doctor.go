package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/skypro1111/meetscribe/internal/capture"
	"github.com/skypro1111/meetscribe/internal/config"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := NewFormatter(deps.Stdout)

			cfg, err := config.Read(deps.configPath())
			if err != nil {
				f.SetupCheck("Config file", false, err.Error())
				cfg = config.Default()
			} else if path := deps.configPath(); path != "" {
				f.SetupCheck("Config file", true, path)
			} else {
				f.SetupCheck("Config file", true, "built-in defaults")
			}

			if ok := runChecks(f, cfg); ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

// runChecks reports each prerequisite and returns whether all passed
func runChecks(f *Formatter, cfg *config.Config) bool {
	ok := true

	if err := cfg.Validate(); err != nil {
		f.SetupCheck("Configuration", false, err.Error())
		ok = false
	} else {
		f.SetupCheck("Configuration", true, "valid")
	}

	switch cfg.Capture.Backend {
	case "portaudio":
		if capture.PortAudioAvailable() {
			f.SetupCheck("PortAudio", true, "compiled in")
		} else {
			f.SetupCheck("PortAudio", false, "not compiled in. Rebuild with -tags portaudio")
			ok = false
		}
	default:
		if path, err := exec.LookPath(cfg.Capture.FFmpegPath); err != nil {
			f.SetupCheck("ffmpeg", false, fmt.Sprintf("%s not found. Install ffmpeg or set capture.ffmpeg_path", cfg.Capture.FFmpegPath))
			ok = false
		} else {
			f.SetupCheck("ffmpeg", true, path)
		}
	}

	// Mixed mode needs a loopback source; ffmpeg reads it for both backends.
	if len(cfg.Capture.LoopbackInput) == 0 {
		f.SetupCheck("System audio", false, "capture.loopback_input not set, only microphone mode is available")
	} else {
		f.SetupCheck("System audio", true, fmt.Sprintf("%v", cfg.Capture.LoopbackInput))
	}

	if cfg.KeepAwake.Enabled {
		keepAwake := false
		if cmd := cfg.KeepAwake.InhibitCommand; len(cmd) > 0 {
			if _, err := exec.LookPath(cmd[0]); err == nil {
				f.SetupCheck("Keep-awake inhibitor", true, cmd[0])
				keepAwake = true
			} else {
				f.SetupCheck("Keep-awake inhibitor", false, cmd[0]+" not found")
			}
		}
		if cmd := cfg.KeepAwake.PlayerCommand; len(cmd) > 0 {
			if _, err := exec.LookPath(cmd[0]); err == nil {
				f.SetupCheck("Silent media fallback", true, cmd[0])
				keepAwake = true
			} else {
				f.SetupCheck("Silent media fallback", false, cmd[0]+" not found")
			}
		}
		if !keepAwake {
			f.Warning("No keep-awake backend available; the host may sleep during long recordings")
		}
	} else {
		f.SetupCheck("Keep-awake", true, "disabled")
	}

	if cfg.Transcription.APIKey != "" {
		f.SetupCheck("Transcription API key", true, "configured")
	} else {
		f.SetupCheck("Transcription API key", false, "not set. Set MEETSCRIBE_TRANSCRIPTION_API_KEY or add transcription.api_key to config")
		ok = false
	}

	if cfg.Summary.APIKey != "" {
		f.SetupCheck("Summary API key", true, "configured")
	} else {
		f.SetupCheck("Summary API key", true, "not set, summaries disabled")
	}

	return ok
}
