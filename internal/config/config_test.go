package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Transcription.Endpoint = "https://api.example.com/v1/audio/transcriptions"
	cfg.Transcription.APIKey = "test-key"
	return cfg
}

func TestDefaultConfigNeedsEndpoint(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected default config without endpoint to fail validation")
	}
	if !strings.Contains(err.Error(), "transcription config") {
		t.Errorf("Expected transcription config error, got: %v", err)
	}

	if err := validConfig().Validate(); err != nil {
		t.Errorf("Expected valid config but got error: %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Segments.Interval != 150 {
		t.Errorf("Expected 150 second interval, got %d", cfg.Segments.Interval)
	}
	if cfg.Transcription.MaxAttempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", cfg.Transcription.MaxAttempts)
	}
	if cfg.Transcription.GetDefaultWaitDuration() != 15*time.Second {
		t.Errorf("Expected 15s default wait, got %v", cfg.Transcription.GetDefaultWaitDuration())
	}
	if cfg.Transcription.GetMinWaitDuration() != 15*time.Second {
		t.Errorf("Expected 15s minimum wait, got %v", cfg.Transcription.GetMinWaitDuration())
	}
	if cfg.Transcription.Ordering != "completion" {
		t.Errorf("Expected completion ordering, got %s", cfg.Transcription.Ordering)
	}
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `
http:
  port: 9090
  address: "0.0.0.0"
  enabled: true

capture:
  backend: "ffmpeg"
  sample_rate: 16000
  microphone_input: ["-f", "alsa", "-i", "hw:1"]

segments:
  interval: 60

transcription:
  endpoint: "https://api.example.com/transcribe"
  api_key: "file-key"
  ordering: "sequential"
  max_attempts: 3

logging:
  level: "debug"
  format: "json"
  output: "stdout"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("Expected HTTP port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Segments.GetIntervalDuration() != 60*time.Second {
		t.Errorf("Expected 60s interval, got %v", cfg.Segments.GetIntervalDuration())
	}
	if got := strings.Join(cfg.Capture.MicrophoneInput, " "); got != "-f alsa -i hw:1" {
		t.Errorf("Expected microphone input override, got %q", got)
	}
	if cfg.Transcription.Ordering != "sequential" {
		t.Errorf("Expected sequential ordering, got %s", cfg.Transcription.Ordering)
	}
	if cfg.Transcription.MaxAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", cfg.Transcription.MaxAttempts)
	}
	// Untouched sections keep their defaults.
	if cfg.Transcription.MaxBackoff != 60 {
		t.Errorf("Expected default max backoff 60, got %d", cfg.Transcription.MaxBackoff)
	}
	if cfg.Sessions.MaxActive != 1 {
		t.Errorf("Expected default max_active 1, got %d", cfg.Sessions.MaxActive)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MEETSCRIBE_TRANSCRIPTION_ENDPOINT", "http://localhost:9999/transcribe")
	t.Setenv("MEETSCRIBE_TRANSCRIPTION_API_KEY", "env-key")
	t.Setenv("MEETSCRIBE_HTTP_PORT", "9191")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config from environment: %v", err)
	}

	if cfg.Transcription.APIKey != "env-key" {
		t.Errorf("Expected env API key, got %q", cfg.Transcription.APIKey)
	}
	if cfg.HTTP.Port != 9191 {
		t.Errorf("Expected port 9191, got %d", cfg.HTTP.Port)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}

	tempDir := t.TempDir()
	badPath := filepath.Join(tempDir, "bad.yaml")
	if err := os.WriteFile(badPath, []byte("http: [unterminated"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := Load(badPath); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestReadSkipsValidation(t *testing.T) {
	t.Setenv("MEETSCRIBE_TRANSCRIPTION_ENDPOINT", "")
	t.Setenv("MEETSCRIBE_TRANSCRIPTION_API_KEY", "")

	cfg, err := Read("")
	if err != nil {
		t.Fatalf("Expected defaults without a file, got error: %v", err)
	}
	if cfg.Validate() == nil {
		t.Error("Expected defaults read without endpoint to remain invalid")
	}

	if _, err := Load(""); err == nil {
		t.Error("Expected Load to validate")
	}
}

func TestTranscriptionConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*TranscriptionConfig)
		valid  bool
	}{
		{name: "valid config", modify: func(*TranscriptionConfig) {}, valid: true},
		{name: "missing endpoint", modify: func(c *TranscriptionConfig) { c.Endpoint = "" }, valid: false},
		{name: "missing api key", modify: func(c *TranscriptionConfig) { c.APIKey = "" }, valid: false},
		{name: "zero attempts", modify: func(c *TranscriptionConfig) { c.MaxAttempts = 0 }, valid: false},
		{name: "six attempts", modify: func(c *TranscriptionConfig) { c.MaxAttempts = 6 }, valid: false},
		{name: "ceiling below initial", modify: func(c *TranscriptionConfig) { c.MaxBackoff = 5 }, valid: false},
		{name: "negative wait", modify: func(c *TranscriptionConfig) { c.MinWaitMs = -1 }, valid: false},
		{name: "wait below floor", modify: func(c *TranscriptionConfig) { c.MinWaitMs = 14999 }, valid: false},
		{name: "longer wait", modify: func(c *TranscriptionConfig) { c.MinWaitMs = 30000 }, valid: true},
		{name: "negative default wait", modify: func(c *TranscriptionConfig) { c.DefaultWaitMs = -1 }, valid: false},
		{name: "ceiling above 60s", modify: func(c *TranscriptionConfig) { c.MaxBackoff = 61 }, valid: false},
		{name: "initial above 10s", modify: func(c *TranscriptionConfig) { c.InitialBackoff = 11 }, valid: false},
		{name: "shorter schedule", modify: func(c *TranscriptionConfig) { c.InitialBackoff = 1; c.MaxBackoff = 5 }, valid: true},
		{name: "unknown ordering", modify: func(c *TranscriptionConfig) { c.Ordering = "random" }, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig().Transcription
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestCaptureConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*CaptureConfig)
		valid  bool
	}{
		{name: "valid config", modify: func(*CaptureConfig) {}, valid: true},
		{name: "unknown backend", modify: func(c *CaptureConfig) { c.Backend = "alsa" }, valid: false},
		{name: "sample rate too low", modify: func(c *CaptureConfig) { c.SampleRate = 4000 }, valid: false},
		{name: "negative gain", modify: func(c *CaptureConfig) { c.SystemGain = -1 }, valid: false},
		{name: "lag below frame", modify: func(c *CaptureConfig) { c.MaxLag = 50 }, valid: false},
		{name: "no microphone input", modify: func(c *CaptureConfig) { c.MicrophoneInput = nil }, valid: false},
		{name: "no ffmpeg path", modify: func(c *CaptureConfig) { c.FFmpegPath = "" }, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default().Capture
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestSummaryConfigValidation(t *testing.T) {
	summary := SummaryConfig{AutoSummarize: false}
	if err := summary.Validate(); err != nil {
		t.Errorf("Disabled summary should always validate, got: %v", err)
	}

	summary = Default().Summary
	summary.AutoSummarize = true
	if err := summary.Validate(); err == nil {
		t.Error("Expected error for auto_summarize without api_key")
	}

	summary.APIKey = "key"
	if err := summary.Validate(); err != nil {
		t.Errorf("Expected valid summary config, got: %v", err)
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name:   "valid json to stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			valid:  true,
		},
		{
			name:   "valid text to file",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "/tmp/meetscribe.log"},
			valid:  true,
		},
		{
			name:   "invalid log level",
			config: LoggingConfig{Level: "trace", Format: "json", Output: "stdout"},
			valid:  false,
		},
		{
			name:   "invalid format",
			config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	capture := CaptureConfig{SampleRate: 16000, FrameDuration: 100, MaxLag: 500, ProbeTimeout: 1.5}

	if capture.GetFrameSamples() != 1600 {
		t.Errorf("Expected 1600 samples per frame, got %d", capture.GetFrameSamples())
	}
	if capture.GetMaxLagSamples() != 8000 {
		t.Errorf("Expected 8000 lag samples, got %d", capture.GetMaxLagSamples())
	}
	if capture.GetProbeTimeoutDuration() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s probe timeout, got %v", capture.GetProbeTimeoutDuration())
	}

	transcription := TranscriptionConfig{InitialBackoff: 10, MaxBackoff: 60, Timeout: 30}
	if transcription.GetInitialBackoffDuration() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", transcription.GetInitialBackoffDuration())
	}
	if transcription.GetMaxBackoffDuration() != time.Minute {
		t.Errorf("Expected 60 seconds, got %v", transcription.GetMaxBackoffDuration())
	}
	if transcription.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", transcription.GetTimeoutDuration())
	}
}
