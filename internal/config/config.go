package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agent configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Capture       CaptureConfig       `yaml:"capture"`
	Segments      SegmentsConfig      `yaml:"segments"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	KeepAwake     KeepAwakeConfig     `yaml:"keep_awake"`
	Summary       SummaryConfig       `yaml:"summary"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// CaptureConfig contains capture device parameters
type CaptureConfig struct {
	Backend         string   `yaml:"backend"` // "ffmpeg" or "portaudio"
	SampleRate      int      `yaml:"sample_rate"`
	FrameDuration   int      `yaml:"frame_duration_ms"`
	SystemGain      float64  `yaml:"system_gain"`
	MaxLag          int      `yaml:"max_lag_ms"`
	ProbeTimeout    float64  `yaml:"probe_timeout"` // seconds
	FFmpegPath      string   `yaml:"ffmpeg_path"`
	MicrophoneInput []string `yaml:"microphone_input"`
	LoopbackInput   []string `yaml:"loopback_input"`
	DeviceIndex     int      `yaml:"device_index"` // portaudio input device, -1 for default
}

// SegmentsConfig controls the boundary interval
type SegmentsConfig struct {
	Interval int `yaml:"interval"` // seconds
}

// Bounds of the submission schedule
const (
	maxInitialBackoff = 10    // seconds
	maxBackoffCeiling = 60    // seconds
	minWaitFloorMs    = 15000 // milliseconds
)

// TranscriptionConfig contains transcription API and retry configuration
type TranscriptionConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	Timeout        int    `yaml:"timeout"` // seconds
	MaxAttempts    int    `yaml:"max_attempts"`
	InitialBackoff int    `yaml:"initial_backoff"` // seconds
	MaxBackoff     int    `yaml:"max_backoff"`     // seconds
	DefaultWaitMs  int    `yaml:"default_wait_ms"`
	MinWaitMs      int    `yaml:"min_wait_ms"`
	Ordering       string `yaml:"ordering"` // "completion" or "sequential"
}

// KeepAwakeConfig selects the keep-awake lease backends
type KeepAwakeConfig struct {
	Enabled        bool     `yaml:"enabled"`
	InhibitCommand []string `yaml:"inhibit_command"`
	PlayerCommand  []string `yaml:"player_command"`
}

// SummaryConfig contains the downstream summary collaborator configuration
type SummaryConfig struct {
	AutoSummarize bool   `yaml:"auto_summarize"`
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	MaxTokens     int    `yaml:"max_tokens"`
	Prompt        string `yaml:"prompt"`
	Timeout       int    `yaml:"timeout"` // seconds
}

// SessionsConfig contains session manager limits
type SessionsConfig struct {
	MaxActive int `yaml:"max_active"`
	Retention int `yaml:"retention"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration that validates once the transcription
// endpoint and API key are filled in.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:    8787,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Capture: CaptureConfig{
			Backend:         "ffmpeg",
			SampleRate:      16000,
			FrameDuration:   100,
			SystemGain:      1.0,
			MaxLag:          1000,
			ProbeTimeout:    3,
			FFmpegPath:      "ffmpeg",
			MicrophoneInput: defaultMicrophoneInput(),
			LoopbackInput:   defaultLoopbackInput(),
			DeviceIndex:     -1,
		},
		Segments: SegmentsConfig{
			Interval: 150,
		},
		Transcription: TranscriptionConfig{
			Model:          "whisper-1",
			Timeout:        120,
			MaxAttempts:    5,
			InitialBackoff: 10,
			MaxBackoff:     60,
			DefaultWaitMs:  15000,
			MinWaitMs:      15000,
			Ordering:       "completion",
		},
		KeepAwake: KeepAwakeConfig{
			Enabled:        true,
			InhibitCommand: defaultInhibitCommand(),
			PlayerCommand:  []string{"ffplay", "-nodisp", "-loglevel", "quiet", "-loop", "0"},
		},
		Summary: SummaryConfig{
			Endpoint:  "https://api.anthropic.com/v1/messages",
			Model:     "claude-haiku-4-5",
			MaxTokens: 4096,
			Prompt:    DefaultSummaryPrompt,
			Timeout:   120,
		},
		Sessions: SessionsConfig{
			MaxActive: 1,
			Retention: 3600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Read is Load without validation. The doctor command uses it to report
// problems instead of failing on the first one.
func Read(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEETSCRIBE_TRANSCRIPTION_ENDPOINT"); v != "" {
		cfg.Transcription.Endpoint = v
	}
	if v := os.Getenv("MEETSCRIBE_TRANSCRIPTION_API_KEY"); v != "" {
		cfg.Transcription.APIKey = v
	}
	if v := os.Getenv("MEETSCRIBE_SUMMARY_API_KEY"); v != "" {
		cfg.Summary.APIKey = v
	}
	if v := os.Getenv("MEETSCRIBE_HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("MEETSCRIBE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = port
		}
	}
	if v := os.Getenv("MEETSCRIBE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate performs validation of every configuration section
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Segments.Validate(); err != nil {
		return fmt.Errorf("segments config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.KeepAwake.Validate(); err != nil {
		return fmt.Errorf("keep_awake config: %w", err)
	}

	if err := c.Summary.Validate(); err != nil {
		return fmt.Errorf("summary config: %w", err)
	}

	if err := c.Sessions.Validate(); err != nil {
		return fmt.Errorf("sessions config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates capture configuration
func (a *CaptureConfig) Validate() error {
	if a.Backend != "ffmpeg" && a.Backend != "portaudio" {
		return fmt.Errorf("backend must be 'ffmpeg' or 'portaudio', got '%s'", a.Backend)
	}

	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.FrameDuration < 10 || a.FrameDuration > 1000 {
		return fmt.Errorf("frame_duration_ms must be between 10 and 1000, got %d", a.FrameDuration)
	}

	if a.SystemGain < 0 || a.SystemGain > 4 {
		return fmt.Errorf("system_gain must be between 0 and 4, got %f", a.SystemGain)
	}

	if a.MaxLag < a.FrameDuration {
		return fmt.Errorf("max_lag_ms (%d) must be at least frame_duration_ms (%d)", a.MaxLag, a.FrameDuration)
	}

	if a.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %f", a.ProbeTimeout)
	}

	if a.Backend == "ffmpeg" && a.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty for the ffmpeg backend")
	}

	if len(a.MicrophoneInput) == 0 {
		return fmt.Errorf("microphone_input cannot be empty")
	}

	return nil
}

// Validate validates segment boundary configuration
func (s *SegmentsConfig) Validate() error {
	if s.Interval < 10 {
		return fmt.Errorf("interval must be at least 10 seconds, got %d", s.Interval)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxAttempts < 1 || t.MaxAttempts > 5 {
		return fmt.Errorf("max_attempts must be between 1 and 5, got %d", t.MaxAttempts)
	}

	if t.InitialBackoff < 1 || t.InitialBackoff > maxInitialBackoff {
		return fmt.Errorf("initial_backoff must be between 1 and %d seconds, got %d", maxInitialBackoff, t.InitialBackoff)
	}

	if t.MaxBackoff < t.InitialBackoff {
		return fmt.Errorf("max_backoff (%d) must not be less than initial_backoff (%d)", t.MaxBackoff, t.InitialBackoff)
	}

	if t.MaxBackoff > maxBackoffCeiling {
		return fmt.Errorf("max_backoff must be at most %d seconds, got %d", maxBackoffCeiling, t.MaxBackoff)
	}

	if t.DefaultWaitMs < 0 {
		return fmt.Errorf("default_wait_ms cannot be negative")
	}

	if t.MinWaitMs < minWaitFloorMs {
		return fmt.Errorf("min_wait_ms must be at least %d, got %d", minWaitFloorMs, t.MinWaitMs)
	}

	validOrderings := map[string]bool{"completion": true, "sequential": true}
	if !validOrderings[t.Ordering] {
		return fmt.Errorf("ordering must be 'completion' or 'sequential', got '%s'", t.Ordering)
	}

	return nil
}

// Validate validates keep-awake configuration
func (k *KeepAwakeConfig) Validate() error {
	if k.Enabled && len(k.InhibitCommand) == 0 && len(k.PlayerCommand) == 0 {
		return fmt.Errorf("at least one of inhibit_command or player_command is required when enabled")
	}

	return nil
}

// Validate validates summary configuration
func (s *SummaryConfig) Validate() error {
	if !s.AutoSummarize {
		return nil
	}

	if s.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when auto_summarize is set")
	}

	if s.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty when auto_summarize is set")
	}

	if s.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", s.MaxTokens)
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	return nil
}

// Validate validates session manager configuration
func (s *SessionsConfig) Validate() error {
	if s.MaxActive < 1 {
		return fmt.Errorf("max_active must be at least 1, got %d", s.MaxActive)
	}

	if s.Retention < 0 {
		return fmt.Errorf("retention cannot be negative, got %d", s.Retention)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetFrameSamples returns the number of samples in one capture frame
func (a *CaptureConfig) GetFrameSamples() int {
	return a.SampleRate * a.FrameDuration / 1000
}

// GetMaxLagSamples returns the mixer lag tolerance in samples
func (a *CaptureConfig) GetMaxLagSamples() int {
	return a.SampleRate * a.MaxLag / 1000
}

// GetProbeTimeoutDuration returns the device probe timeout as a time.Duration
func (a *CaptureConfig) GetProbeTimeoutDuration() time.Duration {
	return time.Duration(a.ProbeTimeout * float64(time.Second))
}

// GetIntervalDuration returns the segment boundary interval as a time.Duration
func (s *SegmentsConfig) GetIntervalDuration() time.Duration {
	return time.Duration(s.Interval) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetInitialBackoffDuration returns the first retry delay as a time.Duration
func (t *TranscriptionConfig) GetInitialBackoffDuration() time.Duration {
	return time.Duration(t.InitialBackoff) * time.Second
}

// GetMaxBackoffDuration returns the retry delay ceiling as a time.Duration
func (t *TranscriptionConfig) GetMaxBackoffDuration() time.Duration {
	return time.Duration(t.MaxBackoff) * time.Second
}

// GetDefaultWaitDuration returns the initial recommended wait as a time.Duration
func (t *TranscriptionConfig) GetDefaultWaitDuration() time.Duration {
	return time.Duration(t.DefaultWaitMs) * time.Millisecond
}

// GetMinWaitDuration returns the inter-segment throttle floor as a time.Duration
func (t *TranscriptionConfig) GetMinWaitDuration() time.Duration {
	return time.Duration(t.MinWaitMs) * time.Millisecond
}

// GetTimeoutDuration returns the summary call timeout as a time.Duration
func (s *SummaryConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetRetentionDuration returns how long finished sessions stay queryable
func (s *SessionsConfig) GetRetentionDuration() time.Duration {
	return time.Duration(s.Retention) * time.Second
}

func defaultMicrophoneInput() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"-f", "avfoundation", "-i", ":default"}
	case "windows":
		return []string{"-f", "dshow", "-i", "audio=default"}
	default:
		return []string{"-f", "pulse", "-i", "default"}
	}
}

func defaultLoopbackInput() []string {
	switch runtime.GOOS {
	case "darwin":
		// Requires a loopback driver such as BlackHole 2ch.
		return []string{"-f", "avfoundation", "-i", ":BlackHole 2ch"}
	case "windows":
		return []string{"-f", "dshow", "-i", "audio=virtual-audio-capturer"}
	default:
		return []string{"-f", "pulse", "-i", "@DEFAULT_MONITOR@"}
	}
}

func defaultInhibitCommand() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"caffeinate", "-dims"}
	case "windows":
		return nil
	default:
		return []string{"systemd-inhibit", "--what=idle:sleep", "--who=meetscribe",
			"--why=Meeting recording in progress", "--mode=block", "sleep", "infinity"}
	}
}
