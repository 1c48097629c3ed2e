package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd(&Dependencies{})

	for _, name := range []string{"serve", "record", "doctor"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected %s command, got %v", name, err)
		}
	}

	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("Expected persistent --config flag")
	}
}

func TestDoctorReportsMissingKey(t *testing.T) {
	t.Setenv("MEETSCRIBE_TRANSCRIPTION_API_KEY", "")
	t.Setenv("MEETSCRIBE_TRANSCRIPTION_ENDPOINT", "")

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
capture:
  ffmpeg_path: "definitely-not-ffmpeg"
keep_awake:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	var out bytes.Buffer
	root := NewRootCmd(&Dependencies{Stdout: &out, Stderr: &out})
	root.SetArgs([]string{"doctor", "--config", configPath})

	if err := root.Execute(); err != nil {
		t.Fatalf("Doctor failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"❌ ffmpeg: definitely-not-ffmpeg not found",
		"❌ Transcription API key",
		"✅ Keep-awake: disabled",
		"Some prerequisites are missing",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, got)
		}
	}
}

func TestDoctorWithUnreadableConfig(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd(&Dependencies{Stdout: &out, Stderr: &out})
	root.SetArgs([]string{"doctor", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	if err := root.Execute(); err != nil {
		t.Fatalf("Doctor failed: %v", err)
	}
	if !strings.Contains(out.String(), "❌ Config file") {
		t.Errorf("Expected config file failure, got:\n%s", out.String())
	}
}

func TestRecordRejectsUnknownMode(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd(&Dependencies{Stdout: &out, Stderr: &out})
	root.SetArgs([]string{"record", "--mode", "stereo"})

	if err := root.Execute(); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestWriteTranscript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "meeting")

	if err := writeTranscript(dir, "[segment 1]\nhello"); err != nil {
		t.Fatalf("Failed to write transcript: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "transcript.md"))
	if err != nil {
		t.Fatalf("Failed to read transcript: %v", err)
	}
	if string(data) != "# Meeting Transcript\n\n[segment 1]\nhello\n" {
		t.Errorf("Unexpected transcript file %q", data)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 42 * time.Second, want: "42s"},
		{in: 2*time.Minute + 30*time.Second, want: "2m 30s"},
		{in: time.Hour + 5*time.Minute + 1500*time.Millisecond, want: "1h 5m 2s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
