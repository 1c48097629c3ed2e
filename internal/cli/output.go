package cli

import (
	"fmt"
	"io"
	"time"
)

// Formatter prints user-facing progress for the interactive commands
type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) RecordingStarted(id, mode, keepAwake string) {
	fmt.Fprintf(f.w, "🎙️  Recording started (%s mode, session %s)\n", mode, id)
	if keepAwake != "" {
		fmt.Fprintf(f.w, "☕ Keep-awake: %s\n", keepAwake)
	}
	fmt.Fprintf(f.w, "   Press Ctrl+C to stop.\n\n")
}

func (f *Formatter) RecordingStopped(duration time.Duration) {
	fmt.Fprintf(f.w, "\n⏹️  Recording stopped (%s)\n", formatDuration(duration))
}

func (f *Formatter) Fragment(segment int, text string) {
	fmt.Fprintf(f.w, "[segment %d]\n%s\n\n", segment, text)
}

func (f *Formatter) SegmentFailed(segment, attempts int, msg string) {
	fmt.Fprintf(f.w, "❌ Segment %d failed after %d attempts: %s\n", segment, attempts, msg)
}

func (f *Formatter) WaitingForSegments(n int) {
	fmt.Fprintf(f.w, "⏳ Waiting for %d earlier segment(s) to finish...\n", n)
}

func (f *Formatter) TranscriptSaved(path string) {
	fmt.Fprintf(f.w, "✅ Transcript saved: %s\n", path)
}

func (f *Formatter) Summarizing() {
	fmt.Fprintf(f.w, "🤖 Generating summary...\n")
}

func (f *Formatter) SummarySaved(path string) {
	fmt.Fprintf(f.w, "✅ Summary saved: %s\n", path)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
