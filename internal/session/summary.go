package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/skypro1111/meetscribe/internal/transcript"
)

const summaryTimeout = 5 * time.Minute

// RequestSummary starts the summary of a finished session without waiting.
// A summary is produced at most once per session.
func (s *Session) RequestSummary() error {
	if s.summarizer == nil {
		return ErrNoSummarizer
	}

	s.mu.Lock()
	if !s.finished || s.startErr != nil {
		s.mu.Unlock()
		return ErrStillRecording
	}
	start := s.startSummaryLocked()
	s.mu.Unlock()

	if start {
		s.launchSummary()
	}
	return nil
}

// Summarize requests a summary and waits for it
func (s *Session) Summarize(ctx context.Context) (string, error) {
	if err := s.RequestSummary(); err != nil {
		return "", err
	}
	return s.WaitSummary(ctx)
}

// WaitSummary waits for a requested summary
func (s *Session) WaitSummary(ctx context.Context) (string, error) {
	s.mu.Lock()
	state := s.summaryState
	s.mu.Unlock()

	if state == SummaryNone {
		return "", ErrNoSummary
	}

	select {
	case <-s.summaryDone:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, s.summaryErr
}

// Summary returns the summary state, text and error without waiting
func (s *Session) Summary() (SummaryState, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryState, s.summary, s.summaryErr
}

func (s *Session) startSummaryLocked() bool {
	if s.summaryState != SummaryNone {
		return false
	}
	s.summaryState = SummaryPending
	return true
}

// launchSummary runs the summary in the background. A sequential transcript
// holds fragments behind unresolved earlier segments, so it is summarized
// once every segment resolved.
func (s *Session) launchSummary() {
	if s.buffer.Ordering() != transcript.OrderSequential {
		go s.runSummary(s.buffer.String())
		return
	}
	go func() {
		s.inFlight.Wait()
		s.flushHeld()
		s.runSummary(s.buffer.String())
	}()
}

func (s *Session) runSummary(text string) {
	defer close(s.summaryDone)

	var (
		summary string
		err     error
	)
	if strings.TrimSpace(text) == "" {
		err = ErrEmptyTranscript
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
		summary, err = s.summarizer.Summarize(ctx, text)
		cancel()
	}

	s.mu.Lock()
	s.summary = summary
	s.summaryErr = err
	if err != nil {
		s.summaryState = SummaryFailed
	} else {
		s.summaryState = SummaryReady
	}
	s.mu.Unlock()

	ev := Event{Type: EventSummary, Text: summary}
	if err != nil {
		s.metrics.RecordSummary("failed")
		s.logger.Error("Summary failed", slog.String("error", err.Error()))
		ev.Error = err.Error()
	} else {
		s.metrics.RecordSummary("ready")
		s.logger.Info("Summary ready", slog.Int("length", len(summary)))
	}
	s.publish(ev)
}
