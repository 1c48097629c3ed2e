package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skypro1111/meetscribe/internal/config"
	"github.com/skypro1111/meetscribe/internal/metrics"
)

// Status is the lifecycle state of a segment
type Status string

const (
	StatusCapturing Status = "capturing"
	StatusSubmitted Status = "submitted"
	StatusRetrying  Status = "retrying"
	StatusSucceeded Status = "succeeded"
	StatusDropped   Status = "dropped"
	StatusFailed    Status = "failed"
)

// Resolved reports whether the status is terminal
func (s Status) Resolved() bool {
	return s == StatusSucceeded || s == StatusDropped || s == StatusFailed
}

// Segment is a sealed segment handed to the engine
type Segment struct {
	SessionID string
	Number    int
	Audio     []byte
	Duration  time.Duration
}

// Outcome is the resolution of one segment
type Outcome struct {
	Number   int
	Status   Status
	Text     string
	Attempts int
	Waited   time.Duration
	Elapsed  time.Duration
	Err      error
}

// EngineConfig configures a submission engine
type EngineConfig struct {
	Retry       RetryConfig
	DefaultWait time.Duration
	MinWait     time.Duration
	// Sleep is used for the inter-segment wait and retry backoff.
	Sleep SleepFunc
	// Now is the throttle clock; defaults to time.Now.
	Now func() time.Time
	// OnStatus is called when a segment moves to submitted or retrying.
	OnStatus func(number int, status Status, err error)
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// EngineConfigFrom builds an engine configuration from the transcription section
func EngineConfigFrom(cfg config.TranscriptionConfig) EngineConfig {
	return EngineConfig{
		Retry: RetryConfig{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.GetInitialBackoffDuration(),
			MaxBackoff:     cfg.GetMaxBackoffDuration(),
			RetryIf:        IsRetryable,
		},
		DefaultWait: cfg.GetDefaultWaitDuration(),
		MinWait:     cfg.GetMinWaitDuration(),
	}
}

// Engine submits the segments of one session with throttling and bounded
// retries. Submit is safe for concurrent use.
type Engine struct {
	transcriber Transcriber
	throttle    *Throttle
	retry       RetryConfig
	onStatus    func(number int, status Status, err error)
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewEngine creates a submission engine
func NewEngine(transcriber Transcriber, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retry := cfg.Retry
	if retry.RetryIf == nil {
		retry.RetryIf = IsRetryable
	}
	retry.Sleep = cfg.Sleep

	throttle := NewThrottle(cfg.DefaultWait, cfg.MinWait, cfg.Sleep)
	if cfg.Now != nil {
		throttle.now = cfg.Now
	}

	return &Engine{
		transcriber: transcriber,
		throttle:    throttle,
		retry:       retry,
		onStatus:    cfg.OnStatus,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// Throttle returns the session throttle
func (e *Engine) Throttle() *Throttle {
	return e.throttle
}

// Submit transcribes seg and blocks until its outcome is known. The call is
// detached from ctx cancellation: once handed off, a segment is never
// abandoned mid-flight.
func (e *Engine) Submit(ctx context.Context, seg Segment) Outcome {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	outcome := Outcome{Number: seg.Number}

	if len(seg.Audio) == 0 {
		outcome.Status = StatusDropped
		return outcome
	}

	waited, err := e.throttle.Wait(ctx)
	outcome.Waited = waited
	if waited > 0 {
		e.metrics.RecordThrottleWait(waited.Seconds())
		e.logger.Debug("Throttled segment submission",
			slog.Int("segment", seg.Number),
			slog.Duration("wait", waited))
	}
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = fmt.Errorf("throttle wait: %w", err)
		return outcome
	}

	req := &Request{
		SessionID:     seg.SessionID,
		SegmentNumber: seg.Number,
		Filename:      fmt.Sprintf("%s-segment-%d.wav", seg.SessionID, seg.Number),
		Audio:         seg.Audio,
		Duration:      seg.Duration,
	}

	retry := e.retry
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		e.metrics.RecordTranscriptionRetry()
		e.logger.Warn("Transcription attempt failed, retrying",
			slog.String("session_id", seg.SessionID),
			slog.Int("segment", seg.Number),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))
	}

	resp, attempts, err := Retry(ctx, retry, func(attempt int) (*Response, error) {
		if attempt == 1 {
			e.notify(seg.Number, StatusSubmitted, nil)
		} else {
			e.notify(seg.Number, StatusRetrying, nil)
		}

		e.throttle.Mark()
		e.metrics.RecordTranscriptionRequest()
		attemptStart := time.Now()

		resp, err := e.transcriber.Transcribe(ctx, req)
		if err != nil {
			if hint, ok := HintFrom(err); ok {
				e.observe(hint)
			}
			e.metrics.RecordTranscriptionFailure(string(Classify(err)), time.Since(attemptStart).Seconds())
			return nil, err
		}

		if hint, ok := resp.RecommendedWait(); ok {
			e.observe(hint)
		}
		e.metrics.RecordTranscriptionSuccess(time.Since(attemptStart).Seconds())
		return resp, nil
	})

	outcome.Attempts = attempts
	outcome.Elapsed = time.Since(start)

	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		e.logger.Error("Segment transcription failed",
			slog.String("session_id", seg.SessionID),
			slog.Int("segment", seg.Number),
			slog.Int("attempts", attempts),
			slog.String("class", string(Classify(err))),
			slog.String("error", err.Error()))
		return outcome
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		outcome.Status = StatusDropped
		e.logger.Info("Segment produced no text, dropping",
			slog.String("session_id", seg.SessionID),
			slog.Int("segment", seg.Number))
		return outcome
	}

	outcome.Status = StatusSucceeded
	outcome.Text = text

	e.logger.Info("Segment transcribed",
		slog.String("session_id", seg.SessionID),
		slog.Int("segment", seg.Number),
		slog.Int("attempts", attempts),
		slog.Int("text_length", len(text)),
		slog.Duration("elapsed", outcome.Elapsed))

	return outcome
}

func (e *Engine) observe(hint time.Duration) {
	e.throttle.Observe(hint)
	e.metrics.SetRecommendedWait(hint.Seconds())
}

func (e *Engine) notify(number int, status Status, err error) {
	if e.onStatus != nil {
		e.onStatus(number, status, err)
	}
}
