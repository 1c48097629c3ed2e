package transcription

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// MaxAttempts is the hard cap on attempts per segment
const MaxAttempts = 5

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryConfig configures a bounded retry loop
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first.
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
	// RetryIf determines if an error should be retried.
	RetryIf func(error) bool
	// OnRetry is called before each backoff wait.
	OnRetry func(attempt int, err error, backoff time.Duration)
	// Sleep performs the backoff wait; nil uses a timer.
	Sleep SleepFunc
}

// DefaultRetryConfig returns the submission retry policy: five attempts with
// 10s, 20s, 40s and 60s between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    MaxAttempts,
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     60 * time.Second,
		RetryIf:        IsRetryable,
	}
}

// NewBackOff returns the deterministic exponential schedule for cfg
func (cfg RetryConfig) NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Schedule lists the waits before attempts 2..MaxAttempts
func (cfg RetryConfig) Schedule() []time.Duration {
	cfg = cfg.normalized()
	b := cfg.NewBackOff()
	waits := make([]time.Duration, 0, cfg.MaxAttempts-1)
	for i := 1; i < cfg.MaxAttempts; i++ {
		waits = append(waits, b.NextBackOff())
	}
	return waits
}

func (cfg RetryConfig) normalized() RetryConfig {
	if cfg.MaxAttempts <= 0 || cfg.MaxAttempts > MaxAttempts {
		cfg.MaxAttempts = MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 10 * time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = IsRetryable
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	return cfg
}

// Retry runs fn until it succeeds, returns a non-retryable error, or uses up
// MaxAttempts. It returns the result, the number of attempts made, and the
// final error; exhaustion wraps ErrRetriesExhausted around the last error.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(attempt int) (T, error)) (T, int, error) {
	var zero T
	cfg = cfg.normalized()
	b := cfg.NewBackOff()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if !cfg.RetryIf(err) {
			return zero, attempt, err
		}

		// Don't sleep after the last attempt
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := b.NextBackOff()
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		if err := cfg.Sleep(ctx, wait); err != nil {
			return zero, attempt, err
		}
	}

	return zero, cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, cfg.MaxAttempts, lastErr)
}

// Sleep waits for d with context awareness
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
