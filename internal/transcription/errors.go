package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrRetriesExhausted is returned when every allowed attempt failed
	ErrRetriesExhausted = errors.New("transcription retries exhausted")

	// ErrEmptyPayload is returned for segments without audio
	ErrEmptyPayload = errors.New("segment has no audio payload")
)

// Class is the retry classification of a submission error
type Class string

const (
	ClassRetryable Class = "retryable"
	ClassFatal     Class = "fatal"
	ClassCanceled  Class = "canceled"
)

// StatusError is a non-2xx response from the transcription service
type StatusError struct {
	StatusCode      int
	Body            string
	RecommendedWait time.Duration
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, body)
}

// MalformedResponseError is a 2xx response whose body could not be parsed
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed transcription response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Classify decides whether a failed attempt may be retried. Timeouts,
// network faults, 5xx, 408, 429 and unparseable success bodies are
// transient; other 4xx, bad payloads and caller cancellation are not.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}

	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}

	if errors.Is(err, ErrEmptyPayload) {
		return ClassFatal
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode >= 500:
			return ClassRetryable
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests:
			return ClassRetryable
		default:
			return ClassFatal
		}
	}

	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return ClassRetryable
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return ClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassRetryable
	}

	return ClassFatal
}

// IsRetryable reports whether err is transient
func IsRetryable(err error) bool {
	return Classify(err) == ClassRetryable
}

// HintFrom extracts a recommended wait carried by an error
func HintFrom(err error) (time.Duration, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RecommendedWait > 0 {
		return statusErr.RecommendedWait, true
	}
	return 0, false
}
