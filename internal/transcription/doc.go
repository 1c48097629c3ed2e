// Package transcription submits sealed segments to the remote transcription
// service.
//
// Client performs a single multipart upload. Engine wraps it with the
// per-session throttle (the first submission goes out at once, later ones
// wait at least the service's recommended wait) and a bounded retrier whose
// exponential schedule comes from cenkalti/backoff. Classify separates
// transient failures (timeouts, network faults, 5xx, 408, 429, unparseable
// success bodies) from ones that fail fast.
package transcription
