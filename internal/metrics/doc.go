// Package metrics defines the Prometheus collectors for sessions, segments,
// transcription attempts, keep-awake leases, and the HTTP API.
package metrics
