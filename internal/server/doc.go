// Package server implements the agent HTTP API. It exposes session control
// (start, stop, mute, visibility), transcripts and summaries, a WebSocket
// feed of session events, and the health, stats and Prometheus endpoints.
package server
