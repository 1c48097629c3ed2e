// Package audio handles PCM conversion, mixing, and segment payload encoding.
// It provides the gain node and two-branch mixer behind mixed-mode capture,
// the per-segment recorder that accumulates PCM between boundaries, and WAV
// encoding of sealed segments for transcription.
package audio
