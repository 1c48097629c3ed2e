package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMuteUnsupported is returned when muting outside mixed mode
	ErrMuteUnsupported = errors.New("microphone mute is only supported in mixed mode")

	// ErrNoAudioTrack is returned when an acquired stream carries no audio
	ErrNoAudioTrack = errors.New("stream has no audio track")

	// ErrAlreadyStarted is returned when starting a manager twice
	ErrAlreadyStarted = errors.New("capture already started")

	// ErrNotStarted is returned by operations that need an active capture
	ErrNotStarted = errors.New("capture not started")

	// ErrBackendUnavailable is returned when the configured backend is not compiled in
	ErrBackendUnavailable = errors.New("capture backend unavailable")
)

// Mode selects which sources a session records
type Mode string

const (
	ModeMicrophone Mode = "microphone"
	ModeMixed      Mode = "mixed"
)

// ParseMode parses a capture mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMicrophone, "mic", "":
		return ModeMicrophone, nil
	case ModeMixed:
		return ModeMixed, nil
	default:
		return "", fmt.Errorf("unknown capture mode %q (use microphone or mixed)", s)
	}
}

// TrackKind is the media kind of a device track
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is a single media track of an acquired stream
type Track interface {
	Kind() TrackKind
	Label() string
	Stop() error
}

// Stream is an acquired device stream. Frames delivers mono PCM-16 frames
// and is closed when the device stream ends.
type Stream interface {
	AudioTracks() []Track
	VideoTracks() []Track
	Frames() <-chan []int16
	Close() error
}

// Acquirer opens device streams. Acquisition may be denied by the host or
// yield a stream without audio.
type Acquirer interface {
	Microphone(ctx context.Context) (Stream, error)
	Loopback(ctx context.Context) (Stream, error)
}
