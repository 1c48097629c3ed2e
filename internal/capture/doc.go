// Package capture acquires audio device streams and combines them into the
// single PCM frame stream a recording session consumes.
//
// A Manager owns the streams of one session. In microphone mode it forwards
// microphone frames as they arrive. In mixed mode it also acquires the system
// loopback stream, drops its video tracks, and mixes both branches through
// an AudioGraph whose microphone gain node backs the mute control.
//
// Device access goes through an Acquirer. The ffmpeg backend is always
// available; the portaudio backend is compiled in with the portaudio build tag.
package capture
