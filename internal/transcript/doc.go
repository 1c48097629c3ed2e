// Package transcript assembles transcribed segment text into the growing
// session transcript.
package transcript
