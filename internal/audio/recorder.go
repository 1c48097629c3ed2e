package audio

import (
	"fmt"
	"time"
)

// SealedSegment is the payload of a capture instance after it stopped
type SealedSegment struct {
	Number     int           `json:"number"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate"`
	Samples    int           `json:"samples"`
	Level      float64       `json:"rms_level"`
	Format     string        `json:"format"`
	AudioData  []byte        `json:"-"` // WAV payload, nil when no audio was captured
}

// Empty reports whether the segment carries no audio
func (s *SealedSegment) Empty() bool {
	return s.Samples == 0
}

// Recorder is a single capture instance: it accumulates PCM for one
// segment from the moment it is armed until it is sealed. It is owned by
// one goroutine and is not safe for concurrent use.
type Recorder struct {
	number     int
	sampleRate int
	startTime  time.Time
	samples    []int16
	sealed     bool
}

// NewRecorder arms a capture instance for the given segment number
func NewRecorder(number, sampleRate int, now time.Time) *Recorder {
	return &Recorder{
		number:     number,
		sampleRate: sampleRate,
		startTime:  now,
		samples:    make([]int16, 0, sampleRate*10),
	}
}

// Number returns the segment number this instance captures
func (r *Recorder) Number() int {
	return r.number
}

// Append adds captured samples
func (r *Recorder) Append(samples []int16) {
	if r.sealed {
		return
	}
	r.samples = append(r.samples, samples...)
}

// Len returns the number of captured samples
func (r *Recorder) Len() int {
	return len(r.samples)
}

// Duration returns the captured audio duration
func (r *Recorder) Duration() time.Duration {
	return SamplesDuration(len(r.samples), r.sampleRate)
}

// Seal stops the instance and encodes its payload
func (r *Recorder) Seal(now time.Time) (*SealedSegment, error) {
	if r.sealed {
		return nil, fmt.Errorf("segment %d already sealed", r.number)
	}
	r.sealed = true

	seg := &SealedSegment{
		Number:     r.number,
		StartTime:  r.startTime,
		EndTime:    now,
		Duration:   r.Duration(),
		SampleRate: r.sampleRate,
		Samples:    len(r.samples),
		Level:      RMS(r.samples),
		Format:     "wav",
	}

	if len(r.samples) > 0 {
		data, err := EncodeWAV(r.samples, r.sampleRate)
		if err != nil {
			return nil, fmt.Errorf("encoding segment %d: %w", r.number, err)
		}
		seg.AudioData = data
	}

	r.samples = nil
	return seg, nil
}
