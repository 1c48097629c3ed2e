package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skypro1111/meetscribe/internal/audio"
	"github.com/skypro1111/meetscribe/internal/transcription"
)

// run is the session actor. It owns the recorder and is the only goroutine
// that seals segments or changes state out of recording.
func (s *Session) run(ticker Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	frames := s.source.Frames()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				if s.State() == StateRecording {
					s.logger.Warn("Capture source ended, stopping session")
					if s.beginStop(StopSourceEnded) {
						s.teardown()
						return
					}
				}
				continue
			}
			s.mu.Lock()
			if s.state == StateRecording {
				s.recorder.Append(frame)
			}
			s.mu.Unlock()

		case <-ticker.C():
			s.tick()

		case <-s.stopCh:
			if s.State() == StateRecording {
				if s.beginStop(StopManual) {
					s.teardown()
					return
				}
			}

		case number := <-s.resolvedCh:
			s.mu.Lock()
			final := s.state == StateStopping && number == s.finalNumber
			s.mu.Unlock()
			if final {
				s.teardown()
				return
			}

		case reply := <-s.statusCh:
			reply <- s.snapshot()
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.elapsed++
	if s.elapsed%s.intervalTicks != 0 {
		s.mu.Unlock()
		return
	}
	seg, err := s.sealLocked(s.now(), true)
	s.mu.Unlock()

	s.logger.Debug("Segment boundary",
		slog.Int("segment", seg.Number),
		slog.Int("elapsed_seconds", s.elapsed))
	s.handOff(seg, err)
}

// beginStop seals the final segment and enters stopping. It reports whether
// the final segment already resolved, in which case teardown is due now.
func (s *Session) beginStop(reason string) bool {
	s.mu.Lock()
	if reason == StopManual {
		s.manualStopRequested = true
	}
	s.stopReason = reason
	seg, err := s.sealLocked(s.now(), false)
	s.state = StateStopping
	s.finalNumber = seg.Number
	s.mu.Unlock()

	s.logger.Info("Session stopping",
		slog.String("reason", reason),
		slog.Int("final_segment", seg.Number))
	s.publish(Event{Type: EventState, State: StateStopping})

	return s.handOff(seg, err)
}

// sealLocked seals the current recorder and, if armNext, arms the next one
// at the same instant. The returned segment is never nil.
func (s *Session) sealLocked(now time.Time, armNext bool) (*audio.SealedSegment, error) {
	number := s.recorder.Number()
	seg, err := s.recorder.Seal(now)
	if err != nil {
		seg = &audio.SealedSegment{Number: number, EndTime: now, SampleRate: s.sampleRate}
	}

	if entry, ok := s.segments[number]; ok {
		entry.Status = transcription.StatusSubmitted
		sealed := now
		entry.SealedAt = &sealed
		entry.DurationSeconds = seg.Duration.Seconds()
	}

	s.recorder = nil
	if armNext {
		next := number + 1
		s.recorder = audio.NewRecorder(next, s.sampleRate, now)
		s.segments[next] = &Segment{Number: next, Status: transcription.StatusCapturing, StartedAt: now}
	}

	return seg, err
}

// handOff passes a sealed segment to the submitter. Segments that need no
// network call are resolved inline and handOff reports true.
func (s *Session) handOff(seg *audio.SealedSegment, sealErr error) bool {
	s.buffer.Track(seg.Number)
	s.metrics.RecordSegmentSealed(seg.Duration.Seconds(), len(seg.AudioData))
	s.publish(Event{Type: EventSegment, Segment: seg.Number, Status: transcription.StatusSubmitted})

	if sealErr != nil {
		s.apply(transcription.Outcome{
			Number: seg.Number,
			Status: transcription.StatusFailed,
			Err:    fmt.Errorf("seal segment: %w", sealErr),
		})
		return true
	}

	if seg.Empty() {
		s.apply(transcription.Outcome{Number: seg.Number, Status: transcription.StatusDropped})
		return true
	}

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()

		out := s.submitter.Submit(context.Background(), transcription.Segment{
			SessionID: s.id,
			Number:    seg.Number,
			Audio:     seg.AudioData,
			Duration:  seg.Duration,
		})
		s.apply(out)

		select {
		case s.resolvedCh <- out.Number:
		case <-s.done:
		}
	}()

	return false
}

// apply records the resolution of a segment. Fragments of segments that
// resolve after teardown are still appended.
func (s *Session) apply(out transcription.Outcome) {
	text := ""
	if out.Status == transcription.StatusSucceeded {
		text = out.Text
	}
	fragments := s.buffer.Resolve(out.Number, text)

	s.mu.Lock()
	delete(s.segments, out.Number)
	switch out.Status {
	case transcription.StatusSucceeded:
		s.succeeded++
	case transcription.StatusDropped:
		s.dropped++
	case transcription.StatusFailed:
		s.failed++
		msg := "unknown error"
		if out.Err != nil {
			msg = out.Err.Error()
		}
		s.errors = append(s.errors, SegmentError{
			Number:   out.Number,
			Attempts: out.Attempts,
			Error:    msg,
			Time:     s.now(),
		})
	}
	s.mu.Unlock()

	s.metrics.RecordSegmentResolved(string(out.Status))
	s.publish(Event{Type: EventSegment, Segment: out.Number, Status: out.Status, Attempts: out.Attempts})

	for _, f := range fragments {
		s.publish(Event{Type: EventFragment, Segment: f.Segment, Text: f.Text})
	}

	if out.Status == transcription.StatusFailed {
		errMsg := ""
		if out.Err != nil {
			errMsg = out.Err.Error()
		}
		s.logger.Error("Segment failed",
			slog.Int("segment", out.Number),
			slog.Int("attempts", out.Attempts),
			slog.String("error", errMsg))
		s.publish(Event{Type: EventSegmentError, Segment: out.Number, Attempts: out.Attempts, Error: errMsg})
	}
}

// SegmentStatusChanged records a submitted or retrying transition reported
// by the submitter.
func (s *Session) SegmentStatusChanged(number int, status transcription.Status, err error) {
	s.mu.Lock()
	entry, ok := s.segments[number]
	attempts := 0
	if ok {
		entry.Status = status
		entry.Attempts++
		attempts = entry.Attempts
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	ev := Event{Type: EventSegment, Segment: number, Status: status, Attempts: attempts}
	if err != nil {
		ev.Error = err.Error()
	}
	s.publish(ev)
}

func (s *Session) teardown() {
	s.guard.Close()

	now := s.now()
	s.mu.Lock()
	s.state = StateIdle
	s.finished = true
	s.running = false
	s.endedAt = now
	s.recorder = nil
	elapsed := s.elapsed
	reason := s.stopReason
	summarize := s.autoSummarize && s.summarizer != nil && s.startSummaryLocked()
	s.mu.Unlock()

	s.metrics.RecordSessionFinished(float64(elapsed))
	s.logger.Info("Session finished",
		slog.String("reason", reason),
		slog.Int("elapsed_seconds", elapsed),
		slog.Int("fragments", s.buffer.Len()),
		slog.Int("in_flight", s.buffer.InFlightCount()))
	s.publish(Event{Type: EventState, State: StateIdle})

	if summarize {
		s.launchSummary()
	}
}

// flushHeld releases fragments still held by a sequential transcript
func (s *Session) flushHeld() {
	for _, f := range s.buffer.Flush() {
		s.publish(Event{Type: EventFragment, Segment: f.Segment, Text: f.Text})
	}
}
