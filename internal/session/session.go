package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/skypro1111/meetscribe/internal/audio"
	"github.com/skypro1111/meetscribe/internal/capture"
	"github.com/skypro1111/meetscribe/internal/lifecycle"
	"github.com/skypro1111/meetscribe/internal/metrics"
	"github.com/skypro1111/meetscribe/internal/transcript"
	"github.com/skypro1111/meetscribe/internal/transcription"
)

var (
	ErrNotRecording    = errors.New("session is not recording")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrStillRecording  = errors.New("session is still recording")
	ErrTooManySessions = errors.New("too many active sessions")
	ErrSessionNotFound = errors.New("session not found")
	ErrNoSummarizer    = errors.New("summary collaborator not configured")
	ErrNoSummary       = errors.New("no summary requested for session")
	ErrEmptyTranscript = errors.New("transcript is empty")
)

// State is the recording state of a session
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
)

// Stop reasons
const (
	StopManual      = "manual"
	StopSourceEnded = "source_ended"
)

// SummaryState tracks the downstream summary of a finished session
type SummaryState string

const (
	SummaryNone    SummaryState = "none"
	SummaryPending SummaryState = "pending"
	SummaryReady   SummaryState = "ready"
	SummaryFailed  SummaryState = "failed"
)

// Source is the capture side of a session
type Source interface {
	Start(ctx context.Context, mode capture.Mode) error
	Frames() <-chan []int16
	SetMicrophoneMuted(muted bool) error
	Stop() error
}

// Submitter resolves a sealed segment; it blocks until the outcome is known
type Submitter interface {
	Submit(ctx context.Context, seg transcription.Segment) transcription.Outcome
}

// Summarizer turns a finished transcript into a summary
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Segment is an entry of the live segment table
type Segment struct {
	Number          int                  `json:"number"`
	Status          transcription.Status `json:"status"`
	StartedAt       time.Time            `json:"started_at"`
	SealedAt        *time.Time           `json:"sealed_at,omitempty"`
	DurationSeconds float64              `json:"duration_seconds,omitempty"`
	Attempts        int                  `json:"attempts,omitempty"`
}

// SegmentError records a segment that failed for good
type SegmentError struct {
	Number   int       `json:"number"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
	Time     time.Time `json:"time"`
}

// Status is a point-in-time view of a session
type Status struct {
	ID                  string         `json:"id"`
	Mode                capture.Mode   `json:"mode"`
	State               State          `json:"state"`
	ElapsedSeconds      int            `json:"elapsed_seconds"`
	ManualStopRequested bool           `json:"manual_stop_requested"`
	StopReason          string         `json:"stop_reason,omitempty"`
	CurrentSegment      int            `json:"current_segment,omitempty"`
	Segments            []Segment      `json:"segments"`
	InFlight            []int          `json:"in_flight"`
	Fragments           int            `json:"fragments"`
	Succeeded           int            `json:"succeeded"`
	Dropped             int            `json:"dropped"`
	Failed              int            `json:"failed"`
	Errors              []SegmentError `json:"errors,omitempty"`
	Muted               bool           `json:"muted"`
	KeepAwake           string         `json:"keep_awake,omitempty"`
	StartedAt           *time.Time     `json:"started_at,omitempty"`
	EndedAt             *time.Time     `json:"ended_at,omitempty"`
	StartError          string         `json:"start_error,omitempty"`
	Summary             SummaryState   `json:"summary"`
}

// Options configures a session
type Options struct {
	ID            string
	Mode          capture.Mode
	Interval      time.Duration
	SampleRate    int
	Ordering      transcript.Ordering
	AutoSummarize bool

	Source     Source
	Submitter  Submitter
	Guard      *lifecycle.Guard
	Summarizer Summarizer

	// NewTicker drives the elapsed-time counter; defaults to NewRealTicker.
	NewTicker TickerFunc
	Now       func() time.Time
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Session is one recording session
type Session struct {
	id            string
	mode          capture.Mode
	intervalTicks int
	sampleRate    int
	autoSummarize bool

	source     Source
	submitter  Submitter
	guard      *lifecycle.Guard
	summarizer Summarizer
	newTicker  TickerFunc
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics

	buffer *transcript.Buffer
	events *broadcaster

	stopCh     chan struct{}
	statusCh   chan chan Status
	resolvedCh chan int
	done       chan struct{}
	inFlight   sync.WaitGroup

	mu                  sync.Mutex
	state               State
	started             bool
	running             bool
	finished            bool
	elapsed             int
	manualStopRequested bool
	stopReason          string
	recorder            *audio.Recorder
	finalNumber         int
	segments            map[int]*Segment
	errors              []SegmentError
	succeeded           int
	dropped             int
	failed              int
	startedAt           time.Time
	endedAt             time.Time
	startErr            error
	keepAwake           string
	muted               bool

	summaryState SummaryState
	summary      string
	summaryErr   error
	summaryDone  chan struct{}
}

// New creates an idle session
func New(opts Options) *Session {
	ticks := int(opts.Interval / time.Second)
	if ticks < 1 {
		ticks = 1
	}

	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = NewRealTicker
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("session_id", opts.ID))

	guard := opts.Guard
	if guard == nil {
		guard = lifecycle.NewGuard(nil, logger, opts.Metrics)
	}

	return &Session{
		id:            opts.ID,
		mode:          opts.Mode,
		intervalTicks: ticks,
		sampleRate:    opts.SampleRate,
		autoSummarize: opts.AutoSummarize,
		source:        opts.Source,
		submitter:     opts.Submitter,
		guard:         guard,
		summarizer:    opts.Summarizer,
		newTicker:     newTicker,
		now:           now,
		logger:        logger,
		metrics:       opts.Metrics,
		buffer:        transcript.NewBuffer(opts.Ordering),
		events:        newBroadcaster(),
		stopCh:        make(chan struct{}),
		statusCh:      make(chan chan Status),
		resolvedCh:    make(chan int),
		done:          make(chan struct{}),
		state:         StateIdle,
		segments:      make(map[int]*Segment),
		summaryState:  SummaryNone,
		summaryDone:   make(chan struct{}),
	}
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Mode returns the capture mode
func (s *Session) Mode() capture.Mode { return s.mode }

// Done is closed once the session returned to idle after recording, or
// after a failed start
func (s *Session) Done() <-chan struct{} { return s.done }

// Start acquires the keep-awake lease and the capture source, arms segment
// 1, and starts the elapsed-time counter. If capture cannot be acquired the
// session stays idle and the error is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	backend := s.guard.Acquire(ctx)

	if err := s.source.Start(ctx, s.mode); err != nil {
		s.guard.Close()

		s.mu.Lock()
		s.startErr = err
		s.finished = true
		s.endedAt = s.now()
		s.mu.Unlock()
		close(s.done)

		s.metrics.RecordSessionFailed()
		s.logger.Error("Failed to start capture",
			slog.String("mode", string(s.mode)),
			slog.String("error", err.Error()))
		return fmt.Errorf("start capture: %w", err)
	}
	s.guard.Hold("capture", s.source.Stop)

	now := s.now()
	ticker := s.newTicker(time.Second)

	s.mu.Lock()
	s.state = StateRecording
	s.startedAt = now
	s.keepAwake = backend
	s.recorder = audio.NewRecorder(1, s.sampleRate, now)
	s.segments[1] = &Segment{Number: 1, Status: transcription.StatusCapturing, StartedAt: now}
	s.running = true
	s.mu.Unlock()

	go s.run(ticker)

	s.metrics.RecordSessionStarted()
	s.logger.Info("Session recording",
		slog.String("mode", string(s.mode)),
		slog.Int("interval_seconds", s.intervalTicks),
		slog.String("keep_awake", backend))
	s.publish(Event{Type: EventState, State: StateRecording})

	return nil
}

// Stop requests a manual stop and blocks until teardown finished or ctx is
// done. Stopping a finished session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return ErrNotRecording
	}

	select {
	case s.stopCh <- struct{}{}:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetMicrophoneMuted mutes or unmutes the microphone branch while recording
func (s *Session) SetMicrophoneMuted(muted bool) error {
	if s.State() != StateRecording {
		return ErrNotRecording
	}

	if err := s.source.SetMicrophoneMuted(muted); err != nil {
		return err
	}

	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()

	s.logger.Info("Microphone mute changed", slog.Bool("muted", muted))
	return nil
}

// SetVisible reports a visibility change; a lease revoked while hidden is
// re-acquired if the session is still recording.
func (s *Session) SetVisible(ctx context.Context, visible bool) string {
	backend := s.guard.SetVisible(ctx, visible)

	s.mu.Lock()
	s.keepAwake = backend
	s.mu.Unlock()

	return backend
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Finished reports whether the session reached its terminal idle state
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// EndedAt returns when the session finished, or the zero time
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Status returns a snapshot. While the actor runs the request is served in
// event order, after every event already delivered to it.
func (s *Session) Status() Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if running {
		reply := make(chan Status, 1)
		select {
		case s.statusCh <- reply:
			return <-reply
		case <-s.done:
		}
	}
	return s.snapshot()
}

// Transcript returns the transcript assembled so far
func (s *Session) Transcript() string {
	return s.buffer.String()
}

// Fragments returns the transcript fragments assembled so far
func (s *Session) Fragments() []transcript.Fragment {
	return s.buffer.Fragments()
}

// Subscribe returns a feed of session events and a cancel function
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

// Drain waits for the session to finish and for every earlier in-flight
// segment to resolve, then releases any fragments still held.
func (s *Session) Drain(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	drained := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.flushHeld()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends every event subscription
func (s *Session) Close() {
	s.events.close()
}

func (s *Session) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:                  s.id,
		Mode:                s.mode,
		State:               s.state,
		ElapsedSeconds:      s.elapsed,
		ManualStopRequested: s.manualStopRequested,
		StopReason:          s.stopReason,
		Segments:            make([]Segment, 0, len(s.segments)),
		InFlight:            s.buffer.InFlight(),
		Fragments:           s.buffer.Len(),
		Succeeded:           s.succeeded,
		Dropped:             s.dropped,
		Failed:              s.failed,
		Errors:              slices.Clone(s.errors),
		Muted:               s.muted,
		KeepAwake:           s.keepAwake,
		Summary:             s.summaryState,
	}

	if s.recorder != nil {
		st.CurrentSegment = s.recorder.Number()
	}
	for _, seg := range s.segments {
		st.Segments = append(st.Segments, *seg)
	}
	slices.SortFunc(st.Segments, func(a, b Segment) int { return a.Number - b.Number })

	if !s.startedAt.IsZero() {
		t := s.startedAt
		st.StartedAt = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		st.EndedAt = &t
	}
	if s.startErr != nil {
		st.StartError = s.startErr.Error()
	}

	return st
}

func (s *Session) publish(ev Event) {
	ev.SessionID = s.id
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.events.publish(ev)
}
