package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skypro1111/meetscribe/internal/config"
)

type fakeTrack struct {
	kind  TrackKind
	label string
	stops atomic.Int32
}

func (t *fakeTrack) Kind() TrackKind { return t.kind }
func (t *fakeTrack) Label() string   { return t.label }
func (t *fakeTrack) Stop() error {
	t.stops.Add(1)
	return nil
}

func (t *fakeTrack) stopped() bool {
	return t.stops.Load() > 0
}

type fakeStream struct {
	audio  []*fakeTrack
	video  []*fakeTrack
	frames chan []int16
	closed atomic.Bool
}

func newFakeStream(label string, audioTracks, videoTracks int) *fakeStream {
	s := &fakeStream{frames: make(chan []int16, 16)}
	for i := 0; i < audioTracks; i++ {
		s.audio = append(s.audio, &fakeTrack{kind: TrackAudio, label: label})
	}
	for i := 0; i < videoTracks; i++ {
		s.video = append(s.video, &fakeTrack{kind: TrackVideo, label: label})
	}
	return s
}

func (s *fakeStream) AudioTracks() []Track {
	tracks := make([]Track, len(s.audio))
	for i, t := range s.audio {
		tracks[i] = t
	}
	return tracks
}

func (s *fakeStream) VideoTracks() []Track {
	tracks := make([]Track, len(s.video))
	for i, t := range s.video {
		tracks[i] = t
	}
	return tracks
}

func (s *fakeStream) Frames() <-chan []int16 { return s.frames }

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeStream) allStopped() bool {
	for _, t := range s.audio {
		if !t.stopped() {
			return false
		}
	}
	for _, t := range s.video {
		if !t.stopped() {
			return false
		}
	}
	return s.closed.Load()
}

type fakeAcquirer struct {
	mu          sync.Mutex
	mic         *fakeStream
	loopback    *fakeStream
	micErr      error
	loopbackErr error
	loopbackReq int
}

func (a *fakeAcquirer) Microphone(ctx context.Context) (Stream, error) {
	if a.micErr != nil {
		return nil, a.micErr
	}
	return a.mic, nil
}

func (a *fakeAcquirer) Loopback(ctx context.Context) (Stream, error) {
	a.mu.Lock()
	a.loopbackReq++
	a.mu.Unlock()
	if a.loopbackErr != nil {
		return nil, a.loopbackErr
	}
	return a.loopback, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCaptureConfig() config.CaptureConfig {
	return config.CaptureConfig{
		Backend:       "ffmpeg",
		SampleRate:    16000,
		FrameDuration: 100,
		SystemGain:    1.0,
		MaxLag:        1000,
		ProbeTimeout:  1,
	}
}

func readFrame(t *testing.T, m *Manager) []int16 {
	t.Helper()
	select {
	case frame, ok := <-m.Frames():
		if !ok {
			t.Fatal("Frames channel closed unexpectedly")
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for frame")
	}
	return nil
}

func expectClosed(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-m.Frames():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Expected frames channel to be closed")
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
		wantErr  bool
	}{
		{"microphone", ModeMicrophone, false},
		{"mic", ModeMicrophone, false},
		{"", ModeMicrophone, false},
		{"MIXED", ModeMixed, false},
		{" mixed ", ModeMixed, false},
		{"screen", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q): unexpected error state: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseMode(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestMicrophoneModeForwardsFrames(t *testing.T) {
	mic := newFakeStream("mic", 1, 0)
	acq := &fakeAcquirer{mic: mic}
	m := NewManager(testCaptureConfig(), acq, testLogger())

	if err := m.Start(context.Background(), ModeMicrophone); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if acq.loopbackReq != 0 {
		t.Errorf("Expected no loopback acquisition in microphone mode, got %d", acq.loopbackReq)
	}

	if m.Graph() != nil {
		t.Error("Expected no audio graph in microphone mode")
	}

	mic.frames <- []int16{1, 2, 3}
	frame := readFrame(t, m)
	if len(frame) != 3 || frame[2] != 3 {
		t.Errorf("Expected forwarded frame [1 2 3], got %v", frame)
	}

	if err := m.SetMicrophoneMuted(true); !errors.Is(err, ErrMuteUnsupported) {
		t.Errorf("Expected ErrMuteUnsupported, got %v", err)
	}
}

func TestMixedModeStopsVideoAndMixes(t *testing.T) {
	mic := newFakeStream("mic", 1, 0)
	loopback := newFakeStream("screen", 1, 2)
	m := NewManager(testCaptureConfig(), &fakeAcquirer{mic: mic, loopback: loopback}, testLogger())

	if err := m.Start(context.Background(), ModeMixed); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	for i, track := range loopback.video {
		if !track.stopped() {
			t.Errorf("Expected video track %d to be stopped at start", i)
		}
	}
	if loopback.audio[0].stopped() {
		t.Error("Expected loopback audio track to keep running")
	}

	g := m.Graph()
	if g == nil {
		t.Fatal("Expected audio graph in mixed mode")
	}
	if g.Microphone != Stream(mic) || g.Loopback != Stream(loopback) {
		t.Error("Expected graph to own both device streams")
	}

	loopback.frames <- []int16{100, 100}
	mic.frames <- []int16{10, 10}

	frame := readFrame(t, m)
	if len(frame) != 2 || frame[0] != 110 || frame[1] != 110 {
		t.Errorf("Expected mixed frame [110 110], got %v", frame)
	}
}

func TestMixedModeMuteOnlyChangesGain(t *testing.T) {
	mic := newFakeStream("mic", 1, 0)
	loopback := newFakeStream("screen", 1, 0)
	m := NewManager(testCaptureConfig(), &fakeAcquirer{mic: mic, loopback: loopback}, testLogger())

	if err := m.Start(context.Background(), ModeMixed); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if err := m.SetMicrophoneMuted(true); err != nil {
		t.Fatalf("SetMicrophoneMuted failed: %v", err)
	}

	g := m.Graph()
	if g.MicGain.Value() != 0 {
		t.Errorf("Expected microphone gain 0, got %f", g.MicGain.Value())
	}
	if g.SystemGain.Value() != 1 {
		t.Errorf("Expected system gain unchanged at 1, got %f", g.SystemGain.Value())
	}
	if mic.audio[0].stopped() || mic.closed.Load() {
		t.Error("Expected microphone source to stay active while muted")
	}
	if !m.Stats().Muted {
		t.Error("Expected stats to report muted")
	}

	loopback.frames <- []int16{100}
	mic.frames <- []int16{5000}
	if frame := readFrame(t, m); frame[0] != 100 {
		t.Errorf("Expected muted microphone to contribute nothing, got %v", frame)
	}

	if err := m.SetMicrophoneMuted(false); err != nil {
		t.Fatalf("SetMicrophoneMuted failed: %v", err)
	}

	loopback.frames <- []int16{100}
	mic.frames <- []int16{50}
	if frame := readFrame(t, m); frame[0] != 150 {
		t.Errorf("Expected unmuted mix 150, got %v", frame)
	}
}

func TestMixedModeRejectsLoopbackWithoutAudio(t *testing.T) {
	mic := newFakeStream("mic", 1, 0)
	loopback := newFakeStream("screen", 0, 1)
	m := NewManager(testCaptureConfig(), &fakeAcquirer{mic: mic, loopback: loopback}, testLogger())

	err := m.Start(context.Background(), ModeMixed)
	if !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("Expected ErrNoAudioTrack, got %v", err)
	}

	if !mic.allStopped() {
		t.Error("Expected microphone to be released")
	}
	if !loopback.allStopped() {
		t.Error("Expected loopback stream to be released")
	}
	if m.Graph() != nil {
		t.Error("Expected no graph after rejected start")
	}
}

func TestMixedModeLoopbackDenied(t *testing.T) {
	mic := newFakeStream("mic", 1, 0)
	denied := errors.New("permission denied")
	m := NewManager(testCaptureConfig(), &fakeAcquirer{mic: mic, loopbackErr: denied}, testLogger())

	err := m.Start(context.Background(), ModeMixed)
	if !errors.Is(err, denied) {
		t.Fatalf("Expected wrapped permission error, got %v", err)
	}
	if !mic.allStopped() {
		t.Error("Expected microphone to be released after loopback denial")
	}
}

func TestMicrophoneDenied(t *testing.T) {
	denied := errors.New("permission denied")
	m := NewManager(testCaptureConfig(), &fakeAcquirer{micErr: denied}, testLogger())

	if err := m.Start(context.Background(), ModeMicrophone); !errors.Is(err, denied) {
		t.Fatalf("Expected wrapped permission error, got %v", err)
	}

	if err := m.Stop(); err != nil {
		t.Errorf("Expected Stop after failed start to succeed, got %v", err)
	}
	expectClosed(t, m)
}

func TestStopReleasesEverythingOnce(t *testing.T) {
	mic := newFakeStream("mic", 1, 0)
	loopback := newFakeStream("screen", 1, 1)
	m := NewManager(testCaptureConfig(), &fakeAcquirer{mic: mic, loopback: loopback}, testLogger())

	if err := m.Start(context.Background(), ModeMixed); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}

	if !mic.allStopped() || !loopback.allStopped() {
		t.Error("Expected all device tracks to be stopped")
	}
	if got := mic.audio[0].stops.Load(); got != 1 {
		t.Errorf("Expected microphone track stopped once, got %d", got)
	}
	if m.Graph() != nil {
		t.Error("Expected graph to be released")
	}

	expectClosed(t, m)

	if err := m.SetMicrophoneMuted(true); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Expected ErrNotStarted after stop, got %v", err)
	}
}

func TestStartTwice(t *testing.T) {
	mic := newFakeStream("mic", 1, 0)
	m := NewManager(testCaptureConfig(), &fakeAcquirer{mic: mic}, testLogger())

	if err := m.Start(context.Background(), ModeMicrophone); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if err := m.Start(context.Background(), ModeMicrophone); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
}

func TestSourceEndedClosesFrames(t *testing.T) {
	mic := newFakeStream("mic", 1, 0)
	loopback := newFakeStream("screen", 1, 0)
	m := NewManager(testCaptureConfig(), &fakeAcquirer{mic: mic, loopback: loopback}, testLogger())

	if err := m.Start(context.Background(), ModeMixed); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	loopback.frames <- []int16{7, 7, 7}
	close(loopback.frames)

	frame := readFrame(t, m)
	if len(frame) != 3 || frame[0] != 7 {
		t.Errorf("Expected drained system frame, got %v", frame)
	}

	expectClosed(t, m)
}

func TestMicrophoneWithoutAudioTrack(t *testing.T) {
	mic := newFakeStream("mic", 0, 0)
	m := NewManager(testCaptureConfig(), &fakeAcquirer{mic: mic}, testLogger())

	if err := m.Start(context.Background(), ModeMicrophone); !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("Expected ErrNoAudioTrack, got %v", err)
	}
	if !mic.closed.Load() {
		t.Error("Expected microphone stream to be closed")
	}
}
