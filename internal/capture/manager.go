package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/skypro1111/meetscribe/internal/audio"
	"github.com/skypro1111/meetscribe/internal/config"
)

const outputBuffer = 64

// Graph is the mixing graph of a mixed-mode capture. The microphone gain
// node is the only part a live control touches.
type Graph struct {
	Microphone Stream
	Loopback   Stream
	SystemGain *audio.Gain
	MicGain    *audio.Gain

	mixer *audio.Mixer
}

// Stats describes the output of a capture manager
type Stats struct {
	Mode           Mode  `json:"mode"`
	Muted          bool  `json:"muted"`
	FramesEmitted  int64 `json:"frames_emitted"`
	SamplesEmitted int64 `json:"samples_emitted"`
}

// Manager owns the device streams of one recording session
type Manager struct {
	acquirer   Acquirer
	logger     *slog.Logger
	systemGain float64
	maxLag     int

	mu      sync.Mutex
	mode    Mode
	started bool
	stopped bool
	muted   bool
	mic     Stream
	graph   *Graph

	out  chan []int16
	done chan struct{}
	wg   sync.WaitGroup

	framesEmitted  atomic.Int64
	samplesEmitted atomic.Int64
}

// NewManager creates a capture manager for a single session
func NewManager(cfg config.CaptureConfig, acquirer Acquirer, logger *slog.Logger) *Manager {
	return &Manager{
		acquirer:   acquirer,
		logger:     logger,
		systemGain: cfg.SystemGain,
		maxLag:     cfg.GetMaxLagSamples(),
		out:        make(chan []int16, outputBuffer),
		done:       make(chan struct{}),
	}
}

// Start acquires the sources for mode and begins emitting frames. On failure
// every stream acquired so far is released.
func (m *Manager) Start(ctx context.Context, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	if m.stopped {
		return fmt.Errorf("capture manager already stopped")
	}

	mic, err := m.acquirer.Microphone(ctx)
	if err != nil {
		return fmt.Errorf("acquire microphone: %w", err)
	}
	if len(mic.AudioTracks()) == 0 {
		m.release(mic)
		return fmt.Errorf("acquire microphone: %w", ErrNoAudioTrack)
	}

	if mode == ModeMicrophone {
		m.mode = mode
		m.mic = mic
		m.started = true
		m.wg.Add(1)
		go m.pumpMicrophone(mic)

		m.logger.Info("Capture started",
			slog.String("mode", string(mode)),
			slog.Int("audio_tracks", len(mic.AudioTracks())))
		return nil
	}

	loopback, err := m.acquirer.Loopback(ctx)
	if err != nil {
		m.release(mic)
		return fmt.Errorf("acquire system audio: %w", err)
	}

	for _, track := range loopback.VideoTracks() {
		if err := track.Stop(); err != nil {
			m.logger.Warn("Failed to stop video track",
				slog.String("track", track.Label()),
				slog.String("error", err.Error()))
		}
	}

	if len(loopback.AudioTracks()) == 0 {
		m.release(loopback)
		m.release(mic)
		return fmt.Errorf("acquire system audio: %w", ErrNoAudioTrack)
	}

	micGain := audio.NewGain(1)
	systemGain := audio.NewGain(m.systemGain)
	m.graph = &Graph{
		Microphone: mic,
		Loopback:   loopback,
		SystemGain: systemGain,
		MicGain:    micGain,
		mixer:      audio.NewMixer(systemGain, micGain, m.maxLag),
	}
	m.mode = mode
	m.mic = mic
	m.started = true
	m.wg.Add(1)
	go m.pumpMixed(m.graph)

	m.logger.Info("Capture started",
		slog.String("mode", string(mode)),
		slog.Int("loopback_audio_tracks", len(loopback.AudioTracks())),
		slog.Int("loopback_video_tracks_stopped", len(loopback.VideoTracks())))

	return nil
}

// Frames returns the combined output. It is closed when capture stops or a
// source stream ends.
func (m *Manager) Frames() <-chan []int16 {
	return m.out
}

// Mode returns the active capture mode
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Graph returns the mixing graph, or nil outside mixed mode
func (m *Manager) Graph() *Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph
}

// SetMicrophoneMuted changes the microphone branch gain. The system branch
// and every device track keep running.
func (m *Manager) SetMicrophoneMuted(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.stopped {
		return ErrNotStarted
	}

	if m.mode != ModeMixed || m.graph == nil {
		return ErrMuteUnsupported
	}

	if muted {
		m.graph.MicGain.Set(0)
	} else {
		m.graph.MicGain.Set(1)
	}
	m.muted = muted

	m.logger.Debug("Microphone gain changed", slog.Bool("muted", muted))
	return nil
}

// Stats returns output counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Mode:           m.mode,
		Muted:          m.muted,
		FramesEmitted:  m.framesEmitted.Load(),
		SamplesEmitted: m.samplesEmitted.Load(),
	}
}

// Stop stops every device track and releases the graph. Safe to call more
// than once.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.done)

	var errs []error
	if m.graph != nil {
		errs = append(errs, m.release(m.graph.Loopback))
	}
	if m.mic != nil {
		errs = append(errs, m.release(m.mic))
	}
	started := m.started
	m.graph = nil
	m.mic = nil
	m.mu.Unlock()

	m.wg.Wait()
	if !started {
		close(m.out)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}

	m.logger.Info("Capture stopped",
		slog.Int64("frames_emitted", m.framesEmitted.Load()),
		slog.Int64("samples_emitted", m.samplesEmitted.Load()))
	return nil
}

func (m *Manager) release(s Stream) error {
	var errs []error
	for _, track := range s.AudioTracks() {
		errs = append(errs, track.Stop())
	}
	for _, track := range s.VideoTracks() {
		errs = append(errs, track.Stop())
	}
	errs = append(errs, s.Close())
	return errors.Join(errs...)
}

func (m *Manager) pumpMicrophone(mic Stream) {
	defer m.wg.Done()
	defer close(m.out)

	frames := mic.Frames()
	for {
		select {
		case <-m.done:
			return
		case frame, ok := <-frames:
			if !ok {
				m.logger.Info("Microphone stream ended")
				return
			}
			if !m.emit(frame) {
				return
			}
		}
	}
}

// pumpMixed is the only writer of the mixer, so output order follows
// arrival order across both branches.
func (m *Manager) pumpMixed(g *Graph) {
	defer m.wg.Done()
	defer close(m.out)

	micFrames := g.Microphone.Frames()
	systemFrames := g.Loopback.Frames()

	for {
		var out []int16
		select {
		case <-m.done:
			return
		case frame, ok := <-systemFrames:
			if !ok {
				m.logger.Info("System audio stream ended")
				m.emit(g.mixer.Drain())
				return
			}
			out = g.mixer.Push(audio.BranchSystem, frame)
		case frame, ok := <-micFrames:
			if !ok {
				m.logger.Info("Microphone stream ended")
				m.emit(g.mixer.Drain())
				return
			}
			out = g.mixer.Push(audio.BranchMicrophone, frame)
		}

		if len(out) > 0 && !m.emit(out) {
			return
		}
	}
}

func (m *Manager) emit(frame []int16) bool {
	if len(frame) == 0 {
		return true
	}
	select {
	case m.out <- frame:
		m.framesEmitted.Add(1)
		m.samplesEmitted.Add(int64(len(frame)))
		return true
	case <-m.done:
		return false
	}
}
