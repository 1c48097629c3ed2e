//go:build portaudio

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/meetscribe/internal/config"
)

const portAudioCompiled = true

// PortAudioAcquirer reads the microphone through PortAudio. System audio
// has no portable PortAudio source, so loopback goes through ffmpeg.
type PortAudioAcquirer struct {
	deviceIndex  int
	sampleRate   int
	frameSamples int
	loopback     *FFmpegAcquirer
	logger       *slog.Logger
}

func newPortAudioAcquirer(cfg config.CaptureConfig, logger *slog.Logger) (Acquirer, error) {
	return &PortAudioAcquirer{
		deviceIndex:  cfg.DeviceIndex,
		sampleRate:   cfg.SampleRate,
		frameSamples: cfg.GetFrameSamples(),
		loopback:     NewFFmpegAcquirer(cfg, logger),
		logger:       logger,
	}, nil
}

// Microphone opens the configured input device
func (a *PortAudioAcquirer) Microphone(ctx context.Context) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	var device *portaudio.DeviceInfo
	var err error
	if a.deviceIndex >= 0 {
		devices, derr := portaudio.Devices()
		if derr != nil {
			portaudio.Terminate()
			return nil, fmt.Errorf("list devices: %w", derr)
		}
		if a.deviceIndex >= len(devices) {
			portaudio.Terminate()
			return nil, fmt.Errorf("device index %d out of range", a.deviceIndex)
		}
		device = devices[a.deviceIndex]
	} else {
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			portaudio.Terminate()
			return nil, fmt.Errorf("default input device: %w", err)
		}
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(a.sampleRate)
	params.FramesPerBuffer = a.frameSamples

	buffer := make([]int16, a.frameSamples)
	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	s := &portAudioStream{
		stream: stream,
		frames: make(chan []int16, outputBuffer),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		logger: a.logger,
	}
	s.track = &portAudioTrack{stream: s, label: device.Name}
	go s.read(buffer)

	a.logger.Info("PortAudio input opened",
		slog.String("device", device.Name),
		slog.Int("sample_rate", a.sampleRate))

	return s, nil
}

// Loopback opens system audio through ffmpeg
func (a *PortAudioAcquirer) Loopback(ctx context.Context) (Stream, error) {
	return a.loopback.Loopback(ctx)
}

type portAudioStream struct {
	stream *portaudio.Stream
	track  *portAudioTrack
	frames chan []int16

	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	logger *slog.Logger
}

func (s *portAudioStream) AudioTracks() []Track   { return []Track{s.track} }
func (s *portAudioStream) VideoTracks() []Track   { return nil }
func (s *portAudioStream) Frames() <-chan []int16 { return s.frames }

func (s *portAudioStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		<-s.done
		if serr := s.stream.Stop(); serr != nil {
			err = fmt.Errorf("stop portaudio stream: %w", serr)
		}
		s.stream.Close()
		portaudio.Terminate()
	})
	return err
}

func (s *portAudioStream) read(buffer []int16) {
	defer close(s.done)
	defer close(s.frames)

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			s.logger.Warn("PortAudio read failed", slog.String("error", err.Error()))
			return
		}

		frame := make([]int16, len(buffer))
		copy(frame, buffer)

		select {
		case s.frames <- frame:
		case <-s.closed:
			return
		}
	}
}

type portAudioTrack struct {
	stream *portAudioStream
	label  string
}

func (t *portAudioTrack) Kind() TrackKind { return TrackAudio }
func (t *portAudioTrack) Label() string   { return t.label }
func (t *portAudioTrack) Stop() error     { return t.stream.Close() }
