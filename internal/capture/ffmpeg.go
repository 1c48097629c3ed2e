package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/meetscribe/internal/audio"
	"github.com/skypro1111/meetscribe/internal/config"
)

const stderrTail = 512

// FFmpegAcquirer opens device streams by running ffmpeg with the configured
// per-platform input arguments and reading raw PCM from its stdout.
type FFmpegAcquirer struct {
	path            string
	microphoneInput []string
	loopbackInput   []string
	sampleRate      int
	frameSamples    int
	probeTimeout    time.Duration
	logger          *slog.Logger
}

// NewFFmpegAcquirer creates an ffmpeg-backed acquirer
func NewFFmpegAcquirer(cfg config.CaptureConfig, logger *slog.Logger) *FFmpegAcquirer {
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegAcquirer{
		path:            path,
		microphoneInput: cfg.MicrophoneInput,
		loopbackInput:   cfg.LoopbackInput,
		sampleRate:      cfg.SampleRate,
		frameSamples:    cfg.GetFrameSamples(),
		probeTimeout:    cfg.GetProbeTimeoutDuration(),
		logger:          logger,
	}
}

// Microphone opens the microphone input
func (a *FFmpegAcquirer) Microphone(ctx context.Context) (Stream, error) {
	return a.open(ctx, "microphone", a.microphoneInput)
}

// Loopback opens the system audio input
func (a *FFmpegAcquirer) Loopback(ctx context.Context) (Stream, error) {
	return a.open(ctx, "loopback", a.loopbackInput)
}

// FFmpegArgs builds the ffmpeg command line for an input. Video is discarded
// and audio is resampled to mono s16le on stdout.
func FFmpegArgs(input []string, sampleRate int) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, input...)
	args = append(args,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	return args
}

func (a *FFmpegAcquirer) open(ctx context.Context, name string, input []string) (Stream, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("no ffmpeg input configured for %s", name)
	}

	// The device outlives the request that opened it; Close stops the process.
	cmd := exec.Command(a.path, FFmpegArgs(input, a.sampleRate)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	s := &ffmpegStream{
		name:   name,
		cmd:    cmd,
		frames: make(chan []int16, outputBuffer),
		closed: make(chan struct{}),
		exited: make(chan struct{}),
		logger: a.logger,
	}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg for %s: %w", name, err)
	}

	probed := make(chan struct{})
	go s.read(stdout, a.frameSamples*2, probed)

	timer := time.NewTimer(a.probeTimeout)
	defer timer.Stop()

	select {
	case <-probed:
		s.tracks = []Track{&ffmpegTrack{stream: s, label: strings.Join(input, " ")}}
	case <-s.exited:
		select {
		case <-probed:
			s.tracks = []Track{&ffmpegTrack{stream: s, label: strings.Join(input, " ")}}
		default:
			return nil, fmt.Errorf("ffmpeg %s input exited: %s", name, s.stderrTail())
		}
	case <-timer.C:
		a.logger.Warn("No audio from ffmpeg input within probe timeout",
			slog.String("source", name),
			slog.Duration("probe_timeout", a.probeTimeout))
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	a.logger.Debug("ffmpeg input opened",
		slog.String("source", name),
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("audio_tracks", len(s.tracks)))

	return s, nil
}

type ffmpegStream struct {
	name   string
	cmd    *exec.Cmd
	frames chan []int16
	tracks []Track
	stderr bytes.Buffer

	closed    chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	waitErr   error

	logger *slog.Logger
}

func (s *ffmpegStream) AudioTracks() []Track   { return s.tracks }
func (s *ffmpegStream) VideoTracks() []Track   { return nil }
func (s *ffmpegStream) Frames() <-chan []int16 { return s.frames }

// Close kills the ffmpeg process and waits for it to exit
func (s *ffmpegStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		select {
		case <-s.exited:
			return
		default:
		}
		if kerr := s.cmd.Process.Kill(); kerr != nil {
			err = fmt.Errorf("kill ffmpeg %s: %w", s.name, kerr)
		}
		<-s.exited
	})
	return err
}

func (s *ffmpegStream) read(stdout io.Reader, frameBytes int, probed chan struct{}) {
	defer close(s.frames)
	defer close(s.exited)

	buf := make([]byte, frameBytes)
	first := true
	for {
		n, err := io.ReadFull(stdout, buf)
		if n >= 2 {
			if first {
				close(probed)
				first = false
			}
			select {
			case s.frames <- audio.BytesToSamples(buf[:n]):
			case <-s.closed:
				s.wait()
				return
			}
		}
		if err != nil {
			s.wait()
			return
		}
	}
}

// wait reaps the process once stdout reads are done
func (s *ffmpegStream) wait() {
	s.waitErr = s.cmd.Wait()
	select {
	case <-s.closed:
	default:
		s.logger.Info("ffmpeg input ended",
			slog.String("source", s.name),
			slog.Any("exit", s.waitErr))
	}
}

func (s *ffmpegStream) stderrTail() string {
	out := strings.TrimSpace(s.stderr.String())
	if len(out) > stderrTail {
		out = out[len(out)-stderrTail:]
	}
	if out == "" {
		out = "no output"
	}
	return out
}

type ffmpegTrack struct {
	stream *ffmpegStream
	label  string
}

func (t *ffmpegTrack) Kind() TrackKind { return TrackAudio }
func (t *ffmpegTrack) Label() string   { return t.label }
func (t *ffmpegTrack) Stop() error     { return t.stream.Close() }
