package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/meetscribe/internal/audio"
	"github.com/skypro1111/meetscribe/internal/config"
)

const (
	// FilePlaceholder in a player command is replaced by the media path;
	// without it the path is appended.
	FilePlaceholder = "{file}"

	silenceSampleRate = 16000
	silenceDuration   = 10 * time.Second
	silenceAmplitude  = 2
)

// ErrUnavailable is returned by providers that cannot run on this host
var ErrUnavailable = errors.New("keep-awake backend unavailable")

// Lease is a held keep-awake resource
type Lease interface {
	Backend() string
	// Alive reports false once the host revoked the lease.
	Alive() bool
	Release() error
}

// Provider acquires leases from one backend
type Provider interface {
	Name() string
	// Available probes the host for the backend's prerequisites.
	Available() error
	Acquire(ctx context.Context) (Lease, error)
}

// NewProviders returns the configured providers in preference order
func NewProviders(cfg config.KeepAwakeConfig, logger *slog.Logger) []Provider {
	if !cfg.Enabled {
		return nil
	}

	var providers []Provider
	if len(cfg.InhibitCommand) > 0 {
		providers = append(providers, NewInhibitProvider(cfg.InhibitCommand, logger))
	}
	if len(cfg.PlayerCommand) > 0 {
		providers = append(providers, NewSilentMediaProvider(cfg.PlayerCommand, logger))
	}
	return providers
}

// InhibitProvider holds a native inhibitor process for the lease duration
type InhibitProvider struct {
	command []string
	logger  *slog.Logger
}

// NewInhibitProvider creates a native inhibitor provider
func NewInhibitProvider(command []string, logger *slog.Logger) *InhibitProvider {
	return &InhibitProvider{command: command, logger: logger}
}

func (p *InhibitProvider) Name() string { return "inhibit" }

func (p *InhibitProvider) Available() error {
	return lookPath(p.command)
}

func (p *InhibitProvider) Acquire(ctx context.Context) (Lease, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}
	return startProcess(p.Name(), p.command, nil, p.logger)
}

// SilentMediaProvider loops a near-silent audio file through a player
type SilentMediaProvider struct {
	player []string
	logger *slog.Logger
}

// NewSilentMediaProvider creates the silent media fallback provider
func NewSilentMediaProvider(player []string, logger *slog.Logger) *SilentMediaProvider {
	return &SilentMediaProvider{player: player, logger: logger}
}

func (p *SilentMediaProvider) Name() string { return "silent-media" }

func (p *SilentMediaProvider) Available() error {
	return lookPath(p.player)
}

func (p *SilentMediaProvider) Acquire(ctx context.Context) (Lease, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}

	path, err := writeSilence()
	if err != nil {
		return nil, err
	}

	command := make([]string, 0, len(p.player)+1)
	replaced := false
	for _, arg := range p.player {
		if arg == FilePlaceholder {
			command = append(command, path)
			replaced = true
		} else {
			command = append(command, arg)
		}
	}
	if !replaced {
		command = append(command, path)
	}

	cleanup := func() error { return os.Remove(path) }
	lease, err := startProcess(p.Name(), command, cleanup, p.logger)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return lease, nil
}

func writeSilence() (string, error) {
	data, err := audio.EncodeWAV(audio.NearSilence(silenceSampleRate, silenceDuration, silenceAmplitude), silenceSampleRate)
	if err != nil {
		return "", fmt.Errorf("encode silence: %w", err)
	}

	f, err := os.CreateTemp("", "meetscribe-keepawake-*.wav")
	if err != nil {
		return "", fmt.Errorf("create silence file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write silence file: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}

func lookPath(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("%w: no command configured", ErrUnavailable)
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return fmt.Errorf("%w: %s not found", ErrUnavailable, command[0])
	}
	return nil
}

// processLease is held while its child process runs
type processLease struct {
	backend string
	cmd     *exec.Cmd
	cleanup func() error
	exited  chan struct{}
	logger  *slog.Logger

	releaseOnce sync.Once
	releaseErr  error
}

func startProcess(backend string, command []string, cleanup func() error, logger *slog.Logger) (*processLease, error) {
	cmd := exec.Command(command[0], command[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", strings.Join(command, " "), err)
	}

	l := &processLease{
		backend: backend,
		cmd:     cmd,
		cleanup: cleanup,
		exited:  make(chan struct{}),
		logger:  logger,
	}

	go func() {
		err := cmd.Wait()
		close(l.exited)
		logger.Debug("Keep-awake process exited",
			slog.String("backend", backend),
			slog.Any("exit", err))
	}()

	return l, nil
}

func (l *processLease) Backend() string { return l.backend }

func (l *processLease) Alive() bool {
	select {
	case <-l.exited:
		return false
	default:
		return true
	}
}

func (l *processLease) Release() error {
	l.releaseOnce.Do(func() {
		var errs []error
		if l.Alive() {
			if err := l.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				errs = append(errs, fmt.Errorf("kill %s: %w", l.backend, err))
			}
		}
		<-l.exited
		if l.cleanup != nil {
			if err := l.cleanup(); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		l.releaseErr = errors.Join(errs...)
	})
	return l.releaseErr
}
