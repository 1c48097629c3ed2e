package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	"github.com/skypro1111/meetscribe/internal/metrics"
)

type releaser struct {
	name    string
	release func() error
}

// Guard owns the keep-awake lease and the release stack of one recording
type Guard struct {
	providers []Provider
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	lease     Lease
	active    bool
	closed    bool
	releasers []releaser
}

// NewGuard creates a guard over providers in preference order
func NewGuard(providers []Provider, logger *slog.Logger, m *metrics.Metrics) *Guard {
	return &Guard{
		providers: providers,
		logger:    logger,
		metrics:   m,
	}
}

// Acquire marks the recording active and takes a lease from the first
// available provider. Failure leaves the recording without a lease.
func (g *Guard) Acquire(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ""
	}
	g.active = true
	return g.acquireLocked(ctx)
}

func (g *Guard) acquireLocked(ctx context.Context) string {
	if g.lease != nil && g.lease.Alive() {
		return g.lease.Backend()
	}
	if g.lease != nil {
		g.releaseLeaseLocked()
	}

	for _, p := range g.providers {
		if err := p.Available(); err != nil {
			g.logger.Debug("Keep-awake backend unavailable",
				slog.String("backend", p.Name()),
				slog.String("reason", err.Error()))
			continue
		}

		lease, err := p.Acquire(ctx)
		if err != nil {
			g.logger.Warn("Failed to acquire keep-awake lease",
				slog.String("backend", p.Name()),
				slog.String("error", err.Error()))
			continue
		}

		g.lease = lease
		g.metrics.RecordKeepAwakeAcquired(lease.Backend())
		g.logger.Info("Keep-awake lease acquired", slog.String("backend", lease.Backend()))
		return lease.Backend()
	}

	if len(g.providers) > 0 {
		g.logger.Warn("No keep-awake backend available, the host may sleep during recording")
	}
	return ""
}

// Hold registers a resource to release on Close. After Close it is
// released immediately.
func (g *Guard) Hold(name string, release func() error) {
	g.mu.Lock()
	if !g.closed {
		g.releasers = append(g.releasers, releaser{name: name, release: release})
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	g.run(releaser{name: name, release: release})
}

// SetVisible re-acquires a revoked lease when the agent becomes visible
// again while recording.
func (g *Guard) SetVisible(ctx context.Context, visible bool) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !visible || !g.active || g.closed {
		return g.backendLocked()
	}

	if g.lease != nil && g.lease.Alive() {
		return g.lease.Backend()
	}

	g.logger.Info("Keep-awake lease lost, re-acquiring")
	return g.acquireLocked(ctx)
}

// Backend returns the backend of the live lease, or "" without one
func (g *Guard) Backend() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.backendLocked()
}

func (g *Guard) backendLocked() string {
	if g.lease == nil || !g.lease.Alive() {
		return ""
	}
	return g.lease.Backend()
}

// Close runs every releaser in reverse registration order, then releases
// the lease. Errors are logged. Safe to call more than once.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.active = false
	releasers := g.releasers
	g.releasers = nil
	g.mu.Unlock()

	for i := len(releasers) - 1; i >= 0; i-- {
		g.run(releasers[i])
	}

	g.mu.Lock()
	g.releaseLeaseLocked()
	g.mu.Unlock()
}

func (g *Guard) releaseLeaseLocked() {
	if g.lease == nil {
		return
	}
	if err := g.lease.Release(); err != nil {
		g.logger.Warn("Failed to release keep-awake lease",
			slog.String("backend", g.lease.Backend()),
			slog.String("error", err.Error()))
	} else {
		g.logger.Debug("Keep-awake lease released", slog.String("backend", g.lease.Backend()))
	}
	g.metrics.RecordKeepAwakeReleased()
	g.lease = nil
}

func (g *Guard) run(r releaser) {
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error("Resource release panicked",
				slog.String("resource", r.name),
				slog.Any("panic", p))
		}
	}()

	if err := r.release(); err != nil {
		g.logger.Warn("Failed to release resource",
			slog.String("resource", r.name),
			slog.String("error", err.Error()))
	}
}
