package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeLease struct {
	backend  string
	alive    atomic.Bool
	releases atomic.Int32
	err      error
}

func (l *fakeLease) Backend() string { return l.backend }
func (l *fakeLease) Alive() bool     { return l.alive.Load() }
func (l *fakeLease) Release() error {
	l.releases.Add(1)
	l.alive.Store(false)
	return l.err
}

type fakeProvider struct {
	name        string
	unavailable bool
	acquireErr  error
	releaseErr  error

	mu     sync.Mutex
	leases []*fakeLease
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Available() error {
	if p.unavailable {
		return ErrUnavailable
	}
	return nil
}

func (p *fakeProvider) Acquire(ctx context.Context) (Lease, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	l := &fakeLease{backend: p.name, err: p.releaseErr}
	l.alive.Store(true)
	p.mu.Lock()
	p.leases = append(p.leases, l)
	p.mu.Unlock()
	return l, nil
}

func (p *fakeProvider) acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leases)
}

func (p *fakeProvider) last() *fakeLease {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leases[len(p.leases)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuardPrefersFirstAvailable(t *testing.T) {
	native := &fakeProvider{name: "inhibit"}
	fallback := &fakeProvider{name: "silent-media"}
	g := NewGuard([]Provider{native, fallback}, testLogger(), nil)

	if backend := g.Acquire(context.Background()); backend != "inhibit" {
		t.Errorf("Expected inhibit backend, got %q", backend)
	}
	if fallback.acquired() != 0 {
		t.Error("Expected fallback to stay unused")
	}
}

func TestGuardFallsBack(t *testing.T) {
	native := &fakeProvider{name: "inhibit", unavailable: true}
	broken := &fakeProvider{name: "broken", acquireErr: errors.New("denied")}
	fallback := &fakeProvider{name: "silent-media"}
	g := NewGuard([]Provider{native, broken, fallback}, testLogger(), nil)

	if backend := g.Acquire(context.Background()); backend != "silent-media" {
		t.Errorf("Expected silent-media backend, got %q", backend)
	}
}

func TestGuardAcquireIsBestEffort(t *testing.T) {
	g := NewGuard([]Provider{&fakeProvider{name: "inhibit", unavailable: true}}, testLogger(), nil)

	if backend := g.Acquire(context.Background()); backend != "" {
		t.Errorf("Expected no backend, got %q", backend)
	}

	released := false
	g.Hold("capture", func() error {
		released = true
		return nil
	})
	g.Close()

	if !released {
		t.Error("Expected releasers to run without a lease")
	}
}

func TestGuardCloseReleasesInReverseOrder(t *testing.T) {
	p := &fakeProvider{name: "inhibit", releaseErr: errors.New("already gone")}
	g := NewGuard([]Provider{p}, testLogger(), nil)
	g.Acquire(context.Background())

	var order []string
	g.Hold("microphone", func() error {
		order = append(order, "microphone")
		return nil
	})
	g.Hold("loopback", func() error {
		order = append(order, "loopback")
		return errors.New("track already stopped")
	})
	g.Hold("graph", func() error {
		order = append(order, "graph")
		panic("boom")
	})

	g.Close()

	expected := []string{"graph", "loopback", "microphone"}
	if len(order) != len(expected) {
		t.Fatalf("Expected releases %v, got %v", expected, order)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Errorf("Release %d: expected %s, got %s", i, expected[i], order[i])
		}
	}

	if got := p.last().releases.Load(); got != 1 {
		t.Errorf("Expected lease released once despite errors, got %d", got)
	}

	g.Close()
	if got := p.last().releases.Load(); got != 1 {
		t.Errorf("Expected idempotent Close, got %d releases", got)
	}
	if g.Backend() != "" {
		t.Errorf("Expected no backend after close, got %q", g.Backend())
	}
}

func TestGuardSetVisibleReacquiresRevokedLease(t *testing.T) {
	p := &fakeProvider{name: "inhibit"}
	g := NewGuard([]Provider{p}, testLogger(), nil)
	g.Acquire(context.Background())

	if backend := g.SetVisible(context.Background(), true); backend != "inhibit" || p.acquired() != 1 {
		t.Errorf("Expected live lease kept, got %q after %d acquisitions", backend, p.acquired())
	}

	p.last().alive.Store(false)
	if g.Backend() != "" {
		t.Error("Expected revoked lease to report no backend")
	}

	if backend := g.SetVisible(context.Background(), false); backend != "" || p.acquired() != 1 {
		t.Error("Expected hidden transition to leave the lease alone")
	}

	if backend := g.SetVisible(context.Background(), true); backend != "inhibit" {
		t.Errorf("Expected re-acquired inhibit lease, got %q", backend)
	}
	if p.acquired() != 2 {
		t.Errorf("Expected 2 acquisitions, got %d", p.acquired())
	}
}

func TestGuardSetVisibleAfterClose(t *testing.T) {
	p := &fakeProvider{name: "inhibit"}
	g := NewGuard([]Provider{p}, testLogger(), nil)
	g.Acquire(context.Background())
	g.Close()

	if backend := g.SetVisible(context.Background(), true); backend != "" {
		t.Errorf("Expected no re-acquisition after close, got %q", backend)
	}
	if p.acquired() != 1 {
		t.Errorf("Expected a single acquisition, got %d", p.acquired())
	}
}

func TestGuardHoldAfterClose(t *testing.T) {
	g := NewGuard(nil, testLogger(), nil)
	g.Close()

	released := false
	g.Hold("late", func() error {
		released = true
		return nil
	})
	if !released {
		t.Error("Expected resource held after close to be released immediately")
	}
}
