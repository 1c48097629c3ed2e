package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skypro1111/meetscribe/internal/capture"
)

type managerFixture struct {
	manager  *Manager
	harnesses map[string]*harness
	startErr error
}

func newManagerFixture(t *testing.T, maxActive int, retention time.Duration) *managerFixture {
	t.Helper()

	f := &managerFixture{harnesses: make(map[string]*harness)}
	factory := func(id string, mode capture.Mode) (*Session, error) {
		h := newHarness(150*time.Second, func(o *Options) {
			o.ID = id
			o.Mode = mode
		})
		h.source.startErr = f.startErr
		f.harnesses[id] = h
		return h.session, nil
	}

	f.manager = NewManager(testLogger(), ManagerConfig{MaxActive: maxActive, Retention: retention}, factory)
	t.Cleanup(func() { f.manager.Stop(context.Background()) })
	return f
}

func TestManagerEnforcesActiveLimit(t *testing.T) {
	f := newManagerFixture(t, 1, time.Minute)
	ctx := testContext(t)

	first, err := f.manager.Create(ctx, capture.ModeMixed)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err := f.manager.Create(ctx, capture.ModeMicrophone); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("Expected ErrTooManySessions, got %v", err)
	}

	if err := first.Stop(ctx); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}

	second, err := f.manager.Create(ctx, capture.ModeMicrophone)
	if err != nil {
		t.Fatalf("Expected a new session after the first finished, got %v", err)
	}
	if second.Mode() != capture.ModeMicrophone {
		t.Errorf("Expected mode microphone, got %s", second.Mode())
	}

	stats := f.manager.GetStats()
	if stats.Total != 2 || stats.Active != 1 || stats.Finished != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestManagerGetAndRemove(t *testing.T) {
	f := newManagerFixture(t, 2, time.Minute)
	ctx := testContext(t)

	s, err := f.manager.Create(ctx, capture.ModeMixed)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	got, err := f.manager.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Expected to get session %s, got %v", s.ID(), err)
	}

	if _, err := f.manager.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	if err := f.manager.Remove(ctx, s.ID()); err != nil {
		t.Fatalf("Failed to remove session: %v", err)
	}
	if !s.Finished() {
		t.Error("Expected removed session to be stopped")
	}
	if !f.harnesses[s.ID()].provider.released() {
		t.Error("Expected keep-awake lease to be released")
	}
	if len(f.manager.List()) != 0 {
		t.Errorf("Expected no sessions, got %d", len(f.manager.List()))
	}
	if err := f.manager.Remove(ctx, s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManagerDropsFailedStart(t *testing.T) {
	f := newManagerFixture(t, 1, time.Minute)
	f.startErr = capture.ErrNoAudioTrack
	ctx := testContext(t)

	if _, err := f.manager.Create(ctx, capture.ModeMixed); !errors.Is(err, capture.ErrNoAudioTrack) {
		t.Fatalf("Expected ErrNoAudioTrack, got %v", err)
	}
	if len(f.manager.List()) != 0 {
		t.Errorf("Expected failed session to be dropped, got %d sessions", len(f.manager.List()))
	}

	f.startErr = nil
	if _, err := f.manager.Create(ctx, capture.ModeMixed); err != nil {
		t.Errorf("Expected failed start to free its slot, got %v", err)
	}
}

func TestManagerCleanupFinishedSessions(t *testing.T) {
	f := newManagerFixture(t, 2, time.Minute)
	ctx := testContext(t)

	finished, err := f.manager.Create(ctx, capture.ModeMixed)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := finished.Stop(ctx); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}

	running, err := f.manager.Create(ctx, capture.ModeMixed)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	f.manager.cleanupExpiredSessions(time.Now())
	if len(f.manager.List()) != 2 {
		t.Fatalf("Expected retention to keep both sessions, got %d", len(f.manager.List()))
	}

	f.manager.cleanupExpiredSessions(time.Now().Add(2 * time.Minute))

	sessions := f.manager.List()
	if len(sessions) != 1 || sessions[0] != running {
		t.Fatalf("Expected only the running session to remain, got %d", len(sessions))
	}
}

func TestManagerStopStopsSessions(t *testing.T) {
	f := newManagerFixture(t, 2, time.Minute)
	ctx := testContext(t)

	s, err := f.manager.Create(ctx, capture.ModeMixed)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	f.manager.Stop(ctx)

	if !s.Finished() {
		t.Error("Expected session to be finished after manager stop")
	}
	if f.manager.GetActiveSessionCount() != 0 {
		t.Errorf("Expected no active sessions, got %d", f.manager.GetActiveSessionCount())
	}
}
