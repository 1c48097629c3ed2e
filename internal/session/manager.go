package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/meetscribe/internal/capture"
)

const cleanupInterval = 30 * time.Second

// Factory builds an idle session with its own capture source, submitter and
// keep-awake guard.
type Factory func(id string, mode capture.Mode) (*Session, error)

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	MaxActive int
	Retention time.Duration
}

// ManagerStats describes the sessions held by a manager
type ManagerStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Finished  int `json:"finished"`
	MaxActive int `json:"max_active"`
}

// Manager manages recording sessions
type Manager struct {
	sessions  map[string]*Session
	mu        sync.RWMutex
	logger    *slog.Logger
	factory   Factory
	maxActive int
	retention time.Duration

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config ManagerConfig, factory Factory) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	maxActive := config.MaxActive
	if maxActive < 1 {
		maxActive = 1
	}

	mgr := &Manager{
		sessions:  make(map[string]*Session),
		logger:    logger,
		factory:   factory,
		maxActive: maxActive,
		retention: config.Retention,
		ctx:       ctx,
		cancel:    cancel,
		cleanup:   make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// Create starts a new session. A session whose capture cannot be acquired is
// not kept.
func (m *Manager) Create(ctx context.Context, mode capture.Mode) (*Session, error) {
	id := uuid.NewString()

	m.mu.Lock()
	if m.activeLocked() >= m.maxActive {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}

	s, err := m.factory(id, mode)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		s.Close()

		m.logger.Warn("Session failed to start",
			slog.String("session_id", id),
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()))
		return nil, err
	}

	m.logger.Info("Session created",
		slog.String("session_id", id),
		slog.String("mode", string(mode)))

	return s, nil
}

// Get returns a session by id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns every session sorted by id
func (m *Manager) List() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return sessions
}

// Remove stops a session if it is still recording and forgets it
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	var err error
	if !s.Finished() {
		if stopErr := s.Stop(ctx); stopErr != nil && !errors.Is(stopErr, ErrNotRecording) {
			err = fmt.Errorf("stop session: %w", stopErr)
		}
	}
	s.Close()

	m.logger.Info("Session removed", slog.String("session_id", id))
	return err
}

// GetActiveSessionCount returns the number of sessions not yet finished
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

// GetStats returns session counters
func (m *Manager) GetStats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := m.activeLocked()
	return ManagerStats{
		Total:     len(m.sessions),
		Active:    active,
		Finished:  len(m.sessions) - active,
		MaxActive: m.maxActive,
	}
}

// Stop stops every session and the cleanup routine
func (m *Manager) Stop(ctx context.Context) {
	m.logger.Info("Stopping session manager...")

	for _, s := range m.List() {
		if s.Finished() {
			continue
		}
		if err := s.Stop(ctx); err != nil && !errors.Is(err, ErrNotRecording) {
			m.logger.Warn("Error stopping session",
				slog.String("session_id", s.ID()),
				slog.String("error", err.Error()))
		}
	}

	m.cancel()
	<-m.cleanup

	m.logger.Info("Session manager stopped",
		slog.Int("remaining_sessions", len(m.List())),
		slog.Int("active_sessions", m.GetActiveSessionCount()))
}

func (m *Manager) activeLocked() int {
	active := 0
	for _, s := range m.sessions {
		if !s.Finished() {
			active++
		}
	}
	return active
}

// startCleanupRoutine forgets finished sessions once their retention passed
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("retention", m.retention),
		slog.Duration("check_interval", cleanupInterval))

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions(time.Now())
		}
	}
}

func (m *Manager) cleanupExpiredSessions(now time.Time) {
	expired := make([]string, 0)

	m.mu.RLock()
	for id, s := range m.sessions {
		if !s.Finished() {
			continue
		}
		if now.Sub(s.EndedAt()) > m.retention {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.logger.Info("Cleaning up finished sessions", slog.Int("expired_count", len(expired)))
	for _, id := range expired {
		if err := m.Remove(m.ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Warn("Failed to remove session",
				slog.String("session_id", id),
				slog.String("error", err.Error()))
		}
	}
}
