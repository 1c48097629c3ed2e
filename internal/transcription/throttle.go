package transcription

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces the submissions of one session. The first submission goes
// out immediately; every later one is reserved a slot at least
// max(recommended, minimum) after the previous request, where recommended is
// the latest hint reported by the service. Concurrent callers queue behind
// each other's slots.
type Throttle struct {
	mu          sync.Mutex
	recommended time.Duration
	minimum     time.Duration
	submissions int
	last        time.Time
	now         func() time.Time
	sleep       SleepFunc
}

// NewThrottle creates a throttle starting from the default recommended wait
func NewThrottle(defaultWait, minimum time.Duration, sleep SleepFunc) *Throttle {
	if sleep == nil {
		sleep = Sleep
	}
	return &Throttle{
		recommended: defaultWait,
		minimum:     minimum,
		now:         time.Now,
		sleep:       sleep,
	}
}

// Wait blocks until the caller's submission slot and returns how long it
// waited. A larger hint observed while waiting pushes the slot back.
func (t *Throttle) Wait(ctx context.Context) (time.Duration, error) {
	t.mu.Lock()
	now := t.now()
	first := t.submissions == 0
	prev := t.last
	t.submissions++

	slot := now
	if !first {
		slot = latest(now, prev.Add(t.spacingLocked()))
	}
	t.last = slot
	t.mu.Unlock()

	var waited time.Duration
	at := now
	for slot.After(at) {
		d := slot.Sub(at)
		if err := t.sleep(ctx, d); err != nil {
			return waited + d, err
		}
		waited += d
		at = slot

		t.mu.Lock()
		if target := prev.Add(t.spacingLocked()); target.After(slot) && t.last.Equal(slot) {
			slot = target
			t.last = target
		}
		t.mu.Unlock()
	}
	return waited, nil
}

// Mark records a request sent now, so the next slot is spaced from it
func (t *Throttle) Mark() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now := t.now(); now.After(t.last) {
		t.last = now
	}
}

// Observe records a recommended wait hint
func (t *Throttle) Observe(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recommended = d
}

// Recommended returns the current recommended wait
func (t *Throttle) Recommended() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recommended
}

// Submissions returns the number of submissions that passed the throttle
func (t *Throttle) Submissions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submissions
}

func (t *Throttle) spacingLocked() time.Duration {
	return max(t.recommended, t.minimum)
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
