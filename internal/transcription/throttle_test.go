package transcription

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"
)

func newFrozenThrottle(sleep SleepFunc) *Throttle {
	th := NewThrottle(15*time.Second, 15*time.Second, sleep)
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return at }
	return th
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestThrottleFirstSubmissionDoesNotWait(t *testing.T) {
	var slept []time.Duration
	th := newFrozenThrottle(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	waited, err := th.Wait(context.Background())
	if err != nil || waited != 0 {
		t.Errorf("Expected immediate first submission, got %v (%v)", waited, err)
	}

	waited, _ = th.Wait(context.Background())
	if waited != 15*time.Second {
		t.Errorf("Expected 15s before second submission, got %v", waited)
	}

	if len(slept) != 1 {
		t.Errorf("Expected one sleep, got %v", slept)
	}
	if th.Submissions() != 2 {
		t.Errorf("Expected 2 submissions, got %d", th.Submissions())
	}
}

func TestThrottleHints(t *testing.T) {
	tests := []struct {
		name     string
		hint     time.Duration
		expected time.Duration
	}{
		{"larger hint", 40 * time.Second, 40 * time.Second},
		{"smaller hint keeps floor", 2 * time.Second, 15 * time.Second},
		{"ignored zero hint", 0, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newFrozenThrottle(noSleep)
			th.Wait(context.Background())

			th.Observe(tt.hint)
			waited, _ := th.Wait(context.Background())
			if waited != tt.expected {
				t.Errorf("Expected wait %v, got %v", tt.expected, waited)
			}
		})
	}
}

func TestThrottleQueuesSlots(t *testing.T) {
	th := newFrozenThrottle(noSleep)

	expected := []time.Duration{0, 15 * time.Second, 30 * time.Second, 45 * time.Second}
	for i, want := range expected {
		waited, err := th.Wait(context.Background())
		if err != nil {
			t.Fatalf("Wait %d: unexpected error %v", i, err)
		}
		if waited != want {
			t.Errorf("Wait %d: expected %v, got %v", i, want, waited)
		}
	}
}

func TestThrottleSpacesFromLastRequest(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	th := NewThrottle(15*time.Second, 15*time.Second, noSleep)
	th.now = func() time.Time { return at }

	th.Wait(context.Background())

	// A retry of the first segment goes out 10s later.
	at = at.Add(10 * time.Second)
	th.Mark()

	waited, _ := th.Wait(context.Background())
	if waited != 15*time.Second {
		t.Errorf("Expected 15s after the retry, got %v", waited)
	}
}

func TestThrottleHintWhileWaiting(t *testing.T) {
	var th *Throttle
	var slept []time.Duration
	th = newFrozenThrottle(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == 1 {
			th.Observe(40 * time.Second)
		}
		return nil
	})
	th.Wait(context.Background())

	waited, err := th.Wait(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if waited != 40*time.Second {
		t.Errorf("Expected the later hint to extend the wait to 40s, got %v", waited)
	}
	if len(slept) != 2 || slept[0] != 15*time.Second || slept[1] != 25*time.Second {
		t.Errorf("Expected sleeps [15s 25s], got %v", slept)
	}
}

func TestThrottleConcurrentSubmissions(t *testing.T) {
	const floor = 150 * time.Millisecond
	th := NewThrottle(floor, floor, nil)

	start := time.Now()
	th.Wait(context.Background())

	var (
		mu       sync.Mutex
		released []time.Duration
		wg       sync.WaitGroup
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := th.Wait(context.Background()); err != nil {
				t.Errorf("Unexpected error %v", err)
			}
			mu.Lock()
			released = append(released, time.Since(start))
			mu.Unlock()
		}()
		time.Sleep(50 * time.Millisecond)
	}
	wg.Wait()

	slices.Sort(released)
	if released[0] < floor {
		t.Errorf("Expected second submission at least %v after the first, got %v", floor, released[0])
	}
	if released[1] < 2*floor {
		t.Errorf("Expected third submission at least %v after the first, got %v", 2*floor, released[1])
	}
}

func TestThrottleWaitCancelled(t *testing.T) {
	th := NewThrottle(time.Hour, time.Hour, nil)
	th.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := th.Wait(ctx); err == nil {
		t.Error("Expected cancelled wait to return an error")
	}
}

func TestThrottleRecommended(t *testing.T) {
	th := NewThrottle(15*time.Second, 15*time.Second, nil)
	th.Observe(20 * time.Second)
	if th.Recommended() != 20*time.Second {
		t.Errorf("Expected recommended 20s, got %v", th.Recommended())
	}
}
