package session

import (
	"sync"
	"time"

	"github.com/skypro1111/meetscribe/internal/transcription"
)

// EventType identifies a session event
type EventType string

const (
	EventState        EventType = "state"
	EventSegment      EventType = "segment"
	EventFragment     EventType = "fragment"
	EventSegmentError EventType = "segment_error"
	EventSummary      EventType = "summary"
)

// Event is published to session subscribers
type Event struct {
	Type      EventType            `json:"type"`
	SessionID string               `json:"session_id"`
	Time      time.Time            `json:"time"`
	State     State                `json:"state,omitempty"`
	Segment   int                  `json:"segment,omitempty"`
	Status    transcription.Status `json:"status,omitempty"`
	Attempts  int                  `json:"attempts,omitempty"`
	Text      string               `json:"text,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// broadcaster fans events out to subscribers. Slow subscribers miss events
// instead of blocking the session.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
