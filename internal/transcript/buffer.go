package transcript

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Ordering decides when a resolved segment's text joins the transcript
type Ordering string

const (
	// OrderCompletion appends fragments in the order results arrive.
	OrderCompletion Ordering = "completion"
	// OrderSequential appends only the contiguous prefix of segment numbers.
	OrderSequential Ordering = "sequential"
)

// ParseOrdering parses an ordering name
func ParseOrdering(s string) (Ordering, error) {
	switch Ordering(s) {
	case OrderCompletion, "":
		return OrderCompletion, nil
	case OrderSequential:
		return OrderSequential, nil
	default:
		return "", fmt.Errorf("unknown transcript ordering %q", s)
	}
}

// Fragment is the text contributed by one segment
type Fragment struct {
	Segment    int       `json:"segment"`
	Text       string    `json:"text"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// String renders the fragment with its segment label
func (f Fragment) String() string {
	return fmt.Sprintf("[segment %d]\n%s", f.Segment, f.Text)
}

type pending struct {
	text     string
	resolved bool
	at       time.Time
}

// Buffer is the append-only transcript of a session and its in-flight set
type Buffer struct {
	ordering  Ordering
	fragments []Fragment
	inFlight  map[int]struct{}
	held      map[int]pending
	next      int

	mu sync.RWMutex
}

// NewBuffer creates an empty transcript
func NewBuffer(ordering Ordering) *Buffer {
	return &Buffer{
		ordering: ordering,
		inFlight: make(map[int]struct{}),
		held:     make(map[int]pending),
		next:     1,
	}
}

// Ordering returns the configured ordering
func (b *Buffer) Ordering() Ordering {
	return b.ordering
}

// Track adds a segment to the in-flight set when it is handed off
func (b *Buffer) Track(number int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight[number] = struct{}{}
}

// Resolve removes a segment from the in-flight set and records its text.
// Empty text resolves the segment without a fragment. It returns the
// fragments that joined the transcript as a result.
func (b *Buffer) Resolve(number int, text string) []Fragment {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inFlight, number)
	text = strings.TrimSpace(text)
	now := time.Now()

	if b.ordering != OrderSequential {
		if text == "" {
			return nil
		}
		f := Fragment{Segment: number, Text: text, ResolvedAt: now}
		b.fragments = append(b.fragments, f)
		return []Fragment{f}
	}

	if number < b.next {
		return nil
	}
	b.held[number] = pending{text: text, resolved: true, at: now}

	var flushed []Fragment
	for {
		p, ok := b.held[b.next]
		if !ok || !p.resolved {
			break
		}
		delete(b.held, b.next)
		if p.text != "" {
			f := Fragment{Segment: b.next, Text: p.text, ResolvedAt: p.at}
			b.fragments = append(b.fragments, f)
			flushed = append(flushed, f)
		}
		b.next++
	}
	return flushed
}

// Flush appends every held fragment regardless of gaps. Sessions call it
// once no segment is left in flight.
func (b *Buffer) Flush() []Fragment {
	b.mu.Lock()
	defer b.mu.Unlock()

	numbers := make([]int, 0, len(b.held))
	for n := range b.held {
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)

	var flushed []Fragment
	for _, n := range numbers {
		p := b.held[n]
		delete(b.held, n)
		if p.text == "" {
			continue
		}
		f := Fragment{Segment: n, Text: p.text, ResolvedAt: p.at}
		b.fragments = append(b.fragments, f)
		flushed = append(flushed, f)
		if n >= b.next {
			b.next = n + 1
		}
	}
	return flushed
}

// InFlight returns the unresolved segment numbers in ascending order
func (b *Buffer) InFlight() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	numbers := make([]int, 0, len(b.inFlight))
	for n := range b.inFlight {
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)
	return numbers
}

// InFlightCount returns the size of the in-flight set
func (b *Buffer) InFlightCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.inFlight)
}

// Fragments returns a copy of the appended fragments
func (b *Buffer) Fragments() []Fragment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.fragments)
}

// Len returns the number of appended fragments
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.fragments)
}

// String renders the transcript with blank lines between fragments
func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	parts := make([]string, len(b.fragments))
	for i, f := range b.fragments {
		parts[i] = f.String()
	}
	return strings.Join(parts, "\n\n")
}
