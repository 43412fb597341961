package testing

import (
	"sync"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
)

// Event is one handler invocation seen by a Recorder
type Event struct {
	Key  string
	Kind clock.EventKind
	At   time.Time
}

// Recorder is a clock.Handler[string] that records every event it receives.
// An optional delay is slept inside Handle to simulate a slow consumer.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	delay  time.Duration
}

// NewRecorder creates a recorder that returns immediately from Handle
func NewRecorder() *Recorder {
	return &Recorder{}
}

// NewSlowRecorder creates a recorder that sleeps delay in every Handle call
func NewSlowRecorder(delay time.Duration) *Recorder {
	return &Recorder{delay: delay}
}

// Handle implements clock.Handler
func (r *Recorder) Handle(key string, kind clock.EventKind) {
	at := time.Now()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.events = append(r.events, Event{Key: key, Kind: kind, At: at})
	r.mu.Unlock()
}

// Events returns a copy of all recorded events in delivery order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns the number of recorded events of the given kind
func (r *Recorder) Count(kind clock.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Timeouts returns the recorded timeout events for key
func (r *Recorder) Timeouts(key string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == clock.EventTimeout && e.Key == key {
			out = append(out, e)
		}
	}
	return out
}
