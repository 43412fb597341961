package clock

import (
	"context"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Event Types
// --------------------------------------------------------------------------

// EventKind is the kind of notification passed to a Handler
type EventKind int

const (
	EventTimeout  EventKind = iota // The key was inactive for at least the timeout duration
	EventShutdown                  // The clock stopped, delivered exactly once and always last
)

func (k EventKind) String() string {
	switch k {
	case EventTimeout:
		return "Timeout"
	case EventShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Handler receives the notifications of a clock.
//
// Handle is called from one of the dispatcher workers, never from the goroutine that detects
// timeouts. A slow handler only stalls the worker that is running it.
// For EventShutdown the key is the zero value of K.
type Handler[K comparable] interface {
	Handle(key K, kind EventKind)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc[K comparable] func(key K, kind EventKind)

// Handle calls f(key, kind).
func (f HandlerFunc[K]) Handle(key K, kind EventKind) {
	f(key, kind)
}

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplSand Implementation = "sand"
)

// Info is a point-in-time view of a clock. All counters are best effort.
type Info struct {
	Impl             Implementation `json:"impl" yaml:"impl"`
	Name             string         `json:"name" yaml:"name"`
	State            string         `json:"state" yaml:"state"`
	Active           int            `json:"active" yaml:"active"`
	RefreshInterval  time.Duration  `json:"refresh_interval" yaml:"refresh_interval"`
	TimeoutDuration  time.Duration  `json:"timeout_duration" yaml:"timeout_duration"`
	Workers          int            `json:"workers" yaml:"workers"`
	ScanCycles       uint64         `json:"scan_cycles" yaml:"scan_cycles"`
	Timeouts         uint64         `json:"timeouts" yaml:"timeouts"`
	DispatchFailures uint64         `json:"dispatch_failures" yaml:"dispatch_failures"`
	DroppedEvents    uint64         `json:"dropped_events" yaml:"dropped_events"`
	QueueLen         int            `json:"queue_len" yaml:"queue_len"`
}

// --------------------------------------------------------------------------
// Clock Interface
// --------------------------------------------------------------------------

// IClock tracks the last activity of keys and notifies a Handler once per key
// when that key was not touched for longer than the configured timeout.
// After the notification the key is forgotten; touching it again starts a new lifecycle.
type IClock[K comparable] interface {

	// Touch signals activity for the key. An unknown key is inserted,
	// a known key gets its inactivity clock reset. Touch never blocks on a handler.
	Touch(key K)

	// Remove stops tracking the key without a notification.
	// Removing an unknown key is a no-op.
	Remove(key K)

	// ActiveCount returns the number of tracked keys without scanning.
	ActiveCount() (count int)

	// Shutdown stops the clock: the handler receives EventShutdown once and all background
	// goroutines exit. Shutdown waits until that happened or ctx is done.
	// Calling it more than once is safe.
	//
	// Called from inside a Handler, Shutdown (and Close) only request the shutdown and
	// return without waiting, since the caller is one of the workers being waited for.
	Shutdown(ctx context.Context) (err error)

	// Close is Shutdown without a deadline.
	Close() (err error)

	// GetInfo returns diagnostics about the clock.
	GetInfo() (info Info)

	// WriteMetrics writes the clock's metrics in Prometheus text format to w.
	WriteMetrics(w io.Writer)
}
