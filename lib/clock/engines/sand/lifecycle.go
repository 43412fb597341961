package sand

import (
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Scanner State
// --------------------------------------------------------------------------

type State int32

const (
	StateRunning      State = iota // Scanning the table every refresh interval
	StateShuttingDown              // Shutdown was observed, the terminal event is being enqueued
	StateStopped                   // Terminal, the scanner goroutine exited
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Lifecycle Controller
// --------------------------------------------------------------------------

// lifecycle holds the state shared by the owning clock, the scanner and the dispatcher
type lifecycle struct {
	shutdown atomic.Bool
	done     chan struct{} // closed when shutdown is requested, wakes a sleeping scanner
	state    atomic.Int32
	live     atomic.Int64 // number of entries in the table
}

func newLifecycle() *lifecycle {
	l := &lifecycle{
		done: make(chan struct{}),
	}
	l.state.Store(int32(StateRunning))
	return l
}

// requestShutdown sets the shutdown flag.
// Only the first call returns true, later calls are no-ops.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *lifecycle) requestShutdown() bool {
	if l.shutdown.CompareAndSwap(false, true) {
		close(l.done)
		return true
	}
	return false
}

// shutdownRequested reports whether shutdown was requested
func (l *lifecycle) shutdownRequested() bool {
	return l.shutdown.Load()
}

// Done returns a channel that is closed once shutdown was requested
func (l *lifecycle) Done() <-chan struct{} {
	return l.done
}

func (l *lifecycle) setState(s State) {
	l.state.Store(int32(s))
}

func (l *lifecycle) State() State {
	return State(l.state.Load())
}

// activeCount returns the live entry counter (never negative)
func (l *lifecycle) activeCount() int {
	if n := l.live.Load(); n > 0 {
		return int(n)
	}
	return 0
}
