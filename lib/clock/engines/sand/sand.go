package sand

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
	"github.com/ValentinKolb/sandclock/lib/clock/engines/sand/internal"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("sandclock")

// --------------------------------------------------------------------------
// Core Sand clock structure
// --------------------------------------------------------------------------

// sandImpl implements clock.IClock with a polling scanner and a dispatcher worker pool
type sandImpl[K comparable] struct {
	opts       Options
	epoch      time.Time // monotonic reference for all timestamps of this clock
	table      *internal.Table[K]
	life       *lifecycle
	dispatcher *dispatcher[K]
	metrics    *clockMetrics

	wg       sync.WaitGroup // scanner
	joinOnce sync.Once
	stopped  chan struct{} // closed once the scanner and all workers exited
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New creates a sand clock that calls handler for every key that was not touched for
// opts.TimeoutDuration. opts.RefreshInterval sets how often the keys are checked, a timeout is
// therefore reported between TimeoutDuration and TimeoutDuration+RefreshInterval after the
// last touch.
//
// New fails (without starting any goroutine) if handler is nil or if the timeout duration or
// the refresh interval is missing. The returned clock must be shut down with Shutdown() or Close().
//
// A typed nil pointer (e.g. (*T)(nil)) is a non-nil interface and is accepted. If its
// Handle method dereferences the receiver, every call panics and is recovered and counted in
// sandclock_handler_panics_total like any other handler panic.
func New[K comparable](opts *Options, handler clock.Handler[K]) (clock.IClock[K], error) {
	if handler == nil {
		return nil, clock.ErrNoHandler
	}
	if fn, ok := handler.(clock.HandlerFunc[K]); ok && fn == nil {
		return nil, clock.ErrNoHandler
	}

	validated, err := opts.validate()
	if err != nil {
		return nil, err
	}

	s := &sandImpl[K]{
		opts:    validated,
		epoch:   time.Now(),
		life:    newLifecycle(),
		stopped: make(chan struct{}),
	}
	s.table = internal.NewTable[K](&s.life.live)
	s.metrics = newClockMetrics(
		validated.Name,
		func() float64 { return float64(s.life.activeCount()) },
		func() float64 { return float64(s.dispatcher.queue.Len()) },
	)
	s.dispatcher = newDispatcher[K](validated.Name, handler, s.metrics)

	// start background goroutines
	s.wg.Add(1)
	s.dispatcher.start(validated.Workers)
	go s.scanner()

	log.Infof("[%s] started (refresh=%s, timeout=%s, workers=%d)",
		validated.Name, validated.RefreshInterval, validated.TimeoutDuration, validated.Workers)

	return s, nil
}

// now returns the monotonic time since the clock was created in nanoseconds
func (s *sandImpl[K]) now() uint64 {
	return uint64(time.Since(s.epoch))
}

// --------------------------------------------------------------------------
// IClock Interface Methods
// --------------------------------------------------------------------------

// Touch signals activity for key.
// Touch after Shutdown is ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *sandImpl[K]) Touch(key K) {
	if s.life.shutdownRequested() {
		return
	}
	s.metrics.touches.Inc()
	if s.table.Touch(key, s.now()) {
		s.metrics.inserts.Inc()
	}
}

// Remove stops tracking key, no notification is sent. Unknown keys are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *sandImpl[K]) Remove(key K) {
	if s.table.Remove(key) {
		s.metrics.removes.Inc()
	}
}

// ActiveCount returns the number of tracked keys.
// Timed out keys are counted until the scanner removed them (at most one refresh interval).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *sandImpl[K]) ActiveCount() int {
	return s.life.activeCount()
}

// Shutdown requests the scanner to stop and waits until the scanner and all workers exited
// or ctx is done. The handler receives clock.EventShutdown exactly once.
//
// Called from a handler, Shutdown only requests the shutdown and returns nil: the calling
// worker is one of the goroutines it would wait for.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *sandImpl[K]) Shutdown(ctx context.Context) error {
	if s.life.requestShutdown() {
		log.Infof("[%s] shutdown requested", s.opts.Name)
	}
	if inHandler() {
		log.Debugf("[%s] shutdown called from a handler, not waiting for the workers", s.opts.Name)
		return nil
	}

	s.joinOnce.Do(func() {
		go func() {
			s.wg.Wait()
			s.dispatcher.wait()
			close(s.stopped)
		}()
	})

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return clock.WrapError(clock.ErrCShutdownTimeout, "scanner or dispatcher still running", ctx.Err())
	}
}

// Close shuts the clock down and waits without a deadline
func (s *sandImpl[K]) Close() error {
	return s.Shutdown(context.Background())
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the clock
func (s *sandImpl[K]) GetInfo() clock.Info {
	return clock.Info{
		Impl:             clock.ImplSand,
		Name:             s.opts.Name,
		State:            s.life.State().String(),
		Active:           s.life.activeCount(),
		RefreshInterval:  s.opts.RefreshInterval,
		TimeoutDuration:  s.opts.TimeoutDuration,
		Workers:          s.opts.Workers,
		ScanCycles:       s.metrics.scanCycles.Get(),
		Timeouts:         s.metrics.timeouts.Get(),
		DispatchFailures: s.metrics.dispatchFailures.Get(),
		DroppedEvents:    s.metrics.dropped.Get(),
		QueueLen:         s.dispatcher.queue.Len(),
	}
}

// WriteMetrics writes the metrics of this clock in Prometheus text format
func (s *sandImpl[K]) WriteMetrics(w io.Writer) {
	s.metrics.writePrometheus(w)
}
