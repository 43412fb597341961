package sand

import (
	"runtime"
	"sync"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
	"github.com/ValentinKolb/sandclock/lib/clock/engines/sand/internal"
	"github.com/ValentinKolb/sandclock/lib/clock/util"
	"github.com/lni/dragonboat/v4/logger"
)

var dispatchLog = logger.GetLogger("dispatch")

// event is the unit of work passed from the scanner to the dispatcher
type event[K comparable] struct {
	handle internal.Handle[K]
	kind   clock.EventKind
}

// dispatcher delivers events to the handler on a fixed pool of workers.
//
// The queue decouples detection from delivery: the scanner only ever pushes (lock-free, never
// blocks) and a slow handler stalls nothing but the worker running it.
type dispatcher[K comparable] struct {
	name    string
	queue   *util.LockFreeMPSC[event[K]]
	handler clock.Handler[K]
	metrics *clockMetrics
	wg      sync.WaitGroup

	// gate orders the shutdown notification after all in-flight timeouts:
	// timeout deliveries hold the read lock, the shutdown takes the write lock.
	gate     sync.RWMutex
	stopping bool
}

func newDispatcher[K comparable](name string, handler clock.Handler[K], m *clockMetrics) *dispatcher[K] {
	return &dispatcher[K]{
		name:    name,
		queue:   util.NewLockFreeMPSC[event[K]](),
		handler: handler,
		metrics: m,
	}
}

// start launches the workers
func (d *dispatcher[K]) start(workers int) {
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work(i)
	}
}

// submit hands an event to the workers.
// It fails only if the dispatcher stopped accepting work.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *dispatcher[K]) submit(handle internal.Handle[K], kind clock.EventKind) error {
	if !d.queue.Push(&event[K]{handle: handle, kind: kind}) {
		d.metrics.dispatchFailures.Inc()
		return clock.NewError(clock.ErrCDispatchFailed, "event queue is closed")
	}
	return nil
}

// work is the loop of one worker, it returns once the queue is closed and drained
func (d *dispatcher[K]) work(id int) {
	defer d.wg.Done()

	for ev := range d.queue.Recv() {
		switch ev.kind {
		case clock.EventTimeout:
			d.deliverTimeout(id, ev.handle)
		case clock.EventShutdown:
			d.deliverShutdown(id)
		default:
			dispatchLog.Errorf("[%s] worker %d: unknown event kind %s", d.name, id, ev.kind)
		}
	}
}

// deliverTimeout calls the handler unless the shutdown notification was already delivered
func (d *dispatcher[K]) deliverTimeout(id int, handle internal.Handle[K]) {
	d.gate.RLock()
	defer d.gate.RUnlock()

	if d.stopping {
		d.metrics.dropped.Inc()
		return
	}
	d.invoke(id, handle.Key(), clock.EventTimeout)
}

// deliverShutdown waits for in-flight timeouts, delivers the one-time shutdown notification
// and closes the queue. Timeouts still queued afterwards are dropped by the workers.
func (d *dispatcher[K]) deliverShutdown(id int) {
	d.gate.Lock()
	if d.stopping {
		d.gate.Unlock()
		return
	}
	d.stopping = true
	d.gate.Unlock()

	var zero K
	d.invoke(id, zero, clock.EventShutdown)
	d.queue.Close()

	dispatchLog.Debugf("[%s] worker %d delivered shutdown, %d queued events left", d.name, id, d.queue.Len())
}

// invoke calls the handler and isolates the worker from a panicking handler
func (d *dispatcher[K]) invoke(id int, key K, kind clock.EventKind) {
	start := time.Now()
	defer func() {
		d.metrics.handlerDuration.UpdateDuration(start)
		if r := recover(); r != nil {
			d.metrics.handlerPanics.Inc()
			dispatchLog.Errorf("[%s] worker %d: handler panicked on %s event for %v: %v", d.name, id, kind, key, r)
		}
	}()
	callHandler(func() { d.handler.Handle(key, kind) })
}

// callHandler is the only frame through which handlers run, inHandler looks for it
//
//go:noinline
func callHandler(call func()) {
	call()
}

// handlerFrame is the symbol name of callHandler, resolved once from its own frame
var handlerFrame = func() (name string) {
	callHandler(func() {
		if pc, _, _, ok := runtime.Caller(1); ok {
			name = runtime.FuncForPC(pc).Name()
		}
	})
	return name
}()

// inHandler reports whether the calling goroutine is a worker currently running a handler
func inHandler() bool {
	pcs := make([]uintptr, 32)
	for {
		n := runtime.Callers(2, pcs)
		if n < len(pcs) {
			pcs = pcs[:n]
			break
		}
		pcs = make([]uintptr, 2*len(pcs))
	}

	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		if f.Function == handlerFrame {
			return true
		}
		if !more {
			return false
		}
	}
}

// wait blocks until all workers exited
func (d *dispatcher[K]) wait() {
	d.wg.Wait()
}
