package sand

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// clockMetrics are the metrics of one clock instance.
// Every clock owns its own metrics.Set, so several clocks (and tests) never collide on names.
type clockMetrics struct {
	set *metrics.Set

	touches          *metrics.Counter
	inserts          *metrics.Counter
	removes          *metrics.Counter
	timeouts         *metrics.Counter
	dispatchFailures *metrics.Counter
	dropped          *metrics.Counter
	handlerPanics    *metrics.Counter
	scanCycles       *metrics.Counter
	scanDuration     *metrics.Histogram
	handlerDuration  *metrics.Histogram
}

func newClockMetrics(name string, active func() float64, queued func() float64) *clockMetrics {
	set := metrics.NewSet()
	label := func(metric string) string {
		return fmt.Sprintf("%s{clock=%q}", metric, name)
	}

	set.NewGauge(label("sandclock_active_entries"), active)
	set.NewGauge(label("sandclock_queued_events"), queued)

	return &clockMetrics{
		set:              set,
		touches:          set.NewCounter(label("sandclock_touches_total")),
		inserts:          set.NewCounter(label("sandclock_inserts_total")),
		removes:          set.NewCounter(label("sandclock_removes_total")),
		timeouts:         set.NewCounter(label("sandclock_timeouts_total")),
		dispatchFailures: set.NewCounter(label("sandclock_dispatch_failures_total")),
		dropped:          set.NewCounter(label("sandclock_dropped_events_total")),
		handlerPanics:    set.NewCounter(label("sandclock_handler_panics_total")),
		scanCycles:       set.NewCounter(label("sandclock_scan_cycles_total")),
		scanDuration:     set.NewHistogram(label("sandclock_scan_duration_seconds")),
		handlerDuration:  set.NewHistogram(label("sandclock_handler_duration_seconds")),
	}
}

// writePrometheus writes all metrics of the clock in Prometheus text format
func (m *clockMetrics) writePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
