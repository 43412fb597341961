package sand

import (
	"testing"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
	clocktesting "github.com/ValentinKolb/sandclock/lib/clock/testing"
)

func factory(timeout, refresh time.Duration, handler clock.Handler[string]) (clock.IClock[string], error) {
	opts := DefaultOptions()
	opts.TimeoutDuration = timeout
	opts.RefreshInterval = refresh
	return New[string](opts, handler)
}

func Test(t *testing.T) {
	clocktesting.RunClockTests(t, "SandClock", factory)
}

func Benchmark(b *testing.B) {
	clocktesting.RunClockBenchmarks(b, "SandClock", factory)
}
