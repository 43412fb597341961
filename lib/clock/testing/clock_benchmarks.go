package testing

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
)

// RunClockBenchmarks runs all benchmarks for a clock implementation.
// All clocks use a timeout of one hour, so the scanner never dispatches during a benchmark.
func RunClockBenchmarks(b *testing.B, name string, factory ClockFactory) {

	b.Run("TouchNew", func(b *testing.B) {
		benchmarkTouchNew(b, newBenchClock(b, factory))
	})

	b.Run("TouchExisting", func(b *testing.B) {
		benchmarkTouchExisting(b, newBenchClock(b, factory))
	})

	b.Run("TouchParallel", func(b *testing.B) {
		benchmarkTouchParallel(b, newBenchClock(b, factory))
	})

	b.Run("Remove", func(b *testing.B) {
		benchmarkRemove(b, newBenchClock(b, factory))
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, newBenchClock(b, factory))
	})
}

func newBenchClock(b *testing.B, factory ClockFactory) clock.IClock[string] {
	c, err := factory(time.Hour, 100*time.Millisecond, NewRecorder())
	if err != nil {
		b.Fatalf("failed to create clock: %v", err)
	}
	b.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

// keys pre-generates n keys so that key formatting is not measured
func keys(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("key-%d", i)
	}
	return out
}

func benchmarkTouchNew(b *testing.B, c clock.IClock[string]) {
	ks := keys(b.N)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.Touch(ks[i])
	}
}

func benchmarkTouchExisting(b *testing.B, c clock.IClock[string]) {
	ks := keys(1000)
	for _, k := range ks {
		c.Touch(k)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.Touch(ks[i%len(ks)])
	}
}

func benchmarkTouchParallel(b *testing.B, c clock.IClock[string]) {
	ks := keys(10000)
	var counter atomic.Int64
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			c.Touch(ks[int(i)%len(ks)])
		}
	})
}

func benchmarkRemove(b *testing.B, c clock.IClock[string]) {
	ks := keys(b.N)
	for _, k := range ks {
		c.Touch(k)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		c.Remove(ks[i])
	}
}

// 80% touches on existing keys, 10% new keys, 10% removes
func benchmarkMixedUsage(b *testing.B, c clock.IClock[string]) {
	ks := keys(10000)
	for _, k := range ks {
		c.Touch(k)
	}
	r := rand.New(rand.NewSource(42))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		k := ks[r.Intn(len(ks))]
		switch n := r.Intn(10); {
		case n < 8:
			c.Touch(k)
		case n == 8:
			c.Touch(k + "-new")
		default:
			c.Remove(k)
		}
	}
}
