package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ClockFactory creates a new clock with the given timeout duration and refresh interval
// that reports to handler
type ClockFactory func(timeout, refresh time.Duration, handler clock.Handler[string]) (clock.IClock[string], error)

// slack is added to every upper time bound to absorb scheduler and GC jitter
const slack = 150 * time.Millisecond

// RunClockTests runs a comprehensive test suite for an IClock implementation.
func RunClockTests(t *testing.T, name string, factory ClockFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("SingleTimeout", func(t *testing.T) {
			testSingleTimeout(t, factory)
		})

		t.Run("KeepAlive", func(t *testing.T) {
			testKeepAlive(t, factory)
		})

		t.Run("TouchExtendsDeadline", func(t *testing.T) {
			testTouchExtendsDeadline(t, factory)
		})

		t.Run("RemoveUnknownKey", func(t *testing.T) {
			testRemoveUnknownKey(t, factory)
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory)
		})

		t.Run("TwoKeysNoDuplicates", func(t *testing.T) {
			testTwoKeysNoDuplicates(t, factory)
		})

		t.Run("FreshLifecycle", func(t *testing.T) {
			testFreshLifecycle(t, factory)
		})

		t.Run("ConcurrentDisjointTouches", func(t *testing.T) {
			testConcurrentDisjointTouches(t, factory)
		})

		t.Run("ShutdownOnce", func(t *testing.T) {
			testShutdownOnce(t, factory)
		})

		t.Run("NoTimeoutAfterShutdown", func(t *testing.T) {
			testNoTimeoutAfterShutdown(t, factory)
		})

		t.Run("TouchAfterShutdown", func(t *testing.T) {
			testTouchAfterShutdown(t, factory)
		})

		t.Run("SlowHandler", func(t *testing.T) {
			testSlowHandler(t, factory)
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			testManyExpiringKeys(t, factory)
		})

		t.Run("BlockedWorker", func(t *testing.T) {
			testBlockedWorker(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// newClock creates a clock and closes it when the test ends
func newClock(t *testing.T, factory ClockFactory, timeout, refresh time.Duration, handler clock.Handler[string]) clock.IClock[string] {
	t.Helper()
	c, err := factory(timeout, refresh, handler)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, c.Shutdown(ctx))
	})
	return c
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

// A key touched once yields exactly one timeout within [timeout, timeout+refresh]
// and is no longer counted one refresh interval later.
func testSingleTimeout(t *testing.T, factory ClockFactory) {
	const (
		timeout = 300 * time.Millisecond
		refresh = 50 * time.Millisecond
	)
	rec := NewRecorder()
	c := newClock(t, factory, timeout, refresh, rec)

	start := time.Now()
	c.Touch("a")
	assert.Equal(t, 1, c.ActiveCount())

	require.Eventually(t, func() bool {
		return len(rec.Timeouts("a")) == 1
	}, timeout+refresh+slack, 5*time.Millisecond, "expected a timeout for a")

	delay := rec.Timeouts("a")[0].At.Sub(start)
	assert.GreaterOrEqual(t, delay, timeout, "timeout reported too early")
	assert.LessOrEqual(t, delay, timeout+refresh+slack, "timeout reported too late")

	require.Eventually(t, func() bool {
		return c.ActiveCount() == 0
	}, refresh+slack, 5*time.Millisecond, "timed out key still counted")

	// no duplicate from the same lifecycle
	time.Sleep(3 * refresh)
	assert.Len(t, rec.Timeouts("a"), 1)
}

// Touching more often than the timeout never produces a timeout
func testKeepAlive(t *testing.T, factory ClockFactory) {
	const (
		timeout = 250 * time.Millisecond
		refresh = 20 * time.Millisecond
	)
	rec := NewRecorder()
	c := newClock(t, factory, timeout, refresh, rec)

	deadline := time.Now().Add(4 * timeout)
	for time.Now().Before(deadline) {
		c.Touch("alive")
		time.Sleep(timeout / 10)
	}

	assert.Empty(t, rec.Timeouts("alive"))
	assert.Equal(t, 1, c.ActiveCount())
}

// A second touch before the timeout moves the deadline to the second touch
func testTouchExtendsDeadline(t *testing.T, factory ClockFactory) {
	const (
		timeout = 500 * time.Millisecond
		refresh = 50 * time.Millisecond
	)
	rec := NewRecorder()
	c := newClock(t, factory, timeout, refresh, rec)

	first := time.Now()
	c.Touch("a")
	time.Sleep(timeout * 4 / 5)
	second := time.Now()
	if second.Sub(first) >= timeout-refresh {
		t.Skip("scheduler delayed the second touch too long")
	}
	c.Touch("a")

	require.Eventually(t, func() bool {
		return len(rec.Timeouts("a")) > 0
	}, timeout+refresh+slack, 5*time.Millisecond)

	events := rec.Timeouts("a")
	assert.Len(t, events, 1)
	assert.GreaterOrEqual(t, events[0].At.Sub(second), timeout, "timeout counted from the first touch")
}

// Removing a key that was never inserted is a no-op, also when repeated
func testRemoveUnknownKey(t *testing.T, factory ClockFactory) {
	c := newClock(t, factory, time.Second, 100*time.Millisecond, NewRecorder())

	c.Remove("x")
	c.Remove("x")
	assert.Equal(t, 0, c.ActiveCount())
}

// Remove stops tracking without a notification and is idempotent
func testRemove(t *testing.T, factory ClockFactory) {
	const (
		timeout = 200 * time.Millisecond
		refresh = 20 * time.Millisecond
	)
	rec := NewRecorder()
	c := newClock(t, factory, timeout, refresh, rec)

	c.Touch("a")
	c.Touch("b")
	assert.Equal(t, 2, c.ActiveCount())

	c.Remove("a")
	assert.Equal(t, 1, c.ActiveCount())
	c.Remove("a")
	assert.Equal(t, 1, c.ActiveCount(), "second remove must not change the count")
	c.Remove("never-seen")
	assert.Equal(t, 1, c.ActiveCount())

	require.Eventually(t, func() bool {
		return len(rec.Timeouts("b")) == 1
	}, timeout+refresh+slack, 5*time.Millisecond)

	time.Sleep(2 * refresh)
	assert.Empty(t, rec.Timeouts("a"), "removed key must not time out")
}

// Two keys touched together produce exactly one timeout each
func testTwoKeysNoDuplicates(t *testing.T, factory ClockFactory) {
	const (
		timeout = 100 * time.Millisecond
		refresh = 20 * time.Millisecond
	)
	rec := NewRecorder()
	c := newClock(t, factory, timeout, refresh, rec)

	c.Touch("a")
	c.Touch("b")

	require.Eventually(t, func() bool {
		return rec.Count(clock.EventTimeout) >= 2
	}, timeout+refresh+slack, 5*time.Millisecond)

	// give a duplicate the chance to show up
	time.Sleep(5 * refresh)

	assert.Equal(t, 2, rec.Count(clock.EventTimeout))
	assert.Len(t, rec.Timeouts("a"), 1)
	assert.Len(t, rec.Timeouts("b"), 1)
}

// Touching a key after it timed out starts a new lifecycle with its own single timeout
func testFreshLifecycle(t *testing.T, factory ClockFactory) {
	const (
		timeout = 100 * time.Millisecond
		refresh = 20 * time.Millisecond
	)
	rec := NewRecorder()
	c := newClock(t, factory, timeout, refresh, rec)

	c.Touch("a")
	require.Eventually(t, func() bool {
		return len(rec.Timeouts("a")) == 1 && c.ActiveCount() == 0
	}, timeout+2*refresh+slack, 5*time.Millisecond)

	restart := time.Now()
	c.Touch("a")
	assert.Equal(t, 1, c.ActiveCount())

	require.Eventually(t, func() bool {
		return len(rec.Timeouts("a")) == 2
	}, timeout+refresh+slack, 5*time.Millisecond)

	time.Sleep(5 * refresh)
	events := rec.Timeouts("a")
	require.Len(t, events, 2, "stale or duplicate timeout")
	assert.GreaterOrEqual(t, events[1].At.Sub(restart), timeout)
}

// Concurrent touches on disjoint keys create exactly one entry per key
func testConcurrentDisjointTouches(t *testing.T, factory ClockFactory) {
	const (
		goroutines = 16
		keysPer    = 250
	)
	rec := NewRecorder()
	c := newClock(t, factory, time.Hour, 10*time.Millisecond, rec)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < keysPer; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i)
				c.Touch(key)
				c.Touch(key)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, goroutines*keysPer, c.ActiveCount())
	assert.Equal(t, goroutines*keysPer, c.GetInfo().Active)
	assert.Zero(t, rec.Count(clock.EventTimeout))
}

// Shutdown is idempotent and the handler sees exactly one shutdown event
func testShutdownOnce(t *testing.T, factory ClockFactory) {
	rec := NewRecorder()
	c, err := factory(time.Second, 20*time.Millisecond, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Shutdown(ctx))
		}()
	}
	wg.Wait()
	assert.NoError(t, c.Close())

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, clock.EventShutdown, events[0].Kind)
	assert.Equal(t, "", events[0].Key, "shutdown carries the zero key")
}

// No timeout is delivered after the shutdown event
func testNoTimeoutAfterShutdown(t *testing.T, factory ClockFactory) {
	const (
		timeout = 30 * time.Millisecond
		refresh = 10 * time.Millisecond
	)
	rec := NewSlowRecorder(time.Millisecond)
	c, err := factory(timeout, refresh, rec)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		c.Touch(fmt.Sprintf("k%d", i))
	}
	// shut down while timeouts are being delivered
	time.Sleep(timeout + 2*refresh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, 1, rec.Count(clock.EventShutdown))
	assert.Equal(t, clock.EventShutdown, events[len(events)-1].Kind, "shutdown must be the last event")
}

// Touch after shutdown is ignored
func testTouchAfterShutdown(t *testing.T, factory ClockFactory) {
	rec := NewRecorder()
	c, err := factory(50*time.Millisecond, 10*time.Millisecond, rec)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	before := c.ActiveCount()

	c.Touch("late")
	c.Remove("late")
	c.Touch("late")

	assert.Equal(t, before, c.ActiveCount())
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.Timeouts("late"))
	assert.Equal(t, 1, rec.Count(clock.EventShutdown))
}

// A slow handler neither blocks Touch nor delays the detection of other keys
func testSlowHandler(t *testing.T, factory ClockFactory) {
	const (
		timeout = 50 * time.Millisecond
		refresh = 10 * time.Millisecond
	)
	rec := NewSlowRecorder(200 * time.Millisecond)
	c := newClock(t, factory, timeout, refresh, rec)

	for i := 0; i < 8; i++ {
		c.Touch(fmt.Sprintf("slow-%d", i))
	}
	time.Sleep(timeout + 2*refresh)

	// handlers are busy now, touching must still be immediate
	start := time.Now()
	for i := 0; i < 1000; i++ {
		c.Touch(fmt.Sprintf("fast-%d", i))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "touch blocked on the handler")

	// keep the queue short so the shutdown in the cleanup does not wait for 1000 slow calls
	for i := 0; i < 1000; i++ {
		c.Remove(fmt.Sprintf("fast-%d", i))
	}
}

// Many keys expire together, each exactly once
func testManyExpiringKeys(t *testing.T, factory ClockFactory) {
	const (
		keys    = 2000
		timeout = 100 * time.Millisecond
		refresh = 20 * time.Millisecond
	)
	rec := NewRecorder()
	c := newClock(t, factory, timeout, refresh, rec)

	for i := 0; i < keys; i++ {
		c.Touch(fmt.Sprintf("key-%d", i))
	}
	assert.Equal(t, keys, c.ActiveCount())

	require.Eventually(t, func() bool {
		return rec.Count(clock.EventTimeout) == keys
	}, timeout+refresh+2*slack, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return c.ActiveCount() == 0
	}, refresh+slack, 5*time.Millisecond)

	seen := make(map[string]struct{}, keys)
	for _, e := range rec.Events() {
		if e.Kind != clock.EventTimeout {
			continue
		}
		_, dup := seen[e.Key]
		assert.False(t, dup, "duplicate timeout for %s", e.Key)
		seen[e.Key] = struct{}{}
	}
}

// A handler that never returns for one key does not delay the timeouts of other keys
func testBlockedWorker(t *testing.T, factory ClockFactory) {
	const (
		timeout = 100 * time.Millisecond
		refresh = 20 * time.Millisecond
	)
	rec := NewRecorder()
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := clock.HandlerFunc[string](func(key string, kind clock.EventKind) {
		if kind == clock.EventTimeout && key == "stuck" {
			close(entered)
			<-release
		}
		rec.Handle(key, kind)
	})
	c := newClock(t, factory, timeout, refresh, handler)
	// registered after newClock, so it runs before the shutdown in its cleanup
	t.Cleanup(func() { close(release) })

	c.Touch("stuck")
	select {
	case <-entered:
	case <-time.After(timeout + refresh + slack):
		t.Fatal("handler was not called for stuck")
	}

	keys := []string{"a", "b", "c"}
	start := time.Now()
	for _, k := range keys {
		c.Touch(k)
	}

	require.Eventually(t, func() bool {
		for _, k := range keys {
			if len(rec.Timeouts(k)) != 1 {
				return false
			}
		}
		return true
	}, timeout+refresh+slack, 5*time.Millisecond, "timeouts of other keys waited for the blocked handler")

	for _, k := range keys {
		assert.GreaterOrEqual(t, rec.Timeouts(k)[0].At.Sub(start), timeout)
	}
	assert.Empty(t, rec.Timeouts("stuck"))
}

