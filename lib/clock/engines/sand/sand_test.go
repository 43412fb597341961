package sand

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
	clocktesting "github.com/ValentinKolb/sandclock/lib/clock/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(name string, timeout, refresh time.Duration) *Options {
	opts := DefaultOptions()
	opts.Name = name
	opts.TimeoutDuration = timeout
	opts.RefreshInterval = refresh
	return opts
}

func TestBuildErrors(t *testing.T) {
	rec := clocktesting.NewRecorder()

	t.Run("NoHandler", func(t *testing.T) {
		_, err := New[string](testOptions("t", time.Second, time.Second), nil)
		assert.ErrorIs(t, err, clock.ErrNoHandler)

		var fn clock.HandlerFunc[string]
		_, err = New[string](testOptions("t", time.Second, time.Second), fn)
		assert.ErrorIs(t, err, clock.ErrNoHandler)
	})

	t.Run("NoTimeout", func(t *testing.T) {
		_, err := New[string](DefaultOptions(), rec)
		assert.ErrorIs(t, err, clock.ErrNoTimeout)

		_, err = New[string](nil, rec)
		assert.ErrorIs(t, err, clock.ErrNoTimeout)

		_, err = New[string](testOptions("t", -time.Second, time.Second), rec)
		assert.ErrorIs(t, err, clock.ErrNoTimeout)
	})

	t.Run("NoRefresh", func(t *testing.T) {
		_, err := New[string](testOptions("t", time.Second, 0), rec)
		assert.ErrorIs(t, err, clock.ErrNoRefresh)
	})

	t.Run("NegativeWorkers", func(t *testing.T) {
		opts := testOptions("t", time.Second, time.Second)
		opts.Workers = -1
		_, err := New[string](opts, rec)
		assert.ErrorIs(t, err, clock.ErrInvalidOption)

		var cerr *clock.Error
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, clock.ErrCInvalidOption, cerr.Code)
	})

	// a failed build never reaches the handler
	assert.Empty(t, rec.Events())
}

func TestOptionsDefaults(t *testing.T) {
	opts := &Options{TimeoutDuration: time.Second, RefreshInterval: time.Second}
	validated, err := opts.validate()
	require.NoError(t, err)

	assert.Equal(t, defaultWorkers, validated.Workers)
	assert.Equal(t, defaultName, validated.Name)
	assert.Equal(t, 0, opts.Workers, "validate must not modify the caller's options")

	s := validated.String()
	assert.Contains(t, s, "SAND CLOCK")
	assert.Contains(t, s, "1s - 2s")
}

func TestHandlerPanic(t *testing.T) {
	var calls atomic.Int32
	handler := clock.HandlerFunc[string](func(key string, kind clock.EventKind) {
		calls.Add(1)
		if key == "boom" {
			panic("handler failure")
		}
	})

	opts := testOptions("panic", 50*time.Millisecond, 10*time.Millisecond)
	opts.Workers = 1
	c, err := New[string](opts, handler)
	require.NoError(t, err)
	defer c.Close()

	c.Touch("boom")
	time.Sleep(5 * time.Millisecond)
	c.Touch("ok")

	// the only worker survives the panic and delivers the second timeout
	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 5*time.Millisecond)

	var buf bytes.Buffer
	c.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), `sandclock_handler_panics_total{clock="panic"} 1`)
}

func TestShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	handler := clock.HandlerFunc[string](func(key string, kind clock.EventKind) {
		if kind == clock.EventTimeout {
			entered <- struct{}{}
			<-release
		}
	})

	c, err := New[string](testOptions("blocked", 20*time.Millisecond, 10*time.Millisecond), handler)
	require.NoError(t, err)

	c.Touch("stuck")
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.Shutdown(ctx)
	assert.ErrorIs(t, err, clock.ErrShutdownTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	assert.NoError(t, c.Close())
	assert.Equal(t, StateStopped.String(), c.GetInfo().State)
}

func TestLargeKeys(t *testing.T) {
	type session struct {
		User   [32]byte
		Device [32]byte
	}

	var mu sync.Mutex
	var got []session
	handler := clock.HandlerFunc[session](func(key session, kind clock.EventKind) {
		if kind == clock.EventTimeout {
			mu.Lock()
			got = append(got, key)
			mu.Unlock()
		}
	})

	c, err := New[session](testOptions("large", 30*time.Millisecond, 10*time.Millisecond), handler)
	require.NoError(t, err)
	defer c.Close()

	k := session{}
	copy(k.User[:], "alf")
	copy(k.Device[:], "phone")
	c.Touch(k)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, k, got[0])
	mu.Unlock()
}

func TestGetInfo(t *testing.T) {
	c, err := New[int](testOptions("info", 30*time.Millisecond, 10*time.Millisecond), clock.HandlerFunc[int](func(int, clock.EventKind) {}))
	require.NoError(t, err)

	info := c.GetInfo()
	assert.Equal(t, clock.ImplSand, info.Impl)
	assert.Equal(t, "info", info.Name)
	assert.Equal(t, defaultWorkers, info.Workers)
	assert.Equal(t, 30*time.Millisecond, info.TimeoutDuration)

	c.Touch(1)
	c.Touch(2)
	assert.Equal(t, 2, c.GetInfo().Active)

	require.Eventually(t, func() bool {
		i := c.GetInfo()
		return i.Timeouts == 2 && i.Active == 0
	}, time.Second, 5*time.Millisecond)
	assert.Positive(t, c.GetInfo().ScanCycles)

	require.NoError(t, c.Close())
	info = c.GetInfo()
	assert.Equal(t, "Stopped", info.State)
	assert.Zero(t, info.DispatchFailures)
}

func TestWriteMetrics(t *testing.T) {
	c, err := New[string](testOptions("metrics", time.Hour, 10*time.Millisecond), clocktesting.NewRecorder())
	require.NoError(t, err)
	defer c.Close()

	c.Touch("a")
	c.Touch("a")
	c.Touch("b")
	c.Remove("b")

	var buf bytes.Buffer
	c.WriteMetrics(&buf)
	out := buf.String()

	assert.Contains(t, out, `sandclock_touches_total{clock="metrics"} 3`)
	assert.Contains(t, out, `sandclock_inserts_total{clock="metrics"} 2`)
	assert.Contains(t, out, `sandclock_removes_total{clock="metrics"} 1`)
	assert.Contains(t, out, `sandclock_active_entries{clock="metrics"} 1`)
}

func TestSeparateMetricSets(t *testing.T) {
	// two clocks with the same name must not collide
	a, err := New[string](testOptions("same", time.Hour, time.Second), clocktesting.NewRecorder())
	require.NoError(t, err)
	defer a.Close()
	b, err := New[string](testOptions("same", time.Hour, time.Second), clocktesting.NewRecorder())
	require.NoError(t, err)
	defer b.Close()

	a.Touch("x")

	var buf bytes.Buffer
	b.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), `sandclock_touches_total{clock="same"} 0`)
}

func TestTypedNilHandler(t *testing.T) {
	var rec *clocktesting.Recorder
	opts := testOptions("typed-nil", 20*time.Millisecond, 10*time.Millisecond)
	opts.Workers = 1
	c, err := New[string](opts, rec)
	require.NoError(t, err, "a typed nil pointer is a valid handler value")

	c.Touch("a")

	var buf bytes.Buffer
	require.Eventually(t, func() bool {
		buf.Reset()
		c.WriteMetrics(&buf)
		return bytes.Contains(buf.Bytes(), []byte(`sandclock_handler_panics_total{clock="typed-nil"} 1`))
	}, time.Second, 5*time.Millisecond)

	// the shutdown notification panics as well, the clock still stops
	assert.NoError(t, c.Close())
	assert.Equal(t, StateStopped.String(), c.GetInfo().State)
}

func TestInHandler(t *testing.T) {
	assert.NotEmpty(t, handlerFrame)
	assert.False(t, inHandler())

	var nested bool
	callHandler(func() {
		func() { nested = inHandler() }()
	})
	assert.True(t, nested)
}

func TestCloseFromHandler(t *testing.T) {
	for _, kind := range []clock.EventKind{clock.EventTimeout, clock.EventShutdown} {
		t.Run(kind.String(), func(t *testing.T) {
			var c clock.IClock[string]
			var shutdowns atomic.Int32
			closed := make(chan error, 2)
			handler := clock.HandlerFunc[string](func(key string, k clock.EventKind) {
				if k == clock.EventShutdown {
					shutdowns.Add(1)
				}
				if k == kind {
					closed <- c.Close()
				}
			})

			var err error
			c, err = New[string](testOptions("reentrant", 20*time.Millisecond, 10*time.Millisecond), handler)
			require.NoError(t, err)

			if kind == clock.EventTimeout {
				c.Touch("a")
			} else {
				go c.Close()
			}

			select {
			case err := <-closed:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Close called from the handler did not return")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			require.NoError(t, c.Shutdown(ctx))
			assert.Equal(t, StateStopped.String(), c.GetInfo().State)
			assert.Equal(t, int32(1), shutdowns.Load())
		})
	}
}
