// Package testing provides standardised tests and benchmarks for
// clock implementations that satisfy the clock.IClock interface.
//
// The package contains:
//   - RunClockTests: timing based conformance tests (single notification, keep alive,
//     remove, fresh lifecycles, concurrent touches, shutdown ordering, blocked workers)
//   - RunClockBenchmarks: throughput of Touch and Remove
//   - Recorder: a clock.Handler that records every event, optionally slow
//
// Example usage:
//
//	factory := func(timeout, refresh time.Duration, h clock.Handler[string]) (clock.IClock[string], error) {
//		return NewMyClock(timeout, refresh, h)
//	}
//
//	clocktesting.RunClockTests(t, "MyClock", factory)
//	clocktesting.RunClockBenchmarks(b, "MyClock", factory)
package testing
