// Package clock defines the contract of an inactivity clock: a time-aware map that tracks
// whether keyed entities are still active and notifies a Handler once an entity went
// silent for longer than a configured timeout.
//
// Typical uses are presence detection, ephemeral sessions or liveness tracking, where
// every entity periodically signals activity with Touch and the application wants
// a single callback when the signals stop.
//
// The package contains:
//   - IClock: the interface every clock implementation satisfies
//   - Handler / HandlerFunc: the capability that receives Timeout and Shutdown events
//   - Info: diagnostics returned by IClock.GetInfo
//   - Error / ErrCode: the error type used by all implementations
//
// Implementations live in the engines sub packages (see engines/sand). A conformance
// test suite for implementations is provided by the testing sub package.
//
// Example usage:
//
//	handler := clock.HandlerFunc[string](func(user string, kind clock.EventKind) {
//		if kind == clock.EventTimeout {
//			fmt.Printf("no more activity: %s has disconnected\n", user)
//		}
//	})
//
//	opts := sand.DefaultOptions()
//	opts.TimeoutDuration = 15 * time.Second
//
//	presence, err := sand.New[string](opts, handler)
//	if err != nil {
//		// handle build error
//	}
//	defer presence.Close()
//
//	presence.Touch("alf") // new activity
//	presence.Touch("alf") // activity continues
package clock
