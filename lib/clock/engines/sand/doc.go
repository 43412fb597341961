// Package sand implements clock.IClock with a periodic scanner over a concurrent map.
// Every tracked key holds a small timer entry; a single scanner goroutine walks the
// map once per refresh interval, marks the entries that were not touched for the
// timeout duration and hands them to a pool of dispatcher workers that call the handler.
//
// Key Components:
//
//   - sandImpl: The clock itself. It owns the table, the scanner goroutine, the dispatcher
//     and the metrics. Touch and Remove operate on the table directly and never wait for
//     the scanner or for a handler.
//
//   - Table / Entry (internal): An xsync.MapOf from key to *Entry. The entry state is one
//     atomic word (last update timestamp and expired flag), so refreshing a key and
//     expiring it are decided by a single CompareAndSwap each. A touch that races with the
//     scanner either refreshes the entry before it is marked (no timeout) or finds it
//     expired and replaces it with a new entry (new lifecycle).
//
//   - Scanner: One loop per clock: check for shutdown, scan, submit the timeouts, sleep
//     for the refresh interval and finally remove the entries that timed out in this cycle.
//     A timeout is therefore reported between TimeoutDuration and
//     TimeoutDuration+RefreshInterval after the last touch.
//
//   - Dispatcher: A lock-free multi-producer queue (util.LockFreeMPSC) feeding a fixed number
//     of worker goroutines. The shutdown event is delivered after all timeouts that were
//     already being delivered and no timeout is delivered after it. A panicking handler is
//     recovered and counted, the worker keeps running.
//
// Every entry owns one copy of its key. The scanner and the dispatcher pass a one word
// internal.Handle pointing at that copy, so large composite keys are never copied per event.
//
// Metrics are collected per clock with VictoriaMetrics/metrics and can be exported with
// IClock.WriteMetrics in Prometheus text format.
package sand
