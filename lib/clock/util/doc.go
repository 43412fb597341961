// Package util provides utility components for
// clock implementations that satisfy the clock.IClock interface.
//
// The package contains:
//   - lockfreempsc: A lock-free multi-producer queue whose items are fanned out to any number of
//     receivers through a channel, used to decouple timeout detection from event delivery
//   - statistics: Summary statistics (mean, deviation, percentiles) for latency reports
package util
