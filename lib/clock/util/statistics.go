package util

import (
	"math"
	"sort"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

// Stats summarizes a sample of float64 values (e.g. detection delays in milliseconds)
type Stats struct {
	Count        int     `json:"count" yaml:"count"`
	Min          float64 `json:"min" yaml:"min"`
	Max          float64 `json:"max" yaml:"max"`
	Mean         float64 `json:"mean" yaml:"mean"`
	StdDeviation float64 `json:"std_deviation" yaml:"std_deviation"`
	P50          float64 `json:"p50" yaml:"p50"`
	P95          float64 `json:"p95" yaml:"p95"`
	P99          float64 `json:"p99" yaml:"p99"`
}

// NewStats computes the statistics of values. The input slice is not modified.
// An empty input yields the zero Stats.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	// population standard deviation
	var sumSquaredDiffs float64
	for _, v := range sorted {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	return Stats{
		Count:        len(sorted),
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         mean,
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(sorted))),
		P50:          percentile(sorted, 0.50),
		P95:          percentile(sorted, 0.95),
		P99:          percentile(sorted, 0.99),
	}
}

// percentile returns the nearest-rank percentile p (0..1) of an ascending slice
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
