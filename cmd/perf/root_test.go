package perf

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock/engines/sand"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldSkip(t *testing.T) {
	perfSkip = []string{"remove", " mixed"}
	defer func() { perfSkip = nil }()

	assert.True(t, shouldSkip("remove"))
	assert.True(t, shouldSkip("mixed"))
	assert.False(t, shouldSkip("touch-new"))
}

func TestWriteResultsToCSV(t *testing.T) {
	timer := gometrics.NewTimer()
	timer.Update(100 * time.Nanosecond)
	timer.Update(300 * time.Nanosecond)

	results := []result{{
		name:    "touch-existing",
		bench:   testing.BenchmarkResult{N: 1000, T: time.Millisecond},
		latency: timer,
	}}

	opts := sand.DefaultOptions()
	opts.TimeoutDuration = time.Hour

	path := filepath.Join(t.TempDir(), "perf.csv")
	require.NoError(t, writeResultsToCSV(path, results, opts))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Test", rows[0][0])
	assert.Equal(t, "touch-existing", rows[1][0])
	assert.Equal(t, "1000", rows[1][1]) // 1ms / 1000 ops
	assert.Equal(t, "2", rows[1][3])
	assert.Equal(t, "1h0m0s", rows[1][7])
}

func TestRunBenchmark(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a full benchmark")
	}
	perfNumThreads = 2

	opts := sand.DefaultOptions()
	opts.TimeoutDuration = time.Hour

	keys := []string{"a", "b", "c"}
	r, err := runBenchmark(benchmarks[1], opts, keys)
	require.NoError(t, err)
	assert.Positive(t, r.bench.N)
	assert.Equal(t, "touch-existing", r.name)
}
