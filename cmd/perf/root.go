package perf

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/sandclock/cmd/util"
	"github.com/ValentinKolb/sandclock/lib/clock"
	"github.com/ValentinKolb/sandclock/lib/clock/engines/sand"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Measure the throughput of touch and remove",
		Long:    `Run benchmarks against an in-process sand clock and print ns/op, ops/sec and sampled latency percentiles for every operation.`,
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfNumThreads = 10
	perfKeySpread  = 10000
	perfSkip       = make([]string, 0)
)

// sampleEvery is the fraction of operations whose latency is recorded in the timer
const sampleEvery = 64

func init() {
	util.SetupClockFlags(PerfCmd, time.Hour)

	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. touch-new,remove)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU used for the parallel benchmarks"))
	key = "keys"
	PerfCmd.Flags().Int(key, 10000, util.WrapString("How many different keys to use for the existing-key benchmarks"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.ProcessClockConfig(cmd); err != nil {
		return err
	}

	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfKeySpread <= 0 || perfNumThreads <= 0 {
		return fmt.Errorf("keys and threads must be positive")
	}
	return nil
}

// result is the outcome of one benchmark
type result struct {
	name    string
	bench   testing.BenchmarkResult
	latency gometrics.Timer
}

// bench describes one benchmark: prepare fills the clock, op runs one operation for index i
type bench struct {
	name    string
	prepare func(c clock.IClock[string], keys []string)
	op      func(c clock.IClock[string], keys []string, i int)
}

var benchmarks = []bench{
	{
		name: "touch-new",
		op: func(c clock.IClock[string], keys []string, i int) {
			c.Touch(keys[i%len(keys)] + "-" + strconv.Itoa(i))
		},
	},
	{
		name:    "touch-existing",
		prepare: touchAll,
		op: func(c clock.IClock[string], keys []string, i int) {
			c.Touch(keys[i%len(keys)])
		},
	},
	{
		name:    "remove",
		prepare: touchAll,
		op: func(c clock.IClock[string], keys []string, i int) {
			c.Remove(keys[i%len(keys)])
		},
	},
	{
		name:    "mixed",
		prepare: touchAll,
		op: func(c clock.IClock[string], keys []string, i int) {
			k := keys[i%len(keys)]
			if i%10 == 0 {
				c.Remove(k)
			} else {
				c.Touch(k)
			}
		},
	},
}

func touchAll(c clock.IClock[string], keys []string) {
	for _, k := range keys {
		c.Touch(k)
	}
}

func run(_ *cobra.Command, _ []string) error {
	opts := util.GetClockOptions()

	fmt.Println("Performance testing tool for sand clocks")
	fmt.Print(opts.String())
	fmt.Printf("  %-22s: %d\n", "Threads", perfNumThreads)
	fmt.Printf("  %-22s: %d\n", "Keys", perfKeySpread)
	fmt.Println()

	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = "__perf-" + strconv.Itoa(i)
	}

	results := make([]result, 0, len(benchmarks))
	for _, bm := range benchmarks {
		if shouldSkip(bm.name) {
			printResult(result{name: bm.name})
			continue
		}
		r, err := runBenchmark(bm, opts, keys)
		if err != nil {
			return err
		}
		results = append(results, r)
		printResult(r)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, opts); err != nil {
			return err
		}
	}
	return nil
}

// runBenchmark runs bm in parallel on a fresh clock
func runBenchmark(bm bench, opts *sand.Options, keys []string) (result, error) {
	c, err := sand.New[string](opts, clock.HandlerFunc[string](func(string, clock.EventKind) {}))
	if err != nil {
		return result{}, err
	}
	defer c.Close()

	if bm.prepare != nil {
		bm.prepare(c, keys)
	}

	timer := gometrics.NewTimer()
	var counter atomic.Int64

	res := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				i := int(counter.Add(1))
				if i%sampleEvery == 0 {
					start := time.Now()
					bm.op(c, keys, i)
					timer.UpdateSince(start)
					continue
				}
				bm.op(c, keys, i)
			}
		})
	})

	return result{name: bm.name, bench: res, latency: timer}, nil
}

func shouldSkip(test string) bool {
	for _, s := range perfSkip {
		if strings.TrimSpace(s) == test {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark in a formatted way
func printResult(r result) {
	if r.bench.N == 0 || r.latency == nil {
		fmt.Printf("%-20sskipped\n", r.name)
		return
	}

	nsPerOp := math.Max(float64(r.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	ps := r.latency.Percentiles([]float64{0.5, 0.99})

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		r.name, nsPerOp, time.Duration(nsPerOp), opsPerSec, time.Duration(ps[0]), time.Duration(ps[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []result, opts *sand.Options) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "OpsPerSec", "SampledOps", "LatencyP50Ns", "LatencyP99Ns",
		"RefreshInterval", "TimeoutDuration", "Workers", "Threads", "Keys",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range results {
		nsPerOp := math.Max(float64(r.bench.NsPerOp()), 1)
		ps := r.latency.Percentiles([]float64{0.5, 0.99})
		row := []string{
			r.name,
			strconv.FormatInt(r.bench.NsPerOp(), 10),
			strconv.FormatFloat(1e9/nsPerOp, 'f', 0, 64),
			strconv.FormatInt(r.latency.Count(), 10),
			strconv.FormatFloat(ps[0], 'f', 0, 64),
			strconv.FormatFloat(ps[1], 'f', 0, 64),
			opts.RefreshInterval.String(),
			opts.TimeoutDuration.String(),
			strconv.Itoa(opts.Workers),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	return nil
}
