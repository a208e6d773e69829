package main

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"celldb/pkg/store"

	"github.com/spf13/cobra"
)

type BenchmarkResult struct {
	TotalOps      int
	SuccessfulOps int
	FailedOps     int
	Duration      time.Duration
	OpsPerSec     float64
	AvgLatency    time.Duration
	P99Latency    time.Duration
	MaxLatency    time.Duration
}

func newBenchCmd(a *app) *cobra.Command {
	var (
		ops         int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure write and read throughput against the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ops < 1 || concurrency < 1 {
				return fmt.Errorf("ops and concurrency must be positive")
			}
			return a.withStore(func(db *store.Store) error {
				out := cmd.OutOrStdout()

				writes := runBenchmark(ops, concurrency, func(i int) error {
					return db.PutString(benchKey(i), fmt.Sprintf("bench_value_%d_%d", i, time.Now().UnixNano()))
				})
				printResult(out, "Writes", writes)

				reads := runBenchmark(ops, concurrency, func(i int) error {
					_, found, err := db.GetString(benchKey(i))
					if err == nil && !found {
						err = fmt.Errorf("key %s not found", benchKey(i))
					}
					return err
				})
				printResult(out, "Reads", reads)

				return nil
			})
		},
	}

	cmd.Flags().IntVar(&ops, "ops", 10_000, "operations per phase")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "number of goroutines")
	return cmd
}

func benchKey(i int) string {
	return fmt.Sprintf("bench_key_%08d", i)
}

// runBenchmark runs op for every index in [0, totalOps) spread over
// concurrency goroutines.
func runBenchmark(totalOps, concurrency int, op func(i int) error) BenchmarkResult {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		failed    int
		latencies = make([]time.Duration, 0, totalOps)
	)

	start := time.Now()
	for g := 0; g < concurrency; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := g; i < totalOps; i += concurrency {
				opStart := time.Now()
				err := op(i)
				latency := time.Since(opStart)

				mu.Lock()
				if err != nil {
					failed++
				}
				latencies = append(latencies, latency)
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()
	duration := time.Since(start)

	res := BenchmarkResult{
		TotalOps:      totalOps,
		SuccessfulOps: totalOps - failed,
		FailedOps:     failed,
		Duration:      duration,
		OpsPerSec:     float64(totalOps-failed) / duration.Seconds(),
	}
	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		res.AvgLatency = sum / time.Duration(len(latencies))
		res.P99Latency = latencies[len(latencies)*99/100]
		res.MaxLatency = latencies[len(latencies)-1]
	}
	return res
}

func printResult(w io.Writer, name string, r BenchmarkResult) {
	fmt.Fprintf(w, "%s: %d ok, %d failed in %v (%.0f ops/s) avg=%v p99=%v max=%v\n",
		name, r.SuccessfulOps, r.FailedOps, r.Duration.Round(time.Millisecond),
		r.OpsPerSec, r.AvgLatency, r.P99Latency, r.MaxLatency)
}
