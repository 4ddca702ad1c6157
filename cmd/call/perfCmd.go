package call

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/demo"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/invoke"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dSync servers",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfNumThreads = 10
	perfStringKB   = 1
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. echo,log)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU used for the benchmark"))
	key = "string-size"
	perfTestCmd.Flags().Int(key, 1, util.WrapString("How large the argument of the echo test should be (in KB)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfStringKB = viper.GetInt("string-size")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfTest is a single benchmark: call is executed b.N times
type perfTest struct {
	name string
	call func(ctx context.Context, i int) error
}

func perfTests() []perfTest {
	payload := strings.Repeat("x", perfStringKB*1024)
	origin := demo.NewPoint(0, 0)

	return []perfTest{
		{"add", func(ctx context.Context, i int) error {
			_, err := invoke.Call[int32](ctx, invoker, "add", int32(i), int32(1))
			return err
		}},
		{"echo", func(ctx context.Context, _ int) error {
			_, err := invoke.Call[string](ctx, invoker, "echo", payload)
			return err
		}},
		{"move", func(ctx context.Context, i int) error {
			_, err := invoke.Call[*demo.Point](ctx, invoker, "move", origin, int32(i), int32(-i))
			return err
		}},
		{"log", func(ctx context.Context, i int) error {
			_, err := invoker.Call(ctx, "log", "perf "+strconv.Itoa(i))
			return err
		}},
	}
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dSync servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	if viper.GetBool("local") {
		fmt.Println("  local execution, no server")
	} else {
		fmt.Println(config.String())
	}
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)

	for _, test := range perfTests() {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test.name) {
				return
			}

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					ctx, cancel := context.WithTimeout(context.Background(), config.Timeout())
					if err := test.call(ctx, counter); err != nil {
						Logger.Warningf("(%s) - call failed: %v", test.name, err)
					}
					cancel()
					counter++
				}
			})
		})

		results[test.name] = result
		printResult(test.name, result)
	}

	// the log notifications are only queued, wait until the server saw them
	if rpcSession != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout())
		_, _ = invoker.Call(ctx, "echo", "flush")
		cancel()
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return err
		}
		fmt.Printf("\nresults written to %s\n", csvPath)
	}

	fmt.Println()
	fmt.Println("Latencies:")
	for _, s := range invoke.Stats() {
		fmt.Println(s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoint", "TimeoutSec", "RetryCount",
		"Serializer", "Transport", "Local",
		"Threads", "StringSizeKB",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	tests := make([]string, 0, len(results))
	for test := range results {
		tests = append(tests, test)
	}
	slices.Sort(tests)

	for _, test := range tests {
		result := results[test]
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			config.Transport.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			config.Serializer,
			config.Transport.Kind,
			strconv.FormatBool(viper.GetBool("local")),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfStringKB),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
