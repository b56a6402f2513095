// Package main provides a performance benchmarking tool for the pipecorr CLI.
// It measures compare and index times across datasets and snapshot backends,
// running each test multiple times, treating the first successful run as cold and averaging the rest as warm,
// generating CSV output for performance analysis and documentation.
//
// Prerequisites:
// - pipecorr binary installed and available in PATH
// - One directory per dataset under the base directory, each holding "old" and "new" output trees.
//   "generate" writes synthetic datasets in that layout.
//
// Usage:
//
//	go run ./benchmark [dataset-base-dir]
//	go run ./benchmark generate [dataset-base-dir] [subjects]
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BenchmarkResult holds the result of one benchmark suite.
type BenchmarkResult struct {
	Dataset     string
	Command     string
	Backend     string
	NoCacheTime string
	ColdTime    string
	WarmTime    string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	DatasetBase string
	Timeout     time.Duration
	Workers     int
	NoCacheRuns int
	CacheRuns   int
	Backends    []string
	Datasets    []string
}

// benchCommand describes one CLI invocation under test.
type benchCommand struct {
	name       string
	args       func(oldTree, newTree string) []string
	completion string
}

var commands = []benchCommand{
	{
		name:       "compare",
		args:       func(o, n string) []string { return []string{"compare", o, n} },
		completion: "Compare completed in",
	},
	{
		name:       "compare-quick",
		args:       func(o, n string) []string { return []string{"compare", o, n, "--quick"} },
		completion: "Compare completed in",
	},
	{
		name:       "index",
		args:       func(o, _ string) []string { return []string{"index", o} },
		completion: "Indexed",
	},
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "generate" {
		runGenerate(os.Args[2:])
		return
	}
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [dataset-base-dir]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		DatasetBase: os.Args[1],
		Timeout:     10 * time.Minute,
		Workers:     8,
		NoCacheRuns: 3,
		CacheRuns:   4,
		Backends:    []string{"sqlite", "badger"},
	}

	datasets, err := discoverDatasets(config.DatasetBase)
	if err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}
	config.Datasets = datasets

	if _, err := exec.LookPath("pipecorr"); err != nil {
		fmt.Printf("Prerequisites check failed: pipecorr binary not found in PATH\n")
		os.Exit(1)
	}

	results := runBenchmarks(config)

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// discoverDatasets lists every directory under base that holds both an old and a new tree.
func runGenerate(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Printf("Usage: %s generate [dataset-base-dir] [subjects]\n", os.Args[0])
		os.Exit(1)
	}
	subjects := 4
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			fmt.Printf("Invalid subject count %q\n", args[1])
			os.Exit(1)
		}
		subjects = n
	}

	sizes := map[string][]int{
		"small":  {16, 16, 16, 20},
		"medium": {32, 32, 24, 60},
	}
	for name, dims := range sizes {
		fmt.Printf("Generating %s dataset with %d subjects...\n", name, subjects)
		if err := generateDataset(args[0], name, SynthConfig{Subjects: subjects, Dims: dims, Noise: 0.5}); err != nil {
			fmt.Printf("Failed to generate %s: %v\n", name, err)
			os.Exit(1)
		}
	}
}

func discoverDatasets(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var datasets []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if isDir(filepath.Join(base, e.Name(), "old")) && isDir(filepath.Join(base, e.Name(), "new")) {
			datasets = append(datasets, e.Name())
		}
	}
	if len(datasets) == 0 {
		return nil, fmt.Errorf("no dataset with old/ and new/ trees under %s", base)
	}
	return datasets, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// runBenchmarks executes all benchmark tests across datasets and backends.
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d datasets, %v timeout, %d workers, no-cache: %d runs, cache: %d runs\n",
		len(config.Datasets), config.Timeout, config.Workers, config.NoCacheRuns, config.CacheRuns)

	for _, dataset := range config.Datasets {
		fmt.Printf("Benchmarking %s\n", dataset)
		oldTree := filepath.Join(config.DatasetBase, dataset, "old")
		newTree := filepath.Join(config.DatasetBase, dataset, "new")

		for _, backend := range config.Backends {
			clearCache(backend)
			for _, c := range commands {
				results = append(results, runBenchmarkSuite(config, dataset, backend, c, c.args(oldTree, newTree)))
			}
		}
	}

	return results
}

func clearCache(backend string) {
	clearCmd := exec.Command("pipecorr", "cache", "clear", "--cache-backend", backend)
	if output, err := clearCmd.CombinedOutput(); err != nil {
		fmt.Printf("Warning: failed to clear %s cache: %v\nOutput: %s\n", backend, err, string(output))
	}
}

// runBenchmarkSuite runs both no-cache and cache benchmarks for a command.
func runBenchmarkSuite(config BenchmarkConfig, dataset, backend string, c benchCommand, args []string) BenchmarkResult {
	fmt.Printf("Running %s on %s with %s\n", c.name, dataset, backend)

	runPhase := func(extra []string, numRuns int, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, numRuns)
		cold, times := runBenchmark(config, append(append([]string{}, args...), extra...), c.completion, numRuns)
		if len(times) == 0 {
			return cold, "TIMEOUT"
		}
		var sum float64
		for _, t := range times {
			sum += t
		}
		return cold, fmt.Sprintf("%.3fs", sum/float64(len(times)))
	}

	_, noCacheAvg := runPhase([]string{"--no-cache"}, config.NoCacheRuns, "No-cache")
	coldTime, warmAvg := runPhase([]string{"--cache-backend", backend}, config.CacheRuns, "Cache")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-cache average: %s, Cold time: %s, Warm average: %s\n", noCacheAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Dataset:     dataset,
		Command:     c.name,
		Backend:     backend,
		NoCacheTime: noCacheAvg,
		ColdTime:    coldTimeStr,
		WarmTime:    warmAvg,
	}
}

// runBenchmark executes a pipecorr command multiple times and returns cold time and warm times.
func runBenchmark(config BenchmarkConfig, args []string, completion string, numRuns int) (coldTime float64, warmTimes []float64) {
	args = append(args, "--workers", fmt.Sprint(config.Workers), "--output-dir", filepath.Join(os.TempDir(), "pipecorr_bench_out"))

	var times []float64
	for run := 1; run <= numRuns; run++ {
		start := time.Now()

		cmd := exec.Command("pipecorr", args...)

		done := make(chan bool)
		var output []byte
		var cmdErr error

		go func() {
			output, cmdErr = cmd.CombinedOutput()
			done <- true
		}()

		select {
		case <-done:
			if cmdErr == nil && strings.Contains(string(output), completion) {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			_ = cmd.Process.Kill()
			<-done
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// saveResults writes benchmark results to a timestamped CSV file.
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(os.TempDir(), fmt.Sprintf("pipecorr_benchmark_%s.csv", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"dataset", "cmd", "backend", "no_cache_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range results {
		if err := writer.Write([]string{r.Dataset, r.Command, r.Backend, r.NoCacheTime, r.ColdTime, r.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary.
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, c := range commands {
		fmt.Printf("%s:\n", c.name)
		for _, r := range results {
			if r.Command == c.name {
				fmt.Printf("  %-16s %-8s: No-cache: %s, Cold: %s, Warm: %s\n", r.Dataset, r.Backend, r.NoCacheTime, r.ColdTime, r.WarmTime)
			}
		}
	}
}
