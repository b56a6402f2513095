// Package sched fans matched pairs out across a fixed pool of scoring workers.
package sched

import (
	"context"
	"fmt"
	"sync"

	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/internal/logging"
	"github.com/pipecorr/pipecorr/schema"
)

// Scorer scores one matched pair whose paths are local.
type Scorer interface {
	Score(ctx context.Context, entry schema.MatchedEntry) schema.CorrelationResult
}

// ProgressFunc is called once per finished pair. Calls never overlap.
type ProgressFunc func(done, total int, result schema.CorrelationResult)

// Options configures a scheduler run.
type Options struct {
	Workers  int
	StageDir string
	Fetcher  contract.Fetcher // required only when a path is remote
	Progress ProgressFunc
}

type task struct {
	idx   int
	entry schema.MatchedEntry
}

// Run scores every entry and returns the results in input order. It blocks
// until every pair is done; a failing pair becomes a typed result and never
// stops the others.
func Run(ctx context.Context, entries []schema.MatchedEntry, scorer Scorer, opts Options) []schema.CorrelationResult {
	workers := max(opts.Workers, 1)
	logger := logging.New("sched")
	logger.Debug("starting worker pool", "workers", workers, "pairs", len(entries))

	taskCh := make(chan task, len(entries))
	results := make([]schema.CorrelationResult, len(entries))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	// Start worker pool
	for range workers {
		wg.Go(func() {
			for t := range taskCh {
				// Each worker writes to a unique index, which is safe
				results[t.idx] = runTask(ctx, t.entry, scorer, opts)

				if opts.Progress != nil {
					mu.Lock()
					done++
					opts.Progress(done, len(entries), results[t.idx])
					mu.Unlock()
				}
			}
		})
	}

	for i, e := range entries {
		taskCh <- task{idx: i, entry: e}
	}
	close(taskCh)

	wg.Wait()
	return results
}

// runTask materializes remote paths, then scores the pair.
func runTask(ctx context.Context, entry schema.MatchedEntry, scorer Scorer, opts Options) (result schema.CorrelationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = schema.ReadError(entry.Category, fmt.Sprintf("correlating problem: panic: %v", r), entry.OldPath, entry.NewPath)
		}
	}()

	local := entry
	for _, p := range []*string{&local.OldPath, &local.NewPath} {
		if !schema.IsRemote(*p) {
			continue
		}
		if opts.Fetcher == nil {
			return schema.ReadError(entry.Category, "file reading problem: no object store client for "+*p, entry.OldPath, entry.NewPath)
		}
		staged, err := opts.Fetcher.Fetch(ctx, *p, opts.StageDir)
		if err != nil {
			return schema.ReadError(entry.Category, fmt.Sprintf("file reading problem: could not fetch %s: %v", *p, err), entry.OldPath, entry.NewPath)
		}
		*p = staged
	}
	return scorer.Score(ctx, local)
}
