// Package core has core logic for indexing, matching and scoring two output trees.
package core

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pipecorr/pipecorr/core/agg"
	"github.com/pipecorr/pipecorr/core/corr"
	"github.com/pipecorr/pipecorr/core/index"
	"github.com/pipecorr/pipecorr/core/match"
	"github.com/pipecorr/pipecorr/core/matrix"
	"github.com/pipecorr/pipecorr/core/sched"
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/internal/locate"
	"github.com/pipecorr/pipecorr/internal/logging"
	"github.com/pipecorr/pipecorr/internal/outwriter"
	"github.com/pipecorr/pipecorr/schema"
	"golang.org/x/sync/errgroup"
)

// ErrNoGrid is returned by the matrix mode when no grid was configured.
var ErrNoGrid = errors.New("no grid configured: set grid in the config file or pass --grid-file")

// ExecutorFunc defines the function signature for executing different modes.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error

// ExecuteCompare compares both trees and writes every report.
// It serves as the main entry point for the 'compare' mode.
func ExecuteCompare(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	output, err := GetCompareResults(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	return outwriter.WriteCompareResults(output, cfg)
}

// ExecuteIndex fingerprints a single tree and prints what was indexed.
// It serves as the main entry point for the 'index' mode.
func ExecuteIndex(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	idx, stats, err := GetIndexResults(ctx, cfg, cfg.OldTree, mgr)
	if err != nil {
		return err
	}
	return outwriter.WriteIndexResults(idx, stats, cfg, time.Since(start))
}

// ExecuteMatrix correlates the configured feature x subject grid.
// It serves as the main entry point for the 'matrix' mode.
func ExecuteMatrix(ctx context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	if cfg.Grid == nil {
		return ErrNoGrid
	}
	m, err := matrix.Build(ctx, cfg.Grid, cfg.OldTree, cfg.NewTree)
	if err != nil {
		return err
	}
	return outwriter.WriteMatrixResults(m, cfg)
}

// treeSnapshot is the cached outcome of indexing one tree.
type treeSnapshot struct {
	Index *schema.FileIndex `json:"index"`
	Stats schema.IndexStats `json:"stats"`
	key   string
}

// GetCompareResults runs the locate, index, match, score and aggregate stages
// for both trees. The run is recorded when a run store is configured.
func GetCompareResults(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) (*schema.CompareOutput, error) {
	start := time.Now()
	logger := logging.New("core")

	if !shouldSuppressHeader(ctx) {
		outwriter.LogCompareHeader(cfg)
	}

	remote, err := openRemote(ctx, cfg, cfg.OldTree, cfg.NewTree)
	if err != nil {
		return nil, err
	}
	if remote != nil {
		defer func() { _ = remote.Close() }()
	}
	snapshots := snapshotStore(cfg, mgr)

	// --- 1. Locate and index both trees concurrently ---
	var oldSide, newSide *treeSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		oldSide, err = indexTree(gctx, cfg.OldTree, cfg.OldRenames, cfg.Excludes, remote, snapshots)
		return err
	})
	g.Go(func() error {
		var err error
		newSide, err = indexTree(gctx, cfg.NewTree, cfg.NewRenames, cfg.Excludes, remote, snapshots)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// --- 2. Match ---
	matchKey := generateCacheKey(schema.MatchStage, oldSide.key, newSide.key)
	matched, err := cachedStage(snapshots, matchKey, func() (*schema.MatchResult, error) {
		return match.Match(oldSide.Index, newSide.Index)
	}, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Quick {
		matched = match.Filter(matched, schema.QuickCategories)
		if len(matched.Matched) == 0 {
			return nil, fmt.Errorf("%w among the quick categories", match.ErrNoMatches)
		}
	}
	logger.Info("matched artifacts", "pairs", len(matched.Matched),
		"missing_in_old", len(matched.MissingInOld), "missing_in_new", len(matched.MissingInNew))

	// --- 3. Begin run tracking (if configured) ---
	runs := runStore(mgr)
	if runs != nil {
		runID, err := runs.BeginRun(cfg.OldTree, cfg.NewTree, runParams(cfg))
		if err != nil {
			contract.LogWarn("Run tracking initialization failed", err)
		} else {
			ctx = withRunID(ctx, runID)
		}
	}

	// --- 4. Score ---
	resultsKey := generateCacheKey(schema.ResultsStage, matchKey,
		strconv.FormatFloat(cfg.Threshold, 'g', -1, 64), strconv.FormatBool(cfg.Quick))
	results, err := cachedStage(snapshots, resultsKey, func() ([]schema.CorrelationResult, error) {
		return scorePairs(ctx, cfg, matched.Matched, remote), nil
	}, keepResults)
	if err != nil {
		return nil, err
	}

	// --- 5. Aggregate ---
	output := &schema.CompareOutput{
		OldLabel:   cfg.OldLabel,
		NewLabel:   cfg.NewLabel,
		OldStats:   oldSide.Stats,
		NewStats:   newSide.Stats,
		Match:      matched,
		Results:    results,
		Reports:    make(map[schema.CorrKind]schema.ReportGroup, len(schema.AllCorrKinds)),
		SubOptimal: agg.SubOptimal(results),
		Missing:    agg.Missing(matched, cfg.OldLabel, cfg.NewLabel),
		Counts:     agg.Count(results),
	}
	opts := agg.Options{Grouping: cfg.Grouping, Quick: cfg.Quick, OldLabel: cfg.OldLabel, NewLabel: cfg.NewLabel}
	for _, kind := range schema.AllCorrKinds {
		report := agg.Aggregate(results, kind, opts)
		output.Reports[kind] = report
		output.Summaries = append(output.Summaries, agg.Summarize(report)...)
	}
	output.Duration = time.Since(start)

	// --- 6. End run tracking ---
	finishRun(ctx, runs, output)
	return output, nil
}

// GetIndexResults locates and fingerprints one tree.
func GetIndexResults(ctx context.Context, cfg *contract.Config, root string, mgr contract.CacheManager) (*schema.FileIndex, schema.IndexStats, error) {
	remote, err := openRemote(ctx, cfg, root)
	if err != nil {
		return nil, schema.IndexStats{}, err
	}
	if remote != nil {
		defer func() { _ = remote.Close() }()
	}

	rules := cfg.OldRenames
	if root == cfg.NewTree && root != cfg.OldTree {
		rules = cfg.NewRenames
	}
	snap, err := indexTree(ctx, root, rules, cfg.Excludes, remote, snapshotStore(cfg, mgr))
	if err != nil {
		return nil, schema.IndexStats{}, err
	}
	return snap.Index, snap.Stats, nil
}

// GetPairResult scores a single pair of artifacts, fetching remote ones first.
func GetPairResult(ctx context.Context, cfg *contract.Config, category, oldPath, newPath string) (schema.CorrelationResult, error) {
	remote, err := openRemote(ctx, cfg, oldPath, newPath)
	if err != nil {
		return schema.CorrelationResult{}, err
	}
	if remote != nil {
		defer func() { _ = remote.Close() }()
	}
	if category == "" {
		category = index.Category(path.Base(oldPath))
	}
	entry := schema.MatchedEntry{Category: category, OldPath: oldPath, NewPath: newPath}
	results := scorePairs(ctx, cfg, []schema.MatchedEntry{entry}, remote)
	return results[0], nil
}

// indexTree locates and indexes one tree, reusing a stored snapshot when valid.
func indexTree(ctx context.Context, root string, rules []schema.RenameRule, excludes []string, remote *locate.GCSClient, store contract.CacheStore) (*treeSnapshot, error) {
	var lister contract.TreeLister
	if remote != nil {
		lister = remote
	}
	paths, err := locate.Locate(ctx, root, lister, excludes)
	if err != nil {
		return nil, err
	}

	key := generateCacheKey(schema.IndexStage, root, treeIdentity(paths), renameIdentity(rules), strings.Join(excludes, ","))
	snap, err := cachedStage(store, key, func() (*treeSnapshot, error) {
		idx, stats := index.Build(paths, root, rules)
		return &treeSnapshot{Index: idx, Stats: stats}, nil
	}, nil)
	if err != nil {
		return nil, err
	}
	snap.key = key

	logging.New("core").Info("indexed tree", "root", root, "seen", snap.Stats.Seen, "indexed", snap.Stats.Indexed,
		"collisions", snap.Stats.Collisions, "skipped_noncomparable", snap.Stats.SkippedNonComp, "skipped_shallow", snap.Stats.SkippedShallow)
	return snap, nil
}

// scorePairs runs the worker pool over the matched pairs.
func scorePairs(ctx context.Context, cfg *contract.Config, entries []schema.MatchedEntry, remote *locate.GCSClient) []schema.CorrelationResult {
	logger := logging.New("core")
	opts := sched.Options{
		Workers:  cfg.Workers,
		StageDir: cfg.StageDir,
		Progress: func(done, total int, r schema.CorrelationResult) {
			logger.Debug("scored pair", "done", done, "total", total, "category", r.Category, "kind", r.Kind,
				"pearson", r.Pearson, "concordance", r.Concordance)
		},
	}
	if remote != nil {
		opts.Fetcher = remote
	}
	return sched.Run(ctx, entries, corr.NewEngine(cfg.Threshold), opts)
}

// openRemote returns an object store client when any path is remote, else nil.
func openRemote(ctx context.Context, cfg *contract.Config, paths ...string) (*locate.GCSClient, error) {
	for _, p := range paths {
		if schema.IsRemote(p) {
			client, err := locate.NewGCSClient(ctx, cfg.GCSCredentials)
			if err != nil {
				return nil, fmt.Errorf("failed to open object store client: %w", err)
			}
			return client, nil
		}
	}
	return nil, nil
}

// snapshotStore returns the snapshot cache, or nil when caching is off.
func snapshotStore(cfg *contract.Config, mgr contract.CacheManager) contract.CacheStore {
	if cfg.NoCache || mgr == nil {
		return nil
	}
	return mgr.GetSnapshotStore()
}

// runStore returns the run history store, or nil when tracking is off.
func runStore(mgr contract.CacheManager) contract.RunStore {
	if mgr == nil {
		return nil
	}
	return mgr.GetRunStore()
}

// runParams captures the settings that shaped a run.
func runParams(cfg *contract.Config) map[string]any {
	return map[string]any{
		"old_label": cfg.OldLabel,
		"new_label": cfg.NewLabel,
		"workers":   cfg.Workers,
		"threshold": cfg.Threshold,
		"grouping":  string(cfg.Grouping),
		"quick":     cfg.Quick,
	}
}

// finishRun stores the pair results and closes out a tracked run.
func finishRun(ctx context.Context, runs contract.RunStore, output *schema.CompareOutput) {
	runID, ok := getRunID(ctx)
	if runs == nil || !ok {
		return
	}
	if err := runs.RecordResults(runID, output.Results); err != nil {
		contract.LogWarn("Failed to record pair results", err)
	}
	summary := schema.RunSummary{
		EndTime:    time.Now(),
		TotalPairs: len(output.Results),
		SubOptimal: output.Counts.SubOptimal,
		Failures:   output.Counts.ReadErrors + output.Counts.ShapeMismatch + output.Counts.FileNotFound,
	}
	if err := runs.EndRun(runID, summary); err != nil {
		contract.LogWarn("Failed to finalize run tracking", err)
	}
}
