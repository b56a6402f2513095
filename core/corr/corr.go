// Package corr scores a matched pair of artifacts with Pearson's r and Lin's CCC.
package corr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/pipecorr/pipecorr/internal/logging"
	"github.com/pipecorr/pipecorr/internal/nifti"
	"github.com/pipecorr/pipecorr/internal/tabular"
	"github.com/pipecorr/pipecorr/schema"
)

// Problem prefixes carried by read_error messages.
const (
	readingProblem     = "file reading problem"
	correlatingProblem = "correlating problem"
)

// errShape is returned by loaders and compute steps when the two arrays cannot be paired.
var errShape = errors.New("different shape")

// Engine scores matched pairs. It holds only read-only configuration and is
// safe for concurrent use.
type Engine struct {
	Threshold float64
}

// NewEngine creates an engine flagging pairs whose concordance is not above threshold.
func NewEngine(threshold float64) *Engine {
	return &Engine{Threshold: threshold}
}

// Score scores one matched entry whose paths are local.
func (e *Engine) Score(ctx context.Context, entry schema.MatchedEntry) schema.CorrelationResult {
	result := e.ScorePaths(entry.Category, entry.OldPath, entry.NewPath)
	logging.New("corr").DebugContext(ctx, "scored pair",
		"category", entry.Category, "kind", result.Kind, "concordance", result.Concordance)
	return result
}

// ScorePaths scores two local files. It never panics and never returns an
// error: every failure becomes a typed result.
func (e *Engine) ScorePaths(category, oldPath, newPath string) schema.CorrelationResult {
	if !exists(oldPath) {
		return schema.FileNotFound(category, oldPath)
	}
	if !exists(newPath) {
		return schema.FileNotFound(category, newPath)
	}

	oldFormat, newFormat := ClassifyFormat(oldPath), ClassifyFormat(newPath)
	if oldFormat != newFormat {
		return schema.ReadError(category,
			fmt.Sprintf("%s: format mismatch (%s vs %s)", readingProblem, oldFormat, newFormat), oldPath, newPath)
	}

	var (
		pair Pair
		err  error
	)
	switch {
	case oldFormat == schema.FormatVolumetric:
		pair, err = e.scoreVolumes(oldPath, newPath)
	case isTabular(oldFormat):
		pair, err = e.scoreTables(oldPath, newPath)
	default:
		err = &problem{prefix: readingProblem, err: fmt.Errorf("unrecognized format for %s", oldPath)}
	}

	var p *problem
	switch {
	case errors.Is(err, errShape):
		return schema.ShapeMismatch(category, oldPath, newPath)
	case errors.As(err, &p):
		return schema.ReadError(category, p.Error(), oldPath, newPath)
	case err != nil:
		return schema.ReadError(category, fmt.Sprintf("%s: %v", readingProblem, err), oldPath, newPath)
	}
	return e.classify(category, pair, oldPath, newPath)
}

// classify attaches provenance unless concordance is above the threshold.
// A NaN concordance is never above it.
func (e *Engine) classify(category string, pair Pair, oldPath, newPath string) schema.CorrelationResult {
	if pair.Concordance > e.Threshold {
		return schema.Scored(category, pair.Pearson, pair.Concordance, nil)
	}
	return schema.Scored(category, pair.Pearson, pair.Concordance, &schema.Provenance{OldPath: oldPath, NewPath: newPath})
}

// problem tags an error with the stage that raised it.
type problem struct {
	prefix string
	err    error
}

func (p *problem) Error() string { return p.prefix + ": " + p.err.Error() }

func (p *problem) Unwrap() error { return p.err }

// guard runs fn, turning a panic into a problem with the given prefix.
func guard(prefix string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &problem{prefix: prefix, err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		if errors.Is(err, errShape) {
			return err
		}
		return &problem{prefix: prefix, err: err}
	}
	return nil
}

func (e *Engine) scoreVolumes(oldPath, newPath string) (Pair, error) {
	var oldImg, newImg *nifti.Image
	err := guard(readingProblem, func() error {
		var err error
		if oldImg, err = nifti.Load(oldPath); err != nil {
			return err
		}
		newImg, err = nifti.Load(newPath)
		return err
	})
	if err != nil {
		return Pair{}, err
	}
	if len(oldImg.Data) != len(newImg.Data) {
		return Pair{}, errShape
	}

	var pair Pair
	err = guard(correlatingProblem, func() error {
		if oldImg.NDim() <= 3 {
			pair = Correlate(oldImg.Data, newImg.Data)
			return nil
		}
		if !slices.Equal(oldImg.Dims, newImg.Dims) {
			return fmt.Errorf("cannot batch %v against %v", oldImg.Dims, newImg.Dims)
		}
		nvox := oldImg.Dims[0] * oldImg.Dims[1] * oldImg.Dims[2]
		pair = Voxelwise(oldImg.Data, newImg.Data, nvox, len(oldImg.Data)/nvox)
		return nil
	})
	return pair, err
}

func (e *Engine) scoreTables(oldPath, newPath string) (Pair, error) {
	var oldTbl, newTbl *tabular.Table
	err := guard(readingProblem, func() error {
		var err error
		if oldTbl, err = tabular.ReadFile(oldPath); err != nil {
			return err
		}
		newTbl, err = tabular.ReadFile(newPath)
		return err
	})
	if err != nil {
		return Pair{}, err
	}
	if oldTbl.Rows != newTbl.Rows || oldTbl.NumCols() != newTbl.NumCols() {
		return Pair{}, errShape
	}

	var pair Pair
	err = guard(correlatingProblem, func() error {
		pair = Columnwise(oldTbl.Columns, newTbl.Columns)
		return nil
	})
	return pair, err
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
