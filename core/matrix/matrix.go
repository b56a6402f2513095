// Package matrix builds a feature x subject grid of Pearson correlations between two runs.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pipecorr/pipecorr/core/corr"
	"github.com/pipecorr/pipecorr/internal/logging"
	"github.com/pipecorr/pipecorr/internal/nifti"
	"github.com/pipecorr/pipecorr/internal/tabular"
	"github.com/pipecorr/pipecorr/schema"
)

// ErrRemoteRoot is returned for object-store roots, which cannot be globbed.
var ErrRemoteRoot = errors.New("grid paths must be local")

// SplitLabel splits "sub-01_ses-1" into its subject and session parts.
func SplitLabel(label string) (subject, session string) {
	subject, session, _ = strings.Cut(label, "_")
	return subject, session
}

// Expand fills the {subject} and {session} placeholders of a path template.
func Expand(template, label string) string {
	subject, session := SplitLabel(label)
	r := strings.NewReplacer("{subject}", subject, "{session}", session)
	return r.Replace(template)
}

// Resolve returns the first lexical match of a template under root, or "" if none.
func Resolve(root, template, label string) (string, error) {
	pattern := Expand(template, label)
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(root, pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("bad glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[0], nil
}

// ReadSeries loads the series a feature refers to. Delimited and vector files
// yield the named column, or the first column when the name is empty or absent.
// Volumes are flattened.
func ReadSeries(path, column string) ([]float64, error) {
	if corr.ClassifyFormat(path) == schema.FormatVolumetric {
		img, err := nifti.Load(path)
		if err != nil {
			return nil, err
		}
		return img.Data, nil
	}

	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if column != "" {
		if col, ok := t.Column(column); ok {
			return col, nil
		}
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("no numeric columns in %s", path)
	}
	return t.Columns[0], nil
}

// Correlate returns Pearson's r between two series. Series whose lengths differ
// by one are aligned by dropping the leading sample of the longer one; any
// other length difference yields NaN.
func Correlate(x, y []float64) float64 {
	switch {
	case x == nil || y == nil:
		return math.NaN()
	case len(x) == len(y):
	case len(x) == len(y)+1:
		x = x[1:]
	case len(y) == len(x)+1:
		y = y[1:]
	default:
		return math.NaN()
	}
	return corr.Pearson(x, y)
}

// Build resolves and correlates every cell of the grid.
func Build(ctx context.Context, grid *schema.GridSpec, oldRoot, newRoot string) (*schema.CorrelationMatrix, error) {
	if schema.IsRemote(oldRoot) || schema.IsRemote(newRoot) {
		return nil, ErrRemoteRoot
	}
	log := logging.New("matrix")

	m := &schema.CorrelationMatrix{
		Subjects: append([]string(nil), grid.Subjects...),
		Values:   make([][]float64, len(grid.Features)),
	}
	for i, feature := range grid.Features {
		m.Features = append(m.Features, feature.Name)
		m.Values[i] = make([]float64, len(grid.Subjects))
		for j, subject := range grid.Subjects {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			cell, err := buildCell(feature, subject, oldRoot, newRoot)
			if err != nil {
				return nil, err
			}
			log.Debug("correlated cell", "feature", feature.Name, "subject", subject, "pearson", cell.Pearson)
			m.Values[i][j] = cell.Pearson
			m.Cells = append(m.Cells, cell)
		}
	}
	return m, nil
}

func buildCell(feature schema.GridFeature, subject, oldRoot, newRoot string) (schema.GridCell, error) {
	cell := schema.GridCell{Feature: feature.Name, Subject: subject, Pearson: math.NaN()}

	var err error
	if cell.OldPath, err = Resolve(oldRoot, feature.OldGlob, subject); err != nil {
		return cell, err
	}
	if cell.NewPath, err = Resolve(newRoot, feature.NewGlob, subject); err != nil {
		return cell, err
	}
	if cell.OldPath == "" || cell.NewPath == "" {
		return cell, nil
	}

	// Unreadable files leave the cell undefined rather than failing the grid
	x, err := ReadSeries(cell.OldPath, feature.OldColumn)
	if err != nil {
		logging.New("matrix").Warn("unreadable grid file", "path", cell.OldPath, "error", err)
		return cell, nil
	}
	y, err := ReadSeries(cell.NewPath, feature.NewColumn)
	if err != nil {
		logging.New("matrix").Warn("unreadable grid file", "path", cell.NewPath, "error", err)
		return cell, nil
	}
	cell.Pearson = Correlate(x, y)
	return cell, nil
}

// DisplayPath shows a resolved path relative to its run root, or "Not found".
func DisplayPath(path, root string) string {
	if path == "" {
		return "Not found"
	}
	if rel, ok := strings.CutPrefix(path, strings.TrimSuffix(root, "/")+"/"); ok {
		return rel
	}
	return path
}
