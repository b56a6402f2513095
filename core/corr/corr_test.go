package corr

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pipecorr/pipecorr/internal/nifti"
	"github.com/pipecorr/pipecorr/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVolume(t *testing.T, dir, name string, dims []int, data []float64) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, nifti.Save(p, &nifti.Image{Dims: dims, Data: data}))
	return p
}

func writeText(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func ramp(n int, scale, offset float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i*i%7)*scale + offset
	}
	return out
}

func TestCorrelate(t *testing.T) {
	x := []float64{1, 4, 2, 8, 5, 7}

	t.Run("identical arrays", func(t *testing.T) {
		p := Correlate(x, x)
		assert.InDelta(t, 1.0, p.Pearson, 1e-12)
		assert.InDelta(t, 1.0, p.Concordance, 1e-12)
	})

	t.Run("constant offset lowers only concordance", func(t *testing.T) {
		y := make([]float64, len(x))
		for i, v := range x {
			y[i] = v + 3
		}
		p := Correlate(x, y)
		assert.InDelta(t, 1.0, p.Pearson, 1e-12)
		assert.Less(t, p.Concordance, 1.0)
	})

	t.Run("scale lowers only concordance", func(t *testing.T) {
		y := make([]float64, len(x))
		for i, v := range x {
			y[i] = v * 2
		}
		p := Correlate(x, y)
		assert.InDelta(t, 1.0, p.Pearson, 1e-12)
		assert.Less(t, p.Concordance, 1.0)
	})

	t.Run("anti-correlated", func(t *testing.T) {
		y := make([]float64, len(x))
		for i, v := range x {
			y[i] = -v
		}
		p := Correlate(x, y)
		assert.InDelta(t, -1.0, p.Pearson, 1e-12)
		assert.Less(t, p.Concordance, 0.0)
	})

	t.Run("constant series is NaN", func(t *testing.T) {
		p := Correlate(x, []float64{2, 2, 2, 2, 2, 2})
		assert.True(t, math.IsNaN(p.Pearson))
		assert.True(t, math.IsNaN(p.Concordance))
	})

	t.Run("length mismatch and empty are NaN", func(t *testing.T) {
		assert.True(t, math.IsNaN(Correlate(x, x[:3]).Pearson))
		assert.True(t, math.IsNaN(Correlate(nil, nil).Concordance))
	})
}

func TestPearsonAgreesWithPopulationForm(t *testing.T) {
	x := []float64{0.3, 1.9, 2.2, 4.8, 3.1, 0.7, 2.6}
	y := []float64{0.1, 2.3, 1.8, 5.2, 2.9, 1.1, 2.4}
	assert.InDelta(t, Correlate(x, y).Pearson, Pearson(x, y), 1e-12)
	assert.True(t, math.IsNaN(Pearson([]float64{1}, []float64{1})))
	assert.True(t, math.IsNaN(Pearson([]float64{1, 1, 1}, []float64{1, 2, 3})))
}

func TestVoxelwiseExcludesConstantLocations(t *testing.T) {
	// Two locations, four time points, location varying fastest.
	// Location 0 is constant in x; location 1 is a perfect match.
	x := []float64{5, 1, 5, 3, 5, 2, 5, 9}
	y := []float64{4, 1, 7, 3, 1, 2, 0, 9}

	p := Voxelwise(x, y, 2, 4)
	assert.InDelta(t, 1.0, p.Pearson, 1e-12)
	assert.InDelta(t, 1.0, p.Concordance, 1e-12)
}

func TestNaNMean(t *testing.T) {
	assert.InDelta(t, 2.0, NaNMean([]float64{1, math.NaN(), 3}), 1e-12)
	assert.True(t, math.IsNaN(NaNMean([]float64{math.NaN()})))
	assert.True(t, math.IsNaN(NaNMean(nil)))
}

func TestClassifyFormat(t *testing.T) {
	tests := map[string]schema.Format{
		"/r/s/brain.nii.gz":                  schema.FormatVolumetric,
		"/r/s/brain.nii":                     schema.FormatVolumetric,
		"/r/s/confounds.tsv":                 schema.FormatDelimited,
		"/r/s/roi.csv":                       schema.FormatDelimited,
		"/r/s/motion.1D":                     schema.FormatVector,
		"/r/s/dr_spatial_map_timeseries.txt": schema.FormatVector,
		"/r/s/brain.mat":                     schema.FormatUnknown,
		"/r/s/archive.gz":                    schema.FormatUnknown,
	}
	for p, want := range tests {
		assert.Equal(t, want, ClassifyFormat(p), p)
	}
}

func TestScoreTabularIdentical(t *testing.T) {
	dir := t.TempDir()
	content := "a,b\n1,5\n2,3\n3,4\n4,1\n5,2\n"
	oldPath := writeText(t, dir, "old_roi.csv", content)
	newPath := writeText(t, dir, "new_roi.csv", content)

	res := NewEngine(schema.DefaultThreshold).Score(context.Background(), schema.MatchedEntry{
		Category: "roi_timeseries", OldPath: oldPath, NewPath: newPath,
	})
	assert.Equal(t, schema.ScoredResult, res.Kind)
	assert.InDelta(t, 1.0, res.Pearson, 1e-12)
	assert.InDelta(t, 1.0, res.Concordance, 1e-12)
	assert.Nil(t, res.Provenance)
	assert.False(t, res.IsSubOptimal())
}

func TestScoreTabularDropsNonNumericColumns(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeText(t, dir, "old.tsv", "csf\tfd\n1\tn/a\n2\t0.1\n4\t0.3\n")
	newPath := writeText(t, dir, "new.tsv", "csf\tfd\n1\tn/a\n2\t0.2\n4\t0.1\n")

	res := NewEngine(0.98).ScorePaths("confounds", oldPath, newPath)
	require.Equal(t, schema.ScoredResult, res.Kind)
	assert.InDelta(t, 1.0, res.Concordance, 1e-12)
}

func TestScoreTabularShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeText(t, dir, "old.1D", "1 2\n3 4\n5 7\n")
	newPath := writeText(t, dir, "new.1D", "1 2\n3 4\n")

	res := NewEngine(0.98).ScorePaths("motion", oldPath, newPath)
	assert.Equal(t, schema.ShapeMismatchResult, res.Kind)
	assert.Equal(t, oldPath, res.OldPath)
	assert.Equal(t, newPath, res.NewPath)
}

func TestScoreVolumes(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(schema.DefaultThreshold)
	data := ramp(24, 1, 0)

	t.Run("identical volumes", func(t *testing.T) {
		a := writeVolume(t, dir, "a.nii.gz", []int{2, 3, 4}, data)
		b := writeVolume(t, dir, "b.nii", []int{2, 3, 4}, data)
		res := engine.ScorePaths("anatomical_brain", a, b)
		assert.Equal(t, schema.ScoredResult, res.Kind)
		assert.InDelta(t, 1.0, res.Concordance, 1e-9)
		assert.Nil(t, res.Provenance)
	})

	t.Run("offset volumes are flagged", func(t *testing.T) {
		a := writeVolume(t, dir, "c.nii", []int{24}, data)
		b := writeVolume(t, dir, "d.nii", []int{24}, ramp(24, 1, 10))
		res := engine.ScorePaths("anatomical_brain", a, b)
		require.Equal(t, schema.ScoredResult, res.Kind)
		assert.InDelta(t, 1.0, res.Pearson, 1e-9)
		require.NotNil(t, res.Provenance)
		assert.Equal(t, a, res.Provenance.OldPath)
		assert.Equal(t, b, res.Provenance.NewPath)
		assert.True(t, res.IsSubOptimal())
	})

	t.Run("zero variance gives NaN without failing", func(t *testing.T) {
		a := writeVolume(t, dir, "e.nii", []int{2, 3, 4}, data)
		b := writeVolume(t, dir, "f.nii", []int{2, 3, 4}, make([]float64, 24))
		res := engine.ScorePaths("functional_brain_mask", a, b)
		require.Equal(t, schema.ScoredResult, res.Kind)
		assert.True(t, math.IsNaN(res.Concordance))
		assert.NotNil(t, res.Provenance)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		a := writeVolume(t, dir, "g.nii", []int{2, 3, 4}, data)
		b := writeVolume(t, dir, "h.nii", []int{5}, data[:5])
		res := engine.ScorePaths("anatomical_brain", a, b)
		assert.Equal(t, schema.ShapeMismatchResult, res.Kind)
		assert.Equal(t, "different shape", res.Message)
	})

	t.Run("four dimensional volumes are batched per voxel", func(t *testing.T) {
		// Voxel 1 is constant over time in the old run and is excluded
		old4d := []float64{1, 7, 2, 7, 3, 7, 9, 7}
		new4d := []float64{2, 0, 4, 5, 6, 1, 18, 3}
		a := writeVolume(t, dir, "i.nii", []int{2, 1, 1, 4}, old4d)
		b := writeVolume(t, dir, "j.nii", []int{2, 1, 1, 4}, new4d)
		res := engine.ScorePaths("functional_preprocessed", a, b)
		require.Equal(t, schema.ScoredResult, res.Kind)
		assert.InDelta(t, 1.0, res.Pearson, 1e-9)
		assert.Less(t, res.Concordance, 1.0)
	})

	t.Run("four dimensional volumes with different layouts", func(t *testing.T) {
		a := writeVolume(t, dir, "k.nii", []int{2, 1, 1, 4}, ramp(8, 1, 0))
		b := writeVolume(t, dir, "l.nii", []int{4, 1, 1, 2}, ramp(8, 1, 0))
		res := engine.ScorePaths("functional_preprocessed", a, b)
		assert.Equal(t, schema.ReadErrorResult, res.Kind)
		assert.True(t, strings.HasPrefix(res.Message, "correlating problem:"), res.Message)
	})
}

func TestScoreProblems(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(schema.DefaultThreshold)
	good := writeVolume(t, dir, "good.nii", []int{3}, []float64{1, 2, 3})

	t.Run("missing old path", func(t *testing.T) {
		missing := filepath.Join(dir, "gone.nii")
		res := engine.ScorePaths("anatomical_brain", missing, good)
		assert.Equal(t, schema.FileNotFoundResult, res.Kind)
		assert.Equal(t, missing, res.MissingPath)
	})

	t.Run("missing new path", func(t *testing.T) {
		missing := filepath.Join(dir, "gone2.nii")
		res := engine.ScorePaths("anatomical_brain", good, missing)
		assert.Equal(t, schema.FileNotFoundResult, res.Kind)
		assert.Equal(t, missing, res.MissingPath)
	})

	t.Run("corrupt volume", func(t *testing.T) {
		corrupt := writeText(t, dir, "corrupt.nii", "definitely not nifti")
		res := engine.ScorePaths("anatomical_brain", good, corrupt)
		assert.Equal(t, schema.ReadErrorResult, res.Kind)
		assert.True(t, strings.HasPrefix(res.Message, "file reading problem:"), res.Message)
		assert.Equal(t, good, res.OldPath)
		assert.Equal(t, corrupt, res.NewPath)
	})

	t.Run("header claims more voxels than the file holds", func(t *testing.T) {
		liar := writeVolume(t, dir, "liar.nii", []int{2, 2, 2}, make([]float64, 8))
		raw, err := os.ReadFile(liar)
		require.NoError(t, err)
		for i := 1; i <= 3; i++ {
			binary.LittleEndian.PutUint16(raw[40+2*i:], 32767)
		}
		require.NoError(t, os.WriteFile(liar, raw, 0o644))

		other := writeVolume(t, dir, "other.nii", []int{2, 2, 2}, make([]float64, 8))
		res := engine.ScorePaths("anatomical_brain", other, liar)
		assert.Equal(t, schema.ReadErrorResult, res.Kind)
		assert.True(t, strings.HasPrefix(res.Message, "file reading problem:"), res.Message)
		assert.Contains(t, res.Message, "truncated voxel data")
	})

	t.Run("format mismatch", func(t *testing.T) {
		text := writeText(t, dir, "x.1D", "1\n2\n3\n")
		res := engine.ScorePaths("anatomical_brain", good, text)
		assert.Equal(t, schema.ReadErrorResult, res.Kind)
		assert.Contains(t, res.Message, "format mismatch")
	})

	t.Run("unknown format", func(t *testing.T) {
		a := writeText(t, dir, "a.mat", "x")
		b := writeText(t, dir, "b.mat", "x")
		res := engine.ScorePaths("weird", a, b)
		assert.Equal(t, schema.ReadErrorResult, res.Kind)
		assert.Contains(t, res.Message, "unrecognized format")
	})

	t.Run("unparsable table", func(t *testing.T) {
		a := writeText(t, dir, "a.csv", "x,y\nfoo,bar\n")
		b := writeText(t, dir, "b.csv", "x,y\nfoo,bar\n")
		res := engine.ScorePaths("roi", a, b)
		assert.Equal(t, schema.ReadErrorResult, res.Kind)
		assert.True(t, strings.HasPrefix(res.Message, "file reading problem:"), res.Message)
	})
}

func TestGuardRecoversPanics(t *testing.T) {
	err := guard(correlatingProblem, func() error {
		var m map[string]int
		m["boom"]++
		return nil
	})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "correlating problem: panic:"))
}
