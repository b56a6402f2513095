package matrix

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pipecorr/pipecorr/internal/nifti"
	"github.com/pipecorr/pipecorr/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestExpand(t *testing.T) {
	assert.Equal(t, "sub-01/ses-1/motion.1D", Expand("{subject}/{session}/motion.1D", "sub-01_ses-1"))
	assert.Equal(t, "sub-01//x.csv", Expand("{subject}/{session}/x.csv", "sub-01"))

	sub, ses := SplitLabel("sub-01_ses-1_run-2")
	assert.Equal(t, "sub-01", sub)
	assert.Equal(t, "ses-1_run-2", ses)
}

func TestResolveTakesFirstSortedMatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub-01/b_motion.1D", "1\n")
	writeFile(t, root, "sub-01/a_motion.1D", "1\n")

	p, err := Resolve(root, "{subject}/*_motion.1D", "sub-01_ses-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub-01/a_motion.1D"), p)

	p, err = Resolve(root, "{subject}/*_motion.1D", "sub-02_ses-1")
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = Resolve(root, "[", "sub-01")
	assert.Error(t, err)
}

func TestCorrelate(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}

	assert.InDelta(t, 1.0, Correlate(x, []float64{2, 4, 6, 8, 10}), 1e-12)
	// The leading sample of the longer series is dropped
	assert.InDelta(t, 1.0, Correlate([]float64{99, 1, 2, 3, 4}, []float64{1, 2, 3, 4}), 1e-12)
	assert.InDelta(t, 1.0, Correlate([]float64{1, 2, 3, 4}, []float64{-7, 1, 2, 3, 4}), 1e-12)
	assert.True(t, math.IsNaN(Correlate(x, []float64{1, 2, 3})))
	assert.True(t, math.IsNaN(Correlate(nil, x)))
}

func TestReadSeries(t *testing.T) {
	root := t.TempDir()
	p := writeFile(t, root, "fd.csv", "a,b\n1,10\n2,30\n3,20\n")

	col, err := ReadSeries(p, "b")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 30, 20}, col)

	col, err = ReadSeries(p, "")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, col)

	col, err = ReadSeries(p, "missing")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, col, "unknown column falls back to the first")

	vol := filepath.Join(root, "v.nii")
	require.NoError(t, nifti.Save(vol, &nifti.Image{Dims: []int{2, 2}, Data: []float64{1, 2, 3, 4}}))
	col, err = ReadSeries(vol, "")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, col)

	_, err = ReadSeries(filepath.Join(root, "nope.csv"), "")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	oldRoot, newRoot := t.TempDir(), t.TempDir()
	writeFile(t, oldRoot, "sub-01/ses-1/motion.1D", "1\n2\n3\n4\n")
	writeFile(t, newRoot, "output/sub-01_ses-1/motion.1D", "0\n2\n4\n6\n8\n")
	writeFile(t, oldRoot, "sub-02/ses-1/motion.1D", "1\n2\n3\n")
	writeFile(t, newRoot, "output/sub-02_ses-1/motion.1D", "1\n2\n3\n4\n5\n6\n")
	writeFile(t, oldRoot, "sub-01/ses-1/bad.1D", "x\n")
	writeFile(t, newRoot, "output/sub-01_ses-1/bad.1D", "1\n")

	grid := &schema.GridSpec{
		Subjects: []string{"sub-01_ses-1", "sub-02_ses-1", "sub-03_ses-1"},
		Features: []schema.GridFeature{
			{Name: "motion", OldGlob: "{subject}/{session}/motion.1D", NewGlob: "output/{subject}_{session}/motion.1D"},
			{Name: "bad", OldGlob: "{subject}/{session}/bad.1D", NewGlob: "output/{subject}_{session}/bad.1D"},
		},
	}

	m, err := Build(context.Background(), grid, oldRoot, newRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{"motion", "bad"}, m.Features)
	assert.Equal(t, grid.Subjects, m.Subjects)
	require.Len(t, m.Values, 2)
	require.Len(t, m.Values[0], 3)
	require.Len(t, m.Cells, 6)

	assert.InDelta(t, 1.0, m.Values[0][0], 1e-12)
	assert.True(t, math.IsNaN(m.Values[0][1]), "length difference above one")
	assert.True(t, math.IsNaN(m.Values[0][2]), "missing files")
	assert.True(t, math.IsNaN(m.Values[1][0]), "unreadable file")

	missing := m.Cells[2]
	assert.Equal(t, "sub-03_ses-1", missing.Subject)
	assert.Empty(t, missing.OldPath)
	assert.Empty(t, missing.NewPath)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"values":[[1,null,null],[null,null,null]]`)
}

func TestBuildRejectsRemoteRoots(t *testing.T) {
	_, err := Build(context.Background(), &schema.GridSpec{}, "gs://bucket/run", t.TempDir())
	assert.ErrorIs(t, err, ErrRemoteRoot)
}

func TestBuildHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	grid := &schema.GridSpec{
		Subjects: []string{"sub-01"},
		Features: []schema.GridFeature{{Name: "f", OldGlob: "x", NewGlob: "y"}},
	}
	_, err := Build(ctx, grid, t.TempDir(), t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisplayPath(t *testing.T) {
	assert.Equal(t, "Not found", DisplayPath("", "/runs/old"))
	assert.Equal(t, "sub-01/motion.1D", DisplayPath("/runs/old/sub-01/motion.1D", "/runs/old"))
	assert.Equal(t, "sub-01/motion.1D", DisplayPath("/runs/old/sub-01/motion.1D", "/runs/old/"))
	assert.Equal(t, "/elsewhere/x", DisplayPath("/elsewhere/x", "/runs/old"))
}
