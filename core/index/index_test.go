package index

import (
	"fmt"
	"testing"

	"github.com/pipecorr/pipecorr/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategory(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"sub-0025427_ses-1_T1w.nii.gz", "T1w"},
		{"sub-01_ses-1_task-rest_run-1_desc-preproc_bold.nii.gz", "desc-preproc_bold"},
		{"sub-01_acq-mprage_label-CSF_mask.nii", "label-CSF_mask"},
		{"sub-01_1_desc-confounds_timeseries.tsv", "desc-confounds_timeseries.tsv"},
		{"roi_timeseries.1D", "roi_timeseries.1D"},
		{"anatomical_brain.nii.gz", "anatomical_brain"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expected, Category(tt.filename))
		})
	}
}

func TestCategoryInvariantUnderTagNumbers(t *testing.T) {
	base := Category("sub-001_ses-1_task-rest_run-1_acq-fast_space-MNI_reho.nii.gz")
	for sub := range 5 {
		for ses := range 3 {
			name := fmt.Sprintf("sub-%03d_ses-%d_task-rest_run-%d_acq-fast_space-MNI_reho.nii.gz", sub+2, ses+1, ses+7)
			assert.Equal(t, base, Category(name), name)
		}
	}
	assert.Equal(t, "space-MNI_reho", base)
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "121", Digits("_compcor_ncomponents_1", "aCompCor2.1D"))
	assert.Equal(t, "", Digits("anat", "T_w.nii"))
	assert.Equal(t, "00254271001", Digits("sub-0025427", "ses-1_run-001.nii"))
}

func TestMidpath(t *testing.T) {
	mid, ok := Midpath("/data/run1/sub-01/anat/T1w.nii.gz", "/data/run1")
	assert.True(t, ok)
	assert.Equal(t, "/sub-01/anat/", mid)

	_, ok = Midpath("/data/run1/T1w.nii.gz", "/data/run1")
	assert.False(t, ok)

	mid, ok = Midpath("gs://bucket/run1/sub-01/x.nii", "gs://bucket/run1")
	assert.True(t, ok)
	assert.Equal(t, "/sub-01/", mid)
}

func TestIsNonComparable(t *testing.T) {
	assert.True(t, IsNonComparable("/r/s/anatomical_to_mni_nonlinear_xfm.nii.gz"))
	assert.True(t, IsNonComparable("/r/s/ants_affine_itk.txt"))
	assert.True(t, IsNonComparable("/r/qc/montage_red.png"))
	assert.True(t, IsNonComparable("/r/s/func_stack.nii"))
	assert.False(t, IsNonComparable("/r/s/anatomical_brain.nii.gz"))
}

func TestApplyRenames(t *testing.T) {
	rules := []schema.RenameRule{
		{Old: "_site-A", New: ""},
		{Old: "pipeline_old", New: "pipeline_new"},
		{Old: "absent", New: "never"},
	}
	got, changes := ApplyRenames("/r/pipeline_old/sub-01_site-A/x_site-A.nii", rules)
	assert.Equal(t, "/r/pipeline_new/sub-01/x.nii", got)
	assert.Equal(t, []schema.PathChange{
		{Old: "/r/pipeline_old/sub-01_site-A/x_site-A.nii", New: "/r/pipeline_old/sub-01/x.nii"},
		{Old: "/r/pipeline_old/sub-01/x.nii", New: "/r/pipeline_new/sub-01/x.nii"},
	}, changes)

	got, changes = ApplyRenames("/r/y.nii", nil)
	assert.Equal(t, "/r/y.nii", got)
	assert.Empty(t, changes)
}

func TestBuild(t *testing.T) {
	root := "/data/run1"
	paths := []string{
		root + "/sub-01/ses-1/anat/sub-01_ses-1_T1w.nii.gz",
		root + "/sub-02/ses-1/anat/sub-02_ses-1_T1w.nii.gz",
		root + "/sub-01/ses-1/func/sub-01_ses-1_task-rest_bold.nii.gz",
		root + "/sub-01/ses-1/xfm/sub-01_from-T1w_to-MNI_xfm.nii.gz",
		root + "/stray.nii.gz",
	}

	idx, stats := Build(paths, root+"/", nil)
	assert.Equal(t, 5, stats.Seen)
	assert.Equal(t, 3, stats.Indexed)
	assert.Equal(t, 1, stats.SkippedNonComp)
	assert.Equal(t, 1, stats.SkippedShallow)
	assert.Zero(t, stats.Collisions)
	assert.Equal(t, root, idx.Root)

	assert.Equal(t, []string{"T1w", "bold"}, idx.Categories())
	keys := idx.Keys("T1w")
	require.Len(t, keys, 2)
	assert.Equal(t, schema.FingerprintKey{Category: "T1w", Midpath: "/sub-01/ses-1/anat/", Digits: "0111"}, keys[0])

	got, ok := idx.Get(keys[0])
	require.True(t, ok)
	assert.Equal(t, []string{paths[0]}, got)
}

func TestBuildLastWriteWins(t *testing.T) {
	root := "/r"
	// Different names, same category, midpath and digits
	paths := []string{
		root + "/s/sub-1_a_mask.nii",
		root + "/s/sub-1_b_mask.nii",
	}
	idx, stats := Build(paths, root, nil)
	assert.Equal(t, 1, stats.Collisions)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, idx.Len())

	got, ok := idx.Get(idx.Keys("mask")[0])
	require.True(t, ok)
	assert.Equal(t, []string{paths[1]}, got)
}

func TestBuildStoresRealPathAfterRename(t *testing.T) {
	root := "/r"
	real := root + "/sub-01_site-A/anat/brain.nii"
	idx, stats := Build([]string{real}, root, []schema.RenameRule{{Old: "_site-A", New: ""}})

	require.Len(t, stats.PathChanges, 1)
	key := schema.FingerprintKey{Category: "brain", Midpath: "/sub-01/anat/", Digits: ""}
	got, ok := idx.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{real}, got)
}
