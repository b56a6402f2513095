package match

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pipecorr/pipecorr/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(category, mid, digits string) schema.FingerprintKey {
	return schema.FingerprintKey{Category: category, Midpath: mid, Digits: digits}
}

func buildIndex(root string, entries map[schema.FingerprintKey]string) *schema.FileIndex {
	idx := schema.NewFileIndex(root)
	for k, p := range entries {
		idx.Put(k, []string{p})
	}
	return idx
}

func TestMatch(t *testing.T) {
	brain := key("anatomical_brain", "/sub-001/", "001")
	csf := key("anatomical_csf_mask", "/sub-001/", "001")
	reho := key("reho", "/sub-001/func/", "001")
	alff := key("alff", "/sub-001/func/", "001")

	oldIdx := buildIndex("/old", map[schema.FingerprintKey]string{
		brain: "/old/sub-001/anatomical_brain.nii.gz",
		csf:   "/old/sub-001/anatomical_csf_mask.nii.gz",
		alff:  "/old/sub-001/func/alff.nii.gz",
	})
	newIdx := buildIndex("/new", map[schema.FingerprintKey]string{
		brain: "/new/sub-001/anatomical_brain.nii.gz",
		csf:   "/new/sub-001/anatomical_csf_mask.nii.gz",
		reho:  "/new/sub-001/func/reho.nii.gz",
	})

	result, err := Match(oldIdx, newIdx)
	require.NoError(t, err)

	want := &schema.MatchResult{
		Matched: []schema.MatchedEntry{
			{Category: "anatomical_brain", Key: brain, OldPath: "/old/sub-001/anatomical_brain.nii.gz", NewPath: "/new/sub-001/anatomical_brain.nii.gz"},
			{Category: "anatomical_csf_mask", Key: csf, OldPath: "/old/sub-001/anatomical_csf_mask.nii.gz", NewPath: "/new/sub-001/anatomical_csf_mask.nii.gz"},
		},
		MissingInOld: []schema.MissingEntry{
			{Category: "reho", Key: reho, Path: "/new/sub-001/func/reho.nii.gz"},
		},
		MissingInNew: []schema.MissingEntry{
			{Category: "alff", Key: alff, Path: "/old/sub-001/func/alff.nii.gz"},
		},
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Match() mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchAgainstItself(t *testing.T) {
	idx := buildIndex("/r", map[schema.FingerprintKey]string{
		key("a", "/s1/", "1"): "/r/s1/a1.nii",
		key("a", "/s2/", "2"): "/r/s2/a2.nii",
		key("b", "/s1/", "1"): "/r/s1/b1.nii",
	})

	result, err := Match(idx, idx)
	require.NoError(t, err)
	assert.Empty(t, result.MissingInOld)
	assert.Empty(t, result.MissingInNew)
	require.Len(t, result.Matched, idx.Len())

	seen := map[schema.FingerprintKey]int{}
	for _, m := range result.Matched {
		seen[m.Key]++
		assert.Equal(t, m.OldPath, m.NewPath)
	}
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestMatchMissingAnatomicalNeverMatched(t *testing.T) {
	brain := key("anatomical_brain", "/sub-001/", "001")
	shared := key("functional_brain_mask", "/sub-001/", "001")

	oldIdx := buildIndex("/old", map[schema.FingerprintKey]string{
		brain:  "/old/sub-001/anatomical_brain.nii.gz",
		shared: "/old/sub-001/functional_brain_mask.nii.gz",
	})
	newIdx := buildIndex("/new", map[schema.FingerprintKey]string{
		shared: "/new/sub-001/functional_brain_mask.nii.gz",
	})

	result, err := Match(oldIdx, newIdx)
	require.NoError(t, err)
	require.Len(t, result.MissingInNew, 1)
	assert.Equal(t, "anatomical_brain", result.MissingInNew[0].Category)
	for _, m := range result.Matched {
		assert.NotEqual(t, "anatomical_brain", m.Category)
	}

	// Swapping direction moves the artifact to the other missing set
	result, err = Match(newIdx, oldIdx)
	require.NoError(t, err)
	require.Len(t, result.MissingInOld, 1)
	assert.Equal(t, "anatomical_brain", result.MissingInOld[0].Category)
	assert.Empty(t, result.MissingInNew)
}

func TestMatchEmptyIsFatal(t *testing.T) {
	oldIdx := buildIndex("/old", map[schema.FingerprintKey]string{key("a", "/s/", ""): "/old/s/a.nii"})
	newIdx := buildIndex("/new", map[schema.FingerprintKey]string{key("b", "/s/", ""): "/new/s/b.nii"})

	result, err := Match(oldIdx, newIdx)
	assert.ErrorIs(t, err, ErrNoMatches)
	require.NotNil(t, result)
	assert.Len(t, result.MissingInOld, 1)
	assert.Len(t, result.MissingInNew, 1)
}

func TestMatchSkipsEmptyPathLists(t *testing.T) {
	k := key("a", "/s/", "")
	oldIdx := schema.NewFileIndex("/old")
	oldIdx.Put(k, nil)
	newIdx := buildIndex("/new", map[schema.FingerprintKey]string{k: "/new/s/a.nii", key("b", "/s/", ""): "/new/s/b.nii"})
	oldIdx.Put(key("b", "/s/", ""), []string{"/old/s/b.nii"})

	result, err := Match(oldIdx, newIdx)
	require.NoError(t, err)
	require.Len(t, result.Matched, 1)
	require.Len(t, result.MissingInOld, 1)
	assert.Equal(t, "/new/s/a.nii", result.MissingInOld[0].Path)
	assert.Empty(t, result.MissingInNew)
}

func TestFilter(t *testing.T) {
	result := &schema.MatchResult{
		Matched: []schema.MatchedEntry{
			{Category: "anatomical_brain"},
			{Category: "alff"},
		},
		MissingInOld: []schema.MissingEntry{{Category: "alff"}},
		MissingInNew: []schema.MissingEntry{{Category: "roi_timeseries"}},
	}

	filtered := Filter(result, schema.QuickCategories)
	require.Len(t, filtered.Matched, 1)
	assert.Equal(t, "anatomical_brain", filtered.Matched[0].Category)
	assert.Empty(t, filtered.MissingInOld)
	assert.Len(t, filtered.MissingInNew, 1)
	// The input is left untouched
	assert.Len(t, result.Matched, 2)
}
