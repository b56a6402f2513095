package agg

import (
	"math"
	"testing"

	"github.com/pipecorr/pipecorr/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(cat string, p, c float64) schema.CorrelationResult {
	var prov *schema.Provenance
	if !(c > schema.DefaultThreshold) {
		prov = &schema.Provenance{OldPath: "/old/" + cat, NewPath: "/new/" + cat}
	}
	return schema.Scored(cat, p, c, prov)
}

func TestSemanticGroups(t *testing.T) {
	tests := []struct {
		category string
		expected []string
	}{
		{"anatomical_brain", []string{"registration_and_segmentation"}},
		{"seg_partial_volume_map", []string{"registration_and_segmentation"}},
		{"alff_img", []string{"native_space_outputs"}},
		{"alff_to_standard_smooth", []string{"template_space_outputs"}},
		{"vmhc_fisher_zstd", []string{"template_space_outputs"}},
		{"centrality_functional", []string{"template_space_outputs"}},
		{"functional_to_standard", []string{"timeseries_outputs", "functional_outputs"}},
		{"mean_functional_preprocessed", []string{"functional_outputs"}},
		{"functional_brain_mask", []string{"functional_outputs"}},
		{"roi_timeseries", []string{"native_space_outputs"}},
		{"frame_wise_displacement_power", []string{"functional_outputs"}},
		{"anatomical_to_mni_xfm", nil},
		{"mixel_thing", nil},
		{"power_params", nil},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			assert.Equal(t, tt.expected, SemanticGroups(tt.category))
		})
	}
}

func TestAggregateSemantic(t *testing.T) {
	results := []schema.CorrelationResult{
		scored("anatomical_brain", 1, 1),
		scored("anatomical_brain", 0.99, 0.97),
		scored("power_params", 0.5, 0.4),
		schema.ReadError("anatomical_brain", "file reading problem: boom", "/a", "/b"),
		schema.ShapeMismatch("alff_img", "/a", "/b"),
		schema.FileNotFound("alff_img", "/gone"),
	}

	report := Aggregate(results, schema.ConcordanceKind, Options{OldLabel: "old", NewLabel: "new"})

	assert.Equal(t, schema.ConcordanceKind, report.Kind)
	assert.Equal(t, "old", report.OldLabel)
	assert.Equal(t, []float64{1, 0.97}, report.Raw["anatomical_brain"])
	assert.Equal(t, []float64{0.4}, report.Raw["power_params"])
	assert.NotContains(t, report.Raw, "alff_img", "failures never contribute scores")

	require.Contains(t, report.Groups, "concordance_registration_and_segmentation")
	assert.Equal(t, []float64{1, 0.97}, report.Groups["concordance_registration_and_segmentation"]["anatomical_brain"])
	assert.Len(t, report.Groups, 1, "unmatched categories stay out of groups")

	pearson := Aggregate(results, schema.PearsonKind, Options{})
	assert.Equal(t, []float64{1, 0.99}, pearson.Groups["pearson_registration_and_segmentation"]["anatomical_brain"])
}

func TestAggregateQuick(t *testing.T) {
	results := []schema.CorrelationResult{
		scored("anatomical_brain", 1, 1),
		scored("roi_timeseries", 0.9, 0.9),
	}

	report := Aggregate(results, schema.ConcordanceKind, Options{Quick: true, Grouping: schema.DatatypeGrouping})

	require.Len(t, report.Groups, 1)
	core := report.Groups["concordance_core_outputs"]
	assert.Equal(t, []float64{1}, core["anatomical_brain"])
	assert.Equal(t, []float64{0.9}, core["roi_timeseries"])
}

func TestDatatype(t *testing.T) {
	dt, raw := Datatype("space-MNI_desc-preproc_bold")
	assert.Equal(t, "bold", dt)
	assert.Equal(t, "space-MNI_desc-preproc_bold", raw)

	dt, raw = Datatype("acq-fast_desc-brain_T1w")
	assert.Equal(t, "T1w", dt)
	assert.Equal(t, "fast_desc-brain_T1w", raw)

	dt, raw = Datatype("mask")
	assert.Equal(t, "mask", dt)
	assert.Equal(t, "mask", raw)
}

func TestAggregateDatatype(t *testing.T) {
	results := []schema.CorrelationResult{
		scored("desc-preproc_bold", 1, 1),
		scored("desc-mean_bold", 0.99, 0.99),
		scored("desc-brain_T1w", 0.9, 0.8),
		scored("problem_T1w", 0.9, 0.8),
	}

	report := Aggregate(results, schema.PearsonKind, Options{Grouping: schema.DatatypeGrouping})

	assert.Len(t, report.Groups, 2)
	assert.Equal(t, map[string][]float64{
		"desc-preproc_bold": {1},
		"desc-mean_bold":    {0.99},
	}, report.Groups["pearson_bold"])
	assert.Equal(t, map[string][]float64{"desc-brain_T1w": {0.9}}, report.Groups["pearson_T1w"])
}

func TestSummarizeExcludesNaN(t *testing.T) {
	report := schema.ReportGroup{
		Groups: map[string]map[string][]float64{
			"concordance_b": {"z": {1}, "a": {0.5, math.NaN(), 1}},
			"concordance_a": {"only_nan": {math.NaN()}},
		},
	}

	rows := Summarize(report)

	require.Len(t, rows, 3)
	assert.Equal(t, "concordance_a", rows[0].Group)
	assert.True(t, math.IsNaN(rows[0].Mean))
	assert.Equal(t, "a", rows[1].Category)
	assert.Equal(t, 3, rows[1].Count)
	assert.InDelta(t, 0.75, rows[1].Mean, 1e-12)
	assert.Equal(t, "z", rows[2].Category)
}

func TestSubOptimal(t *testing.T) {
	results := []schema.CorrelationResult{
		scored("anatomical_brain", 1, 1),
		scored("alff_img", 0.5, 0.25),
		scored("alff_img", math.NaN(), math.NaN()),
		schema.FileNotFound("alff_img", "/gone"),
	}

	sub := SubOptimal(results)

	assert.NotContains(t, sub, "anatomical_brain")
	assert.Equal(t, []string{
		"0.25:\n/old/alff_img\n/new/alff_img\n\n",
		"nan:\n/old/alff_img\n/new/alff_img\n\n",
	}, sub["alff_img"])
}

func TestMissing(t *testing.T) {
	match := &schema.MatchResult{
		MissingInOld: []schema.MissingEntry{
			{Category: "bold", Path: "/new/b.nii"},
			{Category: "bold", Path: "/new/a.nii"},
		},
		MissingInNew: []schema.MissingEntry{{Category: "T1w", Path: "/old/t1.nii"}},
	}

	report := Missing(match, "old", "new")

	assert.Equal(t, "old", report.OldLabel)
	assert.Equal(t, []string{"/new/a.nii", "/new/b.nii"}, report.MissingInOld["bold"])
	assert.Equal(t, []string{"/old/t1.nii"}, report.MissingInNew["T1w"])

	empty := Missing(nil, "o", "n")
	assert.Empty(t, empty.MissingInOld)
	assert.NotNil(t, empty.MissingInNew)
}

func TestCount(t *testing.T) {
	counts := Count([]schema.CorrelationResult{
		scored("a", 1, 1),
		scored("b", 0.2, 0.1),
		schema.ReadError("c", "x", "/a", "/b"),
		schema.ShapeMismatch("d", "/a", "/b"),
		schema.FileNotFound("e", "/e"),
		schema.FileNotFound("f", "/f"),
	})

	assert.Equal(t, schema.ResultCounts{Scored: 2, SubOptimal: 1, ReadErrors: 1, ShapeMismatch: 1, FileNotFound: 2}, counts)
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "0.9234567", FormatScore(0.9234567))
	assert.Equal(t, "1", FormatScore(1))
	assert.Equal(t, "nan", FormatScore(math.NaN()))
}
