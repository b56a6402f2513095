// Package agg turns per-pair correlation results into grouped reports.
package agg

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pipecorr/pipecorr/core/corr"
	"github.com/pipecorr/pipecorr/schema"
)

// Options controls how categories are clustered.
type Options struct {
	Grouping schema.GroupingMode
	Quick    bool
	OldLabel string
	NewLabel string
}

// Category lists used by semantic grouping.
var (
	templateOnly = []string{"centrality", "vmhc", "sca_tempreg"}
	anatomicals  = []string{"anatomical", "seg"}
	derivatives  = []string{"alff", "dr_tempreg", "reho", "sca_roi", "timeseries", "ndmg"}
	timeSeries   = []string{
		"functional_freq", "nuisance_residuals", "functional_preprocessed",
		"functional_to_standard", "ica_aroma_", "motion_correct", "slice_time",
	}
	functionals = []string{"functional", "displacement"}
)

// Aggregate collects the scores of one measure per category and clusters the categories.
// Only scored results contribute; failures never reach the score maps.
func Aggregate(results []schema.CorrelationResult, kind schema.CorrKind, opts Options) schema.ReportGroup {
	report := schema.ReportGroup{
		Kind:     kind,
		OldLabel: opts.OldLabel,
		NewLabel: opts.NewLabel,
		Groups:   make(map[string]map[string][]float64),
		Raw:      make(map[string][]float64),
	}
	for _, r := range results {
		if r.Kind != schema.ScoredResult {
			continue
		}
		report.Raw[r.Category] = append(report.Raw[r.Category], r.Score(kind))
	}

	switch {
	case opts.Quick:
		for cat, scores := range report.Raw {
			addTo(report.Groups, string(kind)+"_core_outputs", cat, scores)
		}
	case opts.Grouping == schema.DatatypeGrouping:
		groupByDatatype(report, kind)
	default:
		groupSemantic(report, kind)
	}
	return report
}

func addTo(groups map[string]map[string][]float64, group, category string, scores []float64) {
	inner, ok := groups[group]
	if !ok {
		inner = make(map[string][]float64)
		groups[group] = inner
	}
	inner[category] = append(inner[category], scores...)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// SemanticGroups returns the group suffixes a category belongs to, in rule order.
// A category can land in several groups, or none.
func SemanticGroups(category string) []string {
	if strings.Contains(category, "xfm") || strings.Contains(category, "mixel") {
		return nil
	}
	if containsAny(category, templateOnly) {
		return []string{"template_space_outputs"}
	}
	var groups []string
	if containsAny(category, anatomicals) {
		groups = append(groups, "registration_and_segmentation")
	}
	if containsAny(category, derivatives) {
		if strings.Contains(category, "standard") {
			groups = append(groups, "template_space_outputs")
		} else {
			groups = append(groups, "native_space_outputs")
		}
	}
	if containsAny(category, timeSeries) && !strings.Contains(category, "mean") && !strings.Contains(category, "mask") {
		groups = append(groups, "timeseries_outputs")
	}
	if containsAny(category, functionals) {
		groups = append(groups, "functional_outputs")
	}
	return groups
}

func groupSemantic(report schema.ReportGroup, kind schema.CorrKind) {
	for cat, scores := range report.Raw {
		for _, g := range SemanticGroups(cat) {
			addTo(report.Groups, string(kind)+"_"+g, cat, scores)
		}
	}
}

// Datatype splits a category of the newer output layout into its datatype and
// the category with acquisition and run markers removed.
func Datatype(category string) (datatype, rawKey string) {
	rawKey = strings.ReplaceAll(category, "acq-", "")
	rawKey = strings.ReplaceAll(rawKey, "run-", "")
	if i := strings.LastIndex(rawKey, "_"); i >= 0 {
		return rawKey[i+1:], rawKey
	}
	return rawKey, rawKey
}

func groupByDatatype(report schema.ReportGroup, kind schema.CorrKind) {
	for cat, scores := range report.Raw {
		if strings.Contains(cat, "problem") {
			continue
		}
		datatype, rawKey := Datatype(cat)
		if datatype == "" {
			continue
		}
		addTo(report.Groups, string(kind)+"_"+datatype, rawKey, scores)
	}
}

// Summarize reduces every group to one row per category with a NaN-excluding mean.
// Rows are sorted by group, then category.
func Summarize(report schema.ReportGroup) []schema.GroupSummary {
	var rows []schema.GroupSummary
	for _, group := range sortedKeys(report.Groups) {
		cats := report.Groups[group]
		for _, cat := range sortedKeys(cats) {
			scores := cats[cat]
			rows = append(rows, schema.GroupSummary{
				Group:    group,
				Category: cat,
				Count:    len(scores),
				Mean:     corr.NaNMean(scores),
			})
		}
	}
	return rows
}

// SubOptimal lists the provenance of every flagged pair per category.
// Each entry reads "<ccc>:\n<old>\n<new>\n\n".
func SubOptimal(results []schema.CorrelationResult) map[string][]string {
	out := make(map[string][]string)
	for _, r := range results {
		if !r.IsSubOptimal() {
			continue
		}
		out[r.Category] = append(out[r.Category],
			fmt.Sprintf("%s:\n%s\n%s\n\n", FormatScore(r.Concordance), r.Provenance.OldPath, r.Provenance.NewPath))
	}
	return out
}

// FormatScore renders a score in its shortest exact form, with NaN as "nan".
func FormatScore(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Missing groups the unmatched paths of each direction per category, sorted.
func Missing(match *schema.MatchResult, oldLabel, newLabel string) schema.MissingReport {
	report := schema.MissingReport{
		OldLabel:     oldLabel,
		NewLabel:     newLabel,
		MissingInOld: make(map[string][]string),
		MissingInNew: make(map[string][]string),
	}
	if match == nil {
		return report
	}
	for _, m := range match.MissingInOld {
		report.MissingInOld[m.Category] = append(report.MissingInOld[m.Category], m.Path)
	}
	for _, m := range match.MissingInNew {
		report.MissingInNew[m.Category] = append(report.MissingInNew[m.Category], m.Path)
	}
	for _, paths := range report.MissingInOld {
		sort.Strings(paths)
	}
	for _, paths := range report.MissingInNew {
		sort.Strings(paths)
	}
	return report
}

// Count tallies results by variant.
func Count(results []schema.CorrelationResult) schema.ResultCounts {
	var c schema.ResultCounts
	for _, r := range results {
		switch r.Kind {
		case schema.ScoredResult:
			c.Scored++
			if r.IsSubOptimal() {
				c.SubOptimal++
			}
		case schema.ReadErrorResult:
			c.ReadErrors++
		case schema.ShapeMismatchResult:
			c.ShapeMismatch++
		case schema.FileNotFoundResult:
			c.FileNotFound++
		}
	}
	return c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
