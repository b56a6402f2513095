package schema

import (
	"encoding/json"
	"time"
)

// ReportGroup clusters per-category score lists for one measure.
type ReportGroup struct {
	Kind     CorrKind                        `json:"kind"`
	OldLabel string                          `json:"old_label"`
	NewLabel string                          `json:"new_label"`
	Groups   map[string]map[string][]float64 `json:"groups"` // group -> category -> scores
	Raw      map[string][]float64            `json:"raw"`    // category -> scores
}

// GroupSummary is one row of a rendered group summary.
type GroupSummary struct {
	Group    string  `json:"group"`
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
}

// MarshalJSON encodes a NaN mean as null.
func (g GroupSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Group    string   `json:"group"`
		Category string   `json:"category"`
		Count    int      `json:"count"`
		Mean     *float64 `json:"mean"`
	}{g.Group, g.Category, g.Count, finiteOrNil(g.Mean)})
}

// ResultCounts tallies results by variant.
type ResultCounts struct {
	Scored        int `json:"scored"`
	SubOptimal    int `json:"sub_optimal"`
	ReadErrors    int `json:"read_errors"`
	ShapeMismatch int `json:"shape_mismatch"`
	FileNotFound  int `json:"file_not_found"`
}

// CompareOutput is everything a compare run produces.
type CompareOutput struct {
	OldLabel   string                   `json:"old_label"`
	NewLabel   string                   `json:"new_label"`
	OldStats   IndexStats               `json:"old_stats"`
	NewStats   IndexStats               `json:"new_stats"`
	Match      *MatchResult             `json:"-"`
	Results    []CorrelationResult      `json:"results"`
	Reports    map[CorrKind]ReportGroup `json:"-"`
	Summaries  []GroupSummary           `json:"summaries"`
	SubOptimal map[string][]string      `json:"sub_optimal"`
	Missing    MissingReport            `json:"missing"`
	Counts     ResultCounts             `json:"counts"`
	Duration   time.Duration            `json:"duration"`
}
