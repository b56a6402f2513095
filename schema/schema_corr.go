package schema

import (
	"encoding/json"
	"math"
)

// Provenance carries both source paths of a pair flagged for review.
type Provenance struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

// CorrelationResult is the tagged outcome of scoring one matched pair.
// Only the fields relevant to Kind are populated.
type CorrelationResult struct {
	Kind        ResultKind  `json:"kind"`
	Category    string      `json:"category"`
	Pearson     float64     `json:"pearson"`
	Concordance float64     `json:"concordance"`
	Provenance  *Provenance `json:"provenance,omitempty"`
	Message     string      `json:"message,omitempty"`
	OldPath     string      `json:"old_path,omitempty"`
	NewPath     string      `json:"new_path,omitempty"`
	MissingPath string      `json:"missing_path,omitempty"`
}

// Scored builds a scored result, attaching provenance when the pair needs review.
func Scored(category string, pearson, concordance float64, prov *Provenance) CorrelationResult {
	return CorrelationResult{
		Kind:        ScoredResult,
		Category:    category,
		Pearson:     pearson,
		Concordance: concordance,
		Provenance:  prov,
	}
}

// ReadError builds a read or compute failure result.
func ReadError(category, message, oldPath, newPath string) CorrelationResult {
	return CorrelationResult{Kind: ReadErrorResult, Category: category, Message: message, OldPath: oldPath, NewPath: newPath}
}

// ShapeMismatch builds a result for pairs with differing element counts.
func ShapeMismatch(category, oldPath, newPath string) CorrelationResult {
	return CorrelationResult{Kind: ShapeMismatchResult, Category: category, Message: "different shape", OldPath: oldPath, NewPath: newPath}
}

// FileNotFound builds a result for a pair with a path absent on disk.
func FileNotFound(category, missingPath string) CorrelationResult {
	return CorrelationResult{Kind: FileNotFoundResult, Category: category, Message: "file doesn't exist", MissingPath: missingPath}
}

// IsSubOptimal reports whether the result is a scored pair flagged for review.
func (r CorrelationResult) IsSubOptimal() bool {
	return r.Kind == ScoredResult && r.Provenance != nil
}

// Score returns the value for one measure.
func (r CorrelationResult) Score(kind CorrKind) float64 {
	if kind == PearsonKind {
		return r.Pearson
	}
	return r.Concordance
}

// correlationResultJSON mirrors CorrelationResult with NaN-safe score fields.
type correlationResultJSON struct {
	Kind        ResultKind  `json:"kind"`
	Category    string      `json:"category"`
	Pearson     *float64    `json:"pearson"`
	Concordance *float64    `json:"concordance"`
	Provenance  *Provenance `json:"provenance,omitempty"`
	Message     string      `json:"message,omitempty"`
	OldPath     string      `json:"old_path,omitempty"`
	NewPath     string      `json:"new_path,omitempty"`
	MissingPath string      `json:"missing_path,omitempty"`
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// MarshalJSON encodes NaN scores as null.
func (r CorrelationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(correlationResultJSON{
		Kind:        r.Kind,
		Category:    r.Category,
		Pearson:     finiteOrNil(r.Pearson),
		Concordance: finiteOrNil(r.Concordance),
		Provenance:  r.Provenance,
		Message:     r.Message,
		OldPath:     r.OldPath,
		NewPath:     r.NewPath,
		MissingPath: r.MissingPath,
	})
}

// UnmarshalJSON decodes null scores back to NaN.
func (r *CorrelationResult) UnmarshalJSON(data []byte) error {
	var raw correlationResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = CorrelationResult{
		Kind:        raw.Kind,
		Category:    raw.Category,
		Pearson:     math.NaN(),
		Concordance: math.NaN(),
		Provenance:  raw.Provenance,
		Message:     raw.Message,
		OldPath:     raw.OldPath,
		NewPath:     raw.NewPath,
		MissingPath: raw.MissingPath,
	}
	if raw.Pearson != nil {
		r.Pearson = *raw.Pearson
	}
	if raw.Concordance != nil {
		r.Concordance = *raw.Concordance
	}
	return nil
}
