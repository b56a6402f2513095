package schema

import "encoding/json"

// GridFeature describes one row of a subject x feature correlation grid.
type GridFeature struct {
	Name string `yaml:"name" mapstructure:"name" json:"name"`
	// OldGlob and NewGlob are path templates with {subject} and {session} placeholders.
	OldGlob string `yaml:"old_glob" mapstructure:"old_glob" json:"old_glob"`
	NewGlob string `yaml:"new_glob" mapstructure:"new_glob" json:"new_glob"`
	// OldColumn and NewColumn select a header column; empty means the first column.
	OldColumn string `yaml:"old_column" mapstructure:"old_column" json:"old_column"`
	NewColumn string `yaml:"new_column" mapstructure:"new_column" json:"new_column"`
}

// GridSpec is an explicit subject x feature comparison grid.
type GridSpec struct {
	Subjects []string      `yaml:"subjects" mapstructure:"subjects" json:"subjects"`
	Features []GridFeature `yaml:"features" mapstructure:"features" json:"features"`
}

// GridCell is one resolved (feature, subject) comparison.
type GridCell struct {
	Feature string  `json:"feature"`
	Subject string  `json:"subject"`
	OldPath string  `json:"old_path"` // empty when not found
	NewPath string  `json:"new_path"` // empty when not found
	Pearson float64 `json:"pearson"`
}

// CorrelationMatrix holds Pearson r keyed by row=feature, column=subject-session.
type CorrelationMatrix struct {
	Features []string    `json:"features"`
	Subjects []string    `json:"subjects"`
	Values   [][]float64 `json:"values"` // [feature][subject]
	Cells    []GridCell  `json:"cells"`
}

// MarshalJSON encodes an undefined correlation as null.
func (c GridCell) MarshalJSON() ([]byte, error) {
	type alias GridCell
	return json.Marshal(struct {
		alias
		Pearson *float64 `json:"pearson"`
	}{alias(c), finiteOrNil(c.Pearson)})
}

// MarshalJSON encodes undefined matrix values as null.
func (m CorrelationMatrix) MarshalJSON() ([]byte, error) {
	values := make([][]*float64, len(m.Values))
	for i, row := range m.Values {
		values[i] = make([]*float64, len(row))
		for j, v := range row {
			values[i][j] = finiteOrNil(v)
		}
	}
	type alias CorrelationMatrix
	return json.Marshal(struct {
		alias
		Values [][]*float64 `json:"values"`
	}{alias(m), values})
}
