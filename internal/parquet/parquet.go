// Package parquet provides data structures and functions for exporting pipecorr
// results and run history to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/pipecorr/pipecorr/schema"
)

// Run represents a single compare run with metadata.
// This struct maps to the pipecorr_runs database table.
type Run struct {
	// RunID is the unique identifier for this run
	RunID int64 `parquet:"run_id,snappy"`

	// RunKey is the run's UUID
	RunKey string `parquet:"run_key,snappy"`

	OldTree string `parquet:"old_tree,snappy"`
	NewTree string `parquet:"new_tree,snappy"`

	// StartTime is when the run began (stored as TIMESTAMP with nanosecond precision)
	StartTime time.Time `parquet:"start_time,snappy"`

	// EndTime is when the run completed (nullable)
	EndTime *time.Time `parquet:"end_time,optional,snappy"`

	// RunDurationMs is the duration of the run in milliseconds (nullable)
	RunDurationMs *int64 `parquet:"run_duration_ms,optional,snappy"`

	TotalPairs int32 `parquet:"total_pairs,snappy"`
	SubOptimal int32 `parquet:"sub_optimal,snappy"`
	Failures   int32 `parquet:"failures,snappy"`

	// ConfigParams contains the JSON-encoded configuration parameters (nullable)
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// PairResult is one stored pair outcome of a run.
// This struct maps to the pipecorr_pair_results database table.
type PairResult struct {
	RunID     int64  `parquet:"run_id,snappy"`
	PairIndex int32  `parquet:"pair_index,snappy"`
	Category  string `parquet:"category,snappy"`
	Kind      string `parquet:"kind,snappy"`
	OldPath   string `parquet:"old_path,snappy"`
	NewPath   string `parquet:"new_path,snappy"`

	// Scores are null for failed pairs and NaN scores
	Pearson     *float64 `parquet:"pearson,optional,snappy"`
	Concordance *float64 `parquet:"concordance,optional,snappy"`

	SubOptimal bool    `parquet:"sub_optimal,snappy"`
	Message    *string `parquet:"message,optional,snappy"`
}

// Result is one pair outcome of the current compare run.
type Result struct {
	Category    string   `parquet:"category,snappy"`
	Kind        string   `parquet:"kind,snappy"`
	Pearson     *float64 `parquet:"pearson,optional,snappy"`
	Concordance *float64 `parquet:"concordance,optional,snappy"`
	SubOptimal  bool     `parquet:"sub_optimal,snappy"`
	OldPath     string   `parquet:"old_path,snappy"`
	NewPath     string   `parquet:"new_path,snappy"`
	Message     string   `parquet:"message,snappy"`
}

// MatrixCell is one (feature, subject) cell of a correlation grid.
type MatrixCell struct {
	Feature string   `parquet:"feature,snappy"`
	Subject string   `parquet:"subject,snappy"`
	Pearson *float64 `parquet:"pearson,optional,snappy"`
	OldPath string   `parquet:"old_path,snappy"`
	NewPath string   `parquet:"new_path,snappy"`
}

// writeParquet writes rows to a Parquet file whose schema is inferred from T's struct tags.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// WriteRunsParquet writes a slice of Run structs to a Parquet file.
func WriteRunsParquet(data []Run, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WritePairResultsParquet writes a slice of PairResult structs to a Parquet file.
func WritePairResultsParquet(data []PairResult, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteResultsParquet writes a slice of Result structs to a Parquet file.
func WriteResultsParquet(data []Result, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteMatrixParquet writes a slice of MatrixCell structs to a Parquet file.
func WriteMatrixParquet(data []MatrixCell, outputPath string) error {
	return writeParquet(data, outputPath)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ConvertRunRecords converts schema.RunRecord to Run for Parquet export.
func ConvertRunRecords(records []schema.RunRecord) []Run {
	result := make([]Run, len(records))
	for i, record := range records {
		result[i] = Run{
			RunID:         record.RunID,
			RunKey:        record.RunKey,
			OldTree:       record.OldTree,
			NewTree:       record.NewTree,
			StartTime:     record.StartTime,
			EndTime:       record.EndTime,
			RunDurationMs: record.RunDurationMs,
			TotalPairs:    record.TotalPairs,
			SubOptimal:    record.SubOptimal,
			Failures:      record.Failures,
			ConfigParams:  record.ConfigParams,
		}
	}
	return result
}

// ConvertPairRecords converts schema.PairRecord to PairResult for Parquet export.
func ConvertPairRecords(records []schema.PairRecord) []PairResult {
	result := make([]PairResult, len(records))
	for i, record := range records {
		result[i] = PairResult{
			RunID:       record.RunID,
			PairIndex:   record.PairIndex,
			Category:    record.Category,
			Kind:        record.Kind,
			OldPath:     record.OldPath,
			NewPath:     record.NewPath,
			Pearson:     record.Pearson,
			Concordance: record.Concordance,
			SubOptimal:  record.SubOptimal,
			Message:     record.Message,
		}
	}
	return result
}

// ConvertResults converts compare results for Parquet export.
func ConvertResults(results []schema.CorrelationResult) []Result {
	out := make([]Result, len(results))
	for i, r := range results {
		row := Result{
			Category:   r.Category,
			Kind:       string(r.Kind),
			SubOptimal: r.IsSubOptimal(),
			OldPath:    r.OldPath,
			NewPath:    r.NewPath,
			Message:    r.Message,
		}
		switch {
		case r.Provenance != nil:
			row.OldPath, row.NewPath = r.Provenance.OldPath, r.Provenance.NewPath
		case r.Kind == schema.FileNotFoundResult:
			row.OldPath = r.MissingPath
		}
		if r.Kind == schema.ScoredResult {
			row.Pearson = finite(r.Pearson)
			row.Concordance = finite(r.Concordance)
		}
		out[i] = row
	}
	return out
}

// ConvertMatrix flattens a correlation matrix into cells for Parquet export.
func ConvertMatrix(m *schema.CorrelationMatrix) []MatrixCell {
	out := make([]MatrixCell, len(m.Cells))
	for i, c := range m.Cells {
		out[i] = MatrixCell{
			Feature: c.Feature,
			Subject: c.Subject,
			Pearson: finite(c.Pearson),
			OldPath: c.OldPath,
			NewPath: c.NewPath,
		}
	}
	return out
}
