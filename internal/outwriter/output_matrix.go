package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pipecorr/pipecorr/core/matrix"
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/internal/parquet"
	"github.com/pipecorr/pipecorr/schema"
)

// WriteMatrixResults writes the correlation matrix and the resolved file paths
// into the output directory, then prints the matrix in the configured format.
func WriteMatrixResults(m *schema.CorrelationMatrix, cfg *contract.Config) error {
	dir := cfg.OutputDir
	if dir == "" {
		dir = contract.DefaultOutputDir
	}
	if err := ensureOutputDir(dir); err != nil {
		return err
	}

	if err := writeFileCSV(filepath.Join(dir, MatrixCSVFile), func(w *csv.Writer) error {
		return writeMatrixCSV(w, m)
	}); err != nil {
		return err
	}
	if err := writeFileCSV(filepath.Join(dir, FilepathsFile), func(w *csv.Writer) error {
		return writeFilepathsCSV(w, m, cfg)
	}); err != nil {
		return err
	}
	if err := parquet.WriteMatrixParquet(parquet.ConvertMatrix(m), filepath.Join(dir, MatrixParquetFile)); err != nil {
		return fmt.Errorf("error writing Parquet output: %w", err)
	}

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, m)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			cw := csv.NewWriter(w)
			defer cw.Flush()
			return writeMatrixCSV(cw, m)
		}, "Wrote CSV")
	case schema.ParquetOut:
		_, _ = fmt.Fprintf(os.Stderr, "💾 Wrote Parquet to %s\n", filepath.Join(dir, MatrixParquetFile))
		return nil
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeMatrixTable(m, cfg, w)
		}, "Wrote table")
	}
}

func writeFileCSV(path string, rows func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := rows(w); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// roundMatrixValue rounds to three decimals; undefined cells are left empty.
func roundMatrixValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

// writeMatrixCSV writes one row per feature and one column per subject.
func writeMatrixCSV(w *csv.Writer, m *schema.CorrelationMatrix) error {
	if err := w.Write(append([]string{"feature"}, m.Subjects...)); err != nil {
		return err
	}
	for i, feature := range m.Features {
		row := []string{feature}
		for _, v := range m.Values[i] {
			row = append(row, roundMatrixValue(v))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// writeFilepathsCSV lists the file each run contributed to every cell.
func writeFilepathsCSV(w *csv.Writer, m *schema.CorrelationMatrix, cfg *contract.Config) error {
	if err := w.Write([]string{"cell", cfg.OldLabel, cfg.NewLabel}); err != nil {
		return err
	}
	for _, c := range m.Cells {
		rec := []string{
			c.Subject + " " + c.Feature,
			matrix.DisplayPath(c.OldPath, cfg.OldTree),
			matrix.DisplayPath(c.NewPath, cfg.NewTree),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// writeMatrixTable prints the matrix. Undefined cells show their label.
func writeMatrixTable(m *schema.CorrelationMatrix, cfg *contract.Config, writer io.Writer) error {
	table := tablewriter.NewWriter(writer)
	table.Header(append([]string{"Feature"}, m.Subjects...))

	var data [][]string
	for i, feature := range m.Features {
		row := []string{feature}
		for _, v := range m.Values[i] {
			cell := roundMatrixValue(v)
			if cell == "" {
				cell = contract.GetColorLabel(v, cfg.Threshold)
			}
			row = append(row, cell)
		}
		data = append(data, row)
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(writer, "Correlated %d features across %d subjects\n", len(m.Features), len(m.Subjects))
	return err
}
