package outwriter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/schema"
)

// writeWithFile handles the common pattern of opening a file, writing to it, and cleaning up.
// It accepts a writer function that takes an io.Writer and returns an error.
func writeWithFile(outputFile string, writer func(io.Writer) error, successMsg string) error {
	file, err := contract.SelectOutputFile(outputFile)
	if err != nil {
		return err
	}
	// Only close if it's not stdout
	if file != os.Stdout {
		defer func() { _ = file.Close() }()
	}

	if err := writer(file); err != nil {
		return err
	}

	if file != os.Stdout {
		_, _ = fmt.Fprintf(os.Stderr, "💾 %s to %s\n", successMsg, outputFile)
	}
	return nil
}

// writeJSON is a generic JSON encoder that handles indentation consistently.
func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeCSVWithHeader handles the common pattern of creating a CSV writer,
// writing a header, and writing data rows.
func writeCSVWithHeader(w io.Writer, header []string, writeRows func(*csv.Writer) error) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	if err := writeRows(csvWriter); err != nil {
		return err
	}

	return nil
}

// createFormatters creates the common formatter closures used across multiple output types.
// NaN renders as "nan".
func createFormatters(precision int) (fmtFloat func(float64) string, intFmt string) {
	numFmt := "%.*f"
	intFmt = "%d"
	fmtFloat = func(v float64) string {
		if math.IsNaN(v) {
			return "nan"
		}
		return fmt.Sprintf(numFmt, precision, v)
	}
	return fmtFloat, intFmt
}

// writeTextFile writes content to name inside dir.
func writeTextFile(dir, name string, content []byte) error {
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// resultPaths returns the paths a result refers to, whichever variant it is.
func resultPaths(r schema.CorrelationResult) (oldPath, newPath string) {
	switch {
	case r.Provenance != nil:
		return r.Provenance.OldPath, r.Provenance.NewPath
	case r.Kind == schema.FileNotFoundResult:
		return r.MissingPath, ""
	default:
		return r.OldPath, r.NewPath
	}
}

// outputPath places a default file name inside the output directory unless a file was given.
func outputPath(cfg *contract.Config, name string) string {
	if cfg.OutputFile != "" {
		return cfg.OutputFile
	}
	dir := cfg.OutputDir
	if dir == "" {
		dir = contract.DefaultOutputDir
	}
	return filepath.Join(dir, name)
}
