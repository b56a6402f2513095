package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/internal/parquet"
	"github.com/pipecorr/pipecorr/schema"
)

// WriteCompareResults writes the report files into the output directory, then
// the results in the configured output format.
func WriteCompareResults(output *schema.CompareOutput, cfg *contract.Config) error {
	dir := cfg.OutputDir
	if dir == "" {
		dir = contract.DefaultOutputDir
	}
	if err := ensureOutputDir(dir); err != nil {
		return err
	}
	if err := writeReportFiles(output, dir); err != nil {
		return err
	}

	fmtFloat, intFmt := createFormatters(cfg.Precision)

	// Dispatcher: Handle different output formats
	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, output)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			csvWriter := csv.NewWriter(w)
			defer csvWriter.Flush()
			return writeCSVResultsForCompare(csvWriter, output.Results, cfg, fmtFloat)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.ParquetOut:
		target := outputPath(cfg, ResultsParquet)
		if err := parquet.WriteResultsParquet(parquet.ConvertResults(output.Results), target); err != nil {
			return fmt.Errorf("error writing Parquet output: %w", err)
		}
		fmt.Printf("💾 Wrote Parquet to %s\n", target)
	default:
		// Default to human-readable table
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCompareTable(output, cfg, fmtFloat, intFmt, w)
		}, "Wrote table")
	}
	return nil
}

// writeCompareTable generates and writes the per-group summary table.
func writeCompareTable(output *schema.CompareOutput, cfg *contract.Config, fmtFloat func(float64) string, intFmt string, writer io.Writer) error {
	table := tablewriter.NewWriter(writer)
	table.Header([]string{"Group", "Category", "Count", "Mean", "Label"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	width := GetMaxTablePathWidth(cfg)
	var data [][]string
	for _, s := range output.Summaries {
		data = append(data, []string{
			s.Group,
			contract.TruncatePath(s.Category, width),
			fmt.Sprintf(intFmt, s.Count),
			fmtFloat(s.Mean),
			contract.GetColorLabel(s.Mean, cfg.Threshold),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	c := output.Counts
	if _, err := fmt.Fprintf(writer, "Scored %d pairs (%d sub-optimal, %d read errors, %d shape mismatches, %d not found)\n",
		c.Scored, c.SubOptimal, c.ReadErrors, c.ShapeMismatch, c.FileNotFound); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "Missing: %d categories only in %s, %d categories only in %s\n",
		len(output.Missing.MissingInNew), output.OldLabel, len(output.Missing.MissingInOld), output.NewLabel); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "Compare completed in %v with %d workers. Cache backend: %s\n", output.Duration, cfg.Workers, cfg.CacheBackend); err != nil {
		return err
	}
	return nil
}

// writeCSVResultsForCompare writes one row per pair result.
func writeCSVResultsForCompare(w *csv.Writer, results []schema.CorrelationResult, cfg *contract.Config, fmtFloat func(float64) string) error {
	header := []string{
		"kind",
		"category",
		"pearson",
		"concordance",
		"label",
		"old_path",
		"new_path",
		"message",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		oldPath, newPath := resultPaths(r)
		pearson, concordance, label := "", "", ""
		if r.Kind == schema.ScoredResult {
			pearson = fmtFloat(r.Pearson)
			concordance = fmtFloat(r.Concordance)
			label = contract.GetPlainLabel(r.Concordance, cfg.Threshold)
		}
		rec := []string{
			string(r.Kind),
			r.Category,
			pearson,
			concordance,
			label,
			oldPath,
			newPath,
			r.Message,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}
