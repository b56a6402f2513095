package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/schema"
)

// WriteIndexResults prints the fingerprints of one tree in the configured output format.
func WriteIndexResults(idx *schema.FileIndex, stats schema.IndexStats, cfg *contract.Config, duration time.Duration) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, struct {
				Index *schema.FileIndex `json:"index"`
				Stats schema.IndexStats `json:"stats"`
			}{idx, stats})
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVWithHeader(w, []string{"category", "midpath", "digits", "path"}, func(cw *csv.Writer) error {
				return forEachIndexRow(idx, func(key schema.FingerprintKey, path string) error {
					return cw.Write([]string{key.Category, key.Midpath, key.Digits, path})
				})
			})
		}, "Wrote CSV")
	case schema.ParquetOut:
		return fmt.Errorf("%s output is not supported for index", cfg.Output)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeIndexTable(idx, stats, cfg, duration, w)
		}, "Wrote table")
	}
}

func forEachIndexRow(idx *schema.FileIndex, fn func(schema.FingerprintKey, string) error) error {
	for _, cat := range idx.Categories() {
		for _, key := range idx.Keys(cat) {
			paths, _ := idx.Get(key)
			for _, p := range paths {
				if err := fn(key, p); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// writeIndexTable generates and writes the human-readable index table.
func writeIndexTable(idx *schema.FileIndex, stats schema.IndexStats, cfg *contract.Config, duration time.Duration, writer io.Writer) error {
	table := tablewriter.NewWriter(writer)
	table.Header([]string{"Category", "Midpath", "Digits", "Path"})

	width := GetMaxTablePathWidth(cfg)
	var data [][]string
	_ = forEachIndexRow(idx, func(key schema.FingerprintKey, path string) error {
		data = append(data, []string{
			key.Category,
			key.Midpath,
			key.Digits,
			contract.TruncatePath(path, width),
		})
		return nil
	})

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "Indexed %d of %d artifacts (%d non-comparable, %d too shallow, %d collisions, %d renames)\n",
		stats.Indexed, stats.Seen, stats.SkippedNonComp, stats.SkippedShallow, stats.Collisions, len(stats.PathChanges)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(writer, "Index completed in %v. Cache backend: %s\n", duration, cfg.CacheBackend)
	return err
}
