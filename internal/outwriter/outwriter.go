// Package outwriter has output and writer logic.
package outwriter

import (
	"errors"
	"fmt"
	"os"

	"github.com/pipecorr/pipecorr/internal/contract"
	"golang.org/x/term"
)

// ErrOutputDir is returned when the output directory cannot be created.
var ErrOutputDir = errors.New("could not create the output directory, check write permissions")

// Files written into the output directory.
const (
	SubOptimalFile    = "sub_optimal.yml"
	MissingNewFile    = "report_missing_new.txt"
	MissingOldFile    = "report_missing_old.txt"
	PathChangesFile   = "path_changes.txt"
	ResultsParquet    = "results.parquet"
	MatrixCSVFile     = "correlation_matrix.csv"
	MatrixParquetFile = "correlation_matrix.parquet"
	FilepathsFile     = "filepaths.csv"
)

// LogCompareHeader prints a header for a compare run.
func LogCompareHeader(cfg *contract.Config) {
	_, _ = fmt.Fprintf(os.Stderr, "🔎 Comparing: %s ↔ %s\n", cfg.OldLabel, cfg.NewLabel)
	_, _ = fmt.Fprintf(os.Stderr, "📂 Trees: %s ↔ %s (workers: %d, threshold: %g)\n", cfg.OldTree, cfg.NewTree, cfg.Workers, cfg.Threshold)
}

// ensureOutputDir creates the output directory when needed.
func ensureOutputDir(dir string) error {
	if dir == "" {
		dir = contract.DefaultOutputDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOutputDir, dir, err)
	}
	return nil
}

// GetMaxTablePathWidth calculates the maximum width for paths and category
// names in table output based on terminal width.
func GetMaxTablePathWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 { // Not set by override
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			termWidth = 80 // Conservative default for narrow terminals and CI
		} else {
			termWidth = detectedWidth
		}
	}

	// Group + Count + Mean + Label with borders/padding
	baseWidth := 75

	available := termWidth - baseWidth
	if available < 15 {
		return 15
	}
	if available > 70 {
		return 70
	}
	return available
}
