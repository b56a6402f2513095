package contract

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// Agreement label constants.
const (
	IdenticalValue  = "Identical"  // Identical value
	AcceptableValue = "Acceptable" // Acceptable value
	DegradedValue   = "Degraded"   // Degraded value
	DivergentValue  = "Divergent"  // Divergent value
	UndefinedValue  = "Undefined"  // Undefined value
)

// Color variables for console output.
var (
	IdenticalColor  = color.New(color.FgGreen, color.Bold) // IdenticalColor marks numerically equal outputs.
	AcceptableColor = color.New(color.FgCyan)              // AcceptableColor marks outputs above threshold.
	DegradedColor   = color.New(color.FgYellow)            // DegradedColor marks outputs needing a look.
	DivergentColor  = color.New(color.FgRed, color.Bold)   // DivergentColor marks outputs that disagree.
	UndefinedColor  = color.New(color.FgMagenta)           // UndefinedColor marks NaN scores.
)

// GetPlainLabel returns a plain text label describing how well two runs agree
// for a concordance score, given the acceptance threshold. This is the core
// logic used for CSV, JSON, and table printing.
func GetPlainLabel(score, threshold float64) string {
	switch {
	case math.IsNaN(score):
		return UndefinedValue
	case score >= 0.9999:
		return IdenticalValue
	case score > threshold:
		return AcceptableValue
	case score >= 0.9:
		return DegradedValue
	default:
		return DivergentValue
	}
}

// GetColorLabel returns a colored text label for console output (table).
// It uses GetPlainLabel to determine the string, and then applies the appropriate color.
func GetColorLabel(score, threshold float64) string {
	text := GetPlainLabel(score, threshold)

	switch text {
	case IdenticalValue:
		return IdenticalColor.Sprint(text)
	case AcceptableValue:
		return AcceptableColor.Sprint(text)
	case DegradedValue:
		return DegradedColor.Sprint(text)
	case DivergentValue:
		return DivergentColor.Sprint(text)
	default:
		return UndefinedColor.Sprint(text)
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. It falls back to os.Stdout when no path is given.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// ShouldIgnore returns true if the given path matches any of the exclude patterns.
// It supports simple glob patterns (using filepath.Match) when the pattern
// contains wildcard characters (*, ?, [ ]). Patterns ending with '/' are treated
// as directory fragments. Patterns starting with '.' are treated as suffix (extension) matches.
// A user can provide patterns like "qc/", "*_mask.nii.gz", ".png".
func ShouldIgnore(path string, excludes []string) bool {
	for _, ex := range excludes {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}

		// If the pattern contains glob characters, try filepath.Match.
		if strings.ContainsAny(ex, "*?[") {
			pat := strings.ReplaceAll(ex, "**", "*")
			if ok, err := filepath.Match(pat, path); err == nil && ok {
				return true
			}
			// Also try matching against the base filename (e.g. *_mask.nii.gz)
			if ok, err := filepath.Match(pat, filepath.Base(path)); err == nil && ok {
				return true
			}
			continue
		}

		// Handle directory, suffix, or substring matches
		switch {
		case strings.HasSuffix(ex, "/"):
			if strings.HasPrefix(path, ex) || strings.Contains(path, "/"+ex) {
				return true
			}
		case strings.HasPrefix(ex, "."):
			if strings.HasSuffix(path, ex) {
				return true
			}
		case strings.Contains(path, ex):
			return true
		}
	}
	return false
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// GetCacheDBFilePath returns the path to the SQLite DB file for snapshot storage.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".pipecorr_cache.db"
	}
	return filepath.Join(homeDir, ".pipecorr_cache.db")
}

// GetRunsDBFilePath returns the path to the SQLite DB file for run history.
func GetRunsDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".pipecorr_runs.db"
	}
	return filepath.Join(homeDir, ".pipecorr_runs.db")
}

// GetBadgerDirPath returns the directory used by the badger snapshot backend.
func GetBadgerDirPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".pipecorr_badger"
	}
	return filepath.Join(homeDir, ".pipecorr_badger")
}

// TruncatePath truncates a file path to a maximum width with ellipsis prefix.
// Requires maxWidth > 3 to leave room for the "..." prefix and at least one character.
func TruncatePath(path string, maxWidth int) string {
	runes := []rune(path)
	if len(runes) > maxWidth && maxWidth > 3 {
		return "..." + string(runes[len(runes)-maxWidth+3:])
	}
	return path
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
