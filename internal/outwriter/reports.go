package outwriter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pipecorr/pipecorr/core/agg"
	"github.com/pipecorr/pipecorr/schema"
	"gopkg.in/yaml.v3"
)

// writeReportFiles writes every per-run report into dir. Reports with nothing
// to say are not written.
func writeReportFiles(output *schema.CompareOutput, dir string) error {
	if err := writeAverages(dir, output.Summaries); err != nil {
		return err
	}
	if err := writeSubOptimal(dir, output.SubOptimal); err != nil {
		return err
	}
	if err := writeMissing(dir, output.Missing); err != nil {
		return err
	}
	return writePathChanges(dir, output.OldStats.PathChanges, output.NewStats.PathChanges)
}

// writeAverages writes one average_<group>.txt per group with a
// "<category>: <mean>" line per category.
func writeAverages(dir string, summaries []schema.GroupSummary) error {
	lines := make(map[string][]string)
	var groups []string
	for _, s := range summaries {
		if _, ok := lines[s.Group]; !ok {
			groups = append(groups, s.Group)
		}
		lines[s.Group] = append(lines[s.Group], fmt.Sprintf("%s: %s", s.Category, agg.FormatScore(s.Mean)))
	}
	for _, group := range groups {
		content := strings.Join(lines[group], "\n") + "\n"
		if err := writeTextFile(dir, "average_"+group+".txt", []byte(content)); err != nil {
			return err
		}
	}
	return nil
}

// writeSubOptimal writes the sub-optimal listing as YAML.
func writeSubOptimal(dir string, subOptimal map[string][]string) error {
	if len(subOptimal) == 0 {
		return nil
	}
	data, err := yaml.Marshal(subOptimal)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", SubOptimalFile, err)
	}
	return writeTextFile(dir, SubOptimalFile, data)
}

// writeMissing writes one report per direction of unmatched artifacts.
func writeMissing(dir string, missing schema.MissingReport) error {
	if len(missing.MissingInNew) > 0 {
		header := fmt.Sprintf("These outputs are in %s, and are either missing in %s or were not picked up by the file parser:",
			missing.OldLabel, missing.NewLabel)
		if err := writeTextFile(dir, MissingNewFile, []byte(formatMissing(header, missing.MissingInNew))); err != nil {
			return err
		}
	}
	if len(missing.MissingInOld) > 0 {
		header := fmt.Sprintf("These outputs are in %s, and missing in %s or were not picked up by the file parser:",
			missing.NewLabel, missing.OldLabel)
		if err := writeTextFile(dir, MissingOldFile, []byte(formatMissing(header, missing.MissingInOld))); err != nil {
			return err
		}
	}
	return nil
}

func formatMissing(header string, byCategory map[string][]string) string {
	var b strings.Builder
	b.WriteString("\n" + header + "\n\n")

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		b.WriteString("\n" + c + ":\n\n")
		for _, p := range byCategory[c] {
			b.WriteString("    " + p + "\n")
		}
	}
	return b.String()
}

// writePathChanges writes the rename audit of both trees.
func writePathChanges(dir string, changes ...[]schema.PathChange) error {
	var b strings.Builder
	for _, set := range changes {
		for _, c := range set {
			fmt.Fprintf(&b, "old: %s\nnew: %s\n", c.Old, c.New)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return writeTextFile(dir, PathChangesFile, []byte(b.String()))
}
