// Package index derives cross-run fingerprints for artifacts and builds per-tree file indexes.
package index

import (
	"path"
	"strings"
	"unicode"

	"github.com/pipecorr/pipecorr/internal/logging"
	"github.com/pipecorr/pipecorr/schema"
)

// nonComparable marks artifacts that never correlate meaningfully:
// stacked montages, transforms and QC montages.
var nonComparable = []string{"_stack", "itk", "xfm", "montage"}

// excludedTags are the filename tag prefixes stripped to form a category.
var excludedTags = []string{"sub-", "ses-", "task-", "run-", "acq-"}

// IsNonComparable reports whether a path names an artifact that is never scored.
func IsNonComparable(p string) bool {
	for _, marker := range nonComparable {
		if strings.Contains(p, marker) {
			return true
		}
	}
	return false
}

// ApplyRenames applies each rule once, in order, replacing every occurrence of
// its old substring. Each rule that changed the path yields one PathChange.
func ApplyRenames(p string, rules []schema.RenameRule) (string, []schema.PathChange) {
	var changes []schema.PathChange
	for _, rule := range rules {
		if rule.Old == "" || !strings.Contains(p, rule.Old) {
			continue
		}
		next := strings.ReplaceAll(p, rule.Old, rule.New)
		changes = append(changes, schema.PathChange{Old: p, New: next})
		p = next
	}
	return p, changes
}

// Category derives the derivative name from a filename. Compression and NIfTI
// suffixes are removed, then every "token_" whose token carries a subject,
// session, task, run or acquisition tag, or is a single character, is dropped.
func Category(filename string) string {
	category := strings.TrimSuffix(filename, ".gz")
	category = strings.TrimSuffix(category, ".nii")

	for token := range strings.SplitSeq(filename, "_") {
		if isTagToken(token) {
			category = strings.ReplaceAll(category, token+"_", "")
		}
	}
	return category
}

func isTagToken(token string) bool {
	if len(token) == 1 {
		return true
	}
	for _, tag := range excludedTags {
		if strings.Contains(token, tag) {
			return true
		}
	}
	return false
}

// Digits concatenates the digits of the parent directory name, then of the filename.
func Digits(parent, filename string) string {
	var b strings.Builder
	for _, s := range []string{parent, filename} {
		for _, r := range s {
			if unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// Midpath returns the directory fragment between the tree root and the filename.
// The second return is false when the file sits directly under the root.
func Midpath(p, treeRoot string) (string, bool) {
	mid := strings.TrimPrefix(p, treeRoot)
	mid = strings.TrimSuffix(mid, path.Base(p))
	if strings.Trim(mid, "/") == "" {
		return mid, false
	}
	return mid, true
}

// Fingerprint computes the key of a post-rename path under treeRoot.
func Fingerprint(p, treeRoot string) (schema.FingerprintKey, bool) {
	filename := path.Base(p)
	mid, ok := Midpath(p, treeRoot)
	if !ok {
		return schema.FingerprintKey{}, false
	}
	return schema.FingerprintKey{
		Category: Category(filename),
		Midpath:  mid,
		Digits:   Digits(path.Base(path.Dir(p)), filename),
	}, true
}

// Build indexes the paths of one tree. Rename rules are applied before parsing,
// while the stored path is the original one. A later path with the same key
// overwrites the earlier one; overwrites are counted as collisions and
// Indexed counts the distinct keys that remain.
func Build(paths []string, treeRoot string, rules []schema.RenameRule) (*schema.FileIndex, schema.IndexStats) {
	logger := logging.New("index")
	treeRoot = strings.TrimRight(treeRoot, "/")

	idx := schema.NewFileIndex(treeRoot)
	var stats schema.IndexStats
	for _, real := range paths {
		stats.Seen++

		renamed, changes := ApplyRenames(real, rules)
		stats.PathChanges = append(stats.PathChanges, changes...)

		if IsNonComparable(renamed) {
			stats.SkippedNonComp++
			continue
		}

		key, ok := Fingerprint(renamed, treeRoot)
		if !ok {
			stats.SkippedShallow++
			logger.Debug("skipping artifact without a parent directory", "path", real)
			continue
		}

		if prev, overwrote := idx.Put(key, []string{real}); overwrote {
			stats.Collisions++
			logger.Warn("fingerprint collision, keeping the later artifact",
				"category", key.Category, "dropped", prev, "kept", real)
		}
	}
	stats.Indexed = idx.Len()
	return idx, stats
}
