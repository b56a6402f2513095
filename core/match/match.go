// Package match joins the file indexes of two trees into matched pairs and missing sets.
package match

import (
	"errors"
	"slices"

	"github.com/pipecorr/pipecorr/schema"
)

// ErrNoMatches is returned when the two trees share no fingerprint key.
var ErrNoMatches = errors.New("no matching artifacts between the two trees")

func firstPath(idx *schema.FileIndex, key schema.FingerprintKey) (string, bool) {
	paths, ok := idx.Get(key)
	if !ok || len(paths) == 0 || paths[0] == "" {
		return "", false
	}
	return paths[0], true
}

// Match pairs every key of newIdx with the same key in oldIdx. Keys found only
// in the new tree land in MissingInOld and keys found only in the old tree land
// in MissingInNew. Categories and keys are visited in sorted order.
func Match(oldIdx, newIdx *schema.FileIndex) (*schema.MatchResult, error) {
	result := &schema.MatchResult{}

	for _, category := range newIdx.Categories() {
		for _, key := range newIdx.Keys(category) {
			newPath, ok := firstPath(newIdx, key)
			if !ok {
				continue
			}
			oldPath, ok := firstPath(oldIdx, key)
			if !ok {
				result.MissingInOld = append(result.MissingInOld, schema.MissingEntry{Category: category, Key: key, Path: newPath})
				continue
			}
			result.Matched = append(result.Matched, schema.MatchedEntry{
				Category: category,
				Key:      key,
				OldPath:  oldPath,
				NewPath:  newPath,
			})
		}
	}

	for _, category := range oldIdx.Categories() {
		for _, key := range oldIdx.Keys(category) {
			oldPath, ok := firstPath(oldIdx, key)
			if !ok {
				continue
			}
			if _, ok := firstPath(newIdx, key); !ok {
				result.MissingInNew = append(result.MissingInNew, schema.MissingEntry{Category: category, Key: key, Path: oldPath})
			}
		}
	}

	if len(result.Matched) == 0 {
		return result, ErrNoMatches
	}
	return result, nil
}

// Filter keeps only the matched entries whose category is listed. Missing sets
// are narrowed the same way so reports stay consistent with what was scored.
func Filter(result *schema.MatchResult, categories []string) *schema.MatchResult {
	keep := func(c string) bool { return slices.Contains(categories, c) }

	filtered := &schema.MatchResult{}
	for _, m := range result.Matched {
		if keep(m.Category) {
			filtered.Matched = append(filtered.Matched, m)
		}
	}
	for _, m := range result.MissingInOld {
		if keep(m.Category) {
			filtered.MissingInOld = append(filtered.MissingInOld, m)
		}
	}
	for _, m := range result.MissingInNew {
		if keep(m.Category) {
			filtered.MissingInNew = append(filtered.MissingInNew, m)
		}
	}
	return filtered
}
