package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FingerprintKey identifies "the same artifact" across two independently laid-out trees.
type FingerprintKey struct {
	Category string `json:"category"`
	Midpath  string `json:"midpath"`
	Digits   string `json:"digits"` // numeric signature: parent dir digits, then filename digits
}

// String renders the key in a stable, human-readable form.
func (k FingerprintKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Category, k.Midpath, k.Digits)
}

// Less orders keys by category, midpath, then digits.
func (k FingerprintKey) Less(other FingerprintKey) bool {
	if k.Category != other.Category {
		return k.Category < other.Category
	}
	if k.Midpath != other.Midpath {
		return k.Midpath < other.Midpath
	}
	return k.Digits < other.Digits
}

// PathChange records one rename-rule substitution for audit.
type PathChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// IndexStats counts what happened while building a FileIndex.
type IndexStats struct {
	Seen           int          `json:"seen"`
	Indexed        int          `json:"indexed"`
	SkippedNonComp int          `json:"skipped_noncomparable"`
	SkippedShallow int          `json:"skipped_shallow"`
	Collisions     int          `json:"collisions"`
	PathChanges    []PathChange `json:"path_changes,omitempty"`
}

// FileIndex maps category -> fingerprint key -> paths for one tree.
type FileIndex struct {
	Root    string
	Entries map[string]map[FingerprintKey][]string
}

// NewFileIndex creates an empty index for a tree root.
func NewFileIndex(root string) *FileIndex {
	return &FileIndex{Root: root, Entries: make(map[string]map[FingerprintKey][]string)}
}

// Put stores paths under a key, returning the previous first path when it overwrote one.
func (fi *FileIndex) Put(key FingerprintKey, paths []string) (string, bool) {
	inner, ok := fi.Entries[key.Category]
	if !ok {
		inner = make(map[FingerprintKey][]string)
		fi.Entries[key.Category] = inner
	}
	prev, existed := inner[key]
	inner[key] = paths
	if existed && len(prev) > 0 {
		return prev[0], true
	}
	return "", false
}

// Get returns the paths under a key.
func (fi *FileIndex) Get(key FingerprintKey) ([]string, bool) {
	inner, ok := fi.Entries[key.Category]
	if !ok {
		return nil, false
	}
	paths, ok := inner[key]
	return paths, ok
}

// Categories returns all categories in sorted order.
func (fi *FileIndex) Categories() []string {
	cats := make([]string, 0, len(fi.Entries))
	for c := range fi.Entries {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Keys returns the keys of one category in sorted order.
func (fi *FileIndex) Keys(category string) []FingerprintKey {
	inner := fi.Entries[category]
	keys := make([]FingerprintKey, 0, len(inner))
	for k := range inner {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Len returns the total number of fingerprint keys.
func (fi *FileIndex) Len() int {
	n := 0
	for _, inner := range fi.Entries {
		n += len(inner)
	}
	return n
}

// indexRecord is the flat serialized form of one FileIndex entry.
type indexRecord struct {
	Key   FingerprintKey `json:"key"`
	Paths []string       `json:"paths"`
}

type indexSnapshot struct {
	Root    string        `json:"root"`
	Records []indexRecord `json:"records"`
}

// MarshalJSON flattens the struct-keyed maps, which encoding/json cannot key on.
func (fi *FileIndex) MarshalJSON() ([]byte, error) {
	snap := indexSnapshot{Root: fi.Root}
	for _, cat := range fi.Categories() {
		for _, k := range fi.Keys(cat) {
			snap.Records = append(snap.Records, indexRecord{Key: k, Paths: fi.Entries[cat][k]})
		}
	}
	return json.Marshal(snap)
}

// UnmarshalJSON restores an index written by MarshalJSON.
func (fi *FileIndex) UnmarshalJSON(data []byte) error {
	var snap indexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	fi.Root = snap.Root
	fi.Entries = make(map[string]map[FingerprintKey][]string)
	for _, r := range snap.Records {
		fi.Put(r.Key, r.Paths)
	}
	return nil
}

// IsRemote reports whether a path addresses an object store.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "gs://")
}

// RenameRule is one ordered old -> new substring substitution applied to raw paths.
type RenameRule struct {
	Old string `json:"old"`
	New string `json:"new"`
}
