package schema

// MatchedEntry pairs the old and new artifact sharing a fingerprint key.
type MatchedEntry struct {
	Category string         `json:"category"`
	Key      FingerprintKey `json:"key"`
	OldPath  string         `json:"old_path"`
	NewPath  string         `json:"new_path"`
}

// MissingEntry is a fingerprint key seen on one side only.
type MissingEntry struct {
	Category string         `json:"category"`
	Key      FingerprintKey `json:"key"`
	Path     string         `json:"path"`
}

// MatchResult is the output of joining two file indexes.
type MatchResult struct {
	Matched      []MatchedEntry `json:"matched"`
	MissingInOld []MissingEntry `json:"missing_in_old"` // present in new only
	MissingInNew []MissingEntry `json:"missing_in_new"` // present in old only
}

// MissingReport groups unmatched paths per category for both directions.
type MissingReport struct {
	OldLabel     string              `json:"old_label"`
	NewLabel     string              `json:"new_label"`
	MissingInOld map[string][]string `json:"missing_in_old"`
	MissingInNew map[string][]string `json:"missing_in_new"`
}
