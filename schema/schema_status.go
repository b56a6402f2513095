package schema

import "time"

// CacheStatus represents the status of the snapshot cache store.
type CacheStatus struct {
	Backend         string    `json:"backend"`
	Connected       bool      `json:"connected"`
	TotalEntries    int       `json:"total_entries"`
	LastEntryTime   time.Time `json:"last_entry_time"`
	OldestEntryTime time.Time `json:"oldest_entry_time"`
	TableSizeBytes  int64     `json:"table_size_bytes"`
}

// RunStatus represents the status of the run history store.
type RunStatus struct {
	Backend       string           `json:"backend"`
	Connected     bool             `json:"connected"`
	TotalRuns     int              `json:"total_runs"`
	LastRunID     int64            `json:"last_run_id"`
	LastRunTime   time.Time        `json:"last_run_time"`
	OldestRunTime time.Time        `json:"oldest_run_time"`
	TotalPairs    int              `json:"total_pairs"`
	TableSizes    map[string]int64 `json:"table_sizes"`
}

// RunRecord represents a row from the pipecorr_runs table.
type RunRecord struct {
	RunID         int64
	RunKey        string
	OldTree       string
	NewTree       string
	StartTime     time.Time
	EndTime       *time.Time
	RunDurationMs *int64
	TotalPairs    int32
	SubOptimal    int32
	Failures      int32
	ConfigParams  *string
}

// PairRecord represents a row from the pipecorr_pair_results table.
type PairRecord struct {
	RunID       int64
	PairIndex   int32
	Category    string
	Kind        string
	OldPath     string
	NewPath     string
	Pearson     *float64
	Concordance *float64
	SubOptimal  bool
	Message     *string
}

// RunSummary is what a finished compare run reports back to the run store.
type RunSummary struct {
	EndTime    time.Time
	TotalPairs int
	SubOptimal int
	Failures   int
}
