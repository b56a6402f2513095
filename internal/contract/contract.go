// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"

	"github.com/pipecorr/pipecorr/schema"
)

// TreeLister enumerates object keys under a remote prefix.
// This allows the locator to be tested without a real object store.
type TreeLister interface {
	// List returns every key under prefix whose name carries the volumetric suffix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Fetcher materializes a remote artifact at a local path.
type Fetcher interface {
	// Fetch downloads key into stageDir at a path derived only from key and returns it.
	// A destination that already exists is returned without downloading again.
	Fetch(ctx context.Context, key string, stageDir string) (string, error)
}

// CacheManager defines the interface for managing cache stores.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetSnapshotStore() CacheStore
	GetRunStore() RunStore
}

// CacheStore defines the interface for snapshot storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// RunStore defines the interface for tracking compare runs and their pair results.
type RunStore interface {
	// BeginRun creates a new run and returns its unique ID
	BeginRun(oldTree, newTree string, configParams map[string]any) (int64, error)

	// EndRun updates the run with completion data
	EndRun(runID int64, summary schema.RunSummary) error

	// RecordResults stores every pair result of a run
	RecordResults(runID int64, results []schema.CorrelationResult) error

	// GetStatus returns status information about the run store
	GetStatus() (schema.RunStatus, error)

	// GetAllRuns returns every recorded run
	GetAllRuns() ([]schema.RunRecord, error)

	// GetAllPairs returns every recorded pair result
	GetAllPairs() ([]schema.PairRecord, error)

	// Close closes the underlying connection
	Close() error
}
