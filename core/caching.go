package core

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/internal/logging"
	"github.com/pipecorr/pipecorr/schema"
)

// currentCacheVersion defines the version of the snapshot schema
const currentCacheVersion = 1

// snapshotTTL is how long a stored snapshot stays valid
const snapshotTTL = 7 * 24 * time.Hour

// cachedStage returns the snapshot stored under key, or computes and stores it.
// A nil store always computes. When keep is set, only values it accepts are stored.
func cachedStage[T any](store contract.CacheStore, key string, compute func() (T, error), keep func(T) bool) (T, error) {
	if store == nil {
		return compute()
	}

	// Check for cache hit
	if result, ok := checkCacheHit[T](store, key); ok {
		logging.New("cache").Debug("snapshot hit", "key", key[:min(len(key), 12)])
		return result, nil
	}

	// Cache miss: compute and store
	return computeAndStore(store, key, compute, keep)
}

// checkCacheHit attempts to retrieve and validate a cached snapshot
func checkCacheHit[T any](store contract.CacheStore, key string) (T, bool) {
	var result T
	data, version, ts, err := store.Get(key)
	if err != nil {
		return result, false // Cache miss
	}

	// Validate version and staleness
	if version != currentCacheVersion || time.Since(time.Unix(ts, 0)) > snapshotTTL {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

// computeAndStore computes the snapshot and stores it in cache
func computeAndStore[T any](store contract.CacheStore, key string, compute func() (T, error), keep func(T) bool) (T, error) {
	result, err := compute()
	if err != nil {
		return result, err
	}
	if keep != nil && !keep(result) {
		return result, nil
	}

	if data, err := json.Marshal(result); err == nil {
		if err := store.Set(key, data, currentCacheVersion, time.Now().Unix()); err != nil {
			logging.New("cache").Warn("failed to store snapshot", "error", err)
		}
	}
	return result, nil
}

// generateCacheKey hashes a stage name with the inputs that determine its output
func generateCacheKey(stage schema.Stage, parts ...string) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s:%d", stage, currentCacheVersion)
	for _, p := range parts {
		_, _ = fmt.Fprintf(h, "\x00%s", p)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// treeIdentity summarizes a located tree. Local files contribute their size and
// modification time so a rewritten artifact invalidates every later stage.
func treeIdentity(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		if !schema.IsRemote(p) {
			if info, err := os.Stat(p); err == nil {
				_, _ = fmt.Fprintf(&b, ":%d:%d", info.Size(), info.ModTime().UnixNano())
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// renameIdentity renders rename rules in application order
func renameIdentity(rules []schema.RenameRule) string {
	var b strings.Builder
	for _, r := range rules {
		_, _ = fmt.Fprintf(&b, "%s,%s\n", r.Old, r.New)
	}
	return b.String()
}

// keepResults rejects result sets holding read errors, which may be transient
func keepResults(results []schema.CorrelationResult) bool {
	for _, r := range results {
		if r.Kind == schema.ReadErrorResult {
			return false
		}
	}
	return true
}
