// Package iocache persists pipeline snapshots and compare run history.
package iocache

import (
	"sync"

	"github.com/pipecorr/pipecorr/internal/contract"
)

// CacheStoreManager manages the snapshot and run history stores.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	snapshots    contract.CacheStore
	runs         contract.RunStore
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// GetSnapshotStore returns the snapshot CacheStore.
func (mgr *CacheStoreManager) GetSnapshotStore() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.snapshots
}

// GetRunStore returns the run history RunStore.
func (mgr *CacheStoreManager) GetRunStore() contract.RunStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.runs
}

// NewCacheStoreManager wraps already opened stores. Either may be nil.
func NewCacheStoreManager(snapshots contract.CacheStore, runs contract.RunStore) *CacheStoreManager {
	return &CacheStoreManager{snapshots: snapshots, runs: runs}
}
