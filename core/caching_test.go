package core

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pipecorr/pipecorr/internal/iocache"
	"github.com/pipecorr/pipecorr/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func counter(value []int) (func() ([]int, error), *int) {
	calls := 0
	return func() ([]int, error) {
		calls++
		return value, nil
	}, &calls
}

func TestCachedStageNilStore(t *testing.T) {
	compute, calls := counter([]int{1})
	got, err := cachedStage(nil, "k", compute, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 1, *calls)
}

func TestCachedStageHit(t *testing.T) {
	store := &iocache.MockCacheStore{}
	data, _ := json.Marshal([]int{4, 2})
	store.On("Get", "k").Return(data, currentCacheVersion, time.Now().Unix(), nil)

	compute, calls := counter([]int{1})
	got, err := cachedStage(store, "k", compute, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, got)
	assert.Zero(t, *calls)
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCachedStageMiss(t *testing.T) {
	data, _ := json.Marshal([]int{4, 2})
	tests := []struct {
		name    string
		data    []byte
		version int
		ts      int64
		err     error
	}{
		{"not found", nil, 0, 0, sql.ErrNoRows},
		{"stale", data, currentCacheVersion, time.Now().Add(-8 * 24 * time.Hour).Unix(), nil},
		{"old version", data, currentCacheVersion + 1, time.Now().Unix(), nil},
		{"corrupt", []byte("{"), currentCacheVersion, time.Now().Unix(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &iocache.MockCacheStore{}
			store.On("Get", "k").Return(tt.data, tt.version, tt.ts, tt.err)
			store.On("Set", "k", []byte("[1]"), currentCacheVersion, mock.AnythingOfType("int64")).Return(nil)

			compute, calls := counter([]int{1})
			got, err := cachedStage(store, "k", compute, nil)
			require.NoError(t, err)
			assert.Equal(t, []int{1}, got)
			assert.Equal(t, 1, *calls)
			store.AssertExpectations(t)
		})
	}
}

func TestCachedStageSkipsRejectedAndFailed(t *testing.T) {
	store := &iocache.MockCacheStore{}
	store.On("Get", "k").Return(nil, 0, int64(0), sql.ErrNoRows)

	compute, _ := counter([]int{1})
	_, err := cachedStage(store, "k", compute, func([]int) bool { return false })
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = cachedStage(store, "k", func() ([]int, error) { return nil, boom }, nil)
	assert.ErrorIs(t, err, boom)

	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCachedStageSetFailureIsNotFatal(t *testing.T) {
	store := &iocache.MockCacheStore{}
	store.On("Get", "k").Return(nil, 0, int64(0), sql.ErrNoRows)
	store.On("Set", "k", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	compute, _ := counter([]int{3})
	got, err := cachedStage(store, "k", compute, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, got)
}

func TestGenerateCacheKey(t *testing.T) {
	a := generateCacheKey(schema.IndexStage, "/root", "x")
	assert.Len(t, a, 64)
	assert.Equal(t, a, generateCacheKey(schema.IndexStage, "/root", "x"))
	assert.NotEqual(t, a, generateCacheKey(schema.MatchStage, "/root", "x"))
	assert.NotEqual(t, a, generateCacheKey(schema.IndexStage, "/roo", "tx"), "parts are delimited")
}

func TestTreeIdentity(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.1D")
	require.NoError(t, os.WriteFile(p, []byte("1\n"), 0o644))

	before := treeIdentity([]string{p, "gs://bucket/x.nii"})
	assert.Contains(t, before, "gs://bucket/x.nii\n")

	require.NoError(t, os.WriteFile(p, []byte("1\n2\n"), 0o644))
	assert.NotEqual(t, before, treeIdentity([]string{p, "gs://bucket/x.nii"}))
}

func TestRenameIdentity(t *testing.T) {
	assert.Empty(t, renameIdentity(nil))
	assert.Equal(t, "a,b\nc,\n", renameIdentity([]schema.RenameRule{{Old: "a", New: "b"}, {Old: "c"}}))
}

func TestKeepResults(t *testing.T) {
	assert.True(t, keepResults([]schema.CorrelationResult{
		schema.Scored("a", 1, 1, nil),
		schema.FileNotFound("b", "/b"),
	}))
	assert.False(t, keepResults([]schema.CorrelationResult{
		schema.ReadError("a", "file reading problem: timeout", "/a", "/b"),
	}))
}
