package iocache

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/pipecorr/pipecorr/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStore_NoneBackend(t *testing.T) {
	store, err := NewCacheStore(SnapshotTable, schema.NoneBackend, "")
	require.NoError(t, err)

	_, _, _, err = store.Get("k")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, store.Set("k", []byte("v"), 1, 1))

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.NoError(t, store.Close())
}

func TestCacheStore_InvalidInputs(t *testing.T) {
	_, err := NewCacheStore("bad-name;", schema.SQLiteBackend, ":memory:")
	assert.Error(t, err)

	_, err = NewCacheStore(SnapshotTable, schema.DatabaseBackend("redis"), "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported cache backend")
}

// snapshotStoreContract exercises behavior every snapshot backend must share.
func snapshotStoreContract(t *testing.T, backend schema.DatabaseBackend, connStr string) {
	store, err := NewCacheStore(SnapshotTable, backend, connStr)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, _, _, err = store.Get("missing")
	assert.True(t, IsNotFound(err), "missing key should be reported as not found: %v", err)

	now := time.Now().Unix()
	require.NoError(t, store.Set("index:abc", []byte(`{"root":"/a"}`), 1, now-100))
	require.NoError(t, store.Set("match:def", []byte(`{}`), 1, now))

	value, version, ts, err := store.Get("index:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"root":"/a"}`, string(value))
	assert.Equal(t, 1, version)
	assert.Equal(t, now-100, ts)

	// Overwrite keeps a single entry
	require.NoError(t, store.Set("index:abc", []byte(`{"root":"/b"}`), 2, now))
	value, version, _, err = store.Get("index:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"root":"/b"}`, string(value))
	assert.Equal(t, 2, version)

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, string(backend), status.Backend)
	assert.True(t, status.Connected)
	assert.Equal(t, 2, status.TotalEntries)
	assert.Equal(t, now, status.LastEntryTime.Unix())
	assert.Equal(t, now, status.OldestEntryTime.Unix())
}

func TestCacheStore_SQLite(t *testing.T) {
	snapshotStoreContract(t, schema.SQLiteBackend, ":memory:")
}

func TestCacheStore_SQLiteFile(t *testing.T) {
	snapshotStoreContract(t, schema.SQLiteBackend, filepath.Join(t.TempDir(), "snapshots.db"))
}

func TestCacheStore_BadgerInMemory(t *testing.T) {
	snapshotStoreContract(t, schema.BadgerBackend, ":memory:")
}

func TestCacheStore_BadgerDirectory(t *testing.T) {
	snapshotStoreContract(t, schema.BadgerBackend, filepath.Join(t.TempDir(), "badger"))
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")

	store, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set("k", []byte("v"), 3, 42))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerStore(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	value, version, ts, err := reopened.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(value))
	assert.Equal(t, 3, version)
	assert.Equal(t, int64(42), ts)
}

func TestSnapshotEncoding(t *testing.T) {
	raw := encodeSnapshot([]byte("payload"), 7, 1_700_000_000)
	value, version, ts, err := decodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(value))
	assert.Equal(t, 7, version)
	assert.Equal(t, int64(1_700_000_000), ts)

	_, _, _, err = decodeSnapshot([]byte{1, 2})
	assert.Error(t, err)
}

func TestQuoteTableName(t *testing.T) {
	assert.Equal(t, "`pipecorr_runs`", quoteTableName(runsTable, schema.MySQLBackend))
	assert.Equal(t, `"pipecorr_runs"`, quoteTableName(runsTable, schema.PostgreSQLBackend))
	assert.Equal(t, `"pipecorr_runs"`, quoteTableName(runsTable, schema.SQLiteBackend))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$3", placeholder(schema.PostgreSQLBackend, 3))
	assert.Equal(t, "?", placeholder(schema.MySQLBackend, 3))
	assert.Equal(t, "?", placeholder(schema.SQLiteBackend, 1))
}

func TestCacheStoreManager(t *testing.T) {
	snapshots := &MockCacheStore{}
	runs := &MockRunStore{}
	mgr := NewCacheStoreManager(snapshots, runs)

	assert.Same(t, snapshots, mgr.GetSnapshotStore())
	assert.Same(t, runs, mgr.GetRunStore())
}
