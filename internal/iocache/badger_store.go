package iocache

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/schema"
)

// snapshotHeaderSize is the version (4 bytes) plus timestamp (8 bytes) prefix of each value.
const snapshotHeaderSize = 12

// BadgerStore keeps snapshots in an embedded key-value store.
type BadgerStore struct {
	db  *badger.DB
	dir string
}

var _ contract.CacheStore = &BadgerStore{} // Compile-time check

// NewBadgerStore opens a badger directory. ":memory:" opens an in-memory store
// and an empty dir uses the default location under the home directory.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	switch dir {
	case ":memory:":
		opts = badger.DefaultOptions("").WithInMemory(true)
	case "":
		dir = GetBadgerDirPath()
		fallthrough
	default:
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, dir: dir}, nil
}

func encodeSnapshot(value []byte, version int, timestamp int64) []byte {
	buf := make([]byte, snapshotHeaderSize+len(value))
	binary.BigEndian.PutUint32(buf[0:4], uint32(version))
	binary.BigEndian.PutUint64(buf[4:12], uint64(timestamp))
	copy(buf[snapshotHeaderSize:], value)
	return buf
}

func decodeSnapshot(raw []byte) ([]byte, int, int64, error) {
	if len(raw) < snapshotHeaderSize {
		return nil, 0, 0, fmt.Errorf("corrupt snapshot: %d bytes", len(raw))
	}
	version := int(binary.BigEndian.Uint32(raw[0:4]))
	ts := int64(binary.BigEndian.Uint64(raw[4:12]))
	return raw[snapshotHeaderSize:], version, ts, nil
}

// Get retrieves a value by key from the store.
func (bs *BadgerStore) Get(key string) ([]byte, int, int64, error) {
	var raw []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return decodeSnapshot(raw)
}

// Set inserts or replaces a key/value pair in the store.
func (bs *BadgerStore) Set(key string, value []byte, version int, timestamp int64) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encodeSnapshot(value, version, timestamp))
	})
}

// GetStatus returns status information about the badger store.
func (bs *BadgerStore) GetStatus() (schema.CacheStatus, error) {
	status := schema.CacheStatus{Backend: string(schema.BadgerBackend), Connected: true}

	var newest, oldest int64
	err := bs.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			_, _, ts, err := decodeSnapshot(raw)
			if err != nil {
				return err
			}
			if status.TotalEntries == 0 || ts > newest {
				newest = ts
			}
			if status.TotalEntries == 0 || ts < oldest {
				oldest = ts
			}
			status.TotalEntries++
		}
		return nil
	})
	if err != nil {
		return status, fmt.Errorf("failed to scan badger store: %w", err)
	}

	if status.TotalEntries > 0 {
		status.LastEntryTime = time.Unix(newest, 0)
		status.OldestEntryTime = time.Unix(oldest, 0)
	}
	lsm, vlog := bs.db.Size()
	status.TableSizeBytes = lsm + vlog
	return status, nil
}

// Close closes the badger database.
func (bs *BadgerStore) Close() error {
	if bs.db == nil {
		return nil
	}
	return bs.db.Close()
}

// IsNotFound reports whether a Get error means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound) || errors.Is(err, sql.ErrNoRows)
}
