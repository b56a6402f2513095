package iocache

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/schema"
)

// SnapshotTable is the name of the table for pipeline snapshots.
const SnapshotTable = "pipecorr_snapshots"

// Global Manager instance for main logic.
var (
	Manager   = &CacheStoreManager{}
	initOnce  sync.Once
	closeOnce sync.Once
)

// GetDBFilePath returns the path to the SQLite DB file for snapshot storage.
func GetDBFilePath() string {
	return contract.GetCacheDBFilePath()
}

// GetRunsDBFilePath returns the path to the SQLite DB file for run history.
func GetRunsDBFilePath() string {
	return contract.GetRunsDBFilePath()
}

// GetBadgerDirPath returns the directory of the badger snapshot store.
func GetBadgerDirPath() string {
	return contract.GetBadgerDirPath()
}

// InitCaching initializes the global cache manager with separate snapshot and run stores.
// An empty backend leaves the corresponding store unset.
func InitCaching(cacheBackend schema.DatabaseBackend, cacheConnStr string, runsBackend schema.DatabaseBackend, runsConnStr string) error {
	var initErr error

	initOnce.Do(func() {
		var err error

		var snapshots contract.CacheStore
		if cacheBackend != "" {
			snapshots, err = NewCacheStore(SnapshotTable, cacheBackend, cacheConnStr)
			if err != nil {
				initErr = fmt.Errorf("failed to initialize snapshot caching: %w", err)
				return
			}
		}

		var runs contract.RunStore
		if runsBackend != "" {
			runs, err = NewRunStore(runsBackend, runsConnStr)
			if err != nil {
				if snapshots != nil {
					_ = snapshots.Close()
				}
				initErr = fmt.Errorf("failed to initialize run store: %w", err)
				return
			}
		}

		Manager.Lock()
		Manager.snapshots = snapshots
		Manager.runs = runs
		Manager.Unlock()
	})

	return initErr
}

// CloseCaching should be called on application shutdown.
func CloseCaching() { // called in main defer
	closeOnce.Do(func() {
		Manager.Lock()
		defer Manager.Unlock()
		if Manager.snapshots != nil {
			_ = Manager.snapshots.Close()
		}
		if Manager.runs != nil {
			_ = Manager.runs.Close()
		}
	})
}

// ClearCache clears the snapshot cache for the specified backend.
// For SQLite, it deletes the database file. For badger, it removes the directory.
// For SQL servers (MySQL/PostgreSQL), it drops the table.
func ClearCache(backend schema.DatabaseBackend, location, connStr string) error {
	switch backend {
	case schema.SQLiteBackend:
		return removePath(location, "SQLite database file")

	case schema.BadgerBackend:
		if location == "" {
			return fmt.Errorf("location cannot be empty for badger backend")
		}
		if err := os.RemoveAll(location); err != nil {
			return fmt.Errorf("failed to remove badger directory %s: %w", location, err)
		}
		return nil

	case schema.MySQLBackend, schema.PostgreSQLBackend:
		return dropTables(backend, connStr, SnapshotTable)

	case schema.NoneBackend:
		return nil

	default:
		return fmt.Errorf("unsupported cache backend for clearing: %s", backend)
	}
}

// ClearRuns clears the run history for the specified backend.
func ClearRuns(backend schema.DatabaseBackend, dbFilePath, connStr string) error {
	switch backend {
	case schema.SQLiteBackend:
		return removePath(dbFilePath, "SQLite database file")

	case schema.MySQLBackend, schema.PostgreSQLBackend:
		return dropTables(backend, connStr, pairResultsTable, runsTable, "schema_migrations")

	case schema.NoneBackend:
		return nil

	default:
		return fmt.Errorf("unsupported runs backend for clearing: %s", backend)
	}
}

func removePath(path, what string) error {
	if path == "" {
		return fmt.Errorf("dbFilePath cannot be empty for SQLite backend")
	}
	// Remove the file; ignore if it doesn't exist
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s %s: %w", what, path, err)
	}
	return nil
}

// dropTables connects to the SQL database and drops each table if it exists.
func dropTables(backend schema.DatabaseBackend, connStr string, tables ...string) error {
	driverName, err := driverFor(backend)
	if err != nil {
		return err
	}
	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", driverName, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping %s database: %w", driverName, err)
	}

	for _, table := range tables {
		query := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteTableName(table, backend))
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
