package cmd

import (
	"fmt"
	"os"

	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/internal/iocache"
	"github.com/pipecorr/pipecorr/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheSetup loads minimal configuration needed for cache operations.
// This is used by commands that need cache access without full shared setup.
func cacheSetup() error {
	if err := readConfigFile(); err != nil {
		return err
	}

	backend := schema.DatabaseBackend(viper.GetString("cache-backend"))
	connStr := viper.GetString("cache-db-connect")

	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	cfg.CacheBackend = backend
	cfg.CacheDBConnect = connStr

	return nil
}

// cacheSetupWrapper wraps cacheSetup to provide PreRunE for cache commands.
func cacheSetupWrapper(_ *cobra.Command, _ []string) error {
	return cacheSetup()
}

// cacheLocation returns where a file-backed snapshot store lives.
func cacheLocation() string {
	switch {
	case cfg.CacheDBConnect != "" && cfg.CacheBackend != schema.MySQLBackend && cfg.CacheBackend != schema.PostgreSQLBackend:
		return cfg.CacheDBConnect
	case cfg.CacheBackend == schema.BadgerBackend:
		return contract.GetBadgerDirPath()
	default:
		return contract.GetCacheDBFilePath()
	}
}

// cacheCmd focused on snapshot management.
//
// Cache subcommands skip the full sharedSetup, so no trees are resolved.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage index and score snapshots (improves performance)",
	Long: `Manage the snapshots that let repeated comparisons skip indexing and scoring.

Snapshots are keyed on the tree contents, rename rules and scoring options, and
expire after a week.

Supported backends: SQLite (default), MySQL, PostgreSQL, badger, or None

Examples:
  pipecorr cache status
  pipecorr cache clear`,
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all snapshots",
	Long: `Delete every snapshot from the configured backend.

For SQLite: Deletes the database file
For badger: Removes the directory
For MySQL/PostgreSQL: Drops the snapshot table

Examples:
  pipecorr cache clear
  PIPECORR_CACHE_BACKEND=badger pipecorr cache clear`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ClearCache(cfg.CacheBackend, cacheLocation(), cfg.CacheDBConnect); err != nil {
			contract.LogFatal("Failed to clear cache", err)
		}
		fmt.Println("Cache cleared successfully.")
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display snapshot statistics and connection details",
	Long: `Show the backend, number of snapshots, their age range and the table size.

Examples:
  pipecorr cache status`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		store, err := iocache.NewCacheStore(iocache.SnapshotTable, cfg.CacheBackend, cfg.CacheDBConnect)
		if err != nil {
			contract.LogFatal("Failed to open cache", err)
		}
		defer func() { _ = store.Close() }()

		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get cache status", err)
		}
		iocache.PrintCacheStatus(os.Stdout, status)
	},
}
