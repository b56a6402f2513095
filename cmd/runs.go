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

// runsSetup loads minimal configuration needed for run history operations.
func runsSetup() error {
	if err := readConfigFile(); err != nil {
		return err
	}

	// An unset backend means history was never enabled, so nothing is opened
	backend := schema.DatabaseBackend(viper.GetString("runs-backend"))
	if backend == "" {
		backend = schema.NoneBackend
	}
	connStr := viper.GetString("runs-db-connect")

	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	cfg.RunsBackend = backend
	cfg.RunsDBConnect = connStr
	cfg.OutputFile = viper.GetString("output-file")

	return nil
}

// runsSetupWrapper wraps runsSetup to provide PreRunE for runs commands.
func runsSetupWrapper(_ *cobra.Command, _ []string) error {
	return runsSetup()
}

// openRunStore opens the configured run history store.
func openRunStore() contract.RunStore {
	store, err := iocache.NewRunStore(cfg.RunsBackend, cfg.RunsDBConnect)
	if err != nil {
		contract.LogFatal("Failed to open run history", err)
	}
	return store
}

// runsCmd focused on run history management.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage compare run history and exports",
	Long: `Manage the history of compare runs.

When --runs-backend is set, every compare stores its trees, options,
summary counts and every scored pair.

Supported backends: SQLite, MySQL, PostgreSQL, or None (disabled)

Examples:
  pipecorr runs status --runs-backend sqlite
  pipecorr runs export --runs-backend sqlite --output-file history`,
}

// runsClearCmd clears the run history.
var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all stored run history",
	Long: `Delete every stored run and pair result.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  pipecorr runs export --runs-backend sqlite --output-file backup
  pipecorr runs clear --runs-backend sqlite`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		location := cfg.RunsDBConnect
		if location == "" {
			location = contract.GetRunsDBFilePath()
		}
		if err := iocache.ClearRuns(cfg.RunsBackend, location, cfg.RunsDBConnect); err != nil {
			contract.LogFatal("Failed to clear run history", err)
		}
		fmt.Println("Run history cleared successfully.")
	},
}

// runsStatusCmd shows run history status.
var runsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display run history statistics and connection details",
	Long: `Show the backend, number of stored runs, their time range and table sizes.

Examples:
  pipecorr runs status --runs-backend sqlite`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		store := openRunStore()
		defer func() { _ = store.Close() }()

		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get run status", err)
		}
		if err := iocache.PrintRunStatus(os.Stdout, status); err != nil {
			contract.LogFatal("Failed to print run status", err)
		}
	},
}

// runsExportCmd exports run history to Parquet files.
var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run history to Parquet for analytics",
	Long: `Export stored runs and pair results to two Parquet files named after --output-file.

Examples:
  pipecorr runs export --runs-backend sqlite --output-file history
  duckdb -c "SELECT * FROM read_parquet('history.pair_results.parquet') LIMIT 10"`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		store := openRunStore()
		defer func() { _ = store.Close() }()

		if err := iocache.ExecuteRunsExport(store, cfg.OutputFile); err != nil {
			contract.LogFatal("Failed to export run history", err)
		}
	},
}

// runsMigrateCmd runs database migrations for the run history store.
var runsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage schema versions of the run history store.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  pipecorr runs migrate --runs-backend sqlite
  pipecorr runs migrate --runs-backend postgresql --target-version 0`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		targetVersion := viper.GetInt("target-version")
		if err := iocache.MigrateRuns(cfg.RunsBackend, cfg.RunsDBConnect, targetVersion); err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
	},
}
