// Package cmd defines the command-line interface for pipecorr.
package cmd

import (
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(matrixCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(mcpCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	// Add the runs subcommands to the parent runs command
	runsCmd.AddCommand(runsClearCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	flags := rootCmd.PersistentFlags()
	flags.String("old-label", "", "Display label for the reference tree (defaults to its directory name)")
	flags.String("new-label", "", "Display label for the tree under test (defaults to its directory name)")
	flags.Int("workers", contract.DefaultWorkers, "Number of concurrent scoring workers")
	flags.Float64("threshold", schema.DefaultThreshold, "Concordance above which a pair needs no review")
	flags.String("grouping", string(schema.SemanticGrouping), "Report grouping: semantic or datatype")
	flags.Bool("quick", false, "Only compare the core derivatives")
	flags.String("exclude", "", "Comma-separated list of path patterns to ignore")
	flags.String("old-replacements", "", "File of 'old,new' substitutions applied to reference paths")
	flags.String("new-replacements", "", "File of 'old,new' substitutions applied to paths under test")
	flags.String("output-dir", contract.DefaultOutputDir, "Directory for report files")
	flags.String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	flags.String("output-file", "", "Optional path to write output to")
	flags.Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	flags.Int("width", 0, "Terminal width override (0 = auto-detect)")
	flags.String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	flags.String("stage-dir", "", "Directory where remote artifacts are staged (defaults under output-dir)")
	flags.String("gcs-credentials", "", "Service account file for gs:// trees (defaults to application credentials)")
	flags.Bool("no-cache", false, "Skip reading and writing snapshots")
	flags.String("cache-backend", string(schema.SQLiteBackend), "Snapshot backend: sqlite or mysql or postgresql or badger or none")
	flags.String("cache-db-connect", "", "Connection string or location for the snapshot backend")
	flags.String("runs-backend", "", "Run history backend: sqlite or mysql or postgresql or none")
	flags.String("runs-db-connect", "", "Connection string for run history (must differ from cache-db-connect)")
	flags.String("log-level", "info", "Log level: debug or info or warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("profile", "", "Enable profiling and write profiles to files with this prefix")
	flags.String("config", "", "Path to config file")
	if err := viper.BindPFlags(flags); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of matrixCmd to Viper
	matrixCmd.Flags().String("grid-file", "", "YAML file listing the subjects and features of the grid")
	if err := viper.BindPFlags(matrixCmd.Flags()); err != nil {
		contract.LogFatal("Error binding matrix flags", err)
	}

	// Bind all flags of runsMigrateCmd to Viper
	runsMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(runsMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding runs migrate flags", err)
	}
}
