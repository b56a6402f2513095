package contract

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/pipecorr/pipecorr/schema"
	"gopkg.in/yaml.v3"
)

// Default values for configuration.
const (
	DefaultWorkers   = 1
	DefaultPrecision = 3
	MaxPrecision     = 6
	DefaultOutputDir = "pipecorr_out"
	DefaultStageDir  = "pipecorr_stage"
)

// MaxWorkers caps the worker pool at a generous multiple of the CPU count.
var MaxWorkers = runtime.GOMAXPROCS(0) * 8

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for a comparison.
// This struct remains the "final, validated" config.
type Config struct {
	OldTree  string
	NewTree  string
	OldLabel string
	NewLabel string

	Workers    int
	Threshold  float64
	Grouping   schema.GroupingMode
	Quick      bool
	Excludes   []string
	OldRenames []schema.RenameRule
	NewRenames []schema.RenameRule

	OutputDir  string
	Output     schema.OutputMode
	OutputFile string
	Precision  int
	Width      int // Terminal width override (0 = auto-detect)
	UseColors  bool

	StageDir       string
	GCSCredentials string

	NoCache        bool
	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	RunsBackend   schema.DatabaseBackend
	RunsDBConnect string // Please use env var as this is plaintext

	LogLevel  slog.Level
	LogFormat string

	Grid *schema.GridSpec
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// These are set manually from positional args, so no tag
	OldTreeStr string
	NewTreeStr string

	// --- Fields from rootCmd.PersistentFlags() ---
	OldLabel        string  `mapstructure:"old-label"`
	NewLabel        string  `mapstructure:"new-label"`
	Workers         int     `mapstructure:"workers"`
	Threshold       float64 `mapstructure:"threshold"`
	Grouping        string  `mapstructure:"grouping"`
	Quick           bool    `mapstructure:"quick"`
	Exclude         string  `mapstructure:"exclude"`
	OldReplacements string  `mapstructure:"old-replacements"`
	NewReplacements string  `mapstructure:"new-replacements"`
	OutputDir       string  `mapstructure:"output-dir"`
	Output          string  `mapstructure:"output"`
	OutputFile      string  `mapstructure:"output-file"`
	Precision       int     `mapstructure:"precision"`
	Width           int     `mapstructure:"width"`
	Color           string  `mapstructure:"color"`
	StageDir        string  `mapstructure:"stage-dir"`
	GCSCredentials  string  `mapstructure:"gcs-credentials"`
	NoCache         bool    `mapstructure:"no-cache"`
	CacheBackend    string  `mapstructure:"cache-backend"`
	CacheDBConnect  string  `mapstructure:"cache-db-connect"`
	RunsBackend     string  `mapstructure:"runs-backend"`
	RunsDBConnect   string  `mapstructure:"runs-db-connect"`
	LogLevel        string  `mapstructure:"log-level"`
	LogFormat       string  `mapstructure:"log-format"`

	// --- Fields from matrixCmd.Flags() ---
	GridFile string `mapstructure:"grid-file"`

	// --- Grid from config file ---
	Grid *schema.GridSpec `mapstructure:"grid"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Excludes = slices.Clone(c.Excludes)
	clone.OldRenames = slices.Clone(c.OldRenames)
	clone.NewRenames = slices.Clone(c.NewRenames)
	if c.Grid != nil {
		grid := *c.Grid
		grid.Subjects = slices.Clone(c.Grid.Subjects)
		grid.Features = slices.Clone(c.Grid.Features)
		clone.Grid = &grid
	}
	return &clone
}

// CloneWithTrees creates a copy of the Config pointed at a different pair of trees.
func (c *Config) CloneWithTrees(oldTree, newTree string) *Config {
	clone := c.Clone()
	clone.OldTree = oldTree
	clone.NewTree = newTree
	clone.OldLabel = TreeLabel(oldTree)
	clone.NewLabel = TreeLabel(newTree)
	return clone
}

// ProcessAndValidate performs all complex parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	// All validation functions read from 'input' and populate 'cfg'.
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processTrees(cfg, input); err != nil {
		return err
	}
	if err := processRenameRules(cfg, input); err != nil {
		return err
	}
	if err := processGrid(cfg, input); err != nil {
		return err
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.BadgerBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// ValidateBackendConfigs validates snapshot cache and run history backend configurations.
func ValidateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Cache Backend Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if _, ok := schema.ValidCacheBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, badger, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return err
	}

	// --- Run History Backend Validation ---
	cfg.RunsBackend = schema.DatabaseBackend(strings.ToLower(input.RunsBackend))
	if cfg.RunsBackend == "" {
		return nil
	}
	if _, ok := schema.ValidRunBackends[cfg.RunsBackend]; !ok {
		return fmt.Errorf("invalid runs backend '%s'. must be sqlite, mysql, postgresql, none", input.RunsBackend)
	}
	cfg.RunsDBConnect = input.RunsDBConnect
	if err := ValidateDatabaseConnectionString(cfg.RunsBackend, cfg.RunsDBConnect); err != nil {
		return err
	}

	// Snapshot and run tables must not share one SQLite file
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.RunsBackend == schema.SQLiteBackend {
		cacheDBPath := cfg.CacheDBConnect
		if cacheDBPath == "" {
			cacheDBPath = GetCacheDBFilePath()
		}
		runsDBPath := cfg.RunsDBConnect
		if runsDBPath == "" {
			runsDBPath = GetRunsDBFilePath()
		}
		if cacheDBPath == runsDBPath && cacheDBPath != ":memory:" {
			return fmt.Errorf("cache and runs storage must use different SQLite database files. Both resolve to %q", cacheDBPath)
		}
	}

	return nil
}

// validateSimpleInputs processes and validates all non-path related fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	// --- 0. Transfer simple non-validated fields from input -> cfg ---
	cfg.Quick = input.Quick
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.NoCache = input.NoCache
	cfg.GCSCredentials = input.GCSCredentials

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	// --- 1. Workers Validation ---
	if input.Workers <= 0 || input.Workers > MaxWorkers {
		return fmt.Errorf("workers must be greater than 0 and cannot exceed %d (received %d)", MaxWorkers, input.Workers)
	}
	cfg.Workers = input.Workers

	// --- 2. Threshold Validation ---
	if input.Threshold <= 0 || input.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1] (received %g)", input.Threshold)
	}
	cfg.Threshold = input.Threshold

	// --- 3. Grouping Validation ---
	cfg.Grouping = schema.GroupingMode(strings.ToLower(input.Grouping))
	if _, ok := schema.ValidGroupingModes[cfg.Grouping]; !ok {
		return fmt.Errorf("invalid grouping '%s'. must be semantic, datatype", input.Grouping)
	}

	// --- 4. Precision and Output Validation ---
	if input.Precision < 1 || input.Precision > MaxPrecision {
		return fmt.Errorf("precision must be between 1 and %d (received %d)", MaxPrecision, input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("--output-file is required when using parquet output")
	}

	// --- 5. Logging ---
	level, err := ParseLogLevel(input.LogLevel)
	if err != nil {
		return err
	}
	cfg.LogLevel = level
	cfg.LogFormat = strings.ToLower(input.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log format '%s'. must be text, json", input.LogFormat)
	}

	// --- 6. Backend Validation ---
	if err := ValidateBackendConfigs(cfg, input); err != nil {
		return err
	}

	// --- 7. Directories ---
	cfg.OutputDir = input.OutputDir
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	cfg.StageDir = input.StageDir
	if cfg.StageDir == "" {
		cfg.StageDir = filepath.Join(cfg.OutputDir, DefaultStageDir)
	}

	// --- 8. Excludes Processing ---
	cfg.Excludes = nil
	if input.Exclude != "" {
		for p := range strings.SplitSeq(input.Exclude, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cfg.Excludes = append(cfg.Excludes, trimmed)
			}
		}
	}

	return nil
}

// processTrees resolves the two tree roots and their display labels.
// Trees are optional here because cache, runs and matrix commands do not take them.
func processTrees(cfg *Config, input *ConfigRawInput) error {
	for _, pair := range []struct {
		raw string
		dst *string
	}{
		{input.OldTreeStr, &cfg.OldTree},
		{input.NewTreeStr, &cfg.NewTree},
	} {
		if pair.raw == "" {
			continue
		}
		root, err := ResolveTreeRoot(pair.raw)
		if err != nil {
			return err
		}
		*pair.dst = root
	}

	cfg.OldLabel = input.OldLabel
	if cfg.OldLabel == "" && cfg.OldTree != "" {
		cfg.OldLabel = TreeLabel(cfg.OldTree)
	}
	cfg.NewLabel = input.NewLabel
	if cfg.NewLabel == "" && cfg.NewTree != "" {
		cfg.NewLabel = TreeLabel(cfg.NewTree)
	}
	return nil
}

// ResolveTreeRoot validates a tree root and returns its canonical form.
// Local roots become absolute, slash-separated paths without a trailing slash.
func ResolveTreeRoot(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if schema.IsRemote(raw) {
		rest := strings.TrimPrefix(raw, "gs://")
		if rest == "" || strings.HasPrefix(rest, "/") {
			return "", fmt.Errorf("remote tree %q must look like gs://bucket/prefix", raw)
		}
		return strings.TrimRight(raw, "/"), nil
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access tree %q: %w", raw, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("tree %q is not a directory", raw)
	}
	return filepath.ToSlash(filepath.Clean(abs)), nil
}

// TreeLabel derives a short display label from a tree root.
func TreeLabel(root string) string {
	trimmed := strings.TrimRight(root, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// processRenameRules reads the per-tree rename rule files.
func processRenameRules(cfg *Config, input *ConfigRawInput) error {
	var err error
	if cfg.OldRenames, err = ReadRenameRules(input.OldReplacements); err != nil {
		return fmt.Errorf("invalid --old-replacements: %w", err)
	}
	if cfg.NewRenames, err = ReadRenameRules(input.NewReplacements); err != nil {
		return fmt.Errorf("invalid --new-replacements: %w", err)
	}
	return nil
}

// ReadRenameRules reads "old,new" lines from a file. An empty path yields no rules.
func ReadRenameRules(path string) ([]schema.RenameRule, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ParseRenameRules(lines)
}

// ParseRenameRules parses "old,new" lines. Blank lines are ignored and a line
// without a comma is an error. Only the first comma separates old from new.
func ParseRenameRules(lines []string) ([]schema.RenameRule, error) {
	var rules []schema.RenameRule
	for i, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		oldPart, newPart, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("line %d: old substring and its replacement must be separated by a comma", i+1)
		}
		if oldPart == "" {
			return nil, fmt.Errorf("line %d: old substring cannot be empty", i+1)
		}
		rules = append(rules, schema.RenameRule{Old: oldPart, New: newPart})
	}
	return rules, nil
}

// processGrid loads the matrix grid from --grid-file or the config file.
func processGrid(cfg *Config, input *ConfigRawInput) error {
	cfg.Grid = input.Grid
	if input.GridFile != "" {
		grid, err := LoadGridFile(input.GridFile)
		if err != nil {
			return err
		}
		cfg.Grid = grid
	}
	if cfg.Grid == nil {
		return nil
	}
	return ValidateGrid(cfg.Grid)
}

// LoadGridFile reads a YAML grid definition.
func LoadGridFile(path string) (*schema.GridSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid file: %w", err)
	}
	var grid schema.GridSpec
	if err := yaml.Unmarshal(data, &grid); err != nil {
		return nil, fmt.Errorf("failed to parse grid file %s: %w", path, err)
	}
	return &grid, nil
}

// ValidateGrid checks that a grid has subjects and well-formed features.
func ValidateGrid(grid *schema.GridSpec) error {
	if len(grid.Subjects) == 0 {
		return fmt.Errorf("grid must list at least one subject")
	}
	if len(grid.Features) == 0 {
		return fmt.Errorf("grid must list at least one feature")
	}
	seen := make(map[string]struct{}, len(grid.Features))
	for i, f := range grid.Features {
		if f.Name == "" {
			return fmt.Errorf("grid feature %d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("grid feature %q is listed twice", f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.OldGlob == "" || f.NewGlob == "" {
			return fmt.Errorf("grid feature %q needs both old_glob and new_glob", f.Name)
		}
	}
	return nil
}

// ParseLogLevel maps a level name onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s'. must be debug, info, warn, error", s)
	}
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}
