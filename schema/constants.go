// Package schema has the models shared by every part of pipecorr.
package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for caching and run history.
	DatabaseBackend string

	// Format represents the detected on-disk format of an artifact.
	Format string

	// ResultKind tags the variant of a CorrelationResult.
	ResultKind string

	// CorrKind names one of the two similarity measures.
	CorrKind string

	// GroupingMode selects how categories are clustered into report groups.
	GroupingMode string

	// Stage names a cacheable pipeline stage.
	Stage string
)

// All output modes supported.
const (
	CSVOut     OutputMode = "csv"
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All database backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	BadgerBackend     DatabaseBackend = "badger" // snapshot cache only
	NoneBackend       DatabaseBackend = "none"
)

// Recognized artifact formats.
const (
	FormatVolumetric Format = "volumetric" // .nii, .nii.gz
	FormatDelimited  Format = "delimited"  // .csv, .tsv
	FormatVector     Format = "vector"     // .1D, .txt
	FormatUnknown    Format = "unknown"
)

// CorrelationResult variants.
const (
	ScoredResult        ResultKind = "scored"
	ReadErrorResult     ResultKind = "read_error"
	ShapeMismatchResult ResultKind = "shape_mismatch"
	FileNotFoundResult  ResultKind = "file_not_found"
)

// Similarity measures.
const (
	PearsonKind     CorrKind = "pearson"
	ConcordanceKind CorrKind = "concordance"
)

// Grouping modes.
const (
	SemanticGrouping GroupingMode = "semantic" // default
	DatatypeGrouping GroupingMode = "datatype"
)

// Cacheable stages.
const (
	IndexStage   Stage = "index"
	MatchStage   Stage = "match"
	ResultsStage Stage = "results"
)

// DefaultThreshold is the concordance above which a pair needs no review.
const DefaultThreshold = 0.980

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	CSVOut:     {},
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidCacheBackends lists all valid snapshot cache backends.
var ValidCacheBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	BadgerBackend:     {},
	NoneBackend:       {},
}

// ValidRunBackends lists all valid run history backends.
var ValidRunBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidGroupingModes lists all valid grouping modes.
var ValidGroupingModes = map[GroupingMode]struct{}{
	SemanticGrouping: {},
	DatatypeGrouping: {},
}

// AllCorrKinds lists both measures in report order.
var AllCorrKinds = []CorrKind{ConcordanceKind, PearsonKind}

// QuickCategories is the core derivative list used by quick mode.
var QuickCategories = []string{
	"anatomical_brain",
	"anatomical_csf_mask",
	"anatomical_gm_mask",
	"anatomical_wm_mask",
	"anatomical_to_standard",
	"functional_preprocessed",
	"functional_brain_mask",
	"mean_functional_in_anat",
	"functional_nuisance_residuals",
	"functional_nuisance_regressors",
	"functional_to_standard",
	"roi_timeseries",
}
