package cmd

import (
	"github.com/pipecorr/pipecorr/core"
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/spf13/cobra"
)

// compareCmd reconciles two output trees.
var compareCmd = &cobra.Command{
	Use:   "compare <old-tree> <new-tree>",
	Short: "Match and score every artifact shared by two output trees.",
	Long: `Index both trees, pair artifacts by fingerprint and score each pair with
Pearson's r and Lin's concordance correlation coefficient.

Trees may be local directories or gs://bucket/prefix locations. Report files
(averages, sub-optimal pairs, missing artifacts) are written to --output-dir.

Examples:
  # Compare two runs of the same dataset
  pipecorr compare runs/v1.7 runs/v1.8

  # Only look at the core derivatives
  pipecorr compare runs/v1.7 runs/v1.8 --quick

  # Group by BIDS datatype and export every pair
  pipecorr compare runs/v1.7 runs/v1.8 --grouping datatype --output csv --output-file pairs.csv

  # Compare against a bucket
  pipecorr compare runs/local gs://bucket/outputs --gcs-credentials sa.json`,
	Args:    cobra.ExactArgs(2),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteCompare(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot compare trees", err)
		}
	},
}

// indexCmd fingerprints a single tree.
var indexCmd = &cobra.Command{
	Use:   "index <tree>",
	Short: "Show how one output tree is fingerprinted.",
	Long: `Walk one tree and list every artifact with its category, midpath and digit signature.

Useful to check why two artifacts did or did not pair up.

Examples:
  pipecorr index runs/v1.8
  pipecorr index runs/v1.8 --output json --output-file index.json`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteIndex(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot index tree", err)
		}
	},
}

// matrixCmd builds a feature x subject correlation grid.
var matrixCmd = &cobra.Command{
	Use:   "matrix <old-tree> <new-tree>",
	Short: "Correlate an explicit grid of features across subjects.",
	Long: `Resolve each (feature, subject) cell with path templates and correlate the two series.

The grid is read from --grid-file or the 'grid' key of the config file.

Examples:
  pipecorr matrix runs/v1.7 runs/v1.8 --grid-file grid.yaml`,
	Args:    cobra.ExactArgs(2),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteMatrix(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot build correlation matrix", err)
		}
	},
}
