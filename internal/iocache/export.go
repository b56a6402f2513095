package iocache

import (
	"errors"
	"fmt"

	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/internal/parquet"
)

// ExecuteRunsExport exports the run history to two Parquet files next to outputFile.
func ExecuteRunsExport(store contract.RunStore, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if store == nil {
		return errors.New("run history is not configured")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get run status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no run history found to export")
	}

	fmt.Printf("Exporting data from %s backend...\n", status.Backend)
	fmt.Printf("Total runs: %d\n", status.TotalRuns)
	fmt.Printf("Total pair records: %d\n", status.TableSizes[pairResultsTable])

	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	pairs, err := store.GetAllPairs()
	if err != nil {
		return fmt.Errorf("failed to retrieve pair results: %w", err)
	}

	runsFile := outputFile + ".runs.parquet"
	if err := parquet.WriteRunsParquet(parquet.ConvertRunRecords(runs), runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	fmt.Printf("Exported %d runs to: %s\n", len(runs), runsFile)

	pairsFile := outputFile + ".pair_results.parquet"
	if err := parquet.WritePairResultsParquet(parquet.ConvertPairRecords(pairs), pairsFile); err != nil {
		return fmt.Errorf("failed to write pair results: %w", err)
	}
	fmt.Printf("Exported %d pair records to: %s\n", len(pairs), pairsFile)

	return nil
}
