package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/schema"
)

// Table names for run history.
const (
	runsTable        = "pipecorr_runs"
	pairResultsTable = "pipecorr_pair_results"
)

// RunStoreImpl implements the RunStore interface on a SQL backend.
type RunStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.RunStore = &RunStoreImpl{} // Compile-time check

// NewRunStore creates a new RunStore with the specified backend.
func NewRunStore(backend schema.DatabaseBackend, connStr string) (contract.RunStore, error) {
	switch backend {
	case schema.NoneBackend:
		// Return a no-op store for disabled tracking
		return &RunStoreImpl{backend: backend}, nil
	case schema.SQLiteBackend, schema.MySQLBackend, schema.PostgreSQLBackend:
	default:
		return nil, fmt.Errorf("unsupported runs backend: %s", backend)
	}

	db, err := openSQL(backend, connStr, GetRunsDBFilePath())
	if err != nil {
		return nil, err
	}

	if err := createRunTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create run tables: %w", err)
	}

	return &RunStoreImpl{db: db, backend: backend}, nil
}

// createRunTables creates the run history tables.
func createRunTables(db *sql.DB, backend schema.DatabaseBackend) error {
	tables := []struct {
		name  string
		query string
	}{
		{runsTable, getCreateRunsQuery(backend)},
		{pairResultsTable, getCreatePairResultsQuery(backend)},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
	}
	return nil
}

// getCreateRunsQuery returns the CREATE TABLE query for pipecorr_runs.
func getCreateRunsQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(runsTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				run_key VARCHAR(36) NOT NULL,
				old_tree TEXT NOT NULL,
				new_tree TEXT NOT NULL,
				start_time DATETIME(6) NOT NULL,
				end_time DATETIME(6),
				run_duration_ms BIGINT,
				total_pairs INT NOT NULL DEFAULT 0,
				sub_optimal INT NOT NULL DEFAULT 0,
				failures INT NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGSERIAL PRIMARY KEY,
				run_key VARCHAR(36) NOT NULL,
				old_tree TEXT NOT NULL,
				new_tree TEXT NOT NULL,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ,
				run_duration_ms BIGINT,
				total_pairs INT NOT NULL DEFAULT 0,
				sub_optimal INT NOT NULL DEFAULT 0,
				failures INT NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_key TEXT NOT NULL,
				old_tree TEXT NOT NULL,
				new_tree TEXT NOT NULL,
				start_time TEXT NOT NULL,
				end_time TEXT,
				run_duration_ms INTEGER,
				total_pairs INTEGER NOT NULL DEFAULT 0,
				sub_optimal INTEGER NOT NULL DEFAULT 0,
				failures INTEGER NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, quotedTableName)
	}
}

// getCreatePairResultsQuery returns the CREATE TABLE query for pipecorr_pair_results.
func getCreatePairResultsQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(pairResultsTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				pair_index INT NOT NULL,
				category VARCHAR(255) NOT NULL,
				kind VARCHAR(32) NOT NULL,
				old_path TEXT NOT NULL,
				new_path TEXT NOT NULL,
				pearson DOUBLE,
				concordance DOUBLE,
				sub_optimal BOOLEAN NOT NULL,
				message TEXT,
				PRIMARY KEY (run_id, pair_index)
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				pair_index INT NOT NULL,
				category TEXT NOT NULL,
				kind TEXT NOT NULL,
				old_path TEXT NOT NULL,
				new_path TEXT NOT NULL,
				pearson DOUBLE PRECISION,
				concordance DOUBLE PRECISION,
				sub_optimal BOOLEAN NOT NULL,
				message TEXT,
				PRIMARY KEY (run_id, pair_index)
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER NOT NULL,
				pair_index INTEGER NOT NULL,
				category TEXT NOT NULL,
				kind TEXT NOT NULL,
				old_path TEXT NOT NULL,
				new_path TEXT NOT NULL,
				pearson REAL,
				concordance REAL,
				sub_optimal INTEGER NOT NULL,
				message TEXT,
				PRIMARY KEY (run_id, pair_index)
			);
		`, quotedTableName)
	}
}

func (rs *RunStoreImpl) disabled() bool {
	return rs.backend == schema.NoneBackend || rs.db == nil
}

// BeginRun creates a new compare run and returns its unique ID.
func (rs *RunStoreImpl) BeginRun(oldTree, newTree string, configParams map[string]any) (int64, error) {
	if rs.disabled() {
		return 0, nil
	}

	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	quotedTableName := quoteTableName(runsTable, rs.backend)
	runKey := uuid.NewString()
	startTime := formatTime(time.Now(), rs.backend)

	var runID int64
	switch rs.backend {
	case schema.PostgreSQLBackend:
		query := fmt.Sprintf(`INSERT INTO %s (run_key, old_tree, new_tree, start_time, config_params) VALUES ($1, $2, $3, $4, $5) RETURNING run_id`, quotedTableName)
		err = rs.db.QueryRow(query, runKey, oldTree, newTree, startTime, string(configJSON)).Scan(&runID)
	default: // SQLite and MySQL
		query := fmt.Sprintf(`INSERT INTO %s (run_key, old_tree, new_tree, start_time, config_params) VALUES (?, ?, ?, ?, ?)`, quotedTableName)
		var result sql.Result
		result, err = rs.db.Exec(query, runKey, oldTree, newTree, startTime, string(configJSON))
		if err == nil {
			runID, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// EndRun updates the run with completion data.
func (rs *RunStoreImpl) EndRun(runID int64, summary schema.RunSummary) error {
	if rs.disabled() {
		return nil
	}

	quotedTableName := quoteTableName(runsTable, rs.backend)
	start := timeScanner{backend: rs.backend}
	query := fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = %s`, quotedTableName, placeholder(rs.backend, 1))
	if err := rs.db.QueryRow(query, runID).Scan(start.dest()); err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}
	startTime, err := start.value()
	if err != nil {
		return err
	}
	var durationMs int64
	if startTime != nil {
		durationMs = summary.EndTime.Sub(*startTime).Milliseconds()
	}

	p := func(n int) string { return placeholder(rs.backend, n) }
	updateQuery := fmt.Sprintf(`UPDATE %s SET end_time = %s, run_duration_ms = %s, total_pairs = %s, sub_optimal = %s, failures = %s WHERE run_id = %s`,
		quotedTableName, p(1), p(2), p(3), p(4), p(5), p(6))
	_, err = rs.db.Exec(updateQuery, formatTime(summary.EndTime, rs.backend), durationMs,
		summary.TotalPairs, summary.SubOptimal, summary.Failures, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// pairRow flattens one result into the stored columns.
func pairRow(r schema.CorrelationResult) (oldPath, newPath string, pearson, concordance *float64, message *string) {
	oldPath, newPath = r.OldPath, r.NewPath
	switch {
	case r.Provenance != nil:
		oldPath, newPath = r.Provenance.OldPath, r.Provenance.NewPath
	case r.Kind == schema.FileNotFoundResult:
		oldPath = r.MissingPath
	}
	if r.Kind == schema.ScoredResult {
		pearson = storedFloat(r.Pearson)
		concordance = storedFloat(r.Concordance)
	}
	if r.Message != "" {
		msg := r.Message
		message = &msg
	}
	return oldPath, newPath, pearson, concordance, message
}

// storedFloat maps NaN to NULL, which no backend can store as a number.
func storedFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RecordResults stores every pair result of a run in one transaction.
func (rs *RunStoreImpl) RecordResults(runID int64, results []schema.CorrelationResult) error {
	if rs.disabled() || len(results) == 0 {
		return nil
	}

	p := make([]string, 10)
	for i := range p {
		p[i] = placeholder(rs.backend, i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (run_id, pair_index, category, kind, old_path, new_path, pearson, concordance, sub_optimal, message)
		VALUES (%s)`, quoteTableName(pairResultsTable, rs.backend), strings.Join(p, ", "))

	tx, err := rs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare pair insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range results {
		oldPath, newPath, pearson, concordance, message := pairRow(r)
		if _, err := stmt.Exec(runID, i, r.Category, string(r.Kind), oldPath, newPath,
			pearson, concordance, r.IsSubOptimal(), message); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert pair %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pair results: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (rs *RunStoreImpl) Close() error {
	if rs.db != nil {
		return rs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the run store.
func (rs *RunStoreImpl) GetStatus() (schema.RunStatus, error) {
	status := schema.RunStatus{
		Backend:    string(rs.backend),
		Connected:  rs.db != nil,
		TableSizes: make(map[string]int64),
	}

	if rs.disabled() {
		return status, nil
	}

	quotedRuns := quoteTableName(runsTable, rs.backend)
	if err := rs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quotedRuns)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		last := timeScanner{backend: rs.backend}
		lastRunQuery := fmt.Sprintf("SELECT run_id, start_time FROM %s ORDER BY run_id DESC LIMIT 1", quotedRuns)
		if err := rs.db.QueryRow(lastRunQuery).Scan(&status.LastRunID, last.dest()); err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}
		if t, err := last.value(); err != nil {
			return status, err
		} else if t != nil {
			status.LastRunTime = *t
		}

		oldest := timeScanner{backend: rs.backend}
		oldestRunQuery := fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id ASC LIMIT 1", quotedRuns)
		if err := rs.db.QueryRow(oldestRunQuery).Scan(oldest.dest()); err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}
		if t, err := oldest.value(); err != nil {
			return status, err
		} else if t != nil {
			status.OldestRunTime = *t
		}
	}

	for _, table := range []string{runsTable, pairResultsTable} {
		var count int64
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(table, rs.backend))
		if err := rs.db.QueryRow(countQuery).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}
	status.TotalPairs = int(status.TableSizes[pairResultsTable])

	return status, nil
}

// GetAllRuns retrieves all runs from the store.
func (rs *RunStoreImpl) GetAllRuns() ([]schema.RunRecord, error) {
	if rs.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, run_key, old_tree, new_tree, start_time, end_time, run_duration_ms,
		total_pairs, sub_optimal, failures, config_params FROM %s ORDER BY run_id`, quoteTableName(runsTable, rs.backend))
	rows, err := rs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RunRecord
	for rows.Next() {
		var record schema.RunRecord
		start := timeScanner{backend: rs.backend}
		end := timeScanner{backend: rs.backend}
		if err := rows.Scan(&record.RunID, &record.RunKey, &record.OldTree, &record.NewTree, start.dest(), end.dest(),
			&record.RunDurationMs, &record.TotalPairs, &record.SubOptimal, &record.Failures, &record.ConfigParams); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		startTime, err := start.value()
		if err != nil {
			return nil, err
		}
		if startTime != nil {
			record.StartTime = *startTime
		}
		if record.EndTime, err = end.value(); err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return results, nil
}

// GetAllPairs retrieves all pair results from the store.
func (rs *RunStoreImpl) GetAllPairs() ([]schema.PairRecord, error) {
	if rs.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, pair_index, category, kind, old_path, new_path, pearson, concordance, sub_optimal, message
		FROM %s ORDER BY run_id, pair_index`, quoteTableName(pairResultsTable, rs.backend))
	rows, err := rs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pair results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.PairRecord
	for rows.Next() {
		var record schema.PairRecord
		if err := rows.Scan(&record.RunID, &record.PairIndex, &record.Category, &record.Kind, &record.OldPath, &record.NewPath,
			&record.Pearson, &record.Concordance, &record.SubOptimal, &record.Message); err != nil {
			return nil, fmt.Errorf("failed to scan pair result: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pair results: %w", err)
	}
	return results, nil
}
