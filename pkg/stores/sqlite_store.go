package stores

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/unitflow/unitflow/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction.
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction.
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// CreateRun creates a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (
			id, plan_id, primary_unit, status, total, succeeded, failed, skipped, timed_out,
			started_at, completed_at, duration_ms, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.PlanID,
		run.Primary,
		run.Status,
		run.Total,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		run.TimedOut,
		run.StartedAt,
		run.CompletedAt,
		run.DurationMS,
		run.Metadata,
		run.CreatedAt,
		run.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, plan_id, primary_unit, status, total, succeeded, failed, skipped, timed_out,
			   started_at, completed_at, duration_ms, metadata, created_at, updated_at
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.PlanID,
		&run.Primary,
		&run.Status,
		&run.Total,
		&run.Succeeded,
		&run.Failed,
		&run.Skipped,
		&run.TimedOut,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationMS,
		&run.Metadata,
		&run.CreatedAt,
		&run.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// UpdateRunStatus updates the status of a run. Terminal statuses stamp the
// completion time.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status string, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, metadata = COALESCE(?, metadata), completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var completedAt *time.Time
	switch engine.RunStatus(status) {
	case engine.RunStatusSucceeded, engine.RunStatusFailed, engine.RunStatusAborted:
		now := time.Now()
		completedAt = &now
	}

	var metadata *string
	if errMsg != nil {
		encoded, err := json.Marshal(map[string]string{"error": *errMsg})
		if err != nil {
			return fmt.Errorf("failed to encode error metadata: %w", err)
		}
		str := string(encoded)
		metadata = &str
	}

	result, err := s.db.ExecContext(ctx, query, status, metadata, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// ListRuns lists runs with an optional status filter and pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, status *string, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, plan_id, primary_unit, status, total, succeeded, failed, skipped, timed_out,
			   started_at, completed_at, duration_ms, metadata, created_at, updated_at
		FROM runs
		WHERE (? IS NULL OR status = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, status, status, normalizeLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.PlanID,
			&run.Primary,
			&run.Status,
			&run.Total,
			&run.Succeeded,
			&run.Failed,
			&run.Skipped,
			&run.TimedOut,
			&run.StartedAt,
			&run.CompletedAt,
			&run.DurationMS,
			&run.Metadata,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run by ID. Unit results and transitions cascade.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	query := `DELETE FROM runs WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// CreateUnitResult creates a new unit result record.
func (s *SQLiteStore) CreateUnitResult(ctx context.Context, result *UnitResult) error {
	query := `
		INSERT INTO unit_results (
			run_id, unit_id, status, attempts, input, output,
			error_class, error_code, error_message,
			started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		result.RunID,
		result.UnitID,
		result.Status,
		result.Attempts,
		result.Input,
		result.Output,
		result.ErrorClass,
		result.ErrorCode,
		result.ErrorMessage,
		result.StartedAt,
		result.CompletedAt,
		result.DurationMS,
	)

	if err != nil {
		return fmt.Errorf("failed to create unit result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get unit result ID: %w", err)
	}

	result.ID = id
	return nil
}

// GetUnitResult retrieves a unit result by run and unit id.
func (s *SQLiteStore) GetUnitResult(ctx context.Context, runID, unitID string) (*UnitResult, error) {
	query := `
		SELECT id, run_id, unit_id, status, attempts, input, output,
			   error_class, error_code, error_message,
			   started_at, completed_at, duration_ms
		FROM unit_results
		WHERE run_id = ? AND unit_id = ?
	`

	result := &UnitResult{}
	err := s.db.QueryRowContext(ctx, query, runID, unitID).Scan(
		&result.ID,
		&result.RunID,
		&result.UnitID,
		&result.Status,
		&result.Attempts,
		&result.Input,
		&result.Output,
		&result.ErrorClass,
		&result.ErrorCode,
		&result.ErrorMessage,
		&result.StartedAt,
		&result.CompletedAt,
		&result.DurationMS,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unit result not found: %s/%s", runID, unitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit result: %w", err)
	}

	return result, nil
}

// ListUnitResultsByRun lists all unit results for a run.
func (s *SQLiteStore) ListUnitResultsByRun(ctx context.Context, runID string) ([]*UnitResult, error) {
	query := `
		SELECT id, run_id, unit_id, status, attempts, input, output,
			   error_class, error_code, error_message,
			   started_at, completed_at, duration_ms
		FROM unit_results
		WHERE run_id = ?
		ORDER BY started_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unit results: %w", err)
	}
	defer rows.Close()

	results := []*UnitResult{}
	for rows.Next() {
		result := &UnitResult{}
		err := rows.Scan(
			&result.ID,
			&result.RunID,
			&result.UnitID,
			&result.Status,
			&result.Attempts,
			&result.Input,
			&result.Output,
			&result.ErrorClass,
			&result.ErrorCode,
			&result.ErrorMessage,
			&result.StartedAt,
			&result.CompletedAt,
			&result.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit result: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unit results: %w", err)
	}

	return results, nil
}

// AppendTransition appends a status transition to the run's trace.
func (s *SQLiteStore) AppendTransition(ctx context.Context, transition *Transition) error {
	query := `
		INSERT INTO transitions (run_id, unit_id, from_status, to_status, attempt, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		transition.RunID,
		transition.UnitID,
		transition.FromStatus,
		transition.ToStatus,
		transition.Attempt,
		transition.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transition ID: %w", err)
	}

	transition.ID = id
	return nil
}

// ListTransitions retrieves a run's transitions with optional unit filter and
// pagination, in observation order.
func (s *SQLiteStore) ListTransitions(ctx context.Context, runID string, unitID *string, limit, offset int) ([]*Transition, error) {
	query := `
		SELECT id, run_id, unit_id, from_status, to_status, attempt, timestamp
		FROM transitions
		WHERE run_id = ?
		  AND (? IS NULL OR unit_id = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, unitID, unitID, normalizeLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	transitions := []*Transition{}
	for rows.Next() {
		transition := &Transition{}
		err := rows.Scan(
			&transition.ID,
			&transition.RunID,
			&transition.UnitID,
			&transition.FromStatus,
			&transition.ToStatus,
			&transition.Attempt,
			&transition.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		transitions = append(transitions, transition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}

	return transitions, nil
}

// UpsertLatestOutput inserts or updates a unit's last known output.
func (s *SQLiteStore) UpsertLatestOutput(ctx context.Context, output *LatestOutput) error {
	query := `
		INSERT INTO latest_outputs (unit_id, run_id, output, hash, produced_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(unit_id) DO UPDATE SET
			run_id = excluded.run_id,
			output = excluded.output,
			hash = excluded.hash,
			produced_at = excluded.produced_at,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		output.UnitID,
		output.RunID,
		output.Output,
		output.Hash,
		output.ProducedAt,
		output.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert latest output: %w", err)
	}

	return nil
}

// GetLatestOutput retrieves a unit's last known output.
func (s *SQLiteStore) GetLatestOutput(ctx context.Context, unitID string) (*LatestOutput, error) {
	query := `
		SELECT unit_id, run_id, output, hash, produced_at, updated_at
		FROM latest_outputs
		WHERE unit_id = ?
	`

	output := &LatestOutput{}
	err := s.db.QueryRowContext(ctx, query, unitID).Scan(
		&output.UnitID,
		&output.RunID,
		&output.Output,
		&output.Hash,
		&output.ProducedAt,
		&output.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("latest output not found: %s", unitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest output: %w", err)
	}

	return output, nil
}

// SaveRunResult persists a completed run in a single transaction: the run
// record, every unit result, the full transition trace, and the latest
// outputs of succeeded units.
func (s *SQLiteStore) SaveRunResult(ctx context.Context, plan *engine.ExecutionPlan, result *engine.RunResult) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	completedAt := result.CompletedAt

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, plan_id, primary_unit, status, total, succeeded, failed, skipped, timed_out,
			started_at, completed_at, duration_ms, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.RunID,
		result.PlanID,
		plan.Requested.Primary,
		string(result.Status),
		result.Summary.Total,
		result.Summary.Succeeded,
		result.Summary.Failed,
		result.Summary.Skipped,
		result.Summary.TimedOut,
		result.StartedAt,
		&completedAt,
		result.Duration.Milliseconds(),
		"{}",
		now,
		now,
	); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, unit := range result.Units {
		row, err := unitResultRow(result.RunID, unit)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO unit_results (
				run_id, unit_id, status, attempts, input, output,
				error_class, error_code, error_message,
				started_at, completed_at, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			row.RunID,
			row.UnitID,
			row.Status,
			row.Attempts,
			row.Input,
			row.Output,
			row.ErrorClass,
			row.ErrorCode,
			row.ErrorMessage,
			row.StartedAt,
			row.CompletedAt,
			row.DurationMS,
		); err != nil {
			return fmt.Errorf("failed to save unit result %s: %w", unit.UnitID, err)
		}

		if unit.Status == engine.UnitStatusSucceeded && unit.Output != nil {
			encoded, err := json.Marshal(unit.Output)
			if err != nil {
				return fmt.Errorf("failed to encode output for %s: %w", unit.UnitID, err)
			}
			sum := sha256.Sum256(encoded)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO latest_outputs (unit_id, run_id, output, hash, produced_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(unit_id) DO UPDATE SET
					run_id = excluded.run_id,
					output = excluded.output,
					hash = excluded.hash,
					produced_at = excluded.produced_at,
					updated_at = excluded.updated_at
			`,
				unit.UnitID,
				result.RunID,
				string(encoded),
				hex.EncodeToString(sum[:]),
				unit.CompletedAt,
				now,
			); err != nil {
				return fmt.Errorf("failed to save latest output for %s: %w", unit.UnitID, err)
			}
		}
	}

	for _, entry := range result.Trace {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transitions (run_id, unit_id, from_status, to_status, attempt, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			result.RunID,
			entry.UnitID,
			string(entry.From),
			string(entry.To),
			entry.Attempt,
			entry.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to save transition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// unitResultRow converts an in-memory unit result to its row form.
func unitResultRow(runID string, unit *engine.UnitRunResult) (*UnitResult, error) {
	row := &UnitResult{
		RunID:      runID,
		UnitID:     unit.UnitID,
		Status:     string(unit.Status),
		Attempts:   unit.Attempts,
		DurationMS: unit.Duration.Milliseconds(),
	}

	if !unit.StartedAt.IsZero() {
		started := unit.StartedAt
		row.StartedAt = &started
	}
	if !unit.CompletedAt.IsZero() {
		completed := unit.CompletedAt
		row.CompletedAt = &completed
	}

	if unit.Input != nil {
		encoded, err := json.Marshal(unit.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input for %s: %w", unit.UnitID, err)
		}
		str := string(encoded)
		row.Input = &str
	}
	if unit.Output != nil {
		encoded, err := json.Marshal(unit.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to encode output for %s: %w", unit.UnitID, err)
		}
		str := string(encoded)
		row.Output = &str
	}

	if unit.Error != nil {
		class := string(unit.Error.Class)
		code := unit.Error.Code
		message := unit.Error.Message
		row.ErrorClass = &class
		row.ErrorCode = &code
		row.ErrorMessage = &message
	}

	return row, nil
}

// normalizeLimit maps non-positive limits to SQLite's "no limit".
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
