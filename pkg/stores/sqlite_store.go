package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Results arrive from concurrent workers; sqlite serializes writers
	// anyway, and an in-memory database exists per connection.
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init opens the database connection and enables foreign keys and WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxOpenConns)
	if s.path != ":memory:" {
		db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
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

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateRun creates a new run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, status, dry_run, manifest, started_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.DryRun,
		run.Manifest,
		run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun records the final status and summary of a run
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, summary Summary, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?, error = ?,
		    total = ?, created = ?, destroyed = ?, updated = ?, unchanged = ?, failed = ?, skipped = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		time.Now().UTC(),
		errMsg,
		summary.Total,
		summary.Created,
		summary.Destroyed,
		summary.Updated,
		summary.Unchanged,
		summary.Failed,
		summary.Skipped,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	return nil
}

const runColumns = `id, status, dry_run, manifest, started_at, completed_at,
	total, created, destroyed, updated, unchanged, failed, skipped, error`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID,
		&run.Status,
		&run.DryRun,
		&run.Manifest,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Summary.Total,
		&run.Summary.Created,
		&run.Summary.Destroyed,
		&run.Summary.Updated,
		&run.Summary.Unchanged,
		&run.Summary.Failed,
		&run.Summary.Skipped,
		&run.Error,
	)
	return run, err
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs, newest first, with pagination
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
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

// DeleteRun deletes a run and, by cascade, its results and events
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	return nil
}

// RecordResult stores the outcome of one resource. Recording the same
// resource twice in a run replaces the earlier row.
func (s *SQLiteStore) RecordResult(ctx context.Context, r *ResourceResult) error {
	query := `
		INSERT INTO resource_results (
			run_id, resource_id, kind, title, operation, state, changes, error, duration_ms, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, resource_id) DO UPDATE SET
			operation = excluded.operation,
			state = excluded.state,
			changes = excluded.changes,
			error = excluded.error,
			duration_ms = excluded.duration_ms,
			completed_at = excluded.completed_at
	`

	if r.Changes == "" {
		r.Changes = "[]"
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, query,
		r.RunID,
		r.ResourceID,
		r.Kind,
		r.Title,
		r.Operation,
		r.State,
		r.Changes,
		r.Error,
		r.DurationMS,
		r.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get result ID: %w", err)
	}

	r.ID = id
	return nil
}

const resultColumns = `id, run_id, resource_id, kind, title, operation, state, changes, error, duration_ms, completed_at`

func (s *SQLiteStore) queryResults(ctx context.Context, query string, args ...interface{}) ([]*ResourceResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []*ResourceResult{}
	for rows.Next() {
		r := &ResourceResult{}
		err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.ResourceID,
			&r.Kind,
			&r.Title,
			&r.Operation,
			&r.State,
			&r.Changes,
			&r.Error,
			&r.DurationMS,
			&r.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return results, nil
}

// ListResults lists the results of a run ordered by resource ID
func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*ResourceResult, error) {
	query := `SELECT ` + resultColumns + ` FROM resource_results WHERE run_id = ? ORDER BY resource_id`
	return s.queryResults(ctx, query, runID)
}

// ResourceHistory lists the most recent results of one resource across runs
func (s *SQLiteStore) ResourceHistory(ctx context.Context, resourceID string, limit int) ([]*ResourceResult, error) {
	query := `SELECT ` + resultColumns + ` FROM resource_results
		WHERE resource_id = ? ORDER BY completed_at DESC, id DESC LIMIT ?`
	return s.queryResults(ctx, query, resourceID, limit)
}

// AppendEvent appends a new event to the run log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (run_id, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	result, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves the events of a run in insertion order, optionally
// filtered by level
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, level *EventLevel) ([]*Event, error) {
	query := `
		SELECT id, run_id, level, message, details, timestamp
		FROM events
		WHERE run_id = ?
		  AND (? IS NULL OR level = ?)
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, runID, level, level)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
