package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/reeveops/reeve/pkg/report"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists run reports in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the database at the given path, enables WAL mode and runs
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
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

// RecordRun persists a finished run report and all of its results in
// one transaction.
func (s *Store) RecordRun(ctx context.Context, rep *report.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status := "ok"
	if rep.Failed() {
		status = "failed"
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, playbook, check_mode, status, started_at, duration_ms,
			changed, unchanged, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rep.RunID,
		rep.Playbook,
		rep.CheckMode,
		status,
		rep.StartedAt.UTC(),
		rep.Duration.Milliseconds(),
		rep.Summary.Changed,
		rep.Summary.Unchanged,
		rep.Summary.Skipped,
		rep.Summary.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (id, run_id, host, play, play_position, task, module,
			position, status, message, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, host := range rep.HostNames() {
		for _, res := range rep.Hosts[host] {
			_, err := stmt.ExecContext(ctx,
				res.ID,
				rep.RunID,
				res.Host,
				res.Play,
				res.PlayPosition,
				res.Task,
				res.Module,
				res.Position,
				string(res.Status),
				res.Message,
				res.StartedAt.UTC(),
				res.Duration.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert result: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	run := &RunRecord{}
	var durationMS int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, playbook, check_mode, status, started_at, duration_ms,
			changed, unchanged, skipped, failed
		FROM runs
		WHERE id = ?
	`, id).Scan(
		&run.ID,
		&run.Playbook,
		&run.CheckMode,
		&run.Status,
		&run.StartedAt,
		&durationMS,
		&run.Changed,
		&run.Unchanged,
		&run.Skipped,
		&run.Failed,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}

// ListRuns lists runs newest first with pagination.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, playbook, check_mode, status, started_at, duration_ms,
			changed, unchanged, skipped, failed
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run := &RunRecord{}
		var durationMS int64
		err := rows.Scan(
			&run.ID,
			&run.Playbook,
			&run.CheckMode,
			&run.Status,
			&run.StartedAt,
			&durationMS,
			&run.Changed,
			&run.Unchanged,
			&run.Skipped,
			&run.Failed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// ListResults lists the results of one run, ordered by host, then play
// order, then task declaration order.
func (s *Store) ListResults(ctx context.Context, runID string) ([]*ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, host, play, play_position, task, module, position,
			status, message, started_at, duration_ms
		FROM results
		WHERE run_id = ?
		ORDER BY host ASC, play_position ASC, position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []*ResultRecord{}
	for rows.Next() {
		res := &ResultRecord{}
		var durationMS int64
		var message sql.NullString
		err := rows.Scan(
			&res.ID,
			&res.RunID,
			&res.Host,
			&res.Play,
			&res.PlayPosition,
			&res.Task,
			&res.Module,
			&res.Position,
			&res.Status,
			&message,
			&res.StartedAt,
			&durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.Message = message.String
		res.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// Prune deletes runs older than the cutoff and returns how many were
// removed. Results cascade.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
