// Package migrate applies versioned SQL migrations and records them in a
// schema_migrations table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Migration represents a single database migration
type Migration struct {
	Version   int64  // ordering key, taken from the file name prefix
	Name      string // human-readable name
	Up        string // SQL to apply
	Down      string // SQL to roll back, may be empty
	AppliedAt time.Time
}

// Tracker manages migration history in the database. Its statements run
// unchanged on Postgres and SQLite.
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a new migration tracker
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Initialize ensures the schema_migrations table exists
func (t *Tracker) Initialize(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	down_sql TEXT
)`
	if _, err := t.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	return nil
}

// Applied returns all applied migrations sorted by version
func (t *Tracker) Applied(ctx context.Context) ([]*Migration, error) {
	rows, err := t.db.QueryContext(ctx,
		"SELECT version, name, applied_at, down_sql FROM schema_migrations ORDER BY version ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var migrations []*Migration
	for rows.Next() {
		m := &Migration{}
		var down sql.NullString
		if err := rows.Scan(&m.Version, &m.Name, &m.AppliedAt, &down); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		m.Down = down.String
		migrations = append(migrations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return migrations, nil
}

// Last returns the most recently applied migration, or nil if none exist
func (t *Tracker) Last(ctx context.Context) (*Migration, error) {
	m := &Migration{}
	var down sql.NullString
	err := t.db.QueryRowContext(ctx,
		"SELECT version, name, applied_at, down_sql FROM schema_migrations ORDER BY version DESC LIMIT 1").
		Scan(&m.Version, &m.Name, &m.AppliedAt, &down)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last migration: %w", err)
	}
	m.Down = down.String
	return m, nil
}

// Record marks a migration as applied. The down SQL is stored so a rollback
// works even after the migration file is gone.
func (t *Tracker) Record(ctx context.Context, tx *sql.Tx, m *Migration) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, down_sql) VALUES ($1, $2, $3)",
		m.Version, m.Name, m.Down)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}

// Remove deletes a migration record
func (t *Tracker) Remove(ctx context.Context, tx *sql.Tx, version int64) error {
	result, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", version)
	if err != nil {
		return fmt.Errorf("failed to remove migration: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("migration version %d not found", version)
	}
	return nil
}

// Pending returns the migrations of all that have not been applied
func (t *Tracker) Pending(ctx context.Context, all []*Migration) ([]*Migration, error) {
	applied, err := t.Applied(ctx)
	if err != nil {
		return nil, err
	}

	done := make(map[int64]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	var pending []*Migration
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}
