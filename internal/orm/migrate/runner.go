package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNothingToRollback is returned by Down when no migration is applied
var ErrNothingToRollback = errors.New("no migrations to roll back")

// Runner executes migrations, each in its own transaction
type Runner struct {
	db      *sql.DB
	tracker *Tracker
	logger  *zap.Logger
}

// NewRunner creates a new migration runner
func NewRunner(db *sql.DB, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{db: db, tracker: NewTracker(db), logger: logger}
}

// Up applies all pending migrations in version order and returns how many
// were applied. It stops at the first failure; earlier migrations stay
// applied.
func (r *Runner) Up(ctx context.Context, migrations []*Migration) (int, error) {
	if err := r.tracker.Initialize(ctx); err != nil {
		return 0, err
	}
	pending, err := r.tracker.Pending(ctx, migrations)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	for i, m := range pending {
		start := time.Now()
		if err := r.apply(ctx, m); err != nil {
			return i, fmt.Errorf("migration %04d_%s failed: %w", m.Version, m.Name, err)
		}
		r.logger.Info("applied migration",
			zap.Int64("version", m.Version),
			zap.String("name", m.Name),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return len(pending), nil
}

// Down rolls back the most recently applied migration
func (r *Runner) Down(ctx context.Context) (*Migration, error) {
	if err := r.tracker.Initialize(ctx); err != nil {
		return nil, err
	}
	last, err := r.tracker.Last(ctx)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, ErrNothingToRollback
	}
	if last.Down == "" {
		return nil, fmt.Errorf("migration %04d_%s has no down migration", last.Version, last.Name)
	}

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, last.Down); err != nil {
			return fmt.Errorf("failed to execute rollback SQL: %w", err)
		}
		return r.tracker.Remove(ctx, tx, last.Version)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("rolled back migration", zap.Int64("version", last.Version), zap.String("name", last.Name))
	return last, nil
}

// Status reports applied and pending migrations
func (r *Runner) Status(ctx context.Context, migrations []*Migration) (*Status, error) {
	if err := r.tracker.Initialize(ctx); err != nil {
		return nil, err
	}
	applied, err := r.tracker.Applied(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := r.tracker.Pending(ctx, migrations)
	if err != nil {
		return nil, err
	}
	return &Status{Total: len(migrations), Applied: applied, Pending: pending}, nil
}

func (r *Runner) apply(ctx context.Context, m *Migration) error {
	if m.Up == "" {
		return fmt.Errorf("migration has no up SQL")
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		return r.tracker.Record(ctx, tx, m)
	})
}

func (r *Runner) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Status represents the current state of migrations
type Status struct {
	Total   int
	Applied []*Migration
	Pending []*Migration
}

// Summary returns a human-readable summary
func (s *Status) Summary() string {
	return fmt.Sprintf("Total: %d migrations (%d applied, %d pending)", s.Total, len(s.Applied), len(s.Pending))
}
