// Package transaction runs multi-statement entity operations on one borrowed
// connection. Failures roll back and are returned to the caller; nothing is
// retried here.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTransactionTimeout is returned when a transaction exceeds its deadline
	ErrTransactionTimeout = errors.New("transaction timeout")
	// ErrNoTransaction is returned when a savepoint is requested without a transaction
	ErrNoTransaction = errors.New("savepoint requires an open transaction")
)

// savepointCounter provides unique savepoint names across all transactions
var savepointCounter atomic.Uint64

// Manager manages database transactions
type Manager struct {
	db      *sql.DB
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithTimeout bounds every transaction started by the manager. A transaction
// that runs past the deadline is rolled back and reported as
// ErrTransactionTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithLogger sets the logger used for rollback failures
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a new transaction manager
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BeginTx starts a transaction the caller must finish
func (m *Manager) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// WithTransaction executes fn within a transaction.
// It commits when fn returns nil and rolls back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	err := m.run(ctx, fn)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransactionTimeout, err)
	}
	return err
}

func (m *Manager) run(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.logger.Error("transaction rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Savepoint runs fn inside a savepoint of tx. If fn fails, the work done since
// the savepoint is undone and the rest of the transaction stays usable.
func Savepoint(ctx context.Context, tx *sql.Tx, fn func() error) error {
	if tx == nil {
		return ErrNoTransaction
	}

	name := fmt.Sprintf("sp_%d", savepointCounter.Add(1))
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w, rollback to savepoint failed: %v", err, rbErr)
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}
