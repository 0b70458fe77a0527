// Package crud is the metadata-driven entity service. It composes query,
// row-level security and output filtering for reads, and runs creates,
// updates, deletes and ordered batches with audit entries.
package crud

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
	"github.com/fixhub/fixhub/internal/orm/transaction"
)

// TransactionManager runs fn in a transaction, committing on nil and rolling
// back otherwise
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Service provides entity operations for every entity in a registry
type Service struct {
	registry  *schema.Registry
	db        *sql.DB
	txManager TransactionManager
	audit     audit.Logger
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithTransactionManager overrides the transaction manager built from the pool
func WithTransactionManager(tm TransactionManager) Option {
	return func(s *Service) { s.txManager = tm }
}

// WithAuditLogger enables audit entries for mutations
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Service) { s.audit = l }
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used for computed identifiers
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over the registry and pool
func NewService(registry *schema.Registry, db *sql.DB, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		db:       db,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.txManager == nil {
		s.txManager = transaction.NewManager(db, transaction.WithLogger(s.logger))
	}
	return s
}

// Registry returns the metadata registry the service resolves entities from
func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// WriteOptions carry the per-call context of a mutation
type WriteOptions struct {
	// Audit identifies the actor; audit entries are written only when an
	// audit logger is configured and Audit is non-nil.
	Audit *audit.Context
	// Role selects which fields of the result the caller may read
	Role string
	// RLS scopes the write to rows the caller's policy can reach and checks
	// write roles. Nil is a trusted internal caller.
	RLS *rls.Context
}

func (o *WriteOptions) auditContext() *audit.Context {
	if o == nil {
		return nil
	}
	return o.Audit
}

func (o *WriteOptions) rlsContext() *rls.Context {
	if o == nil {
		return nil
	}
	return o.RLS
}

func (o *WriteOptions) role() string {
	if o == nil {
		return ""
	}
	return o.Role
}

func (s *Service) auditEnabled(opts *WriteOptions) bool {
	return s.audit != nil && opts.auditContext() != nil
}

// metadata resolves the entity key. Every operation starts here.
func (s *Service) metadata(entity string) (*schema.EntityMetadata, error) {
	return s.registry.Get(entity)
}

func roleOf(ctx *rls.Context) string {
	if ctx == nil {
		return ""
	}
	return ctx.Role
}

// parseID accepts a positive integer id in any of the shapes callers send
func parseID(id interface{}) (int64, error) {
	var n int64
	switch v := id.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 {
			return 0, badRequest("id must be a positive integer")
		}
		n = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, badRequest("id must be a positive integer")
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, badRequest("id must be a positive integer")
		}
		n = parsed
	default:
		return 0, badRequest("id must be a positive integer")
	}
	if n <= 0 {
		return 0, badRequest("id must be a positive integer")
	}
	return n, nil
}
