package crud

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/orm/output"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
	"github.com/fixhub/fixhub/internal/orm/transaction"
	"github.com/fixhub/fixhub/internal/orm/validation"
)

// MaxBatchSize is the largest number of operations accepted in one batch
const MaxBatchSize = 100

// BatchKind is the kind of a batch operation
type BatchKind string

const (
	BatchCreate BatchKind = "create"
	BatchUpdate BatchKind = "update"
	BatchDelete BatchKind = "delete"
)

// BatchOperation is one element of an ordered batch
type BatchOperation struct {
	Kind BatchKind              `json:"kind"`
	ID   interface{}            `json:"id,omitempty"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// BatchOptions control batch execution
type BatchOptions struct {
	// ContinueOnError records failed operations and keeps going; the
	// successful ones are committed. Otherwise the first failure rolls the
	// whole batch back.
	ContinueOnError bool
	Audit           *audit.Context
	Role            string
	// RLS scopes every operation as it does for single writes
	RLS *rls.Context
}

// BatchOpResult is the outcome of one operation
type BatchOpResult struct {
	Index   int                    `json:"index"`
	Kind    BatchKind              `json:"kind"`
	ID      int64                  `json:"id,omitempty"`
	Success bool                   `json:"success"`
	Record  map[string]interface{} `json:"record,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// BatchStats counts operation outcomes
type BatchStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchResult reports a batch. Results reflect persisted state only when
// Committed is true; after a rollback they describe what was attempted.
type BatchResult struct {
	Results   []BatchOpResult `json:"results"`
	Stats     BatchStats      `json:"stats"`
	Committed bool            `json:"committed"`
}

// Batch executes the operations in order inside one transaction. The shape
// of every operation is validated before the transaction begins. Audit
// entries for successful operations are written after the commit, so a
// rolled back batch leaves no trail.
func (s *Service) Batch(ctx context.Context, entity string, ops []BatchOperation, opts BatchOptions) (*BatchResult, error) {
	meta, err := s.metadata(entity)
	if err != nil {
		return nil, err
	}

	if err := checkWritable(meta, nil, opts.RLS); err != nil {
		return nil, err
	}
	ids, err := validateBatch(ops)
	if err != nil {
		return nil, err
	}

	withAudit := s.audit != nil && opts.Audit != nil
	result := &BatchResult{
		Results: make([]BatchOpResult, 0, len(ops)),
		Stats:   BatchStats{Total: len(ops)},
	}
	var pending []audit.Entry

	err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		for i, op := range ops {
			var (
				record map[string]interface{}
				entry  *audit.Entry
			)
			run := func() error {
				var err error
				record, entry, err = s.runBatchOp(ctx, tx, meta, op, ids[i], opts, withAudit)
				return err
			}

			var opErr error
			if opts.ContinueOnError {
				opErr = transaction.Savepoint(ctx, tx, run)
			} else {
				opErr = run()
			}

			if opErr != nil {
				result.Results = append(result.Results, BatchOpResult{
					Index: i, Kind: op.Kind, ID: ids[i], Error: opErr.Error(),
				})
				result.Stats.Failed++
				s.logger.Warn("batch operation failed",
					zap.String("entity", meta.Key),
					zap.Int("index", i),
					zap.String("kind", string(op.Kind)),
					zap.Error(opErr),
				)
				if !opts.ContinueOnError {
					return fmt.Errorf("batch operation %d (%s) failed: %w", i, op.Kind, opErr)
				}
				continue
			}

			id := ids[i]
			if op.Kind == BatchCreate {
				id = toInt64(record[meta.PrimaryKey])
			}
			result.Results = append(result.Results, BatchOpResult{
				Index: i, Kind: op.Kind, ID: id, Success: true,
				Record: output.FilterOutput(record, meta, opts.Role),
			})
			result.Stats.Succeeded++
			if entry != nil {
				pending = append(pending, *entry)
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	result.Committed = true
	for _, e := range pending {
		s.audit.Log(ctx, e)
	}
	return result, nil
}

// validateBatch checks every operation's shape and returns the parsed ids
func validateBatch(ops []BatchOperation) ([]int64, error) {
	if len(ops) == 0 {
		return nil, badRequest("batch must contain at least one operation")
	}
	if len(ops) > MaxBatchSize {
		return nil, badRequest("batch exceeds %d operations", MaxBatchSize)
	}

	errs := validation.NewValidationErrors()
	ids := make([]int64, len(ops))

	for i, op := range ops {
		field := fmt.Sprintf("operations[%d]", i)
		switch op.Kind {
		case BatchCreate:
			if len(op.Data) == 0 {
				errs.Add(field, "create requires data")
			}
		case BatchUpdate, BatchDelete:
			id, err := parseID(op.ID)
			if err != nil {
				errs.Add(field, fmt.Sprintf("%s requires a positive integer id", op.Kind))
			}
			ids[i] = id
			if op.Kind == BatchUpdate && len(op.Data) == 0 {
				errs.Add(field, "update requires data")
			}
		default:
			errs.Add(field, fmt.Sprintf("unknown kind %q", op.Kind))
		}
	}

	if err := errs.Err(); err != nil {
		return nil, invalid(err)
	}
	return ids, nil
}

// runBatchOp executes one operation in tx and returns the resulting record
// and, when auditing, the entry to emit after commit
func (s *Service) runBatchOp(
	ctx context.Context,
	tx querier,
	meta *schema.EntityMetadata,
	op BatchOperation,
	id int64,
	opts BatchOptions,
	withAudit bool,
) (map[string]interface{}, *audit.Entry, error) {
	if err := checkWritable(meta, op.Data, opts.RLS); err != nil {
		return nil, nil, err
	}

	var (
		action        audit.Action
		before, after map[string]interface{}
		record        map[string]interface{}
		entryID       interface{} = id
	)

	switch op.Kind {
	case BatchCreate:
		clean, err := s.prepareCreate(meta, op.Data, opts.RLS)
		if err != nil {
			return nil, nil, err
		}
		after, err = insertRecord(ctx, tx, meta, clean)
		if err != nil {
			return nil, nil, err
		}
		action, record, entryID = audit.ActionCreate, after, after[meta.PrimaryKey]

	case BatchUpdate:
		updates, err := prepareUpdate(meta, op.Data)
		if err != nil {
			return nil, nil, err
		}
		if err := checkScopedUpdate(meta, updates, opts.RLS); err != nil {
			return nil, nil, err
		}
		before, after, err = updateInTx(ctx, tx, meta, id, updates, withAudit, opts.RLS)
		if err != nil {
			return nil, nil, err
		}
		if after == nil {
			return nil, nil, fmt.Errorf("%w: %s %d", ErrNotFound, meta.Key, id)
		}
		action, record = audit.ActionUpdate, after

	case BatchDelete:
		var err error
		before, _, err = deleteInTx(ctx, tx, meta, id, opts.RLS)
		if err != nil {
			return nil, nil, err
		}
		action, record = audit.ActionDelete, before
	}

	if !withAudit {
		return record, nil, nil
	}
	entry := s.auditEntry(action, meta, entryID, opts.Audit, before, after)
	return record, &entry, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
