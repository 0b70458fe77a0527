package crud

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/orm/cascade"
	"github.com/fixhub/fixhub/internal/orm/output"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// DeleteResult describes a completed delete
type DeleteResult struct {
	ID             int64                  `json:"id"`
	Record         map[string]interface{} `json:"record"`
	CascadeDeleted int64                  `json:"cascadeDeleted"`
}

// Delete removes the record and its dependents in one transaction. A missing
// record, or one the caller's policy excludes, is ErrNotFound and a protected
// one ErrForbidden.
func (s *Service) Delete(ctx context.Context, entity string, id interface{}, opts *WriteOptions) (*DeleteResult, error) {
	meta, err := s.metadata(entity)
	if err != nil {
		return nil, err
	}
	rlsCtx := opts.rlsContext()
	if err := checkWritable(meta, nil, rlsCtx); err != nil {
		return nil, err
	}
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var (
		before   map[string]interface{}
		cascaded int64
	)
	err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		before, cascaded, err = deleteInTx(ctx, tx, meta, key, rlsCtx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("entity deleted",
		zap.String("entity", meta.Key),
		zap.Int64("id", key),
		zap.Int64("cascade_deleted", cascaded),
	)

	if s.auditEnabled(opts) {
		s.audit.Log(ctx, s.auditEntry(audit.ActionDelete, meta, key, opts.Audit, before, nil))
	}

	return &DeleteResult{
		ID:             key,
		Record:         output.FilterOutput(before, meta, opts.role()),
		CascadeDeleted: cascaded,
	}, nil
}

// deleteInTx reads the pre-image, removes dependents and then the row
func deleteInTx(ctx context.Context, tx querier, meta *schema.EntityMetadata, id int64, rlsCtx *rls.Context) (map[string]interface{}, int64, error) {
	before, err := loadCurrent(ctx, tx, meta, id, rlsCtx)
	if err != nil {
		return nil, 0, err
	}
	if before == nil {
		return nil, 0, fmt.Errorf("%w: %s %d", ErrNotFound, meta.Key, id)
	}
	if meta.Protection != nil && meta.Protection.PreventDelete && isProtected(meta, before) {
		return nil, 0, forbidden(meta, id, "delete")
	}

	res, err := cascade.DeleteDependents(ctx, tx, meta, id)
	if err != nil {
		return nil, 0, ConvertDBError(err)
	}

	where := scopedKeyFilter(meta, id, 0, rlsCtx)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", meta.Table, where.Clause)
	result, err := tx.ExecContext(ctx, stmt, where.Params...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to delete %s %d: %w", meta.Key, id, ConvertDBError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to delete %s %d: %w", meta.Key, id, err)
	}
	if n == 0 {
		return nil, 0, fmt.Errorf("%w: %s %d", ErrNotFound, meta.Key, id)
	}

	return before, res.TotalDeleted, nil
}
