package crud

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/orm/output"
	"github.com/fixhub/fixhub/internal/orm/query"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
	"github.com/fixhub/fixhub/internal/orm/validation"
)

// Update changes the record's mutable fields and returns the updated record
// with its joins, or nil if no record has the id or the caller's policy
// excludes it.
//
// If the change touches a protected field the current row is read first and
// a protected row is rejected with ErrForbidden. The read and the write share
// one transaction but take no row lock, so two concurrent updates can both
// pass the check before either writes.
func (s *Service) Update(ctx context.Context, entity string, id interface{}, data map[string]interface{}, opts *WriteOptions) (map[string]interface{}, error) {
	meta, err := s.metadata(entity)
	if err != nil {
		return nil, err
	}
	rlsCtx := opts.rlsContext()
	if err := checkWritable(meta, data, rlsCtx); err != nil {
		return nil, err
	}
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	updates, err := prepareUpdate(meta, data)
	if err != nil {
		return nil, err
	}
	if err := checkScopedUpdate(meta, updates, rlsCtx); err != nil {
		return nil, err
	}

	withAudit := s.auditEnabled(opts)
	var before, after map[string]interface{}

	err = s.txManager.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		before, after, err = updateInTx(ctx, tx, meta, key, updates, withAudit, rlsCtx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if after == nil {
		return nil, nil
	}

	if withAudit {
		s.audit.Log(ctx, s.auditEntry(audit.ActionUpdate, meta, key, opts.Audit, before, after))
	}

	return output.FilterOutput(after, meta, opts.role()), nil
}

// prepareUpdate sanitizes data and keeps only the fields an update may set
func prepareUpdate(meta *schema.EntityMetadata, data map[string]interface{}) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, badRequest("no data provided for %s", meta.Key)
	}

	clean, err := validation.Sanitize(meta, data)
	if err != nil {
		return nil, invalid(err)
	}

	delete(clean, meta.PrimaryKey)
	for _, f := range systemFields {
		delete(clean, f)
	}
	for _, f := range meta.ImmutableFields {
		delete(clean, f)
	}

	if len(clean) == 0 {
		return nil, badRequest("no valid update fields for %s", meta.Key)
	}
	return encodeRecord(meta, clean)
}

// updateInTx applies the update inside tx. before is read when needed for
// the protection check, the audit pre-image or a restrictive policy. A nil
// after means no row matched.
func updateInTx(
	ctx context.Context,
	tx querier,
	meta *schema.EntityMetadata,
	id int64,
	updates map[string]interface{},
	wantBefore bool,
	rlsCtx *rls.Context,
) (before, after map[string]interface{}, err error) {
	guarded := meta.Protection.TouchesImmutable(updates)

	if guarded || wantBefore || rlsCtx.IsRestrictive() {
		before, err = loadCurrent(ctx, tx, meta, id, rlsCtx)
		if err != nil {
			return nil, nil, err
		}
		if before == nil {
			if guarded {
				return nil, nil, fmt.Errorf("%w: %s %d", ErrNotFound, meta.Key, id)
			}
			return nil, nil, nil
		}
		if guarded && isProtected(meta, before) {
			return nil, nil, forbidden(meta, id, "modify")
		}
	}

	columns := sortedKeys(updates)
	sets := make([]string, 0, len(columns)+1)
	args := make([]interface{}, 0, len(columns)+1)
	for i, col := range columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, updates[col])
	}
	if meta.HasTimestamps() {
		sets = append(sets, "updated_at = NOW()")
	}
	where := scopedKeyFilter(meta, id, len(args), rlsCtx)
	args = append(args, where.Params...)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		meta.Table, strings.Join(sets, ", "), where.Clause, query.Column("", meta.PrimaryKey))

	updated, err := queryOne(ctx, tx, stmt, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update %s %d: %w", meta.Key, id, ConvertDBError(err))
	}
	if updated == nil {
		return before, nil, nil
	}

	after, err = fetchOne(ctx, tx, meta, meta.PrimaryKey, id, nil)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}
