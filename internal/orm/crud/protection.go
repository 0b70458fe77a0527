package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/orm/output"
	"github.com/fixhub/fixhub/internal/orm/query"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// auditRole reads snapshots for audit entries. Only fields that never leave
// the data layer are withheld from the trail.
const auditRole = "admin"

// loadCurrent reads the stored row without joins, or nil if it is missing or
// outside the caller's policy
func loadCurrent(ctx context.Context, q querier, meta *schema.EntityMetadata, id int64, rlsCtx *rls.Context) (map[string]interface{}, error) {
	where := query.Fragment{
		Clause:      query.Column(meta.Table, meta.PrimaryKey) + " = $1",
		Params:      []interface{}{id},
		ParamOffset: 1,
	}
	if rlsCtx.IsRestrictive() {
		where, _ = rls.BuildRecordFilter(rlsCtx, meta, meta.PrimaryKey, id, meta.Table)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(baseColumns(meta), ", "), meta.Table, where.Where())

	record, err := queryOne(ctx, q, stmt, where.Params...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", meta.Key, id, ConvertDBError(err))
	}
	return decodeRecord(meta, record), nil
}

// isProtected reports whether the row's identity value is protected
func isProtected(meta *schema.EntityMetadata, current map[string]interface{}) bool {
	p := meta.Protection
	return p != nil && p.IsProtectedValue(current[p.ProtectedByField])
}

func forbidden(meta *schema.EntityMetadata, id int64, action string) error {
	return fmt.Errorf("%w: cannot %s protected %s %d", ErrForbidden, action, meta.Key, id)
}

func (s *Service) auditEntry(action audit.Action, meta *schema.EntityMetadata, id interface{}, actx *audit.Context, before, after map[string]interface{}) audit.Entry {
	return audit.NewEntry(action, meta.Key, id, actx,
		output.FilterOutput(before, meta, auditRole),
		output.FilterOutput(after, meta, auditRole),
	)
}
