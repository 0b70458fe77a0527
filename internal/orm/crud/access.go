package crud

import (
	"fmt"

	"github.com/fixhub/fixhub/internal/auth"
	"github.com/fixhub/fixhub/internal/orm/query"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// checkWritable rejects writes to read-only entities and, for callers with an
// RLS context, writes below the entity's or a field's write role. data may be
// nil for deletes. A nil context is a trusted internal caller.
func checkWritable(meta *schema.EntityMetadata, data map[string]interface{}, rlsCtx *rls.Context) error {
	if meta.ReadOnly {
		return fmt.Errorf("%w: %s is read-only", ErrForbidden, meta.Key)
	}
	if rlsCtx == nil {
		return nil
	}
	if meta.WriteAccess != "" && !auth.HasRoleAtLeast(rlsCtx.Role, meta.WriteAccess) {
		return fmt.Errorf("%w: %s requires role %s to modify", ErrForbidden, meta.Key, meta.WriteAccess)
	}
	for _, name := range sortedKeys(data) {
		f, ok := meta.Fields[name]
		if !ok || f.WriteAccess == "" {
			continue
		}
		if !auth.HasRoleAtLeast(rlsCtx.Role, f.WriteAccess) {
			return fmt.Errorf("%w: %s.%s requires role %s to set", ErrForbidden, meta.Key, name, f.WriteAccess)
		}
	}
	return nil
}

// scopeCreate binds a new record to the caller under a restrictive policy:
// the policy's scoping column is set to the caller's id, and a different id
// supplied by the caller is rejected. A policy the entity does not map
// cannot create at all.
func scopeCreate(meta *schema.EntityMetadata, clean map[string]interface{}, rlsCtx *rls.Context) error {
	if !rlsCtx.IsRestrictive() || meta.RLSResource == "" {
		return nil
	}

	column, ok := meta.RLSColumn(rlsCtx.Policy)
	if rlsCtx.Policy == rls.DenyAll || !ok || rlsCtx.UserID <= 0 ||
		(column == meta.PrimaryKey && !meta.SharedPrimaryKey) {
		return fmt.Errorf("%w: policy %s cannot create %s", ErrForbidden, rlsCtx.Policy, meta.Key)
	}
	if v, ok := clean[column]; ok && v != nil && toInt64(v) != rlsCtx.UserID {
		return fmt.Errorf("%w: %s.%s must be the caller", ErrForbidden, meta.Key, column)
	}
	clean[column] = rlsCtx.UserID
	return nil
}

// checkScopedUpdate stops a restricted caller from moving a row between
// scopes. The caller's own scoping column may only be set to the caller's
// id; other scoping columns may not be changed at all.
func checkScopedUpdate(meta *schema.EntityMetadata, updates map[string]interface{}, rlsCtx *rls.Context) error {
	if !rlsCtx.IsRestrictive() || meta.RLSResource == "" {
		return nil
	}
	own, _ := meta.RLSColumn(rlsCtx.Policy)
	for _, column := range meta.RLSColumns {
		v, ok := updates[column]
		if !ok {
			continue
		}
		if column == own && v != nil && toInt64(v) == rlsCtx.UserID {
			continue
		}
		return fmt.Errorf("%w: cannot reassign %s.%s", ErrForbidden, meta.Key, column)
	}
	return nil
}

// scopedKeyFilter returns "<pk> = $offset+1" AND-composed with the caller's
// policy, for UPDATE and DELETE statements on the bare table
func scopedKeyFilter(meta *schema.EntityMetadata, id int64, paramOffset int, rlsCtx *rls.Context) query.Fragment {
	key := query.Fragment{
		Clause:      fmt.Sprintf("%s = $%d", query.Column("", meta.PrimaryKey), paramOffset+1),
		Params:      []interface{}{id},
		ParamOffset: paramOffset + 1,
	}
	policy, _ := rls.BuildFilter(rlsCtx, meta, key.ParamOffset, "")
	if policy.IsEmpty() {
		return key
	}
	return query.Combine(key, policy)
}
