// Package rls resolves a caller's row-level security policy into a predicate
// that narrows queries against an entity.
package rls

import (
	"fmt"

	"github.com/fixhub/fixhub/internal/orm/query"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// Policy names
const (
	AllRecords     = "all_records"
	PublicResource = "public_resource"
	OwnRecordOnly  = "own_record_only"
	AssignedOnly   = "assigned_only"
	DenyAll        = "deny_all"
)

// denyClause is emitted when a restrictive policy cannot be resolved
const denyClause = "1 = 0"

// Context is the per-call security context. A nil Context means no
// restriction and is reserved for trusted internal callers.
type Context struct {
	Policy string
	UserID int64
	Role   string
}

// IsRestrictive returns true if the policy narrows results
func (c *Context) IsRestrictive() bool {
	if c == nil {
		return false
	}
	switch c.Policy {
	case "", AllRecords, PublicResource:
		return false
	default:
		return true
	}
}

// BuildFilter returns the list-query predicate for the caller's policy. The
// first placeholder it emits is paramOffset+1. The boolean reports whether a
// predicate was applied.
//
// The scoping column is looked up in the entity's own metadata, so the same
// policy may scope work orders by customer_id and customers by id. A
// restrictive policy the entity does not map, an unknown policy, or a
// missing user id all resolve to a predicate that matches nothing.
func BuildFilter(ctx *Context, meta *schema.EntityMetadata, paramOffset int, tablePrefix string) (query.Fragment, bool) {
	if !ctx.IsRestrictive() {
		return query.Empty(paramOffset), false
	}

	if meta.RLSResource == "" {
		// shared reference data such as roles
		return query.Empty(paramOffset), false
	}

	if ctx.Policy == DenyAll {
		return query.Literal(denyClause, paramOffset), true
	}

	column, ok := meta.RLSColumn(ctx.Policy)
	if !ok || ctx.UserID <= 0 {
		return query.Literal(denyClause, paramOffset), true
	}

	placeholder := paramOffset + 1
	return query.Fragment{
		Clause:      fmt.Sprintf("%s = $%d", query.Column(tablePrefix, column), placeholder),
		Params:      []interface{}{ctx.UserID},
		ParamOffset: placeholder,
	}, true
}

// BuildRecordFilter returns the predicate for a single-record lookup where
// the record key is already bound at $1. The result is the primary key
// predicate AND-composed with the caller's policy, so the policy can only
// narrow the lookup.
func BuildRecordFilter(ctx *Context, meta *schema.EntityMetadata, keyColumn string, key interface{}, tablePrefix string) (query.Fragment, bool) {
	keyFragment := query.Fragment{
		Clause:      fmt.Sprintf("%s = $1", query.Column(tablePrefix, keyColumn)),
		Params:      []interface{}{key},
		ParamOffset: 1,
	}

	policy, applied := BuildFilter(ctx, meta, keyFragment.ParamOffset, tablePrefix)
	return query.Combine(keyFragment, policy), applied
}
