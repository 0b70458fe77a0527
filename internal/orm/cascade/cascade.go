// Package cascade removes an entity's dependent rows ahead of the entity
// itself so the number of destroyed rows can be reported and audited.
package cascade

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fixhub/fixhub/internal/orm/query"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// Execer is satisfied by *sql.Tx. Dependents must be removed inside the same
// transaction as the parent row.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Result reports the rows removed per dependent table
type Result struct {
	TotalDeleted int64
	ByTable      map[string]int64
}

// DeleteDependents deletes every dependent row of the entity identified by id,
// in the order the metadata declares them. Tables with nothing left to delete
// contribute zero, so repeating the call is harmless.
func DeleteDependents(ctx context.Context, tx Execer, meta *schema.EntityMetadata, id interface{}) (*Result, error) {
	result := &Result{ByTable: make(map[string]int64)}

	for _, dep := range meta.Dependents {
		stmt, args := deleteStatement(dep, id)

		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("cascade delete %s from %s: %w", meta.Key, dep.Table, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("cascade delete %s from %s: rows affected: %w", meta.Key, dep.Table, err)
		}

		result.ByTable[dep.Table] += n
		result.TotalDeleted += n
	}

	return result, nil
}

func deleteStatement(dep schema.Dependent, id interface{}) (string, []interface{}) {
	fk := query.Column("", dep.ForeignKey)
	table := query.Column("", dep.Table)

	if dep.IsPolymorphic() {
		return fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s = $2", table, query.Column("", dep.TypeColumn), fk),
			[]interface{}{dep.TypeValue, id}
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, fk), []interface{}{id}
}
