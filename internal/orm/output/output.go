// Package output enforces per-field read access before records leave the
// data layer.
package output

import (
	"github.com/fixhub/fixhub/internal/auth"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// FilterOutput returns a copy of record without the fields the role may not
// read. Fields the entity does not declare an access level for, including
// joined relationship columns, stay visible. Fields marked AccessNone are
// always removed.
func FilterOutput(record map[string]interface{}, meta *schema.EntityMetadata, role string) map[string]interface{} {
	if record == nil {
		return nil
	}

	out := make(map[string]interface{}, len(record))
	for name, value := range record {
		if visible(meta, name, role) {
			out[name] = value
		}
	}
	return out
}

// FilterOutputArray applies FilterOutput to every record
func FilterOutputArray(records []map[string]interface{}, meta *schema.EntityMetadata, role string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		out = append(out, FilterOutput(r, meta, role))
	}
	return out
}

func visible(meta *schema.EntityMetadata, name, role string) bool {
	field, ok := meta.Fields[name]
	if !ok || field.Access == "" {
		return true
	}
	if field.Access == schema.AccessNone {
		return false
	}
	return auth.HasRoleAtLeast(role, field.Access)
}
