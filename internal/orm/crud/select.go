package crud

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fixhub/fixhub/internal/orm/query"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// systemFields are maintained by the database and never written by callers
var systemFields = []string{"created_at", "updated_at"}

// fieldNames returns the declared fields in sorted order
func fieldNames(meta *schema.EntityMetadata) []string {
	names := make([]string, 0, len(meta.Fields))
	for name := range meta.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// baseColumns returns the table-qualified column list of the entity
func baseColumns(meta *schema.EntityMetadata) []string {
	names := fieldNames(meta)
	cols := make([]string, len(names))
	for i, name := range names {
		cols[i] = query.Column(meta.Table, name)
	}
	return cols
}

// selectFrom renders the SELECT list and FROM clause for reads, including the
// entity's default belongs-to joins. A relationship's identity field is
// aliased to the relationship name and its other fields to "<name>_<field>".
func selectFrom(meta *schema.EntityMetadata) string {
	cols := baseColumns(meta)
	var joins []string

	for _, rel := range meta.Relationships {
		target := rel.TargetKey
		if target == "" {
			target = "id"
		}
		if rel.IdentityField != "" {
			cols = append(cols, fmt.Sprintf("%s AS %s", query.Column(rel.Name, rel.IdentityField), rel.Name))
		}
		for _, f := range rel.Fields {
			cols = append(cols, fmt.Sprintf("%s AS %s_%s", query.Column(rel.Name, f), rel.Name, f))
		}
		joins = append(joins, fmt.Sprintf("LEFT JOIN %s %s ON %s = %s",
			query.Column("", rel.Table), rel.Name,
			query.Column(rel.Name, target), query.Column(meta.Table, rel.ForeignKey)))
	}

	stmt := "SELECT " + strings.Join(cols, ", ") + " FROM " + meta.Table
	if len(joins) > 0 {
		stmt += " " + strings.Join(joins, " ")
	}
	return stmt
}

// decodeRecord converts scanned values to their API shape: structured fields
// are parsed from their JSON storage form and byte strings become strings.
func decodeRecord(meta *schema.EntityMetadata, record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}
	for name, value := range record {
		field, declared := meta.Fields[name]
		if declared && field.Type.IsStructured() {
			record[name] = decodeStructured(value)
			continue
		}
		if b, ok := value.([]byte); ok {
			record[name] = string(b)
		}
	}
	return record
}

func decodeStructured(value interface{}) interface{} {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return value
	}

	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		// not JSON; hand back the stored text
		return string(raw)
	}
	return out
}

// encodeRecord serializes structured fields for storage
func encodeRecord(meta *schema.EntityMetadata, data map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(data))
	for name, value := range data {
		field := meta.Fields[name]
		if field != nil && field.Type.IsStructured() && value != nil {
			b, err := json.Marshal(value)
			if err != nil {
				return nil, badRequest("%s: cannot be serialized: %v", name, err)
			}
			out[name] = string(b)
			continue
		}
		out[name] = value
	}
	return out, nil
}

// sortedKeys returns the keys of data in sorted order
func sortedKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
