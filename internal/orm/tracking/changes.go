// Package tracking compares record snapshots to find the fields a mutation
// changed. Audit entries record the result.
package tracking

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// FieldChange represents a change to a single field
type FieldChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old"`
	NewValue interface{} `json:"new"`
}

// ChangeSet is the ordered list of changes between two snapshots
type ChangeSet []FieldChange

// Diff returns the fields whose values differ between before and after,
// sorted by field name. A field present on only one side counts as changed.
// Numeric values compare by value regardless of width, []byte compares equal
// to the same string and timestamps compare as instants.
func Diff(before, after map[string]interface{}) ChangeSet {
	seen := make(map[string]bool, len(before)+len(after))
	var changes ChangeSet

	for field, newValue := range after {
		seen[field] = true
		oldValue, had := before[field]
		if !had || !equal(oldValue, newValue) {
			changes = append(changes, FieldChange{Field: field, OldValue: oldValue, NewValue: newValue})
		}
	}
	for field, oldValue := range before {
		if !seen[field] {
			changes = append(changes, FieldChange{Field: field, OldValue: oldValue})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

// Fields returns the names of the changed fields
func (cs ChangeSet) Fields() []string {
	fields := make([]string, len(cs))
	for i, c := range cs {
		fields[i] = c.Field
	}
	return fields
}

// Changed returns true if the specified field has changed
func (cs ChangeSet) Changed(field string) bool {
	for _, c := range cs {
		if c.Field == field {
			return true
		}
	}
	return false
}

// Without returns the change set minus the named fields
func (cs ChangeSet) Without(fields ...string) ChangeSet {
	skip := make(map[string]bool, len(fields))
	for _, f := range fields {
		skip[f] = true
	}
	out := make(ChangeSet, 0, len(cs))
	for _, c := range cs {
		if !skip[c.Field] {
			out = append(out, c)
		}
	}
	return out
}

func equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	a, b = normalize(a), normalize(b)
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case fmt.Stringer:
		if _, isTime := v.(time.Time); isTime {
			return v
		}
		return val.String()
	default:
		return v
	}
}
