package schema

import (
	"fmt"
	"strings"
)

// ValidationError represents a metadata validation error with context
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Entity != "" {
		b.WriteString(e.Entity)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// Validator checks that a definition is internally consistent. Identifiers
// embedded in SQL text only ever come from metadata, so every table and
// column name is checked here once instead of at query time.
type Validator struct {
	errors []*ValidationError
}

// NewValidator creates a new metadata validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a single entity definition
func (v *Validator) Validate(m *EntityMetadata) error {
	v.errors = v.errors[:0]

	if m.Key == "" {
		v.add(m, "", "entity key is required")
	}
	v.identifier(m, "", m.Table, "table")

	if !m.HasField(m.PrimaryKey) {
		v.add(m, m.PrimaryKey, "primary key must be a declared field")
	}
	if m.IdentityField != "" && !m.HasField(m.IdentityField) {
		v.add(m, m.IdentityField, "identity field must be a declared field")
	}

	for name, field := range m.Fields {
		v.identifier(m, name, name, "field")
		if field.Name != name {
			v.add(m, name, fmt.Sprintf("field name mismatch: %q", field.Name))
		}
		if field.Type == TypeEnum && len(field.Values) == 0 {
			v.add(m, name, "enum field requires values")
		}
	}

	v.fieldList(m, m.SearchableFields, "searchable")
	v.fieldList(m, m.FilterableFields, "filterable")
	v.fieldList(m, m.SortableFields, "sortable")
	v.fieldList(m, m.RequiredFields, "required")
	v.fieldList(m, m.ImmutableFields, "immutable")
	v.fieldList(m, m.DisplayFields, "display")

	if m.DefaultSort.Field == "" || !m.HasField(m.DefaultSort.Field) {
		v.add(m, m.DefaultSort.Field, "default sort must reference a declared field")
	}
	if d := strings.ToUpper(m.DefaultSort.Direction); d != "ASC" && d != "DESC" {
		v.add(m, m.DefaultSort.Field, "default sort direction must be ASC or DESC")
	}

	for policy, column := range m.RLSColumns {
		if !m.HasField(column) {
			v.add(m, column, fmt.Sprintf("rls policy %s references an undeclared column", policy))
		}
	}

	for _, rel := range m.Relationships {
		v.identifier(m, rel.Name, rel.Name, "relationship")
		v.identifier(m, rel.Name, rel.Table, "relationship table")
		if !m.HasField(rel.ForeignKey) {
			v.add(m, rel.ForeignKey, fmt.Sprintf("relationship %s foreign key must be a declared field", rel.Name))
		}
		if rel.TargetKey != "" {
			v.identifier(m, rel.Name, rel.TargetKey, "relationship target key")
		}
		if rel.IdentityField != "" {
			v.identifier(m, rel.Name, rel.IdentityField, "relationship identity field")
		}
		for _, f := range rel.Fields {
			v.identifier(m, rel.Name, f, "relationship field")
		}
	}

	for _, dep := range m.Dependents {
		v.identifier(m, "", dep.Table, "dependent table")
		v.identifier(m, "", dep.ForeignKey, "dependent foreign key")
		if dep.IsPolymorphic() {
			v.identifier(m, "", dep.TypeColumn, "dependent type column")
			if dep.TypeValue == "" {
				v.add(m, dep.TypeColumn, "polymorphic dependent requires a type value")
			}
		}
	}

	if p := m.Protection; p != nil {
		if !m.HasField(p.ProtectedByField) {
			v.add(m, p.ProtectedByField, "protection field must be a declared field")
		}
		v.fieldList(m, p.ImmutableFields, "protected immutable")
	}

	if c := m.Computed; c != nil && !m.HasField(c.Field) {
		v.add(m, c.Field, "computed identifier must be a declared field")
	}

	if len(v.errors) > 0 {
		msgs := make([]string, 0, len(v.errors))
		for _, err := range v.errors {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("%d errors:\n%s", len(v.errors), strings.Join(msgs, "\n"))
	}
	return nil
}

func (v *Validator) fieldList(m *EntityMetadata, fields []string, kind string) {
	for _, f := range fields {
		if !m.HasField(f) {
			v.add(m, f, kind+" field must be a declared field")
		}
	}
}

func (v *Validator) identifier(m *EntityMetadata, field, ident, kind string) {
	if !IsValidIdentifier(ident) {
		v.add(m, field, fmt.Sprintf("invalid %s identifier %q", kind, ident))
	}
}

func (v *Validator) add(m *EntityMetadata, field, msg string) {
	v.errors = append(v.errors, &ValidationError{Entity: m.Key, Field: field, Message: msg})
}

// IsValidIdentifier checks that s is a lower-case SQL identifier:
// a letter or underscore followed by letters, digits or underscores.
func IsValidIdentifier(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
