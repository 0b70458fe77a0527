// Package schema provides the metadata types that describe an entity's storage
// shape, the query operations it allows and the security rules applied to it.
// Metadata is built once at process start and never mutated afterwards.
package schema

import (
	"fmt"
)

// FieldType represents the declared type of an entity field
type FieldType int

const (
	// Text types
	TypeString FieldType = iota
	TypeText
	TypeEmail
	TypePhone

	// Numeric types
	TypeInteger
	TypeDecimal

	// Boolean
	TypeBoolean

	// Time types
	TypeTimestamp
	TypeDate

	// Enum
	TypeEnum

	// Structured types, serialized as JSON for storage
	TypeJSON
)

// String returns the string representation of the field type
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeEmail:
		return "email"
	case TypePhone:
		return "phone"
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeEnum:
		return "enum"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a string to a FieldType
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "email":
		return TypeEmail, nil
	case "phone":
		return TypePhone, nil
	case "integer":
		return TypeInteger, nil
	case "decimal":
		return TypeDecimal, nil
	case "boolean":
		return TypeBoolean, nil
	case "timestamp":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "enum":
		return TypeEnum, nil
	case "json":
		return TypeJSON, nil
	default:
		return 0, fmt.Errorf("unknown field type: %s", s)
	}
}

// IsText returns true if values of the type are trimmed strings
func (t FieldType) IsText() bool {
	return t == TypeString || t == TypeText || t == TypeEmail || t == TypePhone || t == TypeEnum
}

// IsStructured returns true if the type is stored as serialized JSON
func (t FieldType) IsStructured() bool {
	return t == TypeJSON
}

// AccessNone marks a field that never leaves the data layer
const AccessNone = "none"

// Field describes a single column of an entity
type Field struct {
	Name      string
	Type      FieldType
	MaxLength int         // 0 means unbounded
	Values    []string    // allowed values for TypeEnum
	Default   interface{} // applied on create when the caller omits the field

	// Access is the minimum role allowed to read the field, or AccessNone.
	// An empty Access keeps the field visible to every caller.
	Access string

	// WriteAccess is the minimum role allowed to set the field on create or
	// update. Empty means any caller allowed to write the entity.
	WriteAccess string
}

// Relationship describes a belongs-to relation joined into single-record reads
type Relationship struct {
	Name          string   // relation name, used as column alias prefix
	Table         string   // target table
	ForeignKey    string   // column on the owning table
	TargetKey     string   // column on the target table, defaults to "id"
	IdentityField string   // aliased to the relation name
	Fields        []string // other selected fields, aliased "<name>_<field>"
}

// Dependent describes rows that must be removed before a parent row
type Dependent struct {
	Table      string
	ForeignKey string

	// Polymorphic dependents are keyed by (TypeColumn, ForeignKey) where
	// TypeColumn holds TypeValue, e.g. audit_logs(resource_type, resource_id).
	TypeColumn string
	TypeValue  string
}

// IsPolymorphic returns true if the dependent is keyed by a (type, id) pair
func (d Dependent) IsPolymorphic() bool {
	return d.TypeColumn != ""
}

// SystemProtection guards rows whose identity value is protected
type SystemProtection struct {
	ProtectedByField string   // column whose value identifies protected rows
	ProtectedValues  []string // protected identity values
	ImmutableFields  []string // changing these on a protected row is forbidden
	PreventDelete    bool     // protected rows cannot be deleted
}

// IsProtectedValue returns true if the value identifies a protected row
func (p *SystemProtection) IsProtectedValue(value interface{}) bool {
	if p == nil || value == nil {
		return false
	}
	s := fmt.Sprint(value)
	if b, ok := value.([]byte); ok {
		s = string(b)
	}
	for _, v := range p.ProtectedValues {
		if v == s {
			return true
		}
	}
	return false
}

// TouchesImmutable returns true if any key of data is an immutable field
func (p *SystemProtection) TouchesImmutable(data map[string]interface{}) bool {
	if p == nil {
		return false
	}
	for _, f := range p.ImmutableFields {
		if _, ok := data[f]; ok {
			return true
		}
	}
	return false
}

// ComputedIdentifier generates a business identifier on create when absent
type ComputedIdentifier struct {
	Field  string
	Prefix string
}

// SortSpec is a field and direction pair
type SortSpec struct {
	Field     string
	Direction string // ASC or DESC
}

// EntityMetadata is the declarative description of one entity
type EntityMetadata struct {
	Key        string // entity key used by callers, e.g. "work_order"
	Table      string
	PrimaryKey string

	IdentityField string   // natural identifier, e.g. email or name
	DisplayFields []string // human readable fields

	Fields        map[string]*Field
	Relationships []*Relationship // default belongs-to joins

	SearchableFields []string
	FilterableFields []string
	SortableFields   []string
	DefaultSort      SortSpec

	RequiredFields  []string
	ImmutableFields []string

	// RLSResource names the resource in policy tables. RLSColumns maps a
	// policy name to the scoping column for this entity.
	RLSResource string
	RLSColumns  map[string]string

	Protection       *SystemProtection
	Computed         *ComputedIdentifier
	Dependents       []Dependent
	SharedPrimaryKey bool // id may be supplied by the caller, e.g. 1:1 profile rows

	// ReadOnly entities are written by the system only; the service rejects
	// every create, update, delete and batch on them.
	ReadOnly bool
	// WriteAccess is the minimum role allowed to write the entity at all
	WriteAccess string
}

// HasField returns true if the entity declares the field
func (m *EntityMetadata) HasField(name string) bool {
	_, ok := m.Fields[name]
	return ok
}

// IsFilterable returns true if the field is in the filter allow-list
func (m *EntityMetadata) IsFilterable(name string) bool {
	return contains(m.FilterableFields, name)
}

// IsSortable returns true if the field is in the sort allow-list
func (m *EntityMetadata) IsSortable(name string) bool {
	return contains(m.SortableFields, name)
}

// IsImmutable returns true if the entity declares the field immutable
func (m *EntityMetadata) IsImmutable(name string) bool {
	return contains(m.ImmutableFields, name)
}

// HasActiveFlag returns true if the entity supports active-only listing
func (m *EntityMetadata) HasActiveFlag() bool {
	return m.HasField("is_active")
}

// HasTimestamps returns true if the entity maintains updated_at
func (m *EntityMetadata) HasTimestamps() bool {
	return m.HasField("updated_at")
}

// RLSColumn returns the scoping column for a policy on this entity
func (m *EntityMetadata) RLSColumn(policy string) (string, bool) {
	col, ok := m.RLSColumns[policy]
	return col, ok
}

func contains(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}
