// Package entities declares the work-order domain: the metadata for every
// entity the service exposes. Definitions are built fresh by each call so a
// registry never shares mutable state with another.
package entities

import (
	"github.com/fixhub/fixhub/internal/auth"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/orm/schema"
)

// Registry builds the registry of all domain entities
func Registry() (*schema.Registry, error) {
	return schema.NewRegistry(Definitions()...)
}

// MustRegistry is like Registry but panics on an invalid definition
func MustRegistry() *schema.Registry {
	return schema.MustNewRegistry(Definitions()...)
}

// Definitions returns every domain entity definition
func Definitions() []*schema.EntityMetadata {
	return []*schema.EntityMetadata{
		Role(),
		User(),
		Customer(),
		Technician(),
		WorkOrder(),
		Invoice(),
		Contract(),
		Inventory(),
		AuditLog(),
	}
}

// fields indexes field definitions by name
func fields(defs ...*schema.Field) map[string]*schema.Field {
	out := make(map[string]*schema.Field, len(defs))
	for _, f := range defs {
		out[f.Name] = f
	}
	return out
}

func id() *schema.Field { return &schema.Field{Name: "id", Type: schema.TypeInteger} }

func str(name string, max int) *schema.Field {
	return &schema.Field{Name: name, Type: schema.TypeString, MaxLength: max}
}

func text(name string) *schema.Field { return &schema.Field{Name: name, Type: schema.TypeText} }

func integer(name string) *schema.Field { return &schema.Field{Name: name, Type: schema.TypeInteger} }

func decimal(name string) *schema.Field { return &schema.Field{Name: name, Type: schema.TypeDecimal} }

func timestamp(name string) *schema.Field { return &schema.Field{Name: name, Type: schema.TypeTimestamp} }

func date(name string) *schema.Field { return &schema.Field{Name: name, Type: schema.TypeDate} }

func structured(name string) *schema.Field { return &schema.Field{Name: name, Type: schema.TypeJSON} }

func enum(name string, def string, values ...string) *schema.Field {
	f := &schema.Field{Name: name, Type: schema.TypeEnum, Values: values}
	if def != "" {
		f.Default = def
	}
	return f
}

func active() *schema.Field {
	return &schema.Field{Name: "is_active", Type: schema.TypeBoolean, Default: true}
}

// restricted limits a field to the given role and above
func restricted(f *schema.Field, minRole string) *schema.Field {
	f.Access = minRole
	return f
}

// writableBy limits setting a field to the given role and above
func writableBy(f *schema.Field, minRole string) *schema.Field {
	f.WriteAccess = minRole
	return f
}

// auditTrail is the polymorphic dependent every audited entity carries
func auditTrail(key string) schema.Dependent {
	return schema.Dependent{Table: "audit_logs", ForeignKey: "resource_id", TypeColumn: "resource_type", TypeValue: key}
}

// Role is shared reference data. The built-in roles cannot be renamed or
// deleted.
func Role() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:           "role",
		Table:         "roles",
		PrimaryKey:    "id",
		IdentityField: "name",
		DisplayFields: []string{"name"},
		Fields: fields(
			id(),
			str("name", 50),
			text("description"),
			integer("priority"),
			active(),
			timestamp("created_at"),
			timestamp("updated_at"),
		),
		SearchableFields: []string{"name", "description"},
		FilterableFields: []string{"name", "priority", "is_active"},
		SortableFields:   []string{"name", "priority", "created_at"},
		DefaultSort:      schema.SortSpec{Field: "priority", Direction: "ASC"},
		RequiredFields:   []string{"name"},
		Protection: &schema.SystemProtection{
			ProtectedByField: "name",
			ProtectedValues:  auth.RoleNames(),
			ImmutableFields:  []string{"name"},
			PreventDelete:    true,
		},
		Dependents:  []schema.Dependent{auditTrail("role")},
		WriteAccess: auth.AdminRole.Name,
	}
}

// User is an account. Customers and technicians share its primary key.
func User() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:           "user",
		Table:         "users",
		PrimaryKey:    "id",
		IdentityField: "email",
		DisplayFields: []string{"first_name", "last_name"},
		Fields: fields(
			id(),
			&schema.Field{Name: "email", Type: schema.TypeEmail, MaxLength: 255},
			str("first_name", 100),
			str("last_name", 100),
			restricted(str("password_hash", 255), schema.AccessNone),
			writableBy(integer("role_id"), auth.AdminRole.Name),
			timestamp("last_login"),
			active(),
			timestamp("created_at"),
			timestamp("updated_at"),
		),
		Relationships: []*schema.Relationship{{
			Name: "role", Table: "roles", ForeignKey: "role_id",
			IdentityField: "name", Fields: []string{"priority"},
		}},
		SearchableFields: []string{"email", "first_name", "last_name"},
		FilterableFields: []string{"email", "role_id", "is_active"},
		SortableFields:   []string{"email", "first_name", "last_name", "last_login", "created_at"},
		DefaultSort:      schema.SortSpec{Field: "email", Direction: "ASC"},
		RequiredFields:   []string{"email", "role_id"},
		ImmutableFields:  []string{"password_hash"},
		RLSResource:      "users",
		RLSColumns: map[string]string{
			rls.OwnRecordOnly: "id",
			rls.AssignedOnly:  "id",
		},
		Dependents: []schema.Dependent{auditTrail("user")},
	}
}

// Customer is a billed party. A customer who signs in shares the id of their
// user; customers created by staff draw a fresh id from the same sequence.
func Customer() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:           "customer",
		Table:         "customers",
		PrimaryKey:    "id",
		IdentityField: "email",
		DisplayFields: []string{"company_name", "email"},
		Fields: fields(
			id(),
			&schema.Field{Name: "email", Type: schema.TypeEmail, MaxLength: 255},
			&schema.Field{Name: "phone", Type: schema.TypePhone},
			str("company_name", 255),
			text("address"),
			writableBy(restricted(text("billing_notes"), auth.ManagerRole.Name), auth.ManagerRole.Name),
			structured("preferences"),
			active(),
			timestamp("created_at"),
			timestamp("updated_at"),
		),
		SearchableFields: []string{"email", "company_name", "phone"},
		FilterableFields: []string{"email", "company_name", "is_active"},
		SortableFields:   []string{"email", "company_name", "created_at"},
		DefaultSort:      schema.SortSpec{Field: "company_name", Direction: "ASC"},
		RequiredFields:   []string{"email"},
		RLSResource:      "customers",
		RLSColumns:       map[string]string{rls.OwnRecordOnly: "id"},
		Dependents: []schema.Dependent{
			{Table: "invoices", ForeignKey: "customer_id"},
			{Table: "work_orders", ForeignKey: "customer_id"},
			{Table: "contracts", ForeignKey: "customer_id"},
			auditTrail("customer"),
		},
		SharedPrimaryKey: true,
	}
}

// Technician is the 1:1 profile of a technician user
func Technician() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:           "technician",
		Table:         "technicians",
		PrimaryKey:    "id",
		IdentityField: "license_number",
		Fields: fields(
			id(),
			str("license_number", 50),
			structured("skills"),
			writableBy(restricted(decimal("hourly_rate"), auth.DispatcherRole.Name), auth.DispatcherRole.Name),
			enum("status", "available", "available", "on_job", "off_duty"),
			active(),
			timestamp("created_at"),
			timestamp("updated_at"),
		),
		SearchableFields: []string{"license_number"},
		FilterableFields: []string{"status", "is_active"},
		SortableFields:   []string{"license_number", "created_at"},
		DefaultSort:      schema.SortSpec{Field: "license_number", Direction: "ASC"},
		RequiredFields:   []string{"id", "license_number"},
		RLSResource:      "technicians",
		RLSColumns:       map[string]string{rls.AssignedOnly: "id"},
		Dependents:       []schema.Dependent{auditTrail("technician")},
		SharedPrimaryKey: true,
	}
}

// WorkOrder is a unit of field work. Customers see their own orders and
// technicians the ones assigned to them.
func WorkOrder() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:           "work_order",
		Table:         "work_orders",
		PrimaryKey:    "id",
		IdentityField: "work_order_number",
		DisplayFields: []string{"work_order_number", "title"},
		Fields: fields(
			id(),
			str("work_order_number", 30),
			integer("customer_id"),
			writableBy(integer("assigned_technician_id"), auth.DispatcherRole.Name),
			str("title", 255),
			text("description"),
			enum("status", "pending", "pending", "assigned", "in_progress", "completed", "cancelled"),
			enum("priority", "normal", "low", "normal", "high", "urgent"),
			timestamp("scheduled_start"),
			timestamp("completed_at"),
			writableBy(restricted(text("internal_notes"), auth.DispatcherRole.Name), auth.DispatcherRole.Name),
			structured("checklist"),
			active(),
			timestamp("created_at"),
			timestamp("updated_at"),
		),
		Relationships: []*schema.Relationship{
			{
				Name: "customer", Table: "customers", ForeignKey: "customer_id",
				IdentityField: "email", Fields: []string{"company_name"},
			},
			{
				Name: "technician", Table: "technicians", ForeignKey: "assigned_technician_id",
				IdentityField: "license_number",
			},
		},
		SearchableFields: []string{"work_order_number", "title", "description"},
		FilterableFields: []string{"status", "priority", "customer_id", "assigned_technician_id", "scheduled_start", "is_active"},
		SortableFields:   []string{"work_order_number", "title", "status", "priority", "scheduled_start", "created_at"},
		DefaultSort:      schema.SortSpec{Field: "created_at", Direction: "DESC"},
		RequiredFields:   []string{"work_order_number", "customer_id", "title"},
		ImmutableFields:  []string{"work_order_number"},
		RLSResource:      "work_orders",
		RLSColumns: map[string]string{
			rls.OwnRecordOnly: "customer_id",
			rls.AssignedOnly:  "assigned_technician_id",
		},
		Computed: &schema.ComputedIdentifier{Field: "work_order_number", Prefix: "WO"},
		Dependents: []schema.Dependent{
			{Table: "invoices", ForeignKey: "work_order_id"},
			auditTrail("work_order"),
		},
	}
}

// Invoice bills a customer, usually for a work order
func Invoice() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:           "invoice",
		Table:         "invoices",
		PrimaryKey:    "id",
		IdentityField: "invoice_number",
		Fields: fields(
			id(),
			str("invoice_number", 30),
			integer("customer_id"),
			integer("work_order_id"),
			decimal("amount"),
			decimal("tax"),
			decimal("total"),
			enum("status", "draft", "draft", "sent", "paid", "overdue", "void"),
			date("due_date"),
			timestamp("paid_at"),
			structured("line_items"),
			restricted(text("internal_notes"), auth.ManagerRole.Name),
			timestamp("created_at"),
			timestamp("updated_at"),
		),
		Relationships: []*schema.Relationship{
			{Name: "customer", Table: "customers", ForeignKey: "customer_id", IdentityField: "email"},
			{Name: "work_order", Table: "work_orders", ForeignKey: "work_order_id", IdentityField: "work_order_number"},
		},
		SearchableFields: []string{"invoice_number"},
		FilterableFields: []string{"status", "customer_id", "work_order_id", "due_date", "total"},
		SortableFields:   []string{"invoice_number", "due_date", "total", "created_at"},
		DefaultSort:      schema.SortSpec{Field: "created_at", Direction: "DESC"},
		RequiredFields:   []string{"invoice_number", "customer_id", "amount"},
		ImmutableFields:  []string{"invoice_number"},
		RLSResource:      "invoices",
		RLSColumns:       map[string]string{rls.OwnRecordOnly: "customer_id"},
		Computed:         &schema.ComputedIdentifier{Field: "invoice_number", Prefix: "INV"},
		Dependents:       []schema.Dependent{auditTrail("invoice")},
	}
}

// Contract is a service agreement with a customer
func Contract() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:           "contract",
		Table:         "contracts",
		PrimaryKey:    "id",
		IdentityField: "contract_number",
		Fields: fields(
			id(),
			str("contract_number", 30),
			integer("customer_id"),
			str("name", 255),
			date("start_date"),
			date("end_date"),
			restricted(decimal("value"), auth.ManagerRole.Name),
			structured("terms"),
			enum("status", "draft", "draft", "active", "expired", "terminated"),
			active(),
			timestamp("created_at"),
			timestamp("updated_at"),
		),
		Relationships: []*schema.Relationship{
			{Name: "customer", Table: "customers", ForeignKey: "customer_id", IdentityField: "email"},
		},
		SearchableFields: []string{"contract_number", "name"},
		FilterableFields: []string{"status", "customer_id", "start_date", "end_date", "is_active"},
		SortableFields:   []string{"contract_number", "start_date", "end_date", "created_at"},
		DefaultSort:      schema.SortSpec{Field: "start_date", Direction: "DESC"},
		RequiredFields:   []string{"contract_number", "customer_id", "start_date"},
		ImmutableFields:  []string{"contract_number"},
		RLSResource:      "contracts",
		RLSColumns:       map[string]string{rls.OwnRecordOnly: "customer_id"},
		Computed:         &schema.ComputedIdentifier{Field: "contract_number", Prefix: "CTR"},
		Dependents:       []schema.Dependent{auditTrail("contract")},
	}
}

// Inventory is shared stock data readable by every role
func Inventory() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:           "inventory",
		Table:         "inventory",
		PrimaryKey:    "id",
		IdentityField: "sku",
		DisplayFields: []string{"name"},
		Fields: fields(
			id(),
			str("sku", 64),
			str("name", 255),
			text("description"),
			&schema.Field{Name: "quantity", Type: schema.TypeInteger, Default: int64(0)},
			integer("reorder_level"),
			restricted(decimal("unit_cost"), auth.ManagerRole.Name),
			str("location", 100),
			active(),
			timestamp("created_at"),
			timestamp("updated_at"),
		),
		SearchableFields: []string{"sku", "name", "description"},
		FilterableFields: []string{"sku", "location", "quantity", "is_active"},
		SortableFields:   []string{"sku", "name", "quantity", "created_at"},
		DefaultSort:      schema.SortSpec{Field: "name", Direction: "ASC"},
		RequiredFields:   []string{"sku", "name"},
		Dependents:       []schema.Dependent{auditTrail("inventory")},
	}
}

// AuditLog exposes the audit trail. Entries are written by the audit
// component only; the service refuses to write them.
func AuditLog() *schema.EntityMetadata {
	return &schema.EntityMetadata{
		Key:        "audit_log",
		Table:      "audit_logs",
		PrimaryKey: "id",
		ReadOnly:   true,
		Fields: fields(
			id(),
			integer("user_id"),
			enum("action", "", "create", "update", "delete"),
			str("resource_type", 50),
			integer("resource_id"),
			structured("old_values"),
			structured("new_values"),
			structured("changed_fields"),
			restricted(str("ip_address", 45), auth.ManagerRole.Name),
			restricted(text("user_agent"), auth.ManagerRole.Name),
			str("correlation_id", 64),
			timestamp("created_at"),
		),
		FilterableFields: []string{"user_id", "action", "resource_type", "resource_id", "correlation_id", "created_at"},
		SortableFields:   []string{"created_at", "resource_type"},
		DefaultSort:      schema.SortSpec{Field: "created_at", Direction: "DESC"},
		RequiredFields:   []string{"action", "resource_type"},
		ImmutableFields:  []string{"user_id", "action", "resource_type", "resource_id", "old_values", "new_values", "changed_fields", "correlation_id"},
		RLSResource:      "audit_logs",
		RLSColumns: map[string]string{
			rls.OwnRecordOnly: "user_id",
			rls.AssignedOnly:  "user_id",
		},
	}
}
