// Package auth holds the role hierarchy, the role to row-level policy mapping
// and JWT claim handling for authenticated callers.
package auth

import "github.com/fixhub/fixhub/internal/orm/rls"

// Permission represents an action a role may perform on entities
type Permission string

const (
	EntityRead   Permission = "entity.read"
	EntityCreate Permission = "entity.create"
	EntityUpdate Permission = "entity.update"
	EntityDelete Permission = "entity.delete"
	EntityBatch  Permission = "entity.batch"

	SystemAdmin Permission = "system.admin"
)

// Role represents a user role. Level orders roles for field visibility:
// a caller sees fields whose access level is at or below its own.
type Role struct {
	Name        string
	Level       int
	Policy      string
	Permissions []Permission
}

// HasPermission checks if the role has a specific permission
func (r *Role) HasPermission(permission Permission) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Predefined roles
var (
	CustomerRole = &Role{
		Name:        "customer",
		Level:       1,
		Policy:      rls.OwnRecordOnly,
		Permissions: []Permission{EntityRead, EntityCreate},
	}

	TechnicianRole = &Role{
		Name:        "technician",
		Level:       2,
		Policy:      rls.AssignedOnly,
		Permissions: []Permission{EntityRead, EntityUpdate},
	}

	DispatcherRole = &Role{
		Name:        "dispatcher",
		Level:       3,
		Policy:      rls.AllRecords,
		Permissions: []Permission{EntityRead, EntityCreate, EntityUpdate, EntityBatch},
	}

	ManagerRole = &Role{
		Name:        "manager",
		Level:       4,
		Policy:      rls.AllRecords,
		Permissions: []Permission{EntityRead, EntityCreate, EntityUpdate, EntityDelete, EntityBatch},
	}

	// AdminRole has all permissions
	AdminRole = &Role{
		Name:   "admin",
		Level:  5,
		Policy: rls.AllRecords,
		Permissions: []Permission{
			EntityRead, EntityCreate, EntityUpdate, EntityDelete, EntityBatch,
			SystemAdmin,
		},
	}
)

// GetRoleByName returns a predefined role by name
// Returns nil if the role is not found
func GetRoleByName(name string) *Role {
	switch name {
	case "customer":
		return CustomerRole
	case "technician":
		return TechnicianRole
	case "dispatcher":
		return DispatcherRole
	case "manager":
		return ManagerRole
	case "admin":
		return AdminRole
	default:
		return nil
	}
}

// RoleNames returns the predefined role names from lowest to highest level
func RoleNames() []string {
	return []string{"customer", "technician", "dispatcher", "manager", "admin"}
}

// HasRoleAtLeast reports whether role is at or above the minimum role.
// Unknown roles on either side never satisfy the check.
func HasRoleAtLeast(role, minimum string) bool {
	r, m := GetRoleByName(role), GetRoleByName(minimum)
	if r == nil || m == nil {
		return false
	}
	return r.Level >= m.Level
}

// PolicyForRole returns the row-level policy applied to a role. Unknown roles
// are denied.
func PolicyForRole(name string) string {
	if r := GetRoleByName(name); r != nil {
		return r.Policy
	}
	return rls.DenyAll
}

// UserHasPermission checks if the user's role has the required permission
func UserHasPermission(role string, permission Permission) bool {
	r := GetRoleByName(role)
	return r != nil && r.HasPermission(permission)
}
