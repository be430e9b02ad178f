// Package authz is the single authorization policy consulted by every
// handler. It decides whether a caller's role may perform an operation and
// narrows queries to the caller's tenant. Keeping the decision logic in one
// place means no endpoint can forget the tenant filter.
package authz

import (
	"errors"

	"taskboard-service/internal/model"

	"gorm.io/gorm"
)

// ErrSelfDeletion is returned when a caller targets their own account with a
// delete-user operation. This applies to every role, super_admin included.
var ErrSelfDeletion = errors.New("cannot delete self")

// Caller identifies the authenticated principal behind a request. It is
// extracted from the JWT claims by the auth middleware and passed explicitly
// to every data-access call.
type Caller struct {
	UserID   uint
	Email    string
	TenantID *uint // nil for super_admin
	Role     string
}

// IsSuperAdmin reports whether the caller bypasses tenant scoping.
func (c Caller) IsSuperAdmin() bool {
	return c.Role == model.RoleSuperAdmin
}

// Operation names a guarded action. One constant per endpoint-level decision.
type Operation string

const (
	OpListTenants  Operation = "tenant.list"
	OpUpdateTenant Operation = "tenant.update"
	OpViewTenant   Operation = "tenant.view"
	OpViewStats    Operation = "tenant.stats"

	OpCreateUser Operation = "user.create"
	OpListUsers  Operation = "user.list"
	OpUpdateUser Operation = "user.update"
	OpDeleteUser Operation = "user.delete"

	OpCreateProject Operation = "project.create"
	OpViewProject   Operation = "project.view"
	OpUpdateProject Operation = "project.update"
	OpDeleteProject Operation = "project.delete"

	OpCreateTask Operation = "task.create"
	OpViewTask   Operation = "task.view"
	OpUpdateTask Operation = "task.update"
	OpDeleteTask Operation = "task.delete"

	OpViewAuditLogs Operation = "audit.view"
)

// roleRank orders roles by authority. Unknown roles rank below everything.
var roleRank = map[string]int{
	model.RoleUser:        1,
	model.RoleTenantAdmin: 2,
	model.RoleSuperAdmin:  3,
}

// minRank is the least-privileged role allowed to perform each operation.
// Platform-global operations require super_admin; user management requires
// tenant_admin; project/task work is open to every tenant member.
var minRank = map[Operation]int{
	OpListTenants:  3,
	OpUpdateTenant: 3,
	OpViewTenant:   1,
	OpViewStats:    1,

	OpCreateUser: 2,
	OpListUsers:  1,
	OpUpdateUser: 2,
	OpDeleteUser: 2,

	OpCreateProject: 1,
	OpViewProject:   1,
	OpUpdateProject: 1,
	OpDeleteProject: 1,

	OpCreateTask: 1,
	OpViewTask:   1,
	OpUpdateTask: 1,
	OpDeleteTask: 1,

	OpViewAuditLogs: 1,
}

// Allowed decides whether the caller's role may perform op. Row-level tenant
// confinement is applied separately via Scope.
func Allowed(caller Caller, op Operation) bool {
	min, ok := minRank[op]
	if !ok {
		return false
	}
	return roleRank[caller.Role] >= min
}

// Scope narrows a query to the caller's tenant. super_admin sees all rows;
// everyone else gets WHERE tenant_id = caller.TenantID, so an out-of-tenant
// id surfaces as a missing row (404), never as a Forbidden that would leak
// existence across tenants.
func Scope(db *gorm.DB, caller Caller) *gorm.DB {
	if caller.IsSuperAdmin() {
		return db
	}
	return db.Where("tenant_id = ?", caller.TenantID)
}

// ScopeColumn is Scope with an explicit column reference, for queries that
// join tables carrying their own tenant_id.
func ScopeColumn(db *gorm.DB, caller Caller, column string) *gorm.DB {
	if caller.IsSuperAdmin() {
		return db
	}
	return db.Where(column+" = ?", caller.TenantID)
}

// CheckDeleteUser enforces the self-protection rule: no caller may delete
// their own account, regardless of role.
func CheckDeleteUser(caller Caller, targetUserID uint) error {
	if caller.UserID == targetUserID {
		return ErrSelfDeletion
	}
	return nil
}
