package authz

import (
	"testing"

	"taskboard-service/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func uintPtr(v uint) *uint {
	return &v
}

func TestAllowed(t *testing.T) {
	superAdmin := Caller{UserID: 1, Role: model.RoleSuperAdmin}
	tenantAdmin := Caller{UserID: 2, TenantID: uintPtr(10), Role: model.RoleTenantAdmin}
	member := Caller{UserID: 3, TenantID: uintPtr(10), Role: model.RoleUser}

	tests := []struct {
		name    string
		caller  Caller
		op      Operation
		allowed bool
	}{
		{"super admin lists tenants", superAdmin, OpListTenants, true},
		{"super admin updates tenants", superAdmin, OpUpdateTenant, true},
		{"super admin creates users", superAdmin, OpCreateUser, true},
		{"tenant admin cannot list tenants", tenantAdmin, OpListTenants, false},
		{"tenant admin cannot update tenants", tenantAdmin, OpUpdateTenant, false},
		{"tenant admin creates users", tenantAdmin, OpCreateUser, true},
		{"tenant admin deletes users", tenantAdmin, OpDeleteUser, true},
		{"member cannot create users", member, OpCreateUser, false},
		{"member cannot delete users", member, OpDeleteUser, false},
		{"member creates projects", member, OpCreateProject, true},
		{"member creates tasks", member, OpCreateTask, true},
		{"member views stats", member, OpViewStats, true},
		{"member views audit logs", member, OpViewAuditLogs, true},
		{"unknown role denied everything", Caller{Role: "intern"}, OpViewTask, false},
		{"unknown operation denied", superAdmin, Operation("tenant.obliterate"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, Allowed(tt.caller, tt.op))
		})
	}
}

func TestIsSuperAdmin(t *testing.T) {
	assert.True(t, Caller{Role: model.RoleSuperAdmin}.IsSuperAdmin())
	assert.False(t, Caller{Role: model.RoleTenantAdmin}.IsSuperAdmin())
	assert.False(t, Caller{Role: model.RoleUser}.IsSuperAdmin())
}

func TestCheckDeleteUser(t *testing.T) {
	caller := Caller{UserID: 7, Role: model.RoleTenantAdmin}

	assert.NoError(t, CheckDeleteUser(caller, 8))
	assert.ErrorIs(t, CheckDeleteUser(caller, 7), ErrSelfDeletion)

	// Even super_admin cannot delete itself
	super := Caller{UserID: 1, Role: model.RoleSuperAdmin}
	assert.ErrorIs(t, CheckDeleteUser(super, 1), ErrSelfDeletion)
}

func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{DryRun: true})
	require.NoError(t, err)

	return gdb
}

func TestScopeFiltersByTenant(t *testing.T) {
	gdb := newDryRunDB(t)
	caller := Caller{UserID: 3, TenantID: uintPtr(42), Role: model.RoleUser}

	var users []model.User
	stmt := Scope(gdb, caller).Find(&users).Statement

	assert.Contains(t, stmt.SQL.String(), "tenant_id = $")
	require.Len(t, stmt.Vars, 1)
	assert.Equal(t, uintPtr(42), stmt.Vars[0])
}

func TestScopeSuperAdminSeesEverything(t *testing.T) {
	gdb := newDryRunDB(t)
	caller := Caller{UserID: 1, Role: model.RoleSuperAdmin}

	var users []model.User
	stmt := Scope(gdb, caller).Find(&users).Statement

	assert.NotContains(t, stmt.SQL.String(), "tenant_id")
	assert.Empty(t, stmt.Vars)
}

func TestScopeColumn(t *testing.T) {
	gdb := newDryRunDB(t)
	caller := Caller{UserID: 3, TenantID: uintPtr(9), Role: model.RoleTenantAdmin}

	var tasks []model.Task
	stmt := ScopeColumn(gdb.Model(&model.Task{}), caller, "tasks.tenant_id").Find(&tasks).Statement

	assert.Contains(t, stmt.SQL.String(), "tasks.tenant_id = $")
	require.Len(t, stmt.Vars, 1)
	assert.Equal(t, uintPtr(9), stmt.Vars[0])
}
