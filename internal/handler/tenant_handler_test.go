package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTenantsForbiddenForTenantAdmin(t *testing.T) {
	caller := tenantAdminCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{})

	require.NoError(t, ListTenants(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decodeResponse(t, rec).Message)
}

func TestListTenantsSuperAdmin(t *testing.T) {
	mock := setupMockDB(t)

	rows := sqlmock.NewRows([]string{
		"id", "name", "subdomain", "subscription_plan", "status",
		"max_users", "max_projects", "created_at", "total_users", "total_projects",
	}).
		AddRow(2, "Globex", "globex", "pro", "active", 5, 10, time.Now(), 3, 2).
		AddRow(1, "Acme", "acme", "pro", "inactive", 5, 10, time.Now(), 5, 7)
	mock.ExpectQuery(`SELECT .* FROM "tenants"`).
		WillReturnRows(rows)

	caller := superAdminCaller()
	c, rec := newHandlerContext(t, &caller, requestOptions{})

	require.NoError(t, ListTenants(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	tenants, ok := data["tenants"].([]interface{})
	require.True(t, ok)
	require.Len(t, tenants, 2)

	first, ok := tenants[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Globex", first["name"])
	assert.Equal(t, float64(3), first["total_users"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTenantForbiddenForTenantAdmin(t *testing.T) {
	caller := tenantAdminCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPut,
		body:   `{"status":"inactive"}`,
		params: map[string]string{"id": "1"},
	})

	require.NoError(t, UpdateTenant(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateTenantInvalidStatus(t *testing.T) {
	caller := superAdminCaller()
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPut,
		body:   `{"status":"suspended"}`,
		params: map[string]string{"id": "1"},
	})

	require.NoError(t, UpdateTenant(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTenantNotFound(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tenants"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	caller := superAdminCaller()
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPut,
		body:   `{"status":"inactive"}`,
		params: map[string]string{"id": "99"},
	})

	require.NoError(t, UpdateTenant(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Tenant not found", decodeResponse(t, rec).Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTenantSuccess(t *testing.T) {
	mock := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "name", "subdomain", "subscription_plan", "status", "max_users", "max_projects"}).
		AddRow(1, "Acme", "acme", "pro", "active", 5, 10)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tenants"`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "tenants" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectCommit()

	caller := superAdminCaller()
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPut,
		body:   `{"status":"inactive"}`,
		params: map[string]string{"id": "1"},
	})

	require.NoError(t, UpdateTenant(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "inactive", data["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMyTenantWithoutTenant(t *testing.T) {
	caller := superAdminCaller()
	c, rec := newHandlerContext(t, &caller, requestOptions{})

	require.NoError(t, MyTenant(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Tenant not found", decodeResponse(t, rec).Message)
}

func TestMyTenantSuccess(t *testing.T) {
	mock := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "name", "subdomain", "subscription_plan", "status", "max_users", "max_projects"}).
		AddRow(1, "Acme", "acme", "pro", "active", 5, 10)
	mock.ExpectQuery(`SELECT \* FROM "tenants"`).
		WillReturnRows(rows)

	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{})

	require.NoError(t, MyTenant(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "acme", data["subdomain"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardStatsTenantScoped(t *testing.T) {
	mock := setupMockDB(t)

	tenantRow := sqlmock.NewRows([]string{"id", "name", "subdomain", "subscription_plan", "status", "max_users", "max_projects"}).
		AddRow(1, "Acme", "acme", "pro", "active", 5, 10)
	mock.ExpectQuery(`SELECT \* FROM "tenants"`).
		WillReturnRows(tenantRow)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "projects"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT \* FROM "audit_logs" WHERE tenant_id =`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "action", "entity_type", "entity_id", "created_at"}).
			AddRow(1, 1, 2, "CREATE_PROJECT", "projects", 4, time.Now()))

	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{})

	require.NoError(t, DashboardStats(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)

	stats, ok := data["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(4), stats["total_projects"])
	assert.Equal(t, float64(12), stats["active_tasks"])
	assert.Equal(t, float64(3), stats["total_users"])
	assert.Equal(t, "pro", stats["plan_name"])
	assert.Equal(t, float64(5), stats["max_users"])

	activity, ok := data["activity"].([]interface{})
	require.True(t, ok)
	assert.Len(t, activity, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardStatsSuperAdmin(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "projects"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(40))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "action", "entity_type", "entity_id", "created_at"}))

	caller := superAdminCaller()
	c, rec := newHandlerContext(t, &caller, requestOptions{})

	require.NoError(t, DashboardStats(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)

	stats, ok := data["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "System Wide", stats["plan_name"])
	assert.Equal(t, "Unlimited", stats["max_users"])
	assert.Equal(t, float64(40), stats["total_projects"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
