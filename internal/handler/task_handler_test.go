package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTaskRequiresTitle(t *testing.T) {
	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPost,
		body:   `{"description":"no title"}`,
		params: map[string]string{"id": "4"},
	})

	require.NoError(t, CreateTask(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskInvalidPriority(t *testing.T) {
	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPost,
		body:   `{"title":"Ship it","priority":"urgent"}`,
		params: map[string]string{"id": "4"},
	})

	require.NoError(t, CreateTask(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskInvalidDueDate(t *testing.T) {
	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPost,
		body:   `{"title":"Ship it","dueDate":"next tuesday"}`,
		params: map[string]string{"id": "4"},
	})

	require.NoError(t, CreateTask(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskInaccessibleProject(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "projects" WHERE tenant_id =`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPost,
		body:   `{"title":"Ship it"}`,
		params: map[string]string{"id": "99"},
	})

	require.NoError(t, CreateTask(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied to this project", decodeResponse(t, rec).Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTaskSuccess(t *testing.T) {
	mock := setupMockDB(t)

	projectRows := sqlmock.NewRows([]string{"id", "tenant_id", "name", "status", "created_by"}).
		AddRow(4, 1, "Launch", "active", 3)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "projects" WHERE tenant_id =`).
		WillReturnRows(projectRows)
	mock.ExpectQuery(`INSERT INTO "tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPost,
		body:   `{"title":"Ship it","priority":"high","dueDate":"2026-09-15"}`,
		params: map[string]string{"id": "4"},
	})

	require.NoError(t, CreateTask(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(11), data["id"])
	assert.Equal(t, "Ship it", data["title"])
	assert.Equal(t, "todo", data["status"])
	// tenant_id comes from the project row, not the request
	assert.Equal(t, float64(1), data["tenant_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskStatusInvalidStatus(t *testing.T) {
	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPatch,
		body:   `{"status":"done"}`,
		params: map[string]string{"id": "11"},
	})

	require.NoError(t, UpdateTaskStatus(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTaskStatusNotFound(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tasks" WHERE tenant_id =`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPatch,
		body:   `{"status":"completed"}`,
		params: map[string]string{"id": "99"},
	})

	require.NoError(t, UpdateTaskStatus(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Task not found or access denied", decodeResponse(t, rec).Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func taskRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "project_id", "tenant_id", "title", "priority", "status", "created_by", "created_at"}).
		AddRow(11, 4, 1, "Ship it", "high", "todo", 3, time.Now())
}

func TestUpdateTaskStatusSuccess(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tasks" WHERE tenant_id =`).
		WillReturnRows(taskRows())
	mock.ExpectExec(`UPDATE "tasks" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
	mock.ExpectCommit()

	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPatch,
		body:   `{"status":"in_progress"}`,
		params: map[string]string{"id": "11"},
	})

	require.NoError(t, UpdateTaskStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Status updated", decodeResponse(t, rec).Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskNothingToUpdate(t *testing.T) {
	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPut,
		body:   `{}`,
		params: map[string]string{"id": "11"},
	})

	require.NoError(t, UpdateTask(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTaskNotFound(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tasks" WHERE tenant_id =`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodPut,
		body:   `{"title":"Renamed"}`,
		params: map[string]string{"id": "99"},
	})

	require.NoError(t, UpdateTask(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Task not found or unauthorized", decodeResponse(t, rec).Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTaskSuccess(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tasks" WHERE tenant_id =`).
		WillReturnRows(taskRows())
	mock.ExpectExec(`DELETE FROM "tasks"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectCommit()

	caller := memberCaller(1)
	c, rec := newHandlerContext(t, &caller, requestOptions{
		method: http.MethodDelete,
		params: map[string]string{"id": "11"},
	})

	require.NoError(t, DeleteTask(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Task deleted successfully", decodeResponse(t, rec).Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}
