package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"taskboard-service/internal/audit"
	"taskboard-service/internal/authz"
	"taskboard-service/internal/model"
	"taskboard-service/pkg/database"
	"taskboard-service/pkg/logger"
	"taskboard-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// taskRow is the task listing shape with the assignee's name joined in.
type taskRow struct {
	ID           uint       `json:"id"`
	ProjectID    uint       `json:"project_id"`
	TenantID     uint       `json:"tenant_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	AssignedTo   *uint      `json:"assigned_to,omitempty"`
	Priority     string     `json:"priority"`
	Status       string     `json:"status"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	CreatedBy    uint       `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	AssigneeName string     `json:"assignee_name"`
}

// parseDueDate accepts either a bare date or a full RFC 3339 timestamp.
func parseDueDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask creates a task under a project. The caller must be able to reach
// the project; the task's tenant_id is always copied from the project row,
// never taken from the request. New tasks start in todo.
func CreateTask(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTaskOperation("create")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpCreateTask) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid project ID")
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		AssignedTo  *uint  `json:"assignedTo"`
		Priority    string `json:"priority"`
		DueDate     string `json:"dueDate"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse task creation request", zap.Error(err))
		return respondError(c, http.StatusBadRequest, "invalid request")
	}
	if req.Title == "" {
		return respondError(c, http.StatusBadRequest, "title is required")
	}

	priority := req.Priority
	if priority == "" {
		priority = model.TaskPriorityMedium
	}
	if !model.ValidTaskPriority(priority) {
		return respondError(c, http.StatusBadRequest, "invalid priority")
	}

	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid due date")
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return respondError(c, http.StatusInternalServerError, "database error")
	}

	// The project lookup doubles as the access check: a project outside the
	// caller's tenant is unreachable
	var project model.Project
	result := authz.Scope(tx, caller).Where("id = ?", uint(projectID)).First(&project)
	if result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return respondError(c, http.StatusForbidden, "Access denied to this project")
		}
		log.Error("Failed to load project", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to create task")
	}

	task := model.Task{
		ProjectID:   project.ID,
		TenantID:    project.TenantID,
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		Priority:    priority,
		Status:      model.TaskStatusTodo,
		DueDate:     dueDate,
		CreatedBy:   caller.UserID,
	}
	if result := tx.Create(&task); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create task", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to create task")
	}

	err = audit.Record(tx, &task.TenantID, caller.UserID, audit.ActionCreateTask, audit.EntityTask, task.ID,
		echo.Map{"title": task.Title})
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to create task")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to create task")
	}

	log.Info("Task created",
		zap.Uint("task_id", task.ID),
		zap.Uint("project_id", task.ProjectID),
		zap.Uint("tenant_id", task.TenantID))

	return respondData(c, http.StatusCreated, "Task created successfully", task)
}

// ListProjectTasks lists a project's tasks with assignee names, newest first.
func ListProjectTasks(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTaskOperation("list")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpViewTask) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid project ID")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var tasks []taskRow
	err = authz.ScopeColumn(database.GetDB().Model(&model.Task{}), caller, "tasks.tenant_id").
		Select(`tasks.id, tasks.project_id, tasks.tenant_id, tasks.title, tasks.description,
			tasks.assigned_to, tasks.priority, tasks.status, tasks.due_date,
			tasks.created_by, tasks.created_at, tasks.updated_at,
			users.full_name AS assignee_name`).
		Joins("LEFT JOIN users ON users.id = tasks.assigned_to").
		Where("tasks.project_id = ?", uint(projectID)).
		Order("tasks.created_at DESC").
		Scan(&tasks).Error
	if err != nil {
		log.Error("Failed to list tasks", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to retrieve tasks")
	}

	return respondData(c, http.StatusOK, "", echo.Map{"tasks": tasks})
}

// UpdateTask applies a partial update to a task the caller can reach.
// Omitted fields keep their current value.
func UpdateTask(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTaskOperation("update")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpUpdateTask) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid task ID")
	}

	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		AssignedTo  *uint   `json:"assigned_to"`
		Priority    *string `json:"priority"`
		DueDate     *string `json:"due_date"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse task update request", zap.Error(err))
		return respondError(c, http.StatusBadRequest, "invalid request")
	}
	// Any status may be set from any other; only enum membership is checked
	if req.Status != nil && !model.ValidTaskStatus(*req.Status) {
		return respondError(c, http.StatusBadRequest, "invalid status")
	}
	if req.Priority != nil && !model.ValidTaskPriority(*req.Priority) {
		return respondError(c, http.StatusBadRequest, "invalid priority")
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.AssignedTo != nil {
		updates["assigned_to"] = *req.AssignedTo
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.DueDate != nil {
		dueDate, err := parseDueDate(*req.DueDate)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid due date")
		}
		updates["due_date"] = dueDate
	}
	if len(updates) == 0 {
		return respondError(c, http.StatusBadRequest, "nothing to update")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return respondError(c, http.StatusInternalServerError, "database error")
	}

	var task model.Task
	result := authz.Scope(tx, caller).Where("id = ?", uint(id)).First(&task)
	if result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return respondError(c, http.StatusNotFound, "Task not found or unauthorized")
		}
		log.Error("Failed to load task", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to update task")
	}

	if result := tx.Model(&task).Updates(updates); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to update task", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to update task")
	}

	err = audit.Record(tx, &task.TenantID, caller.UserID, audit.ActionUpdateTask, audit.EntityTask, task.ID, nil)
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update task")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update task")
	}

	log.Info("Task updated", zap.Uint("task_id", task.ID), zap.Any("changes", updates))

	return respondData(c, http.StatusOK, "Task updated successfully", task)
}

// UpdateTaskStatus is the quick Kanban column move: PATCH with just a status.
func UpdateTaskStatus(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTaskOperation("status")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpUpdateTask) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid task ID")
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request")
	}
	if !model.ValidTaskStatus(req.Status) {
		return respondError(c, http.StatusBadRequest, "invalid status")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return respondError(c, http.StatusInternalServerError, "database error")
	}

	var task model.Task
	result := authz.Scope(tx, caller).Where("id = ?", uint(id)).First(&task)
	if result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return respondError(c, http.StatusNotFound, "Task not found or access denied")
		}
		log.Error("Failed to load task", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to update task")
	}

	if result := tx.Model(&task).Update("status", req.Status); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to update task status", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to update task")
	}

	err = audit.Record(tx, &task.TenantID, caller.UserID, audit.ActionUpdateTask, audit.EntityTask, task.ID,
		echo.Map{"status": req.Status})
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update task")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update task")
	}

	log.Info("Task status updated",
		zap.Uint("task_id", task.ID),
		zap.String("status", req.Status))

	return respondData(c, http.StatusOK, "Status updated", task)
}

// DeleteTask deletes a task the caller can reach.
func DeleteTask(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTaskOperation("delete")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpDeleteTask) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid task ID")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return respondError(c, http.StatusInternalServerError, "database error")
	}

	var task model.Task
	result := authz.Scope(tx, caller).Where("id = ?", uint(id)).First(&task)
	if result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return respondError(c, http.StatusNotFound, "Task not found or unauthorized")
		}
		log.Error("Failed to load task", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to delete task")
	}

	if result := tx.Delete(&task); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete task", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to delete task")
	}

	err = audit.Record(tx, &task.TenantID, caller.UserID, audit.ActionDeleteTask, audit.EntityTask, task.ID, nil)
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to delete task")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to delete task")
	}

	log.Info("Task deleted", zap.Uint("task_id", task.ID), zap.Uint("deleted_by", caller.UserID))

	return respondData(c, http.StatusOK, "Task deleted successfully", nil)
}
