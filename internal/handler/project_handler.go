package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"taskboard-service/internal/audit"
	"taskboard-service/internal/authz"
	"taskboard-service/internal/model"
	"taskboard-service/internal/quota"
	"taskboard-service/pkg/database"
	"taskboard-service/pkg/logger"
	"taskboard-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// projectRow is the project listing shape, with creator name and task
// aggregates joined in. TenantName is only populated for super_admin;
// CompletedTaskCount only for tenant-scoped listings.
type projectRow struct {
	ID                 uint      `json:"id"`
	TenantID           uint      `json:"tenant_id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Status             string    `json:"status"`
	CreatedBy          uint      `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	CreatorName        string    `json:"creator_name"`
	TaskCount          int64     `json:"task_count"`
	TenantName         string    `json:"tenant_name,omitempty"`
	CompletedTaskCount *int64    `json:"completed_task_count,omitempty"`
}

// CreateProject creates a project in the caller's tenant, enforcing the
// plan's max_projects limit inside the insert transaction. super_admin has no
// tenant to create into and is turned away.
func CreateProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordProjectOperation("create")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if caller.IsSuperAdmin() {
		return respondError(c, http.StatusBadRequest, "Super Admins cannot create projects directly. Please login as a Tenant Admin.")
	}
	if !authz.Allowed(caller, authz.OpCreateProject) || caller.TenantID == nil {
		prometheus.RecordAuthError("forbidden")
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse project creation request", zap.Error(err))
		return respondError(c, http.StatusBadRequest, "invalid request")
	}
	if req.Name == "" {
		return respondError(c, http.StatusBadRequest, "name is required")
	}

	status := req.Status
	if status == "" {
		status = model.ProjectStatusActive
	}
	if !model.ValidProjectStatus(status) {
		return respondError(c, http.StatusBadRequest, "invalid status")
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return respondError(c, http.StatusInternalServerError, "database error")
	}

	if err := quota.CheckProjectCapacity(tx, *caller.TenantID); err != nil {
		tx.Rollback()
		switch {
		case errors.Is(err, quota.ErrTenantNotFound):
			return respondError(c, http.StatusNotFound, "Tenant not found")
		case errors.Is(err, quota.ErrProjectLimitReached):
			prometheus.RecordQuotaDenied("projects")
			log.Warn("Project limit reached", zap.Uint("tenant_id", *caller.TenantID))
			return respondError(c, http.StatusForbidden, "Project limit reached for your plan.")
		default:
			log.Error("Capacity check failed", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "failed to create project")
		}
	}

	project := model.Project{
		TenantID:    *caller.TenantID,
		Name:        req.Name,
		Description: req.Description,
		Status:      status,
		CreatedBy:   caller.UserID,
	}
	if result := tx.Create(&project); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create project", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to create project")
	}

	err := audit.Record(tx, &project.TenantID, caller.UserID, audit.ActionCreateProject, audit.EntityProject, project.ID,
		echo.Map{"name": project.Name})
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to create project")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to create project")
	}

	log.Info("Project created",
		zap.Uint("project_id", project.ID),
		zap.String("name", project.Name),
		zap.Uint("tenant_id", project.TenantID))

	return respondData(c, http.StatusCreated, "Project created successfully", project)
}

// ListProjects lists projects with creator names and task aggregates.
// super_admin sees every tenant's projects with the tenant name; everyone
// else sees their own tenant's with a completed-task count per project.
func ListProjects(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordProjectOperation("list")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpViewProject) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var projects []projectRow
	var err error

	if caller.IsSuperAdmin() {
		err = database.GetDB().Model(&model.Project{}).
			Select(`projects.id, projects.tenant_id, projects.name, projects.description, projects.status,
				projects.created_by, projects.created_at, projects.updated_at,
				users.full_name AS creator_name, tenants.name AS tenant_name,
				(SELECT count(*) FROM tasks WHERE tasks.project_id = projects.id) AS task_count`).
			Joins("LEFT JOIN users ON users.id = projects.created_by").
			Joins("LEFT JOIN tenants ON tenants.id = projects.tenant_id").
			Order("projects.created_at DESC").
			Scan(&projects).Error
	} else {
		err = authz.ScopeColumn(database.GetDB().Model(&model.Project{}), caller, "projects.tenant_id").
			Select(`projects.id, projects.tenant_id, projects.name, projects.description, projects.status,
				projects.created_by, projects.created_at, projects.updated_at,
				users.full_name AS creator_name,
				(SELECT count(*) FROM tasks WHERE tasks.project_id = projects.id) AS task_count,
				(SELECT count(*) FROM tasks WHERE tasks.project_id = projects.id AND tasks.status = 'completed') AS completed_task_count`).
			Joins("LEFT JOIN users ON users.id = projects.created_by").
			Order("projects.created_at DESC").
			Scan(&projects).Error
	}
	if err != nil {
		log.Error("Failed to list projects", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to retrieve projects")
	}

	return respondData(c, http.StatusOK, "Projects retrieved successfully", echo.Map{
		"projects": projects,
		"total":    len(projects),
	})
}

// GetProject fetches a single project. Out-of-tenant ids are a 404 for
// non-super-admin callers.
func GetProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordProjectOperation("get")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpViewProject) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid project ID")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var project model.Project
	result := authz.Scope(database.GetDB(), caller).Where("id = ?", uint(id)).First(&project)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return respondError(c, http.StatusNotFound, "Project not found")
		}
		log.Error("Failed to load project", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to retrieve project")
	}

	return respondData(c, http.StatusOK, "Project retrieved successfully", project)
}

// UpdateProject applies a partial update to a project the caller can reach.
func UpdateProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordProjectOperation("update")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpUpdateProject) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid project ID")
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse project update request", zap.Error(err))
		return respondError(c, http.StatusBadRequest, "invalid request")
	}
	if req.Status != nil && !model.ValidProjectStatus(*req.Status) {
		return respondError(c, http.StatusBadRequest, "invalid status")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		updates["status"] = *req.Status
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

	var project model.Project
	result := authz.Scope(tx, caller).Where("id = ?", uint(id)).First(&project)
	if result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return respondError(c, http.StatusNotFound, "Project not found or unauthorized")
		}
		log.Error("Failed to load project", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to update project")
	}

	if result := tx.Model(&project).Updates(updates); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to update project", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to update project")
	}

	err = audit.Record(tx, &project.TenantID, caller.UserID, audit.ActionUpdateProject, audit.EntityProject, project.ID, updates)
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update project")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update project")
	}

	log.Info("Project updated", zap.Uint("project_id", project.ID), zap.Any("changes", updates))

	return respondData(c, http.StatusOK, "Project updated successfully", project)
}

// DeleteProject deletes a project the caller can reach. Its tasks go with it
// via the foreign key's ON DELETE CASCADE.
func DeleteProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordProjectOperation("delete")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpDeleteProject) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid project ID")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return respondError(c, http.StatusInternalServerError, "database error")
	}

	var project model.Project
	result := authz.Scope(tx, caller).Where("id = ?", uint(id)).First(&project)
	if result.Error != nil {
		tx.Rollback()
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return respondError(c, http.StatusNotFound, "Project not found or unauthorized")
		}
		log.Error("Failed to load project", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to delete project")
	}

	if result := tx.Delete(&project); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete project", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to delete project")
	}

	err = audit.Record(tx, &project.TenantID, caller.UserID, audit.ActionDeleteProject, audit.EntityProject, project.ID,
		echo.Map{"name": project.Name})
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to delete project")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to delete project")
	}

	log.Info("Project deleted", zap.Uint("project_id", project.ID), zap.Uint("deleted_by", caller.UserID))

	return respondData(c, http.StatusOK, "Project deleted successfully", nil)
}
