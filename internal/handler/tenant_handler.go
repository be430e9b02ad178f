package handler

import (
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
)

// tenantOverview is a tenant row plus its aggregate counts, for the platform
// admin listing.
type tenantOverview struct {
	ID               uint      `json:"id"`
	Name             string    `json:"name"`
	Subdomain        string    `json:"subdomain"`
	SubscriptionPlan string    `json:"subscription_plan"`
	Status           string    `json:"status"`
	MaxUsers         int       `json:"max_users"`
	MaxProjects      int       `json:"max_projects"`
	CreatedAt        time.Time `json:"created_at"`
	TotalUsers       int64     `json:"total_users"`
	TotalProjects    int64     `json:"total_projects"`
}

// ListTenants lists every tenant with its user/project counts. super_admin
// only.
func ListTenants(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("list")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpListTenants) {
		prometheus.RecordAuthError("forbidden")
		return respondError(c, http.StatusForbidden, "Forbidden")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var tenants []tenantOverview
	err := database.GetDB().Model(&model.Tenant{}).
		Select(`tenants.id, tenants.name, tenants.subdomain, tenants.subscription_plan, tenants.status,
			tenants.max_users, tenants.max_projects, tenants.created_at,
			(SELECT count(*) FROM users WHERE users.tenant_id = tenants.id) AS total_users,
			(SELECT count(*) FROM projects WHERE projects.tenant_id = tenants.id) AS total_projects`).
		Order("tenants.created_at DESC").
		Scan(&tenants).Error
	if err != nil {
		log.Error("Failed to list tenants", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to retrieve tenants")
	}

	return respondData(c, http.StatusOK, "", echo.Map{"tenants": tenants})
}

// UpdateTenant updates a tenant's status and/or subscription plan. Fields
// left out of the body keep their current value. super_admin only.
func UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("update")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpUpdateTenant) {
		prometheus.RecordAuthError("forbidden")
		return respondError(c, http.StatusForbidden, "Forbidden")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid tenant ID")
	}

	var req struct {
		Status           *string `json:"status"`
		SubscriptionPlan *string `json:"subscription_plan"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant update request", zap.Error(err))
		return respondError(c, http.StatusBadRequest, "invalid request")
	}
	if req.Status != nil && *req.Status != model.TenantStatusActive && *req.Status != model.TenantStatusInactive {
		return respondError(c, http.StatusBadRequest, "invalid status")
	}

	updates := map[string]interface{}{}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.SubscriptionPlan != nil {
		updates["subscription_plan"] = *req.SubscriptionPlan
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

	var tenant model.Tenant
	if result := tx.First(&tenant, id); result.Error != nil {
		tx.Rollback()
		return respondError(c, http.StatusNotFound, "Tenant not found")
	}

	if result := tx.Model(&tenant).Updates(updates); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to update tenant", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to update tenant")
	}

	err = audit.Record(tx, &tenant.ID, caller.UserID, audit.ActionUpdateTenant, audit.EntityTenant, tenant.ID, updates)
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update tenant")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update tenant")
	}

	log.Info("Tenant updated",
		zap.Uint("tenant_id", tenant.ID),
		zap.Any("changes", updates))

	return respondData(c, http.StatusOK, "", tenant)
}

// DashboardStats returns role-dependent aggregate counts plus the most recent
// audit activity. super_admin sees platform-wide numbers; everyone else sees
// their tenant's numbers against the plan limits.
func DashboardStats(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("stats")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpViewStats) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	db := database.GetDB()

	var stats echo.Map

	if caller.IsSuperAdmin() {
		var totalProjects, activeTasks, totalUsers int64
		if err := db.Model(&model.Project{}).Count(&totalProjects).Error; err != nil {
			log.Error("Failed to count projects", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "failed to retrieve stats")
		}
		if err := db.Model(&model.Task{}).Where("status != ?", model.TaskStatusCompleted).Count(&activeTasks).Error; err != nil {
			log.Error("Failed to count tasks", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "failed to retrieve stats")
		}
		if err := db.Model(&model.User{}).Count(&totalUsers).Error; err != nil {
			log.Error("Failed to count users", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "failed to retrieve stats")
		}
		stats = echo.Map{
			"total_projects": totalProjects,
			"active_tasks":   activeTasks,
			"total_users":    totalUsers,
			"plan_name":      "System Wide",
			"max_users":      "Unlimited",
			"max_projects":   "Unlimited",
		}
	} else {
		var tenant model.Tenant
		if result := db.First(&tenant, caller.TenantID); result.Error != nil {
			log.Error("Failed to load tenant", zap.Error(result.Error))
			return respondError(c, http.StatusInternalServerError, "failed to retrieve stats")
		}
		var totalProjects, activeTasks, totalUsers int64
		if err := db.Model(&model.Project{}).Where("tenant_id = ?", tenant.ID).Count(&totalProjects).Error; err != nil {
			log.Error("Failed to count projects", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "failed to retrieve stats")
		}
		if err := db.Model(&model.Task{}).Where("tenant_id = ? AND status != ?", tenant.ID, model.TaskStatusCompleted).Count(&activeTasks).Error; err != nil {
			log.Error("Failed to count tasks", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "failed to retrieve stats")
		}
		if err := db.Model(&model.User{}).Where("tenant_id = ?", tenant.ID).Count(&totalUsers).Error; err != nil {
			log.Error("Failed to count users", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "failed to retrieve stats")
		}
		stats = echo.Map{
			"total_projects": totalProjects,
			"active_tasks":   activeTasks,
			"total_users":    totalUsers,
			"plan_name":      tenant.SubscriptionPlan,
			"max_users":      tenant.MaxUsers,
			"max_projects":   tenant.MaxProjects,
		}
	}

	activity, err := audit.Recent(db, caller, 5)
	if err != nil {
		log.Error("Failed to retrieve recent activity", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to retrieve stats")
	}

	return respondData(c, http.StatusOK, "", echo.Map{
		"stats":    stats,
		"activity": activity,
	})
}

// MyTenant returns the caller's own tenant row.
func MyTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("access")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpViewTenant) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}
	if caller.TenantID == nil {
		return respondError(c, http.StatusNotFound, "Tenant not found")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, *caller.TenantID); result.Error != nil {
		log.Error("Tenant not found", zap.Error(result.Error))
		return respondError(c, http.StatusNotFound, "Tenant not found")
	}

	return respondData(c, http.StatusOK, "", tenant)
}
