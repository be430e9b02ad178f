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
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// userRow is the user listing shape for super_admin, with the owning tenant's
// name joined in.
type userRow struct {
	ID         uint      `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Role       string    `json:"role"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	TenantName string    `json:"tenant_name"`
}

// CreateUser adds a user to a tenant, enforcing the plan's max_users limit
// inside the same transaction as the insert. tenant_admin creates into their
// own tenant; super_admin must name a target tenant and remains subject to
// that tenant's limit.
func CreateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("create")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpCreateUser) {
		prometheus.RecordAuthError("forbidden")
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FullName  string `json:"fullName"`
		FullName2 string `json:"full_name"` // accepted alias
		Role      string `json:"role"`
		TenantID  *uint  `json:"tenantId"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user creation request", zap.Error(err))
		return respondError(c, http.StatusBadRequest, "invalid request")
	}

	fullName := req.FullName
	if fullName == "" {
		fullName = req.FullName2
	}
	if fullName == "" || req.Email == "" || req.Password == "" {
		return respondError(c, http.StatusBadRequest, "Full Name, Email, and Password are required.")
	}

	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleTenantAdmin {
		return respondError(c, http.StatusBadRequest, "invalid role")
	}

	// super_admin has no tenant of its own, so the target must be explicit
	targetTenantID := caller.TenantID
	if caller.IsSuperAdmin() {
		if req.TenantID == nil {
			return respondError(c, http.StatusBadRequest, "Super Admin must specify a tenantId to add a user.")
		}
		targetTenantID = req.TenantID
	}
	if targetTenantID == nil {
		return respondError(c, http.StatusBadRequest, "tenant context required")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "Internal server error")
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return respondError(c, http.StatusInternalServerError, "database error")
	}

	if err := quota.CheckUserCapacity(tx, *targetTenantID); err != nil {
		tx.Rollback()
		switch {
		case errors.Is(err, quota.ErrTenantNotFound):
			return respondError(c, http.StatusNotFound, "Tenant not found")
		case errors.Is(err, quota.ErrUserLimitReached):
			prometheus.RecordQuotaDenied("users")
			log.Warn("User limit reached", zap.Uint("tenant_id", *targetTenantID))
			return respondError(c, http.StatusForbidden, "Subscription limit reached for this tenant.")
		default:
			log.Error("Capacity check failed", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "Internal server error")
		}
	}

	user := model.User{
		TenantID:     targetTenantID,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		FullName:     fullName,
		Role:         role,
		IsActive:     true,
	}
	if result := tx.Create(&user); result.Error != nil {
		tx.Rollback()
		if isUniqueViolation(result.Error) {
			return respondError(c, http.StatusConflict, "Email already exists in this tenant.")
		}
		log.Error("Failed to create user", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "Internal server error")
	}

	err = audit.Record(tx, targetTenantID, caller.UserID, audit.ActionCreateUser, audit.EntityUser, user.ID,
		echo.Map{"email": user.Email})
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "Internal server error")
	}

	if err := tx.Commit().Error; err != nil {
		if isUniqueViolation(err) {
			return respondError(c, http.StatusConflict, "Email already exists in this tenant.")
		}
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "Internal server error")
	}

	log.Info("User created",
		zap.Uint("user_id", user.ID),
		zap.String("email", user.Email),
		zap.Uint("tenant_id", *targetTenantID))

	return respondData(c, http.StatusCreated, "User created successfully", echo.Map{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
	})
}

// ListUsers lists users. super_admin sees every user on the platform with the
// tenant name joined in; everyone else sees only their own tenant.
func ListUsers(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("list")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpListUsers) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	if caller.IsSuperAdmin() {
		var users []userRow
		err := database.GetDB().Model(&model.User{}).
			Select("users.id, users.email, users.full_name, users.role, users.is_active, users.created_at, tenants.name AS tenant_name").
			Joins("LEFT JOIN tenants ON tenants.id = users.tenant_id").
			Order("users.created_at DESC").
			Scan(&users).Error
		if err != nil {
			log.Error("Failed to list users", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "failed to retrieve users")
		}
		return respondData(c, http.StatusOK, "Users retrieved successfully", echo.Map{"users": users})
	}

	var users []model.User
	err := authz.Scope(database.GetDB(), caller).
		Order("created_at DESC").
		Find(&users).Error
	if err != nil {
		log.Error("Failed to list users", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to retrieve users")
	}

	return respondData(c, http.StatusOK, "Users retrieved successfully", echo.Map{"users": users})
}

// UpdateUser applies a partial update to a user in the caller's tenant.
// Omitted fields keep their current value. An out-of-tenant id is a 404.
func UpdateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("update")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpUpdateUser) {
		prometheus.RecordAuthError("forbidden")
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid user ID")
	}

	var req struct {
		FullName *string `json:"fullName"`
		Role     *string `json:"role"`
		IsActive *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user update request", zap.Error(err))
		return respondError(c, http.StatusBadRequest, "invalid request")
	}
	if req.Role != nil && *req.Role != model.RoleUser && *req.Role != model.RoleTenantAdmin {
		return respondError(c, http.StatusBadRequest, "invalid role")
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
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

	user, err := loadScopedUser(tx, caller, uint(id))
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, http.StatusNotFound, "User not found")
		}
		log.Error("Failed to load user", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update user")
	}

	if result := tx.Model(user).Updates(updates); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to update user", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to update user")
	}

	err = audit.Record(tx, user.TenantID, caller.UserID, audit.ActionUpdateUser, audit.EntityUser, user.ID, updates)
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update user")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to update user")
	}

	log.Info("User updated", zap.Uint("user_id", user.ID), zap.Any("changes", updates))

	return respondData(c, http.StatusOK, "", echo.Map{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
	})
}

// DeleteUser removes a user. Self-deletion is rejected for every role, and
// non-super-admin callers can only reach users in their own tenant.
func DeleteUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("delete")

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpDeleteUser) {
		prometheus.RecordAuthError("forbidden")
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid user ID")
	}

	if err := authz.CheckDeleteUser(caller, uint(id)); err != nil {
		log.Warn("Self-deletion attempt", zap.Uint("user_id", caller.UserID))
		return respondError(c, http.StatusBadRequest, "Cannot delete self")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return respondError(c, http.StatusInternalServerError, "database error")
	}

	user, err := loadScopedUser(tx, caller, uint(id))
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, http.StatusNotFound, "User not found or access denied")
		}
		log.Error("Failed to load user", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to delete user")
	}

	if result := tx.Delete(user); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to delete user", zap.Error(result.Error))
		return respondError(c, http.StatusInternalServerError, "failed to delete user")
	}

	err = audit.Record(tx, user.TenantID, caller.UserID, audit.ActionDeleteUser, audit.EntityUser, user.ID,
		echo.Map{"email": user.Email})
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to delete user")
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to delete user")
	}

	log.Info("User deleted", zap.Uint("user_id", user.ID), zap.Uint("deleted_by", caller.UserID))

	return respondData(c, http.StatusOK, "User deleted successfully", nil)
}
