package handler

import (
	"net/http"
	"time"

	"taskboard-service/internal/audit"
	"taskboard-service/internal/authz"
	"taskboard-service/internal/model"
	"taskboard-service/pkg/database"
	"taskboard-service/pkg/jwtutil"
	"taskboard-service/pkg/logger"
	"taskboard-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var jwtUtil *jwtutil.JWTUtil

// Initialize wires the JWT utility into the handler package
func Initialize(j *jwtutil.JWTUtil) {
	jwtUtil = j
}

// RegisterTenant creates a tenant together with its first tenant_admin user
// and the TENANT_REGISTERED audit entry, all in one transaction. A duplicate
// subdomain or email rolls back all three.
func RegisterTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterTenantCounter.Inc()

	var req struct {
		TenantName    string `json:"tenantName"`
		Subdomain     string `json:"subdomain"`
		AdminEmail    string `json:"adminEmail"`
		AdminPassword string `json:"adminPassword"`
		AdminFullName string `json:"adminFullName"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return respondError(c, http.StatusBadRequest, "invalid request")
	}

	if req.TenantName == "" || req.Subdomain == "" || req.AdminEmail == "" || req.AdminPassword == "" {
		log.Error("Incomplete tenant registration data",
			zap.String("tenant_name", req.TenantName),
			zap.String("subdomain", req.Subdomain))
		prometheus.RecordAuthError("incomplete_registration")
		return respondError(c, http.StatusBadRequest, "tenantName, subdomain, adminEmail and adminPassword are required")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "registration failed")
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	// Begin transaction
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		prometheus.RecordAuthError("database_error")
		return respondError(c, http.StatusInternalServerError, "database error")
	}

	tenant := model.Tenant{
		Name:             req.TenantName,
		Subdomain:        req.Subdomain,
		SubscriptionPlan: "pro",
		Status:           model.TenantStatusActive,
	}
	if result := tx.Create(&tenant); result.Error != nil {
		tx.Rollback()
		if isUniqueViolation(result.Error) {
			log.Warn("Subdomain already registered", zap.String("subdomain", req.Subdomain))
			return respondError(c, http.StatusConflict, "Subdomain already exists")
		}
		log.Error("Failed to create tenant", zap.Error(result.Error))
		prometheus.RecordAuthError("tenant_creation_failed")
		return respondError(c, http.StatusInternalServerError, "registration failed")
	}

	admin := model.User{
		TenantID:     &tenant.ID,
		Email:        req.AdminEmail,
		PasswordHash: string(hashedPassword),
		FullName:     req.AdminFullName,
		Role:         model.RoleTenantAdmin,
		IsActive:     true,
	}
	if result := tx.Create(&admin); result.Error != nil {
		tx.Rollback()
		if isUniqueViolation(result.Error) {
			log.Warn("Admin email already registered", zap.String("email", req.AdminEmail))
			return respondError(c, http.StatusConflict, "Email already exists in this tenant.")
		}
		log.Error("Failed to create admin user", zap.Error(result.Error))
		prometheus.RecordAuthError("user_creation_failed")
		return respondError(c, http.StatusInternalServerError, "registration failed")
	}

	err = audit.Record(tx, &tenant.ID, admin.ID, audit.ActionTenantRegistered, audit.EntityTenant, tenant.ID,
		echo.Map{"name": tenant.Name, "subdomain": tenant.Subdomain})
	if err != nil {
		tx.Rollback()
		log.Error("Failed to write audit entry", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "registration failed")
	}

	if err := tx.Commit().Error; err != nil {
		if isUniqueViolation(err) {
			return respondError(c, http.StatusConflict, "Subdomain already exists")
		}
		log.Error("Failed to commit transaction", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "registration failed")
	}

	log.Info("Tenant registered",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("subdomain", tenant.Subdomain),
		zap.Uint("admin_id", admin.ID))

	return respondData(c, http.StatusCreated, "Registered successfully", nil)
}

// Login verifies credentials and issues a session token. Non-super-admin
// users must supply the subdomain of their tenant, and the tenant must be
// active.
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		TenantSubdomain string `json:"tenantSubdomain"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return respondError(c, http.StatusBadRequest, "invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var user model.User
	if result := database.GetDB().Where("email = ?", req.Email).First(&user); result.Error != nil {
		log.Warn("User not found", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return respondError(c, http.StatusUnauthorized, "User not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return respondError(c, http.StatusUnauthorized, "Incorrect password")
	}

	// Non-super-admin logins are bound to a tenant: the supplied subdomain
	// must match and the tenant must be active
	if user.Role != model.RoleSuperAdmin {
		var tenant model.Tenant
		if user.TenantID == nil {
			log.Error("Tenant-bound user has no tenant", zap.Uint("user_id", user.ID))
			return respondError(c, http.StatusInternalServerError, "login failed")
		}
		if result := database.GetDB().First(&tenant, *user.TenantID); result.Error != nil {
			log.Error("Failed to load tenant", zap.Error(result.Error))
			return respondError(c, http.StatusInternalServerError, "login failed")
		}
		if tenant.Subdomain != req.TenantSubdomain {
			log.Warn("Subdomain mismatch",
				zap.String("email", req.Email),
				zap.String("subdomain", req.TenantSubdomain))
			prometheus.RecordAuthError("invalid_subdomain")
			return respondError(c, http.StatusUnauthorized, "Invalid subdomain")
		}
		if tenant.Status != model.TenantStatusActive {
			log.Warn("Login against inactive tenant", zap.Uint("tenant_id", tenant.ID))
			prometheus.RecordAuthError("tenant_inactive")
			return respondError(c, http.StatusForbidden, "Tenant inactive")
		}
	}

	token, err := jwtUtil.GenerateToken(user.Email, user.ID, user.TenantID, user.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return respondError(c, http.StatusInternalServerError, "token error")
	}
	prometheus.IncreaseActiveTokens()

	// Tenant-bound logins leave an audit entry; super_admin has no tenant row
	// to attribute it to
	if user.TenantID != nil {
		err := audit.Record(database.GetDB(), user.TenantID, user.ID, audit.ActionUserLogin, audit.EntityUser, user.ID, nil)
		if err != nil {
			log.Error("Failed to record login audit entry", zap.Error(err))
			return respondError(c, http.StatusInternalServerError, "login failed")
		}
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.String("role", user.Role))

	return respondData(c, http.StatusOK, "", echo.Map{
		"user": echo.Map{
			"id":        user.ID,
			"email":     user.Email,
			"role":      user.Role,
			"tenantId":  user.TenantID,
			"full_name": user.FullName,
		},
		"token": token,
	})
}

// Me returns the caller's claims as decoded from the session token.
func Me(c echo.Context) error {
	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}

	return respondData(c, http.StatusOK, "", echo.Map{
		"userId":   caller.UserID,
		"email":    caller.Email,
		"tenantId": caller.TenantID,
		"role":     caller.Role,
	})
}

// Logout acknowledges the logout. Tokens are stateless, so there is nothing
// to revoke server-side.
func Logout(c echo.Context) error {
	prometheus.DecreaseActiveTokens()
	return respondData(c, http.StatusOK, "Logged out successfully", nil)
}

// AuditLogs returns the 5 most recent audit entries, tenant-scoped unless the
// caller is super_admin.
func AuditLogs(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := currentCaller(c)
	if !ok {
		return respondError(c, http.StatusUnauthorized, "authentication required")
	}
	if !authz.Allowed(caller, authz.OpViewAuditLogs) {
		return respondError(c, http.StatusForbidden, "Forbidden: Insufficient permissions")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	logs, err := audit.Recent(database.GetDB(), caller, 5)
	if err != nil {
		log.Error("Failed to retrieve audit logs", zap.Error(err))
		return respondError(c, http.StatusInternalServerError, "failed to retrieve audit logs")
	}

	return respondData(c, http.StatusOK, "", echo.Map{"logs": logs})
}

// loadScopedUser fetches a user visible to the caller. Out-of-tenant ids come
// back as gorm.ErrRecordNotFound.
func loadScopedUser(db *gorm.DB, caller authz.Caller, id uint) (*model.User, error) {
	var user model.User
	q := authz.Scope(db, caller)
	if err := q.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
