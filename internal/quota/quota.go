// Package quota enforces per-tenant subscription plan limits. Checks must run
// inside the same transaction as the subsequent insert; the tenant row is
// locked FOR UPDATE so two concurrent creates cannot both observe a stale
// count and overshoot the limit.
package quota

import (
	"errors"

	"taskboard-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUserLimitReached means the tenant is at max_users.
	ErrUserLimitReached = errors.New("user limit reached for this plan")
	// ErrProjectLimitReached means the tenant is at max_projects.
	ErrProjectLimitReached = errors.New("project limit reached for this plan")
	// ErrTenantNotFound means the target tenant row does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
)

// CheckUserCapacity verifies the tenant can hold one more user. tx must be
// the transaction the caller will insert the user in.
func CheckUserCapacity(tx *gorm.DB, tenantID uint) error {
	tenant, err := lockTenant(tx, tenantID)
	if err != nil {
		return err
	}

	var count int64
	if err := tx.Model(&model.User{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return err
	}
	if count >= int64(tenant.MaxUsers) {
		return ErrUserLimitReached
	}
	return nil
}

// CheckProjectCapacity verifies the tenant can hold one more project. tx must
// be the transaction the caller will insert the project in.
func CheckProjectCapacity(tx *gorm.DB, tenantID uint) error {
	tenant, err := lockTenant(tx, tenantID)
	if err != nil {
		return err
	}

	var count int64
	if err := tx.Model(&model.Project{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return err
	}
	if count >= int64(tenant.MaxProjects) {
		return ErrProjectLimitReached
	}
	return nil
}

// lockTenant loads the tenant row FOR UPDATE, serializing concurrent
// count-then-insert sequences against the same tenant.
func lockTenant(tx *gorm.DB, tenantID uint) (*model.Tenant, error) {
	var tenant model.Tenant
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&tenant, tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}
