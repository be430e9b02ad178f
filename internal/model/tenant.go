package model

import (
	"time"
)

// Tenant status values
const (
	TenantStatusActive   = "active"
	TenantStatusInactive = "inactive"
)

// Tenant represents an isolated customer organization. Every project, task
// and (non-super-admin) user row is partitioned by tenant ID.
//
// Tenants are never hard-deleted; deactivation happens through Status.
type Tenant struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Name             string    `json:"name" gorm:"type:varchar(100);not null"`
	Subdomain        string    `json:"subdomain" gorm:"type:varchar(63);uniqueIndex;not null"`
	SubscriptionPlan string    `json:"subscription_plan" gorm:"type:varchar(50);not null;default:'pro'"`
	Status           string    `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	MaxUsers         int       `json:"max_users" gorm:"not null;default:5"`
	MaxProjects      int       `json:"max_projects" gorm:"not null;default:10"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
