// Package audit writes the append-only trail of mutating actions. Record is
// always called on the same transaction handle as the primary mutation, so
// the entry commits or rolls back with it. All entries or none.
package audit

import (
	"encoding/json"

	"taskboard-service/internal/authz"
	"taskboard-service/internal/model"

	"gorm.io/gorm"
)

// Audited actions.
const (
	ActionTenantRegistered = "TENANT_REGISTERED"
	ActionUserLogin        = "USER_LOGIN"
	ActionCreateUser       = "CREATE_USER"
	ActionUpdateUser       = "UPDATE_USER"
	ActionDeleteUser       = "DELETE_USER"
	ActionCreateProject    = "CREATE_PROJECT"
	ActionUpdateProject    = "UPDATE_PROJECT"
	ActionDeleteProject    = "DELETE_PROJECT"
	ActionCreateTask       = "CREATE_TASK"
	ActionUpdateTask       = "UPDATE_TASK"
	ActionDeleteTask       = "DELETE_TASK"
	ActionUpdateTenant     = "UPDATE_TENANT"
)

// Entity types as stored in audit_logs.entity_type.
const (
	EntityTenant  = "tenants"
	EntityUser    = "users"
	EntityProject = "projects"
	EntityTask    = "tasks"
)

// Record appends an audit entry on tx. details, if non-nil, is marshalled to
// JSON and stored in the jsonb details column.
func Record(tx *gorm.DB, tenantID *uint, userID uint, action, entityType string, entityID uint, details interface{}) error {
	entry := model.AuditLog{
		TenantID:   tenantID,
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}

	if details != nil {
		payload, err := json.Marshal(details)
		if err != nil {
			return err
		}
		entry.Details = string(payload)
	}

	return tx.Create(&entry).Error
}

// Recent returns the latest limit entries visible to the caller: everything
// for super_admin, the caller's tenant otherwise.
func Recent(db *gorm.DB, caller authz.Caller, limit int) ([]model.AuditLog, error) {
	var entries []model.AuditLog

	q := authz.Scope(db.Model(&model.AuditLog{}), caller)
	if err := q.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
