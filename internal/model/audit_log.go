package model

import (
	"time"
)

// AuditLog is an append-only record of a mutating action. Entries are written
// inside the same transaction as the mutation they describe, so a rollback
// discards both. Rows are never updated or deleted.
//
// TenantID is nil for platform-level events performed outside any tenant.
type AuditLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TenantID   *uint     `json:"tenant_id,omitempty" gorm:"index"`
	UserID     uint      `json:"user_id" gorm:"index;not null"`
	Action     string    `json:"action" gorm:"type:varchar(50);not null"`
	EntityType string    `json:"entity_type" gorm:"type:varchar(50);not null"`
	EntityID   uint      `json:"entity_id"`
	Details    string    `json:"details,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}
