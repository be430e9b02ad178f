package model

import (
	"time"
)

// Task status values. The board allows any status to be set from any other;
// there is no enforced todo -> in_progress -> completed ordering.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

// Task priority values
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// Task belongs to a project. TenantID is a denormalized copy of the owning
// project's tenant ID, kept for fast scoping; it is always derived from the
// project row at write time and never taken from request input.
type Task struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	ProjectID   uint       `json:"project_id" gorm:"index;not null"`
	TenantID    uint       `json:"tenant_id" gorm:"index;not null"`
	Title       string     `json:"title" gorm:"type:varchar(200);not null"`
	Description string     `json:"description" gorm:"type:text"`
	AssignedTo  *uint      `json:"assigned_to,omitempty" gorm:"index"`
	Priority    string     `json:"priority" gorm:"type:varchar(10);not null;default:'medium'"`
	Status      string     `json:"status" gorm:"type:varchar(20);not null;default:'todo'"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedBy   uint       `json:"created_by" gorm:"not null"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ValidTaskStatus reports whether s is one of the known task states.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// ValidTaskPriority reports whether p is one of the known priorities.
func ValidTaskPriority(p string) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}
