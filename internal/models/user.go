package models

import "time"

const (
	// RoleTeacher identifies users that own classes, exams, and grading results.
	RoleTeacher = "teacher"
	// RoleAdmin identifies platform administrators.
	RoleAdmin = "admin"
)

// User represents an authenticated account, typically a teacher.
type User struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:255;not null" json:"name"`
	Email string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role  string `gorm:"size:32;not null;default:teacher" json:"role"`

	// ConfidenceThreshold overrides the system-wide review threshold for this
	// teacher when set. Nil means the configured default applies.
	ConfidenceThreshold *float64 `json:"confidence_threshold"`

	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
