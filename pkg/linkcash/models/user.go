package models

import (
	"time"

	"gorm.io/gorm"
)

// SystemRole represents a user's system-wide role
type SystemRole string

const (
	SystemRoleAdmin SystemRole = "admin"
	SystemRoleUser  SystemRole = "user"
)

// User is a local account. Users authenticated through an external
// identity provider may own links without ever having a User row.
type User struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id" validate:"required"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	PasswordHash string         `json:"-"`
	Name         string         `gorm:"not null" json:"name" validate:"required,max=255"`
	SystemRole   SystemRole     `gorm:"type:varchar(20);not null" json:"system_role" validate:"oneof=admin user"`
}
