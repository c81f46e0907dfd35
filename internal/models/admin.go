package models

import (
	"time"

	"gorm.io/datatypes"
)

// Admin is an operator account for the management API.
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:varchar(255);not null;uniqueIndex"` // Login name.
	Password string `gorm:"type:text;not null"`                     // Bcrypt hash.

	TOTPSecret        string `gorm:"type:text"` // Confirmed TOTP secret.
	PendingTOTPSecret string `gorm:"type:text"` // Secret awaiting confirmation.

	Active       bool `gorm:"not null;default:true"`  // Whether the admin can sign in.
	IsSuperAdmin bool `gorm:"not null;default:false"` // First admin created at init.

	Permissions datatypes.JSON `gorm:"type:jsonb"` // Granted permission keys, ignored for super admins.

	LastLoginAt *time.Time // Last successful login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
