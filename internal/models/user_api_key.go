package models

import "time"

// UserAPIKey stores a user's personal provider credential for BYOK.
type UserAPIKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_api_keys_user_provider"` // Owning user.
	Provider string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_api_keys_user_provider"` // Provider tag.

	EncryptedKey string `gorm:"type:text;not null"` // Sealed credential.
	KeyHint      string `gorm:"type:varchar(16)"`   // Last characters for display.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
