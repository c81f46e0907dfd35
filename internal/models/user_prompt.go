package models

import "time"

// UserPrompt is an immutable generation history row.
type UserPrompt struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	UserID       string `gorm:"type:varchar(64);not null;index"` // Owning user.
	TemplateType string `gorm:"type:varchar(128);not null"`      // Template identifier, "custom" when none.
	ModelID      string `gorm:"type:varchar(128)"`               // Model used for the generation.
	InputPrompt  string `gorm:"type:text;not null"`              // Topic supplied by the user.
	OutputText   string `gorm:"type:text;not null"`              // Generated content.
	PlatformKey  bool   `gorm:"not null;default:false"`          // Whether the platform credential was used.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
