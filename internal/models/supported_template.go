package models

import (
	"time"

	"gorm.io/datatypes"
)

// SupportedTemplate is a reusable prompt blueprint.
type SupportedTemplate struct {
	ID string `gorm:"type:varchar(64);primaryKey"` // Template identifier.

	Name          string         `gorm:"type:varchar(255);not null"` // Display name.
	Description   string         `gorm:"type:text"`                  // Template description.
	Structure     string         `gorm:"type:text;not null"`         // Template body with {{placeholders}}.
	DefaultParams datatypes.JSON `gorm:"type:jsonb"`                 // Default parameter values.
	TierAccess    string         `gorm:"type:varchar(64)"`           // Minimum template_access level.

	SortOrder int  `gorm:"not null;default:0"`    // Display ordering weight.
	IsActive  bool `gorm:"not null;default:true"` // Whether the template is offered.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
