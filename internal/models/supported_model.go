package models

import "time"

// SupportedModel describes one callable LLM exposed in the catalog.
type SupportedModel struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ModelID     string `gorm:"type:varchar(128);not null;uniqueIndex"` // Upstream model identifier.
	Name        string `gorm:"type:varchar(255);not null"`             // Display name.
	Provider    string `gorm:"type:varchar(64);not null;index"`        // Provider tag.
	Description string `gorm:"type:text"`                              // Catalog description.
	Endpoint    string `gorm:"type:text;not null"`                     // Invocation endpoint URL.
	EnvKey      string `gorm:"type:varchar(128)"`                      // Env name of the platform credential.

	SortOrder int  `gorm:"not null;default:0"`          // Display ordering weight.
	IsActive  bool `gorm:"not null;default:true;index"` // Whether the model can be invoked.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the catalog table name.
func (SupportedModel) TableName() string { return "supported_ai_models" }
