package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// FreeTierID is the tier every user falls back to without a paid subscription.
const FreeTierID = "free"

// TierFeatures is the JSON feature bundle stored on a tier.
type TierFeatures struct {
	PromptsIncluded *int   `json:"prompts_included,omitempty"`
	TokensIncluded  int    `json:"tokens_included,omitempty"`
	BYOKEnabled     bool   `json:"byok_enabled"`
	JSONExport      bool   `json:"json_export,omitempty"`
	TemplateAccess  string `json:"template_access,omitempty"`
	VariationsLimit int    `json:"variations_limit,omitempty"`
	RateLimit       int    `json:"rate_limit,omitempty"`
}

// SubscriptionTier represents an entitlement bundle that users subscribe to.
type SubscriptionTier struct {
	ID string `gorm:"type:varchar(64);primaryKey"` // Tier identifier, e.g. "free".

	Name         string `gorm:"type:varchar(255);not null"`    // Tier name.
	Description  string `gorm:"type:text"`                     // Tier description.
	MonthlyQuota int    `gorm:"not null;default:0"`            // Legacy quota, mirrors features.prompts_included.
	PriceInCents int64  `gorm:"not null;default:0"`            // Recurring price.
	Currency     string `gorm:"type:varchar(8);default:'usd'"` // ISO currency code.
	SortOrder    int    `gorm:"not null;default:0"`            // Display ordering weight.
	IsActive     bool   `gorm:"not null;default:true"`         // Whether the tier is offered.

	StripePriceID   *string `gorm:"type:varchar(255);uniqueIndex"` // Stripe price identifier.
	StripeProductID *string `gorm:"type:varchar(255);index"`       // Stripe product identifier.

	Features datatypes.JSON `gorm:"type:jsonb"` // TierFeatures payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// DecodeFeatures parses the features column, tolerating empty or malformed JSON.
func (t *SubscriptionTier) DecodeFeatures() TierFeatures {
	var features TierFeatures
	if t == nil || len(t.Features) == 0 {
		return features
	}
	_ = json.Unmarshal(t.Features, &features)
	return features
}

// PromptsIncluded returns the monthly platform-key quota of the tier.
func (t *SubscriptionTier) PromptsIncluded() int {
	if t == nil {
		return 0
	}
	if features := t.DecodeFeatures(); features.PromptsIncluded != nil {
		return *features.PromptsIncluded
	}
	return t.MonthlyQuota
}

// BYOKEnabled reports whether the tier allows personal provider keys.
func (t *SubscriptionTier) BYOKEnabled() bool {
	return t.DecodeFeatures().BYOKEnabled
}
