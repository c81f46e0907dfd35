package models

import "time"

// Subscription status values, passed through from the payment provider.
const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusPaused            = "paused"
)

// UserSubscription binds a user to a tier and carries the monthly usage counters.
type UserSubscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string            `gorm:"type:varchar(64);not null;uniqueIndex"` // Owning user (auth subject).
	TierID string            `gorm:"type:varchar(64);not null;index"`       // Bound tier ID.
	Tier   *SubscriptionTier `gorm:"foreignKey:TierID"`                     // Bound tier.

	StripeCustomerID     *string `gorm:"type:varchar(255);index"` // Stripe customer identifier.
	StripeSubscriptionID *string `gorm:"type:varchar(255);index"` // Stripe subscription identifier.

	Status string `gorm:"type:varchar(32);not null;default:'active'"` // Provider status.

	MonthlyUsageCount      int  `gorm:"not null;default:0"`     // Platform-key generations this period.
	MonthlyQuotaLimit      int  `gorm:"not null;default:0"`     // Tier quota copied at binding time.
	UsePersonalKeysDefault bool `gorm:"not null;default:false"` // Prefer BYOK when the request is silent.

	CurrentPeriodStart *time.Time // Billing period start.
	CurrentPeriodEnd   *time.Time // Billing period end.
	CancelAtPeriodEnd  bool       `gorm:"not null;default:false"` // Scheduled cancellation flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
