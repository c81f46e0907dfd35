package models

import "time"

// BillingWebhookEvent records processed payment-provider deliveries.
type BillingWebhookEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Provider        string     `gorm:"type:varchar(32);not null;default:'stripe'"` // Payment provider.
	EventID         string     `gorm:"type:varchar(255);not null;uniqueIndex"`     // Provider event ID.
	EventType       string     `gorm:"type:varchar(128);not null;index"`           // Provider event type.
	PayloadHash     string     `gorm:"type:varchar(64)"`                           // SHA-256 of the raw body.
	ProcessedAt     *time.Time // Completion timestamp.
	ProcessingError string     `gorm:"type:text"` // Last apply error, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Receipt timestamp.
}
