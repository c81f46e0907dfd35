package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promptarchitect/server/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Subscription loads the user's subscription with its tier preloaded.
func (s *Store) Subscription(ctx context.Context, userID string) (*models.UserSubscription, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	var row models.UserSubscription
	errFind := s.db.WithContext(ctx).
		Preload("Tier").
		Where("user_id = ?", userID).
		Take(&row).Error
	if errFind != nil {
		return nil, notFound(errFind, "load subscription")
	}
	return &row, nil
}

// EnsureSubscription returns the user's subscription, creating one on freeTierID when missing.
// ErrNotFound is returned when the bound tier does not exist.
func (s *Store) EnsureSubscription(ctx context.Context, userID, freeTierID string) (*models.UserSubscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrNotFound
	}
	sub, errLoad := s.Subscription(ctx, userID)
	if errLoad == nil {
		if sub.Tier == nil {
			return nil, ErrNotFound
		}
		return sub, nil
	}
	if !errors.Is(errLoad, ErrNotFound) {
		return nil, errLoad
	}

	tier, errTier := s.Tier(ctx, freeTierID)
	if errTier != nil {
		return nil, errTier
	}

	row := models.UserSubscription{
		UserID:            userID,
		TierID:            tier.ID,
		Status:            models.SubscriptionStatusActive,
		MonthlyQuotaLimit: tier.PromptsIncluded(),
	}
	if errCreate := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("store: provision subscription: %w", errCreate)
	}
	return s.Subscription(ctx, userID)
}

// IncrementUsage adds one platform-key generation unless the quota is already reached.
// It reports whether the counter moved.
func IncrementUsage(ctx context.Context, tx *gorm.DB, userID string, quota int) (bool, error) {
	if tx == nil {
		return false, errors.New("nil tx")
	}
	res := tx.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("user_id = ? AND monthly_usage_count < ?", userID, quota).
		Updates(map[string]any{
			"monthly_usage_count": gorm.Expr("monthly_usage_count + ?", 1),
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ResetUsage zeroes the monthly usage counter of a user.
func (s *Store) ResetUsage(ctx context.Context, userID string) error {
	if errReady := s.ready(); errReady != nil {
		return errReady
	}
	res := s.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"monthly_usage_count": 0, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("store: reset usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
