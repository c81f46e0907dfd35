package ratelimit

import (
	"context"
	"errors"

	"github.com/promptarchitect/server/internal/models"
	"gorm.io/gorm"
)

// LimitResolver picks the request limit for a user from their tier.
type LimitResolver struct {
	db           *gorm.DB
	defaultLimit int
}

// NewLimitResolver constructs a LimitResolver. defaultLimit applies when the
// user's tier sets no rate_limit feature.
func NewLimitResolver(db *gorm.DB, defaultLimit int) *LimitResolver {
	if defaultLimit < 0 {
		defaultLimit = 0
	}
	return &LimitResolver{db: db, defaultLimit: defaultLimit}
}

// ResolveLimit returns the tier rate_limit feature, else the default.
func (r *LimitResolver) ResolveLimit(ctx context.Context, userID string) (int, error) {
	if r == nil {
		return 0, nil
	}
	if r.db == nil || userID == "" {
		return r.defaultLimit, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var sub models.UserSubscription
	errFind := r.db.WithContext(ctx).
		Preload("Tier").
		Select("id", "user_id", "tier_id").
		Where("user_id = ?", userID).
		Take(&sub).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return r.defaultLimit, nil
	}
	if errFind != nil {
		return r.defaultLimit, errFind
	}
	if sub.Tier != nil {
		if limit := sub.Tier.DecodeFeatures().RateLimit; limit > 0 {
			return limit, nil
		}
	}
	return r.defaultLimit, nil
}
