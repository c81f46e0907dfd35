package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promptarchitect/server/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionSource fetches a subscription from the payment provider.
type SubscriptionSource interface {
	Subscription(ctx context.Context, subscriptionID string) (SubscriptionSnapshot, error)
}

// Reconciler applies webhook events to tiers and user subscriptions.
type Reconciler struct {
	db         *gorm.DB
	source     SubscriptionSource
	freeTierID string
}

// NewReconciler constructs a Reconciler.
func NewReconciler(db *gorm.DB, source SubscriptionSource, freeTierID string) *Reconciler {
	if strings.TrimSpace(freeTierID) == "" {
		freeTierID = models.FreeTierID
	}
	return &Reconciler{db: db, source: source, freeTierID: freeTierID}
}

// Apply performs the transition for ev. Lookup misses wrap ErrLookupMiss and write nothing.
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("billing: reconciler not initialized")
	}
	switch e := ev.(type) {
	case CheckoutCompleted:
		return r.applyCheckout(ctx, e)
	case SubscriptionUpdated:
		return r.applySubscriptionUpdated(ctx, e)
	case SubscriptionDeleted:
		return r.applySubscriptionDeleted(ctx, e)
	case ProductUpdated:
		return r.applyProduct(ctx, e)
	case PriceUpdated:
		return r.applyPrice(ctx, e)
	case nil:
		return nil
	default:
		return fmt.Errorf("billing: unsupported event %T", ev)
	}
}

func (r *Reconciler) tierByPrice(ctx context.Context, priceID string) (*models.SubscriptionTier, error) {
	var tier models.SubscriptionTier
	errFind := r.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).Take(&tier).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no tier for price %s", ErrLookupMiss, priceID)
	}
	if errFind != nil {
		return nil, fmt.Errorf("billing: load tier for price %s: %w", priceID, errFind)
	}
	return &tier, nil
}

func (r *Reconciler) applyCheckout(ctx context.Context, e CheckoutCompleted) error {
	if r.source == nil {
		return fmt.Errorf("billing: no subscription source")
	}
	snapshot, errFetch := r.source.Subscription(ctx, e.SubscriptionID)
	if errFetch != nil {
		return fmt.Errorf("billing: fetch subscription %s: %w", e.SubscriptionID, errFetch)
	}
	tier, errTier := r.tierByPrice(ctx, snapshot.PriceID)
	if errTier != nil {
		return errTier
	}

	customerID := e.CustomerID
	if customerID == "" {
		customerID = snapshot.CustomerID
	}
	subscriptionID := e.SubscriptionID
	row := models.UserSubscription{
		UserID:               e.UserID,
		TierID:               tier.ID,
		StripeSubscriptionID: &subscriptionID,
		Status:               models.SubscriptionStatusActive,
		MonthlyUsageCount:    0,
		MonthlyQuotaLimit:    tier.PromptsIncluded(),
		CurrentPeriodStart:   snapshot.PeriodStart,
		CurrentPeriodEnd:     snapshot.PeriodEnd,
		CancelAtPeriodEnd:    snapshot.CancelAtPeriodEnd,
	}
	if customerID != "" {
		row.StripeCustomerID = &customerID
	}

	errUpsert := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"tier_id":                tier.ID,
			"stripe_customer_id":     row.StripeCustomerID,
			"stripe_subscription_id": row.StripeSubscriptionID,
			"status":                 row.Status,
			"monthly_usage_count":    0,
			"monthly_quota_limit":    row.MonthlyQuotaLimit,
			"current_period_start":   row.CurrentPeriodStart,
			"current_period_end":     row.CurrentPeriodEnd,
			"cancel_at_period_end":   row.CancelAtPeriodEnd,
			"updated_at":             time.Now().UTC(),
		}),
	}).Create(&row).Error
	if errUpsert != nil {
		return fmt.Errorf("billing: upsert subscription for user %s: %w", e.UserID, errUpsert)
	}
	log.WithFields(log.Fields{
		"user_id":         e.UserID,
		"tier_id":         tier.ID,
		"subscription_id": e.SubscriptionID,
	}).Info("billing: subscription provisioned")
	return nil
}

func (r *Reconciler) applySubscriptionUpdated(ctx context.Context, e SubscriptionUpdated) error {
	tier, errTier := r.tierByPrice(ctx, e.PriceID)
	if errTier != nil {
		return errTier
	}

	updates := map[string]any{
		"tier_id":              tier.ID,
		"monthly_quota_limit":  tier.PromptsIncluded(),
		"cancel_at_period_end": e.CancelAtPeriodEnd,
		"updated_at":           time.Now().UTC(),
	}
	if e.Status != "" {
		updates["status"] = e.Status
	}
	if e.PeriodEnd != nil {
		updates["current_period_end"] = *e.PeriodEnd
	}
	if e.PeriodStart != nil {
		// A period start later than the stored one is a renewal.
		updates["monthly_usage_count"] = gorm.Expr(
			"CASE WHEN current_period_start IS NOT NULL AND current_period_start < ? THEN 0 ELSE monthly_usage_count END",
			*e.PeriodStart,
		)
		updates["current_period_start"] = *e.PeriodStart
	}

	res := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("stripe_subscription_id = ?", e.SubscriptionID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("billing: update subscription %s: %w", e.SubscriptionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: no subscription %s", ErrLookupMiss, e.SubscriptionID)
	}
	return nil
}

func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, e SubscriptionDeleted) error {
	var freeTier models.SubscriptionTier
	errFind := r.db.WithContext(ctx).Where("id = ?", r.freeTierID).Take(&freeTier).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: free tier %s missing", ErrLookupMiss, r.freeTierID)
	}
	if errFind != nil {
		return fmt.Errorf("billing: load free tier: %w", errFind)
	}

	res := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("stripe_subscription_id = ?", e.SubscriptionID).
		Updates(map[string]any{
			"tier_id":                freeTier.ID,
			"status":                 models.SubscriptionStatusCanceled,
			"monthly_quota_limit":    freeTier.PromptsIncluded(),
			"stripe_subscription_id": nil,
			"cancel_at_period_end":   false,
			"updated_at":             time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("billing: cancel subscription %s: %w", e.SubscriptionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: no subscription %s", ErrLookupMiss, e.SubscriptionID)
	}
	return nil
}

func (r *Reconciler) applyProduct(ctx context.Context, e ProductUpdated) error {
	updates := map[string]any{
		"name":        e.Name,
		"description": e.Description,
		"updated_at":  time.Now().UTC(),
	}
	if len(e.Features) > 0 {
		updates["features"] = datatypes.JSON(e.Features)
	}
	res := r.db.WithContext(ctx).
		Model(&models.SubscriptionTier{}).
		Where("stripe_product_id = ?", e.ProductID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("billing: update tiers for product %s: %w", e.ProductID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: no tier for product %s", ErrLookupMiss, e.ProductID)
	}
	return nil
}

func (r *Reconciler) applyPrice(ctx context.Context, e PriceUpdated) error {
	// Archived and one-time prices never become a tier's checkout price.
	if !e.Active || !e.Recurring {
		log.WithFields(log.Fields{
			"price_id":   e.PriceID,
			"product_id": e.ProductID,
			"active":     e.Active,
			"recurring":  e.Recurring,
		}).Info("billing: price skipped")
		return nil
	}
	updates := map[string]any{
		"price_in_cents":  e.UnitAmount,
		"currency":        e.Currency,
		"stripe_price_id": e.PriceID,
		"updated_at":      time.Now().UTC(),
	}
	if e.MonthlyQuota != nil {
		updates["monthly_quota"] = *e.MonthlyQuota
	}
	res := r.db.WithContext(ctx).
		Model(&models.SubscriptionTier{}).
		Where("stripe_product_id = ?", e.ProductID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("billing: update tiers for price %s: %w", e.PriceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: no tier for product %s", ErrLookupMiss, e.ProductID)
	}
	return nil
}
