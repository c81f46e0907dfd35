package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/apikeys"
	"github.com/promptarchitect/server/internal/auth"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SubscriptionHandler serves the caller's subscription and BYOK preference.
type SubscriptionHandler struct {
	store      *store.Store
	keys       *apikeys.Service
	freeTierID string
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(s *store.Store, keys *apikeys.Service, freeTierID string) *SubscriptionHandler {
	if freeTierID == "" {
		freeTierID = models.FreeTierID
	}
	return &SubscriptionHandler{store: s, keys: keys, freeTierID: freeTierID}
}

type byokRequest struct {
	UsePersonalKeysDefault *bool `json:"use_personal_keys_default" binding:"required"`
}

// Get returns the subscription, usage and tier features of the caller.
func (h *SubscriptionHandler) Get(c *gin.Context) {
	sub, errSub := h.store.EnsureSubscription(c.Request.Context(), auth.UserID(c), h.freeTierID)
	if errors.Is(errSub, store.ErrNotFound) {
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription not found"})
		return
	}
	if errSub != nil {
		log.WithError(errSub).Warn("front: load subscription failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load subscription failed"})
		return
	}

	quota := sub.Tier.PromptsIncluded()
	remaining := quota - sub.MonthlyUsageCount
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"tier_id":                   sub.TierID,
		"tier_name":                 sub.Tier.Name,
		"status":                    sub.Status,
		"monthly_usage_count":       sub.MonthlyUsageCount,
		"monthly_quota":             quota,
		"remaining":                 remaining,
		"use_personal_keys_default": sub.UsePersonalKeysDefault,
		"byok_enabled":              sub.Tier.BYOKEnabled(),
		"features":                  sub.Tier.DecodeFeatures(),
		"current_period_start":      sub.CurrentPeriodStart,
		"current_period_end":        sub.CurrentPeriodEnd,
		"cancel_at_period_end":      sub.CancelAtPeriodEnd,
		"has_billing_account":       sub.StripeCustomerID != nil && *sub.StripeCustomerID != "",
	})
}

// UpdateBYOK stores whether generations default to the caller's personal keys.
func (h *SubscriptionHandler) UpdateBYOK(c *gin.Context) {
	var body byokRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "use_personal_keys_default is required"})
		return
	}

	ctx := c.Request.Context()
	userID := auth.UserID(c)
	if _, errSub := h.store.EnsureSubscription(ctx, userID, h.freeTierID); errSub != nil {
		log.WithError(errSub).Warn("front: ensure subscription failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update settings failed"})
		return
	}
	errUpdate := h.keys.UpdateBYOKDefault(ctx, userID, *body.UsePersonalKeysDefault)
	if errors.Is(errUpdate, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription not found"})
		return
	}
	if errUpdate != nil {
		log.WithError(errUpdate).Warn("front: update byok default failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"use_personal_keys_default": *body.UsePersonalKeysDefault})
}
